package fiction

import (
	"fmt"
	"strings"
)

// Character is one entry of the story bible's cast.
type Character struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// StoryBible is the foundational narrative profile generated once per run.
type StoryBible struct {
	Characters    []Character `json:"characters" validate:"required,min=1,dive"`
	Conflict      string      `json:"conflict" validate:"required"`
	Setting       string      `json:"setting" validate:"required"`
	Theme         string      `json:"theme" validate:"required"`
	VoiceAndStyle string      `json:"voiceAndStyle" validate:"required"`
	DialogueStyle string      `json:"dialogueStyle" validate:"required"`
	Conclusion    string      `json:"conclusion" validate:"required"`
	Originality   string      `json:"originality" validate:"required"`
}

// CharacterRoster renders the cast as "name: description" lines.
func (b StoryBible) CharacterRoster() string {
	lines := make([]string, 0, len(b.Characters))
	for _, c := range b.Characters {
		lines = append(lines, fmt.Sprintf("%s: %s", c.Name, c.Description))
	}
	return strings.Join(lines, "\n")
}

// ChapterOutline is the plan for a single chapter.
type ChapterOutline struct {
	Title   string `json:"chapter_title" validate:"required"`
	Summary string `json:"chapter_summary" validate:"required"`
}

// NovelOutline is the fixed work plan. Its chapter list never changes once
// generated.
type NovelOutline struct {
	Title    string           `json:"title" validate:"required"`
	Summary  string           `json:"summary" validate:"required"`
	Chapters []ChapterOutline `json:"chapters" validate:"required,min=1,dive"`
}

// ContinuityUpdate is the structured result of folding a finished chapter
// into the running summary.
type ContinuityUpdate struct {
	Summary          string   `json:"summary" validate:"required"`
	IdentifiedAIisms []string `json:"identifiedAIisms"`
}

// ChapterRecord is a finalized chapter. Text already carries the
// "Chapter N: title" heading and trailing blank line.
type ChapterRecord struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// Records pairs finalized chapter texts with their outline entries.
// Chapters beyond the outline keep an empty title.
func Records(outline NovelOutline, chapters []string) []ChapterRecord {
	records := make([]ChapterRecord, len(chapters))
	for i, text := range chapters {
		records[i] = ChapterRecord{Number: i + 1, Text: text}
		if i < len(outline.Chapters) {
			records[i].Title = outline.Chapters[i].Title
		}
	}
	return records
}

// FormatChapter produces the finalized text for a chapter at the 0-based
// index i.
func FormatChapter(i int, title, body string) string {
	return ChapterHeading(i, title) + body + "\n\n"
}

// ChapterHeading is the prefix every finalized chapter starts with.
func ChapterHeading(i int, title string) string {
	return fmt.Sprintf("Chapter %d: %s\n\n", i+1, title)
}

// Manuscript concatenates chapter texts in order.
func Manuscript(chapters []string) string {
	return strings.Join(chapters, "")
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ReadingMinutes estimates reading time at 225 words per minute.
func ReadingMinutes(words int) int {
	return words / 225
}
