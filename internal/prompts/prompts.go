// Package prompts holds the editable prompt texts and the pure functions
// that turn pipeline state into generation requests.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/dotcommander/weaver/internal/domain/fiction"
	"github.com/dotcommander/weaver/internal/retrieval"
)

// WordsPerPage converts a page count into a soft word target.
const WordsPerPage = 250

// Config is the set of prompt texts used by a run. StoryBible and Outline
// are text/template sources over Slots; the system instructions are used
// verbatim.
type Config struct {
	StoryBible    string
	Outline       string
	ChapterSystem string
	SummarySystem string
}

// Slots are the named values a template may reference.
type Slots struct {
	Prompt            string
	StoryBible        string
	LengthInstruction string
}

func Defaults() Config {
	return Config{
		StoryBible:    defaultStoryBible,
		Outline:       defaultOutline,
		ChapterSystem: defaultChapterSystem,
		SummarySystem: defaultSummarySystem,
	}
}

// Validate parses both templates and rejects blank system instructions.
func (c Config) Validate() error {
	if _, err := parse("story_bible", c.StoryBible); err != nil {
		return err
	}
	if _, err := parse("outline", c.Outline); err != nil {
		return err
	}
	if strings.TrimSpace(c.ChapterSystem) == "" {
		return fmt.Errorf("chapter system instruction is empty")
	}
	if strings.TrimSpace(c.SummarySystem) == "" {
		return fmt.Errorf("summary system instruction is empty")
	}
	return nil
}

func parse(name, src string) (*template.Template, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%s prompt is empty", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s prompt: %w", name, err)
	}
	return tmpl, nil
}

// Render fills the named slots of a template source.
func Render(name, src string, slots Slots) (string, error) {
	tmpl, err := parse(name, src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, slots); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// LengthInstruction is the sentence appended to the outline request for a
// positive page count, and empty otherwise.
func LengthInstruction(pageCount int) string {
	if pageCount <= 0 {
		return ""
	}
	return fmt.Sprintf(" The target length is approximately %d words.", pageCount*WordsPerPage)
}

// SerializeBible is the canonical text form of a story bible, used both in
// the outline prompt and as the story_bible retrieval document.
func SerializeBible(b fiction.StoryBible) (string, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing story bible: %w", err)
	}
	return string(data), nil
}

func (c Config) StoryBiblePrompt(prompt string) (string, error) {
	return Render("story_bible", c.StoryBible, Slots{Prompt: prompt})
}

func (c Config) OutlinePrompt(prompt, storyBible string, pageCount int) (string, error) {
	return Render("outline", c.Outline, Slots{
		Prompt:            prompt,
		StoryBible:        storyBible,
		LengthInstruction: LengthInstruction(pageCount),
	})
}

// ChapterInput is everything the chapter request is assembled from.
type ChapterInput struct {
	Bible   fiction.StoryBible
	Chapter fiction.ChapterOutline
	// Index is the 0-based chapter index.
	Index            int
	RunningSummary   string
	Previous         *retrieval.Document
	Retrieved        []retrieval.Document
	ForbiddenPhrases []string
}

// ChapterPrompt builds the user prompt for one chapter.
func ChapterPrompt(in ChapterInput) string {
	var forbidden string
	if len(in.ForbiddenPhrases) > 0 {
		forbidden = fmt.Sprintf("\n**FORBIDDEN PHRASES & CONSTRAINTS:**\nDo not use the following overused phrases: %s.\nVary sentence starts. Avoid starting multiple sentences with \"As he...\" or \"The [Noun]...\".\n",
			strings.Join(in.ForbiddenPhrases, ", "))
	}

	var previous string
	if in.Previous != nil {
		previous = fmt.Sprintf("--- CONTEXT: Immediately Preceding Chapter (Chapter %d) ---\n%s\n\n", in.Index, in.Previous.Text)
	}

	retrieved := "No specific documents were retrieved. Rely on the summary and story bible."
	if len(in.Retrieved) > 0 {
		parts := make([]string, 0, len(in.Retrieved))
		for _, doc := range in.Retrieved {
			parts = append(parts, fmt.Sprintf("--- CONTEXT from %s %s ---\n%s\n", doc.Metadata.Type, chapterLabel(doc.Metadata), doc.Text))
		}
		retrieved = strings.Join(parts, "\n")
	}

	var sb strings.Builder
	sb.WriteString("\nYou will write a chapter for a novel.\n")
	sb.WriteString(forbidden)
	sb.WriteString("\n**CORE STORY ELEMENTS (STORY BIBLE):**\n")
	fmt.Fprintf(&sb, "- **Overall Theme**: %s\n", in.Bible.Theme)
	fmt.Fprintf(&sb, "- **Narrative Voice & Writing Style**: %s\n", in.Bible.VoiceAndStyle)
	fmt.Fprintf(&sb, "- **Setting**: %s\n", in.Bible.Setting)
	fmt.Fprintf(&sb, "- **Main Characters**:\n%s\n", in.Bible.CharacterRoster())
	sb.WriteString("\n---\n\n**DYNAMIC CONTEXT FROM STORY SO FAR:**\n")
	fmt.Fprintf(&sb, "--- CONTEXT: Running Plot Summary ---\n%s\n\n%s--- CONTEXT: Additional Retrieved Story Documents ---\n%s\n",
		in.RunningSummary, previous, retrieved)
	sb.WriteString("\n---\n\n**CURRENT CHAPTER TO WRITE:**\n")
	fmt.Fprintf(&sb, "- **Chapter Title**: %s\n", in.Chapter.Title)
	fmt.Fprintf(&sb, "- **Chapter Summary/Goal**: %s\n", in.Chapter.Summary)
	sb.WriteString("\nBased on all the information above, please write the full content for this chapter.\n")
	return sb.String()
}

func chapterLabel(m retrieval.Metadata) string {
	if m.Chapter == 0 {
		return ""
	}
	return fmt.Sprint(m.Chapter)
}

// ChapterQuery is the retrieval query for a chapter: its title and summary.
func ChapterQuery(ch fiction.ChapterOutline) string {
	return ch.Title + " " + ch.Summary
}

// SummaryPrompt asks for the continuity fold of one finished chapter.
func SummaryPrompt(previousSummary, chapterText string) string {
	return fmt.Sprintf(`
PREVIOUS SUMMARY:
%s

---

NEW CHAPTER TEXT:
%s

---

Based on the previous summary and the new chapter, please provide the updated summary and identify any linguistic patterns to avoid in the future.
`, previousSummary, chapterText)
}
