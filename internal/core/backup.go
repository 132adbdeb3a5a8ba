package core

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dotcommander/weaver/internal/domain/fiction"
	"github.com/dotcommander/weaver/internal/storage"
)

// Backup is the full pipeline record written by the export command.
type Backup struct {
	Title            string                `json:"title"`
	InitialPrompt    string                `json:"initialPrompt,omitempty"`
	StoryBible       *fiction.StoryBible   `json:"storyBible,omitempty"`
	NovelOutline     *fiction.NovelOutline `json:"novelOutline,omitempty"`
	ForbiddenPhrases []string              `json:"forbiddenPhrases"`
	NovelManuscript  string                `json:"novelManuscript"`
}

// ExportBackup gathers whatever is persisted. The manuscript is the imported
// document when present, otherwise the chapters joined in order.
func ExportBackup(ctx context.Context, store storage.Store, logger *slog.Logger) Backup {
	if logger == nil {
		logger = slog.Default()
	}
	snap := newCheckpoints(store, logger.With("component", "backup")).snapshot(ctx)

	title := snap.Title
	if title == "" {
		title = "Unsaved Novel"
	}
	manuscript := snap.Content
	if !snap.HasContent || manuscript == "" {
		manuscript = fiction.Manuscript(snap.Chapters)
	}

	return Backup{
		Title:            title,
		InitialPrompt:    snap.InitialPrompt,
		StoryBible:       snap.Bible,
		NovelOutline:     snap.Outline,
		ForbiddenPhrases: snap.ForbiddenPhrases,
		NovelManuscript:  manuscript,
	}
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SafeFilename builds "<title>_<suffix>" with every non-alphanumeric rune
// in the title replaced by "_".
func SafeFilename(title, suffix string) string {
	if title == "" {
		title = "untitled"
	}
	safe := strings.ToLower(unsafeFilenameChars.ReplaceAllString(title, "_"))
	return safe + "_" + suffix
}
