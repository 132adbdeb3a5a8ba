package core

import (
	"context"
	"log/slog"

	"github.com/dotcommander/weaver/internal/domain/fiction"
	"github.com/dotcommander/weaver/internal/storage"
)

// Persisted keys. The set is flat; phase is inferred from which exist.
const (
	KeyInitialPrompt    = "initialPrompt"
	KeyStoryBible       = "storyBible"
	KeyOutline          = "outline"
	KeyNovelTitle       = "novelTitle"
	KeyChapters         = "chapters"
	KeyCurrentSummary   = "currentSummary"
	KeyForbiddenPhrases = "forbiddenPhrases"
	KeyIsExternal       = "isExternal"
	KeyNovelContent     = "novelContent"
	// KeyFoldedChapters counts chapters whose continuity fold was saved.
	KeyFoldedChapters = "foldedChapters"
)

// checkpoints is the typed key layer over a Store. Reads degrade: a value
// that cannot be read or decoded is logged and reported as absent.
type checkpoints struct {
	store  storage.Store
	logger *slog.Logger
}

func newCheckpoints(store storage.Store, logger *slog.Logger) *checkpoints {
	return &checkpoints{store: store, logger: logger}
}

func (c *checkpoints) put(ctx context.Context, key string, v any) error {
	return storage.PutJSON(ctx, c.store, key, v)
}

// load reads key as T into the snapshot's view. A value that exists but
// cannot be read or decoded is reported absent and recorded as unreadable,
// so callers can tell it apart from a key that was never written.
func load[T any](ctx context.Context, c *checkpoints, s *snapshot, key string) (T, bool) {
	v, ok, err := storage.GetJSON[T](ctx, c.store, key)
	if err != nil {
		c.logger.Warn("state read failed, treating as absent", "key", key, "error", err)
		s.Unreadable = append(s.Unreadable, key)
		return v, false
	}
	return v, ok
}

func (c *checkpoints) has(ctx context.Context, key string) bool {
	_, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("state read failed, treating as absent", "key", key, "error", err)
		return false
	}
	return ok
}

func (c *checkpoints) clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// snapshot is everything a resume or inspection needs, as far as it could
// be read.
type snapshot struct {
	InitialPrompt    string
	Bible            *fiction.StoryBible
	Outline          *fiction.NovelOutline
	Title            string
	HasTitle         bool
	Chapters         []string
	Summary          string
	HasSummary       bool
	ForbiddenPhrases []string
	External         bool
	Content          string
	HasContent       bool
	Folded           int
	HasFolded        bool
	// Unreadable lists keys whose read or decode failed.
	Unreadable []string
}

func (c *checkpoints) snapshot(ctx context.Context) snapshot {
	var s snapshot
	s.InitialPrompt, _ = load[string](ctx, c, &s, KeyInitialPrompt)

	if bible, ok := load[fiction.StoryBible](ctx, c, &s, KeyStoryBible); ok {
		s.Bible = &bible
	}
	if outline, ok := load[fiction.NovelOutline](ctx, c, &s, KeyOutline); ok {
		s.Outline = &outline
	}

	s.Title, s.HasTitle = load[string](ctx, c, &s, KeyNovelTitle)
	s.Chapters, _ = load[[]string](ctx, c, &s, KeyChapters)
	s.Summary, s.HasSummary = load[string](ctx, c, &s, KeyCurrentSummary)
	s.ForbiddenPhrases, _ = load[[]string](ctx, c, &s, KeyForbiddenPhrases)
	s.External, _ = load[bool](ctx, c, &s, KeyIsExternal)
	s.Content, s.HasContent = load[string](ctx, c, &s, KeyNovelContent)
	s.Folded, s.HasFolded = load[int](ctx, c, &s, KeyFoldedChapters)

	if s.ForbiddenPhrases == nil {
		s.ForbiddenPhrases = []string{}
	}
	return s
}

// missingForResume lists the required keys a generated run lacks.
func (s snapshot) missingForResume() []string {
	var missing []string
	if s.Bible == nil {
		missing = append(missing, KeyStoryBible)
	}
	if s.Outline == nil {
		missing = append(missing, KeyOutline)
	}
	if s.Title == "" {
		missing = append(missing, KeyNovelTitle)
	}
	return missing
}

// unreadableForResume lists keys that exist but could not be read and that
// resume must never treat as empty.
func (s snapshot) unreadableForResume() []string {
	var bad []string
	for _, key := range s.Unreadable {
		if key == KeyChapters || key == KeyForbiddenPhrases {
			bad = append(bad, key)
		}
	}
	return bad
}
