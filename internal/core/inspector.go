package core

import (
	"context"
	"log/slog"

	"github.com/dotcommander/weaver/internal/domain/fiction"
	"github.com/dotcommander/weaver/internal/storage"
)

// Phase is the derived position of a run. It is never stored.
type Phase string

const (
	PhaseEmpty        Phase = "EMPTY"
	PhaseBibleReady   Phase = "BIBLE_READY"
	PhaseOutlineReady Phase = "OUTLINE_READY"
	PhaseWriting      Phase = "WRITING"
	PhaseComplete     Phase = "COMPLETE"
	PhaseExternal     Phase = "EXTERNAL"
)

// Status summarizes persisted state without generating anything.
type Status struct {
	Phase            Phase  `json:"phase"`
	Title            string `json:"title,omitempty"`
	ChaptersDone     int    `json:"chapters_done"`
	ChaptersTotal    int    `json:"chapters_total"`
	ForbiddenPhrases int    `json:"forbidden_phrases"`
	External         bool   `json:"external"`
	Words            int    `json:"words"`
}

// Resumable reports whether Resume would generate more chapters.
func (s Status) Resumable() bool {
	return s.Phase == PhaseOutlineReady || s.Phase == PhaseWriting
}

// Inspect infers the phase from which keys exist and how many chapters are
// recorded.
func Inspect(ctx context.Context, store storage.Store, logger *slog.Logger) Status {
	if logger == nil {
		logger = slog.Default()
	}
	snap := newCheckpoints(store, logger.With("component", "inspector")).snapshot(ctx)
	return statusOf(snap)
}

func statusOf(snap snapshot) Status {
	st := Status{
		Title:            snap.Title,
		ChaptersDone:     len(snap.Chapters),
		ForbiddenPhrases: len(snap.ForbiddenPhrases),
	}

	switch {
	case snap.External:
		st.Phase = PhaseExternal
		st.External = true
		if st.Title == "" {
			st.Title = "External Document"
		}
		st.ChaptersDone = 0
		st.Words = fiction.CountWords(snap.Content)
	case snap.Outline != nil:
		st.Words = fiction.CountWords(fiction.Manuscript(snap.Chapters))
		st.ChaptersTotal = len(snap.Outline.Chapters)
		switch {
		case st.ChaptersDone == 0:
			st.Phase = PhaseOutlineReady
		case st.ChaptersDone < st.ChaptersTotal:
			st.Phase = PhaseWriting
		default:
			st.Phase = PhaseComplete
		}
	case snap.Bible != nil:
		st.Phase = PhaseBibleReady
	default:
		st.Phase = PhaseEmpty
	}
	return st
}

// Status inspects the orchestrator's own store.
func (o *Orchestrator) Status(ctx context.Context) Status {
	return statusOf(o.store.snapshot(ctx))
}
