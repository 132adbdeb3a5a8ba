package core_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/weaver/internal/agent"
	"github.com/dotcommander/weaver/internal/core"
	"github.com/dotcommander/weaver/internal/retrieval"
	"github.com/dotcommander/weaver/internal/storage"
)

const lighthousePrompt = "a lighthouse keeper who receives letters from the future"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fold(summary string, phrases ...string) agent.MockReply {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return agent.MockReply{Text: fmt.Sprintf(`{"summary":%q,"identifiedAIisms":[%s]}`, summary, strings.Join(quoted, ","))}
}

func newOrchestrator(gen agent.Generator, store storage.Store, opts ...core.Option) *core.Orchestrator {
	return core.New(gen, store, append([]core.Option{core.WithLogger(quietLogger())}, opts...)...)
}

func storedPhrases(t *testing.T, store storage.Store) []string {
	t.Helper()
	v, _, err := storage.GetJSON[[]string](context.Background(), store, core.KeyForbiddenPhrases)
	require.NoError(t, err)
	return v
}

func chapterPrompts(mock *agent.MockClient) []string {
	var out []string
	for _, c := range mock.Calls() {
		if c.Operation == agent.OpChapter {
			out = append(out, c.Prompt)
		}
	}
	return out
}

func TestRun_LighthouseThreeChapters(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mock := agent.NewMockClient(3).Script(agent.OpContinuity,
		fold("after one", "a testament to", "the air was thick"),
		fold("after two", "the air was thick", "couldn't help but"),
		fold("after three", "a testament to", "the cold reality"),
	)

	var afterTwo []string
	var sizes []int
	o := newOrchestrator(mock, store, core.WithObserver(func(p core.Progress) {
		if strings.HasPrefix(p.Message, "Penning Chapter 3 of 3") && afterTwo == nil {
			afterTwo = storedPhrases(t, store)
		}
		if strings.HasPrefix(p.Message, "Penning Chapter") {
			sizes = append(sizes, len(storedPhrases(t, store)))
		}
	}))

	res, err := o.Run(ctx, lighthousePrompt, 4)
	require.NoError(t, err)

	require.Len(t, res.Chapters, 3)
	assert.Equal(t, 3, res.Generated)
	assert.Equal(t, "The Last Lamp", res.Title)
	for i, ch := range res.Chapters {
		assert.True(t, strings.HasPrefix(ch, fmt.Sprintf("Chapter %d: Tide %d\n\n", i+1, i+1)), ch)
		assert.True(t, strings.HasSuffix(ch, "\n\n"))
	}
	assert.Equal(t, strings.Join(res.Chapters, ""), res.Manuscript())
	records := res.ChapterRecords()
	require.Len(t, records, 3)
	assert.Equal(t, 3, records[2].Number)
	assert.Equal(t, "Tide 3", records[2].Title)
	assert.Equal(t, res.Chapters[2], records[2].Text)

	assert.Equal(t, []string{"a testament to", "the air was thick", "couldn't help but"}, afterTwo)
	assert.Equal(t, []string{"a testament to", "the air was thick", "couldn't help but", "the cold reality"}, res.ForbiddenPhrases)
	assert.Equal(t, res.ForbiddenPhrases, storedPhrases(t, store))
	assert.IsNonDecreasing(t, sizes)

	summary, _, err := storage.GetJSON[string](ctx, store, core.KeyCurrentSummary)
	require.NoError(t, err)
	assert.Equal(t, "after three", summary)

	assert.Equal(t, 1, mock.CallCount(agent.OpStoryBible))
	assert.Equal(t, 1, mock.CallCount(agent.OpOutline))
	assert.Equal(t, 3, mock.CallCount(agent.OpChapter))
	assert.Equal(t, 3, mock.CallCount(agent.OpContinuity))

	// the outline request carries the length target
	for _, c := range mock.Calls() {
		if c.Operation == agent.OpOutline {
			assert.Contains(t, c.Prompt, "approximately 1000 words")
		}
	}

	prompts := chapterPrompts(mock)
	require.Len(t, prompts, 3)
	assert.NotContains(t, prompts[0], "FORBIDDEN PHRASES")
	assert.NotContains(t, prompts[0], "Immediately Preceding Chapter")
	assert.Contains(t, prompts[1], "Do not use the following overused phrases: a testament to, the air was thick.")
	assert.Contains(t, prompts[1], "--- CONTEXT: Immediately Preceding Chapter (Chapter 1) ---\nChapter 1: Tide 1")
	assert.Contains(t, prompts[2], "--- CONTEXT: Running Plot Summary ---\nafter two")
	assert.Contains(t, prompts[2], "Immediately Preceding Chapter (Chapter 2)")
}

func TestRun_LiveManuscriptGrows(t *testing.T) {
	mock := agent.NewMockClient(2)
	var snapshots []string
	o := newOrchestrator(mock, storage.NewMemoryStore(), core.WithObserver(func(p core.Progress) {
		snapshots = append(snapshots, p.Manuscript)
	}))

	res, err := o.Run(context.Background(), lighthousePrompt, 0)
	require.NoError(t, err)

	for i := 1; i < len(snapshots); i++ {
		assert.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]) || snapshots[i] == "",
			"snapshot %d does not extend the previous one", i)
	}
	assert.True(t, strings.HasPrefix(res.Manuscript(), snapshots[len(snapshots)-2]))
}

func TestRun_IndexHoldsBibleAndChapters(t *testing.T) {
	ix := retrieval.NewIndex()
	o := newOrchestrator(agent.NewMockClient(2), storage.NewMemoryStore(), core.WithIndex(ix))

	res, err := o.Run(context.Background(), lighthousePrompt, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, ix.Len())
	bible, ok := ix.Get("story_bible")
	require.True(t, ok)
	assert.Contains(t, bible.Text, `"voiceAndStyle"`)
	ch2, ok := ix.Get("chapter_2")
	require.True(t, ok)
	assert.Equal(t, res.Chapters[1], ch2.Text)
	assert.Equal(t, retrieval.Metadata{Type: retrieval.TypeChapter, Chapter: 2}, ch2.Metadata)
}

func TestRun_ValidationLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, storage.PutJSON(ctx, store, core.KeyNovelTitle, "Old Book"))
	mock := agent.NewMockClient(1)
	o := newOrchestrator(mock, store)

	for _, prompt := range []string{"", "   \n\t"} {
		_, err := o.Run(ctx, prompt, 10)
		var ve *core.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "prompt", ve.Field)
	}

	_, err := o.Run(ctx, lighthousePrompt, -1)
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "page_count", ve.Field)

	assert.Empty(t, mock.Calls())
	title, ok, err := storage.GetJSON[string](ctx, store, core.KeyNovelTitle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Old Book", title)
}

func TestRun_ClearsStaleState(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for key, v := range map[string]any{
		core.KeyNovelContent: "old imported text",
		core.KeyIsExternal:   true,
		core.KeyChapters:     []string{"Chapter 1: Gone\n\nold\n\n"},
		"someUnrelatedKey":   "left by another version",
	} {
		require.NoError(t, storage.PutJSON(ctx, store, key, v))
	}
	ix := retrieval.NewIndex()
	ix.Upsert("chapter_9", "stale lighthouse letters future keeper", retrieval.Metadata{Type: retrieval.TypeChapter, Chapter: 9})

	mock := agent.NewMockClient(2)
	o := newOrchestrator(mock, store, core.WithIndex(ix))
	res, err := o.Run(ctx, lighthousePrompt, 0)
	require.NoError(t, err)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		core.KeyInitialPrompt, core.KeyStoryBible, core.KeyOutline, core.KeyNovelTitle,
		core.KeyChapters, core.KeyCurrentSummary, core.KeyForbiddenPhrases, core.KeyFoldedChapters,
	}, keys)

	_, ok := ix.Get("chapter_9")
	assert.False(t, ok)
	for _, p := range chapterPrompts(mock) {
		assert.NotContains(t, p, "stale lighthouse")
	}
	assert.NotContains(t, res.Manuscript(), "old imported text")
}

func TestRun_BibleFailureAborts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mock := agent.NewMockClient(2).Script(agent.OpStoryBible, agent.MockReply{Text: `{"characters":[]}`})
	o := newOrchestrator(mock, store)

	_, err := o.Run(ctx, lighthousePrompt, 0)
	var pe *core.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.PhaseBible, pe.Phase)
	assert.ErrorIs(t, err, agent.ErrSchemaMismatch)
	assert.Zero(t, mock.CallCount(agent.OpOutline))
	assert.Equal(t, core.PhaseEmpty, o.Status(ctx).Phase)
}

func TestRun_OutlineEmptyResponse(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	mock := agent.NewMockClient(2).Script(agent.OpOutline, agent.MockReply{Text: "  "})
	o := newOrchestrator(mock, store)

	_, err := o.Run(ctx, lighthousePrompt, 0)
	assert.ErrorIs(t, err, agent.ErrEmptyResponse)
	var pe *core.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.PhaseOutline, pe.Phase)
	assert.Equal(t, core.PhaseBibleReady, o.Status(ctx).Phase)
}

func TestRun_TransientErrorsRetried(t *testing.T) {
	mock := agent.NewMockClient(1).Script(agent.OpOutline,
		agent.MockReply{Err: agent.NewStatusError(429, "slow down")},
		agent.MockReply{Err: agent.NewStatusError(503, "busy")},
	)
	gen := agent.NewRetryClient(mock, agent.DefaultRetryPolicy(),
		agent.WithRetryLogger(quietLogger()),
		agent.WithSleep(func(context.Context, time.Duration) error { return nil }))

	res, err := newOrchestrator(gen, storage.NewMemoryStore()).Run(context.Background(), lighthousePrompt, 0)
	require.NoError(t, err)
	assert.Len(t, res.Chapters, 1)
	assert.Equal(t, 3, mock.CallCount(agent.OpOutline))
}

func TestResume_AfterInterruptedChapter(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := agent.NewMockClient(3).
		Script(agent.OpChapter,
			agent.MockReply{Text: "Mara climbed.| The lamp turned."},
			agent.MockReply{Err: fmt.Errorf("%w: connection reset", agent.ErrTransport)},
		).
		Script(agent.OpContinuity, fold("after one", "a testament to"))

	_, err := newOrchestrator(first, store).Run(ctx, lighthousePrompt, 0)
	var pe *core.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.PhaseChapter, pe.Phase)
	assert.Equal(t, 2, pe.Chapter)
	assert.ErrorIs(t, err, agent.ErrTransport)

	st := core.Inspect(ctx, store, quietLogger())
	assert.Equal(t, core.PhaseWriting, st.Phase)
	assert.Equal(t, 1, st.ChaptersDone)
	assert.Equal(t, 3, st.ChaptersTotal)
	assert.True(t, st.Resumable())

	saved, _, err := storage.GetJSON[[]string](ctx, store, core.KeyChapters)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Chapter 1: Tide 1\n\nMara climbed. The lamp turned.\n\n", saved[0])

	second := agent.NewMockClient(3).Script(agent.OpContinuity,
		fold("after two", "a testament to", "the air was thick"),
		fold("after three"),
	)
	o := newOrchestrator(second, store)
	require.True(t, o.HasSavedState(ctx))
	res, err := o.Resume(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Generated)
	require.Len(t, res.Chapters, 3)
	assert.Equal(t, saved[0], res.Chapters[0])
	assert.True(t, strings.HasPrefix(res.Chapters[1], "Chapter 2: Tide 2\n\n"))
	assert.True(t, strings.HasPrefix(res.Chapters[2], "Chapter 3: Tide 3\n\n"))
	assert.Equal(t, []string{"a testament to", "the air was thick"}, res.ForbiddenPhrases)

	assert.Zero(t, second.CallCount(agent.OpStoryBible))
	assert.Zero(t, second.CallCount(agent.OpOutline))
	assert.Equal(t, 2, second.CallCount(agent.OpChapter))

	prompts := chapterPrompts(second)
	assert.Contains(t, prompts[0], "--- CONTEXT: Running Plot Summary ---\nafter one")
	assert.Contains(t, prompts[0], "Immediately Preceding Chapter (Chapter 1) ---\n"+saved[0])
	assert.Contains(t, prompts[0], "Do not use the following overused phrases: a testament to.")

	assert.Equal(t, core.PhaseComplete, o.Status(ctx).Phase)
}

func TestResume_CompleteRunGeneratesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, err := newOrchestrator(agent.NewMockClient(2), store).Run(ctx, lighthousePrompt, 0)
	require.NoError(t, err)

	mock := agent.NewMockClient(2)
	res, err := newOrchestrator(mock, store).Resume(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Generated)
	assert.Len(t, res.Chapters, 2)
	assert.Empty(t, mock.Calls())
}

func TestResume_FallsBackToOutlineSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, err := newOrchestrator(agent.NewMockClient(2), store).Run(ctx, lighthousePrompt, 0)
	require.NoError(t, err)

	// drop the tail so a chapter remains and the summary key is gone
	saved, _, err := storage.GetJSON[[]string](ctx, store, core.KeyChapters)
	require.NoError(t, err)
	require.NoError(t, storage.PutJSON(ctx, store, core.KeyChapters, saved[:1]))
	require.NoError(t, store.Put(ctx, core.KeyCurrentSummary, []byte("{corrupt")))

	mock := agent.NewMockClient(2)
	_, err = newOrchestrator(mock, store).Resume(ctx)
	require.NoError(t, err)
	prompts := chapterPrompts(mock)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "--- CONTEXT: Running Plot Summary ---\nA keeper's isolation unravels")
}

func TestResume_IncompleteState(t *testing.T) {
	ctx := context.Background()

	t.Run("missing keys", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, storage.PutJSON(ctx, store, core.KeyInitialPrompt, lighthousePrompt))
		require.NoError(t, store.Put(ctx, core.KeyStoryBible, []byte(`{"theme":"duty"}`)))

		mock := agent.NewMockClient(1)
		_, err := newOrchestrator(mock, store).Resume(ctx)
		require.ErrorIs(t, err, core.ErrIncompleteState)

		var ie *core.IncompleteStateError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, []string{core.KeyOutline, core.KeyNovelTitle}, ie.Missing)
		assert.Empty(t, mock.Calls())
	})

	t.Run("more chapters than outline", func(t *testing.T) {
		store := storage.NewMemoryStore()
		_, err := newOrchestrator(agent.NewMockClient(1), store).Run(ctx, lighthousePrompt, 0)
		require.NoError(t, err)
		require.NoError(t, storage.PutJSON(ctx, store, core.KeyChapters, []string{"a", "b"}))

		_, err = newOrchestrator(agent.NewMockClient(1), store).Resume(ctx)
		assert.ErrorIs(t, err, core.ErrIncompleteState)
	})

	t.Run("empty store", func(t *testing.T) {
		o := newOrchestrator(agent.NewMockClient(1), storage.NewMemoryStore())
		assert.False(t, o.HasSavedState(ctx))
		_, err := o.Resume(ctx)
		assert.ErrorIs(t, err, core.ErrIncompleteState)
	})
}

func TestImportExternal(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, err := newOrchestrator(agent.NewMockClient(1), store).Run(ctx, lighthousePrompt, 0)
	require.NoError(t, err)

	mock := agent.NewMockClient(1)
	o := newOrchestrator(mock, store)
	require.NoError(t, o.ImportExternal(ctx, "Found Pages", "It was a dark and stormy night."))

	assert.True(t, o.HasSavedState(ctx))
	st := o.Status(ctx)
	assert.Equal(t, core.PhaseExternal, st.Phase)
	assert.False(t, st.Resumable())

	res, err := o.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, res.External)
	assert.Equal(t, "Found Pages", res.Title)
	assert.Equal(t, "It was a dark and stormy night.", res.Manuscript())
	assert.Nil(t, res.Outline)
	assert.Empty(t, mock.Calls())

	// the previous run's keys are gone
	_, ok, err := store.Get(ctx, core.KeyOutline)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, o.ImportExternal(ctx, "", "text"))
	res, err = o.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "External Document", res.Title)

	var ve *core.ValidationError
	assert.True(t, errors.As(o.ImportExternal(ctx, "t", "  "), &ve))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ix := retrieval.NewIndex()
	o := newOrchestrator(agent.NewMockClient(1), store, core.WithIndex(ix))
	_, err := o.Run(ctx, lighthousePrompt, 0)
	require.NoError(t, err)

	require.NoError(t, o.Reset(ctx))
	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Zero(t, ix.Len())
	assert.False(t, o.HasSavedState(ctx))
	assert.Equal(t, core.PhaseEmpty, o.Status(ctx).Phase)
}

type failingStore struct {
	storage.Store
	failPut string
}

func (f *failingStore) Put(ctx context.Context, key string, value []byte) error {
	if key == f.failPut {
		return &storage.Error{Op: "put", Key: key, Err: errors.New("disk full")}
	}
	return f.Store.Put(ctx, key, value)
}

func TestRun_StorageFailureInLoopIsResumable(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	store := &failingStore{Store: mem, failPut: core.KeyForbiddenPhrases}

	_, err := newOrchestrator(agent.NewMockClient(2), store).Run(ctx, lighthousePrompt, 0)
	var pe *core.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.PhaseContinuity, pe.Phase)
	assert.Equal(t, 1, pe.Chapter)
	var se *storage.Error
	assert.True(t, errors.As(err, &se))

	saved, _, err := storage.GetJSON[[]string](ctx, mem, core.KeyChapters)
	require.NoError(t, err)
	require.Len(t, saved, 1)

	// chapter 1 was saved without its fold; resume folds it before chapter 2
	mock := agent.NewMockClient(2).Script(agent.OpContinuity,
		fold("refolded one", "a testament to"),
		fold("after two"),
	)
	res, err := newOrchestrator(mock, mem).Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)
	require.Len(t, res.Chapters, 2)
	assert.Equal(t, saved[0], res.Chapters[0])
	assert.Equal(t, []string{"a testament to"}, res.ForbiddenPhrases)
	assert.Equal(t, []string{"a testament to"}, storedPhrases(t, mem))

	require.Equal(t, 2, mock.CallCount(agent.OpContinuity))
	var folds []string
	for _, c := range mock.Calls() {
		if c.Operation == agent.OpContinuity {
			folds = append(folds, c.Prompt)
		}
	}
	assert.Contains(t, folds[0], saved[0])
	assert.Contains(t, chapterPrompts(mock)[0], "--- CONTEXT: Running Plot Summary ---\nrefolded one")

	folded, _, err := storage.GetJSON[int](ctx, mem, core.KeyFoldedChapters)
	require.NoError(t, err)
	assert.Equal(t, 2, folded)
}

type unreadableStore struct {
	storage.Store
	failGet string
	hide    string
}

func (u *unreadableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	switch key {
	case u.failGet:
		return nil, false, &storage.Error{Op: "get", Key: key, Err: errors.New("i/o error")}
	case u.hide:
		return nil, false, nil
	}
	return u.Store.Get(ctx, key)
}

// interruptedRun leaves one finished chapter of two with its fold saved.
func interruptedRun(t *testing.T, store storage.Store) []string {
	t.Helper()
	ctx := context.Background()
	mock := agent.NewMockClient(2).
		Script(agent.OpChapter,
			agent.MockReply{Text: "The original first chapter."},
			agent.MockReply{Err: agent.NewStatusError(400, "bad request")},
		).
		Script(agent.OpContinuity, fold("after one", "a testament to"))
	_, err := newOrchestrator(mock, store).Run(ctx, lighthousePrompt, 0)
	require.Error(t, err)

	saved, _, err := storage.GetJSON[[]string](ctx, store, core.KeyChapters)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	return saved
}

func TestResume_UnreadableStateIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()

	for _, key := range []string{core.KeyChapters, core.KeyForbiddenPhrases} {
		t.Run("read failure on "+key, func(t *testing.T) {
			mem := storage.NewMemoryStore()
			saved := interruptedRun(t, mem)

			mock := agent.NewMockClient(2)
			_, err := newOrchestrator(mock, &unreadableStore{Store: mem, failGet: key}).Resume(ctx)
			require.ErrorIs(t, err, core.ErrIncompleteState)
			var ie *core.IncompleteStateError
			require.True(t, errors.As(err, &ie))
			assert.Contains(t, ie.Reason, key)
			assert.Empty(t, mock.Calls())

			after, _, err := storage.GetJSON[[]string](ctx, mem, core.KeyChapters)
			require.NoError(t, err)
			assert.Equal(t, saved, after)
			assert.Equal(t, []string{"a testament to"}, storedPhrases(t, mem))
		})
	}

	t.Run("undecodable chapters", func(t *testing.T) {
		mem := storage.NewMemoryStore()
		interruptedRun(t, mem)
		require.NoError(t, mem.Put(ctx, core.KeyChapters, []byte(`{"not":"a list"}`)))

		mock := agent.NewMockClient(2)
		_, err := newOrchestrator(mock, mem).Resume(ctx)
		require.ErrorIs(t, err, core.ErrIncompleteState)
		assert.Empty(t, mock.Calls())

		raw, _, err := mem.Get(ctx, core.KeyChapters)
		require.NoError(t, err)
		assert.JSONEq(t, `{"not":"a list"}`, string(raw))
	})

	t.Run("absent phrase set starts empty", func(t *testing.T) {
		mem := storage.NewMemoryStore()
		interruptedRun(t, mem)

		mock := agent.NewMockClient(2).Script(agent.OpContinuity, fold("after two"))
		res, err := newOrchestrator(mock, &unreadableStore{Store: mem, hide: core.KeyForbiddenPhrases}).Resume(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Generated)
		assert.Empty(t, res.ForbiddenPhrases)
	})
}

func TestRun_StreamFailsMidChapter(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	ix := retrieval.NewIndex()

	mock := agent.NewMockClient(2).Script(agent.OpChapter,
		agent.MockReply{Text: "Mara climbed.| The lamp turned."},
		agent.MockReply{
			Text:      "Half a sentence|and then",
			StreamErr: fmt.Errorf("%w: connection reset", agent.ErrTransport),
		},
	)

	var partial string
	o := newOrchestrator(mock, store, core.WithIndex(ix), core.WithObserver(func(p core.Progress) {
		if p.Chapter == 2 {
			partial = p.Manuscript
		}
	}))
	_, err := o.Run(ctx, lighthousePrompt, 0)

	var pe *core.PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.PhaseChapter, pe.Phase)
	assert.Equal(t, 2, pe.Chapter)
	assert.ErrorIs(t, err, agent.ErrTransport)
	assert.Contains(t, partial, "Half a sentenceand then")

	saved, _, err := storage.GetJSON[[]string](ctx, store, core.KeyChapters)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Chapter 1: Tide 1\n\nMara climbed. The lamp turned.\n\n", saved[0])
	assert.NotContains(t, saved[0], "Half a sentence")

	_, ok := ix.Get("chapter_2")
	assert.False(t, ok)
	assert.Equal(t, 2, ix.Len())

	resumed := agent.NewMockClient(2)
	res, err := newOrchestrator(resumed, store).Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Generated)
	require.Len(t, res.Chapters, 2)
	assert.Equal(t, saved[0], res.Chapters[0])
	assert.True(t, strings.HasPrefix(res.Chapters[1], "Chapter 2: Tide 2\n\nThe tide came in slowly on day 1."))
	assert.NotContains(t, res.Manuscript(), "Half a sentence")
	assert.Equal(t, 1, resumed.CallCount(agent.OpChapter))
}
