package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/weaver/internal/agent"
	"github.com/dotcommander/weaver/internal/continuity"
	"github.com/dotcommander/weaver/internal/domain/fiction"
	"github.com/dotcommander/weaver/internal/prompts"
	"github.com/dotcommander/weaver/internal/retrieval"
	"github.com/dotcommander/weaver/internal/storage"
)

// Settings are the per-step generation knobs.
type Settings struct {
	BibleTemperature   float64
	OutlineTemperature float64
	ChapterTemperature float64
	SummaryTemperature float64
	RetrievalTopK      int
}

func DefaultSettings() Settings {
	return Settings{
		BibleTemperature:   0.8,
		OutlineTemperature: 0.8,
		ChapterTemperature: 0.75,
		SummaryTemperature: 0.5,
		RetrievalTopK:      2,
	}
}

// Progress is one observable step of a run. Manuscript is the finished
// chapters plus the chapter in progress; it is set only while chapters are
// being written.
type Progress struct {
	Message    string
	Chapter    int
	Total      int
	Manuscript string
}

// Observer receives progress on the pipeline's goroutine. It must not block
// for long.
type Observer func(Progress)

// Result is the outcome of Run or Resume.
type Result struct {
	Title            string
	InitialPrompt    string
	Bible            *fiction.StoryBible
	Outline          *fiction.NovelOutline
	Chapters         []string
	ForbiddenPhrases []string
	External         bool
	// Content is the imported document when External is set.
	Content string
	// Generated is the number of chapters written by this call.
	Generated int
}

// Manuscript is the finished text: the imported document for external
// state, otherwise the chapters in order.
func (r *Result) Manuscript() string {
	if r.External {
		return r.Content
	}
	return fiction.Manuscript(r.Chapters)
}

// ChapterRecords numbers and titles the generated chapters. External
// documents have none.
func (r *Result) ChapterRecords() []fiction.ChapterRecord {
	if r.External || r.Outline == nil {
		return nil
	}
	return fiction.Records(*r.Outline, r.Chapters)
}

// Orchestrator drives bible, outline and the chapter loop over a single
// store and retrieval index. It is not safe for concurrent runs.
type Orchestrator struct {
	gen      agent.Generator
	store    *checkpoints
	index    *retrieval.Index
	prompts  prompts.Config
	settings Settings
	logger   *slog.Logger
	observer Observer
	runID    string
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		o.observer = observer
	}
}

func WithPrompts(cfg prompts.Config) Option {
	return func(o *Orchestrator) {
		o.prompts = cfg
	}
}

func WithSettings(s Settings) Option {
	return func(o *Orchestrator) {
		o.settings = s
	}
}

// WithIndex shares an index with the caller, mainly so tests can look
// inside it.
func WithIndex(ix *retrieval.Index) Option {
	return func(o *Orchestrator) {
		o.index = ix
	}
}

func New(gen agent.Generator, store storage.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gen:      gen,
		index:    retrieval.NewIndex(),
		prompts:  prompts.Defaults(),
		settings: DefaultSettings(),
		logger:   slog.Default(),
		runID:    uuid.New().String(),
	}

	for _, opt := range opts {
		opt(o)
	}

	o.logger = o.logger.With("component", "orchestrator", "run_id", o.runID)
	o.store = newCheckpoints(store, o.logger)
	return o
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

// run is the in-memory state of one generation run.
type run struct {
	prompt   string
	bible    fiction.StoryBible
	outline  fiction.NovelOutline
	title    string
	chapters []string
	cont     continuity.State
}

func (r *run) result(generated int) *Result {
	return &Result{
		Title:            r.title,
		InitialPrompt:    r.prompt,
		Bible:            &r.bible,
		Outline:          &r.outline,
		Chapters:         r.chapters,
		ForbiddenPhrases: r.cont.ForbiddenPhrases,
		Generated:        generated,
	}
}

// Run starts a fresh run. Any earlier state is wiped first. pageCount <= 0
// means no length target.
func (o *Orchestrator) Run(ctx context.Context, prompt string, pageCount int) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &ValidationError{Field: "prompt", Message: "please enter a prompt for your novel"}
	}
	if pageCount < 0 {
		return nil, &ValidationError{Field: "page_count", Message: "must not be negative"}
	}

	start := time.Now()
	o.logger.Info("starting fresh run", "page_count", pageCount)

	if err := o.Reset(ctx); err != nil {
		return nil, phaseError(PhaseBible, 0, err)
	}

	r := &run{prompt: prompt}

	o.notify(Progress{Message: "Developing core story elements..."})
	bible, err := o.generateBible(ctx, prompt)
	if err != nil {
		return nil, phaseError(PhaseBible, 0, err)
	}
	r.bible = bible
	if err := o.store.put(ctx, KeyInitialPrompt, prompt); err != nil {
		return nil, phaseError(PhaseBible, 0, err)
	}
	if err := o.store.put(ctx, KeyStoryBible, bible); err != nil {
		return nil, phaseError(PhaseBible, 0, err)
	}

	o.notify(Progress{Message: "Crafting a brilliant outline..."})
	bibleText, err := prompts.SerializeBible(bible)
	if err != nil {
		return nil, phaseError(PhaseOutline, 0, err)
	}
	outline, err := o.generateOutline(ctx, prompt, bibleText, pageCount)
	if err != nil {
		return nil, phaseError(PhaseOutline, 0, err)
	}
	r.outline = outline
	r.title = outline.Title
	if err := o.store.put(ctx, KeyOutline, outline); err != nil {
		return nil, phaseError(PhaseOutline, 0, err)
	}
	if err := o.store.put(ctx, KeyNovelTitle, outline.Title); err != nil {
		return nil, phaseError(PhaseOutline, 0, err)
	}

	o.notify(Progress{Message: "Preparing the writing desk..."})
	o.index.Clear()
	o.index.Upsert(retrieval.TypeStoryBible, bibleText, retrieval.Metadata{Type: retrieval.TypeStoryBible})

	r.cont = continuity.New(outline.Summary)
	if err := o.store.put(ctx, KeyCurrentSummary, r.cont.Summary); err != nil {
		return nil, phaseError(PhaseIndex, 0, err)
	}
	if err := o.store.put(ctx, KeyFoldedChapters, 0); err != nil {
		return nil, phaseError(PhaseIndex, 0, err)
	}

	generated, err := o.writeChapters(ctx, r, 0)
	if err != nil {
		return nil, err
	}

	o.notify(Progress{Message: "Your first draft is complete!"})
	o.logger.Info("run complete",
		"title", r.title,
		"chapters", len(r.chapters),
		"duration_ms", time.Since(start).Milliseconds())
	return r.result(generated), nil
}

// Resume continues from persisted state. External documents are returned
// as-is; generated runs continue at the first unwritten chapter.
func (o *Orchestrator) Resume(ctx context.Context) (*Result, error) {
	o.notify(Progress{Message: "Resuming your masterpiece..."})
	snap := o.store.snapshot(ctx)

	if snap.External {
		title := snap.Title
		if title == "" {
			title = "External Document"
		}
		o.logger.Info("resumed external document", "title", title)
		return &Result{
			Title:            title,
			InitialPrompt:    snap.InitialPrompt,
			Content:          snap.Content,
			ForbiddenPhrases: snap.ForbiddenPhrases,
			External:         true,
		}, nil
	}

	if missing := snap.missingForResume(); len(missing) > 0 {
		return nil, &PhaseError{Phase: PhaseResume, Cause: &IncompleteStateError{Missing: missing}}
	}
	if bad := snap.unreadableForResume(); len(bad) > 0 {
		return nil, &PhaseError{Phase: PhaseResume, Cause: &IncompleteStateError{
			Reason: "unreadable " + strings.Join(bad, ", "),
		}}
	}
	if len(snap.Chapters) > len(snap.Outline.Chapters) {
		return nil, &PhaseError{Phase: PhaseResume, Cause: &IncompleteStateError{
			Reason: fmt.Sprintf("%d chapters saved for a %d-chapter outline", len(snap.Chapters), len(snap.Outline.Chapters)),
		}}
	}

	summary := snap.Summary
	if !snap.HasSummary || summary == "" {
		summary = snap.Outline.Summary
	}

	r := &run{
		prompt:   snap.InitialPrompt,
		bible:    *snap.Bible,
		outline:  *snap.Outline,
		title:    snap.Title,
		chapters: append([]string{}, snap.Chapters...),
		cont: continuity.State{
			Summary:          summary,
			ForbiddenPhrases: snap.ForbiddenPhrases,
		},
	}

	bibleText, err := prompts.SerializeBible(r.bible)
	if err != nil {
		return nil, phaseError(PhaseResume, 0, err)
	}
	o.index.Clear()
	o.index.Upsert(retrieval.TypeStoryBible, bibleText, retrieval.Metadata{Type: retrieval.TypeStoryBible})
	for i, text := range r.chapters {
		o.index.Upsert(chapterID(i+1), text, retrieval.Metadata{Type: retrieval.TypeChapter, Chapter: i + 1})
	}

	startAt := len(r.chapters)
	o.logger.Info("resuming run",
		"title", r.title,
		"chapters_done", startAt,
		"chapters_total", len(r.outline.Chapters))

	// the last saved chapter may have been persisted without its fold
	if snap.HasFolded && snap.Folded < startAt {
		logger := o.logger.With("chapter", startAt)
		logger.Info("folding chapter left unfolded by the previous run", "folded", snap.Folded)
		if err := o.fold(ctx, r, startAt, len(r.outline.Chapters), r.chapters[startAt-1], logger); err != nil {
			return nil, err
		}
	}

	generated, err := o.writeChapters(ctx, r, startAt)
	if err != nil {
		return nil, err
	}

	o.notify(Progress{Message: "Your draft is complete!"})
	return r.result(generated), nil
}

// Reset discards all persisted state and the retrieval index.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.index.Clear()
	if err := o.store.clear(ctx); err != nil {
		return fmt.Errorf("clearing state: %w", err)
	}
	return nil
}

// HasSavedState reports whether there is anything worth resuming.
func (o *Orchestrator) HasSavedState(ctx context.Context) bool {
	return o.store.has(ctx, KeyOutline) ||
		o.store.has(ctx, KeyNovelContent) ||
		o.store.has(ctx, KeyIsExternal)
}

// ImportExternal replaces all state with an externally supplied document.
// Such state is never continued by Resume.
func (o *Orchestrator) ImportExternal(ctx context.Context, title, text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "document is empty"}
	}
	if err := o.Reset(ctx); err != nil {
		return phaseError(PhaseImport, 0, err)
	}
	for _, kv := range []struct {
		key string
		v   any
	}{
		{KeyNovelTitle, title},
		{KeyNovelContent, text},
		{KeyIsExternal, true},
	} {
		if err := o.store.put(ctx, kv.key, kv.v); err != nil {
			return phaseError(PhaseImport, 0, err)
		}
	}
	o.logger.Info("imported external document", "title", title, "length", len(text))
	return nil
}

func (o *Orchestrator) generateBible(ctx context.Context, prompt string) (fiction.StoryBible, error) {
	text, err := o.prompts.StoryBiblePrompt(prompt)
	if err != nil {
		return fiction.StoryBible{}, err
	}
	return agent.Structured[fiction.StoryBible](ctx, o.gen, agent.StructuredRequest{
		Operation:   agent.OpStoryBible,
		Prompt:      text,
		Schema:      storyBibleSchema,
		Temperature: o.settings.BibleTemperature,
	})
}

func (o *Orchestrator) generateOutline(ctx context.Context, prompt, bibleText string, pageCount int) (fiction.NovelOutline, error) {
	text, err := o.prompts.OutlinePrompt(prompt, bibleText, pageCount)
	if err != nil {
		return fiction.NovelOutline{}, err
	}
	return agent.Structured[fiction.NovelOutline](ctx, o.gen, agent.StructuredRequest{
		Operation:   agent.OpOutline,
		Prompt:      text,
		Schema:      outlineSchema,
		Temperature: o.settings.OutlineTemperature,
	})
}

// writeChapters runs the chapter loop from index start to the end of the
// outline. Every completed chapter is persisted before the next begins.
func (o *Orchestrator) writeChapters(ctx context.Context, r *run, start int) (int, error) {
	total := len(r.outline.Chapters)
	generated := 0

	for i := start; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return generated, phaseError(PhaseChapter, i+1, err)
		}
		if err := o.writeChapter(ctx, r, i, total); err != nil {
			return generated, err
		}
		generated++
	}
	return generated, nil
}

func (o *Orchestrator) writeChapter(ctx context.Context, r *run, i, total int) error {
	ch := r.outline.Chapters[i]
	number := i + 1
	logger := o.logger.With("chapter", number)
	start := time.Now()

	o.notify(Progress{
		Message:    fmt.Sprintf("Penning Chapter %d of %d: %s", number, total, ch.Title),
		Chapter:    number,
		Total:      total,
		Manuscript: fiction.Manuscript(r.chapters),
	})

	retrieved := o.index.Query(prompts.ChapterQuery(ch), o.settings.RetrievalTopK)
	var previous *retrieval.Document
	if i > 0 {
		if doc, ok := o.index.Get(chapterID(i)); ok {
			previous = &doc
		}
	}

	prompt := prompts.ChapterPrompt(prompts.ChapterInput{
		Bible:            r.bible,
		Chapter:          ch,
		Index:            i,
		RunningSummary:   r.cont.Summary,
		Previous:         previous,
		Retrieved:        retrieved,
		ForbiddenPhrases: r.cont.ForbiddenPhrases,
	})

	stream, err := o.gen.GenerateStream(ctx, agent.StreamRequest{
		Operation:         agent.OpChapter,
		Prompt:            prompt,
		SystemInstruction: o.prompts.ChapterSystem,
		Temperature:       o.settings.ChapterTemperature,
	})
	if err != nil {
		logger.Error("chapter stream failed to open", "error", err)
		return phaseError(PhaseChapter, number, err)
	}

	finished := fiction.Manuscript(r.chapters)
	heading := fiction.ChapterHeading(i, ch.Title)
	var body strings.Builder
	chunks := 0
	_, err = agent.Drain(stream, func(chunk string) {
		body.WriteString(chunk)
		chunks++
		if o.observer != nil {
			o.observer(Progress{
				Message:    fmt.Sprintf("Penning Chapter %d of %d: %s", number, total, ch.Title),
				Chapter:    number,
				Total:      total,
				Manuscript: finished + heading + body.String(),
			})
		}
	})
	if err != nil {
		logger.Error("chapter stream interrupted", "chunks", chunks, "error", err)
		return phaseError(PhaseChapter, number, err)
	}

	text := fiction.FormatChapter(i, ch.Title, body.String())
	r.chapters = append(r.chapters, text)
	if err := o.store.put(ctx, KeyChapters, r.chapters); err != nil {
		r.chapters = r.chapters[:len(r.chapters)-1]
		return phaseError(PhaseChapter, number, err)
	}
	o.index.Upsert(chapterID(number), text, retrieval.Metadata{Type: retrieval.TypeChapter, Chapter: number})

	logger.Info("chapter written",
		"chunks", chunks,
		"length", len(text),
		"duration_ms", time.Since(start).Milliseconds())

	return o.fold(ctx, r, number, total, text, logger)
}

// fold runs the continuity update for chapter number and saves the new
// summary, the phrase set and the folded count.
func (o *Orchestrator) fold(ctx context.Context, r *run, number, total int, text string, logger *slog.Logger) error {
	o.notify(Progress{
		Message:    fmt.Sprintf("Auditing Chapter %d...", number),
		Chapter:    number,
		Total:      total,
		Manuscript: fiction.Manuscript(r.chapters),
	})

	update, err := agent.Structured[fiction.ContinuityUpdate](ctx, o.gen, agent.StructuredRequest{
		Operation:         agent.OpContinuity,
		Prompt:            prompts.SummaryPrompt(r.cont.Summary, text),
		SystemInstruction: o.prompts.SummarySystem,
		Schema:            continuitySchema,
		Temperature:       o.settings.SummaryTemperature,
	})
	if err != nil {
		logger.Error("continuity fold failed", "error", err)
		return phaseError(PhaseContinuity, number, err)
	}

	next := continuity.Apply(r.cont, update.Summary, update.IdentifiedAIisms)
	if err := o.store.put(ctx, KeyCurrentSummary, next.Summary); err != nil {
		return phaseError(PhaseContinuity, number, err)
	}
	if err := o.store.put(ctx, KeyForbiddenPhrases, next.ForbiddenPhrases); err != nil {
		return phaseError(PhaseContinuity, number, err)
	}
	if err := o.store.put(ctx, KeyFoldedChapters, number); err != nil {
		return phaseError(PhaseContinuity, number, err)
	}
	r.cont = next

	logger.Debug("continuity folded", "forbidden_phrases", len(next.ForbiddenPhrases))
	return nil
}

func (o *Orchestrator) notify(p Progress) {
	if o.observer != nil {
		o.observer(p)
	}
}

func chapterID(n int) string {
	return fmt.Sprintf("chapter_%d", n)
}
