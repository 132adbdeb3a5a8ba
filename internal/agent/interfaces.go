package agent

import "context"

// StructuredRequest asks for a single JSON object conforming to Schema.
type StructuredRequest struct {
	// Operation names the step for logging ("story_bible", "outline", ...).
	Operation         string
	Prompt            string
	SystemInstruction string
	Schema            *Schema
	Temperature       float64
}

// StreamRequest asks for open-ended text delivered in fragments.
type StreamRequest struct {
	Operation         string
	Prompt            string
	SystemInstruction string
	Temperature       float64
}

// Generator is the text-generation capability the pipeline depends on.
type Generator interface {
	// GenerateStructured returns the raw JSON text of the model's answer.
	GenerateStructured(ctx context.Context, req StructuredRequest) (string, error)
	GenerateStream(ctx context.Context, req StreamRequest) (Stream, error)
}

// Stream is a finite, non-restartable, pull-based sequence of text
// fragments in emission order. Callers must Close it.
type Stream interface {
	// Next returns the next fragment. done is true once the stream is
	// exhausted; chunk is empty in that case.
	Next() (chunk string, done bool, err error)
	Close() error
}

// Operation names used by the pipeline.
const (
	OpStoryBible = "story_bible"
	OpOutline    = "outline"
	OpChapter    = "chapter"
	OpContinuity = "continuity"
)
