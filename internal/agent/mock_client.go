package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MockReply is one scripted answer. Err takes precedence over Text; for
// streams, Text is split on "|" into fragments. StreamErr makes a stream
// fail after its fragments have been delivered.
type MockReply struct {
	Text      string
	Err       error
	StreamErr error
}

// MockCall records a request the mock received.
type MockCall struct {
	Operation string
	Prompt    string
}

// MockClient answers from per-operation scripts and falls back to canned
// content once a script runs out. It backs the "mock" provider and tests.
type MockClient struct {
	mu       sync.Mutex
	chapters int
	scripts  map[string][]MockReply
	calls    []MockCall
	streamed map[string]int
}

var _ Generator = (*MockClient)(nil)

// NewMockClient returns a mock whose canned outline has the given number of
// chapters.
func NewMockClient(chapters int) *MockClient {
	if chapters < 1 {
		chapters = 3
	}
	return &MockClient{
		chapters: chapters,
		scripts:  make(map[string][]MockReply),
		streamed: make(map[string]int),
	}
}

// Script queues replies for an operation, consumed in order.
func (m *MockClient) Script(operation string, replies ...MockReply) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[operation] = append(m.scripts[operation], replies...)
	return m
}

// Calls returns a copy of the recorded requests.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts recorded requests for one operation.
func (m *MockClient) CallCount(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

func (m *MockClient) next(operation, prompt string) (MockReply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Operation: operation, Prompt: prompt})
	queue := m.scripts[operation]
	if len(queue) == 0 {
		return MockReply{}, false
	}
	m.scripts[operation] = queue[1:]
	return queue[0], true
}

func (m *MockClient) GenerateStructured(ctx context.Context, req StructuredRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if reply, ok := m.next(req.Operation, req.Prompt); ok {
		if reply.Err != nil {
			return "", reply.Err
		}
		return reply.Text, nil
	}
	return m.canned(req.Operation)
}

func (m *MockClient) GenerateStream(ctx context.Context, req StreamRequest) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reply, ok := m.next(req.Operation, req.Prompt); ok {
		if reply.Err != nil {
			return nil, reply.Err
		}
		if reply.StreamErr != nil {
			return NewFailingStream(reply.StreamErr, strings.Split(reply.Text, "|")...), nil
		}
		return NewSliceStream(strings.Split(reply.Text, "|")...), nil
	}

	m.mu.Lock()
	m.streamed[req.Operation]++
	n := m.streamed[req.Operation]
	m.mu.Unlock()

	return NewSliceStream(
		fmt.Sprintf("The tide came in slowly on day %d. ", n),
		"Mara counted the steps of the tower again, ",
		"and the lamp answered with its patient turning.",
	), nil
}

func (m *MockClient) canned(operation string) (string, error) {
	var v any
	switch operation {
	case OpStoryBible:
		v = map[string]any{
			"characters": []map[string]string{
				{"name": "Mara", "description": "A keeper who has not left the island in nine years."},
				{"name": "Tobias", "description": "A supply boatman with a debt he will not name."},
			},
			"conflict":      "The lamp fails on nights no storm can explain.",
			"setting":       "A lighthouse on a tidal island off a northern coast.",
			"theme":         "Duty against the wish to be seen.",
			"voiceAndStyle": "Close third person, spare and salt-worn.",
			"dialogueStyle": "Clipped, full of things left unsaid.",
			"conclusion":    "Mara lets the lamp go dark by choice.",
			"originality":   "The sea is never the antagonist.",
		}
	case OpOutline:
		chapters := make([]map[string]string, m.chapters)
		for i := range chapters {
			chapters[i] = map[string]string{
				"chapter_title":   fmt.Sprintf("Tide %d", i+1),
				"chapter_summary": fmt.Sprintf("The lamp falters for the %d time.", i+1),
			}
		}
		v = map[string]any{
			"title":    "The Last Lamp",
			"summary":  "A keeper's isolation unravels one dark night at a time.",
			"chapters": chapters,
		}
	case OpContinuity:
		v = map[string]any{
			"summary":          "Mara keeps the lamp and keeps her silence.",
			"identifiedAIisms": []string{"a testament to"},
		}
	default:
		return "", fmt.Errorf("mock: no canned response for operation %q", operation)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SliceStream replays fixed fragments, then ends or fails with err.
type SliceStream struct {
	chunks []string
	pos    int
	err    error
	closed bool
}

func NewSliceStream(chunks ...string) *SliceStream {
	return &SliceStream{chunks: chunks}
}

// NewFailingStream delivers chunks and then returns err instead of ending.
func NewFailingStream(err error, chunks ...string) *SliceStream {
	return &SliceStream{chunks: chunks, err: err}
}

func (s *SliceStream) Next() (string, bool, error) {
	for !s.closed && s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		if c != "" {
			return c, false, nil
		}
	}
	if s.err != nil && !s.closed {
		return "", false, s.err
	}
	return "", true, nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}
