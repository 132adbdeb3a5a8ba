package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Supported providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

const (
	defaultGeminiURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultGeminiModel = "gemini-2.5-flash"
	defaultOpenAIModel = "gpt-4o-mini"
	maxErrorBody       = 2048
)

// Client talks to a hosted model over HTTP. It makes exactly one request per
// call; retries belong to RetryClient.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	provider   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ Generator = (*Client)(nil)

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		if requestsPerMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

// WithAPIConfig selects the provider, endpoint and model. An empty baseURL
// keeps the provider's public endpoint.
func WithAPIConfig(provider, baseURL, model string) Option {
	return func(c *Client) {
		c.provider = provider
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		} else if provider == ProviderOpenAI {
			c.baseURL = defaultOpenAIURL
		}
		switch {
		case model != "":
			c.model = model
		case provider == ProviderOpenAI:
			c.model = defaultOpenAIModel
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "ai_client")
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		apiKey:   apiKey,
		baseURL:  defaultGeminiURL,
		model:    defaultGeminiModel,
		provider: ProviderGemini,
		httpClient: &http.Client{
			// chapters stream for minutes; the context bounds each call
			Transport: transport,
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		logger:  slog.Default().With("component", "ai_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("AI client initialized",
		"provider", c.provider,
		"base_url", c.baseURL,
		"model", c.model,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

// GenerateStructured sends one JSON-mode request and returns the model text.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest) (string, error) {
	requestID := uuid.NewString()
	start := time.Now()
	logger := c.logger.With("request_id", requestID, "operation", req.Operation)

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	var (
		endpoint string
		body     any
	)
	switch c.provider {
	case ProviderOpenAI:
		endpoint = c.baseURL + "/chat/completions"
		body = c.openAIBody(req.SystemInstruction, req.Prompt, req.Temperature, req.Schema, false)
	default:
		endpoint = c.geminiEndpoint("generateContent", false)
		body = geminiBody(req.SystemInstruction, req.Prompt, req.Temperature, req.Schema)
	}

	logger.Debug("sending structured request",
		"prompt_length", len(req.Prompt),
		"temperature", req.Temperature)

	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		logger.Error("structured request failed",
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err)
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrTransport, err)
	}

	var text string
	switch c.provider {
	case ProviderOpenAI:
		text, err = openAIText(respBody)
	default:
		text, err = geminiText(respBody)
	}
	if err != nil {
		logger.Error("failed to parse response", "error", err)
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	logger.Info("structured request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", len(text))

	return text, nil
}

// GenerateStream opens a server-sent-events stream of text fragments.
func (c *Client) GenerateStream(ctx context.Context, req StreamRequest) (Stream, error) {
	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "operation", req.Operation)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var (
		endpoint string
		body     any
		extract  func([]byte) (string, error)
	)
	switch c.provider {
	case ProviderOpenAI:
		endpoint = c.baseURL + "/chat/completions"
		body = c.openAIBody(req.SystemInstruction, req.Prompt, req.Temperature, nil, true)
		extract = openAIDelta
	default:
		endpoint = c.geminiEndpoint("streamGenerateContent", true)
		body = geminiBody(req.SystemInstruction, req.Prompt, req.Temperature, nil)
		extract = geminiText
	}

	logger.Debug("opening stream", "prompt_length", len(req.Prompt))

	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		logger.Error("stream request failed", "error", err)
		return nil, err
	}

	return newSSEStream(resp.Body, extract), nil
}

func (c *Client) geminiEndpoint(method string, sse bool) string {
	q := url.Values{}
	q.Set("key", c.apiKey)
	if sse {
		q.Set("alt", "sse")
	}
	return fmt.Sprintf("%s/models/%s:%s?%s", c.baseURL, url.PathEscape(c.model), method, q.Encode())
}

// post sends body as JSON and maps non-2xx statuses to StatusError. The
// caller owns the returned body.
func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider == ProviderOpenAI {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, NewStatusError(resp.StatusCode, string(excerpt))
	}
	return resp, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func geminiBody(system, prompt string, temperature float64, schema *Schema) map[string]any {
	genConfig := map[string]any{"temperature": temperature}
	if schema != nil {
		genConfig["responseMimeType"] = "application/json"
		genConfig["responseSchema"] = schema
	}
	body := map[string]any{
		"contents":         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		"generationConfig": genConfig,
	}
	if system != "" {
		body["systemInstruction"] = geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return body
}

// geminiText concatenates the text parts of the first candidate. It serves
// both whole responses and individual stream events.
func geminiText(data []byte) (string, error) {
	var response struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrTransport, err)
	}
	if len(response.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range response.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *Client) openAIBody(system, prompt string, temperature float64, schema *Schema, stream bool) map[string]any {
	messages := []map[string]string{}
	if system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": temperature,
	}
	if stream {
		body["stream"] = true
	}
	if schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "response",
				"schema": schema.jsonSchema(),
			},
		}
	}
	return body
}

func openAIText(data []byte) (string, error) {
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &response); err != nil {
		return "", fmt.Errorf("%w: parsing response: %v", ErrTransport, err)
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Message.Content, nil
}

func openAIDelta(data []byte) (string, error) {
	var event struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return "", fmt.Errorf("%w: parsing stream event: %v", ErrTransport, err)
	}
	if len(event.Choices) == 0 {
		return "", nil
	}
	return event.Choices[0].Delta.Content, nil
}

// sseStream reads "data:" events off a response body. Events without text
// are skipped; "[DONE]" or EOF ends the stream.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	extract func([]byte) (string, error)
	done    bool
}

func newSSEStream(body io.ReadCloser, extract func([]byte) (string, error)) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &sseStream{body: body, scanner: scanner, extract: extract}
}

func (s *sseStream) Next() (string, bool, error) {
	if s.done {
		return "", true, nil
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			return "", true, nil
		}
		chunk, err := s.extract([]byte(data))
		if err != nil {
			return "", false, err
		}
		if chunk == "" {
			continue
		}
		return chunk, false, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", false, fmt.Errorf("%w: reading stream: %v", ErrTransport, err)
	}
	s.done = true
	return "", true, nil
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

// Drain reads a stream to the end, handing each fragment to onChunk, and
// returns the full text.
func Drain(stream Stream, onChunk func(string)) (string, error) {
	defer stream.Close()
	var sb strings.Builder
	for {
		chunk, done, err := stream.Next()
		if err != nil {
			return sb.String(), err
		}
		if done {
			return sb.String(), nil
		}
		sb.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}
