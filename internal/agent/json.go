package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CleanJSONResponse strips markdown code fences and any prose around the
// outermost JSON object.
func CleanJSONResponse(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		response = response[start : end+1]
	}

	return strings.TrimSpace(response)
}

// Decode parses a structured answer into T and checks it against T's
// validate tags. Blank text is ErrEmptyResponse; anything that does not
// parse or validate is ErrSchemaMismatch.
func Decode[T any](raw string) (T, error) {
	var v T
	if strings.TrimSpace(raw) == "" {
		return v, ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(CleanJSONResponse(raw)), &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return v, nil
}

// Structured runs req through g and decodes the answer into T.
func Structured[T any](ctx context.Context, g Generator, req StructuredRequest) (T, error) {
	raw, err := g.GenerateStructured(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}
