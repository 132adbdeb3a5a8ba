package storage

import (
	"context"
	"encoding/json"
)

// PutJSON stores v under key as JSON. Strings, records and slices all go
// through the same path.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return opError("encode", key, err)
	}
	return s.Put(ctx, key, data)
}

// GetJSON loads key into a value of type T. found is false when the key is
// absent; a payload that does not decode into T is reported as an error.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool, error) {
	var zero T
	data, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, opError("decode", key, err)
	}
	return v, true, nil
}
