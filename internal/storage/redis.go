package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each key as a plain string value under
// <prefix><key>. Clear scans the whole prefix so keys left by older runs
// are removed as well.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps client. prefix defaults to "weaver:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "weaver:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis dials addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client, prefix), nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return opError("put", key, ErrInvalidKey)
	}
	return opError("put", key, s.client.Set(ctx, s.key(key), value, 0).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, opError("get", key, err)
	}
	return data, true, nil
}

func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, matchPrefix(s.prefix), 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	raw, err := s.scan(ctx)
	if err != nil {
		return nil, opError("keys", "", err)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k[len(s.prefix):])
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	raw, err := s.scan(ctx)
	if err != nil {
		return opError("clear", "", err)
	}
	if len(raw) == 0 {
		return nil
	}
	return opError("clear", "", s.client.Del(ctx, raw...).Err())
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// matchPrefix builds a SCAN pattern matching every key that starts with
// prefix, escaping the glob metacharacters in prefix itself.
func matchPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
