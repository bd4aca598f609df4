// Package session caches per-conversation wizard records between Frame requests.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned by Load when a cached entry no longer decodes into the record type.
var ErrCorrupt = errors.New("session entry corrupt")

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = time.Hour

// Store is a TTL key/value cache. Missing and expired keys report ok=false
// without an error; every Put resets the entry's expiry.
type Store interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// MarkOnce records key and reports whether this call was the first to do so
	// within ttl.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (first bool, err error)
}

// Key builds the cache key of a flow's session.
func Key(flow, sessionID string) string {
	return flow + ":" + sessionID
}

// Load decodes the entry at key into v. It reports ok=false when the key is
// missing or expired, and ErrCorrupt when the stored JSON does not fit v.
func Load[T any](ctx context.Context, s Store, key string, v *T) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get session %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return false, fmt.Errorf("decode session %s: %w: %v", key, ErrCorrupt, err)
	}
	return true, nil
}

// Save encodes v as JSON and stores it under key for ttl.
func Save(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	if err := s.Put(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("put session %s: %w", key, err)
	}
	return nil
}
