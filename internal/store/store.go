package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Store is the narrow persistence contract the engine runs on. Records are
// opaque JSON documents grouped into named sets; counters are integer fields
// inside a record, mutated atomically per key.
//
// Implementations must guarantee:
//   - AddAndGet is linearizable per (set, key) and creates the record when
//     absent, treating the field as zero.
//   - Get returns (nil, nil) for an absent key.
//   - ScanAll visits every record at least once, in no particular order, and
//     stops on the first visit error.
//
// Every call honours the deadline carried by ctx.
type Store interface {
	Put(ctx context.Context, set, key string, rec []byte) error
	Get(ctx context.Context, set, key string) ([]byte, error)
	Delete(ctx context.Context, set, key string) error
	ScanAll(ctx context.Context, set string, visit func(key string, rec []byte) error) error
	AddAndGet(ctx context.Context, set, key, field string, delta int64) (int64, error)
	Close()
}

// StoreError wraps a failed store operation with its coordinates.
type StoreError struct {
	Op  string
	Set string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Set, e.Err)
	}
	return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Set, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// GetJSON loads a record and unmarshals it into v. Returns found=false when
// the key is absent. A record that no longer parses is treated as absent —
// optional reads must not wedge the pipeline on one corrupt record.
func GetJSON(ctx context.Context, s Store, set, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, set, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Warn().Str("set", set).Str("key", key).Err(err).
			Msg("corrupt record treated as absent")
		return false, nil
	}
	return true, nil
}

// PutJSON marshals v and stores it under (set, key).
func PutJSON(ctx context.Context, s Store, set, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &StoreError{Op: "put", Set: set, Key: key, Err: err}
	}
	return s.Put(ctx, set, key, raw)
}
