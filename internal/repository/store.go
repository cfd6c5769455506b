package repository

import (
	"context"
	"encoding/json"
)

// Store keeps ordered JSON documents per household and collection.
// Replace swaps the whole collection; Append adds to its end. Update
// replaces the collection with fn's result atomically with respect to
// other writers of the same collection.
type Store interface {
	Replace(ctx context.Context, household, collection string, docs []json.RawMessage) error
	Append(ctx context.Context, household, collection string, docs []json.RawMessage) error
	Update(ctx context.Context, household, collection string, fn func([]json.RawMessage) ([]json.RawMessage, error)) error
	List(ctx context.Context, household, collection string) ([]json.RawMessage, error)
	Ping(ctx context.Context) error
	Close() error
}
