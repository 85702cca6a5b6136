// Package usage defines the completion usage ledger. Every finished
// completion, buffered or streamed, is recorded with its token counts so
// operators can account for upstream spend per model.
package usage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("usage record not found")

// Record is one finished completion.
type Record struct {
	// ID is the gateway completion id ("chatcmpl-..."), unique per record.
	ID string `json:"id"`

	// Model is the full model identifier in "client:name" form.
	Model string `json:"model"`

	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Stream       bool `json:"stream"`

	CreatedAt time.Time `json:"created_at"`
}

// Store persists completion usage records.
type Store interface {
	// Save records one finished completion.
	Save(ctx context.Context, rec Record) error

	// List returns up to limit records, newest first. limit <= 0 means
	// a store-chosen default.
	List(ctx context.Context, limit int) ([]Record, error)

	// Close releases store resources.
	Close()
}
