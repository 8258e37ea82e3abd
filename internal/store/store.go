// Package store tracks asynchronous pipeline runs by correlation id.
package store

import (
	"context"
	"errors"

	"github.com/adreel/api/internal/model"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already exists")
)

// RunStore is a key-value store of run states. Every write replaces the whole
// value; Create additionally claims the id so only one run can own it.
type RunStore interface {
	Create(ctx context.Context, state *model.RunState) error
	Put(ctx context.Context, state *model.RunState) error
	Get(ctx context.Context, runID string) (*model.RunState, error)
}
