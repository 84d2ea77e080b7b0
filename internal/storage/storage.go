// Package storage defines the cursor persistence interface and its
// implementations.
package storage

import (
	"context"
	"errors"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// ErrCorrupt is returned when stored state exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt state")

// Backend loads and saves the whole cursor state.
type Backend interface {
	Load(ctx context.Context) (model.State, error)
	Save(ctx context.Context, state model.State) error
	Close() error
}
