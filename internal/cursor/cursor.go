// Package cursor wraps a storage backend with the failure semantics of a
// run: a broken store never stops polling.
package cursor

import (
	"context"
	"log/slog"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
	"github.com/ylqcxwl/youtube-notifier/internal/storage"
)

// Store loads and saves per-source cursor records.
type Store struct {
	backend storage.Backend
	log     *slog.Logger
}

// New creates a Store over backend.
func New(backend storage.Backend, log *slog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// Load returns the stored state with a record for every source. An
// unreadable or corrupt store is logged and treated as empty. Sources
// without a configured name pick up the cached one.
func (s *Store) Load(ctx context.Context, sources []*model.Source) model.State {
	state, err := s.backend.Load(ctx)
	if err != nil {
		s.log.Warn("cursor store unreadable, starting empty", "error", err)
		state = model.State{}
	}

	for _, src := range sources {
		rec, ok := state[src.ID]
		if !ok || rec == nil {
			rec = &model.Record{}
			state[src.ID] = rec
			s.log.Debug("initialized cursor", "source", src.ID)
		}
		if src.Name == "" && rec.ChannelName != "" {
			src.Name = rec.ChannelName
			src.Origin = model.OriginCache
		}
	}
	return state
}

// Save persists the full state. The error is logged before it is returned;
// callers only need it for reporting.
func (s *Store) Save(ctx context.Context, state model.State) error {
	if err := s.backend.Save(ctx, state); err != nil {
		s.log.Error("save cursor state", "error", err)
		return err
	}
	return nil
}
