// Package scheduler runs polling passes over all configured channels and
// decides, per channel and category, whether to notify and advance the
// cursor.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ylqcxwl/youtube-notifier/internal/detect"
	"github.com/ylqcxwl/youtube-notifier/internal/event"
	"github.com/ylqcxwl/youtube-notifier/internal/fetcher"
	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// Registry provides the tracked sources and stores discovered names.
type Registry interface {
	Load() ([]*model.Source, error)
	Persist(sources []*model.Source) (int, error)
}

// CursorStore loads and saves cursor state.
type CursorStore interface {
	Load(ctx context.Context, sources []*model.Source) model.State
	Save(ctx context.Context, state model.State) error
}

// Fetcher retrieves channel names and head items.
type Fetcher interface {
	Categories() []model.Category
	Name(ctx context.Context, channelID string) (string, error)
	Latest(ctx context.Context, channelID string, cat model.Category) (*model.Item, error)
}

// Notifier delivers a notification; nil means delivered.
type Notifier interface {
	Send(ctx context.Context, item model.Item, sourceName string) error
}

// Summary describes a finished pass.
type Summary struct {
	RunID     string
	Sources   int
	Notified  int
	Failed    int
	Backfills int
	SaveErr   error
}

// Scheduler drives polling passes.
type Scheduler struct {
	registry Registry
	cursors  CursorStore
	fetcher  Fetcher
	notifier Notifier
	events   event.Sink
	log      *slog.Logger
	tick     time.Duration
	guard    bool
	afterRun func(Summary)
	now      func() time.Time
}

// New creates a Scheduler. The ordering guard is enabled by default.
func New(reg Registry, cursors CursorStore, f Fetcher, n Notifier, events event.Sink, log *slog.Logger) *Scheduler {
	return &Scheduler{
		registry: reg,
		cursors:  cursors,
		fetcher:  f,
		notifier: n,
		events:   events,
		log:      log,
		tick:     15 * time.Minute,
		guard:    true,
		now:      time.Now,
	}
}

// SetTickInterval overrides the default 15-minute interval of Run.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// SetOrderingGuard toggles the publish-time check on unseen items.
func (s *Scheduler) SetOrderingGuard(on bool) {
	s.guard = on
}

// OnRunFinished registers fn to be called after every pass.
func (s *Scheduler) OnRunFinished(fn func(Summary)) {
	s.afterRun = fn
}

// Run performs a pass immediately and then one per tick, blocking until ctx
// is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// pass carries the per-run context through the pipeline.
type pass struct {
	id      string
	summary Summary
}

// RunOnce performs a single pass over all sources. Cancelling ctx stops
// processing before the next source; state gathered so far is still saved.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	p := &pass{id: uuid.NewString()}
	p.summary.RunID = p.id

	sources, err := s.registry.Load()
	if err != nil {
		s.emit(p, event.Event{Component: event.ComponentRegistry, Decision: event.DecisionLoad, Outcome: event.OutcomeFailed, Err: err})
	}
	if len(sources) == 0 {
		if err == nil {
			s.emit(p, event.Event{Component: event.ComponentRegistry, Decision: event.DecisionLoad, Outcome: event.OutcomeEmpty})
		}
		return s.finish(p)
	}
	s.emit(p, event.Event{Component: event.ComponentRegistry, Decision: event.DecisionLoad, Outcome: event.OutcomeOK, Count: len(sources)})

	state := s.cursors.Load(ctx, sources)

	for _, src := range sources {
		if ctx.Err() != nil {
			s.log.Info("run interrupted, saving progress", "run_id", p.id, "error", ctx.Err())
			break
		}
		s.processSource(ctx, p, src, state)
		p.summary.Sources++
	}

	// Persisting must survive cancellation of the pass itself.
	saveCtx := context.WithoutCancel(ctx)

	n, err := s.registry.Persist(sources)
	if err != nil {
		s.emit(p, event.Event{Component: event.ComponentRegistry, Decision: event.DecisionPersist, Outcome: event.OutcomeFailed, Err: err})
	} else if n > 0 {
		p.summary.Backfills = n
		s.emit(p, event.Event{Component: event.ComponentRegistry, Decision: event.DecisionPersist, Outcome: event.OutcomeOK, Count: n})
	}

	if err := s.cursors.Save(saveCtx, state); err != nil {
		p.summary.SaveErr = err
		s.emit(p, event.Event{Component: event.ComponentCursor, Decision: event.DecisionPersist, Outcome: event.OutcomeFailed, Err: err})
	} else {
		s.emit(p, event.Event{Component: event.ComponentCursor, Decision: event.DecisionPersist, Outcome: event.OutcomeOK, Count: len(state)})
	}

	return s.finish(p)
}

func (s *Scheduler) finish(p *pass) Summary {
	s.emit(p, event.Event{Component: event.ComponentRun, Decision: event.DecisionSummary, Outcome: event.OutcomeOK, Count: p.summary.Notified})
	if s.afterRun != nil {
		s.afterRun(p.summary)
	}
	return p.summary
}

func (s *Scheduler) processSource(ctx context.Context, p *pass, src *model.Source, state model.State) {
	rec := state[src.ID]
	if rec == nil {
		rec = &model.Record{}
		state[src.ID] = rec
	}

	name := s.resolveName(ctx, p, src, rec)

	for _, cat := range s.fetcher.Categories() {
		s.processCategory(ctx, p, src, name, rec, cat)
	}
}

// resolveName picks the display name: configured, then cached, then
// fetched, then UnknownName. Configured and fetched names are written to
// the cache.
func (s *Scheduler) resolveName(ctx context.Context, p *pass, src *model.Source, rec *model.Record) string {
	e := event.Event{Component: event.ComponentFetcher, SourceID: src.ID, Decision: event.DecisionName}

	switch {
	case src.Name != "" && src.Origin == model.OriginConfig:
		if rec.ChannelName != src.Name {
			e.Detail = "cache updated"
			rec.ChannelName = src.Name
		}
		e.Outcome = event.OutcomeConfig
		s.emit(p, e)
		return src.Name
	case src.Name != "":
		e.Outcome = event.OutcomeCache
		s.emit(p, e)
		return src.Name
	}

	name, err := s.fetcher.Name(ctx, src.ID)
	if err != nil {
		e.Outcome = event.OutcomeUnknown
		e.Err = err
		s.emit(p, e)
		return model.UnknownName
	}

	src.Name = name
	src.Origin = model.OriginFetched
	src.Discovered = true
	rec.ChannelName = name
	e.Outcome = event.OutcomeFetched
	e.Detail = name
	s.emit(p, e)
	return name
}

func (s *Scheduler) processCategory(ctx context.Context, p *pass, src *model.Source, name string, rec *model.Record, cat model.Category) {
	base := event.Event{SourceID: src.ID, Category: cat}

	item, err := s.fetcher.Latest(ctx, src.ID, cat)
	if err != nil {
		e := base
		e.Component, e.Decision = event.ComponentFetcher, event.DecisionFetch
		if errors.Is(err, fetcher.ErrNoItems) {
			e.Outcome = event.OutcomeEmpty
		} else {
			e.Outcome = event.OutcomeFailed
			e.Err = err
		}
		s.emit(p, e)
		return
	}
	item.Category = cat

	e := base
	e.Component, e.Decision, e.Outcome, e.ItemID = event.ComponentFetcher, event.DecisionFetch, event.OutcomeOK, item.ID
	s.emit(p, e)

	cursor := rec.Cursor(cat)
	e = base
	e.Component, e.Decision, e.ItemID = event.ComponentDetector, event.DecisionCompare, item.ID
	switch detect.Check(*item, cursor, s.guard) {
	case detect.Seen:
		e.Outcome = event.OutcomeUnchanged
		s.emit(p, e)
		return
	case detect.Stale:
		e.Outcome = event.OutcomeStale
		e.Detail = "previous " + cursor.ID
		s.emit(p, e)
		return
	}
	e.Outcome = event.OutcomeNew
	s.emit(p, e)

	e = base
	e.Component, e.Decision, e.ItemID = event.ComponentNotifier, event.DecisionNotify, item.ID
	if err := s.notifier.Send(ctx, *item, name); err != nil {
		p.summary.Failed++
		e.Outcome = event.OutcomeFailed
		e.Err = err
		s.emit(p, e)
		return
	}

	rec.Advance(*item)
	p.summary.Notified++
	e.Outcome = event.OutcomeSent
	e.Detail = item.Title
	s.emit(p, e)
}

func (s *Scheduler) emit(p *pass, e event.Event) {
	e.Time = s.now()
	e.RunID = p.id
	s.events.Emit(e)
}
