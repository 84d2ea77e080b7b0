// Package event defines the structured decision stream emitted by a run and
// the sinks that consume it.
package event

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

// Component names the part of the pipeline that made a decision.
type Component string

// Pipeline components.
const (
	ComponentRegistry Component = "registry"
	ComponentCursor   Component = "cursor"
	ComponentFetcher  Component = "fetcher"
	ComponentDetector Component = "detector"
	ComponentNotifier Component = "notifier"
	ComponentRun      Component = "run"
)

// Decision is the step being narrated.
type Decision string

// Decisions.
const (
	DecisionLoad    Decision = "load"
	DecisionName    Decision = "name"
	DecisionFetch   Decision = "fetch"
	DecisionCompare Decision = "compare"
	DecisionNotify  Decision = "notify"
	DecisionPersist Decision = "persist"
	DecisionSummary Decision = "summary"
)

// Outcome is the result of a decision.
type Outcome string

// Outcomes.
const (
	OutcomeOK        Outcome = "ok"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	OutcomeNew       Outcome = "new"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeStale     Outcome = "stale"
	OutcomeSent      Outcome = "sent"
	OutcomeConfig    Outcome = "config"
	OutcomeCache     Outcome = "cache"
	OutcomeFetched   Outcome = "fetched"
	OutcomeUnknown   Outcome = "unknown"
)

// Event is a single decision taken during a run.
type Event struct {
	Time      time.Time
	RunID     string
	Component Component
	SourceID  string
	Category  model.Category
	Decision  Decision
	Outcome   Outcome
	ItemID    string
	Detail    string
	Count     int
	Err       error
}

// Sink consumes events.
type Sink interface {
	Emit(e Event)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// LogSink renders events as structured log records.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink returns a sink writing to log.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// Emit implements Sink.
func (s *LogSink) Emit(e Event) {
	attrs := []slog.Attr{
		slog.String("component", string(e.Component)),
		slog.String("decision", string(e.Decision)),
		slog.String("outcome", string(e.Outcome)),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.SourceID != "" {
		attrs = append(attrs, slog.String("source", e.SourceID))
	}
	if e.Category != "" {
		attrs = append(attrs, slog.String("category", string(e.Category)))
	}
	if e.ItemID != "" {
		attrs = append(attrs, slog.String("item", e.ItemID))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}
	if e.Count != 0 || e.Decision == DecisionSummary {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	s.log.LogAttrs(context.Background(), level(e), message(e), attrs...)
}

func level(e Event) slog.Level {
	switch {
	case e.Outcome == OutcomeFailed:
		return slog.LevelWarn
	case e.Decision == DecisionCompare && e.Outcome == OutcomeUnchanged:
		return slog.LevelDebug
	case e.Decision == DecisionFetch && e.Outcome == OutcomeOK:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func message(e Event) string {
	switch e.Decision {
	case DecisionSummary:
		return "run finished"
	case DecisionNotify:
		if e.Outcome == OutcomeSent {
			return "notification sent"
		}
		return "notification failed"
	default:
		return string(e.Component) + " " + string(e.Decision)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Event, len(r.events))
	copy(cp, r.events)
	return cp
}

// Filter returns recorded events matching the decision and outcome.
// An empty outcome matches any outcome.
func (r *Recorder) Filter(d Decision, o Outcome) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Decision == d && (o == "" || e.Outcome == o) {
			out = append(out, e)
		}
	}
	return out
}
