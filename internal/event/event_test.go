package event

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ylqcxwl/youtube-notifier/internal/model"
)

func TestLogSink(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  []string
	}{
		{
			name: "notification sent",
			event: Event{
				RunID: "run-1", Component: ComponentNotifier, SourceID: "UC1",
				Category: model.CategoryShorts, Decision: DecisionNotify, Outcome: OutcomeSent, ItemID: "vid",
			},
			want: []string{"level=INFO", `msg="notification sent"`, "run_id=run-1", "source=UC1", "category=shorts", "item=vid"},
		},
		{
			name: "fetch failure is a warning",
			event: Event{
				Component: ComponentFetcher, SourceID: "UC2", Decision: DecisionFetch,
				Outcome: OutcomeFailed, Err: errors.New("boom"),
			},
			want: []string{"level=WARN", `msg="fetcher fetch"`, "outcome=failed", "error=boom"},
		},
		{
			name:  "summary always carries count",
			event: Event{Component: ComponentRun, Decision: DecisionSummary, Outcome: OutcomeOK},
			want:  []string{`msg="run finished"`, "count=0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			NewLogSink(log).Emit(tt.event)

			got := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("log line missing %q, got:\n%s", w, got)
				}
			}
		})
	}
}

func TestLogSinkDebugDecisions(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	NewLogSink(log).Emit(Event{Component: ComponentDetector, Decision: DecisionCompare, Outcome: OutcomeUnchanged})

	if buf.Len() != 0 {
		t.Errorf("unchanged comparison should log at debug, got:\n%s", buf.String())
	}
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	sink := Multi{a, Discard, b}

	sink.Emit(Event{Decision: DecisionFetch, Outcome: OutcomeOK})
	sink.Emit(Event{Decision: DecisionNotify, Outcome: OutcomeSent, ItemID: "x"})
	sink.Emit(Event{Decision: DecisionNotify, Outcome: OutcomeFailed, ItemID: "y"})

	ignoreTime := cmpopts.IgnoreFields(Event{}, "Time")
	if diff := cmp.Diff(a.Events(), b.Events(), ignoreTime); diff != "" {
		t.Errorf("recorders diverged (-a +b):\n%s", diff)
	}

	want := []Event{{Decision: DecisionNotify, Outcome: OutcomeSent, ItemID: "x"}}
	if diff := cmp.Diff(want, a.Filter(DecisionNotify, OutcomeSent), ignoreTime); diff != "" {
		t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, len(a.Filter(DecisionNotify, ""))); diff != "" {
		t.Errorf("Filter() any-outcome count mismatch (-want +got):\n%s", diff)
	}
}
