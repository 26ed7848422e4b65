package syncer

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/chutedev/chute/internal/envelope"
	"github.com/chutedev/chute/internal/queue"
)

func rejectedRecord(eventID, lastError string, retries int) queue.Record {
	return queue.Record{
		Event:      &envelope.Event{EventID: eventID},
		Status:     queue.StatusRejected,
		RetryCount: retries,
		LastError:  lastError,
	}
}

func TestBuildFailureReport_Golden(t *testing.T) {
	rep := &Report{
		GeneratedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Outcome:     OutcomeCompleted,
		Total:       5,
		Synced:      2,
		Duplicates:  1,
		Failed:      2,
		Failures: []Failure{
			{
				EventID:  "01HZA0000000000000000000A1",
				Error:    "missing required field error_type",
				Category: CategorySchemaMismatch,
			},
			{
				EventID:  "01HZA0000000000000000000B2",
				Error:    "token expired",
				Category: CategoryAuthExpired,
			},
		},
	}

	// One rejection retained from an earlier sync.
	rejected := []queue.Record{
		rejectedRecord("01HZA0000000000000000000C3", "internal server error", 4),
	}

	out := BuildFailureReport(rep, rejected)

	g := goldie.New(t)
	g.AssertJson(t, "failure_report", out)
}

func TestBuildFailureReport_DeduplicatesQueueResidue(t *testing.T) {
	rep := &Report{
		GeneratedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Total:       1,
		Failed:      1,
		Failures: []Failure{
			{EventID: "01A", Error: "missing field", Category: CategorySchemaMismatch},
		},
	}

	// The same event also sits rejected in the queue; it must not be
	// listed twice.
	rejected := []queue.Record{rejectedRecord("01A", "missing field", 1)}

	out := BuildFailureReport(rep, rejected)
	assert.Len(t, out.Failures, 1)
	assert.Equal(t, 1, out.Summary.Failed)
	assert.Equal(t, 1, out.Summary.Categories[CategorySchemaMismatch])
}

func TestBuildFailureReport_EmptySync(t *testing.T) {
	rep := &Report{
		GeneratedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Outcome:     OutcomeEmpty,
	}

	out := BuildFailureReport(rep, nil)
	assert.Zero(t, out.Summary.Failed)
	assert.Empty(t, out.Failures)
	assert.Equal(t, "2026-03-14T10:00:00Z", out.GeneratedAt)
}

func TestBuildFailureReport_CategorizesStoredReasons(t *testing.T) {
	rep := &Report{GeneratedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	rejected := []queue.Record{
		rejectedRecord("01A", "service unavailable", 2),
		rejectedRecord("01B", "no idea what happened", 1),
	}

	out := BuildFailureReport(rep, rejected)
	assert.Equal(t, 1, out.Summary.Categories[CategoryServerError])
	assert.Equal(t, 1, out.Summary.Categories[CategoryUnknown])
	assert.Equal(t, 2, out.Summary.Failed)
	assert.Equal(t, 2, out.Summary.TotalEvents,
		"queue residue still counts toward the total")
}
