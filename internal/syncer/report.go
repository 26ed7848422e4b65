package syncer

import (
	"time"

	"github.com/chutedev/chute/internal/queue"
)

// FailureReport is the structured JSON projection of sync failures:
// the last sync's reconciliation results plus whatever is still
// retained in the queue. It carries no independent state.
type FailureReport struct {
	GeneratedAt string        `json:"generated_at"`
	Summary     ReportSummary `json:"summary"`
	Failures    []Failure     `json:"failures"`
}

// ReportSummary aggregates the failure counts.
type ReportSummary struct {
	TotalEvents int              `json:"total_events"`
	Synced      int              `json:"synced"`
	Duplicates  int              `json:"duplicates"`
	Failed      int              `json:"failed"`
	Categories  map[Category]int `json:"categories"`
}

// BuildFailureReport projects a sync report and the retained rejected
// records into the failure report. Records already named by the sync's
// own failures are not listed twice; older rejected records (from
// previous syncs) are categorized from their stored reason.
func BuildFailureReport(rep *Report, rejected []queue.Record) FailureReport {
	out := FailureReport{
		GeneratedAt: rep.GeneratedAt.UTC().Format(time.RFC3339),
		Summary: ReportSummary{
			TotalEvents: rep.Total,
			Synced:      rep.Synced,
			Duplicates:  rep.Duplicates,
			Categories:  map[Category]int{},
		},
		Failures: []Failure{},
	}

	seen := map[string]bool{}
	for _, f := range rep.Failures {
		out.Failures = append(out.Failures, f)
		out.Summary.Categories[f.Category]++
		seen[f.EventID] = true
	}

	for _, rec := range rejected {
		if seen[rec.Event.EventID] {
			continue
		}
		f := Failure{
			EventID:  rec.Event.EventID,
			Error:    rec.LastError,
			Category: CategorizeError(rec.LastError),
		}
		out.Failures = append(out.Failures, f)
		out.Summary.Categories[f.Category]++
	}

	out.Summary.Failed = len(out.Failures)
	if out.Summary.Failed > out.Summary.TotalEvents {
		out.Summary.TotalEvents = out.Summary.Failed
	}
	return out
}
