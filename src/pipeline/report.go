package pipeline

import (
	"time"

	"buildtime-agent/src/build"
	"buildtime-agent/src/contracts"
	"buildtime-agent/src/store"
)

// Report converts the result into its published form.
func (r *Result) Report() contracts.RunReport {
	report := contracts.RunReport{
		RunID:     r.RunID,
		ServerURL: r.ServerURL,
		SinceMs:   r.Since.UnixMilli(),
		Filter:    r.Criteria.String(),
		StartedAt: store.FormatTime(r.StartedAt),
		Status:    contracts.RunStatusRunning,
		Drained:   r.Drained,
		Stats: contracts.RunStats{
			Discovered:   r.Stats.Discovered,
			Reduced:      r.Stats.Reduced,
			Accepted:     r.Stats.Accepted,
			Rejected:     r.Stats.Rejected,
			Inconsistent: r.Stats.Inconsistent,
			OutOfRange:   r.Stats.OutOfRange,
			Reconnects:   r.Stats.Reconnects,
		},
		Count:    r.Distribution.Count,
		MinMs:    r.Distribution.Min,
		MaxMs:    r.Distribution.Max,
		MeanMs:   r.Distribution.Mean,
		StdDevMs: r.Distribution.StdDev,
	}
	if !r.FinishedAt.IsZero() {
		report.FinishedAt = store.FormatTime(r.FinishedAt)
		report.Status = contracts.RunStatusCompleted
	}
	report.Percentiles = make([]contracts.PercentileRow, 0, len(r.Distribution.Percentiles))
	for _, p := range r.Distribution.Percentiles {
		report.Percentiles = append(report.Percentiles, contracts.PercentileRow{Percentile: p.Quantile, ValueMs: p.Value})
	}
	return report
}

func summaryMessage(runID string, s build.Summary, d time.Duration) *contracts.BuildSummaryMessage {
	msg := &contracts.BuildSummaryMessage{
		RunID:        runID,
		BuildID:      s.BuildID,
		DurationMs:   d.Milliseconds(),
		Success:      s.Success,
		CustomValues: s.CustomValues,
		Tags:         s.Tags(),
	}
	if s.StartTime != nil {
		msg.StartTimeMs = s.StartTime.UnixMilli()
	}
	if s.FinishTime != nil {
		msg.FinishTimeMs = s.FinishTime.UnixMilli()
	}
	return msg
}
