package mcp

import "buildtime-agent/src/contracts"

// RunResponse is the get_run_report payload.
type RunResponse struct {
	*contracts.RunReport
	Builds []contracts.BuildSummaryMessage `json:"builds,omitempty"`
}

// RunSummary is one list_runs entry.
type RunSummary struct {
	RunID     string `json:"run_id"`
	StartedAt string `json:"started_at"`
	Status    string `json:"status"`
	Drained   bool   `json:"drained,omitempty"`
	Filter    string `json:"filter"`
	Count     int64  `json:"count"`
	P50Ms     int64  `json:"p50_ms"`
	P99Ms     int64  `json:"p99_ms"`
}
