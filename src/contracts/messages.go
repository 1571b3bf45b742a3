// Package contracts defines the messages published by a pipeline run.
package contracts

// Topics.
const (
	// TopicBuilds carries one BuildSummaryMessage per accepted build.
	// Key: {build_id}
	TopicBuilds = "buildtime.builds"
	// TopicReports carries one RunReport per completed run.
	// Key: {run_id}
	TopicReports = "buildtime.reports"
)

// BuildSummaryMessage is an accepted build and its recorded duration.
// Published to: buildtime.builds
type BuildSummaryMessage struct {
	// Run that observed the build.
	RunID string `json:"run_id"`
	// Build identifier from the discovery feed.
	BuildID string `json:"build_id"`
	// Start and finish in milliseconds since the epoch.
	StartTimeMs  int64 `json:"start_time_ms"`
	FinishTimeMs int64 `json:"finish_time_ms"`
	DurationMs   int64 `json:"duration_ms"`
	Success      bool  `json:"success"`
	// User-defined values and tags attached to the build.
	CustomValues map[string]string `json:"custom_values,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// PercentileRow is one row of the distribution, value in milliseconds.
type PercentileRow struct {
	Percentile float64 `json:"percentile"`
	ValueMs    int64   `json:"value_ms"`
}

// RunStats counts what happened to the builds of a run.
type RunStats struct {
	Discovered   int64 `json:"discovered"`
	Reduced      int64 `json:"reduced"`
	Accepted     int64 `json:"accepted"`
	Rejected     int64 `json:"rejected"`
	Inconsistent int64 `json:"inconsistent"`
	OutOfRange   int64 `json:"out_of_range"`
	Reconnects   int64 `json:"reconnects"`
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunReport is the outcome of a pipeline run.
// Published to: buildtime.reports
type RunReport struct {
	RunID      string `json:"run_id"`
	ServerURL  string `json:"server_url"`
	SinceMs    int64  `json:"since_ms"`
	Filter     string `json:"filter"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	// "running" until the run ends, then "completed" or "failed".
	Status string `json:"status"`
	// Why a failed run stopped.
	Error string `json:"error,omitempty"`
	// True when the run was stopped early and drained.
	Drained bool     `json:"drained"`
	Stats   RunStats `json:"stats"`

	Count       int64           `json:"count"`
	MinMs       int64           `json:"min_ms"`
	MaxMs       int64           `json:"max_ms"`
	MeanMs      float64         `json:"mean_ms"`
	StdDevMs    float64         `json:"std_dev_ms"`
	Percentiles []PercentileRow `json:"percentiles"`
}
