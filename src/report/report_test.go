package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buildtime-agent/src/contracts"
	"buildtime-agent/src/filter"
	"buildtime-agent/src/histogram"
	"buildtime-agent/src/pipeline"
)

func result(t *testing.T, durations ...time.Duration) *pipeline.Result {
	t.Helper()
	acc := histogram.New()
	for _, d := range durations {
		require.NoError(t, acc.Record(d))
	}
	return &pipeline.Result{
		RunID:        "run-1",
		ServerURL:    "https://ge.example.com",
		Since:        time.UnixMilli(0),
		Criteria:     filter.Criteria{Tag: "CI"},
		Accumulator:  acc,
		Distribution: acc.Snapshot(),
		Stats:        pipeline.Stats{Discovered: 3, Reduced: 3, Accepted: int64(len(durations))},
		StartedAt:    time.Now(),
		FinishedAt:   time.Now(),
	}
}

func TestText(t *testing.T) {
	r := result(t, 1*time.Second, 1500*time.Millisecond, 2*time.Second)

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, r, Seconds))
	out := buf.String()

	assert.Contains(t, out, "Percentile")
	assert.Contains(t, out, "2.000")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "tag=CI")
	assert.Contains(t, out, "P50 (seconds)")
	assert.NotContains(t, out, "drained")
}

func TestText_Milliseconds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, result(t, 1500*time.Millisecond), Milliseconds))
	assert.Contains(t, buf.String(), "1500")
	assert.Contains(t, buf.String(), "MAX (milliseconds)")
}

func TestText_EmptyRun(t *testing.T) {
	r := result(t)

	var buf bytes.Buffer
	require.NoError(t, Text(&buf, r, Seconds))
	assert.Contains(t, buf.String(), "ACCEPTED")
	assert.NotContains(t, buf.String(), "P50")
}

func TestAverage(t *testing.T) {
	tests := []struct {
		name      string
		durations []time.Duration
		expected  string
	}{
		{"whole seconds", []time.Duration{10 * time.Second, 20 * time.Second}, "Average Build Time: 15 seconds"},
		{"truncated", []time.Duration{1500 * time.Millisecond}, "Average Build Time: 1 seconds"},
		{"no builds", nil, "Average Build Time: no builds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Average(&buf, result(t, tt.durations...)))
			if got := strings.TrimSpace(buf.String()); got != tt.expected {
				t.Errorf("Average() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAverage_OutOfRangeNoted(t *testing.T) {
	r := result(t, 10*time.Second)
	r.Stats.OutOfRange = 2

	var buf bytes.Buffer
	require.NoError(t, Average(&buf, r))

	expected := "Average Build Time: 10 seconds\n(2 builds longer than 1h0m0s not included)"
	if got := strings.TrimSpace(buf.String()); got != expected {
		t.Errorf("Average() = %q, want %q", got, expected)
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, result(t, 2*time.Second)))

	var report contracts.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, contracts.RunStatusCompleted, report.Status)
	assert.Equal(t, int64(1), report.Count)
	assert.Equal(t, int64(2000), report.MaxMs)
	assert.Len(t, report.Percentiles, len(histogram.ReportQuantiles))
}

func TestUnitFor(t *testing.T) {
	assert.Equal(t, Seconds, UnitFor(1000))
	assert.Equal(t, Milliseconds, UnitFor(1))
}

func TestRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Runs(&buf, nil))
	assert.Equal(t, "No runs found.\n", buf.String())

	buf.Reset()
	require.NoError(t, Runs(&buf, []contracts.RunReport{{
		RunID:       "run-1",
		Status:      contracts.RunStatusCompleted,
		Drained:     true,
		Filter:      "none",
		Percentiles: []contracts.PercentileRow{{Percentile: 50, ValueMs: 1500}, {Percentile: 99, ValueMs: 4000}},
	}}))
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "(drained)")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "4.000")
}

func TestRun(t *testing.T) {
	run := &contracts.RunReport{RunID: "run-1", Status: contracts.RunStatusCompleted, Count: 1}
	builds := []contracts.BuildSummaryMessage{{BuildID: "b1", DurationMs: 2500, Success: true, Tags: []string{"CI", "main"}}}

	var buf bytes.Buffer
	require.NoError(t, Run(&buf, run, builds, "text"))
	assert.Contains(t, buf.String(), "b1")
	assert.Contains(t, buf.String(), "2.500")
	assert.Contains(t, buf.String(), "CI,main")

	buf.Reset()
	require.NoError(t, Run(&buf, run, builds, "json"))
	var decoded struct {
		RunID  string                          `json:"run_id"`
		Builds []contracts.BuildSummaryMessage `json:"builds"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.Builds, 1)
	assert.Equal(t, "b1", decoded.Builds[0].BuildID)
}
