// Package report renders run results for the terminal and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uitable"

	"buildtime-agent/src/contracts"
	"buildtime-agent/src/histogram"
	"buildtime-agent/src/pipeline"
)

// TicksPerHalfDistance is the resolution of the percentile table.
const TicksPerHalfDistance = 5

// Unit is an output unit for millisecond values.
type Unit struct {
	Name  string
	Scale float64
}

var (
	Seconds      = Unit{Name: "seconds", Scale: 1000.0}
	Milliseconds = Unit{Name: "milliseconds", Scale: 1.0}
)

// UnitFor returns the unit with the given scale.
func UnitFor(scale float64) Unit {
	if scale == Milliseconds.Scale {
		return Milliseconds
	}
	return Seconds
}

func (u Unit) format(ms float64) string {
	if u.Scale == 1 {
		return fmt.Sprintf("%.0f", ms)
	}
	return fmt.Sprintf("%.3f", ms/u.Scale)
}

// Distribution prints the HDR percentile table.
func Distribution(w io.Writer, acc *histogram.Accumulator, unit Unit) error {
	return acc.WritePercentiles(w, TicksPerHalfDistance, unit.Scale)
}

// Summary prints run statistics and headline percentiles.
func Summary(w io.Writer, r *pipeline.Result, unit Unit) error {
	table := uitable.New()
	table.MaxColWidth = 60

	table.AddRow("RUN", r.RunID)
	if r.ServerURL != "" {
		table.AddRow("SERVER", r.ServerURL)
	}
	table.AddRow("SINCE", r.Since.UTC().Format("2006-01-02 15:04:05 MST"))
	table.AddRow("FILTER", r.Criteria.String())
	if r.Drained {
		table.AddRow("STATUS", "drained (stopped before discovery completed)")
	}
	table.AddRow("DISCOVERED", r.Stats.Discovered)
	table.AddRow("REDUCED", r.Stats.Reduced)
	table.AddRow("ACCEPTED", r.Stats.Accepted)
	table.AddRow("REJECTED", r.Stats.Rejected)
	if r.Stats.Inconsistent > 0 {
		table.AddRow("INCONSISTENT", r.Stats.Inconsistent)
	}
	if r.Stats.OutOfRange > 0 {
		table.AddRow("OUT OF RANGE", r.Stats.OutOfRange)
	}
	table.AddRow("RECONNECTS", r.Stats.Reconnects)

	d := r.Distribution
	if d.Count > 0 {
		for _, q := range []float64{50, 90, 99} {
			table.AddRow(fmt.Sprintf("P%g (%s)", q, unit.Name), unit.format(float64(d.ValueAt(q))))
		}
		table.AddRow(fmt.Sprintf("MAX (%s)", unit.Name), unit.format(float64(d.Max)))
	}

	_, err := fmt.Fprintln(w, table)
	return err
}

// Text prints the percentile table followed by the summary.
func Text(w io.Writer, r *pipeline.Result, unit Unit) error {
	if err := Distribution(w, r.Accumulator, unit); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return Summary(w, r, unit)
}

// AverageSeconds is the mean accepted build time in whole seconds.
func AverageSeconds(d histogram.Distribution) int64 {
	return int64(d.Mean / 1000)
}

// Average prints the mean build time line, followed by a note when builds
// over the histogram range were left out of the mean.
func Average(w io.Writer, r *pipeline.Result) error {
	d := r.Distribution
	var err error
	if d.Count == 0 {
		_, err = fmt.Fprintln(w, "\nAverage Build Time: no builds")
	} else {
		_, err = fmt.Fprintf(w, "\nAverage Build Time: %d seconds\n", AverageSeconds(d))
	}
	if err != nil || r.Stats.OutOfRange == 0 {
		return err
	}
	limit := time.Duration(histogram.HighestTrackable) * time.Millisecond
	_, err = fmt.Fprintf(w, "(%d builds longer than %s not included)\n", r.Stats.OutOfRange, limit)
	return err
}

// JSON writes the run report as indented JSON.
func JSON(w io.Writer, r *pipeline.Result) error {
	return writeJSON(w, r.Report())
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// Runs lists persisted runs, newest first.
func Runs(w io.Writer, runs []contracts.RunReport) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}

	table := uitable.New()
	table.AddRow("RUN", "STARTED", "STATUS", "FILTER", "ACCEPTED", "P50 (s)", "P99 (s)")
	for _, run := range runs {
		status := run.Status
		if run.Drained {
			status += " (drained)"
		}
		table.AddRow(
			run.RunID,
			run.StartedAt,
			status,
			run.Filter,
			run.Stats.Accepted,
			Seconds.format(float64(percentile(run.Percentiles, 50))),
			Seconds.format(float64(percentile(run.Percentiles, 99))),
		)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

// Run prints one persisted run and its accepted builds.
func Run(w io.Writer, run *contracts.RunReport, builds []contracts.BuildSummaryMessage, output string) error {
	if strings.EqualFold(output, "json") {
		return writeJSON(w, struct {
			*contracts.RunReport
			Builds []contracts.BuildSummaryMessage `json:"builds"`
		}{run, builds})
	}

	table := uitable.New()
	table.AddRow("RUN", run.RunID)
	table.AddRow("SERVER", run.ServerURL)
	table.AddRow("STARTED", run.StartedAt)
	table.AddRow("FINISHED", run.FinishedAt)
	table.AddRow("STATUS", run.Status)
	if run.Error != "" {
		table.AddRow("ERROR", run.Error)
	}
	table.AddRow("FILTER", run.Filter)
	table.AddRow("ACCEPTED", run.Count)
	for _, p := range run.Percentiles {
		table.AddRow(fmt.Sprintf("P%g (s)", p.Percentile), Seconds.format(float64(p.ValueMs)))
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}

	if len(builds) == 0 {
		return nil
	}
	buildTable := uitable.New()
	buildTable.AddRow("BUILD", "DURATION (s)", "SUCCESS", "TAGS")
	for _, b := range builds {
		buildTable.AddRow(b.BuildID, Seconds.format(float64(b.DurationMs)), b.Success, strings.Join(b.Tags, ","))
	}
	_, err := fmt.Fprintf(w, "\n%s\n", buildTable)
	return err
}

func percentile(rows []contracts.PercentileRow, q float64) int64 {
	for _, row := range rows {
		if row.Percentile == q {
			return row.ValueMs
		}
	}
	return 0
}
