// Package histogram accumulates build durations in an HDR histogram.
package histogram

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// LowestTrackable is the smallest distinguishable sample, in milliseconds.
	LowestTrackable = 1
	// HighestTrackable is one hour in milliseconds.
	HighestTrackable = int64(time.Hour / time.Millisecond)
	// SignificantFigures is the value precision.
	SignificantFigures = 3
)

var ErrOutOfRange = errors.New("duration out of histogram range")

// ReportQuantiles are the percentiles captured in a Distribution.
var ReportQuantiles = []float64{50, 75, 90, 95, 99, 99.9, 100}

// Accumulator is a millisecond histogram safe for concurrent Record.
type Accumulator struct {
	mu sync.Mutex
	h  *hdrhistogram.Histogram
}

func New() *Accumulator {
	return &Accumulator{h: hdrhistogram.New(LowestTrackable, HighestTrackable, SignificantFigures)}
}

// Record adds one duration. Durations above one hour or below zero are
// rejected, never clamped.
func (a *Accumulator) Record(d time.Duration) error {
	ms := d.Milliseconds()
	if ms < 0 || ms > HighestTrackable {
		return fmt.Errorf("%w: %s", ErrOutOfRange, d)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.h.RecordValue(ms); err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return nil
}

// WritePercentiles prints the percentile distribution with values divided
// by scale (1000.0 prints seconds).
func (a *Accumulator) WritePercentiles(w io.Writer, ticksPerHalfDistance int32, scale float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.h.PercentilesPrint(w, ticksPerHalfDistance, scale); err != nil {
		return fmt.Errorf("failed to print percentiles: %w", err)
	}
	return nil
}

// Percentile is the value at a quantile, in milliseconds.
type Percentile struct {
	Quantile float64
	Value    int64
}

// Distribution is an immutable snapshot of an Accumulator. Values are in
// milliseconds.
type Distribution struct {
	Count       int64
	Min         int64
	Max         int64
	Mean        float64
	StdDev      float64
	Percentiles []Percentile
}

// ValueAt returns the captured value for quantile q, or 0 when q was not
// captured.
func (d Distribution) ValueAt(q float64) int64 {
	for _, p := range d.Percentiles {
		if p.Quantile == q {
			return p.Value
		}
	}
	return 0
}

func (a *Accumulator) Snapshot() Distribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	d := Distribution{Count: a.h.TotalCount()}
	if d.Count == 0 {
		return d
	}
	d.Min = a.h.Min()
	d.Max = a.h.Max()
	d.Mean = a.h.Mean()
	d.StdDev = a.h.StdDev()
	for _, q := range ReportQuantiles {
		d.Percentiles = append(d.Percentiles, Percentile{Quantile: q, Value: a.h.ValueAtQuantile(q)})
	}
	return d
}
