// Package store persists pipeline runs and the builds they accepted.
package store

import (
	"context"
	"errors"
	"time"

	"buildtime-agent/src/contracts"
)

var ErrRunNotFound = errors.New("run not found")

// Store defines the interface for persisting run results.
type Store interface {
	// CreateRun records a run as running.
	CreateRun(ctx context.Context, run *contracts.RunReport) error

	// SaveBuild saves one accepted build of a run.
	SaveBuild(ctx context.Context, build *contracts.BuildSummaryMessage) error

	// CompleteRun stores the final report. The run is marked failed when the
	// report says so, completed otherwise.
	CompleteRun(ctx context.Context, report *contracts.RunReport) error

	// GetRun returns a run's latest report.
	GetRun(ctx context.Context, runID string) (*contracts.RunReport, error)

	// GetBuilds returns the builds saved for a run, in save order.
	GetBuilds(ctx context.Context, runID string) ([]contracts.BuildSummaryMessage, error)

	// ListRuns returns up to limit runs, most recent first.
	ListRuns(ctx context.Context, limit int) ([]contracts.RunReport, error)

	// Close closes the store connection
	Close() error
}

// TimeLayout is fixed width so formatted UTC times sort as strings.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t for a report.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
