package build

import (
	"fmt"
	"sort"
	"time"
)

// Summary is the folded state of one build.
type Summary struct {
	BuildID      string
	StartTime    *time.Time
	FinishTime   *time.Time
	Success      bool
	CustomValues map[string]string
	CustomTags   map[string]struct{}
}

// Duration returns FinishTime - StartTime. It fails when either time is
// unset or the result is negative.
func (s Summary) Duration() (time.Duration, error) {
	if s.StartTime == nil || s.FinishTime == nil {
		return 0, fmt.Errorf("%w: build %s has start=%v finish=%v",
			ErrInconsistentSummary, s.BuildID, s.StartTime != nil, s.FinishTime != nil)
	}
	d := s.FinishTime.Sub(*s.StartTime)
	if d < 0 {
		return 0, fmt.Errorf("%w: build %s finished %s before it started",
			ErrInconsistentSummary, s.BuildID, -d)
	}
	return d, nil
}

// HasTag reports whether the build carries tag.
func (s Summary) HasTag(tag string) bool {
	_, ok := s.CustomTags[tag]
	return ok
}

// Tags returns the tags in sorted order.
func (s Summary) Tags() []string {
	tags := make([]string, 0, len(s.CustomTags))
	for t := range s.CustomTags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Reducer folds the events of one build into a Summary. Events are applied
// in arrival order; repeated events overwrite.
type Reducer struct {
	summary Summary
}

func NewReducer(buildID string) *Reducer {
	return &Reducer{summary: Summary{
		BuildID:      buildID,
		CustomValues: make(map[string]string),
		CustomTags:   make(map[string]struct{}),
	}}
}

func (r *Reducer) Apply(ev Event) {
	switch ev.Type {
	case TypeBuildStarted:
		t := ev.Timestamp
		r.summary.StartTime = &t
	case TypeBuildFinished:
		t := ev.Timestamp
		r.summary.FinishTime = &t
		r.summary.Success = !ev.FailurePresent
	case TypeUserNamedValue:
		r.summary.CustomValues[ev.Key] = ev.Value
	case TypeUserTag:
		r.summary.CustomTags[ev.Tag] = struct{}{}
	}
}

// Summary returns a copy of the current state.
func (r *Reducer) Summary() Summary {
	s := r.summary
	s.CustomValues = make(map[string]string, len(r.summary.CustomValues))
	for k, v := range r.summary.CustomValues {
		s.CustomValues[k] = v
	}
	s.CustomTags = make(map[string]struct{}, len(r.summary.CustomTags))
	for t := range r.summary.CustomTags {
		s.CustomTags[t] = struct{}{}
	}
	return s
}
