// Package filter selects which build summaries reach the histogram.
package filter

import (
	"fmt"
	"strings"

	"buildtime-agent/src/build"
)

// KeyValue is a custom value a build must carry.
type KeyValue struct {
	Key   string
	Value string
}

func (kv KeyValue) String() string {
	return kv.Key + ":" + kv.Value
}

// ParseKeyValue parses "key:value", splitting on the first colon.
func ParseKeyValue(raw string) (KeyValue, error) {
	key, value, ok := strings.Cut(raw, ":")
	if !ok {
		return KeyValue{}, fmt.Errorf("invalid custom value filter %q: expected key:value", raw)
	}
	if key == "" {
		return KeyValue{}, fmt.Errorf("invalid custom value filter %q: empty key", raw)
	}
	return KeyValue{Key: key, Value: value}, nil
}

// Criteria is a conjunction of optional predicates. The zero value accepts
// every build.
type Criteria struct {
	Tag         string
	CustomValue *KeyValue
	SuccessOnly bool
}

// Accept reports whether s passes every configured predicate.
func (c Criteria) Accept(s build.Summary) bool {
	if c.Tag != "" && !s.HasTag(c.Tag) {
		return false
	}
	if c.CustomValue != nil {
		v, ok := s.CustomValues[c.CustomValue.Key]
		if !ok || v != c.CustomValue.Value {
			return false
		}
	}
	if c.SuccessOnly && !s.Success {
		return false
	}
	return true
}

// String describes the active predicates for logs and reports.
func (c Criteria) String() string {
	var parts []string
	if c.Tag != "" {
		parts = append(parts, "tag="+c.Tag)
	}
	if c.CustomValue != nil {
		parts = append(parts, "customValue="+c.CustomValue.String())
	}
	if c.SuccessOnly {
		parts = append(parts, "successOnly")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
