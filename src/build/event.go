// Package build turns a build's raw event stream into a Summary.
package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SSE event types on the export feeds.
const (
	// EnvelopeBuildEvent is the only detail-feed event type that carries a payload.
	EnvelopeBuildEvent = "BuildEvent"
	// EnvelopeHeartbeat is sent on idle feeds.
	EnvelopeHeartbeat = "Heartbeat"
)

// Build event types the reducer understands.
const (
	TypeBuildStarted   = "BuildStarted"
	TypeBuildFinished  = "BuildFinished"
	TypeUserNamedValue = "UserNamedValue"
	TypeUserTag        = "UserTag"
)

var (
	ErrMalformedEvent      = errors.New("malformed build event")
	ErrInconsistentSummary = errors.New("inconsistent build summary")
)

// Event is one parsed detail-feed event.
type Event struct {
	Timestamp time.Time
	Type      string

	// BuildFinished
	FailurePresent bool

	// UserNamedValue
	Key   string
	Value string

	// UserTag
	Tag string
}

type rawEvent struct {
	Timestamp *int64 `json:"timestamp"`
	Type      struct {
		EventType string `json:"eventType"`
	} `json:"type"`
	Data json.RawMessage `json:"data"`
}

type finishedData struct {
	Failure json.RawMessage `json:"failure"`
}

type namedValueData struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

type tagData struct {
	Tag *string `json:"tag"`
}

// ParseEvent decodes a detail-feed payload.
func ParseEvent(payload []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.Type.EventType == "" {
		return Event{}, fmt.Errorf("%w: missing type.eventType", ErrMalformedEvent)
	}

	ev := Event{Type: raw.Type.EventType}
	if raw.Timestamp != nil {
		ev.Timestamp = time.UnixMilli(*raw.Timestamp)
	}

	switch ev.Type {
	case TypeBuildStarted:
		if raw.Timestamp == nil {
			return Event{}, fmt.Errorf("%w: %s without timestamp", ErrMalformedEvent, ev.Type)
		}

	case TypeBuildFinished:
		if raw.Timestamp == nil {
			return Event{}, fmt.Errorf("%w: %s without timestamp", ErrMalformedEvent, ev.Type)
		}
		var data finishedData
		if err := decodeData(raw.Data, &data); err != nil {
			return Event{}, err
		}
		ev.FailurePresent = len(data.Failure) > 0 && string(data.Failure) != "null"

	case TypeUserNamedValue:
		var data namedValueData
		if err := decodeData(raw.Data, &data); err != nil {
			return Event{}, err
		}
		if data.Key == nil {
			return Event{}, fmt.Errorf("%w: %s without key", ErrMalformedEvent, ev.Type)
		}
		ev.Key = *data.Key
		if data.Value != nil {
			ev.Value = *data.Value
		}

	case TypeUserTag:
		var data tagData
		if err := decodeData(raw.Data, &data); err != nil {
			return Event{}, err
		}
		if data.Tag == nil {
			return Event{}, fmt.Errorf("%w: %s without tag", ErrMalformedEvent, ev.Type)
		}
		ev.Tag = *data.Tag
	}

	return ev, nil
}

func decodeData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: invalid data: %v", ErrMalformedEvent, err)
	}
	return nil
}

// ParseBuildRef extracts the build id from a discovery-feed payload.
func ParseBuildRef(payload []byte) (string, error) {
	var ref struct {
		BuildID string `json:"buildId"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ref.BuildID == "" {
		return "", fmt.Errorf("%w: missing buildId", ErrMalformedEvent)
	}
	return ref.BuildID, nil
}
