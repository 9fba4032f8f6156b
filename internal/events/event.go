// Package events defines the raw job events exchanged over the log feed and
// the bus that fans them out to live readers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// KindDone marks the end of a job's feed.
	KindDone = "done"
	// KindLog is the kind emitted for plain log lines.
	KindLog = "log"

	// DefaultLevel applies when an event carries no level.
	DefaultLevel = "info"
)

// ErrInvalidEvent reports a payload that is not a well-formed raw event.
var ErrInvalidEvent = errors.New("invalid event payload")

// RawEvent is one record of a job's feed as produced by the job side.
// Kind-specific attributes (strategy, attempt, ...) are kept in Fields.
type RawEvent struct {
	Event   string
	Message *string
	Level   string
	T       *float64
	Fields  map[string]interface{}
}

// NewLog builds a plain log-line event.
func NewLog(message, level string, t float64) RawEvent {
	return RawEvent{
		Event:   KindLog,
		Message: &message,
		Level:   level,
		T:       &t,
	}
}

// Done returns the terminal event.
func Done() RawEvent {
	return RawEvent{Event: KindDone}
}

// IsTerminal reports whether the event ends the feed.
func (e RawEvent) IsTerminal() bool {
	return e.Event == KindDone
}

// MessageText returns the message and whether one was present.
func (e RawEvent) MessageText() (string, bool) {
	if e.Message == nil {
		return "", false
	}
	return *e.Message, true
}

// LevelOrDefault returns the event level, falling back to DefaultLevel.
func (e RawEvent) LevelOrDefault() string {
	if e.Level == "" {
		return DefaultLevel
	}
	return e.Level
}

// Field returns a kind-specific attribute.
func (e RawEvent) Field(key string) (interface{}, bool) {
	if e.Fields == nil {
		return nil, false
	}
	v, ok := e.Fields[key]
	return v, ok
}

// FieldText renders a kind-specific attribute, or "" when it is missing or null.
func (e RawEvent) FieldText(key string) string {
	v, ok := e.Field(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Values flattens the event into a single map, known fields included.
func (e RawEvent) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		out[k] = v
	}
	if e.Event != "" {
		out["event"] = e.Event
	}
	if e.Message != nil {
		out["message"] = *e.Message
	}
	if e.Level != "" {
		out["level"] = e.Level
	}
	if e.T != nil {
		out["t"] = *e.T
	}
	return out
}

// MarshalJSON encodes the event as one flat JSON object.
func (e RawEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Values())
}

// UnmarshalJSON decodes a flat JSON object, keeping unknown keys in Fields.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var values map[string]interface{}
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if values == nil {
		return fmt.Errorf("%w: expected an object", ErrInvalidEvent)
	}
	out := RawEvent{}
	for key, value := range values {
		switch key {
		case "event":
			s, err := stringField(key, value)
			if err != nil {
				return err
			}
			out.Event = s
		case "level":
			s, err := stringField(key, value)
			if err != nil {
				return err
			}
			out.Level = s
		case "message":
			if value == nil {
				continue
			}
			s, err := stringField(key, value)
			if err != nil {
				return err
			}
			out.Message = &s
		case "t":
			if value == nil {
				continue
			}
			f, ok := value.(float64)
			if !ok {
				return fmt.Errorf("%w: field %q must be a number", ErrInvalidEvent, key)
			}
			out.T = &f
		default:
			if out.Fields == nil {
				out.Fields = map[string]interface{}{}
			}
			out.Fields[key] = value
		}
	}
	*e = out
	return nil
}

func stringField(key string, value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: field %q must be a string", ErrInvalidEvent, key)
	}
	return s, nil
}
