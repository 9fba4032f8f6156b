package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const rawEventSchema = `{
	"type": "object",
	"properties": {
		"event":   {"type": ["string", "null"]},
		"message": {"type": ["string", "null"]},
		"level":   {"type": ["string", "null"]},
		"t":       {"type": ["number", "null"]}
	}
}`

const historySchema = `{
	"type": "object",
	"required": ["logs"],
	"properties": {
		"logs": {"type": "array", "items": ` + rawEventSchema + `}
	}
}`

var (
	eventValidator   = mustSchema(rawEventSchema)
	historyValidator = mustSchema(historySchema)
)

func mustSchema(doc string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("events: invalid built-in schema: %v", err))
	}
	return schema
}

// History is the pull-feed payload: the full ordered history of a job.
type History struct {
	Logs []RawEvent `json:"logs"`
}

// Decode validates and decodes a single pushed event.
func Decode(data []byte) (RawEvent, error) {
	if err := validate(eventValidator, data); err != nil {
		return RawEvent{}, err
	}
	var evt RawEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return RawEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return evt, nil
}

// DecodeHistory validates and decodes a pull-feed snapshot.
func DecodeHistory(data []byte) ([]RawEvent, error) {
	if err := validate(historyValidator, data); err != nil {
		return nil, err
	}
	var payload History
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return payload.Logs, nil
}

func validate(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(msgs, "; "))
}
