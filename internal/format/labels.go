package format

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/oremus-labs/ol-logstream/internal/events"
	"sigs.k8s.io/yaml"
)

// LabelFile is the on-disk form of label overrides:
//
//	labels:
//	  retry: "🔁 attempt {{.Field \"attempt\"}}"
//	  step: "Step {{.Field \"step\"}}: {{.Message}}"
type LabelFile struct {
	Labels map[string]string `json:"labels"`
}

type labelData struct {
	raw events.RawEvent
}

func (d labelData) Event() string { return d.raw.Event }

func (d labelData) Level() string { return d.raw.LevelOrDefault() }

func (d labelData) Message() string {
	msg, _ := d.raw.MessageText()
	return msg
}

func (d labelData) Field(key string) string { return d.raw.FieldText(key) }

// LoadLabels reads a YAML label file from disk.
func LoadLabels(path string) (map[string]LabelFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return ParseLabels(data)
}

// ParseLabels compiles each label template into a LabelFunc.
func ParseLabels(data []byte) (map[string]LabelFunc, error) {
	var file LabelFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	out := make(map[string]LabelFunc, len(file.Labels))
	for kind, text := range file.Labels {
		tmpl, err := template.New(kind).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", kind, err)
		}
		out[kind] = templateLabel(tmpl)
	}
	return out, nil
}

func templateLabel(tmpl *template.Template) LabelFunc {
	return func(raw events.RawEvent) string {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, labelData{raw: raw}); err != nil {
			msg, _ := raw.MessageText()
			return msg
		}
		return buf.String()
	}
}
