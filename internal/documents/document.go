// Package documents models the structured text document a pipeline refines:
// an identified, labelled, ordered set of named fields.
package documents

import (
	"slices"
	"strings"
)

// Field is one named piece of document text.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Value string `json:"value" yaml:"value"`
}

// Document is the subject of a pipeline run. Fields keep their file order.
type Document struct {
	ID     string  `json:"id" yaml:"id"`
	Label  string  `json:"label" yaml:"label"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// Keys returns the field keys in document order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Field returns the field with key.
func (d *Document) Field(key string) (Field, bool) {
	i := slices.IndexFunc(d.Fields, func(f Field) bool { return f.Key == key })
	if i < 0 {
		return Field{}, false
	}
	return d.Fields[i], true
}

// Selected returns the fields named in selection, in document order.
// An empty selection selects every field. Unknown keys are ignored.
func (d *Document) Selected(selection []string) []Field {
	if len(selection) == 0 {
		return slices.Clone(d.Fields)
	}

	out := make([]Field, 0, len(selection))
	for _, f := range d.Fields {
		if slices.Contains(selection, f.Key) {
			out = append(out, f)
		}
	}
	return out
}

// Snapshot captures the current values of the selected fields.
// Sessions keep it as the baseline the pipeline started from.
func (d *Document) Snapshot(selection []string) map[string]string {
	fields := d.Selected(selection)
	snap := make(map[string]string, len(fields))
	for _, f := range fields {
		snap[f.Key] = f.Value
	}
	return snap
}

// Render formats the selected fields as "Label:\nValue" blocks for prompts.
func (d *Document) Render(selection []string) string {
	var sb strings.Builder
	for i, f := range d.Selected(selection) {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		label := f.Label
		if label == "" {
			label = f.Key
		}
		sb.WriteString(label)
		sb.WriteString(":\n")
		sb.WriteString(f.Value)
	}
	return sb.String()
}
