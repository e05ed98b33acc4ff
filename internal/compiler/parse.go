package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and compiles a schedule document. The format follows the
// file extension: .yaml/.yml, .json or .cue.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Compile(data, path)
}

// Compile compiles a document whose format is chosen by source's extension.
func Compile(data []byte, source string) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return ParseYAML(data, source)
	case ".json":
		return ParseJSON(data, source)
	case ".cue":
		return CompileCUE(data, source)
	default:
		return nil, fmt.Errorf("%s: unsupported document format %q", source, filepath.Ext(source))
	}
}

// ParseYAML compiles a YAML schedule document.
func ParseYAML(data []byte, source string) ([]Entry, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &DocumentError{Source: source, Index: -1, Err: err}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, &DocumentError{Source: source, Index: -1, Err: fmt.Errorf("convert to JSON: %w", err)}
	}
	return ParseJSON(jsonData, source)
}

// ParseJSON compiles a JSON schedule document. The document is checked
// against the embedded schema before any schedule is decoded.
func ParseJSON(data []byte, source string) ([]Entry, error) {
	raw, err := decodeAny(data)
	if err != nil {
		return nil, &DocumentError{Source: source, Index: -1, Err: err}
	}
	if err := validateDocument(raw); err != nil {
		return nil, &DocumentError{Source: source, Index: -1, Err: err}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Source: source, Index: -1, Err: err}
	}
	return compileDocs(doc.Schedules, source)
}

func compileDocs(docs []ScheduleDoc, source string) ([]Entry, error) {
	entries := make([]Entry, 0, len(docs))
	names := make(map[string]int, len(docs))
	for i, d := range docs {
		if d.Name != "" {
			if prev, dup := names[d.Name]; dup {
				return nil, &DocumentError{Source: source, Index: i, Name: d.Name,
					Err: fmt.Errorf("duplicate name (first at schedules[%d])", prev)}
			}
			names[d.Name] = i
		}
		info, err := d.Info()
		if err != nil {
			return nil, &DocumentError{Source: source, Index: i, Name: d.Name, Err: err}
		}
		entries = append(entries, Entry{Name: d.Name, Info: info})
	}
	return entries, nil
}

func decodeAny(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return v, nil
}

// ExportYAML renders entries as a YAML schedule document that ParseYAML
// accepts.
func ExportYAML(entries []Entry) ([]byte, error) {
	doc := Document{Schedules: make([]ScheduleDoc, 0, len(entries))}
	for _, e := range entries {
		d, err := FromInfo(e.Name, e.Info)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", e.Name, err)
		}
		doc.Schedules = append(doc.Schedules, d)
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	// JSON is YAML; decoding into a node keeps the field order.
	var node yaml.Node
	if err := yaml.Unmarshal(jsonData, &node); err != nil {
		return nil, err
	}
	resetStyle(&node)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}
