package compiler

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schedules.schema.json
var schemaJSON []byte

const schemaURL = "schedules.schema.json"

type schemas struct {
	document *jsonschema.Schema
	schedule *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (schemas, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return schemas{}, fmt.Errorf("add schema resource: %w", err)
	}
	doc, err := c.Compile(schemaURL)
	if err != nil {
		return schemas{}, fmt.Errorf("compile document schema: %w", err)
	}
	sched, err := c.Compile(schemaURL + "#/$defs/schedule")
	if err != nil {
		return schemas{}, fmt.Errorf("compile schedule schema: %w", err)
	}
	return schemas{document: doc, schedule: sched}, nil
})

// SchemaJSON returns the JSON Schema schedule documents are validated
// against.
func SchemaJSON() []byte {
	return bytes.Clone(schemaJSON)
}

// validateDocument checks a decoded JSON document against the schema.
func validateDocument(instance any) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}
	return s.document.Validate(instance)
}

// validateSchedule checks one decoded schedule against the schema.
func validateSchedule(instance any) error {
	s, err := loadSchemas()
	if err != nil {
		return err
	}
	return s.schedule.Validate(instance)
}
