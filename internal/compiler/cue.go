package compiler

import (
	"encoding/json"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// CompileCUE compiles a CUE document of the form
//
//	schedule: welcome: {
//		triggers: [{type: "app_init", goal: 1}]
//		data: {action: "log"}
//	}
//
// Schedules come back in declaration order, named by their label.
func CompileCUE(src []byte, filename string) ([]Entry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("schedule"))
	if !root.Exists() {
		return nil, &CompileError{Field: "schedule", Message: "no schedules defined", Pos: v.Pos()}
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entries []Entry
	for iter.Next() {
		entry, err := CompileSchedule(iter.Value())
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// CompileSchedule compiles one CUE schedule struct.
//
// The CUE value should be the schedule struct itself, e.g.:
//
//	v := ctx.CompileString(`schedule: welcome: { ... }`)
//	entry, err := CompileSchedule(v.LookupPath(cue.ParsePath("schedule.welcome")))
func CompileSchedule(v cue.Value) (Entry, error) {
	var entry Entry
	if err := v.Err(); err != nil {
		return entry, formatCUEError(err)
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		entry.Name = labels[len(labels)-1].String()
	}

	for _, field := range []string{"triggers", "data"} {
		if !v.LookupPath(cue.ParsePath(field)).Exists() {
			return entry, &CompileError{
				Field:   field,
				Message: field + " is required",
				Pos:     v.Pos(),
			}
		}
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return entry, formatCUEError(err)
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return entry, formatCUEError(err)
	}

	raw, err := decodeAny(data)
	if err != nil {
		return entry, &CompileError{Field: entry.Name, Message: err.Error(), Pos: v.Pos()}
	}
	if err := validateSchedule(raw); err != nil {
		return entry, &CompileError{Field: entry.Name, Message: err.Error(), Pos: v.Pos()}
	}

	var doc ScheduleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return entry, &CompileError{Field: entry.Name, Message: err.Error(), Pos: v.Pos()}
	}
	if doc.Name != "" {
		entry.Name = doc.Name
	}
	if entry.Info, err = doc.Info(); err != nil {
		return entry, &CompileError{Field: entry.Name, Message: err.Error(), Pos: v.Pos()}
	}
	return entry, nil
}
