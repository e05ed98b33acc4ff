// Package harness runs scripted scenarios against a real engine for
// conformance testing.
//
// Each scenario runs on a fresh SQLite database with a fake wall clock,
// manually fired timers and sequential schedule ids, so two runs of the same
// scenario produce byte-identical traces suitable for golden comparison.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	start: 2025-03-01T12:00:00Z
//	schedules:
//	  - name: nudge
//	    triggers: [{type: custom_event_count, goal: 2}]
//	    delay: {seconds: 30}
//	    data: {action: log}
//	steps:
//	  - event: {type: custom_event_count}
//	  - event: {type: custom_event_count}
//	  - advance: 30s
//	  - complete: true
//	assertions:
//	  - type: executions
//	    schedule: nudge
//	    count: 1
//	  - type: remaining
//	    schedules: []
//
// Schedules use the schedule document format of package compiler and must
// be named. Steps are:
//
//   - event: submit an event (type, value defaulting to 1, payload); lifecycle,
//     screen and region events also update the app context
//   - advance: move the clock, firing every delay that comes due on the way
//   - app_state, screen, region: change the app context without an event
//   - ready: make executables report ready or not
//   - complete: finish every in-flight execution
//   - check_pending: re-evaluate pending schedules
//   - cancel, cancel_group: cancel by schedule name or group
//   - restart: stop the engine and start a new one on the same database
//
// # Assertion Types
//
//   - executions: a schedule executed exactly count times
//   - execution_order: schedules first executed in the given order
//   - remaining: the schedules left at the end (by name, or just a count)
//   - final_state: a schedule's final execution state, or "REMOVED"
package harness
