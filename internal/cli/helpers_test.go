package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const nudgeDoc = `schedules:
  - name: nudge
    group: promo
    triggers:
      - type: custom_event_count
        goal: 2
        predicate:
          key: name
          value:
            equals: add_to_cart
    data:
      log:
        message: still shopping?
  - name: greet
    triggers:
      - type: app_init
        goal: 1
    data:
      noop: null
`

// testOptions points the config and database into a fresh temp dir.
func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	return &RootOptions{
		Format:     format,
		ConfigPath: filepath.Join(dir, "config.toml"),
		Database:   filepath.Join(dir, "tripwire.db"),
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	if args == nil {
		// cobra falls back to os.Args on nil
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unmarshals the data of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// scheduleDoc stores the schedules of content and returns name -> id.
func scheduleDoc(t *testing.T, opts *RootOptions, content string) map[string]string {
	t.Helper()
	path := writeFile(t, t.TempDir(), "doc.yaml", content)

	jsonOpts := *opts
	jsonOpts.Format = "json"
	out, err := execute(NewScheduleCommand(&jsonOpts), path)
	require.NoError(t, err, out)

	var created []ScheduledEntry
	decodeData(t, out, &created)
	ids := make(map[string]string, len(created))
	for _, c := range created {
		ids[c.Name] = c.ID
	}
	return ids
}

func listViews(t *testing.T, opts *RootOptions, args ...string) []ScheduleView {
	t.Helper()
	jsonOpts := *opts
	jsonOpts.Format = "json"
	out, err := execute(NewListCommand(&jsonOpts), args...)
	require.NoError(t, err, out)

	var views []ScheduleView
	decodeData(t, out, &views)
	return views
}
