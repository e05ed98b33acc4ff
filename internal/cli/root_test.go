package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tripwire", cmd.Use)
	assert.Contains(t, cmd.Long, "triggers reach a goal")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "compile", "schedule", "list", "get", "edit", "cancel", "event", "run", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"inbox", "no-stdin", "background"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), name)
	}
}

func TestEventCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	eventCmd, _, err := cmd.Find([]string{"event"})
	require.NoError(t, err)

	valueFlag := eventCmd.Flags().Lookup("value")
	require.NotNil(t, valueFlag)
	assert.Equal(t, "1", valueFlag.DefValue)
	assert.NotNil(t, eventCmd.Flags().Lookup("payload"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "x.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootOptionsConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.toml", `
database = "/var/lib/tripwire/state.db"
schedule_limit = 7
`)

	opts := &RootOptions{ConfigPath: path}
	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tripwire/state.db", cfg.Database)
	assert.Equal(t, 7, cfg.ScheduleLimit)

	again, err := opts.Config()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "config is loaded once")

	override := &RootOptions{ConfigPath: path, Database: filepath.Join(dir, "other.db")}
	cfg, err = override.Config()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "other.db"), cfg.Database)
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", "schedule_limit = 0\n")

	cmd := NewRootCommand()
	_, err := execute(cmd, "--config", path, "validate", "x.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
