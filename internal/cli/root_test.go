package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ferrule", cmd.Use)
	assert.Contains(t, cmd.Long, "ownership-correct")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"transpile", "check", "signatures", "catalog", "watch", "history", "replay", "test"}

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

	workersFlag := cmd.PersistentFlags().Lookup("workers")
	require.NotNil(t, workersFlag)
	assert.Equal(t, "j", workersFlag.Shorthand)

	for _, name := range []string{"config", "catalog", "db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestTranspileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"transpile"})
	require.NoError(t, err)

	outFlag := sub.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
	assert.NotNil(t, sub.Flags().Lookup("signatures"))
	assert.NotNil(t, sub.Flags().Lookup("stdout"))
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	_, _, err := execute(cmd, "--format", "xml", "catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadSettingsAppliesOverrides(t *testing.T) {
	set, err := loadSettings(&RootOptions{Workers: 3, Database: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, 3, set.cfg.Workers)
	assert.Equal(t, "x.db", set.cfg.Store)
	assert.NotEmpty(t, set.cat.Fingerprint())
}

func TestLoadSettingsBadConfig(t *testing.T) {
	_, err := loadSettings(&RootOptions{Config: "/nonexistent/ferrule.cue"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
