package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sqlgate", cmd.Use)
	assert.Contains(t, cmd.Long, "time limit")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"query", "canned", "databases", "versions", "check", "labels", "settings"}

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

	fileFlag := cmd.PersistentFlags().Lookup("file")
	require.NotNil(t, fileFlag)
	assert.Equal(t, "f", fileFlag.Shorthand)

	for _, name := range []string{"immutable", "memory", "metadata", "settings", "setting", "load-extension"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
}

func TestQueryCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	queryCmd, _, err := cmd.Find([]string{"query"})
	require.NoError(t, err)

	assert.NotNil(t, queryCmd.Flags().Lookup("param"))
	assert.NotNil(t, queryCmd.Flags().Lookup("named"))

	truncate := queryCmd.Flags().Lookup("truncate")
	require.NotNil(t, truncate)
	assert.Equal(t, "false", truncate.DefValue)

	limit := queryCmd.Flags().Lookup("time-limit")
	require.NotNil(t, limit)
	assert.Equal(t, "0s", limit.DefValue)
}

func TestDatabasesCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	dbCmd, _, err := cmd.Find([]string{"databases"})
	require.NoError(t, err)

	hash := dbCmd.Flags().Lookup("hash")
	require.NotNil(t, hash)
	assert.Equal(t, "false", hash.DefValue)
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
	cmd.SetArgs([]string{"--format", "invalid", "settings"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
