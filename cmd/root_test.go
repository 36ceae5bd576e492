package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "search", "report"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "osint-investigator", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "city", "terms", "report", "format", "poll"} {
		assert.NotNil(t, searchCmd.Flags().Lookup(name), "search command should have --%s flag", name)
	}
	assert.Equal(t, "500ms", searchCmd.Flags().Lookup("poll").DefValue)
}

func TestReportCommand_Args(t *testing.T) {
	assert.Error(t, reportCmd.Args(reportCmd, nil))
	assert.NoError(t, reportCmd.Args(reportCmd, []string{"profile.json"}))
	assert.NotNil(t, reportCmd.Flags().Lookup("format"))
}
