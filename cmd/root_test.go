package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "register", "match", "abn", "companies", "requests", "import", "stats", "config"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "registry-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRegisterCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"name", "abn", "contact-email", "acknowledge-duplicates"} {
		flag := registerCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "register should have --%s flag", flagName)
	}
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("source")
	require.NotNil(t, flag, "import command should have --source flag")
}

func TestMatchCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range matchCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["name"])
	assert.True(t, names["abn"])
}

func TestABNCommand(t *testing.T) {
	var out bytes.Buffer
	abnCmd.SetOut(&out)

	require.NoError(t, abnCmd.RunE(abnCmd, []string{"51 824 753 556"}))
	assert.Equal(t, "51 824 753 556\n", out.String())

	assert.Error(t, abnCmd.RunE(abnCmd, []string{"51824753557"}))
}
