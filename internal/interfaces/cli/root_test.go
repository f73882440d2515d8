package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandStructure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "mrcpipe", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Use] = true
	}
	for _, want := range []string{"clean", "filter", "rank", "labels", "features", "run"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestRootCommandGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	pf := cmd.PersistentFlags()

	for _, name := range []string{"config", "log-level", "workers", "max-doc-len", "input", "output"} {
		assert.NotNil(t, pf.Lookup(name), "missing flag %q", name)
	}

	assert.Equal(t, "-", pf.Lookup("input").DefValue)
	assert.Equal(t, "-", pf.Lookup("output").DefValue)
}

func TestGetCLIContextUninitialized(t *testing.T) {
	cmd := &cobra.Command{Use: "bare"}
	_, err := GetCLIContext(cmd)
	require.Error(t, err)
}
