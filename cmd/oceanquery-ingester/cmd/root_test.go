package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestFlags(t *testing.T) {
	cmd := ingestCmd()
	for _, name := range []string{"input-dir", "max-workers", "dry-run", "force"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestIngestFileFlags(t *testing.T) {
	cmd := ingestFileCmd()
	for _, name := range []string{"input", "dry-run", "force"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestIngestFileRequiresPaths(t *testing.T) {
	root := RootCmd()
	root.SetArgs([]string{"ingest-file"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files given")
}
