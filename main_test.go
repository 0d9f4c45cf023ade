package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"config", "offsets", "debug"} {
		flag := rootCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "missing --%s", name)
	}
	assert.Equal(t, "beatkeeper", rootCmd.Use)
}
