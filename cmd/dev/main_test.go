package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"build", "test", "lint", "integration-test"}, names)
	for _, name := range []string{"debug", "json", "module"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "C", root.PersistentFlags().Lookup("module").Shorthand)
}

func TestDevLogger(t *testing.T) {
	logger := devLogger(rootFlags{debug: true, json: true})
	require.NotNil(t, logger)
	assert.Equal(t, "debug", logger.GetLevel().String())
	assert.Equal(t, "afe-dev", logger.GetPrefix())
}
