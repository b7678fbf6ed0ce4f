package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCmd_EmptyTarget(t *testing.T) {
	fx := newFixture(t)
	useConfig(t, fx.cfgPath)

	out, err := runCommand(t, func() error { return statusCmd.RunE(statusCmd, nil) })
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "units: 0\n"), out)
	assert.NotContains(t, out, "failures:")
}

func TestStatusCmd_AfterRun(t *testing.T) {
	fx := newFixture(t)
	useConfig(t, fx.cfgPath)

	_, err := runCommand(t, func() error { return runCmd.RunE(runCmd, nil) })
	require.NoError(t, err)

	statusFailures = true
	t.Cleanup(func() { statusFailures = false })

	out, err := runCommand(t, func() error { return statusCmd.RunE(statusCmd, nil) })
	require.NoError(t, err)
	assert.Contains(t, out, "units: 2\n")
	assert.Contains(t, out, "  committed: 1\n")
	assert.Contains(t, out, "  failed: 1\n")
	assert.Contains(t, out, "woodland_owners: 2", "rows written before the file failure stay in place")
	assert.Contains(t, out, "#2 kind=data_integrity")
}
