package config

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_IncludesAllSections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workspace.SyncDir = "/srv/docsync"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	out := buf.String()
	assert.Contains(t, out, "[workspace]")
	assert.Contains(t, out, "/srv/docsync")
	assert.Contains(t, out, "[sync]")
	assert.Contains(t, out, "[server]")
	assert.Contains(t, out, "[credrotate]")
	assert.Contains(t, out, "[logging]")
	assert.Contains(t, out, "[network]")
}

func TestRenderEffective_OmitsEmptyOptionalFields(t *testing.T) {
	cfg := DefaultConfig()

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, &buf))

	assert.NotContains(t, buf.String(), "user_id")
	assert.NotContains(t, buf.String(), "log_file")
}

type errorWriter struct{}

func (errorWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestRenderEffective_PropagatesWriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), errorWriter{})
	assert.ErrorIs(t, err, assert.AnError)
}
