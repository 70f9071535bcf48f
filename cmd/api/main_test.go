package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outboxapi/internal/config"
)

func TestNewPendingStorage_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pending")
	cfg := &config.AppConfig{Pending: config.PendingConfig{Backend: "local", Dir: dir}}

	st, err := newPendingStorage(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, st)
	assert.DirExists(t, dir)
}

func TestNewPendingStorage_LocalRequiresDir(t *testing.T) {
	cfg := &config.AppConfig{Pending: config.PendingConfig{Backend: "local"}}

	_, err := newPendingStorage(context.Background(), cfg)
	assert.Error(t, err)
}
