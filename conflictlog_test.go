package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConflictLog_AbsentFileReturnsEmpty(t *testing.T) {
	withTempDataDir(t)

	entries, err := loadConflictLog()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendConflictLog_StampsDetectedAtAndPersists(t *testing.T) {
	withTempDataDir(t)

	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f1", AppliedStrategy: "server"}))

	entries, err := loadConflictLog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f1", entries[0].FileID)
	assert.NotEmpty(t, entries[0].DetectedAt)
}

func TestAppendConflictLog_Accumulates(t *testing.T) {
	withTempDataDir(t)

	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f1"}))
	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f2"}))

	entries, err := loadConflictLog()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRemoveConflictLog_DropsOnlyMatchingEntry(t *testing.T) {
	withTempDataDir(t)

	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f1"}))
	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f2"}))

	require.NoError(t, removeConflictLog("f1"))

	entries, err := loadConflictLog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f2", entries[0].FileID)
}

func TestRemoveConflictLog_MissingIDIsNoop(t *testing.T) {
	withTempDataDir(t)

	require.NoError(t, appendConflictLog(pendingConflict{FileID: "f1"}))
	require.NoError(t, removeConflictLog("does-not-exist"))

	entries, err := loadConflictLog()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
