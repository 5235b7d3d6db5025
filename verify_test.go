package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudtext/docsync/internal/etag"
	"github.com/cloudtext/docsync/internal/store"
)

func seedDB(t *testing.T, files ...*store.File) string {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "docsync.db")

	st, err := store.Open(ctx, dbPath, nil)
	require.NoError(t, err)

	for _, f := range files {
		require.NoError(t, st.SaveFile(ctx, f))
	}

	require.NoError(t, st.Close())

	return dbPath
}

func TestVerifyStore_NoMismatchesWhenETagsAreCorrect(t *testing.T) {
	lastModified := time.Now().UnixNano()
	content := "hello world"
	validETag := etag.Generate(etag.Input{
		ID:              "f1",
		Content:         content,
		LastModifiedISO: time.Unix(0, lastModified).UTC().Format(time.RFC3339),
	})

	dbPath := seedDB(t, &store.File{ID: "f1", Title: "doc", Content: content, ETag: validETag, LastModified: lastModified})

	mismatches, checked, err := verifyStore(context.Background(), dbPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Empty(t, mismatches)
}

func TestVerifyStore_DetectsStaleETag(t *testing.T) {
	dbPath := seedDB(t, &store.File{
		ID: "f1", Title: "doc", Content: "edited content",
		ETag: "0000000000000000000000000000dead", LastModified: time.Now().UnixNano(),
	})

	mismatches, checked, err := verifyStore(context.Background(), dbPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "f1", mismatches[0].FileID)
	assert.Equal(t, "0000000000000000000000000000dead", mismatches[0].Stored)
}

func TestVerifyStore_SkipsFoldersAndDeletedFiles(t *testing.T) {
	dbPath := seedDB(t,
		&store.File{ID: "folder1", Title: "dir", IsFolder: true},
		&store.File{ID: "deleted1", Title: "gone", IsDeleted: true, ETag: "bogus"},
	)

	mismatches, checked, err := verifyStore(context.Background(), dbPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, checked, "the store does not return soft-deleted rows, so only the folder is counted")
	assert.Empty(t, mismatches)
}
