package memory

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

func TestBlobStore_PutGetDelete(t *testing.T) {
	store := NewBlobStore()
	ctx := context.Background()

	data := []byte("png")
	require.NoError(t, store.Put(ctx, "cs101/week1/doc/page-0001.png", data))
	data[0] = 'X'

	got, err := store.Get(ctx, "cs101/week1/doc/page-0001.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	require.NoError(t, store.Delete(ctx, "cs101/week1/doc/page-0001.png"))
	_, err = store.Get(ctx, "cs101/week1/doc/page-0001.png")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting a missing blob is fine.
	assert.NoError(t, store.Delete(ctx, "nope"))
	assert.ErrorIs(t, store.Put(ctx, "", nil), domain.ErrInvalidInput)
	assert.NoError(t, store.Close())
}

func TestBlobStore_DeletePrefix(t *testing.T) {
	store := NewBlobStore()
	ctx := context.Background()

	for _, ref := range []string{
		"cs101/week1/doc-a/page-0001.png",
		"cs101/week1/doc-a/0001/figure-01.png",
		"cs101/week10/doc-b/page-0001.png",
		"cs101/week2/doc-c/page-0001.png",
	} {
		require.NoError(t, store.Put(ctx, ref, []byte(ref)))
	}

	require.NoError(t, store.DeletePrefix(ctx, domain.Scope{Subject: "cs101", Lecture: "week1"}.BlobPrefix()))

	refs := store.Refs()
	sort.Strings(refs)
	assert.Equal(t, []string{"cs101/week10/doc-b/page-0001.png", "cs101/week2/doc-c/page-0001.png"}, refs)
}
