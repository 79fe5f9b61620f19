package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte(`{"steps":["plan","execute"]}`)

	etag, err := store.Put(ctx, "verbose_steps/corr-1.json", bytes.NewReader(content), PutOptions{
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	reader, attrs, err := store.Get(ctx, "verbose_steps/corr-1.json")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "verbose_steps/corr-1.json", attrs.Key)
	assert.Equal(t, int64(len(content)), attrs.Size)
	assert.Equal(t, "application/json", attrs.ContentType)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	_, _, err := store.Get(ctx, "verbose_steps/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, "board_rationale/decision-1.txt", bytes.NewReader([]byte("rationale")), PutOptions{})
	require.NoError(t, err)

	err = store.Delete(ctx, "board_rationale/decision-1.txt")
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "board_rationale/decision-1.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	keys := []string{
		"verbose_steps/corr-1.json",
		"verbose_steps/corr-2.json",
		"board_rationale/decision-1.txt",
		"board_rationale/decision-2.txt",
	}
	for _, k := range keys {
		_, err := store.Put(ctx, k, bytes.NewReader([]byte("content")), PutOptions{})
		require.NoError(t, err)
	}

	result, err := store.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Objects, 4)

	result, err = store.List(ctx, ListOptions{Prefix: "verbose_steps/"})
	require.NoError(t, err)
	assert.Len(t, result.Objects, 2)

	result, err = store.List(ctx, ListOptions{Prefix: "", Delimiter: "/"})
	require.NoError(t, err)
	assert.Empty(t, result.Objects)
	assert.Contains(t, result.CommonPrefixes, "verbose_steps/")
	assert.Contains(t, result.CommonPrefixes, "board_rationale/")
}

func TestMemoryStore_Head(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("rationale text")
	_, err := store.Put(ctx, "board_rationale/decision-3.txt", bytes.NewReader(content), PutOptions{
		ContentType: "text/plain",
	})
	require.NoError(t, err)

	attrs, err := store.Head(ctx, "board_rationale/decision-3.txt")
	require.NoError(t, err)
	assert.Equal(t, "board_rationale/decision-3.txt", attrs.Key)
	assert.Equal(t, int64(len(content)), attrs.Size)
	assert.Equal(t, "text/plain", attrs.ContentType)

	_, err = store.Head(ctx, "board_rationale/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Copy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("archived transcript")
	_, err := store.Put(ctx, "verbose_steps/corr-orig.json", bytes.NewReader(content), PutOptions{})
	require.NoError(t, err)

	err = store.Copy(ctx, "verbose_steps/corr-orig.json", "verbose_steps/corr-copy.json")
	require.NoError(t, err)

	reader, _, err := store.Get(ctx, "verbose_steps/corr-copy.json")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	err = store.Copy(ctx, "verbose_steps/nonexistent.json", "verbose_steps/dest.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Exists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	exists, err := store.Exists(ctx, "verbose_steps/corr-exists.json")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "verbose_steps/corr-exists.json", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "verbose_steps/corr-exists.json")
	require.NoError(t, err)
	assert.True(t, exists)
}
