package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	info, err := s.Put(ctx, "pending/a/meta.json", strings.NewReader(`{"id":"a"}`), PutObjectOptions{Size: -1, ContentType: "application/json"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)

	rc, got, err := s.Get(ctx, "pending/a/meta.json")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, `{"id":"a"}`, string(body))
	assert.Equal(t, int64(10), got.Size)

	_, _, err = s.Get(ctx, "pending/missing/meta.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"pending/b/meta.json", "pending/a/meta.json", "pending/a/draft.docx", "other/x"} {
		_, err := s.Put(ctx, key, strings.NewReader("x"), PutObjectOptions{Size: 1})
		require.NoError(t, err)
	}

	objs, err := s.List(ctx, "pending/")
	require.NoError(t, err)
	keys := make([]string, 0, len(objs))
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"pending/a/draft.docx", "pending/a/meta.json", "pending/b/meta.json"}, keys)

	require.NoError(t, s.DeletePrefix(ctx, "pending/a/"))
	objs, err = s.List(ctx, "pending/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "pending/b/meta.json", objs[0].Key)

	require.NoError(t, s.Delete(ctx, "pending/b/meta.json"))
	require.NoError(t, s.Delete(ctx, "pending/b/meta.json"), "deleting twice is not an error")
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../escape", strings.NewReader("x"), PutObjectOptions{})
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.pdf")

	n, err := WriteFileAtomic(path, strings.NewReader("first"), 0o640)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = WriteFileAtomic(path, strings.NewReader("second"), 0o640)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
