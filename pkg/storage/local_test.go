package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	exists, err := s.Exists(ctx, "tasks/a.yaml")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Write(ctx, "tasks/a.yaml", []byte("description: hello")))

	exists, err = s.Exists(ctx, "tasks/a.yaml")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := s.Read(ctx, "tasks/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "description: hello", string(data))

	require.NoError(t, s.Delete(ctx, "tasks/a.yaml"))

	_, err = s.Read(ctx, "tasks/a.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageListSorted(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "tasks/b.yaml", []byte("b")))
	require.NoError(t, s.Write(ctx, "tasks/a.yaml", []byte("a")))
	require.NoError(t, s.Write(ctx, "tasks/c.yaml", []byte("c")))
	// Sibling prefixes are not included.
	require.NoError(t, s.Write(ctx, "dependencies/x.yaml", []byte("x")))

	paths, err := s.List(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks/a.yaml", "tasks/b.yaml", "tasks/c.yaml"}, paths)

	paths, err = s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, paths)
}
