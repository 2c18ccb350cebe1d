package bookmarks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Add("Example", "gopher://example.org/1/", nil))

	reopened, err := Open(path)
	require.NoError(t, err)
	all := reopened.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Example", all[0].Title)
}

func TestAddDuplicateRejected(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "bookmarks.yaml"))
	require.NoError(t, err)

	require.NoError(t, s.Add("Example", "gopher://example.org/1/", nil))
	err = s.Add("Example Again", "gopher://example.org/1/", nil)
	assert.ErrorIs(t, err, ErrExists)
}

func TestRemove(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "bookmarks.yaml"))
	require.NoError(t, err)

	require.NoError(t, s.Add("Example", "gopher://example.org/1/", nil))
	require.NoError(t, s.Remove("gopher://example.org/1/"))
	assert.Empty(t, s.All())
}
