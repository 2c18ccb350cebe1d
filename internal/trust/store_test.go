package trust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckNewHost(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	verdict, fp := s.Check("example.org", 1965, []byte("cert-bytes"))
	assert.Equal(t, New, verdict)
	assert.NotEmpty(t, fp)
}

func TestCommitThenCheckOk(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	cert := []byte("cert-bytes")
	_, fp := s.Check("example.org", 1965, cert)
	require.NoError(t, s.Commit("example.org", 1965, fp))

	verdict, _ := s.Check("example.org", 1965, cert)
	assert.Equal(t, Ok, verdict)
}

func TestCommitThenCheckMismatch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "hosts"))
	require.NoError(t, err)

	_, fp1 := s.Check("example.org", 1965, []byte("cert-1"))
	require.NoError(t, s.Commit("example.org", 1965, fp1))

	verdict, fp2 := s.Check("example.org", 1965, []byte("cert-2"))
	assert.Equal(t, Mismatch, verdict)
	assert.NotEqual(t, fp1, fp2)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	s, err := Open(path)
	require.NoError(t, err)
	_, fp := s.Check("example.org", 1965, []byte("cert-bytes"))
	require.NoError(t, s.Commit("example.org", 1965, fp))

	reopened, err := Open(path)
	require.NoError(t, err)
	verdict, _ := reopened.Check("example.org", 1965, []byte("cert-bytes"))
	assert.Equal(t, Ok, verdict)
}

func TestCorruptedLinesAreSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	writeFile(t, path, "example.org not-a-port abcd 2024-01-01T00:00:00Z\ngood.org 70 deadbeef 2024-01-01T00:00:00Z\n")

	s, err := Open(path)
	require.NoError(t, err)
	_, ok := s.Existing("good.org", 70)
	assert.True(t, ok)
	_, ok = s.Existing("example.org", 0)
	assert.False(t, ok)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
