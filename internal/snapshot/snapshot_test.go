package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/originguard/internal/policy"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "edges.txt")
	s := NewStore(path)

	want := policy.MustParseAddressSet("2001:db8::1", "10.0.0.10", "10.0.0.9")
	require.NoError(t, s.Save(want))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9\n10.0.0.10\n2001:db8::1\n", string(data))

	got, err := s.Load()
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestStoreLoadMissing(t *testing.T) {
	got, err := NewStore(filepath.Join(t.TempDir(), "absent.txt")).Load()
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestStoreLoadTolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.txt")
	content := "# written by hand\n\n  1.2.3.4  \nnot-an-ip\n1.2.3.4\n2001:DB8::5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2.3.4", "2001:db8::5"}, got.Strings())
}

func TestStoreSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.txt")
	s := NewStore(path)

	require.NoError(t, s.Save(policy.MustParseAddressSet("1.1.1.1", "2.2.2.2")))
	require.NoError(t, s.Save(policy.MustParseAddressSet("3.3.3.3")))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"3.3.3.3"}, got.Strings())
}

func TestStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := NewStore(filepath.Join(blocker, "edges.txt")).Save(policy.MustParseAddressSet("1.1.1.1"))

	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "write", pe.Op)
}

func TestNewStoreDefault(t *testing.T) {
	assert.Equal(t, DefaultPath, NewStore("").Path())
}
