package ownership

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
)

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	ix, err := Open(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestInsert_FlushesImmediately(t *testing.T) {
	root := t.TempDir()
	ix, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, ix.Insert(artifact.ID(1234), Record{Name: "bendy", UserID: 99}))

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"1234": ["bendy", 99]}`, string(data))

	reopened, err := Open(root)
	require.NoError(t, err)
	rec, err := reopened.Get(artifact.ID(1234))
	require.NoError(t, err)
	assert.Equal(t, Record{Name: "bendy", UserID: 99}, rec)
}

func TestGet_MissingFails(t *testing.T) {
	ix, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = ix.Get(artifact.ID(7))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErase_ReturnsPriorName(t *testing.T) {
	root := t.TempDir()
	ix, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, ix.Insert(artifact.ID(5), Record{Name: "ana", UserID: 1}))

	name, ok, err := ix.Erase(artifact.ID(5))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ana", name)
	assert.False(t, ix.Has(artifact.ID(5)))

	_, ok, err = ix.Erase(artifact.ID(5))
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := os.ReadFile(filepath.Join(root, FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestInsertAfterErase_FreshRecord(t *testing.T) {
	ix, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, ix.Insert(artifact.ID(5), Record{Name: "ana", UserID: 1}))
	_, _, err = ix.Erase(artifact.ID(5))
	require.NoError(t, err)
	require.NoError(t, ix.Insert(artifact.ID(5), Record{Name: "bo", UserID: 2}))

	rec, err := ix.Get(artifact.ID(5))
	require.NoError(t, err)
	assert.Equal(t, Record{Name: "bo", UserID: 2}, rec)
	assert.Equal(t, 1, ix.Len())
}

func TestInsert_FlushFailureRollsBack(t *testing.T) {
	root := t.TempDir()
	ix, err := Open(root)
	require.NoError(t, err)

	// A directory where the temp file should go makes the write fail.
	require.NoError(t, os.Mkdir(filepath.Join(root, FileName+".tmp"), 0o755))

	err = ix.Insert(artifact.ID(1), Record{Name: "x", UserID: 1})
	require.Error(t, err)
	assert.False(t, ix.Has(artifact.ID(1)))
}

func TestOpen_CorruptFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(`{"1": "nope"}`), 0o644))

	_, err := Open(root)
	assert.Error(t, err)
}

func TestConcurrentInserts(t *testing.T) {
	root := t.TempDir()
	ix, err := Open(root)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, ix.Insert(artifact.ID(i), Record{Name: "u", UserID: uint64(i % 3)}))
		}(i)
	}
	wg.Wait()

	reopened, err := Open(root)
	require.NoError(t, err)
	assert.Equal(t, 50, reopened.Len())
}

func TestLeaderboard(t *testing.T) {
	a, err := Open(t.TempDir())
	require.NoError(t, err)
	b, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, a.Insert(1, Record{Name: "old-nick", UserID: 10}))
	require.NoError(t, a.Insert(2, Record{Name: "new-nick", UserID: 10}))
	require.NoError(t, b.Insert(3, Record{Name: "new-nick", UserID: 10}))
	require.NoError(t, a.Insert(4, Record{Name: "mo", UserID: 20}))
	require.NoError(t, b.Insert(5, Record{Name: "mo", UserID: 20}))
	require.NoError(t, b.Insert(6, Record{Name: "bot", UserID: 30}))

	got := Leaderboard([]*Index{a, b}, 5, func(id uint64) bool { return id == 30 })
	assert.Equal(t, []Standing{
		{UserID: 10, Name: "new-nick", Count: 3},
		{UserID: 20, Name: "mo", Count: 2},
	}, got)

	top := Leaderboard([]*Index{a, b}, 1, nil)
	require.Len(t, top, 1)
	assert.Equal(t, uint64(10), top[0].UserID)
}
