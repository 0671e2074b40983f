package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/plent/internal/repo"
)

func TestClock_Next(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(43), c.Next())
	assert.Equal(t, int64(43), c.Current())
}

func TestClock_ConcurrentNextIsUnique(t *testing.T) {
	c := &Clock{}
	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v := c.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
	assert.Equal(t, int64(1000), c.Current())
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))
	ctx := withCorrelation(context.Background(), "evt-9")
	assert.Equal(t, "evt-9", CorrelationID(ctx))

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
}

func TestHandlerError(t *testing.T) {
	cause := &repo.Error{Kind: repo.KindVCS, Op: "commit", Repo: "designs", Err: errors.New("exit 1")}
	err := repoFailure("add", "designs", 0x3e8, cause)

	assert.Equal(t, VcsFailure, ClassOf(err))
	assert.True(t, IsVcsFailure(err))
	assert.False(t, IsPersistenceFailure(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "vcs failure: add (repo=designs, artifact=3e8)")

	persist := repoFailure("add", "designs", 1, &repo.Error{Kind: repo.KindPersistence, Op: "write"})
	assert.True(t, IsPersistenceFailure(persist))

	assert.Equal(t, Class(""), ClassOf(errors.New("plain")))
}
