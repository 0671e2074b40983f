package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// createTestStore opens a fresh store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestAction(repo, id string, kind ActionKind, clock int64) Action {
	return Action{
		CorrelationID: "corr-1",
		Repo:          repo,
		ArtifactID:    id,
		Kind:          kind,
		Actor:         "alice",
		Clock:         clock,
		RecordedAt:    time.Unix(1700000000+clock, 0).UTC(),
	}
}
