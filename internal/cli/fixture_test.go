package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/vcs"
)

const testConfig = `
bot_name: plent
super_admin: 99
repos_dir: repos
database: plent.db
repos:
  - name: designs
    guild: 7
    chief: 10
    deny_emoji: "deny:1"
    channels:
      - id: 100
        dir: logic
        labels: [Logic]
      - id: 200
        dir: units
        label_strategy: unit-factory
`

// cliFixture is a config directory whose repositories use in-memory
// version control.
type cliFixture struct {
	dir    string
	config string

	mu        sync.Mutex
	recorders map[string]*vcs.Recorder
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	return &cliFixture{dir: dir, config: path, recorders: make(map[string]*vcs.Recorder)}
}

func (f *cliFixture) backend(root, _ string) vcs.Backend {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recorders[root]
	if !ok {
		rec = vcs.NewRecorder()
		f.recorders[root] = rec
	}
	return rec
}

func (f *cliFixture) root() string {
	return filepath.Join(f.dir, "repos", "designs")
}

func (f *cliFixture) recorder() *vcs.Recorder {
	return f.backend(f.root(), "").(*vcs.Recorder)
}

// seed stores a directly, as the bot would have.
func (f *cliFixture) seed(t *testing.T, dir string, id artifact.ID, a *artifact.Artifact, author string, user uint64) {
	t.Helper()
	r, err := repo.Open("designs", f.root(), f.backend(f.root(), ""), artifact.Msch{})
	require.NoError(t, err)
	require.NoError(t, r.Add(context.Background(), repo.Submission{
		Dir: dir, ID: id, Artifact: a, Author: author, UserID: user,
	}))
}

// run executes the root command and returns stdout and the error.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{Backend: f.backend}
	cmd := newRootCommand(opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append(args, "--config", f.config))
	err := cmd.Execute()
	return out.String(), err
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var resp response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}
