package vcs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInjected is returned by Recorder operations configured to fail.
var ErrInjected = errors.New("injected vcs failure")

// CommitRecord is one commit captured by Recorder.
type CommitRecord struct {
	Author  string
	Message string
	Paths   []string
}

// Recorder is an in-memory Backend for tests. It tracks staged paths and
// commits and can be told to fail individual operations.
type Recorder struct {
	mu sync.Mutex

	staged  map[string]bool
	commits []CommitRecord
	authors map[string]string
	pushes  int
	pulls   int

	FailAdd    bool
	FailRemove bool
	FailCommit bool
	FailPush   bool
}

var _ Backend = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{staged: make(map[string]bool), authors: make(map[string]string)}
}

func (r *Recorder) Add(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAdd {
		return fmt.Errorf("add %s: %w", path, ErrInjected)
	}
	r.staged[path] = true
	return nil
}

func (r *Recorder) Remove(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailRemove {
		return fmt.Errorf("rm %s: %w", path, ErrInjected)
	}
	r.staged[path] = true
	return nil
}

func (r *Recorder) Commit(_ context.Context, author, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailCommit {
		return fmt.Errorf("commit: %w", ErrInjected)
	}
	if len(r.staged) == 0 {
		return fmt.Errorf("commit %q: nothing to commit", message)
	}
	paths := make([]string, 0, len(r.staged))
	for p := range r.staged {
		paths = append(paths, p)
		r.authors[p] = AuthorName(author)
	}
	sort.Strings(paths)
	r.commits = append(r.commits, CommitRecord{Author: author, Message: message, Paths: paths})
	r.staged = make(map[string]bool)
	return nil
}

func (r *Recorder) Push(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailPush {
		return fmt.Errorf("push: %w", ErrInjected)
	}
	r.pushes++
	return nil
}

func (r *Recorder) Pull(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulls++
	return nil
}

func (r *Recorder) Blame(_ context.Context, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.authors[path]
	if !ok {
		return "", fmt.Errorf("blame %s: %w", path, ErrNoAuthor)
	}
	return name, nil
}

// Commits returns a copy of the recorded commits.
func (r *Recorder) Commits() []CommitRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CommitRecord(nil), r.commits...)
}

// Messages returns the commit messages in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commits))
	for i, c := range r.commits {
		out[i] = c.Message
	}
	return out
}

// Pushes counts successful pushes.
func (r *Recorder) Pushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes
}

// Staged reports whether anything is staged and not yet committed.
func (r *Recorder) Staged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged) > 0
}
