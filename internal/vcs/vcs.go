// Package vcs is the version-control boundary for artifact repositories.
//
// Backend is deliberately narrow: stage, unstage, commit, push, pull and
// blame. Every operation blocks until the underlying tool finishes.
// Callers decide which failures are fatal; Git itself only reports them.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAuthor is returned by Blame when history has no author for a path.
var ErrNoAuthor = errors.New("no author in history")

// Backend versions one working tree. Paths are relative to the tree root.
type Backend interface {
	Add(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Commit(ctx context.Context, author, message string) error
	Push(ctx context.Context) error
	Pull(ctx context.Context) error
	// Blame returns the display name of the author of the path's content.
	Blame(ctx context.Context, path string) (string, error)
}

// Author formats the cosmetic commit author for a repository: the display
// name with the repository as a pseudo address.
func Author(name, repo string) string {
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	return fmt.Sprintf("%s <@%s>", name, repo)
}

// AuthorName strips the address part from an Author string.
func AuthorName(author string) string {
	if i := strings.LastIndex(author, " <"); i >= 0 {
		return author[:i]
	}
	return author
}
