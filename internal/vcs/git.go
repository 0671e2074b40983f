package vcs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git runs the git CLI against one working tree. All commands target the
// tree with "git -C <dir>".
type Git struct {
	dir string
	// identity, when set, supplies the committer via -c user.name/email.
	name, email string
}

var _ Backend = (*Git)(nil)

// NewGit returns a Git backend for dir. A non-empty committer name is used
// as the committing identity, so commits work on hosts without a global
// git config.
func NewGit(dir, committer string) *Git {
	g := &Git{dir: dir}
	if committer != "" {
		g.name = committer
		g.email = committer + "@localhost"
	}
	return g
}

// Dir returns the working tree.
func (g *Git) Dir() string { return g.dir }

// Run executes git in the working tree and returns stdout. Stderr is
// folded into the error on failure.
func (g *Git) Run(ctx context.Context, args ...string) (string, error) {
	full := []string{"-C", g.dir}
	if g.name != "" {
		full = append(full, "-c", "user.name="+g.name, "-c", "user.email="+g.email)
	}
	full = append(full, args...)
	return run(ctx, full, strings.Join(args, " "), g.dir)
}

func run(ctx context.Context, args []string, label, dir string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			label, dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Add stages path.
func (g *Git) Add(ctx context.Context, path string) error {
	_, err := g.Run(ctx, "add", "--", path)
	return err
}

// Remove force-removes path from the tree and the index.
func (g *Git) Remove(ctx context.Context, path string) error {
	_, err := g.Run(ctx, "rm", "-f", "--", path)
	return err
}

// Commit records staged changes under the given cosmetic author.
func (g *Git) Commit(ctx context.Context, author, message string) error {
	_, err := g.Run(ctx, "commit", "--author", author, "-m", message)
	return err
}

// Push forwards the current branch to its upstream.
func (g *Git) Push(ctx context.Context) error {
	_, err := g.Run(ctx, "push")
	return err
}

// Pull fast-forwards from the upstream.
func (g *Git) Pull(ctx context.Context) error {
	_, err := g.Run(ctx, "pull", "--ff-only")
	return err
}

// Blame returns the author of the first line of path.
func (g *Git) Blame(ctx context.Context, path string) (string, error) {
	out, err := g.Run(ctx, "blame", "--porcelain", "--", path)
	if err != nil {
		return "", err
	}
	return ParseBlameAuthor(out)
}

// ParseBlameAuthor extracts the first "author" header from porcelain
// blame output.
func ParseBlameAuthor(porcelain string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(porcelain))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "author ") {
			return strings.TrimPrefix(line, "author "), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("parse blame: %w", err)
	}
	return "", ErrNoAuthor
}

// Clone makes a shallow clone of remote into dir.
func Clone(ctx context.Context, remote, dir string, depth int) error {
	args := []string{"clone"}
	if depth > 0 {
		args = append(args, "--depth", fmt.Sprint(depth))
	}
	args = append(args, remote, dir)
	_, err := run(ctx, args, "clone", dir)
	return err
}
