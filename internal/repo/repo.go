// Package repo stores artifacts in one version-controlled working tree.
//
// Layout: <root>/<dir>/<hex id>.<ext> for artifacts and
// <root>/ownership.json for attribution. Each change (add, update,
// remove) produces exactly one commit. Commit, remove and ownership
// failures are returned; push failures are only logged.
package repo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/ownership"
	"github.com/roach88/plent/internal/vcs"
)

// Repo is one artifact repository.
type Repo struct {
	name    string
	root    string
	backend vcs.Backend
	codec   artifact.Codec
	own     *ownership.Index

	onPushFailure func(repo string)

	// mu serializes every mutation of the working tree and its history.
	mu sync.Mutex
}

// Option configures a Repo.
type Option func(*Repo)

// WithPushFailureHook registers a callback invoked after each failed push.
func WithPushFailureHook(fn func(repo string)) Option {
	return func(r *Repo) { r.onPushFailure = fn }
}

// Open loads the ownership index under root and returns the repository.
func Open(name, root string, backend vcs.Backend, codec artifact.Codec, opts ...Option) (*Repo, error) {
	own, err := ownership.Open(root)
	if err != nil {
		return nil, &Error{Kind: KindPersistence, Op: "open ownership", Repo: name, Err: err}
	}
	r := &Repo{name: name, root: root, backend: backend, codec: codec, own: own}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the repository name.
func (r *Repo) Name() string { return r.name }

// Root returns the working tree root.
func (r *Repo) Root() string { return r.root }

// Codec returns the artifact codec.
func (r *Repo) Codec() artifact.Codec { return r.codec }

// Ownership returns the repository's ownership index.
func (r *Repo) Ownership() *ownership.Index { return r.own }

// RelPath is the tree-relative path of an artifact, slash separated.
func (r *Repo) RelPath(dir string, id artifact.ID) string {
	return path.Join(dir, id.Hex()+"."+r.codec.Ext())
}

// Path is the absolute filesystem path of an artifact.
func (r *Repo) Path(dir string, id artifact.ID) string {
	return filepath.Join(r.root, filepath.FromSlash(r.RelPath(dir, id)))
}

// Has reports whether an artifact file exists.
func (r *Repo) Has(dir string, id artifact.ID) bool {
	_, err := os.Stat(r.Path(dir, id))
	return err == nil
}

// Read loads and decodes a stored artifact.
func (r *Repo) Read(dir string, id artifact.ID) (*artifact.Artifact, error) {
	data, err := os.ReadFile(r.Path(dir, id))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.RelPath(dir, id), err)
	}
	a, err := r.codec.Decode(data)
	if err != nil {
		return nil, &Error{Kind: KindCodec, Op: "decode", Repo: r.name, Path: r.RelPath(dir, id), Err: err}
	}
	return a, nil
}

// ReadRaw returns a stored artifact's bytes.
func (r *Repo) ReadRaw(dir string, id artifact.ID) ([]byte, error) {
	return os.ReadFile(r.Path(dir, id))
}

// Rewrite serializes a into <dir>/<hex id>.<ext> and stages it, reporting
// whether the stored bytes changed. Nothing is staged when they did not.
func (r *Repo) Rewrite(ctx context.Context, dir string, id artifact.ID, a *artifact.Artifact) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeLocked(ctx, dir, id, a)
}

// Remove force-removes a stored artifact and stages the removal. The file
// must exist.
func (r *Repo) Remove(ctx context.Context, dir string, id artifact.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(ctx, dir, id)
}

// Commit records staged changes with the cosmetic author "<name> <@repo>".
func (r *Repo) Commit(ctx context.Context, authorName, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked(ctx, authorName, message)
}

// Push forwards history to the remote. Failures are logged, never returned.
func (r *Repo) Push(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(ctx)
}

// Blame returns the display name of the author of a stored artifact.
func (r *Repo) Blame(ctx context.Context, dir string, id artifact.ID) (string, error) {
	name, err := r.backend.Blame(ctx, r.RelPath(dir, id))
	if err != nil {
		return "", &Error{Kind: KindVCS, Op: "blame", Repo: r.name, Path: r.RelPath(dir, id), Err: err}
	}
	return name, nil
}

// Pull fast-forwards the working tree.
func (r *Repo) Pull(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.backend.Pull(ctx); err != nil {
		return &Error{Kind: KindVCS, Op: "pull", Repo: r.name, Err: err}
	}
	return nil
}

// writeLocked reports whether the file content changed.
func (r *Repo) writeLocked(ctx context.Context, dir string, id artifact.ID, a *artifact.Artifact) (bool, error) {
	rel := r.RelPath(dir, id)
	data, err := r.codec.Encode(a)
	if err != nil {
		return false, &Error{Kind: KindCodec, Op: "encode", Repo: r.name, Path: rel, Err: err}
	}
	full := r.Path(dir, id)
	if old, err := os.ReadFile(full); err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, &Error{Kind: KindPersistence, Op: "mkdir", Repo: r.name, Path: dir, Err: err}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return false, &Error{Kind: KindPersistence, Op: "write", Repo: r.name, Path: rel, Err: err}
	}
	if err := r.backend.Add(ctx, rel); err != nil {
		return false, &Error{Kind: KindVCS, Op: "add", Repo: r.name, Path: rel, Err: err}
	}
	return true, nil
}

func (r *Repo) removeLocked(ctx context.Context, dir string, id artifact.ID) error {
	rel := r.RelPath(dir, id)
	if !r.Has(dir, id) {
		return &Error{Kind: KindPersistence, Op: "remove", Repo: r.name, Path: rel, Err: fs.ErrNotExist}
	}
	if err := r.backend.Remove(ctx, rel); err != nil {
		return &Error{Kind: KindVCS, Op: "remove", Repo: r.name, Path: rel, Err: err}
	}
	// git rm deletes the file; other backends may leave it behind.
	if err := os.Remove(r.Path(dir, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Kind: KindPersistence, Op: "remove", Repo: r.name, Path: rel, Err: err}
	}
	return nil
}

func (r *Repo) commitLocked(ctx context.Context, authorName, message string) error {
	if err := r.backend.Commit(ctx, vcs.Author(authorName, r.name), message); err != nil {
		return &Error{Kind: KindVCS, Op: "commit", Repo: r.name, Err: err}
	}
	return nil
}

func (r *Repo) pushLocked(ctx context.Context) {
	if err := r.backend.Push(ctx); err != nil {
		slog.Warn("push failed", "repo", r.name, "error", err)
		if r.onPushFailure != nil {
			r.onPushFailure(r.name)
		}
	}
}

// StoredFile is an artifact file found in the working tree.
type StoredFile struct {
	Dir string
	ID  artifact.ID
}

// Files lists every artifact file in the tree, ordered by dir then id.
func (r *Repo) Files() ([]StoredFile, error) {
	ext := "." + r.codec.Ext()
	var out []StoredFile
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == r.root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != r.root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(p) != ext {
			return nil
		}
		id, err := artifact.ParseHex(strings.TrimSuffix(d.Name(), ext))
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(r.root, filepath.Dir(p))
		if err != nil {
			return err
		}
		out = append(out, StoredFile{Dir: filepath.ToSlash(rel), ID: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.name, err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dir != out[j].Dir {
			return out[i].Dir < out[j].Dir
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Find locates a stored artifact by id in any directory.
func (r *Repo) Find(id artifact.ID) (StoredFile, bool) {
	files, err := r.Files()
	if err != nil {
		return StoredFile{}, false
	}
	for _, f := range files {
		if f.ID == id {
			return f, true
		}
	}
	return StoredFile{}, false
}
