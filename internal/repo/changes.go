package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/ownership"
)

// Submission is an artifact posted by a member.
type Submission struct {
	Dir      string
	ID       artifact.ID
	Artifact *artifact.Artifact
	// Author is the member's display name.
	Author string
	UserID uint64
}

// Add stores a new artifact: write, attribute, commit "add <hex>" with
// the ownership index, push. It returns ErrExists when the file is
// already stored.
func (r *Repo) Add(ctx context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.addLocked(ctx, s); err != nil {
		return err
	}
	r.pushLocked(ctx)
	return nil
}

// Import is Add without the push. Bulk imports push once at the end.
func (r *Repo) Import(ctx context.Context, s Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(ctx, s)
}

func (r *Repo) addLocked(ctx context.Context, s Submission) error {
	if r.Has(s.Dir, s.ID) {
		return ErrExists
	}
	if _, err := r.writeLocked(ctx, s.Dir, s.ID, s.Artifact); err != nil {
		return err
	}
	if err := r.own.Insert(s.ID, ownership.Record{Name: s.Author, UserID: s.UserID}); err != nil {
		return &Error{Kind: KindPersistence, Op: "insert ownership", Repo: r.name, Path: r.RelPath(s.Dir, s.ID), Err: err}
	}
	if err := r.stageOwnershipLocked(ctx); err != nil {
		return err
	}
	return r.commitLocked(ctx, s.Author, "add "+s.ID.Hex())
}

// Update overwrites an existing artifact and commits "update <hex>". It
// reports false without committing when no file exists or the stored bytes
// are already identical.
func (r *Repo) Update(ctx context.Context, s Submission) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Has(s.Dir, s.ID) {
		return false, nil
	}
	changed, err := r.writeLocked(ctx, s.Dir, s.ID, s.Artifact)
	if err != nil || !changed {
		return false, err
	}
	if err := r.commitLocked(ctx, s.Author, "update "+s.ID.Hex()); err != nil {
		return false, err
	}
	r.pushLocked(ctx)
	return true, nil
}

// UnknownOwner stands in when neither the index nor history names a
// submitter.
const UnknownOwner = "unknown"

// Removal describes a deleted artifact.
type Removal struct {
	ID artifact.ID
	// Name is the artifact's name tag, or "" if the file did not decode.
	Name string
	// Owner is the attributed submitter.
	Owner string
}

// Delete removes a stored artifact: resolve the attributor (falling back
// to blame), remove, erase ownership, commit "remove <hex>", push. It
// reports false when nothing is stored under id.
func (r *Repo) Delete(ctx context.Context, dir string, id artifact.ID, actor string) (Removal, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Has(dir, id) {
		return Removal{}, false, nil
	}
	rm := Removal{ID: id}
	if a, err := r.Read(dir, id); err == nil {
		rm.Name = a.Name()
	} else {
		slog.Warn("stored artifact unreadable", "repo", r.name, "artifact_id", id.Hex(), "error", err)
	}

	owner, err := r.attributorLocked(ctx, dir, id)
	if err != nil {
		slog.Warn("no attributor for artifact", "repo", r.name, "artifact_id", id.Hex(), "error", err)
		owner = UnknownOwner
	}
	rm.Owner = owner

	if err := r.removeLocked(ctx, dir, id); err != nil {
		return Removal{}, false, err
	}
	if _, _, err := r.own.Erase(id); err != nil {
		return Removal{}, false, &Error{Kind: KindPersistence, Op: "erase ownership", Repo: r.name, Path: r.RelPath(dir, id), Err: err}
	}
	if err := r.stageOwnershipLocked(ctx); err != nil {
		return Removal{}, false, err
	}
	if err := r.commitLocked(ctx, actor, "remove "+id.Hex()); err != nil {
		return Removal{}, false, err
	}
	r.pushLocked(ctx)
	return rm, true, nil
}

// stageOwnershipLocked stages the ownership index so the change commit
// carries it.
func (r *Repo) stageOwnershipLocked(ctx context.Context) error {
	if err := r.backend.Add(ctx, ownership.FileName); err != nil {
		return &Error{Kind: KindVCS, Op: "add", Repo: r.name, Path: ownership.FileName, Err: err}
	}
	return nil
}

// Attributor returns the submitter name for a stored artifact.
func (r *Repo) Attributor(ctx context.Context, dir string, id artifact.ID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attributorLocked(ctx, dir, id)
}

func (r *Repo) attributorLocked(ctx context.Context, dir string, id artifact.ID) (string, error) {
	if r.own.Has(id) {
		rec, err := r.own.Get(id)
		if err == nil {
			return rec.Name, nil
		}
		if !errors.Is(err, ownership.ErrNotFound) {
			return "", &Error{Kind: KindPersistence, Op: "get ownership", Repo: r.name, Err: err}
		}
	}
	name, err := r.Blame(ctx, dir, id)
	if err != nil {
		return "", fmt.Errorf("attribute %s: %w", id.Hex(), err)
	}
	return name, nil
}
