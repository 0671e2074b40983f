package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/plent/internal/vcs"
)

// CloneDepth is the history depth fetched for fresh working trees.
const CloneDepth = 5

// Prepare makes sure root holds a working tree. An existing tree is
// fast-forwarded (failures logged); a missing one is cloned from remote.
func Prepare(ctx context.Context, root, remote string, backend vcs.Backend) error {
	_, err := os.Stat(filepath.Join(root, ".git"))
	switch {
	case err == nil:
		if err := backend.Pull(ctx); err != nil {
			slog.Warn("pull failed, continuing with local tree", "root", root, "error", err)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("stat %s: %w", root, err)
	case remote == "":
		return fmt.Errorf("%s is not a working tree and no remote is configured", root)
	}

	if err := os.MkdirAll(filepath.Dir(root), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", root, err)
	}
	slog.Info("cloning repository", "root", root)
	if err := vcs.Clone(ctx, remote, root, CloneDepth); err != nil {
		return fmt.Errorf("prepare %s: %w", root, err)
	}
	return nil
}
