package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/config"
	"github.com/roach88/plent/internal/dedup"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/store"
	"github.com/roach88/plent/internal/vcs"
)

// app is the set of services every command builds from the
// configuration file.
type app struct {
	cfg   *config.Config
	reg   *registry.Registry
	codec artifact.Codec
	repos []*repo.Repo
	store *store.Store
}

type appOptions struct {
	// prepare clones missing working trees and pulls existing ones.
	prepare bool
	repo    []repo.Option
}

func openApp(ctx context.Context, opts *RootOptions, ao appOptions) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	reg, err := cfg.Registry(nil)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid routing table", err)
	}

	a := &app{cfg: cfg, reg: reg, codec: artifact.Msch{}}
	backend := opts.Backend
	if backend == nil {
		backend = func(root, committer string) vcs.Backend { return vcs.NewGit(root, committer) }
	}
	for _, rc := range cfg.Repos {
		root := cfg.RepoRoot(rc.Name)
		b := backend(root, cfg.BotName)
		if ao.prepare {
			if err := repo.Prepare(ctx, root, rc.Remote, b); err != nil {
				return nil, WrapExitError(ExitFailure, "failed to prepare repository "+rc.Name, err)
			}
		}
		r, err := repo.Open(rc.Name, root, b, a.codec, ao.repo...)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to open repository "+rc.Name, err)
		}
		a.repos = append(a.repos, r)
	}

	slog.Debug("opening database", "path", cfg.Database)
	a.store, err = store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func (a *app) repo(name string) (*repo.Repo, error) {
	for _, r := range a.repos {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown repository %q", name))
}

func (a *app) index() *dedup.Index {
	return dedup.New(a.repos, dedup.RegistryLocator{Registry: a.reg, Links: a.store}, dedup.WithWorkers(a.cfg.Workers))
}

// find locates a stored artifact by id across all repositories.
func (a *app) find(id artifact.ID) (*repo.Repo, repo.StoredFile, error) {
	for _, r := range a.repos {
		if f, ok := r.Find(id); ok {
			return r, f, nil
		}
	}
	return nil, repo.StoredFile{}, errNotStored
}

var errNotStored = errors.New("artifact not stored")
