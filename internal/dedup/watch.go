package dedup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/repo"
)

// Warm loads every stored artifact into memory. Later searches use the
// cache instead of rescanning disk.
func (ix *Index) Warm(ctx context.Context) error {
	entries, err := ix.scan(ctx)
	if err != nil {
		return err
	}
	cache := make(map[string]entry, len(entries))
	for _, e := range entries {
		cache[e.repo.Path(e.file.Dir, e.file.ID)] = e
	}
	ix.mu.Lock()
	ix.cache = cache
	ix.mu.Unlock()
	return nil
}

// Watch warms the cache and keeps it current from filesystem events until
// ctx is done.
func (ix *Index) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch repositories: %w", err)
	}
	for _, r := range ix.repos {
		if err := addRecursive(w, r.Root()); err != nil {
			w.Close()
			return fmt.Errorf("watch %s: %w", r.Name(), err)
		}
	}
	if err := ix.Warm(ctx); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				ix.handleEvent(w, ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("repository watch error", "error", err)
			}
		}
	}()
	return nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && p != root {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (ix *Index) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(w, ev.Name); err != nil {
				slog.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			// Files written before the directory was watched.
			_ = filepath.WalkDir(ev.Name, func(p string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					ix.refresh(p)
				}
				return nil
			})
			return
		}
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		ix.forget(ev.Name)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		ix.refresh(ev.Name)
	}
}

func (ix *Index) refresh(path string) {
	idx, r, file, ok := ix.classify(path)
	if !ok {
		return
	}
	a, err := r.Read(file.Dir, file.ID)
	if err != nil {
		// Writes may land in several events; a partial file decodes on
		// the next one.
		slog.Debug("cache refresh failed", "path", path, "error", err)
		return
	}
	ix.mu.Lock()
	if ix.cache != nil {
		ix.cache[path] = entry{repoIdx: idx, repo: r, file: file, art: a}
	}
	ix.mu.Unlock()
}

func (ix *Index) forget(path string) {
	ix.mu.Lock()
	delete(ix.cache, path)
	ix.mu.Unlock()
}

// classify maps a path to the repository file it names.
func (ix *Index) classify(p string) (int, *repo.Repo, repo.StoredFile, bool) {
	for i, r := range ix.repos {
		rel, err := filepath.Rel(r.Root(), p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		ext := "." + r.Codec().Ext()
		base := filepath.Base(rel)
		if filepath.Ext(base) != ext {
			return 0, nil, repo.StoredFile{}, false
		}
		id, err := artifact.ParseHex(strings.TrimSuffix(base, ext))
		if err != nil {
			return 0, nil, repo.StoredFile{}, false
		}
		dir := filepath.ToSlash(filepath.Dir(rel))
		return i, r, repo.StoredFile{Dir: dir, ID: id}, true
	}
	return 0, nil, repo.StoredFile{}, false
}
