// Package dedup searches every repository's stored artifacts, either for a
// structurally equal artifact or for names similar to a query.
package dedup

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/repo"
)

const (
	// Threshold is the minimum similarity a fuzzy hit must reach.
	Threshold = 0.5
	// TopK is the maximum number of fuzzy hits returned.
	TopK = 5
)

// Hit is a stored artifact matched by a search.
type Hit struct {
	Repo  string
	Dir   string
	ID    artifact.ID
	Name  string
	Score float64
	// Origin links back to the message the artifact came from. Zero when
	// Located is false.
	Origin  platform.MessageRef
	Located bool
}

// Locator maps a stored artifact back to the message it was posted in.
type Locator interface {
	Locate(ctx context.Context, repo, dir string, id artifact.ID) (platform.MessageRef, bool, error)
}

// Option configures an Index.
type Option func(*Index)

// WithWorkers bounds the number of files decoded in parallel.
func WithWorkers(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// Index searches a fixed set of repositories.
type Index struct {
	repos   []*repo.Repo
	locator Locator
	workers int

	mu    sync.RWMutex
	cache map[string]entry // nil until Watch warms it
}

type entry struct {
	repoIdx int
	repo    *repo.Repo
	file    repo.StoredFile
	art     *artifact.Artifact
}

func (e entry) less(o entry) bool {
	if e.repoIdx != o.repoIdx {
		return e.repoIdx < o.repoIdx
	}
	if e.file.Dir != o.file.Dir {
		return e.file.Dir < o.file.Dir
	}
	return e.file.ID < o.file.ID
}

// New returns an index over repos. locator may be nil.
func New(repos []*repo.Repo, locator Locator, opts ...Option) *Index {
	ix := &Index{repos: repos, locator: locator, workers: 8}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Exact returns the first stored artifact structurally equal to q,
// ignoring labels. Repositories are searched in configuration order.
func (ix *Index) Exact(ctx context.Context, q *artifact.Artifact) (Hit, bool, error) {
	entries, err := ix.entries(ctx)
	if err != nil {
		return Hit{}, false, err
	}
	for _, e := range entries {
		if artifact.EqualIgnoringLabels(e.art, q) {
			h := ix.hit(e, 1)
			if err := ix.locate(ctx, &h); err != nil {
				return Hit{}, false, err
			}
			return h, true, nil
		}
	}
	return Hit{}, false, nil
}

// Fuzzy returns up to TopK stored artifacts whose names score at least
// Threshold against query, best first. Ties break by repo, dir and id.
func (ix *Index) Fuzzy(ctx context.Context, query string) ([]Hit, error) {
	q := Normalize(query)
	if q == "" {
		return nil, nil
	}
	entries, err := ix.entries(ctx)
	if err != nil {
		return nil, err
	}

	top := &ranking{}
	for _, e := range entries {
		score := Similarity(Normalize(e.art.Name()), q)
		if score < Threshold {
			continue
		}
		heap.Push(top, ix.hit(e, score))
		if top.Len() > TopK {
			heap.Pop(top)
		}
	}

	hits := make([]Hit, top.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(top).(Hit)
	}
	for i := range hits {
		if err := ix.locate(ctx, &hits[i]); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func (ix *Index) hit(e entry, score float64) Hit {
	return Hit{
		Repo:  e.repo.Name(),
		Dir:   e.file.Dir,
		ID:    e.file.ID,
		Name:  e.art.Name(),
		Score: score,
	}
}

func (ix *Index) locate(ctx context.Context, h *Hit) error {
	if ix.locator == nil {
		return nil
	}
	ref, ok, err := ix.locator.Locate(ctx, h.Repo, h.Dir, h.ID)
	if err != nil {
		return fmt.Errorf("locate %s: %w", h.ID.Hex(), err)
	}
	h.Origin, h.Located = ref, ok
	return nil
}

// entries returns every decodable stored artifact in search order.
func (ix *Index) entries(ctx context.Context) ([]entry, error) {
	ix.mu.RLock()
	if ix.cache != nil {
		out := make([]entry, 0, len(ix.cache))
		for _, e := range ix.cache {
			out = append(out, e)
		}
		ix.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
		return out, nil
	}
	ix.mu.RUnlock()
	return ix.scan(ctx)
}

// scan reads every repository from disk, decoding files in parallel.
func (ix *Index) scan(ctx context.Context) ([]entry, error) {
	var all []entry
	for i, r := range ix.repos {
		files, err := r.Files()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			all = append(all, entry{repoIdx: i, repo: r, file: f})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for i := range all {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e := &all[i]
			a, err := e.repo.Read(e.file.Dir, e.file.ID)
			if err != nil {
				slog.Debug("skipping unreadable artifact",
					"repo", e.repo.Name(),
					"dir", e.file.Dir,
					"artifact_id", e.file.ID.Hex(),
					"error", err)
				return nil
			}
			e.art = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan repositories: %w", err)
	}

	out := all[:0]
	for _, e := range all {
		if e.art != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// ranking is a min-heap of hits; the root is the worst-ranked hit.
type ranking []Hit

func (r ranking) Len() int { return len(r) }

func (r ranking) Less(i, j int) bool { return worse(r[i], r[j]) }

func (r ranking) Swap(i, j int) { r[i], r[j] = r[j], r[i] }

func (r *ranking) Push(x any) { *r = append(*r, x.(Hit)) }

func (r *ranking) Pop() any {
	old := *r
	n := len(old)
	h := old[n-1]
	*r = old[:n-1]
	return h
}

// worse reports whether a ranks below b.
func worse(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if a.Repo != b.Repo {
		return a.Repo > b.Repo
	}
	if a.Dir != b.Dir {
		return a.Dir > b.Dir
	}
	return a.ID > b.ID
}
