// Package ownership records who submitted each stored artifact.
//
// Every repository keeps an ownership.json at its root. The file is the
// full map and is rewritten on every mutation while the index lock is
// held, so readers of the file never observe a partial update from this
// process.
package ownership

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/roach88/plent/internal/artifact"
)

// FileName is the index file stored at each repository root.
const FileName = "ownership.json"

// ErrNotFound is returned by Get when no record exists for an id.
var ErrNotFound = errors.New("ownership record not found")

// Record attributes an artifact to the member who posted it.
type Record struct {
	Name   string
	UserID uint64
}

// MarshalJSON encodes a record as a ["name", id] pair.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Name, r.UserID})
}

// UnmarshalJSON decodes the ["name", id] pair form.
func (r *Record) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("ownership record: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Name); err != nil {
		return fmt.Errorf("ownership record name: %w", err)
	}
	if err := json.Unmarshal(pair[1], &r.UserID); err != nil {
		return fmt.Errorf("ownership record user: %w", err)
	}
	return nil
}

// Index is one repository's ownership map.
type Index struct {
	mu      sync.Mutex
	path    string
	records map[artifact.ID]Record
}

// Open loads <root>/ownership.json. A missing file yields an empty index.
func Open(root string) (*Index, error) {
	ix := &Index{
		path:    filepath.Join(root, FileName),
		records: make(map[artifact.ID]Record),
	}
	data, err := os.ReadFile(ix.path)
	if errors.Is(err, os.ErrNotExist) {
		return ix, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ix.path, err)
	}

	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ix.path, err)
	}
	for k, rec := range raw {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: bad key %q: %w", ix.path, k, err)
		}
		ix.records[artifact.ID(id)] = rec
	}
	return ix, nil
}

// Path returns the backing file path.
func (ix *Index) Path() string { return ix.path }

// Insert sets the record for id and flushes the whole map.
func (ix *Index) Insert(id artifact.ID, rec Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, had := ix.records[id]
	ix.records[id] = rec
	if err := ix.flushLocked(); err != nil {
		if had {
			ix.records[id] = prev
		} else {
			delete(ix.records, id)
		}
		return err
	}
	return nil
}

// Erase removes the record for id and flushes. It returns the prior
// display name and whether a record existed.
func (ix *Index) Erase(id artifact.ID) (string, bool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, ok := ix.records[id]
	if !ok {
		return "", false, nil
	}
	delete(ix.records, id)
	if err := ix.flushLocked(); err != nil {
		ix.records[id] = prev
		return "", false, err
	}
	return prev.Name, true, nil
}

// Get returns the record for id, or ErrNotFound.
func (ix *Index) Get(id artifact.ID) (Record, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rec, ok := ix.records[id]
	if !ok {
		return Record{}, fmt.Errorf("artifact %s: %w", id.Hex(), ErrNotFound)
	}
	return rec, nil
}

// Has reports whether id has a record.
func (ix *Index) Has(id artifact.ID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.records[id]
	return ok
}

// Len returns the number of records.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.records)
}

// Snapshot returns a copy of the map.
func (ix *Index) Snapshot() map[artifact.ID]Record {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make(map[artifact.ID]Record, len(ix.records))
	for k, v := range ix.records {
		out[k] = v
	}
	return out
}

// flushLocked writes the map to a temporary file and renames it over the
// index. Caller must hold ix.mu.
func (ix *Index) flushLocked() error {
	raw := make(map[string]Record, len(ix.records))
	for id, rec := range ix.records {
		raw[id.String()] = rec
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ownership: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return fmt.Errorf("flush ownership: %w", err)
	}
	tmp := ix.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("flush ownership: %w", err)
	}
	if err := os.Rename(tmp, ix.path); err != nil {
		return fmt.Errorf("flush ownership: %w", err)
	}
	return nil
}

// Standing is one row of a contributor leaderboard.
type Standing struct {
	UserID uint64 `json:"user_id"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
}

// Leaderboard tallies records per user across the given indexes and
// returns the top n, highest count first. Users for which skip returns
// true are left out.
func Leaderboard(indexes []*Index, n int, skip func(userID uint64) bool) []Standing {
	tally := make(map[uint64]*Standing)
	latest := make(map[uint64]artifact.ID)
	for _, ix := range indexes {
		for id, rec := range ix.Snapshot() {
			if skip != nil && skip(rec.UserID) {
				continue
			}
			s, ok := tally[rec.UserID]
			if !ok {
				s = &Standing{UserID: rec.UserID}
				tally[rec.UserID] = s
			}
			s.Count++
			// newest submission carries the current display name
			if id >= latest[rec.UserID] {
				latest[rec.UserID] = id
				s.Name = rec.Name
			}
		}
	}

	out := make([]Standing, 0, len(tally))
	for _, s := range tally {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
