// Package tracker remembers which bot reply belongs to which source
// message so edits and deletes can find it.
//
// Entries are forgotten once their source message is older than MaxAge.
// Forgetting only drops the mapping; the chat messages are untouched.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/plent/internal/platform"
)

const (
	// MaxAge is how long a source message stays tracked.
	MaxAge = 3 * time.Hour
	// SweepInterval is how often Run prunes.
	SweepInterval = 10 * time.Minute
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real clock.
var SystemClock Clock = systemClock{}

// Entry is the tracked state of one source message.
type Entry struct {
	// Fingerprint of the artifact the reply was rendered from.
	Fingerprint string
	Reply       platform.MessageRef
	// Posted is the source message's creation time.
	Posted time.Time
}

// Tracker is a concurrent map from source message id to Entry.
type Tracker struct {
	clock   Clock
	entries sync.Map // platform.MessageID -> Entry
}

// New creates an empty tracker.
func New(clock Clock) *Tracker {
	if clock == nil {
		clock = SystemClock
	}
	return &Tracker{clock: clock}
}

// Insert stores or replaces the entry for a source message.
func (t *Tracker) Insert(source platform.MessageID, e Entry) {
	t.entries.Store(source, e)
}

// Get returns the entry for a source message.
func (t *Tracker) Get(source platform.MessageID) (Entry, bool) {
	v, ok := t.entries.Load(source)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Remove deletes and returns the entry for a source message.
func (t *Tracker) Remove(source platform.MessageID) (Entry, bool) {
	v, ok := t.entries.LoadAndDelete(source)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Len counts tracked entries.
func (t *Tracker) Len() int {
	n := 0
	t.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Prune forgets entries whose source message is MaxAge old or older and
// returns how many were dropped.
func (t *Tracker) Prune(now time.Time) int {
	dropped := 0
	t.entries.Range(func(k, v any) bool {
		if now.Sub(v.(Entry).Posted) >= MaxAge {
			// CompareAndDelete keeps an entry replaced mid-sweep.
			if t.entries.CompareAndDelete(k, v) {
				dropped++
			}
		}
		return true
	})
	return dropped
}

// Run prunes every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Prune(t.clock.Now()); n > 0 {
				slog.Debug("tracker pruned", "dropped", n, "remaining", t.Len())
			}
		}
	}
}
