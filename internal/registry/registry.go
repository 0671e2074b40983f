// Package registry maps origin channels and threads to the repository,
// directory and label rules that apply to artifacts posted there.
//
// The static tables are built once at startup and never change. Threads
// opened under a forum get a dynamic entry when they are created; the
// entry is consumed by the first artifact stored from that thread.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/plent/internal/platform"
)

// Person is an admin identity: either a role or a single user.
type Person struct {
	Role platform.RoleID
	User platform.UserID
}

// Repo is the moderation and routing view of a repository.
type Repo struct {
	Name      string
	Guild     platform.GuildID
	Chief     platform.UserID
	Admins    []Person
	DenyEmoji platform.Emoji
	// Audit enables audit notifications for this repository.
	Audit bool
}

// Authorized reports whether m may reject artifacts in this repository:
// the chief, a configured admin (by role or user) or the super-admin.
func (r *Repo) Authorized(m platform.Member, superAdmin platform.UserID) bool {
	if m.User == r.Chief || (superAdmin != 0 && m.User == superAdmin) {
		return true
	}
	for _, p := range r.Admins {
		if p.User != 0 && p.User == m.User {
			return true
		}
		if p.Role != 0 && m.HasRole(p.Role) {
			return true
		}
	}
	return false
}

// Entry is a routing entry: where an origin's artifacts are stored.
type Entry struct {
	Repo   *Repo
	Dir    string
	Labels LabelSpec
	// Strict origins accept artifacts only; anything else is deleted.
	Strict bool
}

// Registry resolves origin ids to entries.
type Registry struct {
	static     map[platform.ChannelID]Entry
	forums     map[platform.ChannelID]Entry
	saves      map[platform.ChannelID]bool
	repos      []*Repo
	strategies Strategies

	dynamic sync.Map // platform.ChannelID -> Entry
}

// New returns an empty registry using the given label strategies.
func New(strategies Strategies) *Registry {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Registry{
		static:     make(map[platform.ChannelID]Entry),
		forums:     make(map[platform.ChannelID]Entry),
		saves:      make(map[platform.ChannelID]bool),
		strategies: strategies,
	}
}

// AddRepo registers a repository.
func (r *Registry) AddRepo(repo *Repo) {
	r.repos = append(r.repos, repo)
}

// AddChannel maps a leaf channel to an entry.
func (r *Registry) AddChannel(id platform.ChannelID, e Entry) error {
	if err := r.checkFree(id); err != nil {
		return err
	}
	if e.Labels.Strategy != "" {
		if _, ok := r.strategies[e.Labels.Strategy]; !ok {
			return fmt.Errorf("channel %s: unknown label strategy %q", id, e.Labels.Strategy)
		}
	}
	r.static[id] = e
	return nil
}

// AddForum maps a forum parent. Threads created under it are routed to
// the same repository and directory with thread-tag labels.
func (r *Registry) AddForum(id platform.ChannelID, e Entry) error {
	if err := r.checkFree(id); err != nil {
		return err
	}
	e.Labels = LabelSpec{Kind: LabelsForum}
	r.forums[id] = e
	return nil
}

// AllowSaves marks a channel where save files get diagnostics.
func (r *Registry) AllowSaves(id platform.ChannelID) {
	r.saves[id] = true
}

func (r *Registry) checkFree(id platform.ChannelID) error {
	if _, ok := r.static[id]; ok {
		return fmt.Errorf("channel %s mapped twice", id)
	}
	if _, ok := r.forums[id]; ok {
		return fmt.Errorf("channel %s mapped twice", id)
	}
	return nil
}

// Resolve looks an origin up in the static table, then the dynamic one.
func (r *Registry) Resolve(id platform.ChannelID) (Entry, bool) {
	if e, ok := r.static[id]; ok {
		return e, true
	}
	if v, ok := r.dynamic.Load(id); ok {
		return v.(Entry), true
	}
	return Entry{}, false
}

// ResolveForDelete adds the parent-forum fallback used for thread
// origins whose dynamic entry is gone: static, dynamic, then forum.
// parent is zero for non-thread origins.
func (r *Registry) ResolveForDelete(id, parent platform.ChannelID) (Entry, bool) {
	if e, ok := r.Resolve(id); ok {
		return e, true
	}
	if parent == 0 {
		return Entry{}, false
	}
	return r.Forum(parent)
}

// Forum returns the entry for a forum parent.
func (r *Registry) Forum(id platform.ChannelID) (Entry, bool) {
	e, ok := r.forums[id]
	return e, ok
}

// Static returns the entry for a leaf channel, ignoring threads.
func (r *Registry) Static(id platform.ChannelID) (Entry, bool) {
	e, ok := r.static[id]
	return e, ok
}

// RegisterThread creates the dynamic entry for a thread opened under a
// forum. It reports false when the parent is not a mapped forum.
func (r *Registry) RegisterThread(t platform.Thread) bool {
	forum, ok := r.forums[t.Parent]
	if !ok {
		return false
	}
	tags := append([]string(nil), t.Tags...)
	r.dynamic.Store(t.ID, Entry{
		Repo:   forum.Repo,
		Dir:    forum.Dir,
		Labels: LabelSpec{Kind: LabelsOwned, Labels: tags},
		Strict: forum.Strict,
	})
	return true
}

// ConsumeThread drops a thread's dynamic entry and reports whether one
// existed.
func (r *Registry) ConsumeThread(id platform.ChannelID) bool {
	_, ok := r.dynamic.LoadAndDelete(id)
	return ok
}

// IsDynamic reports whether id currently has a dynamic entry.
func (r *Registry) IsDynamic(id platform.ChannelID) bool {
	_, ok := r.dynamic.Load(id)
	return ok
}

// AllowsSaves reports whether save-file diagnostics are posted in id.
func (r *Registry) AllowsSaves(id platform.ChannelID) bool {
	return r.saves[id]
}

// Strategies returns the label strategies.
func (r *Registry) Strategies() Strategies { return r.strategies }

// Repos returns the registered repositories.
func (r *Registry) Repos() []*Repo { return r.repos }

// Channel pairs a static channel id with its entry.
type Channel struct {
	ID    platform.ChannelID
	Entry Entry
}

// Channels lists static channels sorted by id.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, 0, len(r.static))
	for id, e := range r.static {
		out = append(out, Channel{ID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Forums lists forum parents sorted by id.
func (r *Registry) Forums() []Channel {
	out := make([]Channel, 0, len(r.forums))
	for id, e := range r.forums {
		out = append(out, Channel{ID: id, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Locate finds the static channel or forum whose entry stores artifacts
// in (repo, dir).
func (r *Registry) Locate(repo, dir string) (Channel, bool) {
	for _, c := range r.Channels() {
		if c.Entry.Repo.Name == repo && c.Entry.Dir == dir {
			return c, true
		}
	}
	for _, c := range r.Forums() {
		if c.Entry.Repo.Name == repo && c.Entry.Dir == dir {
			return c, true
		}
	}
	return Channel{}, false
}
