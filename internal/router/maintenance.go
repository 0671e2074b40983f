package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/store"
)

// historyPage is the number of messages fetched per history call.
const historyPage = 100

// Scour walks a mapped channel's history and stores every extractable
// artifact that is not stored yet, one commit each and a single push at
// the end. Only the repository's chief or the super-admin may scour.
func (r *Router) Scour(ctx context.Context, channel platform.ChannelID, actor platform.Member) (int, error) {
	entry, ok := r.deps.Registry.Static(channel)
	if !ok {
		return 0, fmt.Errorf("channel %s is not mapped", channel)
	}
	if actor.User != entry.Repo.Chief && (r.cfg.SuperAdmin == 0 || actor.User != r.cfg.SuperAdmin) {
		return 0, &HandlerError{
			Class: AuthorizationFailure,
			Op:    "scour",
			Repo:  entry.Repo.Name,
			Err:   fmt.Errorf("member %s is not the chief", actor.User),
		}
	}
	target, err := r.repo(entry)
	if err != nil {
		return 0, err
	}
	ctx = withCorrelation(ctx, r.deps.IDs.Generate())
	slog.Info("scour starting", "repo", target.Name(), "dir", entry.Dir, "channel_id", channel.String())

	n := 0
	defer func() {
		if n > 0 {
			target.Push(ctx)
		}
	}()

	var before platform.MessageID
	for {
		page, err := r.deps.Client.History(ctx, channel, before, historyPage)
		if err != nil {
			return n, &HandlerError{Class: PlatformFailure, Op: "read history", Repo: target.Name(), Err: err}
		}
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			before = m.Ref.Message
			added, err := r.scourOne(ctx, target, entry, m)
			if err != nil {
				return n, err
			}
			if added {
				n++
			}
		}
		if len(page) < historyPage {
			break
		}
	}
	slog.Info("scour finished", "repo", target.Name(), "dir", entry.Dir, "added", n)
	return n, nil
}

func (r *Router) scourOne(ctx context.Context, target *repo.Repo, entry registry.Entry, m platform.Message) (bool, error) {
	if r.ignored(m) {
		return false, nil
	}
	id := artifact.ID(m.Ref.Message)
	if target.Has(entry.Dir, id) {
		return false, nil
	}
	a, err := r.extract(ctx, m)
	if err != nil {
		return false, nil
	}
	entry.Labels.Apply(a, r.deps.Registry.Strategies())

	author := r.authorName(ctx, m.Ref.Guild, m.Author)
	err = r.blocking(ctx, func() error {
		return target.Import(ctx, repo.Submission{
			Dir:      entry.Dir,
			ID:       id,
			Artifact: a,
			Author:   author,
			UserID:   uint64(m.Author.User),
		})
	})
	if errors.Is(err, repo.ErrExists) {
		return false, nil
	}
	if err != nil {
		return false, repoFailure("add", target.Name(), id, err)
	}
	r.deps.Metrics.Change(target.Name(), string(store.ActionAdd))
	r.journal(ctx, store.ActionAdd, target.Name(), id, author, "scour")
	if err := r.deps.Client.React(ctx, m.Ref, r.cfg.AcceptEmoji); err != nil {
		slog.Warn("accept reaction failed", "message_id", m.Ref.Message.String(), "error", err)
	}
	return true, nil
}

// Retag rewrites the labels of every stored artifact in repoName's fixed
// channels from the current configuration, in one commit. It returns the
// number of artifacts whose bytes changed.
func (r *Router) Retag(ctx context.Context, repoName string) (int, error) {
	target, ok := r.repos[repoName]
	if !ok {
		return 0, fmt.Errorf("unknown repository %q", repoName)
	}

	specs := make(map[string]registry.LabelSpec)
	for _, c := range r.deps.Registry.Channels() {
		if c.Entry.Repo.Name == repoName && c.Entry.Labels.Kind == registry.LabelsFixed {
			specs[c.Entry.Dir] = c.Entry.Labels
		}
	}

	files, err := target.Files()
	if err != nil {
		return 0, repoFailure("list", repoName, 0, err)
	}
	n := 0
	for _, f := range files {
		spec, ok := specs[f.Dir]
		if !ok {
			continue
		}
		a, err := target.Read(f.Dir, f.ID)
		if err != nil {
			slog.Warn("retag skipped unreadable artifact", "repo", repoName, "artifact_id", f.ID.Hex(), "error", err)
			continue
		}
		spec.Apply(a, r.deps.Registry.Strategies())
		changed, err := target.Rewrite(ctx, f.Dir, f.ID, a)
		if err != nil {
			return n, repoFailure("retag", repoName, f.ID, err)
		}
		if changed {
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := target.Commit(ctx, r.cfg.BotName, fmt.Sprintf("retag %d artifacts", n)); err != nil {
		return n, repoFailure("commit", repoName, 0, err)
	}
	target.Push(ctx)
	slog.Info("retag finished", "repo", repoName, "changed", n)
	return n, nil
}
