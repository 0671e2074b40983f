package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/store"
	"github.com/roach88/plent/internal/tracker"
)

// Removal causes recorded in the journal.
const (
	causeDeleted = "message was deleted."
	causeDenied  = "denied by %s."
)

// HandleCreate processes a new message.
//
// In a mapped channel a decoded artifact is written, committed, pushed
// and attributed; the origin gets the accept reaction. Unmapped channels
// only get the preview reply. Strict channels delete anything that does
// not carry an artifact.
func (r *Router) HandleCreate(ctx context.Context, m platform.Message) error {
	if r.ignored(m) {
		return nil
	}
	entry, mapped := r.deps.Registry.Resolve(m.Ref.Channel)

	a, err := r.extract(ctx, m)
	if err != nil {
		return r.unextracted(ctx, m, entry, mapped, err)
	}
	if mapped {
		entry.Labels.Apply(a, r.deps.Registry.Strategies())
	}

	fp, err := artifact.Fingerprint(r.deps.Codec, a)
	if err != nil {
		return &HandlerError{Class: ExtractionFailure, Op: "fingerprint", Err: err}
	}
	reply, err := r.postArtifact(ctx, m.Ref, a)
	if err != nil {
		return err
	}
	if mapped && entry.Strict {
		if _, err := r.deps.Client.StartThread(ctx, reply, threadName(a)); err != nil {
			slog.Warn("start thread failed", "message_id", reply.Message.String(), "error", err)
		}
	}

	if mapped {
		if err := r.add(ctx, m, entry, a); err != nil {
			return err
		}
	}

	posted := m.Timestamp
	if posted.IsZero() {
		posted = r.deps.Clock.Now()
	}
	r.deps.Tracker.Insert(m.Ref.Message, tracker.Entry{Fingerprint: fp, Reply: reply, Posted: posted})
	return nil
}

// unextracted handles a message that carried no decodable artifact.
func (r *Router) unextracted(ctx context.Context, m platform.Message, entry registry.Entry, mapped bool, err error) error {
	if mapped && entry.Strict {
		slog.Debug("deleting non-artifact message in strict channel",
			"channel_id", m.Ref.Channel.String(),
			"message_id", m.Ref.Message.String())
		if derr := r.deps.Client.Delete(ctx, m.Ref); derr != nil {
			return &HandlerError{Class: PlatformFailure, Op: "delete message", Repo: entry.Repo.Name, Err: derr}
		}
		return nil
	}

	var de *artifact.DecodeError
	if errors.As(err, &de) {
		if _, rerr := r.deps.Client.Reply(ctx, m.Ref, platform.Reply{Content: de.Diagnostic()}); rerr != nil {
			slog.Warn("diagnostic reply failed", "message_id", m.Ref.Message.String(), "error", rerr)
		}
		return nil
	}

	if r.deps.Registry.AllowsSaves(m.Ref.Channel) {
		return r.inspectSaves(ctx, m)
	}
	return nil
}

// add stores a in the entry's repository. The first artifact posted in a
// forum thread consumes the thread's dynamic entry and links the thread
// to the origin message.
func (r *Router) add(ctx context.Context, m platform.Message, entry registry.Entry, a *artifact.Artifact) error {
	target, err := r.repo(entry)
	if err != nil {
		return err
	}
	id := artifact.ID(m.Ref.Message)
	if target.Has(entry.Dir, id) {
		slog.Debug("artifact already stored", "repo", target.Name(), "artifact_id", id.Hex())
		return nil
	}

	if r.deps.Registry.ConsumeThread(m.Ref.Channel) && r.deps.Store != nil {
		link := store.ThreadLink{
			Thread:  m.Ref.Channel,
			Message: m.Ref.Message,
			Repo:    target.Name(),
			Dir:     entry.Dir,
			Created: r.deps.Clock.Now(),
		}
		if err := r.deps.Store.LinkThread(ctx, link); err != nil {
			return &HandlerError{Class: PersistenceFailure, Op: "link thread", Repo: target.Name(), ArtifactID: id.Hex(), Err: err}
		}
	}

	author := r.authorName(ctx, m.Ref.Guild, m.Author)
	err = r.blocking(ctx, func() error {
		return target.Add(ctx, repo.Submission{
			Dir:      entry.Dir,
			ID:       id,
			Artifact: a,
			Author:   author,
			UserID:   uint64(m.Author.User),
		})
	})
	if errors.Is(err, repo.ErrExists) {
		slog.Debug("artifact already stored", "repo", target.Name(), "artifact_id", id.Hex())
		return nil
	}
	if err != nil {
		return repoFailure("add", target.Name(), id, err)
	}
	slog.Info("artifact added", "repo", target.Name(), "dir", entry.Dir, "artifact_id", id.Hex(), "author", author)

	r.deps.Metrics.Change(target.Name(), string(store.ActionAdd))
	r.journal(ctx, store.ActionAdd, target.Name(), id, author, "")
	r.deps.Audit.Added(ctx, audit.Change{
		Repo:   entry.Repo,
		Origin: m.Ref,
		ID:     id,
		Ext:    r.deps.Codec.Ext(),
		Name:   a.Name(),
		Actor:  withName(m.Author, author),
	})
	if err := r.deps.Client.React(ctx, m.Ref, r.cfg.AcceptEmoji); err != nil {
		slog.Warn("accept reaction failed", "message_id", m.Ref.Message.String(), "error", err)
	}
	return nil
}

// HandleUpdate processes an edited message. Only tracked messages are
// considered; an unchanged fingerprint is a no-op.
func (r *Router) HandleUpdate(ctx context.Context, m platform.Message) error {
	if m.Author.Bot {
		return nil
	}
	prev, ok := r.deps.Tracker.Get(m.Ref.Message)
	if !ok {
		return nil
	}

	a, err := r.extract(ctx, m)
	if err != nil {
		// The stale reply stays; only the tracking is dropped.
		r.deps.Tracker.Remove(m.Ref.Message)
		slog.Debug("edit no longer carries an artifact", "message_id", m.Ref.Message.String(), "error", err)
		return nil
	}

	entry, mapped, err := r.resolve(ctx, m.Ref.Channel)
	if err != nil {
		return err
	}
	id := artifact.ID(m.Ref.Message)
	var target *repo.Repo
	if mapped {
		if target, err = r.repo(entry); err != nil {
			return err
		}
		if !entry.Labels.Apply(a, r.deps.Registry.Strategies()) {
			// Forum labels came from the thread tags when the artifact
			// was added; keep them.
			if stored, err := target.Read(entry.Dir, id); err == nil {
				a.SetLabels(stored.Labels())
			}
		}
	}

	fp, err := artifact.Fingerprint(r.deps.Codec, a)
	if err != nil {
		return &HandlerError{Class: ExtractionFailure, Op: "fingerprint", Err: err}
	}
	if fp == prev.Fingerprint {
		return nil
	}

	if err := r.deps.Client.Delete(ctx, prev.Reply); err != nil {
		slog.Warn("stale reply delete failed", "message_id", prev.Reply.Message.String(), "error", err)
	}
	reply, err := r.postArtifact(ctx, m.Ref, a)
	if err != nil {
		r.deps.Tracker.Remove(m.Ref.Message)
		return err
	}
	r.deps.Tracker.Insert(m.Ref.Message, tracker.Entry{Fingerprint: fp, Reply: reply, Posted: prev.Posted})

	if target == nil || !target.Has(entry.Dir, id) {
		return nil
	}
	author := r.authorName(ctx, m.Ref.Guild, m.Author)
	var changed bool
	err = r.blocking(ctx, func() error {
		var err error
		changed, err = target.Update(ctx, repo.Submission{
			Dir:      entry.Dir,
			ID:       id,
			Artifact: a,
			Author:   author,
			UserID:   uint64(m.Author.User),
		})
		return err
	})
	if err != nil {
		return repoFailure("update", target.Name(), id, err)
	}
	if !changed {
		return nil
	}
	slog.Info("artifact updated", "repo", target.Name(), "dir", entry.Dir, "artifact_id", id.Hex(), "author", author)

	r.deps.Metrics.Change(target.Name(), string(store.ActionUpdate))
	r.journal(ctx, store.ActionUpdate, target.Name(), id, author, "")
	r.deps.Audit.Updated(ctx, audit.Change{
		Repo:   entry.Repo,
		Origin: m.Ref,
		ID:     id,
		Ext:    r.deps.Codec.Ext(),
		Name:   a.Name(),
		Actor:  withName(m.Author, author),
	})
	return nil
}

// HandleDelete processes a deleted message: the stored artifact, if any,
// is removed and the bot's reply is deleted.
func (r *Router) HandleDelete(ctx context.Context, ref platform.MessageRef) error {
	var firstErr error

	entry, mapped, err := r.resolve(ctx, ref.Channel)
	switch {
	case err != nil:
		firstErr = err
	case mapped:
		if r.deps.Store != nil {
			if err := r.deps.Store.UnlinkMessage(ctx, ref.Message); err != nil {
				slog.Warn("unlink thread failed", "message_id", ref.Message.String(), "error", err)
			}
		}
		if _, err := r.remove(ctx, entry, ref, r.cfg.BotName, causeDeleted, func(c audit.Change) {
			r.deps.Audit.Deleted(ctx, c)
		}); err != nil {
			firstErr = err
		}
	}

	if prev, ok := r.deps.Tracker.Remove(ref.Message); ok {
		if err := r.deps.Client.Delete(ctx, prev.Reply); err != nil && firstErr == nil {
			firstErr = &HandlerError{Class: PlatformFailure, Op: "delete reply", Err: err}
		}
	}
	return firstErr
}

// HandleReaction processes an added reaction. The repository's reject
// emoji from an authorized member removes the stored artifact and swaps
// the accept reaction for the deny reaction.
func (r *Router) HandleReaction(ctx context.Context, rx platform.Reaction) error {
	if rx.Member.Bot || rx.Member.User == r.deps.Client.Self() {
		return nil
	}
	entry, mapped, err := r.resolve(ctx, rx.Message.Channel)
	if err != nil || !mapped {
		return err
	}
	if rx.Emoji != entry.Repo.DenyEmoji {
		return nil
	}
	id := artifact.ID(rx.Message.Message)
	if !entry.Repo.Authorized(rx.Member, r.cfg.SuperAdmin) {
		return &HandlerError{
			Class:      AuthorizationFailure,
			Op:         "reject",
			Repo:       entry.Repo.Name,
			ArtifactID: id.Hex(),
			Err:        fmt.Errorf("member %s is not an admin", rx.Member.User),
		}
	}

	actor := r.authorName(ctx, rx.Message.Guild, rx.Member)
	removed, err := r.remove(ctx, entry, rx.Message, actor, fmt.Sprintf(causeDenied, actor), func(c audit.Change) {
		c.Actor = withName(rx.Member, actor)
		r.deps.Audit.Denied(ctx, c)
	})
	if err != nil || !removed {
		return err
	}

	if r.deps.Store != nil {
		if err := r.deps.Store.UnlinkMessage(ctx, rx.Message.Message); err != nil {
			slog.Warn("unlink thread failed", "message_id", rx.Message.Message.String(), "error", err)
		}
	}
	if err := r.deps.Client.Unreact(ctx, rx.Message, r.cfg.AcceptEmoji); err != nil {
		slog.Warn("accept reaction removal failed", "message_id", rx.Message.Message.String(), "error", err)
	}
	if err := r.deps.Client.React(ctx, rx.Message, r.cfg.DenyReaction); err != nil {
		slog.Warn("deny reaction failed", "message_id", rx.Message.Message.String(), "error", err)
	}
	return nil
}

// HandleThreadCreate registers a dynamic entry for threads opened under
// a mapped forum.
func (r *Router) HandleThreadCreate(_ context.Context, t platform.Thread) error {
	if r.deps.Registry.RegisterThread(t) {
		slog.Debug("forum thread registered", "thread_id", t.ID.String(), "parent_id", t.Parent.String(), "tags", t.Tags)
	}
	return nil
}

// HandleThreadDelete removes the artifact stored from a deleted forum
// thread, as if its origin message had been deleted.
func (r *Router) HandleThreadDelete(ctx context.Context, t platform.Thread) error {
	r.deps.Registry.ConsumeThread(t.ID)

	entry, ok := r.deps.Registry.Forum(t.Parent)
	if !ok || r.deps.Store == nil {
		return nil
	}
	link, ok, err := r.deps.Store.UnlinkThread(ctx, t.ID)
	if err != nil {
		return &HandlerError{Class: PersistenceFailure, Op: "unlink thread", Repo: entry.Repo.Name, Err: err}
	}
	if !ok {
		return nil
	}
	origin := platform.MessageRef{Guild: t.Guild, Channel: t.ID, Message: link.Message}
	_, err = r.remove(ctx, entry, origin, r.cfg.BotName, causeDeleted, func(c audit.Change) {
		r.deps.Audit.Deleted(ctx, c)
	})
	return err
}

// remove deletes the artifact stored for origin, if any, with one
// commit attributed to actor. announce receives the audit change.
func (r *Router) remove(ctx context.Context, entry registry.Entry, origin platform.MessageRef, actor, cause string, announce func(audit.Change)) (bool, error) {
	target, err := r.repo(entry)
	if err != nil {
		return false, err
	}
	id := artifact.ID(origin.Message)

	var (
		rm      repo.Removal
		removed bool
	)
	err = r.blocking(ctx, func() error {
		var err error
		rm, removed, err = target.Delete(ctx, entry.Dir, id, actor)
		return err
	})
	if err != nil {
		return removed, repoFailure("remove", target.Name(), id, err)
	}
	if !removed {
		return false, nil
	}
	slog.Info("artifact removed", "repo", target.Name(), "dir", entry.Dir, "artifact_id", id.Hex(), "actor", actor, "owner", rm.Owner)

	r.deps.Metrics.Change(target.Name(), string(store.ActionRemove))
	r.journal(ctx, store.ActionRemove, target.Name(), id, actor, cause)
	announce(audit.Change{
		Repo:   entry.Repo,
		Origin: origin,
		ID:     id,
		Ext:    r.deps.Codec.Ext(),
		Name:   rm.Name,
		Owner:  rm.Owner,
	})
	return true, nil
}

// resolve finds the entry for an origin channel: static, dynamic, then
// the parent forum of a thread.
func (r *Router) resolve(ctx context.Context, channel platform.ChannelID) (registry.Entry, bool, error) {
	if e, ok := r.deps.Registry.Resolve(channel); ok {
		return e, true, nil
	}
	parent, isThread, err := r.deps.Client.Parent(ctx, channel)
	if err != nil {
		return registry.Entry{}, false, &HandlerError{Class: PlatformFailure, Op: "resolve parent", Err: err}
	}
	if !isThread {
		return registry.Entry{}, false, nil
	}
	e, ok := r.deps.Registry.ResolveForDelete(channel, parent)
	return e, ok, nil
}

func (r *Router) repo(entry registry.Entry) (*repo.Repo, error) {
	target, ok := r.repos[entry.Repo.Name]
	if !ok {
		return nil, &HandlerError{Class: PersistenceFailure, Op: "open repository", Repo: entry.Repo.Name, Err: errNoRepo}
	}
	return target, nil
}

// postArtifact renders a and replies to origin with the preview.
func (r *Router) postArtifact(ctx context.Context, origin platform.MessageRef, a *artifact.Artifact) (platform.MessageRef, error) {
	var png []byte
	err := r.blocking(ctx, func() error {
		var err error
		png, err = r.deps.Render(a)
		return err
	})
	out := platform.Reply{Content: replyText(a)}
	if err != nil {
		slog.Warn("preview render failed", "message_id", origin.Message.String(), "error", err)
	} else {
		out.Files = []platform.File{{Name: "image.png", Data: png}}
	}
	ref, err := r.deps.Client.Reply(ctx, origin, out)
	if err != nil {
		return platform.MessageRef{}, &HandlerError{Class: PlatformFailure, Op: "post reply", Err: err}
	}
	return ref, nil
}

// authorName prefers the member's display name and falls back to a
// platform lookup.
func (r *Router) authorName(ctx context.Context, guild platform.GuildID, m platform.Member) string {
	if name := m.DisplayName(); name != "" {
		return name
	}
	name, err := r.deps.Client.DisplayName(ctx, guild, m.User)
	if err != nil || name == "" {
		return m.User.String()
	}
	return name
}

func withName(m platform.Member, name string) platform.Member {
	if m.DisplayName() == "" {
		m.Nick = name
	}
	return m
}

// journal records a change in the side table. Failures are logged only;
// the commit already happened.
func (r *Router) journal(ctx context.Context, kind store.ActionKind, repoName string, id artifact.ID, actor, cause string) {
	if r.deps.Store == nil {
		return
	}
	_, err := r.deps.Store.Journal(ctx, store.Action{
		CorrelationID: CorrelationID(ctx),
		Repo:          repoName,
		ArtifactID:    id.Hex(),
		Kind:          kind,
		Actor:         actor,
		Cause:         cause,
		Clock:         r.clock.Next(),
		RecordedAt:    r.deps.Clock.Now(),
	})
	if err != nil {
		slog.Warn("journal write failed", "repo", repoName, "artifact_id", id.Hex(), "error", err)
	}
}
