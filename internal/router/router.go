package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/metrics"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/render"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/store"
	"github.com/roach88/plent/internal/tracker"
)

// Config holds router settings.
type Config struct {
	// BotName attributes removals triggered by message deletes.
	BotName    string
	SuperAdmin platform.UserID
	// AcceptEmoji is added to origin messages whose artifact was stored.
	AcceptEmoji platform.Emoji
	// DenyReaction replaces AcceptEmoji after a reject.
	DenyReaction platform.Emoji
	// OperatorGuild and OperatorChannel receive handler failures. Zero
	// channel disables reporting.
	OperatorGuild   platform.GuildID
	OperatorChannel platform.ChannelID
	// Workers bounds concurrent blocking work (rendering, VCS).
	Workers int
}

// Deps are the services the router coordinates. Store, Audit and Metrics
// may be nil.
type Deps struct {
	Client   platform.Client
	Registry *registry.Registry
	Repos    []*repo.Repo
	Codec    artifact.Codec
	Tracker  *tracker.Tracker
	Audit    *audit.Notifier
	Store    *store.Store
	Metrics  *metrics.Metrics
	// Render produces the preview attached to replies. Defaults to
	// render.PNG.
	Render func(*artifact.Artifact) ([]byte, error)
	IDs    IDGenerator
	// Clock is the wall clock used for journal timestamps.
	Clock tracker.Clock
	// LogicalClock orders journal entries. Defaults to a clock at zero.
	LogicalClock *Clock
}

// Router turns platform events into repository changes.
//
// Run dequeues events in delivery order and handles each one in its own
// goroutine; there is no ordering between handlers beyond that. Blocking
// work is bounded by a weighted semaphore.
type Router struct {
	cfg   Config
	deps  Deps
	repos map[string]*repo.Repo
	queue *eventQueue
	clock *Clock
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

// New builds a router.
func New(cfg Config, d Deps) *Router {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BotName == "" {
		cfg.BotName = "plent"
	}
	if cfg.AcceptEmoji == "" {
		cfg.AcceptEmoji = "✅"
	}
	if cfg.DenyReaction == "" {
		cfg.DenyReaction = "❌"
	}
	if d.Render == nil {
		d.Render = render.PNG
	}
	if d.IDs == nil {
		d.IDs = UUIDv7Generator{}
	}
	if d.Clock == nil {
		d.Clock = tracker.SystemClock
	}
	if d.LogicalClock == nil {
		d.LogicalClock = &Clock{}
	}
	if d.Tracker == nil {
		d.Tracker = tracker.New(d.Clock)
	}
	repos := make(map[string]*repo.Repo, len(d.Repos))
	for _, r := range d.Repos {
		repos[r.Name()] = r
	}
	return &Router{
		cfg:   cfg,
		deps:  d,
		repos: repos,
		queue: newEventQueue(),
		clock: d.LogicalClock,
		sem:   semaphore.NewWeighted(int64(cfg.Workers)),
	}
}

// Tracker returns the reply tracker.
func (r *Router) Tracker() *tracker.Tracker { return r.deps.Tracker }

// Enqueue submits an event. Safe from any goroutine. Returns false once
// the router has stopped.
func (r *Router) Enqueue(ev platform.Event) bool {
	ok := r.queue.Enqueue(ev)
	r.deps.Metrics.QueueDepth(r.queue.Len())
	return ok
}

// Run dispatches queued events until ctx is cancelled or Stop is called.
// In-flight handlers keep running; use Wait to drain them.
func (r *Router) Run(ctx context.Context) error {
	slog.Info("router starting", "workers", r.cfg.Workers)

	for {
		ev, ok := r.queue.TryDequeue()
		if ok {
			r.deps.Metrics.QueueDepth(r.queue.Len())
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = r.Handle(ctx, ev)
			}()
			continue
		}
		if r.queue.isClosed() {
			slog.Info("router stopping: queue closed")
			return nil
		}

		select {
		case <-ctx.Done():
			slog.Info("router stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()
		case <-r.queue.Wait():
		}
	}
}

// Stop closes the queue; Run returns once it is drained.
func (r *Router) Stop() {
	r.queue.Close()
}

// Wait blocks until every dispatched handler has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Handle processes one event synchronously. Failures are logged, counted
// and reported to the operator channel before being returned.
// Authorization failures are only counted and logged at debug level.
func (r *Router) Handle(ctx context.Context, ev platform.Event) error {
	cid := r.deps.IDs.Generate()
	ctx = withCorrelation(ctx, cid)
	start := time.Now()

	err := r.handle(ctx, ev)

	r.deps.Metrics.Event(ev.Type.String(), time.Since(start))
	r.deps.Metrics.Tracked(r.deps.Tracker.Len())
	switch {
	case err == nil:
	case IsAuthorizationFailure(err):
		// Members without rights are ignored; the operator is not paged.
		r.deps.Metrics.HandlerError(string(AuthorizationFailure))
		slog.Debug("unauthorized action ignored",
			"correlation_id", cid,
			"event_type", ev.Type.String(),
			"error", err)
	default:
		r.deps.Metrics.HandlerError(string(ClassOf(err)))
		logEventError(ctx, ev, err)
		r.report(ctx, ev, err)
	}
	return err
}

func (r *Router) handle(ctx context.Context, ev platform.Event) error {
	switch ev.Type {
	case platform.EventMessageCreate:
		if ev.Message == nil {
			return errors.New("message create event missing message")
		}
		return r.HandleCreate(ctx, *ev.Message)

	case platform.EventMessageUpdate:
		if ev.Message == nil {
			return errors.New("message update event missing message")
		}
		return r.HandleUpdate(ctx, *ev.Message)

	case platform.EventMessageDelete:
		if ev.Deleted == nil {
			return errors.New("message delete event missing reference")
		}
		return r.HandleDelete(ctx, *ev.Deleted)

	case platform.EventReactionAdd:
		if ev.Reaction == nil {
			return errors.New("reaction event missing reaction")
		}
		return r.HandleReaction(ctx, *ev.Reaction)

	case platform.EventThreadCreate:
		if ev.Thread == nil {
			return errors.New("thread create event missing thread")
		}
		return r.HandleThreadCreate(ctx, *ev.Thread)

	case platform.EventThreadDelete:
		if ev.Thread == nil {
			return errors.New("thread delete event missing thread")
		}
		return r.HandleThreadDelete(ctx, *ev.Thread)

	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

// blocking runs fn under the worker semaphore.
func (r *Router) blocking(ctx context.Context, fn func() error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)
	return fn()
}

// report posts a handler failure to the operator channel. Extraction
// failures are already answered inline and are not reported.
func (r *Router) report(ctx context.Context, ev platform.Event, err error) {
	if r.cfg.OperatorChannel == 0 || IsExtractionFailure(err) {
		return
	}
	text := fmt.Sprintf("`%s` %s failed: %v", CorrelationID(ctx), ev.Type, err)
	if ref, ok := eventRef(ev); ok {
		text += "\n" + ref.Link()
	}
	if _, perr := r.deps.Client.Send(ctx, r.cfg.OperatorGuild, r.cfg.OperatorChannel, platform.Reply{Content: text}); perr != nil {
		slog.Warn("operator report failed", "correlation_id", CorrelationID(ctx), "error", perr)
	}
}

func eventRef(ev platform.Event) (platform.MessageRef, bool) {
	switch {
	case ev.Message != nil:
		return ev.Message.Ref, true
	case ev.Deleted != nil:
		return *ev.Deleted, true
	case ev.Reaction != nil:
		return ev.Reaction.Message, true
	}
	return platform.MessageRef{}, false
}

// logEventError logs a failed event with enough context to redo it by
// hand.
func logEventError(ctx context.Context, ev platform.Event, err error) {
	attrs := []any{
		"error", err,
		"class", string(ClassOf(err)),
		"event_type", ev.Type.String(),
		"correlation_id", CorrelationID(ctx),
	}
	switch {
	case ev.Message != nil:
		attrs = append(attrs,
			"channel_id", ev.Message.Ref.Channel.String(),
			"message_id", ev.Message.Ref.Message.String(),
			"author", ev.Message.Author.DisplayName())
	case ev.Deleted != nil:
		attrs = append(attrs,
			"channel_id", ev.Deleted.Channel.String(),
			"message_id", ev.Deleted.Message.String())
	case ev.Reaction != nil:
		attrs = append(attrs,
			"channel_id", ev.Reaction.Message.Channel.String(),
			"message_id", ev.Reaction.Message.Message.String(),
			"member", ev.Reaction.Member.DisplayName(),
			"emoji", string(ev.Reaction.Emoji))
	case ev.Thread != nil:
		attrs = append(attrs,
			"thread_id", ev.Thread.ID.String(),
			"parent_id", ev.Thread.Parent.String())
	}
	slog.Error("event handling failed", attrs...)
}
