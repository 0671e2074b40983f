package harness

import (
	"context"
	"sync"

	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/vcs"
)

// tracer collects the calls made on the wrapped fakes.
type tracer struct {
	mu     sync.Mutex
	step   int
	events []TraceEvent
}

func (t *tracer) setStep(n int) {
	t.mu.Lock()
	t.step = n
	t.mu.Unlock()
}

func (t *tracer) record(action string, args map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, TraceEvent{
		Seq:    len(t.events) + 1,
		Step:   t.step,
		Action: action,
		Args:   args,
	})
}

func (t *tracer) trace() []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEvent(nil), t.events...)
}

func withError(args map[string]any, err error) map[string]any {
	if err == nil {
		return args
	}
	if args == nil {
		args = make(map[string]any)
	}
	args["error"] = err.Error()
	return args
}

// chatTracer records the writes the router makes on the platform. Reads
// (names, downloads, history, parents) pass through unrecorded.
type chatTracer struct {
	*platform.Fake
	t *tracer
}

func (c *chatTracer) Reply(ctx context.Context, to platform.MessageRef, r platform.Reply) (platform.MessageRef, error) {
	ref, err := c.Fake.Reply(ctx, to, r)
	c.t.record(ActionChatReply, withError(map[string]any{
		"channel": to.Channel.String(),
		"to":      to.Message.String(),
		"ref":     ref.Message.String(),
		"content": r.Content,
		"files":   len(r.Files),
	}, err))
	return ref, err
}

func (c *chatTracer) Send(ctx context.Context, guild platform.GuildID, channel platform.ChannelID, r platform.Reply) (platform.MessageRef, error) {
	ref, err := c.Fake.Send(ctx, guild, channel, r)
	c.t.record(ActionChatSend, withError(map[string]any{
		"channel": channel.String(),
		"content": r.Content,
	}, err))
	return ref, err
}

func (c *chatTracer) Delete(ctx context.Context, ref platform.MessageRef) error {
	err := c.Fake.Delete(ctx, ref)
	c.t.record(ActionChatDelete, withError(map[string]any{
		"channel": ref.Channel.String(),
		"message": ref.Message.String(),
	}, err))
	return err
}

func (c *chatTracer) React(ctx context.Context, ref platform.MessageRef, e platform.Emoji) error {
	err := c.Fake.React(ctx, ref, e)
	c.t.record(ActionChatReact, withError(map[string]any{
		"message": ref.Message.String(),
		"emoji":   string(e),
	}, err))
	return err
}

func (c *chatTracer) Unreact(ctx context.Context, ref platform.MessageRef, e platform.Emoji) error {
	err := c.Fake.Unreact(ctx, ref, e)
	c.t.record(ActionChatUnreact, withError(map[string]any{
		"message": ref.Message.String(),
		"emoji":   string(e),
	}, err))
	return err
}

func (c *chatTracer) StartThread(ctx context.Context, from platform.MessageRef, name string) (platform.ChannelID, error) {
	id, err := c.Fake.StartThread(ctx, from, name)
	c.t.record(ActionChatThread, withError(map[string]any{
		"from":   from.Message.String(),
		"name":   name,
		"thread": id.String(),
	}, err))
	return id, err
}

// vcsTracer records staging, commits and pushes of one repository.
type vcsTracer struct {
	*vcs.Recorder
	repo string
	t    *tracer
}

func (v *vcsTracer) Add(ctx context.Context, path string) error {
	err := v.Recorder.Add(ctx, path)
	v.t.record(ActionVCSAdd, withError(map[string]any{"repo": v.repo, "path": path}, err))
	return err
}

func (v *vcsTracer) Remove(ctx context.Context, path string) error {
	err := v.Recorder.Remove(ctx, path)
	v.t.record(ActionVCSRemove, withError(map[string]any{"repo": v.repo, "path": path}, err))
	return err
}

func (v *vcsTracer) Commit(ctx context.Context, author, message string) error {
	err := v.Recorder.Commit(ctx, author, message)
	v.t.record(ActionVCSCommit, withError(map[string]any{
		"repo":    v.repo,
		"author":  author,
		"message": message,
	}, err))
	return err
}

func (v *vcsTracer) Push(ctx context.Context) error {
	err := v.Recorder.Push(ctx)
	v.t.record(ActionVCSPush, withError(map[string]any{"repo": v.repo}, err))
	return err
}

// auditTracer is an audit sink that only records.
type auditTracer struct {
	t *tracer
}

func (a *auditTracer) Post(_ context.Context, m audit.Message) error {
	args := map[string]any{
		"username": m.Username,
		"text":     m.Text,
	}
	if m.Footer != "" {
		args["footer"] = m.Footer
	}
	a.t.record(ActionAuditPost, args)
	return nil
}
