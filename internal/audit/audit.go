// Package audit announces repository changes to an external channel.
//
// Delivery is best-effort: failures are logged and counted, never returned
// to the caller.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
)

// Embed colours.
const (
	ColorAdd    = 0x80BFFF
	ColorRemove = 0xF27983
)

// Message is one audit post.
type Message struct {
	Username  string
	AvatarURL string
	Color     int
	Text      string
	Footer    string
}

// Sink delivers audit messages.
type Sink interface {
	Post(ctx context.Context, m Message) error
}

// Change describes an artifact change to announce.
type Change struct {
	Repo   *registry.Repo
	Origin platform.MessageRef
	ID     artifact.ID
	Ext    string
	// Name is the artifact name; colour markup is stripped when rendered.
	Name string
	// Actor made the change: the author for adds and updates, the
	// reviewer for denials.
	Actor platform.Member
	// Owner is the attributor of a removed artifact.
	Owner string
}

const (
	markAdd    = "➕"
	markUpdate = "🔄"
	markCancel = "❌"
)

// AddedMessage renders the announcement of a new artifact.
func AddedMessage(c Change) Message {
	return Message{
		Username:  c.Actor.DisplayName(),
		AvatarURL: c.Actor.Avatar,
		Color:     ColorAdd,
		Text:      fmt.Sprintf("%s %s add %s (`%s`)", c.Origin.Link(), markAdd, artifact.StripColors(c.Name), c.file()),
	}
}

// UpdatedMessage renders the announcement of an overwritten artifact.
func UpdatedMessage(c Change) Message {
	return Message{
		Username:  c.Actor.DisplayName(),
		AvatarURL: c.Actor.Avatar,
		Color:     ColorAdd,
		Text:      fmt.Sprintf("%s %s update %s (`%s`)", c.Origin.Link(), markUpdate, artifact.StripColors(c.Name), c.file()),
	}
}

// DeletedMessage renders the removal of an artifact whose message was
// deleted. It is posted under the bot's name.
func DeletedMessage(c Change, botName string) Message {
	return Message{
		Username: botName,
		Color:    ColorRemove,
		Text:     fmt.Sprintf("%s remove %s (added by %s) (`%s`)", markCancel, artifact.StripColors(c.Name), c.Owner, c.file()),
		Footer:   "message was deleted.",
	}
}

// DeniedMessage renders the removal of an artifact rejected by a reviewer.
func DeniedMessage(c Change, deny platform.Emoji) Message {
	return Message{
		Username:  c.Actor.DisplayName(),
		AvatarURL: c.Actor.Avatar,
		Color:     ColorRemove,
		Text:      fmt.Sprintf("%s %s %s (added by %s) (`%s`)", c.Origin.Link(), deny, artifact.StripColors(c.Name), c.Owner, c.file()),
		Footer:    "denied by " + c.Actor.DisplayName() + ".",
	}
}

func (c Change) file() string {
	ext := c.Ext
	if ext == "" {
		ext = "msch"
	}
	return c.ID.Hex() + "." + ext
}

// Notifier posts audit messages for repositories with auditing enabled.
// A nil Notifier drops everything.
type Notifier struct {
	sink      Sink
	botName   string
	deny      platform.Emoji
	onFailure func(kind string)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithFailureHook registers a callback invoked after each failed delivery.
func WithFailureHook(fn func(kind string)) Option {
	return func(n *Notifier) { n.onFailure = fn }
}

// New returns a notifier. deny is the emoji shown on denial notices.
func New(sink Sink, botName string, deny platform.Emoji, opts ...Option) *Notifier {
	n := &Notifier{sink: sink, botName: botName, deny: deny}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Added announces a stored artifact.
func (n *Notifier) Added(ctx context.Context, c Change) {
	n.post(ctx, "add", c, AddedMessage)
}

// Updated announces an overwritten artifact.
func (n *Notifier) Updated(ctx context.Context, c Change) {
	n.post(ctx, "update", c, UpdatedMessage)
}

// Deleted announces a removal caused by a deleted message.
func (n *Notifier) Deleted(ctx context.Context, c Change) {
	n.post(ctx, "remove", c, func(c Change) Message { return DeletedMessage(c, n.botName) })
}

// Denied announces a removal caused by a reject reaction.
func (n *Notifier) Denied(ctx context.Context, c Change) {
	n.post(ctx, "remove", c, func(c Change) Message { return DeniedMessage(c, n.deny) })
}

func (n *Notifier) post(ctx context.Context, kind string, c Change, render func(Change) Message) {
	if n == nil || n.sink == nil || c.Repo == nil || !c.Repo.Audit {
		return
	}
	if err := n.sink.Post(ctx, render(c)); err != nil {
		slog.Warn("audit delivery failed",
			"kind", kind,
			"repo", c.Repo.Name,
			"artifact_id", c.ID.Hex(),
			"error", err)
		if n.onFailure != nil {
			n.onFailure(kind)
		}
	}
}
