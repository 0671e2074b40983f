// Package platform defines the chat-platform boundary: the events the
// router consumes and the client operations it invokes.
package platform

import (
	"context"
	"strconv"
	"time"
)

type (
	GuildID   uint64
	ChannelID uint64
	MessageID uint64
	UserID    uint64
	RoleID    uint64
)

func (id ChannelID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id MessageID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id UserID) String() string    { return strconv.FormatUint(uint64(id), 10) }

// MessageRef locates a message.
type MessageRef struct {
	Guild   GuildID
	Channel ChannelID
	Message MessageID
}

// Link renders a jump link to the message.
func (r MessageRef) Link() string {
	return "https://discord.com/channels/" + strconv.FormatUint(uint64(r.Guild), 10) +
		"/" + r.Channel.String() + "/" + r.Message.String()
}

// Emoji is either a unicode emoji or a custom "name:id" reference.
type Emoji string

// Member is a guild member as seen on an event.
type Member struct {
	User  UserID
	Name  string
	Nick  string
	Roles []RoleID
	Bot   bool
	// Avatar is the member's avatar URL, if known.
	Avatar string
}

// DisplayName prefers the guild nickname.
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}
	return m.Name
}

// HasRole reports whether the member holds role.
func (m Member) HasRole(role RoleID) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Attachment is a file attached to a message.
type Attachment struct {
	Filename string
	URL      string
	Size     int
}

// Snapshot is the content of a forwarded message.
type Snapshot struct {
	Content     string
	Attachments []Attachment
}

// Message is a chat message.
type Message struct {
	Ref         MessageRef
	Author      Member
	Content     string
	Attachments []Attachment
	Snapshots   []Snapshot
	Timestamp   time.Time
}

// Thread is a thread channel.
type Thread struct {
	ID     ChannelID
	Parent ChannelID
	Guild  GuildID
	Name   string
	Tags   []string
}

// Reaction is a reaction added to a message.
type Reaction struct {
	Message MessageRef
	Member  Member
	Emoji   Emoji
}

// EventType distinguishes event kinds.
type EventType int

const (
	EventMessageCreate EventType = iota + 1
	EventMessageUpdate
	EventMessageDelete
	EventReactionAdd
	EventThreadCreate
	EventThreadDelete
)

func (t EventType) String() string {
	switch t {
	case EventMessageCreate:
		return "message_create"
	case EventMessageUpdate:
		return "message_update"
	case EventMessageDelete:
		return "message_delete"
	case EventReactionAdd:
		return "reaction_add"
	case EventThreadCreate:
		return "thread_create"
	case EventThreadDelete:
		return "thread_delete"
	default:
		return "unknown"
	}
}

// Event is one platform delivery. Exactly one payload field is set,
// matching Type: Message for create/update, Deleted for delete, Reaction
// for reactions, Thread for thread events.
type Event struct {
	Type     EventType
	Message  *Message
	Deleted  *MessageRef
	Reaction *Reaction
	Thread   *Thread
}

// File is an upload attached to an outgoing message.
type File struct {
	Name string
	Data []byte
}

// Reply is an outgoing message.
type Reply struct {
	Content string
	Files   []File
}

// Client is the set of platform operations the router performs.
type Client interface {
	Reply(ctx context.Context, to MessageRef, r Reply) (MessageRef, error)
	Send(ctx context.Context, guild GuildID, channel ChannelID, r Reply) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
	React(ctx context.Context, ref MessageRef, e Emoji) error
	Unreact(ctx context.Context, ref MessageRef, e Emoji) error
	DisplayName(ctx context.Context, guild GuildID, user UserID) (string, error)
	Download(ctx context.Context, a Attachment) ([]byte, error)
	StartThread(ctx context.Context, from MessageRef, name string) (ChannelID, error)
	// History returns up to limit messages older than before, newest
	// first. A zero before starts from the latest message.
	History(ctx context.Context, channel ChannelID, before MessageID, limit int) ([]Message, error)
	// Parent returns the parent channel of a thread; ok is false for
	// channels that are not threads.
	Parent(ctx context.Context, channel ChannelID) (parent ChannelID, ok bool, err error)
	Self() UserID
}
