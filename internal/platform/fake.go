package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Fake is an in-memory Client for tests. Every call is recorded.
type Fake struct {
	mu sync.Mutex

	SelfID    UserID
	Names     map[UserID]string
	Downloads map[string][]byte
	Channels  map[ChannelID][]Message
	Parents   map[ChannelID]ChannelID

	// FailDelete makes Delete return an error.
	FailDelete bool

	nextID    MessageID
	Replies   []SentMessage
	Sent      []SentMessage
	Deleted   []MessageRef
	Reactions map[MessageRef][]Emoji
	Threads   []StartedThread
}

// SentMessage records an outgoing message.
type SentMessage struct {
	Ref   MessageRef
	To    MessageRef
	Reply Reply
}

// StartedThread records a StartThread call.
type StartedThread struct {
	From MessageRef
	Name string
	ID   ChannelID
}

// NewFake returns an empty fake whose posted message ids start at 9000.
func NewFake() *Fake {
	return &Fake{
		SelfID:    1,
		Names:     make(map[UserID]string),
		Downloads: make(map[string][]byte),
		Channels:  make(map[ChannelID][]Message),
		Parents:   make(map[ChannelID]ChannelID),
		Reactions: make(map[MessageRef][]Emoji),
		nextID:    9000,
	}
}

var _ Client = (*Fake)(nil)

func (f *Fake) Reply(_ context.Context, to MessageRef, r Reply) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := MessageRef{Guild: to.Guild, Channel: to.Channel, Message: f.nextID}
	f.Replies = append(f.Replies, SentMessage{Ref: ref, To: to, Reply: r})
	return ref, nil
}

func (f *Fake) Send(_ context.Context, guild GuildID, channel ChannelID, r Reply) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := MessageRef{Guild: guild, Channel: channel, Message: f.nextID}
	f.Sent = append(f.Sent, SentMessage{Ref: ref, Reply: r})
	return ref, nil
}

func (f *Fake) Delete(_ context.Context, ref MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete {
		return fmt.Errorf("delete %s: forbidden", ref.Message)
	}
	f.Deleted = append(f.Deleted, ref)
	return nil
}

func (f *Fake) React(_ context.Context, ref MessageRef, e Emoji) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions[ref] = append(f.Reactions[ref], e)
	return nil
}

func (f *Fake) Unreact(_ context.Context, ref MessageRef, e Emoji) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.Reactions[ref][:0]
	for _, have := range f.Reactions[ref] {
		if have != e {
			kept = append(kept, have)
		}
	}
	f.Reactions[ref] = kept
	return nil
}

func (f *Fake) DisplayName(_ context.Context, _ GuildID, user UserID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.Names[user]; ok {
		return n, nil
	}
	return "", fmt.Errorf("unknown user %s", user)
}

func (f *Fake) Download(_ context.Context, a Attachment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Downloads[a.URL]
	if !ok {
		return nil, fmt.Errorf("download %s: not found", a.URL)
	}
	return data, nil
}

func (f *Fake) StartThread(_ context.Context, from MessageRef, name string) (ChannelID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := ChannelID(f.nextID)
	f.Threads = append(f.Threads, StartedThread{From: from, Name: name, ID: id})
	return id, nil
}

func (f *Fake) History(_ context.Context, channel ChannelID, before MessageID, limit int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]Message(nil), f.Channels[channel]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Ref.Message > msgs[j].Ref.Message })
	var out []Message
	for _, m := range msgs {
		if before != 0 && m.Ref.Message >= before {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) Parent(_ context.Context, channel ChannelID) (ChannelID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Parents[channel]
	return p, ok, nil
}

func (f *Fake) Self() UserID { return f.SelfID }

// RepliesTo returns the replies posted to one message.
func (f *Fake) RepliesTo(ref MessageRef) []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SentMessage
	for _, r := range f.Replies {
		if r.To == ref {
			out = append(out, r)
		}
	}
	return out
}

// ReactionsOn returns a copy of the reactions left on ref.
func (f *Fake) ReactionsOn(ref MessageRef) []Emoji {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emoji(nil), f.Reactions[ref]...)
}

// DeletedRefs returns a copy of the deleted message refs.
func (f *Fake) DeletedRefs() []MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MessageRef(nil), f.Deleted...)
}

// AllReplies returns a copy of every reply posted.
func (f *Fake) AllReplies() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Replies...)
}

// AllSent returns a copy of every non-reply message posted.
func (f *Fake) AllSent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.Sent...)
}

// StartedThreads returns a copy of started threads.
func (f *Fake) StartedThreads() []StartedThread {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StartedThread(nil), f.Threads...)
}
