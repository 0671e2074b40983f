package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/plent/internal/platform"
)

// GatewayURL is the default gateway endpoint.
const GatewayURL = "wss://gateway.discord.gg"

// Intents requested on identify: guilds, guild messages, guild message
// reactions and message content.
const Intents = 1<<0 | 1<<9 | 1<<10 | 1<<15

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

const forumChannel = 15

var (
	errReconnect = errors.New("gateway requested reconnect")
	errZombie    = errors.New("heartbeat not acknowledged")
)

// fatalCloseCodes end Run instead of reconnecting: authentication
// failed, bad shard, sharding required, bad API version, bad or
// disallowed intents.
var fatalCloseCodes = []int{4004, 4010, 4011, 4012, 4013, 4014}

// Gateway is one gateway connection feeding events to a sink.
type Gateway struct {
	url     string
	token   string
	client  *Client
	sink    func(platform.Event) bool
	dialer  *websocket.Dialer
	backoff time.Duration

	seq       atomic.Int64
	session   string
	resumeURL string

	writeMu sync.Mutex
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayURL overrides the gateway endpoint. Used by tests.
func WithGatewayURL(u string) GatewayOption {
	return func(g *Gateway) { g.url = u }
}

// NewGateway returns a gateway that delivers events to sink. client
// receives the bot's identity and the thread and tag caches.
func NewGateway(token string, client *Client, sink func(platform.Event) bool, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		url:     GatewayURL,
		token:   token,
		client:  client,
		sink:    sink,
		dialer:  websocket.DefaultDialer,
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run keeps a session open until ctx is cancelled, reconnecting and
// resuming after drops. It returns early on fatal close codes.
func (g *Gateway) Run(ctx context.Context) error {
	wait := g.backoff
	for {
		err := g.connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if websocket.IsCloseError(err, fatalCloseCodes...) {
			return fmt.Errorf("gateway closed: %w", err)
		}
		slog.Warn("gateway disconnected", "error", err, "resume", g.session != "", "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait < time.Minute {
			wait *= 2
		}
	}
}

func (g *Gateway) connect(ctx context.Context) error {
	url := g.url
	if g.session != "" && g.resumeURL != "" {
		url = g.resumeURL
	}
	conn, _, err := g.dialer.DialContext(ctx, url+"/?v=10&encoding=json", nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", hello.Op)
	}
	var h struct {
		Interval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}

	if g.session != "" {
		err = g.send(conn, opResume, map[string]any{"token": g.token, "session_id": g.session, "seq": g.seq.Load()})
	} else {
		err = g.send(conn, opIdentify, map[string]any{
			"token":   g.token,
			"intents": Intents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "plent",
				"device":  "plent",
			},
		})
	}
	if err != nil {
		return err
	}

	var acked atomic.Bool
	acked.Store(true)
	go g.heartbeat(conn, time.Duration(h.Interval)*time.Millisecond, &acked, done)

	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			if !acked.Load() {
				return errZombie
			}
			return err
		}
		if p.S != nil {
			g.seq.Store(*p.S)
		}
		switch p.Op {
		case opDispatch:
			g.dispatch(p.T, p.D)
		case opHeartbeat:
			if err := g.beat(conn); err != nil {
				return err
			}
		case opHeartbeatAck:
			acked.Store(true)
		case opReconnect:
			return errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				g.session, g.resumeURL = "", ""
				g.seq.Store(0)
			}
			return errors.New("invalid session")
		}
	}
}

func (g *Gateway) heartbeat(conn *websocket.Conn, interval time.Duration, acked *atomic.Bool, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if !acked.Swap(false) {
				slog.Warn("gateway heartbeat not acknowledged")
				conn.Close()
				return
			}
			if err := g.beat(conn); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) beat(conn *websocket.Conn) error {
	var seq any
	if s := g.seq.Load(); s != 0 {
		seq = s
	}
	return g.send(conn, opHeartbeat, seq)
}

func (g *Gateway) send(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if err := conn.WriteJSON(payload{Op: op, D: raw}); err != nil {
		return fmt.Errorf("send op %d: %w", op, err)
	}
	return nil
}

// dispatch converts one dispatch into a platform event. Malformed
// payloads are logged and dropped.
func (g *Gateway) dispatch(t string, d json.RawMessage) {
	ev, ok, err := g.event(t, d)
	if err != nil {
		slog.Warn("gateway dispatch dropped", "type", t, "error", err)
		return
	}
	if ok && !g.sink(ev) {
		slog.Warn("event rejected by sink", "type", ev.Type.String())
	}
}

func (g *Gateway) event(t string, d json.RawMessage) (platform.Event, bool, error) {
	switch t {
	case "READY":
		var r wireReady
		if err := json.Unmarshal(d, &r); err != nil {
			return platform.Event{}, false, err
		}
		g.client.setSelf(platform.UserID(r.User.ID))
		g.session, g.resumeURL = r.SessionID, r.ResumeGatewayURL
		slog.Info("gateway ready", "user", r.User.Username, "session_id", r.SessionID)

	case "GUILD_CREATE":
		var gd wireGuild
		if err := json.Unmarshal(d, &gd); err != nil {
			return platform.Event{}, false, err
		}
		for _, ch := range gd.Channels {
			if ch.Type == forumChannel {
				g.client.rememberTags(platform.ChannelID(ch.ID), ch.AvailableTags)
			}
		}
		for _, th := range gd.Threads {
			g.client.rememberThread(platform.ChannelID(th.ID), platform.ChannelID(th.ParentID))
		}

	case "CHANNEL_CREATE", "CHANNEL_UPDATE":
		var ch wireChannel
		if err := json.Unmarshal(d, &ch); err != nil {
			return platform.Event{}, false, err
		}
		if ch.Type == forumChannel {
			g.client.rememberTags(platform.ChannelID(ch.ID), ch.AvailableTags)
		}

	case "MESSAGE_CREATE":
		var m wireMessage
		if err := json.Unmarshal(d, &m); err != nil {
			return platform.Event{}, false, err
		}
		msg := m.toPlatform()
		return platform.Event{Type: platform.EventMessageCreate, Message: &msg}, true, nil

	case "MESSAGE_UPDATE":
		var m wireMessage
		if err := json.Unmarshal(d, &m); err != nil {
			return platform.Event{}, false, err
		}
		// Embed-only updates carry no content.
		if m.Content == nil {
			return platform.Event{}, false, nil
		}
		msg := m.toPlatform()
		return platform.Event{Type: platform.EventMessageUpdate, Message: &msg}, true, nil

	case "MESSAGE_DELETE":
		var m wireMessage
		if err := json.Unmarshal(d, &m); err != nil {
			return platform.Event{}, false, err
		}
		ref := m.ref()
		return platform.Event{Type: platform.EventMessageDelete, Deleted: &ref}, true, nil

	case "MESSAGE_REACTION_ADD":
		var r wireReaction
		if err := json.Unmarshal(d, &r); err != nil {
			return platform.Event{}, false, err
		}
		u := wireUser{ID: r.UserID}
		if r.Member != nil && r.Member.User != nil {
			u = *r.Member.User
		}
		rx := platform.Reaction{
			Message: platform.MessageRef{
				Guild:   platform.GuildID(r.GuildID),
				Channel: platform.ChannelID(r.ChannelID),
				Message: platform.MessageID(r.MessageID),
			},
			Member: member(u, r.Member),
			Emoji:  r.Emoji.emoji(),
		}
		return platform.Event{Type: platform.EventReactionAdd, Reaction: &rx}, true, nil

	case "THREAD_CREATE":
		var ch wireChannel
		if err := json.Unmarshal(d, &ch); err != nil {
			return platform.Event{}, false, err
		}
		parent := platform.ChannelID(ch.ParentID)
		g.client.rememberThread(platform.ChannelID(ch.ID), parent)
		th := platform.Thread{
			ID:     platform.ChannelID(ch.ID),
			Parent: parent,
			Guild:  platform.GuildID(ch.GuildID),
			Name:   ch.Name,
			Tags:   g.client.tagNames(parent, ch.AppliedTags),
		}
		return platform.Event{Type: platform.EventThreadCreate, Thread: &th}, true, nil

	case "THREAD_DELETE":
		var ch wireChannel
		if err := json.Unmarshal(d, &ch); err != nil {
			return platform.Event{}, false, err
		}
		g.client.forgetThread(platform.ChannelID(ch.ID))
		th := platform.Thread{
			ID:     platform.ChannelID(ch.ID),
			Parent: platform.ChannelID(ch.ParentID),
			Guild:  platform.GuildID(ch.GuildID),
		}
		return platform.Event{Type: platform.EventThreadDelete, Thread: &th}, true, nil
	}
	return platform.Event{}, false, nil
}
