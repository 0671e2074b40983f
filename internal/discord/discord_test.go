package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/platform"
)

func TestEvent_MessageCreate(t *testing.T) {
	g := NewGateway("tok", NewClient("tok"), nil)
	raw := `{
		"id": "1107438012345678901",
		"channel_id": "1100",
		"guild_id": "7",
		"author": {"id": "42", "username": "ana_", "global_name": "Ana", "avatar": "abc"},
		"member": {"nick": "ana-nick", "roles": ["20", "21"]},
		"content": "bXNjaA==",
		"attachments": [{"filename": "a.msch", "url": "https://cdn/a.msch", "size": 12}],
		"message_snapshots": [{"message": {"content": "fwd", "attachments": []}}],
		"timestamp": "2026-03-01T12:00:00+00:00"
	}`

	ev, ok, err := g.event("MESSAGE_CREATE", json.RawMessage(raw))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, platform.EventMessageCreate, ev.Type)

	m := ev.Message
	assert.Equal(t, platform.MessageRef{Guild: 7, Channel: 1100, Message: 1107438012345678901}, m.Ref)
	assert.Equal(t, "bXNjaA==", m.Content)
	assert.Equal(t, platform.UserID(42), m.Author.User)
	assert.Equal(t, "ana-nick", m.Author.DisplayName())
	assert.Equal(t, "Ana", m.Author.Name)
	assert.Equal(t, []platform.RoleID{20, 21}, m.Author.Roles)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/42/abc.png", m.Author.Avatar)
	assert.Equal(t, []platform.Attachment{{Filename: "a.msch", URL: "https://cdn/a.msch", Size: 12}}, m.Attachments)
	require.Len(t, m.Snapshots, 1)
	assert.Equal(t, "fwd", m.Snapshots[0].Content)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), m.Timestamp.UTC())
}

func TestEvent_UpdateWithoutContentDropped(t *testing.T) {
	g := NewGateway("tok", NewClient("tok"), nil)
	_, ok, err := g.event("MESSAGE_UPDATE", json.RawMessage(`{"id":"1","channel_id":"2","embeds":[]}`))
	require.NoError(t, err)
	assert.False(t, ok)

	ev, ok, err := g.event("MESSAGE_UPDATE", json.RawMessage(`{"id":"1","channel_id":"2","content":""}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, platform.EventMessageUpdate, ev.Type)
}

func TestEvent_DeleteAndReaction(t *testing.T) {
	g := NewGateway("tok", NewClient("tok"), nil)

	ev, ok, err := g.event("MESSAGE_DELETE", json.RawMessage(`{"id":"5","channel_id":"6","guild_id":"7"}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, platform.MessageRef{Guild: 7, Channel: 6, Message: 5}, *ev.Deleted)

	ev, ok, err = g.event("MESSAGE_REACTION_ADD", json.RawMessage(`{
		"user_id": "55", "channel_id": "6", "message_id": "5", "guild_id": "7",
		"member": {"user": {"id": "55", "username": "mod"}, "roles": ["20"]},
		"emoji": {"id": "1192316518395039864", "name": "deny"}
	}`))
	require.NoError(t, err)
	require.True(t, ok)
	rx := ev.Reaction
	assert.Equal(t, platform.Emoji("deny:1192316518395039864"), rx.Emoji)
	assert.Equal(t, platform.UserID(55), rx.Member.User)
	assert.True(t, rx.Member.HasRole(20))

	ev, _, err = g.event("MESSAGE_REACTION_ADD", json.RawMessage(`{"user_id":"9","channel_id":"6","message_id":"5","emoji":{"id":null,"name":"✅"}}`))
	require.NoError(t, err)
	assert.Equal(t, platform.Emoji("✅"), ev.Reaction.Emoji)
	assert.Equal(t, platform.UserID(9), ev.Reaction.Member.User)
}

func TestEvent_ForumThreadTags(t *testing.T) {
	c := NewClient("tok")
	g := NewGateway("tok", c, nil)

	_, ok, err := g.event("GUILD_CREATE", json.RawMessage(`{
		"id": "7",
		"channels": [{"id": "300", "type": 15, "available_tags": [{"id": "1", "name": "turret"}, {"id": "2", "name": "defense"}]}],
		"threads": [{"id": "301", "type": 11, "parent_id": "300"}]
	}`))
	require.NoError(t, err)
	assert.False(t, ok)

	parent, isThread, err := c.Parent(context.Background(), 301)
	require.NoError(t, err)
	assert.True(t, isThread)
	assert.Equal(t, platform.ChannelID(300), parent)

	ev, ok, err := g.event("THREAD_CREATE", json.RawMessage(`{"id":"500","type":11,"guild_id":"7","parent_id":"300","name":"lancer","applied_tags":["2","9"]}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, platform.Thread{ID: 500, Parent: 300, Guild: 7, Name: "lancer", Tags: []string{"defense"}}, *ev.Thread)

	ev, ok, err = g.event("THREAD_DELETE", json.RawMessage(`{"id":"500","guild_id":"7","parent_id":"300","type":11}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, platform.EventThreadDelete, ev.Type)
}

func TestEvent_Unknown(t *testing.T) {
	g := NewGateway("tok", NewClient("tok"), nil)
	_, ok, err := g.event("TYPING_START", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = g.event("MESSAGE_CREATE", json.RawMessage(`{"id": "abc"}`))
	assert.Error(t, err)
}

type apiCall struct {
	Method      string
	Path        string
	Auth        string
	ContentType string
	Body        []byte
}

func newAPI(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Client, func() []apiCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []apiCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, apiCall{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
			Body:        body,
		})
		mu.Unlock()
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]apiCall(nil), calls...)
	}
}

func TestClient_ReplyWithFile(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"id":"9001","channel_id":"100"}`)
	})
	to := platform.MessageRef{Guild: 7, Channel: 100, Message: 1000}

	ref, err := c.Reply(context.Background(), to, platform.Reply{
		Content: "**sorter**",
		Files:   []platform.File{{Name: "image.png", Data: []byte("png")}},
	})
	require.NoError(t, err)
	assert.Equal(t, platform.MessageRef{Guild: 7, Channel: 100, Message: 9001}, ref)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPost, got[0].Method)
	assert.Equal(t, "/channels/100/messages", got[0].Path)
	assert.Equal(t, "Bot tok", got[0].Auth)
	assert.True(t, strings.HasPrefix(got[0].ContentType, "multipart/form-data"))
	body := string(got[0].Body)
	assert.Contains(t, body, `"message_id":"1000"`)
	assert.Contains(t, body, `name="files[0]"; filename="image.png"`)
}

func TestClient_SendJSON(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"id":"9002"}`)
	})
	_, err := c.Send(context.Background(), 7, 999, platform.Reply{Content: "boom"})
	require.NoError(t, err)

	got := calls()
	require.Len(t, got, 1)
	assert.Equal(t, "application/json", got[0].ContentType)
	assert.JSONEq(t, `{"content":"boom"}`, string(got[0].Body))
}

func TestClient_Reactions(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	ref := platform.MessageRef{Channel: 100, Message: 1000}
	require.NoError(t, c.React(context.Background(), ref, "✅"))
	require.NoError(t, c.Unreact(context.Background(), ref, "deny:1"))

	got := calls()
	require.Len(t, got, 2)
	assert.Equal(t, http.MethodPut, got[0].Method)
	assert.Equal(t, "/channels/100/messages/1000/reactions/%E2%9C%85/@me", got[0].Path)
	assert.Equal(t, http.MethodDelete, got[1].Method)
	assert.Equal(t, "/channels/100/messages/1000/reactions/deny:1/@me", got[1].Path)
}

func TestClient_HistoryAndErrors(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/channels/404") {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"message":"Unknown Channel"}`)
			return
		}
		io.WriteString(w, `[{"id":"12","channel_id":"100","content":"b"},{"id":"11","channel_id":"100","content":"a"}]`)
	})

	msgs, err := c.History(context.Background(), 100, 13, 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, platform.MessageID(12), msgs[0].Ref.Message)
	assert.Equal(t, "/channels/100/messages?before=13&limit=50", calls()[0].Path)

	_, err = c.History(context.Background(), 404, 0, 50)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClient_DisplayNameFallbacks(t *testing.T) {
	c, _ := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/7/members/1":
			io.WriteString(w, `{"nick":"nicky","user":{"id":"1","username":"u1"}}`)
		case "/guilds/7/members/2":
			io.WriteString(w, `{"user":{"id":"2","username":"u2","global_name":"Global"}}`)
		default:
			io.WriteString(w, `{"user":{"id":"3","username":"u3"}}`)
		}
	})
	ctx := context.Background()
	for user, want := range map[platform.UserID]string{1: "nicky", 2: "Global", 3: "u3"} {
		got, err := c.DisplayName(ctx, 7, user)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClient_ParentLookupIsCached(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/channels/500" {
			io.WriteString(w, `{"id":"500","type":11,"parent_id":"300"}`)
			return
		}
		io.WriteString(w, `{"id":"100","type":0}`)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		parent, ok, err := c.Parent(ctx, 500)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, platform.ChannelID(300), parent)

		_, ok, err = c.Parent(ctx, 100)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Len(t, calls(), 2)
}

func TestClient_StartThread(t *testing.T) {
	c, calls := newAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"id":"777","type":11,"parent_id":"200"}`)
	})
	id, err := c.StartThread(context.Background(), platform.MessageRef{Channel: 200, Message: 9001}, "Flyer")
	require.NoError(t, err)
	assert.Equal(t, platform.ChannelID(777), id)
	assert.Equal(t, "/channels/200/messages/9001/threads", calls()[0].Path)
	assert.JSONEq(t, `{"name":"Flyer","auto_archive_duration":1440}`, string(calls()[0].Body))

	parent, ok, err := c.Parent(context.Background(), 777)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, platform.ChannelID(200), parent)
}

func TestGateway_IdentifyAndDispatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	identified := make(chan payload, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(map[string]any{"op": opHello, "d": map[string]any{"heartbeat_interval": 45000}})
		var id payload
		if err := conn.ReadJSON(&id); err != nil {
			return
		}
		identified <- id

		conn.WriteJSON(map[string]any{"op": opDispatch, "s": 1, "t": "READY", "d": map[string]any{
			"user":       map[string]any{"id": "1", "username": "plent"},
			"session_id": "sess",
		}})
		conn.WriteJSON(map[string]any{"op": opDispatch, "s": 2, "t": "MESSAGE_CREATE", "d": map[string]any{
			"id": "1000", "channel_id": "100", "guild_id": "7", "content": "hi",
			"author": map[string]any{"id": "42", "username": "ana"},
		}})
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	events := make(chan platform.Event, 4)
	client := NewClient("tok")
	g := NewGateway("tok", client, func(ev platform.Event) bool {
		events <- ev
		return true
	}, WithGatewayURL("ws"+strings.TrimPrefix(srv.URL, "http")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	select {
	case id := <-identified:
		assert.Equal(t, opIdentify, id.Op)
		var d struct {
			Token   string `json:"token"`
			Intents int    `json:"intents"`
		}
		require.NoError(t, json.Unmarshal(id.D, &d))
		assert.Equal(t, "tok", d.Token)
		assert.Equal(t, Intents, d.Intents)
	case <-time.After(5 * time.Second):
		t.Fatal("no identify")
	}

	select {
	case ev := <-events:
		assert.Equal(t, platform.EventMessageCreate, ev.Type)
		assert.Equal(t, "hi", ev.Message.Content)
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	assert.Equal(t, platform.UserID(1), client.Self())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not stop")
	}
}
