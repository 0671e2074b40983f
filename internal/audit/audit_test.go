package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
)

const denyEmoji = platform.Emoji("<:deny:1192388789952319499>")

func sampleChange() Change {
	return Change{
		Repo: &registry.Repo{Name: "cd", Audit: true},
		Origin: platform.MessageRef{
			Guild:   925674713429184564,
			Channel: 1100,
			Message: 1107438012345678901,
		},
		ID:    1107438012345678901,
		Ext:   "msch",
		Name:  "[accent]Plastanium [red]Sorter",
		Actor: platform.Member{User: 1, Name: "ana", Nick: "Ana", Avatar: "https://cdn.example/ana.png"},
		Owner: "bo",
	}
}

func assertGolden(t *testing.T, name string, m Message) {
	t.Helper()
	body, err := Payload(m)
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, body)
}

func TestMessagesGolden(t *testing.T) {
	c := sampleChange()

	assertGolden(t, "added", AddedMessage(c))
	assertGolden(t, "updated", UpdatedMessage(c))
	assertGolden(t, "deleted", DeletedMessage(c, "plent"))
	assertGolden(t, "denied", DeniedMessage(c, denyEmoji))
}

func TestNotifierRespectsAuditFlag(t *testing.T) {
	ctx := context.Background()
	rec := &Recorder{}
	n := New(rec, "plent", denyEmoji)

	c := sampleChange()
	n.Added(ctx, c)
	n.Updated(ctx, c)
	n.Deleted(ctx, c)
	n.Denied(ctx, c)

	c.Repo = &registry.Repo{Name: "quiet"}
	n.Added(ctx, c)

	msgs := rec.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, ColorAdd, msgs[0].Color)
	assert.Equal(t, ColorAdd, msgs[1].Color)
	assert.Equal(t, "plent", msgs[2].Username)
	assert.Equal(t, "message was deleted.", msgs[2].Footer)
	assert.Equal(t, "denied by Ana.", msgs[3].Footer)
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Added(context.Background(), sampleChange()) })
}

func TestNotifierSwallowsFailures(t *testing.T) {
	var failed []string
	n := New(&Recorder{Fail: true}, "plent", denyEmoji, WithFailureHook(func(kind string) {
		failed = append(failed, kind)
	}))

	n.Added(context.Background(), sampleChange())
	n.Deleted(context.Background(), sampleChange())

	assert.Equal(t, []string{"add", "remove"}, failed)
}

func TestDefaultExt(t *testing.T) {
	c := sampleChange()
	c.Ext = ""
	c.ID = artifact.ID(0xff)
	assert.Contains(t, AddedMessage(c).Text, "(`ff.msch`)")
}

func TestWebhookSink(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, 60, srv.Client())
	require.NoError(t, sink.Post(context.Background(), DeletedMessage(sampleChange(), "plent")))

	assert.Equal(t, "plent", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, ColorRemove, got.Embeds[0].Color)
	require.NotNil(t, got.Embeds[0].Footer)
	assert.Equal(t, "message was deleted.", got.Embeds[0].Footer.Text)
}

func TestWebhookSinkStatusError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, 60, srv.Client()).Post(context.Background(), AddedMessage(sampleChange()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "unknown webhook")
	assert.EqualValues(t, 1, calls.Load())
}

func TestWebhookSinkHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWebhookSink(srv.URL, 60, srv.Client()).Post(ctx, AddedMessage(sampleChange()))
	assert.Error(t, err)
}
