package router

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/registry"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/store"
	"github.com/roach88/plent/internal/testutil"
	"github.com/roach88/plent/internal/tracker"
	"github.com/roach88/plent/internal/vcs"
)

const (
	testGuild  = platform.GuildID(7)
	logicCh    = platform.ChannelID(100)
	strictCh   = platform.ChannelID(200)
	forumCh    = platform.ChannelID(300)
	freeCh     = platform.ChannelID(400)
	operatorCh = platform.ChannelID(999)

	chiefID    = platform.UserID(10)
	superID    = platform.UserID(99)
	authorID   = platform.UserID(42)
	adminRole  = platform.RoleID(20)
	denyEmoji  = platform.Emoji("deny:1")
	acceptMark = platform.Emoji("✅")
	denyMark   = platform.Emoji("❌")
)

var author = platform.Member{User: authorID, Name: "ana"}

// opLog wraps the fake client and records replies and deletes in order.
type opLog struct {
	*platform.Fake
	mu  sync.Mutex
	ops []string
}

func (c *opLog) Reply(ctx context.Context, to platform.MessageRef, r platform.Reply) (platform.MessageRef, error) {
	ref, err := c.Fake.Reply(ctx, to, r)
	c.mu.Lock()
	c.ops = append(c.ops, "reply "+ref.Message.String())
	c.mu.Unlock()
	return ref, err
}

func (c *opLog) Delete(ctx context.Context, ref platform.MessageRef) error {
	err := c.Fake.Delete(ctx, ref)
	c.mu.Lock()
	c.ops = append(c.ops, "delete "+ref.Message.String())
	c.mu.Unlock()
	return err
}

func (c *opLog) Ops() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ops...)
}

type fixture struct {
	router  *Router
	client  *opLog
	vcs     *vcs.Recorder
	repo    *repo.Repo
	audit   *audit.Recorder
	store   *store.Store
	clock   *testutil.ManualClock
	reg     *registry.Registry
	designs *registry.Repo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	designs := &registry.Repo{
		Name:      "designs",
		Guild:     testGuild,
		Chief:     chiefID,
		Admins:    []registry.Person{{Role: adminRole}},
		DenyEmoji: denyEmoji,
		Audit:     true,
	}
	reg := registry.New(nil)
	reg.AddRepo(designs)
	require.NoError(t, reg.AddChannel(logicCh, registry.Entry{Repo: designs, Dir: "logic", Labels: registry.Fixed("logic")}))
	require.NoError(t, reg.AddChannel(strictCh, registry.Entry{
		Repo:   designs,
		Dir:    "units",
		Labels: registry.LabelSpec{Strategy: registry.UnitFactory},
		Strict: true,
	}))
	require.NoError(t, reg.AddForum(forumCh, registry.Entry{Repo: designs, Dir: "forum"}))
	reg.AllowSaves(freeCh)

	rec := vcs.NewRecorder()
	r, err := repo.Open("designs", t.TempDir(), rec, artifact.Msch{})
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "plent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := testutil.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	sink := &audit.Recorder{}
	client := &opLog{Fake: platform.NewFake()}

	rt := New(Config{
		BotName:         "plent",
		SuperAdmin:      superID,
		OperatorGuild:   testGuild,
		OperatorChannel: operatorCh,
		Workers:         2,
	}, Deps{
		Client:   client,
		Registry: reg,
		Repos:    []*repo.Repo{r},
		Codec:    artifact.Msch{},
		Tracker:  tracker.New(clock),
		Audit:    audit.New(sink, "plent", denyMark),
		Store:    st,
		Render:   func(*artifact.Artifact) ([]byte, error) { return []byte("png"), nil },
		IDs:      testutil.NewSequentialIDs("evt"),
		Clock:    clock,
	})

	return &fixture{
		router:  rt,
		client:  client,
		vcs:     rec,
		repo:    r,
		audit:   sink,
		store:   st,
		clock:   clock,
		reg:     reg,
		designs: designs,
	}
}

func (f *fixture) message(ch platform.ChannelID, id platform.MessageID, content string) platform.Message {
	return platform.Message{
		Ref:       platform.MessageRef{Guild: testGuild, Channel: ch, Message: id},
		Author:    author,
		Content:   content,
		Timestamp: f.clock.Now(),
	}
}

func createEvent(m platform.Message) platform.Event {
	return platform.Event{Type: platform.EventMessageCreate, Message: &m}
}

func updateEvent(m platform.Message) platform.Event {
	return platform.Event{Type: platform.EventMessageUpdate, Message: &m}
}

func deleteEvent(ref platform.MessageRef) platform.Event {
	return platform.Event{Type: platform.EventMessageDelete, Deleted: &ref}
}
