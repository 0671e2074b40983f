package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/plent/internal/artifact"
	"github.com/roach88/plent/internal/audit"
	"github.com/roach88/plent/internal/config"
	"github.com/roach88/plent/internal/platform"
	"github.com/roach88/plent/internal/repo"
	"github.com/roach88/plent/internal/router"
	"github.com/roach88/plent/internal/store"
	"github.com/roach88/plent/internal/testutil"
	"github.com/roach88/plent/internal/tracker"
	"github.com/roach88/plent/internal/vcs"
)

// Epoch is the fixed wall-clock time every run starts at. The clock moves
// one second per step.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the router and fakes of one scenario run.
type Harness struct {
	scenario *Scenario
	cfg      config.Config
	guild    platform.GuildID

	router *router.Router
	chat   *chatTracer
	trace  *tracer
	repos  map[string]*repo.Repo
	store  *store.Store
	clock  *testutil.ManualClock

	members   map[uint64]platform.Member
	artifacts map[string]ArtifactDef
}

// Run executes a scenario in a fresh temporary directory and evaluates
// its assertions.
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "plent-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := newHarness(s, dir)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, st := range s.Steps {
		h.execute(ctx, i, st, result)
		h.clock.Advance(time.Second)
	}
	result.Trace = h.trace.trace()

	actx := &AssertionContext{Ctx: ctx, Store: h.store, Repos: h.repos}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(s *Scenario, dir string) (*Harness, error) {
	cfg := s.Config
	cfg.ReposDir = filepath.Join(dir, "repos")
	cfg.Database = filepath.Join(dir, "plent.db")
	cfg.ApplyDefaults()

	reg, err := cfg.Registry(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	h := &Harness{
		scenario:  s,
		cfg:       cfg,
		guild:     platform.GuildID(cfg.Repos[0].Guild),
		trace:     &tracer{},
		repos:     make(map[string]*repo.Repo, len(cfg.Repos)),
		clock:     testutil.NewManualClock(Epoch),
		members:   make(map[uint64]platform.Member, len(s.Members)),
		artifacts: make(map[string]ArtifactDef, len(s.Artifacts)),
	}
	h.chat = &chatTracer{Fake: platform.NewFake(), t: h.trace}

	for _, m := range s.Members {
		pm := platform.Member{User: platform.UserID(m.ID), Name: m.Name, Nick: m.Nick, Bot: m.Bot}
		for _, r := range m.Roles {
			pm.Roles = append(pm.Roles, platform.RoleID(r))
		}
		h.members[m.ID] = pm
		h.chat.Names[pm.User] = pm.DisplayName()
	}
	for _, a := range s.Artifacts {
		h.artifacts[a.Key] = a
	}

	var repos []*repo.Repo
	for _, rc := range cfg.Repos {
		backend := &vcsTracer{Recorder: vcs.NewRecorder(), repo: rc.Name, t: h.trace}
		r, err := repo.Open(rc.Name, cfg.RepoRoot(rc.Name), backend, artifact.Msch{})
		if err != nil {
			return nil, fmt.Errorf("failed to open repository %s: %w", rc.Name, err)
		}
		h.repos[rc.Name] = r
		repos = append(repos, r)
	}

	h.store, err = store.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	h.router = router.New(router.Config{
		BotName:         cfg.BotName,
		SuperAdmin:      platform.UserID(cfg.SuperAdmin),
		AcceptEmoji:     platform.Emoji(cfg.AcceptEmoji),
		DenyReaction:    platform.Emoji(cfg.DenyReaction),
		OperatorGuild:   platform.GuildID(cfg.OperatorGuild),
		OperatorChannel: platform.ChannelID(cfg.OperatorChannel),
		Workers:         cfg.Workers,
	}, router.Deps{
		Client:   h.chat,
		Registry: reg,
		Repos:    repos,
		Codec:    artifact.Msch{},
		Tracker:  tracker.New(h.clock),
		Audit:    audit.New(&auditTracer{t: h.trace}, cfg.Audit.Username, platform.Emoji(cfg.DenyReaction)),
		Store:    h.store,
		Render:   func(*artifact.Artifact) ([]byte, error) { return []byte("png"), nil },
		IDs:      testutil.NewSequentialIDs("evt"),
		Clock:    h.clock,
	})
	return h, nil
}

// execute turns a step into an event, handles it and checks the outcome.
func (h *Harness) execute(ctx context.Context, i int, st Step, result *Result) {
	h.trace.setStep(i + 1)

	ev, err := h.event(st)
	if err != nil {
		result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, st.Type, err))
		return
	}
	err = h.router.Handle(ctx, ev)

	out := StepOutcome{Step: i + 1, Type: st.Type, Class: string(router.ClassOf(err))}
	if err != nil {
		out.Error = err.Error()
	}
	result.Outcomes = append(result.Outcomes, out)

	switch {
	case st.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected error: %v", i, st.Type, err))
	case st.ExpectError != "" && out.Class != st.ExpectError:
		result.AddError(fmt.Sprintf("steps[%d] (%s): expected %s failure, got %v", i, st.Type, st.ExpectError, err))
	}
}

func (h *Harness) event(st Step) (platform.Event, error) {
	switch st.Type {
	case StepCreate, StepUpdate:
		m, err := h.message(st)
		if err != nil {
			return platform.Event{}, err
		}
		kind := platform.EventMessageCreate
		if st.Type == StepUpdate {
			kind = platform.EventMessageUpdate
		}
		return platform.Event{Type: kind, Message: &m}, nil

	case StepDelete:
		ref := h.ref(st.Channel, st.Message)
		return platform.Event{Type: platform.EventMessageDelete, Deleted: &ref}, nil

	case StepReact:
		return platform.Event{Type: platform.EventReactionAdd, Reaction: &platform.Reaction{
			Message: h.ref(st.Channel, st.Message),
			Member:  h.members[st.User],
			Emoji:   platform.Emoji(st.Emoji),
		}}, nil

	case StepThreadCreate:
		h.chat.Parents[platform.ChannelID(st.Thread)] = platform.ChannelID(st.Parent)
		return platform.Event{Type: platform.EventThreadCreate, Thread: h.thread(st)}, nil

	case StepThreadDelete:
		return platform.Event{Type: platform.EventThreadDelete, Thread: h.thread(st)}, nil
	}
	return platform.Event{}, fmt.Errorf("unknown step type %q", st.Type)
}

func (h *Harness) ref(channel, message uint64) platform.MessageRef {
	return platform.MessageRef{Guild: h.guild, Channel: platform.ChannelID(channel), Message: platform.MessageID(message)}
}

func (h *Harness) thread(st Step) *platform.Thread {
	return &platform.Thread{
		ID:     platform.ChannelID(st.Thread),
		Parent: platform.ChannelID(st.Parent),
		Guild:  h.guild,
		Name:   st.Name,
		Tags:   st.Tags,
	}
}

// message builds the chat message of a create or update step. An inline
// artifact replaces the content; an attachment is served by the fake's
// download table.
func (h *Harness) message(st Step) (platform.Message, error) {
	author, ok := h.members[st.Author]
	if !ok {
		author = platform.Member{User: platform.UserID(st.Author)}
	}
	content := st.Content
	var attachments []platform.Attachment

	if st.Artifact != "" {
		text, err := artifact.FormatText(artifact.Msch{}, h.build(st.Artifact))
		if err != nil {
			return platform.Message{}, fmt.Errorf("format artifact %q: %w", st.Artifact, err)
		}
		content = text
	}
	if st.Attachment != "" {
		data, err := artifact.Msch{}.Encode(h.build(st.Attachment))
		if err != nil {
			return platform.Message{}, fmt.Errorf("encode artifact %q: %w", st.Attachment, err)
		}
		name := st.Attachment + "." + artifact.Msch{}.Ext()
		url := "https://cdn.test/" + name
		h.chat.Downloads[url] = data
		attachments = append(attachments, platform.Attachment{Filename: name, URL: url, Size: len(data)})
	}

	m := platform.Message{
		Ref:       h.ref(st.Channel, st.Message),
		Author:    author,
		Timestamp: h.clock.Now(),
	}
	if st.Forward {
		m.Snapshots = []platform.Snapshot{{Content: content, Attachments: attachments}}
	} else {
		m.Content = content
		m.Attachments = attachments
	}
	return m, nil
}

// build returns a fresh artifact for key; handlers relabel what they get.
func (h *Harness) build(key string) *artifact.Artifact {
	def := h.artifacts[key]
	a := testutil.Artifact(def.Name, def.Blocks...)
	if def.Description != "" {
		a.Tags[artifact.TagDescription] = def.Description
	}
	return a
}
