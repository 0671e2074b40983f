package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plent/internal/config"
	"github.com/roach88/plent/internal/router"
)

// Scenario is a scripted sequence of chat events and the assertions that
// must hold afterwards.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config is the bot configuration. Paths are ignored; the run uses a
	// temporary directory.
	Config config.Config `yaml:"config"`

	Members   []Member      `yaml:"members,omitempty"`
	Artifacts []ArtifactDef `yaml:"artifacts,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Member is a chat member referenced by steps.
type Member struct {
	ID    uint64   `yaml:"id"`
	Name  string   `yaml:"name"`
	Nick  string   `yaml:"nick,omitempty"`
	Roles []uint64 `yaml:"roles,omitempty"`
	Bot   bool     `yaml:"bot,omitempty"`
}

// ArtifactDef describes a schematic by its name and block list.
type ArtifactDef struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Blocks      []string `yaml:"blocks,omitempty"`
}

// Step types.
const (
	StepCreate       = "create"
	StepUpdate       = "update"
	StepDelete       = "delete"
	StepReact        = "react"
	StepThreadCreate = "thread_create"
	StepThreadDelete = "thread_delete"
)

// Step is one chat event.
type Step struct {
	Type string `yaml:"type"`

	// Message events.
	Channel    uint64 `yaml:"channel,omitempty"`
	Message    uint64 `yaml:"message,omitempty"`
	Author     uint64 `yaml:"author,omitempty"`
	Content    string `yaml:"content,omitempty"`
	Artifact   string `yaml:"artifact,omitempty"`
	Attachment string `yaml:"attachment,omitempty"`
	// Forward carries the artifact in a forwarded snapshot instead of
	// the message body.
	Forward bool `yaml:"forward,omitempty"`

	// Reactions.
	User  uint64 `yaml:"user,omitempty"`
	Emoji string `yaml:"emoji,omitempty"`

	// Threads.
	Thread uint64   `yaml:"thread,omitempty"`
	Parent uint64   `yaml:"parent,omitempty"`
	Name   string   `yaml:"name,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`

	// ExpectError is the failure class router.Handle must return, e.g.
	// "authorization". Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks the trace or the final state.
type Assertion struct {
	Type string `yaml:"type"`

	// trace_contains, trace_count.
	Action string         `yaml:"action,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Count  int            `yaml:"count,omitempty"`

	// trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// final_state.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// stored, not_stored.
	Repo    string `yaml:"repo,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
	Message uint64 `yaml:"message,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStored        = "stored"
	AssertNotStored     = "not_stored"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	members := make(map[uint64]bool, len(s.Members))
	for i, m := range s.Members {
		if m.ID == 0 {
			return fmt.Errorf("members[%d]: id is required", i)
		}
		if members[m.ID] {
			return fmt.Errorf("members[%d]: duplicate id %d", i, m.ID)
		}
		members[m.ID] = true
	}
	artifacts := make(map[string]bool, len(s.Artifacts))
	for i, a := range s.Artifacts {
		if a.Key == "" {
			return fmt.Errorf("artifacts[%d]: key is required", i)
		}
		if artifacts[a.Key] {
			return fmt.Errorf("artifacts[%d]: duplicate key %q", i, a.Key)
		}
		artifacts[a.Key] = true
	}

	for i, st := range s.Steps {
		if err := validateStep(i, st, members, artifacts); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, st Step, members map[uint64]bool, artifacts map[string]bool) error {
	switch st.Type {
	case StepCreate, StepUpdate:
		if st.Channel == 0 || st.Message == 0 {
			return fmt.Errorf("steps[%d]: channel and message are required for %s", i, st.Type)
		}
		if st.Author != 0 && !members[st.Author] {
			return fmt.Errorf("steps[%d]: unknown member %d", i, st.Author)
		}
		for _, key := range []string{st.Artifact, st.Attachment} {
			if key != "" && !artifacts[key] {
				return fmt.Errorf("steps[%d]: unknown artifact %q", i, key)
			}
		}
	case StepDelete:
		if st.Channel == 0 || st.Message == 0 {
			return fmt.Errorf("steps[%d]: channel and message are required for delete", i)
		}
	case StepReact:
		if st.Channel == 0 || st.Message == 0 || st.Emoji == "" {
			return fmt.Errorf("steps[%d]: channel, message and emoji are required for react", i)
		}
		if !members[st.User] {
			return fmt.Errorf("steps[%d]: unknown member %d", i, st.User)
		}
	case StepThreadCreate, StepThreadDelete:
		if st.Thread == 0 || st.Parent == 0 {
			return fmt.Errorf("steps[%d]: thread and parent are required for %s", i, st.Type)
		}
	case "":
		return fmt.Errorf("steps[%d]: type is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown step type %q", i, st.Type)
	}

	switch router.Class(st.ExpectError) {
	case "", router.ExtractionFailure, router.VcsFailure, router.PersistenceFailure,
		router.AuthorizationFailure, router.PlatformFailure:
	default:
		return fmt.Errorf("steps[%d]: unknown error class %q", i, st.ExpectError)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStored, AssertNotStored:
		if a.Repo == "" || a.Dir == "" || a.Message == 0 {
			return fmt.Errorf("assertions[%d]: repo, dir and message are required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
