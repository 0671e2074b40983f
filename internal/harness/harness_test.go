package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Outcomes, len(s.Steps))
		})
	}
}

func TestGolden_LogicAddThenDelete(t *testing.T) {
	_, err := RunWithGolden(t, loadTestScenario(t, "logic_add_then_delete"))
	require.NoError(t, err)
}

func TestGolden_StrictReject(t *testing.T) {
	_, err := RunWithGolden(t, loadTestScenario(t, "strict_reject"))
	require.NoError(t, err)
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "forum_thread")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Outcomes, second.Outcomes)
}

func TestRun_TraceSteps(t *testing.T) {
	result, err := Run(loadTestScenario(t, "logic_add_then_delete"))
	require.NoError(t, err)
	require.NotEmpty(t, result.Trace)

	for i, ev := range result.Trace {
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, 1, result.Trace[0].Step)
	assert.Equal(t, 2, result.Trace[len(result.Trace)-1].Step)
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s := loadTestScenario(t, "strict_reject")
	s.Steps[2].ExpectError = ""

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[2] (react): unexpected error")
}

func TestRun_MissingExpectedErrorFails(t *testing.T) {
	s := loadTestScenario(t, "logic_add_then_delete")
	s.Steps[0].ExpectError = "vcs"

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected vcs failure")
}

func TestRun_FailedAssertionReported(t *testing.T) {
	s := loadTestScenario(t, "edit_update")
	s.Assertions = []Assertion{{Type: AssertTraceCount, Action: ActionChatReply, Count: 5}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "5 occurrences of chat.reply")
	assert.Contains(t, result.Errors[0], "2 occurrences")
}

func TestRun_Forwarded(t *testing.T) {
	s := loadTestScenario(t, "logic_add_then_delete")
	s.Steps = s.Steps[:1]
	s.Steps[0].Forward = true
	s.Assertions = []Assertion{
		{Type: AssertStored, Repo: "designs", Dir: "logic", Message: 500},
		{Type: AssertTraceContains, Action: ActionVCSCommit, Args: map[string]any{"message": "add 1f4"}},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_BotAuthorIgnored(t *testing.T) {
	s := loadTestScenario(t, "logic_add_then_delete")
	s.Members = append(s.Members, Member{ID: 77, Name: "other-bot", Bot: true})
	s.Steps = []Step{{Type: StepCreate, Channel: 100, Message: 800, Author: 77, Artifact: "sorter"}}
	s.Assertions = []Assertion{
		{Type: AssertTraceCount, Action: ActionChatReply, Count: 0},
		{Type: AssertNotStored, Repo: "designs", Dir: "logic", Message: 800},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}
