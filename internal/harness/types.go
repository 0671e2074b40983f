package harness

// TraceEvent is one call the router made on a fake.
type TraceEvent struct {
	Seq    int            `json:"seq"`
	Step   int            `json:"step"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

// Trace actions.
const (
	ActionVCSAdd      = "vcs.add"
	ActionVCSRemove   = "vcs.remove"
	ActionVCSCommit   = "vcs.commit"
	ActionVCSPush     = "vcs.push"
	ActionChatReply   = "chat.reply"
	ActionChatSend    = "chat.send"
	ActionChatDelete  = "chat.delete"
	ActionChatReact   = "chat.react"
	ActionChatUnreact = "chat.unreact"
	ActionChatThread  = "chat.thread"
	ActionAuditPost   = "audit.post"
)

// StepOutcome is what router.Handle returned for one step.
type StepOutcome struct {
	Step  int    `json:"step"`
	Type  string `json:"type"`
	Class string `json:"class,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every
	// assertion held.
	Pass bool `json:"pass"`

	Trace    []TraceEvent  `json:"trace"`
	Outcomes []StepOutcome `json:"outcomes"`
	Errors   []string      `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Outcomes: []StepOutcome{},
		Errors:   []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
