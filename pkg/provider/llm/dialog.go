package llm

// Dialog is the chat history of one assistant session: alternating user
// requests and assistant responses, plus an optional system prompt.
//
// A Dialog is owned by the generator worker and is not safe for concurrent
// use.
type Dialog struct {
	system   string
	history  []Message
	maxTurns int
}

// DialogOption configures a Dialog.
type DialogOption func(*Dialog)

// WithMaxTurns keeps at most n request/response pairs; older ones are dropped
// when a new request is added. Zero keeps everything.
func WithMaxTurns(n int) DialogOption {
	return func(d *Dialog) { d.maxTurns = n }
}

// NewDialog returns an empty dialog. systemPrompt may be empty.
func NewDialog(systemPrompt string, opts ...DialogOption) *Dialog {
	d := &Dialog{system: systemPrompt}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SystemPrompt returns the system prompt the dialog was created with.
func (d *Dialog) SystemPrompt() string { return d.system }

// AddUser appends a user request.
func (d *Dialog) AddUser(text string) {
	d.history = append(d.history, Message{Role: RoleUser, Content: text})
	d.trim()
}

// AddResponse appends an assistant response.
func (d *Dialog) AddResponse(text string) {
	d.history = append(d.history, Message{Role: RoleAssistant, Content: text})
}

// Rollback drops the trailing user request if it has not been answered yet.
// It reports whether a message was removed.
func (d *Dialog) Rollback() bool {
	n := len(d.history)
	if n == 0 || d.history[n-1].Role != RoleUser {
		return false
	}
	d.history = d.history[:n-1]
	return true
}

// Messages returns a copy of the history, oldest first. The system prompt is
// not included; it travels in [CompletionRequest.SystemPrompt].
func (d *Dialog) Messages() []Message {
	out := make([]Message, len(d.history))
	copy(out, d.history)
	return out
}

// Len returns the number of messages in the history.
func (d *Dialog) Len() int { return len(d.history) }

func (d *Dialog) trim() {
	if d.maxTurns <= 0 {
		return
	}
	// The newest message is the pending request; count it as a turn.
	limit := d.maxTurns*2 - 1
	if excess := len(d.history) - limit; excess > 0 {
		d.history = append([]Message(nil), d.history[excess:]...)
	}
}
