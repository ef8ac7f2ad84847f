package pipeline

import (
	"log/slog"
	"time"
)

const (
	// inboxSize bounds the messages queued towards a worker. It is large
	// enough that a healthy worker never fills it.
	inboxSize = 128

	// outboxSize bounds the messages queued from a worker to the driver.
	outboxSize = 512
)

type options struct {
	obs     Observer
	profile bool
	now     func() time.Time
}

func newOptions(opts []Option) options {
	o := options{obs: NopObserver{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a pipeline stage.
type Option func(*options)

// WithObserver sets the observer that receives the stage's events.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.obs = obs
		}
	}
}

// WithProfiling enables publishing of [Report] samples.
func WithProfiling(enabled bool) Option {
	return func(o *options) { o.profile = enabled }
}

// WithClock replaces time.Now. Tests use it to control endpoint timestamps
// and delays.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// post queues msg without blocking. A full inbox drops the message.
func post(inbox chan<- Message, stage string, msg Message) {
	select {
	case inbox <- msg:
	default:
		slog.Warn("pipeline: inbox full, dropping message", "stage", stage, "type", typeName(msg))
	}
}

func typeName(msg Message) string {
	switch msg.(type) {
	case Start:
		return "start"
	case Close:
		return "close"
	case Generate:
		return "generate"
	case Process:
		return "process"
	case Synthesize:
		return "synthesize"
	case Speak:
		return "speak"
	case Flush:
		return "flush"
	case Interrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}
