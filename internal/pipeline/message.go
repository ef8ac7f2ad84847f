package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Message is the closed set of values exchanged between the driver-side stage
// proxies and their workers. Each variant is its own type; receivers switch
// on the concrete type and log anything they do not expect.
type Message interface {
	message()
}

// Start opens a response turn. Endpoint is when the user stopped speaking.
type Start struct {
	Endpoint time.Time
	Turn     uuid.UUID
}

// Close asks a worker to release its resources and return.
type Close struct{}

// Generate carries a finished user utterance to the generator worker.
type Generate struct {
	Text     string
	Endpoint time.Time
	Turn     uuid.UUID
}

// Process carries a text chunk to the synthesizer worker.
type Process struct {
	Text string
}

// Synthesize carries newly emitted completion text out of the generator
// worker.
type Synthesize struct {
	Text string
	Turn uuid.UUID
}

// Speak carries synthesized PCM out of the synthesizer worker.
type Speak struct {
	PCM  []int16
	Turn uuid.UUID
}

// Flush ends the current turn of a stage. Workers attach a profiling Report
// when they send it.
type Flush struct {
	Report *Report
	Turn   uuid.UUID
}

// Interrupt abandons the current turn.
type Interrupt struct{}

func (Start) message()      {}
func (Close) message()      {}
func (Generate) message()   {}
func (Process) message()    {}
func (Synthesize) message() {}
func (Speak) message()      {}
func (Flush) message()      {}
func (Interrupt) message()  {}
