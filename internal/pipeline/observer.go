package pipeline

// Observer receives the user-visible events of the pipeline. Methods are
// called from the driver goroutine only and must not block.
type Observer interface {
	// WakeWordDetected is called when the wake word interrupts the pipeline.
	WakeWordDetected()

	// Listening is called once the settle period is over and speech is being
	// transcribed.
	Listening()

	// Transcript is called with every new piece of user text.
	Transcript(text string)

	// UtteranceComplete is called with the full request at the endpoint.
	UtteranceComplete(text string)

	// ResponseStarted is called when a response turn begins.
	ResponseStarted()

	// ResponseText is called with every chunk of response text.
	ResponseText(text string)

	// ResponseComplete is called when the model finished the response.
	ResponseComplete()

	// Idle is called when playback drained and the assistant waits for the
	// wake word again.
	Idle()

	// Profile is called with profiling samples when profiling is enabled.
	Profile(r Report)
}

// NopObserver ignores every event.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) WakeWordDetected()        {}
func (NopObserver) Listening()               {}
func (NopObserver) Transcript(string)        {}
func (NopObserver) UtteranceComplete(string) {}
func (NopObserver) ResponseStarted()         {}
func (NopObserver) ResponseText(string)      {}
func (NopObserver) ResponseComplete()        {}
func (NopObserver) Idle()                    {}
func (NopObserver) Profile(Report)           {}

// MultiObserver forwards every event to each observer in order.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

func (m MultiObserver) WakeWordDetected() {
	for _, o := range m {
		o.WakeWordDetected()
	}
}

func (m MultiObserver) Listening() {
	for _, o := range m {
		o.Listening()
	}
}

func (m MultiObserver) Transcript(text string) {
	for _, o := range m {
		o.Transcript(text)
	}
}

func (m MultiObserver) UtteranceComplete(text string) {
	for _, o := range m {
		o.UtteranceComplete(text)
	}
}

func (m MultiObserver) ResponseStarted() {
	for _, o := range m {
		o.ResponseStarted()
	}
}

func (m MultiObserver) ResponseText(text string) {
	for _, o := range m {
		o.ResponseText(text)
	}
}

func (m MultiObserver) ResponseComplete() {
	for _, o := range m {
		o.ResponseComplete()
	}
}

func (m MultiObserver) Idle() {
	for _, o := range m {
		o.Idle()
	}
}

func (m MultiObserver) Profile(r Report) {
	for _, o := range m {
		o.Profile(r)
	}
}
