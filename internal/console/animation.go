package console

import (
	"sync"
	"time"
)

// DefaultAnimationInterval is the time between two spinner frames.
const DefaultAnimationInterval = 100 * time.Millisecond

var spinner = []string{" .  ", " .. ", " ...", "  ..", "   .", "    "}

// Animation keeps the enrollment progress line alive with a spinner while
// the user speaks. Create it with [Printer.Animate].
type Animation struct {
	p *Printer

	mu       sync.Mutex
	percent  float64
	feedback string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Animate starts redrawing the progress line every interval until Stop.
func (p *Printer) Animate(interval time.Duration) *Animation {
	if interval <= 0 {
		interval = DefaultAnimationInterval
	}
	a := &Animation{
		p:    p,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go a.run(interval)
	return a
}

// Set updates the percentage and feedback shown on the next redraw.
func (a *Animation) Set(percent float64, feedback string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.percent = percent
	a.feedback = feedback
}

// Stop ends the animation and leaves the last progress line without a
// spinner. It is safe to call more than once.
func (a *Animation) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
		percent, feedback := a.state()
		a.p.Progress(percent, feedback)
	})
}

func (a *Animation) run(interval time.Duration) {
	defer close(a.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; ; i = (i + 1) % len(spinner) {
		percent, feedback := a.state()
		a.p.Progress(percent, feedback+spinner[i])
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}
	}
}

func (a *Animation) state() (float64, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.percent, a.feedback
}
