package pipeline_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxpipe/internal/pipeline"
)

// recordingObserver records every event as a short string.
type recordingObserver struct {
	mu      sync.Mutex
	events  []string
	reports []pipeline.Report
}

var _ pipeline.Observer = (*recordingObserver)(nil)

func (o *recordingObserver) add(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func (o *recordingObserver) WakeWordDetected()          { o.add("wake") }
func (o *recordingObserver) Listening()                 { o.add("listening") }
func (o *recordingObserver) Transcript(s string)        { o.add("transcript:" + s) }
func (o *recordingObserver) UtteranceComplete(s string) { o.add("utterance:" + s) }
func (o *recordingObserver) ResponseStarted()           { o.add("response-started") }
func (o *recordingObserver) ResponseText(s string)      { o.add("response:" + s) }
func (o *recordingObserver) ResponseComplete()          { o.add("response-complete") }
func (o *recordingObserver) Idle()                      { o.add("idle") }

func (o *recordingObserver) Profile(r pipeline.Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
	o.events = append(o.events, fmt.Sprintf("profile:%s", r.Stage))
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func (o *recordingObserver) Reports() []pipeline.Report {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]pipeline.Report(nil), o.reports...)
}

func (o *recordingObserver) Count(e string) int {
	n := 0
	for _, got := range o.Events() {
		if got == e {
			n++
		}
	}
	return n
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
