package observe

import (
	"context"
	"time"

	"github.com/MrWong99/voxpipe/internal/pipeline"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TurnObserver is a [pipeline.Observer] that records metrics and one span per
// conversational turn. A turn starts at the wake word and ends when playback
// of the answer finished, or when the next wake word interrupts it.
//
// Like every observer it is called from the pipeline driver goroutine only.
type TurnObserver struct {
	ctx    context.Context
	m      *Metrics
	tracer trace.Tracer
	now    func() time.Time

	span       trace.Span
	endpoint   time.Time
	responding bool
	replyChars int
}

var _ pipeline.Observer = (*TurnObserver)(nil)

// TurnOption configures a [TurnObserver].
type TurnOption func(*TurnObserver)

// WithTracer sets the tracer of the turn spans. Default: [Tracer].
func WithTracer(t trace.Tracer) TurnOption {
	return func(o *TurnObserver) { o.tracer = t }
}

// WithTurnClock replaces time.Now for turn durations.
func WithTurnClock(now func() time.Time) TurnOption {
	return func(o *TurnObserver) { o.now = now }
}

// NewTurnObserver returns an observer whose spans are children of the span
// in ctx, if any.
func NewTurnObserver(ctx context.Context, m *Metrics, opts ...TurnOption) *TurnObserver {
	o := &TurnObserver{
		ctx:    ctx,
		m:      m,
		tracer: Tracer(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *TurnObserver) WakeWordDetected() {
	o.m.WakeWords.Add(o.ctx, 1)
	if o.span != nil {
		if o.responding {
			o.m.Interruptions.Add(o.ctx, 1)
			o.span.SetAttributes(attribute.Bool("voxpipe.interrupted", true))
		}
		o.endTurn()
	}
	_, o.span = o.tracer.Start(o.ctx, "voice.turn")
	o.span.AddEvent("wake word")
}

func (o *TurnObserver) Listening() {
	o.event("listening")
}

func (o *TurnObserver) Transcript(string) {}

func (o *TurnObserver) UtteranceComplete(text string) {
	o.endpoint = o.now()
	o.m.Requests.Add(o.ctx, 1)
	if o.span != nil {
		o.span.AddEvent("request", trace.WithAttributes(attribute.Int("voxpipe.request.chars", len(text))))
	}
}

func (o *TurnObserver) ResponseStarted() {
	if !o.responding {
		o.m.Speaking.Add(o.ctx, 1)
	}
	o.responding = true
	o.replyChars = 0
	o.event("response started")
}

func (o *TurnObserver) ResponseText(text string) {
	o.replyChars += len(text)
}

func (o *TurnObserver) ResponseComplete() {
	o.event("response complete")
}

func (o *TurnObserver) Idle() {
	if o.responding && !o.endpoint.IsZero() {
		o.m.TurnDuration.Record(o.ctx, o.now().Sub(o.endpoint).Seconds())
	}
	o.endTurn()
}

// Profile records profiling samples as metrics.
func (o *TurnObserver) Profile(r pipeline.Report) {
	switch r.Stage {
	case pipeline.StageLLM:
		o.m.TokenRate.Record(o.ctx, r.TPS)
	case pipeline.StageSynthesizer:
		o.m.RecordRTF(o.ctx, r.Stage, r.RTF)
		if r.Delay >= 0 {
			o.m.FirstAudioDelay.Record(o.ctx, r.Delay)
		}
	default:
		o.m.RecordRTF(o.ctx, r.Stage, r.RTF)
	}
}

// Close ends a turn that is still open.
func (o *TurnObserver) Close() {
	o.endTurn()
}

func (o *TurnObserver) event(name string) {
	if o.span != nil {
		o.span.AddEvent(name)
	}
}

func (o *TurnObserver) endTurn() {
	if o.responding {
		o.m.Speaking.Add(o.ctx, -1)
		o.responding = false
	}
	if o.span != nil {
		o.span.SetAttributes(attribute.Int("voxpipe.response.chars", o.replyChars))
		o.span.End()
		o.span = nil
	}
	o.endpoint = time.Time{}
	o.replyChars = 0
}
