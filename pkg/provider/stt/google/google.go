// Package google provides an STT provider backed by Google Cloud
// Speech-to-Text streaming recognition.
//
// Sessions run in single-utterance mode: Google decides when the speaker is
// done, sends END_OF_SINGLE_UTTERANCE, delivers the last final result and then
// ends the stream. That last final is reported with EndOfUtterance set and
// the session's channels are closed afterwards, so callers open a new session
// per utterance.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/stt"
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLanguage sets the default BCP-47 language code (e.g., "en-US").
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithModel selects a recognition model (e.g., "latest_short").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithClientOptions passes options such as credentials or an endpoint to the
// underlying Speech client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Provider) { p.clientOpts = append(p.clientOpts, opts...) }
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
type Provider struct {
	client     *speech.Client
	language   string
	model      string
	clientOpts []option.ClientOption
}

var _ stt.Provider = (*Provider)(nil)

// New creates the Speech client. Without client options it uses Application
// Default Credentials.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	client, err := speech.NewClient(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google: create speech client: %w", err)
	}
	p.client = client
	return p, nil
}

// Close releases the Speech client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// StartStream opens a single-utterance streaming recognition session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("google: open stream: %w", mapError(err))
	}
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: p.streamingConfig(cfg),
		},
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("google: send streaming config: %w", mapError(err))
	}

	s := &session{
		stream:   stream,
		cancel:   cancel,
		audio:    make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		ended:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.sendLoop()
	go s.recvLoop()
	return s, nil
}

func (p *Provider) streamingConfig(cfg stt.StreamConfig) *speechpb.StreamingRecognitionConfig {
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(rate),
		AudioChannelCount:          1,
		LanguageCode:               lang,
		Model:                      p.model,
		EnableAutomaticPunctuation: true,
	}
	if len(cfg.Keywords) > 0 {
		phrases := make([]string, len(cfg.Keywords))
		var boost float32
		for i, kw := range cfg.Keywords {
			phrases[i] = kw.Keyword
			boost = max(boost, float32(kw.Boost))
		}
		rc.SpeechContexts = []*speechpb.SpeechContext{{Phrases: phrases, Boost: boost}}
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:          rc,
		InterimResults:  true,
		SingleUtterance: true,
	}
}

// mapError turns quota rejections into [provider.ErrActivationLimit].
func mapError(err error) error {
	if status.Code(err) == codes.ResourceExhausted {
		return fmt.Errorf("%w: %v", provider.ErrActivationLimit, err)
	}
	return err
}

// ---- session ----

type session struct {
	stream   speechpb.Speech_StreamingRecognizeClient
	cancel   context.CancelFunc
	audio    chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	// ended is closed once Google signalled the end of the utterance; the
	// send side is half-closed after that.
	ended     chan struct{}
	endedOnce sync.Once

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *session) sendLoop() {
	defer s.wg.Done()
	defer func() { _ = s.stream.CloseSend() }()
	for {
		select {
		case chunk := <-s.audio:
			err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
			})
			if err != nil {
				return
			}
		case <-s.ended:
			return
		case <-s.done:
			return
		}
	}
}

func (s *session) recvLoop() {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var st recognitionState
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
				slog.Warn("google: streaming recognition ended", "err", mapError(err))
			}
			if tr, ok := st.finish(); ok {
				s.emitFinal(tr)
			}
			return
		}
		if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
			s.stopSending()
		}
		for _, tr := range st.apply(resp) {
			if tr.IsFinal {
				s.emitFinal(tr)
				continue
			}
			select {
			case s.partials <- tr:
			default:
			}
		}
	}
}

func (s *session) stopSending() {
	s.endedOnce.Do(func() { close(s.ended) })
}

func (s *session) emitFinal(tr stt.Transcript) {
	select {
	case s.finals <- tr:
	case <-s.done:
	}
}

// recognitionState tracks the single-utterance protocol across responses.
type recognitionState struct {
	utteranceEnded bool
	reported       bool
}

// apply converts one response into transcripts. Once the utterance has ended,
// the next final result is the one that closes it.
func (st *recognitionState) apply(resp *speechpb.StreamingRecognizeResponse) []stt.Transcript {
	if resp.GetSpeechEventType() == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE {
		st.utteranceEnded = true
	}
	var out []stt.Transcript
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		tr := stt.Transcript{
			Text:       alts[0].GetTranscript(),
			IsFinal:    r.GetIsFinal(),
			Confidence: float64(alts[0].GetConfidence()),
		}
		if r.GetResultEndTime() != nil {
			tr.Duration = r.GetResultEndTime().AsDuration()
		}
		if tr.IsFinal && st.utteranceEnded && !st.reported {
			tr.EndOfUtterance = true
			st.reported = true
		}
		out = append(out, tr)
	}
	return out
}

// finish reports an empty end-of-utterance final when the stream ended after
// END_OF_SINGLE_UTTERANCE without a final result (nothing was said).
func (st *recognitionState) finish() (stt.Transcript, bool) {
	if st.utteranceEnded && !st.reported {
		st.reported = true
		return stt.Transcript{IsFinal: true, EndOfUtterance: true}, true
	}
	return stt.Transcript{}, false
}
