package anyllm

import (
	"context"
	"errors"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	anyllmerrors "github.com/mozilla-ai/any-llm-go/errors"

	"github.com/MrWong99/voxpipe/pkg/provider"
	"github.com/MrWong99/voxpipe/pkg/provider/llm"
)

// ── Message conversion ───────────────────────────────────────────────────────

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role string
		want string
	}{
		{llm.RoleSystem, anyllmlib.RoleSystem},
		{llm.RoleUser, anyllmlib.RoleUser},
		{llm.RoleAssistant, anyllmlib.RoleAssistant},
	}
	for _, tt := range tests {
		msg, err := convertMessage(llm.Message{Role: tt.role, Content: "x"})
		if err != nil {
			t.Fatalf("%s: %v", tt.role, err)
		}
		if msg.Role != tt.want {
			t.Errorf("role %q converted to %q, want %q", tt.role, msg.Role, tt.want)
		}
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	t.Parallel()

	if _, err := convertMessage(llm.Message{Role: "function"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// ── Params ───────────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()

	p := &Provider{model: "llama3"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a kitchen assistant.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "timer for five minutes"},
			{Role: llm.RoleAssistant, Content: "Done."},
		},
		Temperature: 0,
		MaxTokens:   128,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Model != "llama3" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 3 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("messages = %+v, want system prompt first", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Error("temperature must always be set")
	}
	if params.TopP != nil {
		t.Error("zero top_p must be omitted")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("max tokens = %v, want 128", params.MaxTokens)
	}
}

// ── Constructor ──────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "m", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_OpenAIMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_LocalBackends(t *testing.T) {
	for _, fn := range []func(string, ...anyllmlib.Option) (*Provider, error){NewOllama, NewLlamaCpp} {
		p, err := fn("llama3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.model != "llama3" {
			t.Errorf("model = %q", p.model)
		}
	}
}

func TestNew_Anthropic(t *testing.T) {
	p, err := NewAnthropic("claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil || p == nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
}

// ── Streaming ────────────────────────────────────────────────────────────────

// fakeBackend streams chunks and then reports err.
type fakeBackend struct {
	chunks []string
	err    error
}

func (fakeBackend) Name() string { return "fake" }

func (fakeBackend) Completion(context.Context, anyllmlib.CompletionParams) (*anyllmlib.ChatCompletion, error) {
	return nil, errors.New("not implemented")
}

func (b fakeBackend) CompletionStream(context.Context, anyllmlib.CompletionParams) (<-chan anyllmlib.ChatCompletionChunk, <-chan error) {
	chunks := make(chan anyllmlib.ChatCompletionChunk, len(b.chunks))
	errs := make(chan error, 1)
	for _, text := range b.chunks {
		chunks <- anyllmlib.ChatCompletionChunk{
			Choices: []anyllmlib.ChunkChoice{{Delta: anyllmlib.ChunkDelta{Content: text}}},
		}
	}
	close(chunks)
	errs <- b.err
	close(errs)
	return chunks, errs
}

func collect(t *testing.T, p *Provider) (string, error) {
	t.Helper()
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	var text string
	var streamErr error
	for c := range ch {
		text += c.Text
		if c.Err != nil {
			streamErr = c.Err
		}
	}
	return text, streamErr
}

func TestStreamCompletion_Text(t *testing.T) {
	t.Parallel()

	p := &Provider{backend: fakeBackend{chunks: []string{"It is ", "noon."}}, model: "m"}
	text, err := collect(t, p)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "It is noon." {
		t.Errorf("text = %q", text)
	}
}

func TestStreamCompletion_LimitErrors(t *testing.T) {
	t.Parallel()

	quota := anyllmerrors.NewProviderError("gemini", errors.New("payment required"))
	quota.StatusCode = 402
	server := anyllmerrors.NewProviderError("gemini", errors.New("bad gateway"))
	server.StatusCode = 502

	tests := []struct {
		name      string
		err       error
		wantLimit bool
	}{
		{"rate limit", anyllmerrors.NewRateLimitError("anthropic", errors.New("429 quota exceeded")), true},
		{"payment required", quota, true},
		{"server error", server, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &Provider{backend: fakeBackend{chunks: []string{"Sure"}, err: tt.err}, model: "m"}
			_, err := collect(t, p)
			if err == nil {
				t.Fatal("expected a stream error")
			}
			if got := errors.Is(err, provider.ErrActivationLimit); got != tt.wantLimit {
				t.Errorf("errors.Is(ErrActivationLimit) = %v, want %v (err %v)", got, tt.wantLimit, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("backend error lost: %v", err)
			}
		})
	}
}
