package pipeline_test

import (
	"testing"

	"github.com/MrWong99/voxpipe/internal/pipeline"
)

func TestCompletionBuffer_StopPhraseSplitAcrossTokens(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	tokens := []string{"Hello", " wor", "ld</s", ">"}
	want := []string{"Hello", " wor", "ld", ""}
	for i, tok := range tokens {
		if got := b.Append(tok); got != want[i] {
			t.Errorf("Append(%q) = %q, want %q", tok, got, want[i])
		}
	}
	if got := b.Text(); got != "Hello world" {
		t.Errorf("Text() = %q, want %q", got, "Hello world")
	}
	if got := b.Append(" more"); got != "" {
		t.Errorf("Append after stop phrase = %q, want empty", got)
	}
}

func TestCompletionBuffer_HeldPrefixReleased(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	if got := b.Append("a <"); got != "a " {
		t.Fatalf("Append = %q, want %q", got, "a ")
	}
	if got := b.Append("b"); got != "<b" {
		t.Errorf("Append = %q, want %q", got, "<b")
	}
}

func TestCompletionBuffer_FinishReleasesHeldTail(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	if got := b.Append("2 <"); got != "2 " {
		t.Fatalf("Append = %q, want %q", got, "2 ")
	}
	if got := b.Finish(); got != "<" {
		t.Errorf("Finish = %q, want %q", got, "<")
	}
	if got := b.Text(); got != "2 <" {
		t.Errorf("Text() = %q, want %q", got, "2 <")
	}
	if got := b.Finish(); got != "" {
		t.Errorf("second Finish = %q, want empty", got)
	}
}

func TestCompletionBuffer_FinishStopsAtStopPhrase(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	b.Append("Done.<|eot_id|> <|")
	if got := b.Finish(); got != "" {
		t.Errorf("Finish = %q, want empty", got)
	}
	if got := b.Text(); got != "Done." {
		t.Errorf("Text() = %q, want %q", got, "Done.")
	}
}

func TestCompletionBuffer_NeverReemits(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	var all string
	for _, tok := range []string{"One", " two", " <|e", "ot", "x", "|> three", "<|eot_id|>", "tail"} {
		all += b.Append(tok)
	}
	if all != b.Text() {
		t.Errorf("concatenated emissions %q differ from Text() %q", all, b.Text())
	}
	if want := "One two <|eotx|> three"; all != want {
		t.Errorf("emitted %q, want %q", all, want)
	}
}

func TestCompletionBuffer_Reset(t *testing.T) {
	t.Parallel()

	b := pipeline.NewCompletionBuffer(pipeline.StopPhrases)
	b.Append("first</s>")
	b.Reset()
	if got := b.Append("second"); got != "second" {
		t.Errorf("Append after Reset = %q, want %q", got, "second")
	}
	if got := b.Text(); got != "second" {
		t.Errorf("Text() = %q, want %q", got, "second")
	}
}

func TestCompletionBuffer_NoStops(t *testing.T) {
	t.Parallel()

	var b pipeline.CompletionBuffer
	if got := b.Append("</s>"); got != "</s>" {
		t.Errorf("Append = %q, want %q", got, "</s>")
	}
}
