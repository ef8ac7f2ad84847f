package pipeline

import "strings"

// StopPhrases are the end-of-turn markers chat models commonly leak into
// their output. Text is never emitted from the first marker on.
var StopPhrases = []string{
	"</s>",
	"<end_of_turn>",
	"<|endoftext|>",
	"<|eot_id|>",
	"<|end|>",
	"<|user|>",
	"<|assistant|>",
}

// CompletionBuffer accumulates streamed tokens and releases the text that can
// safely be spoken. Text is held back while it could still turn out to be the
// beginning of a stop phrase, and nothing at or after a complete stop phrase
// is released. Released text is never released again.
//
// The zero value uses no stop phrases.
type CompletionBuffer struct {
	stops  []string
	text   strings.Builder
	cursor int
}

// NewCompletionBuffer returns a buffer that filters stops.
func NewCompletionBuffer(stops []string) *CompletionBuffer {
	return &CompletionBuffer{stops: append([]string(nil), stops...)}
}

// Append adds token and returns the text that became emittable, which may be
// empty.
func (b *CompletionBuffer) Append(token string) string {
	b.text.WriteString(token)
	text := b.text.String()

	end := b.stopIndex(text)
	for _, stop := range b.stops {
		for n := len(stop) - 1; n > 0; n-- {
			if strings.HasSuffix(text, stop[:n]) {
				end = min(end, len(text)-n)
				break
			}
		}
	}
	return b.release(text, end)
}

// Finish returns the text held back as a possible stop phrase prefix once the
// completion has ended, up to the first complete stop phrase.
func (b *CompletionBuffer) Finish() string {
	text := b.text.String()
	return b.release(text, b.stopIndex(text))
}

// stopIndex returns the offset of the first complete stop phrase in text, or
// len(text) without one.
func (b *CompletionBuffer) stopIndex(text string) int {
	end := len(text)
	for _, stop := range b.stops {
		if i := strings.Index(text, stop); i >= 0 {
			end = min(end, i)
		}
	}
	return end
}

func (b *CompletionBuffer) release(text string, end int) string {
	if end <= b.cursor {
		return ""
	}
	out := text[b.cursor:end]
	b.cursor = end
	return out
}

// Text returns everything emitted so far.
func (b *CompletionBuffer) Text() string {
	return b.text.String()[:b.cursor]
}

// Reset clears the buffer for a new completion.
func (b *CompletionBuffer) Reset() {
	b.text.Reset()
	b.cursor = 0
}
