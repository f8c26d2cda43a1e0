package llms

import "context"

type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamCitationChunk carries grounding metadata attached to a chunk. Some
// upstreams only attach the full citation list to the terminal chunk, so the
// same citation may be reported more than once across a stream; consumers are
// expected to deduplicate.
type StreamCitationChunk interface {
	StreamChunk
	Citations() []Citation
}

// Citation is a single grounding reference as reported by the upstream
// service, before any link resolution.
type Citation struct {
	Title   string
	URI     string
	Snippet string
}
