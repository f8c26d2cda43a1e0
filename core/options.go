package answerflow

import (
	"context"
	"time"

	"github.com/counselkit/counsel-core/core/llms"
	"github.com/counselkit/counsel-core/core/sources"
)

type SessionOption func(*Session)

type LLMWithStream interface {
	PromptWithStream(ctx context.Context, prompt *string, opts ...llms.StreamingPromptOption) llms.Stream
}

func WithStreamingLLM(client LLMWithStream) SessionOption {
	return func(s *Session) {
		s.llm = client
	}
}

// Persistence receives the finished turn exactly once per Ask, from the
// playback finalize hook.
type Persistence interface {
	CommitTurn(ctx context.Context, turn Turn) error
}

func WithPersistence(sink Persistence) SessionOption {
	return func(s *Session) {
		s.persistence = sink
	}
}

func WithCitationResolver(resolver *sources.Resolver) SessionOption {
	return func(s *Session) {
		if resolver != nil {
			s.resolver = resolver
		}
	}
}

func WithSourceFilter(filter *sources.Filter) SessionOption {
	return func(s *Session) {
		if filter != nil {
			s.filter = filter
		}
	}
}

func WithModels(roster *ModelRoster) SessionOption {
	return func(s *Session) {
		if roster != nil {
			s.models = roster
		}
	}
}

// WithInstructions sets the session's system prompt.
func WithInstructions(instructions string) SessionOption {
	return func(s *Session) {
		s.instructions = instructions
	}
}

// WithPlaybackPacing tunes the reveal cadence. Zero values keep defaults.
func WithPlaybackPacing(wordDelay, whitespaceDelay time.Duration) SessionOption {
	return func(s *Session) {
		if wordDelay > 0 {
			s.pacing.wordDelay = wordDelay
		}
		if whitespaceDelay > 0 {
			s.pacing.whitespaceDelay = whitespaceDelay
		}
	}
}

// AskOptions carries the per-turn presentation callbacks.
type AskOptions struct {
	// onDelta is called for each streamed response chunk, before playback.
	onDelta func(string)
	// onReveal is called with the text revealed so far on every playback step.
	onReveal func(string)
	// onSources is called once with the final resolved, filtered source list.
	onSources func([]sources.Source)
	// onFollowUps is called once with the extracted follow-up questions.
	onFollowUps func([]string)
}

type AskOption func(*AskOptions)

func WithOnDelta(onDelta func(string)) AskOption {
	return func(o *AskOptions) {
		o.onDelta = onDelta
	}
}

func WithOnReveal(onReveal func(string)) AskOption {
	return func(o *AskOptions) {
		o.onReveal = onReveal
	}
}

func WithOnSources(onSources func([]sources.Source)) AskOption {
	return func(o *AskOptions) {
		o.onSources = onSources
	}
}

func WithOnFollowUps(onFollowUps func([]string)) AskOption {
	return func(o *AskOptions) {
		o.onFollowUps = onFollowUps
	}
}
