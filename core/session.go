package answerflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/counselkit/counsel-core/core/llms"
	"github.com/counselkit/counsel-core/core/sources"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// AssembledResponse is a finished response ready for hand-off: the full
// generated text, the answer with the follow-up block stripped, the
// resolved and filtered sources, and the follow-up questions. It is not
// mutated after the playback hand-off.
type AssembledResponse struct {
	FullText          string
	Answer            string
	Sources           []sources.Source
	FollowUpQuestions []string
}

// Turn is one completed exchange as committed to persistence.
type Turn struct {
	ID       string
	Prompt   string
	Response AssembledResponse
}

// Session drives the full answer pipeline for one conversation: stream the
// model response, accumulate text and citations, resolve and filter the
// sources, split off the follow-up questions, then pace the reveal through
// a cancellable playback session.
//
// Callers must serialize Ask calls per session.
type Session struct {
	id string

	llm          LLMWithStream
	resolver     *sources.Resolver
	filter       *sources.Filter
	persistence  Persistence
	models       *ModelRoster
	pacing       playbackPacing
	instructions string

	mu    sync.RWMutex
	turns []Turn

	playback atomic.Pointer[playbackSession]

	closeOnce sync.Once
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		id:       uuid.NewString(),
		resolver: sources.NewResolver(),
		filter:   sources.NewFilter(),
		models:   NewModelRoster("", ""),
		pacing:   defaultPacing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

// Models exposes the session's model roster so callers can mark quota
// exhaustion after surfacing it to the user.
func (s *Session) Models() *ModelRoster {
	return s.models
}

// Ask runs one turn end to end. It returns once the response has been
// assembled and handed to playback; the reveal itself continues in the
// background until it completes or is cancelled. Transport failures and
// quota exhaustion are returned as their typed errors, never retried.
func (s *Session) Ask(ctx context.Context, prompt string, opts ...AskOption) error {
	if s.llm == nil {
		return fmt.Errorf("no streaming LLM configured")
	}

	ctx, span := tracer.Start(ctx, "process turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", s.id))

	options := AskOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	promptOpts := []llms.StreamingPromptOption{
		llms.WithSystemPrompt(s.instructions),
		llms.WithTurns(s.History()...),
	}
	if model := s.models.Active(); model != "" {
		promptOpts = append(promptOpts, llms.WithModel(model))
		span.SetAttributes(attribute.String("request.model", model))
	}

	stream := s.llm.PromptWithStream(ctx, &prompt, promptOpts...)

	accumulator := newResponseAccumulator()
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			err = fmt.Errorf("failed to stream response: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			accumulator.AddText(chunk.Content())
			if options.onDelta != nil {
				options.onDelta(chunk.Content())
			}
		case llms.StreamCitationChunk:
			accumulator.AddCitations(chunk.Citations())
		}
	}

	s.resolver.ResolveAll(ctx, accumulator.Sources())
	resolved := s.filter.Apply(accumulator.Sources().Sources())

	answer, followUps := splitFollowUps(accumulator.Text())
	span.SetAttributes(
		attribute.Int("response.sources", len(resolved)),
		attribute.Int("response.follow_ups", len(followUps)),
	)

	turn := Turn{
		ID:     uuid.NewString(),
		Prompt: prompt,
		Response: AssembledResponse{
			FullText:          accumulator.Text(),
			Answer:            answer,
			Sources:           resolved,
			FollowUpQuestions: followUps,
		},
	}

	if options.onSources != nil {
		options.onSources(turn.Response.Sources)
	}
	if options.onFollowUps != nil {
		options.onFollowUps(turn.Response.FollowUpQuestions)
	}

	// Playback outlives Ask and must not die with the request context.
	s.startPlayback(context.WithoutCancel(ctx), turn, options)
	return nil
}

// startPlayback hands the turn to a new playback session. A still-running
// session is force-finalized first, so at most one session is ever active
// and the previous turn is committed before the new one emits a token.
func (s *Session) startPlayback(ctx context.Context, turn Turn, options AskOptions) {
	finalize := func(revealed string) {
		s.commitTurn(ctx, turn)
	}

	session := newPlaybackSession(turn.Response.Answer, s.pacing, options.onReveal, finalize)
	if previous := s.playback.Swap(session); previous != nil {
		previous.Cancel()
		previous.AwaitDone()
	}
	session.Start(ctx)
}

func (s *Session) commitTurn(ctx context.Context, turn Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.mu.Unlock()

	if s.persistence == nil {
		return
	}

	if err := s.persistence.CommitTurn(ctx, turn); err != nil {
		err = fmt.Errorf("failed to commit turn: %w", err)
		logger.ErrorContext(ctx, "turn not persisted", "turn_id", turn.ID, "error", err)
	}
}

// CancelPlayback interrupts the active reveal, if any. The remaining text is
// flushed to the presentation sink in one step and the turn is still
// committed exactly once. Safe to call at any time.
func (s *Session) CancelPlayback() {
	s.playback.Load().Cancel()
}

// AwaitPlayback blocks until the active playback session, if any, finishes.
func (s *Session) AwaitPlayback() {
	if playback := s.playback.Load(); playback != nil {
		playback.AwaitDone()
	}
}

// History returns the completed exchanges in the shape replayed into
// subsequent prompts.
func (s *Session) History() []llms.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]llms.Turn, 0, len(s.turns))
	for _, turn := range s.turns {
		history = append(history, llms.Turn{
			ID:     turn.ID,
			Prompt: turn.Prompt,
			Answer: turn.Response.Answer,
		})
	}
	return history
}

// Turns returns a deep copy of the committed turns.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var turns []Turn
	if err := copier.CopyWithOption(&turns, s.turns, copier.Option{DeepCopy: true}); err != nil {
		turns = make([]Turn, len(s.turns))
		copy(turns, s.turns)
	}
	return turns
}

// Close cancels any active playback and waits for it to finalize.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.CancelPlayback()
		s.AwaitPlayback()
	})
}
