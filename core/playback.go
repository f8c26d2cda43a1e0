package answerflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type playbackState string

const (
	playbackIdle      playbackState = "idle"
	playbackPlaying   playbackState = "playing"
	playbackCancelled playbackState = "cancelled"
	playbackCompleted playbackState = "completed"
)

type playbackPacing struct {
	wordDelay       time.Duration
	whitespaceDelay time.Duration
}

// Reveal cadence is a tuning knob, not a correctness requirement.
var defaultPacing = playbackPacing{
	wordDelay:       24 * time.Millisecond,
	whitespaceDelay: 4 * time.Millisecond,
}

// playbackSession reveals one finished response to the presentation sink at
// a paced cadence. It runs as a background job decoupled from network I/O;
// cancellation is safe from any goroutine at any time and flushes the whole
// remaining text in a single reveal. The finalize callback fires exactly
// once per session, whether playback ran to the end or was cut short.
type playbackSession struct {
	id     string
	tokens []playbackToken
	pacing playbackPacing

	mu       sync.Mutex
	cursor   int
	state    playbackState
	revealed strings.Builder

	closeCh chan struct{}
	done    chan struct{}

	startOnce    sync.Once
	cancelOnce   sync.Once
	finalizeOnce sync.Once

	onReveal   func(string)
	onFinalize func(revealed string)
}

func newPlaybackSession(fullText string, pacing playbackPacing, onReveal func(string), onFinalize func(string)) *playbackSession {
	if pacing.wordDelay <= 0 {
		pacing.wordDelay = defaultPacing.wordDelay
	}
	if pacing.whitespaceDelay <= 0 {
		pacing.whitespaceDelay = defaultPacing.whitespaceDelay
	}

	s := &playbackSession{
		id:      uuid.NewString(),
		tokens:  segmentText(fullText),
		pacing:  pacing,
		state:   playbackIdle,
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),

		onReveal:   func(string) {},
		onFinalize: func(string) {},
	}
	if onReveal != nil {
		s.onReveal = onReveal
	}
	if onFinalize != nil {
		s.onFinalize = onFinalize
	}
	return s
}

func (s *playbackSession) Start(ctx context.Context) (started bool) {
	if s == nil {
		return false
	}

	s.startOnce.Do(func() {
		started = true
		s.setState(playbackPlaying)
		go s.run(ctx)
	})
	return started
}

func (s *playbackSession) run(ctx context.Context) {
	defer close(s.done)

	ctx, span := tracer.Start(ctx, "playback session")
	defer span.End()
	span.SetAttributes(
		attribute.String("playback.id", s.id),
		attribute.Int("playback.tokens", len(s.tokens)),
	)

	for i, token := range s.tokens {
		select {
		case <-s.closeCh:
			s.flushRemaining()
			span.AddEvent("playback cancelled")
			s.finalize()
			return
		case <-ctx.Done():
			s.Cancel()
			s.flushRemaining()
			span.AddEvent("playback context cancelled")
			s.finalize()
			return
		default:
		}

		s.onReveal(s.reveal(token))

		delay := s.pacing.wordDelay
		if token.Kind == tokenWhitespace {
			delay = s.pacing.whitespaceDelay
		}
		if i == len(s.tokens)-1 {
			continue
		}

		select {
		case <-s.closeCh:
			s.flushRemaining()
			span.AddEvent("playback cancelled")
			s.finalize()
			return
		case <-ctx.Done():
			s.Cancel()
			s.flushRemaining()
			span.AddEvent("playback context cancelled")
			s.finalize()
			return
		case <-time.After(delay):
		}
	}

	s.setState(playbackCompleted)
	s.finalize()
}

// reveal appends one token and returns the text revealed so far.
func (s *playbackSession) reveal(token playbackToken) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revealed.WriteString(token.Text)
	s.cursor++
	return s.revealed.String()
}

// flushRemaining reveals everything past the cursor in one step.
func (s *playbackSession) flushRemaining() {
	s.mu.Lock()
	for ; s.cursor < len(s.tokens); s.cursor++ {
		s.revealed.WriteString(s.tokens[s.cursor].Text)
	}
	revealed := s.revealed.String()
	s.mu.Unlock()

	s.onReveal(revealed)
}

// Cancel interrupts playback. Safe to call at any time, from any goroutine,
// and more than once.
func (s *playbackSession) Cancel() {
	if s == nil {
		return
	}

	s.cancelOnce.Do(func() {
		s.setState(playbackCancelled)
		close(s.closeCh)
	})
}

func (s *playbackSession) finalize() {
	s.finalizeOnce.Do(func() {
		s.onFinalize(s.Revealed())
	})
}

// AwaitDone blocks until the playback goroutine has finished. Sessions that
// were never started finish immediately once cancelled.
func (s *playbackSession) AwaitDone() {
	if s == nil {
		return
	}

	select {
	case <-s.done:
	case <-s.closeCh:
		// Never started; flush and finalize on behalf of the missing loop.
		s.startOnce.Do(func() {
			s.flushRemaining()
			s.finalize()
			close(s.done)
		})
		<-s.done
	}
}

func (s *playbackSession) State() playbackState {
	if s == nil {
		return playbackIdle
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *playbackSession) setState(state playbackState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *playbackSession) Revealed() string {
	if s == nil {
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed.String()
}
