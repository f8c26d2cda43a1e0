package answerflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/counselkit/counsel-core/core/llms"
	"github.com/counselkit/counsel-core/core/sources"
)

type fakeContentChunk struct{ text string }

func (c fakeContentChunk) FinishReason() *string { return nil }
func (c fakeContentChunk) Content() string       { return c.text }

type fakeCitationChunk struct{ citations []llms.Citation }

func (c fakeCitationChunk) FinishReason() *string      { return nil }
func (c fakeCitationChunk) Citations() []llms.Citation { return c.citations }

type fakeStream struct {
	chunks []llms.StreamChunk
	err    error
}

func (s *fakeStream) Chunks(context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

// fakeLLM returns a canned stream and records the options of each request.
type fakeLLM struct {
	mu       sync.Mutex
	streams  []*fakeStream
	requests []llms.StreamingPromptOptions
}

func (l *fakeLLM) PromptWithStream(_ context.Context, _ *string, opts ...llms.StreamingPromptOption) llms.Stream {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt.ApplyToStreaming(&options)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, options)

	stream := l.streams[0]
	if len(l.streams) > 1 {
		l.streams = l.streams[1:]
	}
	return stream
}

type fakePersistence struct {
	mu    sync.Mutex
	turns []Turn
	err   error
}

func (p *fakePersistence) CommitTurn(_ context.Context, turn Turn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, turn)
	return p.err
}

func (p *fakePersistence) committed() []Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Turn(nil), p.turns...)
}

// offlineResolver never leaves the pure resolution tiers in tests.
func offlineResolver() *sources.Resolver {
	return sources.NewResolver(sources.WithProbeClient(&http.Client{Transport: failingTransport{}}))
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, http.ErrHandlerTimeout
}

func TestSessionAskAssemblesResponse(t *testing.T) {
	fullText := "Negligence requires four elements [1].\n" +
		FollowUpSentinel + "\nWhat is the reasonable person standard?"
	llm := &fakeLLM{streams: []*fakeStream{{chunks: []llms.StreamChunk{
		fakeContentChunk{text: "Negligence requires "},
		fakeContentChunk{text: "four elements [1].\n" + FollowUpSentinel + "\nWhat is the reasonable person standard?"},
		fakeCitationChunk{citations: []llms.Citation{
			{Title: "Cornell LII", URI: "https://law.cornell.edu/wex/negligence"},
		}},
	}}}}
	persistence := &fakePersistence{}

	session := NewSession(
		WithStreamingLLM(llm),
		WithPersistence(persistence),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(time.Millisecond, time.Millisecond),
	)
	defer session.Close()

	var deltas []string
	var gotSources []sources.Source
	var gotFollowUps []string
	err := session.Ask(context.Background(), "What are the elements of negligence?",
		WithOnDelta(func(delta string) { deltas = append(deltas, delta) }),
		WithOnSources(func(s []sources.Source) { gotSources = s }),
		WithOnFollowUps(func(q []string) { gotFollowUps = q }),
	)
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.AwaitPlayback()

	if len(deltas) != 2 {
		t.Errorf("expected 2 deltas, got %d", len(deltas))
	}
	if len(gotSources) != 1 || gotSources[0].URL != "https://law.cornell.edu/wex/negligence" {
		t.Errorf("unexpected sources: %+v", gotSources)
	}
	if len(gotFollowUps) != 1 || gotFollowUps[0] != "What is the reasonable person standard?" {
		t.Errorf("unexpected follow-ups: %q", gotFollowUps)
	}

	committed := persistence.committed()
	if len(committed) != 1 {
		t.Fatalf("expected exactly one committed turn, got %d", len(committed))
	}
	turn := committed[0]
	if turn.Response.FullText != fullText {
		t.Errorf("unexpected full text: %q", turn.Response.FullText)
	}
	if turn.Response.Answer != "Negligence requires four elements [1]." {
		t.Errorf("unexpected answer: %q", turn.Response.Answer)
	}
	if turn.ID == "" {
		t.Error("expected a turn ID")
	}
}

func TestSessionAskReplaysHistory(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "First answer."}}},
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "Second answer."}}},
	}}

	session := NewSession(
		WithStreamingLLM(llm),
		WithInstructions("You are a legal research assistant."),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(time.Millisecond, time.Millisecond),
	)
	defer session.Close()

	if err := session.Ask(context.Background(), "first question"); err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}
	session.AwaitPlayback()
	if err := session.Ask(context.Background(), "second question"); err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	session.AwaitPlayback()

	if len(llm.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(llm.requests))
	}
	first, second := llm.requests[0], llm.requests[1]
	if first.Instructions != "You are a legal research assistant." {
		t.Errorf("unexpected instructions: %q", first.Instructions)
	}
	if len(first.Turns) != 0 {
		t.Errorf("first request must carry no history, got %d turns", len(first.Turns))
	}
	if len(second.Turns) != 1 {
		t.Fatalf("second request must replay one turn, got %d", len(second.Turns))
	}
	if second.Turns[0].Prompt != "first question" || second.Turns[0].Answer != "First answer." {
		t.Errorf("unexpected replayed turn: %+v", second.Turns[0])
	}
}

func TestSessionAskUsesRosterModel(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "ok"}}},
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "ok"}}},
	}}
	roster := NewModelRoster("gemini-2.5-pro", "gemini-2.5-flash")

	session := NewSession(
		WithStreamingLLM(llm),
		WithModels(roster),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(time.Millisecond, time.Millisecond),
	)
	defer session.Close()

	if err := session.Ask(context.Background(), "q1"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.AwaitPlayback()

	roster.MarkExhausted()
	if err := session.Ask(context.Background(), "q2"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.AwaitPlayback()

	if llm.requests[0].Model != "gemini-2.5-pro" {
		t.Errorf("first request model: %q", llm.requests[0].Model)
	}
	if llm.requests[1].Model != "gemini-2.5-flash" {
		t.Errorf("second request model: %q", llm.requests[1].Model)
	}
}

func TestSessionAskSurfacesTypedErrors(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{{
		chunks: []llms.StreamChunk{fakeContentChunk{text: "partial"}},
		err:    &llms.QuotaExhaustedError{Model: "gemini-2.5-pro"},
	}}}
	persistence := &fakePersistence{}

	session := NewSession(
		WithStreamingLLM(llm),
		WithPersistence(persistence),
		WithCitationResolver(offlineResolver()),
	)
	defer session.Close()

	err := session.Ask(context.Background(), "q")
	if !llms.IsQuotaExhausted(err) {
		t.Fatalf("expected quota exhaustion to surface, got %v", err)
	}
	if len(persistence.committed()) != 0 {
		t.Error("failed turn must not be committed")
	}
	if len(session.Turns()) != 0 {
		t.Error("failed turn must not enter history")
	}
}

func TestSessionNewAskCancelsPreviousPlayback(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "the first answer has plenty of words to keep playback busy for a while"}}},
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "second"}}},
	}}
	persistence := &fakePersistence{}

	session := NewSession(
		WithStreamingLLM(llm),
		WithPersistence(persistence),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(100*time.Millisecond, 100*time.Millisecond),
	)
	defer session.Close()

	if err := session.Ask(context.Background(), "q1"); err != nil {
		t.Fatalf("first Ask failed: %v", err)
	}
	// The first playback is still pacing; the second Ask must finalize it
	// before revealing anything of its own.
	if err := session.Ask(context.Background(), "q2"); err != nil {
		t.Fatalf("second Ask failed: %v", err)
	}
	session.AwaitPlayback()

	committed := persistence.committed()
	if len(committed) != 2 {
		t.Fatalf("expected both turns committed, got %d", len(committed))
	}
	if committed[0].Prompt != "q1" || committed[1].Prompt != "q2" {
		t.Errorf("turns committed out of order: %q then %q", committed[0].Prompt, committed[1].Prompt)
	}
}

func TestSessionCancelPlaybackStillCommits(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{
		{chunks: []llms.StreamChunk{fakeContentChunk{text: "an answer long enough that cancellation arrives before natural completion"}}},
	}}
	persistence := &fakePersistence{}

	session := NewSession(
		WithStreamingLLM(llm),
		WithPersistence(persistence),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(100*time.Millisecond, 100*time.Millisecond),
	)

	if err := session.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.CancelPlayback()
	session.AwaitPlayback()

	if len(persistence.committed()) != 1 {
		t.Fatalf("expected one committed turn, got %d", len(persistence.committed()))
	}

	// Close after an explicit cancel must not double-commit.
	session.Close()
	if len(persistence.committed()) != 1 {
		t.Errorf("expected commit count to stay at 1, got %d", len(persistence.committed()))
	}
}

func TestSessionAskWithoutLLM(t *testing.T) {
	session := NewSession()
	defer session.Close()

	if err := session.Ask(context.Background(), "q"); err == nil {
		t.Fatal("expected an error when no streaming LLM is configured")
	}
}

func TestSessionTurnsReturnsDeepCopy(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{{chunks: []llms.StreamChunk{
		fakeContentChunk{text: "answer [1]"},
		fakeCitationChunk{citations: []llms.Citation{{Title: "t", URI: "https://example.net/a"}}},
	}}}}

	session := NewSession(
		WithStreamingLLM(llm),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(time.Millisecond, time.Millisecond),
	)
	defer session.Close()

	if err := session.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.AwaitPlayback()

	turns := session.Turns()
	if len(turns) != 1 {
		t.Fatalf("expected one turn, got %d", len(turns))
	}
	turns[0].Response.Sources[0].URL = "mutated"

	if session.Turns()[0].Response.Sources[0].URL == "mutated" {
		t.Error("Turns must return a deep copy")
	}
}

func TestSessionPersistenceErrorIsNotFatal(t *testing.T) {
	llm := &fakeLLM{streams: []*fakeStream{{chunks: []llms.StreamChunk{fakeContentChunk{text: "answer"}}}}}
	persistence := &fakePersistence{err: errors.New("sink unavailable")}

	session := NewSession(
		WithStreamingLLM(llm),
		WithPersistence(persistence),
		WithCitationResolver(offlineResolver()),
		WithPlaybackPacing(time.Millisecond, time.Millisecond),
	)
	defer session.Close()

	if err := session.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	session.AwaitPlayback()

	// The turn still enters in-memory history even when the sink fails.
	if len(session.Turns()) != 1 {
		t.Errorf("expected one turn in history, got %d", len(session.Turns()))
	}
}
