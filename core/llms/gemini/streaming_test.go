package gemini

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/counselkit/counsel-core/core/llms"
	"github.com/counselkit/counsel-core/internal/utils"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			w.Write([]byte("data: " + frame + "\n\n"))
			flusher.Flush()
		}
	}))
}

func TestStreamChunksAssemblesTextAndCitations(t *testing.T) {
	server := sseServer(t, []string{
		`{"candidates": [{"content": {"parts": [{"text": "The standard "}]}}]}`,
		`{"candidates": [{"content": {"parts": [{"text": "is preponderance."}]}}]}`,
		`this frame is not json and must be dropped`,
		`{"candidates": [{"finishReason": "STOP", "groundingMetadata": {"groundingChunks": [{"web": {"uri": "https://example.net/case", "title": "Case law"}}]}}]}`,
		`[DONE]`,
	})
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), utils.Ptr("What is the standard of proof?"))

	var text strings.Builder
	var citationBatches [][]llms.Citation
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		switch chunk := chunk.(type) {
		case llms.StreamContentChunk:
			text.WriteString(chunk.Content())
		case llms.StreamCitationChunk:
			citationBatches = append(citationBatches, chunk.Citations())
		}
	}

	if text.String() != "The standard is preponderance." {
		t.Errorf("unexpected assembled text: %q", text.String())
	}

	// Once from the terminal frame, once from the final extraction pass over
	// the last fully-parsed payload.
	if len(citationBatches) != 2 {
		t.Fatalf("expected 2 citation batches, got %d", len(citationBatches))
	}
	for _, batch := range citationBatches {
		if len(batch) != 1 || batch[0].URI != "https://example.net/case" {
			t.Errorf("unexpected citation batch: %+v", batch)
		}
	}
}

func TestStreamQuotaExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"status": "RESOURCE_EXHAUSTED"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), utils.Ptr("prompt"))

	var streamErr error
	for _, err := range stream.Chunks(context.Background()) {
		if err != nil {
			streamErr = err
		}
	}

	if !llms.IsQuotaExhausted(streamErr) {
		t.Fatalf("expected quota exhaustion error, got %v", streamErr)
	}
}

func TestStreamTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	stream := client.PromptWithStream(context.Background(), utils.Ptr("prompt"))

	var streamErr error
	for _, err := range stream.Chunks(context.Background()) {
		if err != nil {
			streamErr = err
		}
	}

	var transportErr *llms.TransportError
	if !errors.As(streamErr, &transportErr) {
		t.Fatalf("expected transport error, got %v", streamErr)
	}
	if transportErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("unexpected status code: %d", transportErr.StatusCode)
	}
	if llms.IsQuotaExhausted(streamErr) {
		t.Error("transport error must not read as quota exhaustion")
	}
}
