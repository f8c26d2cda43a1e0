package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/counselkit/counsel-core/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func PromptWithStream(
	_ context.Context,
	apiKey string,
	model string,
	prompt *string,
	systemPrompt string,
	opts ...llms.StreamingPromptOption,
) *Stream {
	options := llms.StreamingPromptOptions{
		BaseOptions: llms.BaseOptions{
			Instructions: systemPrompt,
			Model:        model,
		},
	}
	for _, opt := range opts {
		opt.ApplyToStreaming(&options)
	}

	if options.Model == "" {
		options.Model = DefaultModel
	}

	return &Stream{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        options.Model,
		instructions: options.Instructions,
		contents:     toContents(options.Turns, prompt),
	}
}

type Stream struct {
	apiKey  string
	baseURL string

	model        string
	instructions string
	contents     []content
}

func (s *Stream) Chunks(ctx context.Context) func(func(llms.StreamChunk, error) bool) {
	requestToFirstTokenTime := time.Time{}
	setRequestToFirstTokenTime := func(span trace.Span) {
		if requestToFirstTokenTime.IsZero() {
			return
		}
		span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestToFirstTokenTime).Seconds()))
		span.AddEvent("received first chunk")
		requestToFirstTokenTime = time.Time{}
	}

	return func(yield func(llms.StreamChunk, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))

		reqBody := streamRequestBody{
			Contents: s.contents,
			// Search grounding is what produces the citation metadata this
			// client exists to carry.
			Tools: []tool{{GoogleSearch: &googleSearch{}}},
		}
		if s.instructions != "" {
			reqBody.SystemInstruction = &content{Parts: []part{{Text: s.instructions}}}
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", s.baseURL, s.model), bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield(nil, err)
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", s.apiKey)

		span.SetAttributes(attribute.String("request.url", req.URL.String()))
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}
		requestToFirstTokenTime = time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			transportErr := &llms.TransportError{Err: err}
			span.RecordError(transportErr)
			yield(nil, transportErr)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				span.RecordError(fmt.Errorf("error reading error body: %w", readErr))
			} else {
				span.SetAttributes(attribute.String("response.error", string(body)))
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				quotaErr := &llms.QuotaExhaustedError{Model: s.model}
				span.RecordError(quotaErr)
				yield(nil, quotaErr)
				return
			}

			transportErr := &llms.TransportError{
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(body),
			}
			span.RecordError(transportErr)
			yield(nil, transportErr)
			return
		}

		frames := &frameReader{}
		// lastParsed is the most recent frame that decoded cleanly; its
		// grounding metadata is re-extracted once the stream ends, since some
		// upstreams only attach the full citation list to the terminal frame.
		var lastParsed string

		emit := func(payload string) bool {
			setRequestToFirstTokenTime(span)

			delta, err := decodeFrame(payload)
			if err != nil {
				// Malformed or partial frames are dropped, not fatal; the
				// stream carries on with the next frame.
				span.RecordError(fmt.Errorf("error unmarshalling frame: %w", err))
				logger.DebugContext(ctx, "dropped undecodable frame", "error", err)
				return true
			}
			lastParsed = payload

			if delta.text != "" {
				if !yield(StreamContentChunk{
					finishReason: delta.finishReason,
					content:      delta.text,
				}, nil) {
					return false
				}
			}

			if len(delta.citations) > 0 {
				if !yield(StreamCitationChunk{
					finishReason: delta.finishReason,
					citations:    delta.citations,
				}, nil) {
					return false
				}
			}

			return true
		}

		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, payload := range frames.Ingest(buf[:n]) {
					if !emit(payload) {
						return
					}
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				transportErr := &llms.TransportError{Err: fmt.Errorf("error reading streamed response: %w", readErr)}
				span.RecordError(transportErr)
				yield(nil, transportErr)
				return
			}
		}

		if payload, ok := frames.Flush(); ok {
			if !emit(payload) {
				return
			}
		}

		// Final extraction pass over the last fully-parsed payload. The
		// consumer deduplicates, so re-reporting citations already seen
		// mid-stream is harmless; citations that only ever appeared in a
		// dropped frame stay lost.
		if lastParsed != "" {
			if delta, err := decodeFrame(lastParsed); err == nil && len(delta.citations) > 0 {
				span.SetAttributes(attribute.Int("response.final_citations", len(delta.citations)))
				if !yield(StreamCitationChunk{citations: delta.citations}, nil) {
					return
				}
			}
		}
	}
}

type streamRequestBody struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Tools             []tool    `json:"tools,omitempty"`
}

type tool struct {
	GoogleSearch *googleSearch `json:"google_search,omitempty"`
}

type googleSearch struct{}

type StreamContentChunk struct {
	finishReason *string
	content      string
}

func (s StreamContentChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamContentChunk) Content() string {
	return s.content
}

type StreamCitationChunk struct {
	finishReason *string
	citations    []llms.Citation
}

func (s StreamCitationChunk) FinishReason() *string {
	return s.finishReason
}

func (s StreamCitationChunk) Citations() []llms.Citation {
	return s.citations
}
