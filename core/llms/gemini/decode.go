package gemini

import (
	"encoding/json"
	"strings"

	"github.com/counselkit/counsel-core/core/llms"
)

// generateContentResponse is the subset of the streamGenerateContent payload
// this client consumes. Unknown and missing fields decode to their zero
// values and contribute nothing.
type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content           candidateContent   `json:"content"`
	FinishReason      string             `json:"finishReason"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
}

type candidateContent struct {
	Parts []part `json:"parts"`
}

type groundingMetadata struct {
	GroundingChunks []groundingChunk `json:"groundingChunks"`
}

type groundingChunk struct {
	Web              *webSource        `json:"web"`
	RetrievedContext *retrievedContext `json:"retrievedContext"`
}

type webSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type retrievedContext struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// responseDelta is the decoded contribution of a single frame.
type responseDelta struct {
	text         string
	citations    []llms.Citation
	finishReason *string
}

// decodeFrame decodes one frame payload. A malformed payload is an error for
// the caller to drop, never to abort the stream on.
func decodeFrame(payload string) (*responseDelta, error) {
	var body generateContentResponse
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, err
	}

	delta := &responseDelta{}
	if len(body.Candidates) == 0 {
		return delta, nil
	}

	first := body.Candidates[0]
	if first.FinishReason != "" {
		reason := first.FinishReason
		delta.finishReason = &reason
	}

	var text strings.Builder
	for _, part := range first.Content.Parts {
		text.WriteString(part.Text)
	}
	delta.text = text.String()
	delta.citations = extractCitations(first.GroundingMetadata)

	return delta, nil
}

func extractCitations(metadata *groundingMetadata) []llms.Citation {
	if metadata == nil {
		return nil
	}

	var citations []llms.Citation
	for _, chunk := range metadata.GroundingChunks {
		switch {
		case chunk.Web != nil && chunk.Web.URI != "":
			citations = append(citations, llms.Citation{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		case chunk.RetrievedContext != nil && chunk.RetrievedContext.URI != "":
			citations = append(citations, llms.Citation{
				Title:   chunk.RetrievedContext.Title,
				URI:     chunk.RetrievedContext.URI,
				Snippet: chunk.RetrievedContext.Text,
			})
		}
	}
	return citations
}
