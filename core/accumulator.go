package answerflow

import (
	"strings"

	"github.com/counselkit/counsel-core/core/llms"
	"github.com/counselkit/counsel-core/core/sources"
)

// responseAccumulator merges streamed deltas into a running response: text
// is appended strictly in arrival order, citations are collected into a
// deduplicated, insertion-ordered source list. Upstreams that re-report the
// full citation list on the terminal frame merge cleanly because insertion
// is idempotent per (url, title) pair.
type responseAccumulator struct {
	text    strings.Builder
	sources *sources.List
}

func newResponseAccumulator() *responseAccumulator {
	return &responseAccumulator{sources: sources.NewList()}
}

func (a *responseAccumulator) AddText(chunk string) {
	if a == nil {
		return
	}

	a.text.WriteString(chunk)
}

func (a *responseAccumulator) AddCitations(citations []llms.Citation) {
	if a == nil {
		return
	}

	for _, citation := range citations {
		a.sources.Add(citation)
	}
}

func (a *responseAccumulator) Text() string {
	if a == nil {
		return ""
	}

	return a.text.String()
}

func (a *responseAccumulator) Sources() *sources.List {
	if a == nil {
		return nil
	}

	return a.sources
}
