package sources

import (
	"fmt"
	"strings"
	"sync"

	"github.com/counselkit/counsel-core/core/llms"
)

// Source is a single grounding reference backing a response.
//
// Sources are unique by the (URL, Title) pair as reported upstream and keep
// their insertion order. After insertion the only permitted mutation is the
// URL rewrite performed during resolution.
type Source struct {
	ID      int
	Title   string
	URL     string
	Snippet string
	Favicon string
}

// List is an insertion-ordered, deduplicated collection of sources.
// Accumulation is sequential, but resolution rewrites URLs from concurrent
// workers, so access is guarded.
type List struct {
	mu      sync.Mutex
	sources []Source
	seen    map[string]struct{}
}

func NewList() *List {
	return &List{seen: map[string]struct{}{}}
}

func dedupKey(url, title string) string {
	return url + "\x00" + title
}

// Add inserts a citation as a candidate source. Citations whose (URI, Title)
// pair was already inserted are ignored, so replaying the same citation list
// (e.g. the terminal re-extraction pass) is a no-op.
func (l *List) Add(citation llms.Citation) bool {
	if l == nil {
		return false
	}

	uri := strings.TrimSpace(citation.URI)
	if uri == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := dedupKey(uri, citation.Title)
	if _, ok := l.seen[key]; ok {
		return false
	}

	l.seen[key] = struct{}{}
	l.sources = append(l.sources, Source{
		ID:      len(l.sources) + 1,
		Title:   citation.Title,
		URL:     uri,
		Snippet: citation.Snippet,
	})
	return true
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.sources)
}

// Sources returns a copy of the list in insertion order.
func (l *List) Sources() []Source {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sources := make([]Source, len(l.sources))
	copy(sources, l.sources)
	return sources
}

// setURL rewrites the URL of the source at index i in place. The source is
// replaced, never duplicated, so insertion order and IDs are stable.
func (l *List) setURL(i int, url string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if i < 0 || i >= len(l.sources) {
		return
	}

	l.sources[i].URL = url
	l.sources[i].Favicon = faviconURL(url)
}

func faviconURL(pageURL string) string {
	host := hostOf(pageURL)
	if host == "" {
		return ""
	}

	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=64", host)
}
