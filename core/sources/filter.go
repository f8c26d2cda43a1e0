package sources

import "strings"

// defaultDenylist drops internal tooling links, generic search redirects and
// placeholder entries that occasionally leak into grounding metadata.
var defaultDenylist = []string{
	"internal",
	"placeholder",
	"lorem ipsum",
	"example.com",
	"example.org",
	"google.com/search",
	"googleusercontent.com",
	"accounts.google.com",
}

// Filter drops sources whose URL or title matches a denylist entry. It runs
// after resolution so the checks see canonical URLs, not redirect links.
type Filter struct {
	denylist []string
}

type FilterOption func(*Filter)

// WithDeniedMarkers extends the denylist with extra markers.
func WithDeniedMarkers(markers ...string) FilterOption {
	return func(f *Filter) {
		for _, marker := range markers {
			marker = strings.ToLower(strings.TrimSpace(marker))
			if marker != "" {
				f.denylist = append(f.denylist, marker)
			}
		}
	}
}

func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{denylist: append([]string(nil), defaultDenylist...)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Keep reports whether the source survives the denylist. Matching is
// case-insensitive over both URL and title.
func (f *Filter) Keep(source Source) bool {
	if f == nil {
		return true
	}

	url := strings.ToLower(source.URL)
	title := strings.ToLower(source.Title)
	for _, marker := range f.denylist {
		if strings.Contains(url, marker) || strings.Contains(title, marker) {
			return false
		}
	}
	return true
}

// Apply returns the surviving sources in order, renumbering IDs so citation
// identifiers stay dense after drops.
func (f *Filter) Apply(in []Source) []Source {
	if f == nil {
		return in
	}

	kept := make([]Source, 0, len(in))
	for _, source := range in {
		if !f.Keep(source) {
			continue
		}
		source.ID = len(kept) + 1
		kept = append(kept, source)
	}
	return kept
}
