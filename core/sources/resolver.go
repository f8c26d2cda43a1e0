package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	defaultProbeTimeout       = 10 * time.Second
	defaultResolveConcurrency = 4

	// probeUserAgent is a realistic browser identity; some hosts refuse to
	// expand redirects for unknown clients.
	probeUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// redirectQueryKeys are inspected in order when a redirect-marker link
// carries its destination as a query parameter.
var redirectQueryKeys = []string{"originalUrl", "original_url", "url", "target_url", "target", "u", "q", "link"}

var absoluteURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+`)

// resolveStep is one probe-free resolution heuristic. It returns the
// canonical URL and true on success, and falls through on failure.
type resolveStep func(uri string) (string, bool)

// Resolver turns opaque grounding redirect links into their canonical
// destinations. Probe-free heuristics are tried in order; only when all of
// them fail does the resolver fall back to a live request. If that fails
// too, the original URI is kept unchanged — it stays clickable for the
// redirect service's validity window, and fabricating a plausible-looking
// URL would be worse than returning the opaque one.
type Resolver struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	steps       []resolveStep
}

type ResolverOption func(*Resolver)

// WithProbeClient overrides the HTTP client used by the live-probe tier.
func WithProbeClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithProbeTimeout bounds every live probe.
func WithProbeTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithResolveConcurrency bounds how many sources are resolved in parallel.
func WithResolveConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout:     defaultProbeTimeout,
		concurrency: defaultResolveConcurrency,
		steps: []resolveStep{
			acceptAbsolute,
			prefixBareDomain,
			fromQueryParams,
			fromFragment,
			fromEmbeddedURL,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical destination for a single citation URI.
// Every tier failure is non-fatal; the worst case returns uri unchanged.
func (r *Resolver) Resolve(ctx context.Context, uri string) string {
	if r == nil {
		return uri
	}

	for _, step := range r.steps {
		if resolved, ok := step(uri); ok {
			return resolved
		}
	}

	if resolved, ok := r.probe(ctx, uri); ok {
		return resolved
	}

	return uri
}

// ResolveAll resolves every source in the list in place, fanning the live
// probes out with bounded concurrency. It returns once every source has
// either resolved or run out its timeout; sources have no ordering
// dependency between each other.
func (r *Resolver) ResolveAll(ctx context.Context, list *List) {
	if r == nil || list == nil || list.Len() == 0 {
		return
	}

	ctx, span := tracer.Start(ctx, "resolve sources")
	defer span.End()
	span.SetAttributes(attribute.Int("sources.count", list.Len()))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for i, source := range list.Sources() {
		group.Go(func() error {
			list.setURL(i, r.Resolve(ctx, source.URL))
			return nil
		})
	}
	group.Wait()
}

// probe issues a live request and lets the transport chase redirects. HEAD
// is tried first; some hosts reject it, so a failed HEAD falls back to GET.
func (r *Resolver) probe(ctx context.Context, uri string) (string, bool) {
	ctx, span := tracer.Start(ctx, "probe redirect link")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.request(ctx, http.MethodHead, uri)
	if err != nil {
		resp, err = r.request(ctx, http.MethodGet, uri)
	}
	if err != nil {
		span.RecordError(err)
		logger.DebugContext(ctx, "redirect probe failed", "uri", uri, "error", err)
		return "", false
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))

	if resp.Request != nil && resp.Request.URL != nil {
		if final, ok := acceptAbsolute(resp.Request.URL.String()); ok {
			return final, true
		}
	}

	if location := resp.Header.Get("Location"); location != "" {
		if resolved, ok := acceptAbsolute(location); ok {
			return resolved, true
		}
	}

	return "", false
}

func (r *Resolver) request(ctx context.Context, method, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", probeUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("non-success HTTP status: %s", resp.Status)
	}
	return resp, nil
}

// isRedirectMarker reports whether the URI is an opaque grounding redirect
// link rather than a real destination.
func isRedirectMarker(uri string) bool {
	lowered := strings.ToLower(uri)
	return strings.Contains(lowered, "vertexaisearch.cloud.google.com") ||
		strings.Contains(lowered, "/grounding-api-redirect/") ||
		strings.Contains(lowered, "google.com/url?")
}

// acceptAbsolute accepts a URI that is already an absolute http(s) URL and
// not itself a redirect marker.
func acceptAbsolute(uri string) (string, bool) {
	if isRedirectMarker(uri) {
		return "", false
	}

	parsed, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || parsed.Host == "" {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	return parsed.String(), true
}

// prefixBareDomain upgrades a bare dotted domain ("example.com/page") to an
// https URL.
func prefixBareDomain(uri string) (string, bool) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" || strings.Contains(trimmed, " ") || strings.Contains(trimmed, "://") {
		return "", false
	}

	host := trimmed
	if i := strings.IndexAny(host, "/?#"); i != -1 {
		host = host[:i]
	}
	if !strings.Contains(host, ".") || strings.ContainsAny(host, "@:") {
		return "", false
	}

	return acceptAbsolute("https://" + trimmed)
}

// fromQueryParams extracts the destination from well-known redirect query
// parameters, first match wins.
func fromQueryParams(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", false
	}

	query := parsed.Query()
	for _, key := range redirectQueryKeys {
		for _, value := range query[key] {
			if decoded, err := url.QueryUnescape(value); err == nil {
				value = decoded
			}
			if resolved, ok := acceptAbsolute(value); ok {
				return resolved, true
			}
		}
	}
	return "", false
}

// fromFragment extracts an absolute URL embedded in the URI fragment.
func fromFragment(uri string) (string, bool) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Fragment == "" {
		return "", false
	}

	if resolved, ok := acceptAbsolute(parsed.Fragment); ok {
		return resolved, true
	}

	match := absoluteURLPattern.FindString(parsed.Fragment)
	if match == "" {
		return "", false
	}
	return acceptAbsolute(match)
}

// fromEmbeddedURL regex-extracts an absolute URL substring, trying the path
// component before the full URI.
func fromEmbeddedURL(uri string) (string, bool) {
	candidates := []string{}
	if parsed, err := url.Parse(uri); err == nil && parsed.Path != "" {
		if unescaped, err := url.PathUnescape(parsed.Path); err == nil {
			candidates = append(candidates, unescaped)
		} else {
			candidates = append(candidates, parsed.Path)
		}
	}
	candidates = append(candidates, uri)

	for _, candidate := range candidates {
		for _, match := range absoluteURLPattern.FindAllString(candidate, -1) {
			if resolved, ok := acceptAbsolute(match); ok {
				return resolved, true
			}
		}
	}
	return "", false
}

func hostOf(pageURL string) string {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
