package answerflow

import "sync"

// ModelRoster tracks which upstream model a session issues requests against.
// Switching to the fallback never happens automatically: the caller invokes
// MarkExhausted only after surfacing the quota condition to the user.
//
// The roster is scoped to one conversation session. Callers must serialize
// requests per session; it is not meant to coordinate concurrently in-flight
// requests.
type ModelRoster struct {
	mu        sync.Mutex
	primary   string
	fallback  string
	exhausted bool
}

func NewModelRoster(primary, fallback string) *ModelRoster {
	return &ModelRoster{primary: primary, fallback: fallback}
}

// Active returns the model identifier requests should currently use.
func (r *ModelRoster) Active() string {
	if r == nil {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exhausted {
		return r.fallback
	}
	return r.primary
}

// OnFallback reports whether the roster has switched to the fallback model.
func (r *ModelRoster) OnFallback() bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exhausted
}

// MarkExhausted switches the session to the fallback model.
func (r *ModelRoster) MarkExhausted() {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.exhausted = true
	r.mu.Unlock()
}

// Reset restores the primary model.
func (r *ModelRoster) Reset() {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.exhausted = false
	r.mu.Unlock()
}
