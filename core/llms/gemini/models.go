package gemini

const (
	// DefaultModel is the model used when no override is given.
	DefaultModel = "gemini-2.5-pro"
	// DefaultFallbackModel is the cheaper model offered when the default
	// model reports quota exhaustion.
	DefaultFallbackModel = "gemini-2.5-flash"
)
