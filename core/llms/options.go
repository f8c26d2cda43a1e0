package llms

type BaseOptions struct {
	Instructions string
	Turns        []Turn
	Model        string
}

type StreamingPromptOptions struct {
	BaseOptions
}

type StructuredPromptOptions struct {
	BaseOptions
}

type StreamingPromptOption interface {
	ApplyToStreaming(*StreamingPromptOptions)
}

type StructuredPromptOption interface {
	ApplyToStructured(*StructuredPromptOptions)
}

// PromptOption is an option applicable to any prompt kind.
type PromptOption func(*BaseOptions)

func (f PromptOption) ApplyToStreaming(o *StreamingPromptOptions) {
	f(&o.BaseOptions)
}

func (f PromptOption) ApplyToStructured(o *StructuredPromptOptions) {
	f(&o.BaseOptions)
}

// WithSystemPrompt sets the system prompt. Repeating this option overwrites
// the previous system prompt.
func WithSystemPrompt(prompt string) PromptOption {
	return func(opts *BaseOptions) {
		opts.Instructions = prompt
	}
}

// WithTurns adds prior conversation turns to the prompt. Repeating this
// option sequentially adds more turns.
func WithTurns(turns ...Turn) PromptOption {
	return func(opts *BaseOptions) {
		opts.Turns = append(opts.Turns, turns...)
	}
}

// WithModel overrides the model the request is issued against.
func WithModel(model string) PromptOption {
	return func(opts *BaseOptions) {
		opts.Model = model
	}
}
