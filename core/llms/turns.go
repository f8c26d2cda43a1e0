package llms

// Turn is a single completed exchange replayed into subsequent prompts.
// Answer holds the assembled response text without the follow-up block.
type Turn struct {
	ID     string
	Prompt string
	Answer string
}
