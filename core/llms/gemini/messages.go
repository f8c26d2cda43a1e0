package gemini

import "github.com/counselkit/counsel-core/core/llms"

const (
	contentRoleUser  = "user"
	contentRoleModel = "model"
)

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func textContent(role, text string) content {
	return content{Role: role, Parts: []part{{Text: text}}}
}

// toContents replays prior turns and appends the new prompt in the
// alternating user/model shape the API expects.
func toContents(turns []llms.Turn, prompt *string) []content {
	var contents []content
	for _, turn := range turns {
		if turn.Prompt != "" {
			contents = append(contents, textContent(contentRoleUser, turn.Prompt))
		}
		if turn.Answer != "" {
			contents = append(contents, textContent(contentRoleModel, turn.Answer))
		}
	}

	if prompt != nil {
		contents = append(contents, textContent(contentRoleUser, *prompt))
	}
	return contents
}
