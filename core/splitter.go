package answerflow

import "strings"

// FollowUpSentinel is the literal delimiter line the generation prompt
// instructs the model to emit before its suggested follow-up questions. It
// must match what the upstream emits byte for byte.
const FollowUpSentinel = "---SUGGESTED_QUESTIONS---"

const (
	maxFollowUps      = 5
	minFollowUpLength = 10
)

// splitFollowUps separates the assembled text into the main answer and the
// follow-up question block. Without the sentinel the whole input is the
// answer.
func splitFollowUps(fullText string) (string, []string) {
	idx := strings.Index(fullText, FollowUpSentinel)
	if idx == -1 {
		return strings.TrimSpace(fullText), nil
	}

	answer := strings.TrimSpace(fullText[:idx])

	var followUps []string
	for _, line := range strings.Split(fullText[idx+len(FollowUpSentinel):], "\n") {
		line = strings.TrimSpace(line)
		// Short stray lines (numbering, leftover markers) are not questions.
		if len(line) <= minFollowUpLength {
			continue
		}
		followUps = append(followUps, line)
		if len(followUps) == maxFollowUps {
			break
		}
	}

	return answer, followUps
}
