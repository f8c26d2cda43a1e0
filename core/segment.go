package answerflow

import "strings"

type tokenKind string

const (
	tokenWord           tokenKind = "word"
	tokenWhitespace     tokenKind = "whitespace"
	tokenCitationMarker tokenKind = "citation"
)

type playbackToken struct {
	Kind tokenKind
	Text string
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// segmentText splits text into playback tokens. Citation markers like "[3]"
// are atomic, including adjacent runs ("[1][2]" stays two whole markers);
// consecutive whitespace coalesces into one token; everything else
// accumulates into words.
func segmentText(text string) []playbackToken {
	var tokens []playbackToken
	var word strings.Builder

	flushWord := func() {
		if word.Len() == 0 {
			return
		}
		tokens = append(tokens, playbackToken{Kind: tokenWord, Text: word.String()})
		word.Reset()
	}

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == '[':
			end := strings.IndexByte(text[i:], ']')
			if end == -1 {
				// Unbalanced bracket, treat it as an ordinary word character.
				word.WriteByte(c)
				i++
				continue
			}
			flushWord()
			tokens = append(tokens, playbackToken{Kind: tokenCitationMarker, Text: text[i : i+end+1]})
			i += end + 1

		case isSpaceByte(c):
			flushWord()
			j := i
			for j < len(text) && isSpaceByte(text[j]) {
				j++
			}
			tokens = append(tokens, playbackToken{Kind: tokenWhitespace, Text: text[i:j]})
			i = j

		default:
			word.WriteByte(c)
			i++
		}
	}
	flushWord()

	return tokens
}
