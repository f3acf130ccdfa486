package chunker

import "unicode/utf8"

// CharsPerToken is the rough character-to-token ratio used for estimates.
const CharsPerToken = 4

// EstimateTokenCount approximates the token count of text as ceil(chars/4).
func EstimateTokenCount(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}
