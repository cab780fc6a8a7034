package domain

// Token is one lexical unit of a sentence: a word run or a single punctuation mark.
type Token struct {
	Text     string
	Position int // ordinal index in the sentence
	Start    int // byte offset of the first rune
	End      int // byte offset just past the last rune
}

// TokenTexts returns the surface strings of tokens, in order.
func TokenTexts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// ContainsText reports whether any token has exactly the given surface string.
func ContainsText(tokens []Token, text string) bool {
	for _, t := range tokens {
		if t.Text == text {
			return true
		}
	}
	return false
}
