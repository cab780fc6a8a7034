// Package tokenizer splits free text into word and punctuation tokens.
package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/heartmarshall/featurelens/internal/domain"
)

// Tokenizer splits text into tokens. The zero value performs no Unicode
// normalization and is ready to use.
type Tokenizer struct {
	form    norm.Form
	hasForm bool
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithUnicodeNormalization applies form to the input before splitting.
// Token offsets then refer to the normalized text.
func WithUnicodeNormalization(form norm.Form) Option {
	return func(t *Tokenizer) {
		t.form = form
		t.hasForm = true
	}
}

// New creates a Tokenizer.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{}
	for _, o := range opts {
		o(t)
	}
	return t
}

// ParseForm maps a config value ("", "none", "nfc", "nfkc", "nfd", "nfkd")
// to tokenizer options.
func ParseForm(name string) ([]Option, bool) {
	switch name {
	case "", "none":
		return nil, true
	case "nfc", "NFC":
		return []Option{WithUnicodeNormalization(norm.NFC)}, true
	case "nfkc", "NFKC":
		return []Option{WithUnicodeNormalization(norm.NFKC)}, true
	case "nfd", "NFD":
		return []Option{WithUnicodeNormalization(norm.NFD)}, true
	case "nfkd", "NFKD":
		return []Option{WithUnicodeNormalization(norm.NFKD)}, true
	}
	return nil, false
}

// Tokenize splits text with the default tokenizer.
func Tokenize(text string) []domain.Token {
	return (&Tokenizer{}).Tokenize(text)
}

// Tokenize splits text into an ordered sequence of tokens.
//
// Each maximal run of letters, digits and underscores is one token; combining
// marks stay attached to the run they follow. Every other non-whitespace rune
// is a token of its own. Whitespace only separates.
func (t *Tokenizer) Tokenize(text string) []domain.Token {
	if t.hasForm {
		text = t.form.String(text)
	}

	tokens := []domain.Token{}
	wordStart := -1

	flush := func(end int) {
		if wordStart < 0 {
			return
		}
		tokens = append(tokens, domain.Token{
			Text:     text[wordStart:end],
			Position: len(tokens),
			Start:    wordStart,
			End:      end,
		})
		wordStart = -1
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])

		switch {
		case isWordRune(r):
			if wordStart < 0 {
				wordStart = i
			}
		case unicode.Is(unicode.M, r) && wordStart >= 0:
			// combining mark continues the current word
		case unicode.IsSpace(r):
			flush(i)
		default:
			flush(i)
			tokens = append(tokens, domain.Token{
				Text:     text[i : i+size],
				Position: len(tokens),
				Start:    i,
				End:      i + size,
			})
		}
		i += size
	}
	flush(len(text))

	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r)
}
