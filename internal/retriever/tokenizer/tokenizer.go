// Package tokenizer turns chunk text and query strings into term sequences.
// Terms are the raw whitespace-separated words of the input: no case
// folding, stemming or stop-word removal is applied, so a query only
// matches documents that contain the exact same surface form.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token represents a single term and its position in the original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize splits text on Unicode whitespace. Runs of whitespace never
// produce empty terms.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}

// Terms returns only the term strings of Tokenize(text).
func Terms(text string) []string {
	tokens := Tokenize(text)
	terms := make([]string, len(tokens))
	for i, token := range tokens {
		terms[i] = token.Term
	}
	return terms
}
