// Package align turns a reference script and a recognition hypothesis into
// a per-word alignment. Tokenisation keeps the punctuation and sentence
// position of every script word because the pause classifier downstream
// needs them; the alignment itself works on the normalised forms.
//
// The alignment contract: exactly one output unit per reference token, in
// script order, with the unit text always taken from the script. Recognised
// words with no script counterpart are collected separately as extras and
// never inflate any score.
package align

import (
	"strings"
	"unicode"
)

// Token is one word of the reference script with its orthographic context.
type Token struct {
	// Text is the normalised (lowercased, punctuation-stripped) form used
	// for matching.
	Text string

	// Raw is the original script spelling.
	Raw string

	// Trailing holds the punctuation immediately following the word
	// (".", ",", "?", "!", ";", ":") or is empty.
	Trailing string

	// SentenceStart marks the first word of a sentence.
	SentenceStart bool

	// SentenceEnd marks the last word of a sentence.
	SentenceEnd bool
}

// sentencePunct are the trailing marks that end a sentence.
func sentenceEnd(p string) bool {
	return p == "." || p == "?" || p == "!"
}

// Tokenize splits a script into tokens, preserving trailing punctuation and
// sentence boundaries. Words that normalise to the empty string (pure
// punctuation runs) are dropped.
func Tokenize(script string) []Token {
	fields := strings.Fields(script)
	tokens := make([]Token, 0, len(fields))

	atStart := true
	for _, f := range fields {
		trailing := trailingPunct(f)
		norm := Normalize(f)
		if norm == "" {
			// A lone punctuation run still terminates the sentence.
			if sentenceEnd(trailing) {
				if n := len(tokens); n > 0 {
					tokens[n-1].SentenceEnd = true
					if tokens[n-1].Trailing == "" {
						tokens[n-1].Trailing = trailing
					}
				}
				atStart = true
			}
			continue
		}

		tok := Token{
			Text:          norm,
			Raw:           f,
			Trailing:      trailing,
			SentenceStart: atStart,
		}
		if sentenceEnd(trailing) {
			tok.SentenceEnd = true
			atStart = true
		} else {
			atStart = false
		}
		tokens = append(tokens, tok)
	}
	if n := len(tokens); n > 0 {
		tokens[n-1].SentenceEnd = true
	}
	return tokens
}

// Texts returns just the normalised token texts, in order.
func Texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

// Normalize lowercases a word and strips everything that is not a letter,
// digit, or internal apostrophe ("don't" survives, "don't," loses the comma).
func Normalize(w string) string {
	var b strings.Builder
	runes := []rune(strings.ToLower(w))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '\'' || r == '’') && i > 0 && i < len(runes)-1:
			b.WriteRune('\'')
		}
	}
	return b.String()
}

// trailingPunct returns the punctuation mark directly after the word body,
// if any.
func trailingPunct(w string) string {
	trimmed := strings.TrimRightFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if len(trimmed) == len(w) || len(trimmed) == 0 {
		return ""
	}
	rest := w[len(trimmed):]
	// Only the first mark matters for pause classification.
	return string([]rune(rest)[0])
}
