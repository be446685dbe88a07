// Package text holds the tokenizer shared by classification, retrieval,
// grounding checks and sentiment scoring.
package text

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "has": true, "have": true, "i": true, "if": true,
	"in": true, "into": true, "is": true, "it": true, "its": true, "me": true,
	"my": true, "no": true, "not": true, "of": true, "on": true, "or": true,
	"our": true, "so": true, "that": true, "the": true, "their": true, "then": true,
	"there": true, "these": true, "this": true, "to": true, "was": true, "we": true,
	"were": true, "will": true, "with": true, "you": true, "your": true, "been": true,
	"would": true, "should": true, "could": true, "please": true, "hi": true, "hello": true,
	"thanks": true, "thank": true, "am": true, "any": true, "all": true, "also": true,
}

// Normalize lowercases s and collapses every run of non-alphanumeric
// characters into one space.
func Normalize(s string) string {
	return strings.Join(Tokenize(s), " ")
}

// Tokenize splits s into lowercase alphanumeric tokens. Apostrophes inside
// words are dropped so "don't" becomes "dont".
func Tokenize(s string) []string {
	s = strings.ReplaceAll(strings.ToLower(s), "'", "")
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// ContentTerms returns Tokenize(s) without stopwords and one-letter tokens.
func ContentTerms(s string) []string {
	tokens := Tokenize(s)
	out := tokens[:0]
	for _, t := range tokens {
		if len(t) < 2 || stopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TermSet is ContentTerms as a set.
func TermSet(s string) map[string]bool {
	terms := ContentTerms(s)
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

// Sentences splits s on terminal punctuation and newlines, dropping blanks.
func Sentences(s string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if sentence := strings.TrimSpace(b.String()); sentence != "" {
			out = append(out, sentence)
		}
		b.Reset()
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '\n':
			flush()
		case r == '.' || r == '!' || r == '?':
			b.WriteRune(r)
			// keep decimals like 4.99 together
			if r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				continue
			}
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

// ContainsPhrase reports whether the token sequence of phrase appears in
// the token sequence of s.
func ContainsPhrase(s, phrase string) bool {
	hay := " " + Normalize(s) + " "
	needle := Normalize(phrase)
	if needle == "" {
		return false
	}
	return strings.Contains(hay, " "+needle+" ")
}
