package lexical

import (
	"strings"
	"unicode"
)

// Stop words dropped from both documents and queries
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "how": true, "or": true,
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Tokenize lowercases text, splits it on anything that is not a letter or a
// digit and removes stop words. Runs of CJK characters, which carry no spaces,
// become one token per character plus one per adjacent pair.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		var word []rune
		var cjk []rune
		flushWord := func() {
			if len(word) > 0 {
				if w := string(word); !stopWords[w] {
					tokens = append(tokens, w)
				}
				word = word[:0]
			}
		}
		flushCJK := func() {
			for i, r := range cjk {
				tokens = append(tokens, string(r))
				if i > 0 {
					tokens = append(tokens, string(cjk[i-1:i+1]))
				}
			}
			cjk = cjk[:0]
		}

		for _, r := range field {
			if isCJK(r) {
				flushWord()
				cjk = append(cjk, r)
				continue
			}
			flushCJK()
			word = append(word, r)
		}
		flushWord()
		flushCJK()
	}
	return tokens
}

// containsAllTerms checks if every query term appears in the term set.
func containsAllTerms(termFreq map[string]int, queryTerms []string) bool {
	if len(queryTerms) == 0 {
		return false
	}
	for _, term := range queryTerms {
		if termFreq[term] == 0 {
			return false
		}
	}
	return true
}
