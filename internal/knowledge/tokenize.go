package knowledge

import (
	"strings"
	"unicode"
)

// #region stopwords
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"will": true, "would": true, "could": true, "should": true, "can": true,
	"not": true, "and": true, "or": true, "but": true, "if": true,
	"so": true, "as": true, "at": true, "by": true, "for": true,
	"from": true, "in": true, "of": true, "on": true, "to": true,
	"with": true, "it": true, "this": true, "that": true, "what": true,
	"i": true, "my": true, "me": true, "im": true, "feel": true,
	"feeling": true, "very": true, "really": true, "since": true, "got": true,
}

// tokenize splits text into unique lowercase non-stopword tokens.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// overlap is the share of query tokens found in the document tokens.
func overlap(query, doc []string) float64 {
	if len(query) == 0 {
		return 0
	}
	set := make(map[string]bool, len(doc))
	for _, t := range doc {
		set[t] = true
	}
	hits := 0
	for _, t := range query {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

// #endregion
