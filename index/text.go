package index

import "strings"

// Stop words never count as query terms.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenize splits text into lowercase words, trims punctuation and drops stop
// words. "/" separates words so nested repository names match by segment.
func tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return r == '/' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	filtered := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}
	return filtered
}

// score counts the query words found in fields. It returns 0 unless every
// query word is present.
func score(fields map[string]string, queryWords []string) int {
	if len(queryWords) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, value := range fields {
		for _, word := range tokenize(value) {
			counts[word]++
		}
	}
	total := 0
	for _, q := range queryWords {
		n := counts[q]
		if n == 0 {
			return 0
		}
		total += n
	}
	return total
}
