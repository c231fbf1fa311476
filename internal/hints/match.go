package hints

import (
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Scores for each kind of match between a request and a document.
const (
	scoreTool           = 100
	scoreToolPartial    = 50
	scoreAlias          = 80
	scoreAliasPartial   = 40
	scoreKeyword        = 10
	scoreKeywordPartial = 3
	scoreCategory       = 5
	scoreExampleWord    = 15
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true,
	"was": true, "are": true, "were": true, "be": true, "been": true,
	"my": true, "me": true, "i": true, "you": true, "it": true,
	"all": true, "please": true, "show": true,
}

// Match returns up to max documents relevant to request, best first.
func (s *Set) Match(request string, max int) []Doc {
	words := Tokenize(request)
	if len(words) == 0 || len(s.docs) == 0 || max <= 0 {
		return nil
	}

	type scored struct {
		doc   Doc
		score int
	}
	var hits []scored
	for _, d := range s.docs {
		if n := score(d, words); n > 0 {
			hits = append(hits, scored{d, n})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > max {
		hits = hits[:max]
	}
	out := make([]Doc, len(hits))
	for i, h := range hits {
		out[i] = h.doc
		s.log.Debug("hint matched", zap.String("tool", h.doc.Tool), zap.Int("score", h.score))
	}
	return out
}

func score(d Doc, words []string) int {
	total := termScore(d.Tool, words, scoreTool, scoreToolPartial)
	for _, a := range d.Aliases {
		total += termScore(a, words, scoreAlias, scoreAliasPartial)
	}

	keywordHits := 0
	for _, k := range d.Keywords {
		n := termScore(k, words, scoreKeyword, scoreKeywordPartial)
		if n >= scoreKeyword {
			keywordHits++
		}
		total += n
	}
	if keywordHits > 2 {
		total += keywordHits * 5
	}

	for _, c := range d.Categories {
		if contains(words, strings.ToLower(c)) {
			total += scoreCategory
		}
	}
	for _, ex := range d.Examples {
		total += overlap(words, Tokenize(ex.Request)) * scoreExampleWord
	}

	switch d.Priority {
	case "high":
		total = total * 13 / 10
	case "medium":
		total = total * 11 / 10
	}
	return total
}

// termScore awards exact points when term is one of words, plus partial
// points when term and a word contain one another.
func termScore(term string, words []string, exact, partial int) int {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return 0
	}
	n := 0
	if contains(words, term) {
		n += exact
	}
	for _, w := range words {
		if strings.Contains(term, w) || strings.Contains(w, term) {
			n += partial
			break
		}
	}
	return n
}

// Tokenize lowercases text and splits it into words, dropping stop words
// and single letters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})
	words := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopWords[f] {
			words = append(words, f)
		}
	}
	return words
}

func contains(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func overlap(a, b []string) int {
	n := 0
	for _, w := range a {
		if contains(b, w) {
			n++
		}
	}
	return n
}
