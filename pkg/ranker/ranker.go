// Package ranker picks the sentences of a text that best overlap a query.
package ranker

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
	wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)
)

// Input is the text a ranker works on: one body or several bodies that are
// concatenated in order.
type Input struct {
	texts []string
}

// Text wraps a single body of text.
func Text(s string) Input {
	return Input{texts: []string{s}}
}

// Texts wraps several bodies of text.
func Texts(ss ...string) Input {
	return Input{texts: append([]string(nil), ss...)}
}

// FromAny coerces loosely typed input, as received from a decoded JSON
// payload, into an Input. Strings are kept, nil and non-string list elements
// are dropped, and any other scalar is formatted with fmt.Sprint.
func FromAny(v any) Input {
	switch t := v.(type) {
	case nil:
		return Input{}
	case Input:
		return t
	case string:
		return Text(t)
	case []string:
		return Texts(t...)
	case []any:
		var kept []string
		for _, e := range t {
			if s, ok := e.(string); ok {
				kept = append(kept, s)
			}
		}
		return Input{texts: kept}
	case []byte:
		return Text(string(t))
	case map[string]any:
		return Input{}
	default:
		return Text(fmt.Sprint(t))
	}
}

// sentences segments every text separately so that a body without terminal
// punctuation never runs into the next one.
func (in Input) sentences() []string {
	var out []string
	for _, t := range in.texts {
		out = append(out, Sentences(t)...)
	}
	return out
}

// Sentences splits text after '.', '!' or '?' followed by whitespace. The
// punctuation stays with its sentence and empty pieces are dropped.
func Sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : loc[0]+1]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(s), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Overlap counts the distinct tokens a sentence shares with the query set.
func overlap(query map[string]struct{}, sentence string) int {
	n := 0
	for tok := range tokenSet(sentence) {
		if _, ok := query[tok]; ok {
			n++
		}
	}
	return n
}

// Rank returns at most k sentences of in ordered by token overlap with the
// query. Sentences with equal scores keep their original order.
func Rank(in Input, query string, k int) []string {
	if k <= 0 {
		return []string{}
	}
	sentences := in.sentences()
	if len(sentences) == 0 {
		return []string{}
	}

	type scored struct {
		text  string
		score int
	}
	qset := tokenSet(query)
	ranked := make([]scored, len(sentences))
	for i, s := range sentences {
		ranked[i] = scored{text: s, score: overlap(qset, s)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].text
	}
	return out
}
