package search

import (
	"strings"
	"unicode/utf8"

	"github.com/Nova-Search/api/internal/index"
)

const ellipsis = "…"

// Snippet returns the sentence of text holding the first occurrence of any
// of terms, clipped to at most maxRunes runes around that occurrence. When no
// term occurs in text, the first sentence is used.
func Snippet(tok *index.Tokenizer, text string, terms []string, maxRunes int) string {
	s, _ := snippet(tok, text, terms, maxRunes)
	return s
}

// snippet is Snippet that also reports whether a term occurred in text
func snippet(tok *index.Tokenizer, text string, terms []string, maxRunes int) (string, bool) {
	if text == "" || maxRunes <= 0 {
		return "", false
	}

	want := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		want[t] = struct{}{}
	}

	matchStart, matchEnd := 0, 0
	found := false
	for _, token := range tok.Tokenize(text) {
		if _, ok := want[token.Term]; ok {
			matchStart, matchEnd = token.Start, token.End
			found = true
			break
		}
	}

	from, to := sentenceBounds(text, matchStart, matchEnd)
	sentence := text[from:to]
	trimmed := strings.TrimLeft(sentence, " \t")
	rel := max(matchStart-from-(len(sentence)-len(trimmed)), 0)
	sentence = strings.TrimRight(trimmed, " \t")

	return clip(sentence, rel, maxRunes), found
}

// sentenceBounds returns the byte range of the sentence containing
// text[start:end]. Sentences end at '.', '!', '?' or a line break.
func sentenceBounds(text string, start, end int) (int, int) {
	from := strings.LastIndexAny(text[:start], ".!?\n") + 1

	to := strings.IndexAny(text[end:], ".!?\n")
	if to < 0 {
		return from, len(text)
	}
	to += end
	if text[to] != '\n' {
		to++
	}
	return from, to
}

// clip cuts s to maxRunes runes, keeping the rune at byte offset at roughly a
// third of the way in and marking cut ends with an ellipsis
func clip(s string, at, maxRunes int) string {
	total := utf8.RuneCountInString(s)
	if total <= maxRunes {
		return s
	}

	budget := maxRunes
	if budget > 2 {
		budget -= 2
	}

	runes := []rune(s)
	pos := utf8.RuneCountInString(s[:min(at, len(s))])
	start := max(pos-budget/3, 0)
	end := min(start+budget, total)
	start = max(end-budget, 0)

	out := strings.TrimSpace(string(runes[start:end]))
	if start > 0 && maxRunes > 2 {
		out = ellipsis + out
	}
	if end < total && maxRunes > 2 {
		out += ellipsis
	}
	return out
}
