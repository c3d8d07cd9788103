// Package index turns page text into terms and maintains the inverted index.
package index

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TokenizerOptions controls how text becomes terms
type TokenizerOptions struct {
	Stemming  bool
	StopWords bool
	MinLength int
	Language  string // snowball language, "english" when empty
}

// Token is one indexed term occurrence
type Token struct {
	Term     string
	Position int // ordinal among kept tokens
	Start    int // byte offset of the source word in the input
	End      int
}

// Tokenizer splits text into normalized terms. It is safe for concurrent use.
type Tokenizer struct {
	opts TokenizerOptions
}

// NewTokenizer returns a Tokenizer
func NewTokenizer(opts TokenizerOptions) *Tokenizer {
	if opts.MinLength <= 0 {
		opts.MinLength = 1
	}
	if opts.Language == "" {
		opts.Language = "english"
	}
	return &Tokenizer{opts: opts}
}

// Tokenize returns the kept tokens of text in order
func (t *Tokenizer) Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if term, ok := t.term(text[start:end]); ok {
			tokens = append(tokens, Token{Term: term, Position: len(tokens), Start: start, End: end})
		}
		start = -1
	}

	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return tokens
}

// Terms returns the distinct terms of text in first-occurrence order
func (t *Tokenizer) Terms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range t.Tokenize(text) {
		if _, dup := seen[tok.Term]; dup {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

func (t *Tokenizer) term(word string) (string, bool) {
	w := t.normalize(word)
	if w == "" {
		return "", false
	}
	if t.opts.StopWords && isStopWord(w) {
		return "", false
	}
	if t.opts.Stemming {
		if stemmed, err := snowball.Stem(w, t.opts.Language, true); err == nil && stemmed != "" {
			w = stemmed
		}
	}
	if len([]rune(w)) < t.opts.MinLength {
		return "", false
	}
	return w, true
}

// normalize folds case, decomposes and drops combining marks so that
// "Café" and "cafe" produce the same term.
func (t *Tokenizer) normalize(word string) string {
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	decomposed, _, err := transform.String(chain, word)
	if err != nil {
		decomposed = word
	}
	// Casers and transformers are stateful, so build them per call.
	folded := cases.Fold().String(decomposed)
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, folded)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
