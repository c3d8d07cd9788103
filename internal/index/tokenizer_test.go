package index

import (
	"reflect"
	"testing"
)

func TestTokenizerTerms(t *testing.T) {
	tests := []struct {
		name string
		opts TokenizerOptions
		in   string
		want []string
	}{
		{"lowercase and punctuation", TokenizerOptions{}, "Hello, World! hello?", []string{"hello", "world"}},
		{"accents folded", TokenizerOptions{}, "Café CAFE naïve", []string{"cafe", "naive"}},
		{"stop words removed", TokenizerOptions{StopWords: true}, "the quick and the dead", []string{"quick", "dead"}},
		{"stemming", TokenizerOptions{Stemming: true}, "running runs gophers", []string{"run", "gopher"}},
		{"min length", TokenizerOptions{MinLength: 3}, "go is a fun language", []string{"fun", "language"}},
		{"digits kept", TokenizerOptions{}, "HTTP/2 and 404s", []string{"http", "2", "and", "404s"}},
		{"whitespace only", TokenizerOptions{}, "   \t\n ", nil},
		{"only stop words", TokenizerOptions{StopWords: true}, "the and of", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTokenizer(tt.opts).Terms(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Terms(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenizerOffsets(t *testing.T) {
	text := "Go, the café!"
	tokens := NewTokenizer(TokenizerOptions{StopWords: true}).Tokenize(text)

	if len(tokens) != 2 {
		t.Fatalf("Expected 2 tokens, got %+v", tokens)
	}
	if tokens[0].Term != "go" || text[tokens[0].Start:tokens[0].End] != "Go" {
		t.Errorf("Unexpected first token %+v", tokens[0])
	}
	if tokens[1].Term != "cafe" || text[tokens[1].Start:tokens[1].End] != "café" || tokens[1].Position != 1 {
		t.Errorf("Unexpected second token %+v", tokens[1])
	}
}
