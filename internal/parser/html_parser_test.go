package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/Nova-Search/api/internal/urlnorm"
)

func TestHTMLParser(t *testing.T) {
	htmlContent := `
<!DOCTYPE html>
<html>
<head>
	<title>  Test   Page </title>
	<meta name="description" content="Test description">
	<style>.hidden { display: none }</style>
</head>
<body>
	<h1>Welcome</h1>
	<p>First paragraph.</p><p>Second paragraph.</p>
	<script>var ignored = "script text";</script>
	<a href="/page1">Page 1</a>
	<a href="page2#frag">Page 2</a>
	<a href="/page1/">Page 1 again</a>
	<a href="https://external.com/">External</a>
	<a href="#top">Top</a>
	<a href="mailto:test@example.com">Email</a>
	<a href="javascript:void(0)">JS</a>
	<a href="/sponsored" rel="sponsored nofollow">Ad</a>
</body>
</html>`

	parser, err := NewHTMLParser("https://example.com/dir/", urlnorm.New(urlnorm.Options{}))
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	result, err := parser.Parse([]byte(htmlContent), "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("Failed to parse HTML: %v", err)
	}

	if result.Title != "Test Page" {
		t.Errorf("Expected title 'Test Page', got %q", result.Title)
	}
	if result.Description != "Test description" {
		t.Errorf("Expected meta description 'Test description', got %q", result.Description)
	}

	wantLinks := []string{
		"https://example.com/page1",
		"https://example.com/dir/page2",
		"https://external.com/",
	}
	if !reflect.DeepEqual(result.Links, wantLinks) {
		t.Errorf("Links = %v, want %v", result.Links, wantLinks)
	}

	if strings.Contains(result.Text, "script text") || strings.Contains(result.Text, "display") {
		t.Errorf("Text contains script/style content: %q", result.Text)
	}
	if strings.Contains(result.Text, "Test Page") {
		t.Errorf("Text should not contain head content: %q", result.Text)
	}
	if !strings.Contains(result.Text, "First paragraph.\nSecond paragraph.") {
		t.Errorf("Expected block elements on separate lines, got %q", result.Text)
	}

	if len(result.ContentHash) != 64 {
		t.Errorf("Expected SHA256 hash length 64, got %d", len(result.ContentHash))
	}
}

func TestHTMLParserMetaNoFollow(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/", nil)

	result, err := parser.Parse([]byte(`<html><head><meta name="robots" content="index, nofollow"></head>
<body><a href="/a">A</a></body></html>`), "text/html")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !result.NoFollow {
		t.Error("Expected NoFollow to be set")
	}
	if len(result.Links) != 0 {
		t.Errorf("Expected no links under nofollow, got %v", result.Links)
	}
}

func TestHTMLParserBaseHref(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/a/b", nil)

	result, err := parser.Parse([]byte(`<html><head><base href="https://cdn.example.com/root/"></head>
<body><a href="x">X</a></body></html>`), "text/html")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(result.Links) != 1 || result.Links[0] != "https://cdn.example.com/root/x" {
		t.Errorf("Expected link resolved against <base>, got %v", result.Links)
	}
}

func TestHTMLParserCharset(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/", nil)

	// "café" in ISO-8859-1
	body := []byte("<html><body><p>caf\xe9</p></body></html>")
	result, err := parser.Parse(body, "text/html; charset=iso-8859-1")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Text != "café" {
		t.Errorf("Expected decoded text 'café', got %q", result.Text)
	}
}

func TestHTMLParserSameTextSameHash(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/", nil)

	a, _ := parser.Parse([]byte(`<html><body><p>hello   world</p></body></html>`), "text/html")
	b, _ := parser.Parse([]byte(`<html><body><div>hello world</div><!-- comment --></body></html>`), "text/html")

	if a.ContentHash != b.ContentHash {
		t.Errorf("Expected equal hashes for equal text, got %s and %s", a.ContentHash, b.ContentHash)
	}
}

func TestHTMLParserMetaKeywords(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/", nil)

	result, err := parser.Parse([]byte(`<html><head>
		<meta name="Keywords" content="go,  search
			engine">
		<meta name="description" content=" A   small engine ">
	</head><body><p>Body</p></body></html>`), "text/html")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if result.Keywords != "go, search engine" {
		t.Errorf("Expected collapsed keywords, got %q", result.Keywords)
	}
	if result.Description != "A small engine" {
		t.Errorf("Expected collapsed description, got %q", result.Description)
	}
}

func TestHTMLParserHashCoversIndexedFields(t *testing.T) {
	parser, _ := NewHTMLParser("https://example.com/", nil)
	parse := func(head string) string {
		t.Helper()
		result, err := parser.Parse([]byte(`<html><head>`+head+`</head><body><p>Same body</p></body></html>`), "text/html")
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		return result.ContentHash
	}

	base := parse(`<title>Old title</title>`)
	for _, head := range []string{
		`<title>New title</title>`,
		`<title>Old title</title><meta name="description" content="added">`,
		`<title>Old title</title><meta name="keywords" content="added">`,
	} {
		if parse(head) == base {
			t.Errorf("Expected hash to change for head %q", head)
		}
	}
	if parse(`<title>Old title</title>`) != base {
		t.Error("Expected identical pages to hash the same")
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	if ContentHash("ab", "c") == ContentHash("a", "bc") {
		t.Error("Expected field boundaries to affect the hash")
	}
}
