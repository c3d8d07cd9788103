// Package parser extracts the title, visible text and outbound hyperlinks
// from HTML documents.
package parser

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/Nova-Search/api/internal/urlnorm"
)

// HTMLParser extracts text and links from HTML relative to a base URL
type HTMLParser struct {
	baseURL    *url.URL
	normalizer *urlnorm.Normalizer
}

// ParseResult contains the parsed HTML data
type ParseResult struct {
	Title       string
	Description string   // <meta name="description">
	Keywords    string   // <meta name="keywords">, whitespace collapsed
	Text        string   // visible text, one block element per line
	Links       []string // normalized, deduplicated, followable outbound links
	NoFollow    bool     // <meta name="robots" content="nofollow">
	ContentHash string   // sha256 of everything that gets indexed
}

// NewHTMLParser creates a parser resolving links against baseURL
func NewHTMLParser(baseURL string, normalizer *urlnorm.Normalizer) (*HTMLParser, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if normalizer == nil {
		normalizer = urlnorm.New(urlnorm.Options{})
	}
	return &HTMLParser{baseURL: parsed, normalizer: normalizer}, nil
}

// Parse decodes body using the charset declared in contentType (or sniffed
// from the document) and extracts title, text and links.
func (p *HTMLParser) Parse(body []byte, contentType string) (*ParseResult, error) {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode charset: %w", err)
	}
	return p.parse(reader)
}

func (p *HTMLParser) parse(r io.Reader) (*ParseResult, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc := goquery.NewDocumentFromNode(root)
	result := &ParseResult{}

	// <base href> overrides the document URL for relative links
	if href, ok := doc.Find("head base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(href); err == nil {
			p.baseURL = p.baseURL.ResolveReference(ref)
		}
	}

	result.Title = collapseSpace(doc.Find("title").First().Text())
	doc.Find("meta[name]").Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		switch strings.ToLower(name) {
		case "description":
			result.Description = collapseSpace(content)
		case "keywords":
			result.Keywords = collapseSpace(content)
		case "robots":
			for _, directive := range strings.Split(strings.ToLower(content), ",") {
				if d := strings.TrimSpace(directive); d == "nofollow" || d == "none" {
					result.NoFollow = true
				}
			}
		}
	})

	if !result.NoFollow {
		result.Links = p.extractLinks(doc)
	}

	doc.Find("script, style, noscript, template, svg, iframe, head").Remove()
	var sb strings.Builder
	for _, n := range doc.Find("html").Nodes {
		extractText(n, &sb)
	}
	result.Text = normalizeLines(sb.String())

	result.ContentHash = ContentHash(result.Title, result.Description, result.Keywords, result.Text)

	return result, nil
}

func (p *HTMLParser) extractLinks(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href], area[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if rel, ok := s.Attr("rel"); ok && containsToken(rel, "nofollow") {
			return
		}

		abs, err := p.normalizer.Resolve(p.baseURL, href)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	return links
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// extractText writes text nodes in document order, breaking lines at block
// elements so words in adjacent blocks never run together.
func extractText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		// Source line breaks are plain whitespace; only block elements break lines.
		sb.WriteString(strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, n.Data))
		return
	case html.CommentNode:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb)
	}
	if block {
		sb.WriteByte('\n')
	}
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = collapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}

// ContentHash fingerprints the indexed fields of a page. Any change to one
// of them changes the hash.
func ContentHash(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
