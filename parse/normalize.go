package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// excessiveLinesRe collapses runs of blank lines left by normalization.
var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// Normalized is document content reduced to extractable text.
type Normalized struct {
	Title string
	Text  string
}

// Normalizer reduces HTML documents to plain text. Readability-style
// content extraction runs first; documents it cannot handle fall back
// to markdown conversion of the stripped page.
type Normalizer struct {
	converter *md.Converter
}

// NewNormalizer creates a normalizer.
func NewNormalizer() *Normalizer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	return &Normalizer{converter: converter}
}

// NormalizeHTML extracts the readable text of an HTML document.
func (n *Normalizer) NormalizeHTML(content []byte, sourceURL string) (*Normalized, error) {
	pageURL, err := url.Parse(sourceURL)
	if err != nil {
		pageURL = &url.URL{}
	}

	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return &Normalized{
			Title: strings.TrimSpace(article.Title),
			Text:  cleanText(article.TextContent),
		}, nil
	}

	// Readability found nothing usable; strip the page down and convert
	// what remains.
	cleaned := extractContentHTML(content)
	markdown, err := n.converter.ConvertString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("convert content: %w", err)
	}

	title := extractHTMLTitle(content)
	return &Normalized{
		Title: title,
		Text:  cleanText(markdown),
	}, nil
}

// NormalizeText prepares plain text content.
func (n *Normalizer) NormalizeText(content []byte) *Normalized {
	text := cleanText(string(content))

	var title string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			title = trimmed
			break
		}
	}
	// Rune-safe cap: registry titles are Cyrillic, byte slicing would
	// split a character.
	if runes := []rune(title); len(runes) > 120 {
		title = string(runes[:120])
	}

	return &Normalized{
		Title: title,
		Text:  text,
	}
}

// extractContentHTML returns the document's content area as HTML with
// page chrome removed.
func extractContentHTML(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return string(content)
	}

	removeNodes(doc, func(node *html.Node) bool {
		switch node.Data {
		case "nav", "header", "footer", "aside", "script", "style", "noscript", "iframe", "form":
			return node.Type == html.ElementNode
		}
		return false
	})

	// Content area in priority order, then body
	for _, pick := range []func(*html.Node) bool{
		func(node *html.Node) bool { return node.Data == "main" },
		func(node *html.Node) bool { return node.Data == "article" },
		func(node *html.Node) bool { return hasAttr(node, "role", "main") },
		func(node *html.Node) bool { return node.Data == "body" },
	} {
		if found := findNode(doc, pick); found != nil {
			return renderNode(found)
		}
	}

	return string(content)
}

// extractHTMLTitle extracts the <title> of an HTML document.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	titleNode := findNode(doc, func(node *html.Node) bool { return node.Data == "title" })
	if titleNode == nil || titleNode.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(titleNode.FirstChild.Data)
}

// findNode returns the first element node matching the predicate.
func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

// removeNodes detaches all nodes matching the predicate.
func removeNodes(n *html.Node, match func(*html.Node) bool) {
	var doomed []*html.Node
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if match(node) {
			doomed = append(doomed, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)

	for _, node := range doomed {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func hasAttr(n *html.Node, key, val string) bool {
	for _, a := range n.Attr {
		if a.Key == key && a.Val == val {
			return true
		}
	}
	return false
}

// renderNode renders a node and its children back to an HTML string.
func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}

// cleanText trims trailing whitespace per line and collapses blank runs.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")
	text = excessiveLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
