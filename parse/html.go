package parse

import (
	"github.com/c360studio/courtstream/model"
)

// HTMLParser parses HTML decision pages.
type HTMLParser struct {
	normalizer *Normalizer
}

// NewHTMLParser creates an HTML parser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{normalizer: NewNormalizer()}
}

// Parse normalizes the page and extracts structured data. Registry pages
// put the case number in the page title, so the title is consulted when
// the body yields none.
func (p *HTMLParser) Parse(content []byte, sourceURL string) (*model.Extraction, error) {
	normalized, err := p.normalizer.NormalizeHTML(content, sourceURL)
	if err != nil {
		return nil, model.NewParseError(err)
	}

	ext := Extract(normalized.Text)
	if ext.CaseNumber == "" && normalized.Title != "" {
		ext.CaseNumber = extractCaseNumber(normalized.Title)
	}
	return &ext, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *HTMLParser) CanParse(mimeType string) bool {
	return mimeType == "text/html" || mimeType == "application/xhtml+xml"
}

// MimeType returns the primary MIME type for this parser.
func (p *HTMLParser) MimeType() string {
	return "text/html"
}
