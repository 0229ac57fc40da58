package parse

import (
	"strings"

	"github.com/c360studio/courtstream/model"
)

// TextParser parses plain text decisions. It also serves as the
// fallback for text-like MIME types no dedicated parser claims.
type TextParser struct {
	normalizer *Normalizer
}

// NewTextParser creates a plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{normalizer: NewNormalizer()}
}

// Parse extracts structured data from plain text.
func (p *TextParser) Parse(content []byte, _ string) (*model.Extraction, error) {
	normalized := p.normalizer.NormalizeText(content)
	ext := Extract(normalized.Text)
	return &ext, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *TextParser) CanParse(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/")
}

// MimeType returns the primary MIME type for this parser.
func (p *TextParser) MimeType() string {
	return "text/plain"
}
