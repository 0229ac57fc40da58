// Package parse extracts structured case data from court decision
// documents. A format registry routes raw content to a parser by MIME
// type; each parser normalizes the document to text and runs the shared
// extraction over it.
package parse

import (
	"fmt"
	"strings"
	"sync"

	"github.com/c360studio/courtstream/model"
)

// Version identifies the extraction rules in effect. It is recorded on
// every parse run so historical output can be traced to the rules that
// produced it, and replays with newer rules remain distinguishable.
const Version = "1.0.0"

// Parser extracts structured data from one document format.
type Parser interface {
	// Parse normalizes the content and returns the extraction.
	Parse(content []byte, sourceURL string) (*model.Extraction, error)

	// CanParse returns true if this parser handles the given MIME type.
	CanParse(mimeType string) bool

	// MimeType returns the primary MIME type for this parser.
	MimeType() string
}

// Registry manages document parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser // keyed by primary MIME type
}

// NewRegistry creates a parser registry with the default parsers.
func NewRegistry() *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
	}

	r.Register(NewHTMLParser())
	r.Register(NewTextParser())
	r.Register(NewPDFParser())

	return r
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.MimeType()] = p
}

// GetByMimeType returns a parser for the given MIME type, or nil.
func (r *Registry) GetByMimeType(mimeType string) Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Direct match
	if p, ok := r.parsers[mimeType]; ok {
		return p
	}

	// Check if any parser can handle this type
	for _, p := range r.parsers {
		if p.CanParse(mimeType) {
			return p
		}
	}

	return nil
}

// Parse routes content to a parser by content type. The content type
// may carry parameters (e.g. "text/html; charset=utf-8").
func (r *Registry) Parse(content []byte, contentType, sourceURL string) (*model.Extraction, error) {
	mimeType := baseMimeType(contentType)
	parser := r.GetByMimeType(mimeType)
	if parser == nil {
		return nil, model.NewParseError(fmt.Errorf("no parser for content type %q", contentType))
	}
	return parser.Parse(content, sourceURL)
}

// ListMimeTypes returns all registered MIME types.
func (r *Registry) ListMimeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	return types
}

// baseMimeType strips parameters and normalizes case.
func baseMimeType(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// MimeTypeFromExtension returns the MIME type for a file extension.
func MimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
