package parse

import (
	"testing"

	"github.com/c360studio/courtstream/model"
)

func TestPDFParserMimeType(t *testing.T) {
	p := NewPDFParser()
	if p.MimeType() != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", p.MimeType())
	}
}

func TestPDFParserCanParse(t *testing.T) {
	p := NewPDFParser()

	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"text/plain", false},
		{"text/html", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			if got := p.CanParse(tt.mimeType); got != tt.want {
				t.Errorf("CanParse(%s) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestPDFParserInvalidContent(t *testing.T) {
	p := NewPDFParser()

	_, err := p.Parse([]byte("not a pdf file"), "")
	if err == nil {
		t.Fatal("expected error for invalid PDF content")
	}
	if !model.IsParseError(err) {
		t.Errorf("expected parse error, got %T", err)
	}
}

// Parsing a real registry PDF needs a well-formed document; scanned
// image PDFs come back with empty text and zero confidence instead of
// an error.
