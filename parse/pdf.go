package parse

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/c360studio/courtstream/model"
)

// PDFParser extracts text from PDF decisions and runs the shared
// extraction over it.
type PDFParser struct{}

// NewPDFParser creates a PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the text of each page and runs the extraction. A PDF
// with no extractable text (scanned images) yields an empty extraction
// rather than an error; its zero confidence flags it downstream.
func (p *PDFParser) Parse(content []byte, _ string) (*model.Extraction, error) {
	reader, err := pdf.NewReader(newBytesReaderAt(content), int64(len(content)))
	if err != nil {
		return nil, model.NewParseError(fmt.Errorf("open PDF: %w", err))
	}

	var textBuilder strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Some pages may fail to parse; keep the rest
			continue
		}

		if text != "" {
			if textBuilder.Len() > 0 {
				textBuilder.WriteString("\n\n")
			}
			textBuilder.WriteString(text)
		}
	}

	ext := Extract(cleanText(textBuilder.String()))
	return &ext, nil
}

// CanParse returns true if this parser can handle the given MIME type.
func (p *PDFParser) CanParse(mimeType string) bool {
	return mimeType == "application/pdf"
}

// MimeType returns the primary MIME type for this parser.
func (p *PDFParser) MimeType() string {
	return "application/pdf"
}

// bytesReaderAt implements io.ReaderAt for a byte slice.
type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}
