package model

import (
	"strings"
	"testing"
)

func TestNewDocumentID(t *testing.T) {
	id := NewDocumentID("109591011")
	if id != "doc-109591011" {
		t.Errorf("NewDocumentID() = %q, want %q", id, "doc-109591011")
	}
}

func TestNewVersionIDUnique(t *testing.T) {
	a := NewVersionID()
	b := NewVersionID()

	if a == b {
		t.Error("version ids should be unique")
	}
	if !strings.HasPrefix(a, "ver-") {
		t.Errorf("version id %q missing ver- prefix", a)
	}
}

func TestParseDocumentType(t *testing.T) {
	tests := []struct {
		raw  string
		want DocumentType
	}{
		{"decision", DocumentTypeDecision},
		{"ruling", DocumentTypeRuling},
		{"order", DocumentTypeOrder},
		{"appeal", DocumentTypeAppeal},
		{"", DocumentTypeDecision},
		{"unknown-kind", DocumentTypeDecision},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseDocumentType(tt.raw); got != tt.want {
				t.Errorf("ParseDocumentType(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
