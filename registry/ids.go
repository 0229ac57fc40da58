package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/c360studio/courtstream/model"
)

// docIDPattern constrains document IDs to characters that are safe as
// NATS KV keys.
var docIDPattern = regexp.MustCompile(`^doc-[A-Za-z0-9._-]+$`)

// ValidateDocumentID checks if a document ID has a valid format.
func ValidateDocumentID(id string) bool {
	return docIDPattern.MatchString(id)
}

// ExtractRegistryID pulls the registry identifier out of a document URL.
// Registry URLs carry the identifier after a /Document/ or /Case/ path
// segment (e.g. https://reyestr.court.gov.ua/Document/12345678).
// Returns an empty string when no identifier is present.
func ExtractRegistryID(rawURL string) string {
	parts := strings.Split(rawURL, "/")
	for i, part := range parts {
		if part != "Document" && part != "Case" {
			continue
		}
		if i+1 < len(parts) && parts[i+1] != "" {
			return strings.TrimSpace(parts[i+1])
		}
	}
	return ""
}

// DocIDFromPath derives a stable document ID from a spool file path.
// The same path always yields the same ID so a re-dropped file lands
// on the existing logical document as a new version.
func DocIDFromPath(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}

	slug := strings.ToLower(base)
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}

	hash := sha256.Sum256([]byte(path))
	suffix := hex.EncodeToString(hash[:4])
	if slug == "" {
		return model.NewDocumentID(suffix)
	}
	return model.NewDocumentID(slug + "-" + suffix)
}
