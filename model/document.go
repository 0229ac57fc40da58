// Package model defines the domain entities tracked by the ingestion
// pipeline: logical documents, their immutable versions, and the structured
// legal entities extracted from them.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies a court filing.
type DocumentType string

const (
	DocumentTypeDecision DocumentType = "decision"
	DocumentTypeRuling   DocumentType = "ruling"
	DocumentTypeOrder    DocumentType = "order"
	DocumentTypeAppeal   DocumentType = "appeal"
)

// LogicalDocument is one legal filing tracked over time. It is created on
// first discovery and never deleted; the only mutation it ever sees is the
// repointing of CurrentVersionID after a new version is accepted.
type LogicalDocument struct {
	// ID is the stable identifier, independent of content changes.
	ID string `json:"id"`

	// CaseID references the owning case.
	CaseID string `json:"case_id,omitempty"`

	// Type is the filing type (decision, ruling, order, appeal).
	Type DocumentType `json:"type"`

	// SourceURL is the registry URL the document was first discovered at.
	SourceURL string `json:"source_url"`

	// CurrentVersionID points at the accepted current DocumentVersion.
	// Empty until the first version is written.
	CurrentVersionID string `json:"current_version_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentVersion is one immutable snapshot of a LogicalDocument's content.
// Version numbers start at 1 and are gapless and strictly increasing per
// document. A version exists only when its content hash differs from the
// most recent prior version's hash. Never edited, only superseded.
type DocumentVersion struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`

	// VersionNumber is unique per document, enforced by the canonical store.
	VersionNumber int `json:"version_number"`

	// SourceURL is where this snapshot was fetched from.
	SourceURL string `json:"source_url"`

	// SourceHash is the sha256 of the raw fetched bytes.
	SourceHash string `json:"source_hash"`

	// RawStoragePath locates the raw bytes in the content store.
	RawStoragePath string `json:"raw_storage_path"`

	// ParsedJSON holds the structured extraction payload once parsing
	// succeeds; nil until then.
	ParsedJSON []byte `json:"parsed_json,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ParseRun records the provenance of one extraction attempt against a
// DocumentVersion: which parser version produced the payload and with what
// confidence. Runs are immutable and additive; replaying a fetch event
// through an upgraded parser appends a run without touching the version.
type ParseRun struct {
	ID                string    `json:"id"`
	DocumentVersionID string    `json:"document_version_id"`
	ParserVersion     string    `json:"parser_version"`
	ConfidenceScore   float64   `json:"confidence_score"`
	ParsedAt          time.Time `json:"parsed_at"`
}

// ChangeFingerprint is the Change Monitor's last-seen signal for a known
// document. It is a cache used to avoid redundant fetches, not a source of
// truth: the authoritative dedup check is the content hash computed after
// fetch.
type ChangeFingerprint struct {
	DocumentID string `json:"document_id"`

	// Signal is the opaque change hint: the registry ETag when one is
	// returned, otherwise a hash of the listing snippet.
	Signal string `json:"signal,omitempty"`

	// SourceURL is the fetch URL recorded at discovery time.
	SourceURL string `json:"source_url"`

	CheckedAt time.Time `json:"checked_at"`
}

// NewDocumentID derives a stable logical-document id from the registry's
// own identifier for the filing.
func NewDocumentID(registryID string) string {
	return fmt.Sprintf("doc-%s", registryID)
}

// NewVersionID returns a fresh unique id for a DocumentVersion.
func NewVersionID() string {
	return fmt.Sprintf("ver-%s", uuid.New().String())
}

// NewParseRunID returns a fresh unique id for a ParseRun.
func NewParseRunID() string {
	return fmt.Sprintf("run-%s", uuid.New().String())
}

// ParseDocumentType normalizes a raw registry type string into a
// DocumentType, defaulting to decision for unknown values.
func ParseDocumentType(raw string) DocumentType {
	switch DocumentType(raw) {
	case DocumentTypeRuling:
		return DocumentTypeRuling
	case DocumentTypeOrder:
		return DocumentTypeOrder
	case DocumentTypeAppeal:
		return DocumentTypeAppeal
	default:
		return DocumentTypeDecision
	}
}
