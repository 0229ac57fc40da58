package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/courtstream/model"
)

func init() {
	registrations := []*component.PayloadRegistration{
		{
			Domain:      "court",
			Category:    "discovered",
			Version:     "v1",
			Description: "Document discovered or possibly updated in the registry",
			Factory:     func() any { return &DiscoveredPayload{} },
		},
		{
			Domain:      "court",
			Category:    "fetched",
			Version:     "v1",
			Description: "Document bytes fetched and content-addressed",
			Factory:     func() any { return &FetchedPayload{} },
		},
		{
			Domain:      "court",
			Category:    "parsed",
			Version:     "v1",
			Description: "Document parsed into structured legal entities",
			Factory:     func() any { return &ParsedPayload{} },
		},
		{
			Domain:      "court",
			Category:    "failed",
			Version:     "v1",
			Description: "Stage failure for audit and replay-driven retry",
			Factory:     func() any { return &FailedPayload{} },
		},
	}
	for _, reg := range registrations {
		if err := component.RegisterPayload(reg); err != nil {
			panic("failed to register court payload " + reg.Category + ": " + err.Error())
		}
	}
}

// Message types for the four pipeline channels.
var (
	DiscoveredType = message.Type{Domain: "court", Category: "discovered", Version: "v1"}
	FetchedType    = message.Type{Domain: "court", Category: "fetched", Version: "v1"}
	ParsedType     = message.Type{Domain: "court", Category: "parsed", Version: "v1"}
	FailedType     = message.Type{Domain: "court", Category: "failed", Version: "v1"}
)

// DiscoveredPayload announces a new or possibly changed document. It never
// guarantees new content; the fetch stage performs the authoritative dedup
// via content hash.
type DiscoveredPayload struct {
	DocID  string `json:"doc_id"`
	CaseID string `json:"case_id,omitempty"`
	Stage  Stage  `json:"stage"`

	// SourceURL is where the document bytes can be fetched.
	SourceURL string `json:"source_url"`

	// Signal is the opaque change hint recorded at discovery (ETag or
	// listing-snippet hash). May be empty.
	Signal string `json:"signal,omitempty"`

	// PossibleUpdate marks re-discovery of a known document whose signal
	// changed or whose recheck interval elapsed.
	PossibleUpdate bool `json:"possible_update,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Schema returns the message type for this payload.
func (p *DiscoveredPayload) Schema() message.Type { return DiscoveredType }

// Validate validates the payload.
func (p *DiscoveredPayload) Validate() error {
	if p.DocID == "" {
		return errors.New("doc_id is required")
	}
	if p.SourceURL == "" {
		return errors.New("source_url is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *DiscoveredPayload) MarshalJSON() ([]byte, error) {
	type Alias DiscoveredPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *DiscoveredPayload) UnmarshalJSON(data []byte) error {
	type Alias DiscoveredPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// FetchedPayload announces that document bytes were downloaded, hashed, and
// persisted to the content store. Emitted only when the hash differs from
// the most recent known version (or the document is first-seen).
type FetchedPayload struct {
	DocID  string `json:"doc_id"`
	CaseID string `json:"case_id,omitempty"`
	Stage  Stage  `json:"stage"`

	SourceURL string `json:"source_url"`

	// ContentHash is the sha256 of the raw bytes.
	ContentHash string `json:"content_hash"`

	// StorageLocation locates the raw bytes in the content store.
	StorageLocation string `json:"storage_location"`

	ContentType string `json:"content_type,omitempty"`
	ETag        string `json:"etag,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Schema returns the message type for this payload.
func (p *FetchedPayload) Schema() message.Type { return FetchedType }

// Validate validates the payload.
func (p *FetchedPayload) Validate() error {
	if p.DocID == "" {
		return errors.New("doc_id is required")
	}
	if p.ContentHash == "" {
		return errors.New("content_hash is required")
	}
	if p.StorageLocation == "" {
		return errors.New("storage_location is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *FetchedPayload) MarshalJSON() ([]byte, error) {
	type Alias FetchedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *FetchedPayload) UnmarshalJSON(data []byte) error {
	type Alias FetchedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// ParsedPayload carries the structured extraction for one document version.
// The version number is tentative until the version writer commits it; the
// writer resolves races through the unique constraint and monotonic guard.
type ParsedPayload struct {
	DocID     string `json:"doc_id"`
	CaseID    string `json:"case_id,omitempty"`
	VersionID string `json:"version_id"`
	Stage     Stage  `json:"stage"`

	// VersionNumber is the parser-assigned next number (max known + 1).
	VersionNumber int `json:"version_number"`

	SourceURL       string `json:"source_url"`
	ContentHash     string `json:"content_hash"`
	StorageLocation string `json:"storage_location"`

	ParserVersion string  `json:"parser_version"`
	Confidence    float64 `json:"confidence"`

	// LowConfidence flags extractions under the confidence threshold.
	// They are emitted, not discarded; consumers decide whether to trust.
	LowConfidence bool `json:"low_confidence,omitempty"`

	Extraction model.Extraction `json:"extraction"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Schema returns the message type for this payload.
func (p *ParsedPayload) Schema() message.Type { return ParsedType }

// Validate validates the payload.
func (p *ParsedPayload) Validate() error {
	if p.DocID == "" {
		return errors.New("doc_id is required")
	}
	if p.VersionID == "" {
		return errors.New("version_id is required")
	}
	if p.VersionNumber < 1 {
		return errors.New("version_number must be at least 1")
	}
	if p.ContentHash == "" {
		return errors.New("content_hash is required")
	}
	if p.ParserVersion == "" {
		return errors.New("parser_version is required")
	}
	if p.Confidence < 0.0 || p.Confidence > 1.0 {
		return errors.New("confidence must be between 0.0 and 1.0")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *ParsedPayload) MarshalJSON() ([]byte, error) {
	type Alias ParsedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ParsedPayload) UnmarshalJSON(data []byte) error {
	type Alias ParsedPayload
	return json.Unmarshal(data, (*Alias)(p))
}

// FailedPayload records a terminal per-document failure at any stage. It is
// the audit trail: replaying the failed channel retries the documents once
// the root cause is fixed.
type FailedPayload struct {
	DocID     string `json:"doc_id"`
	CaseID    string `json:"case_id,omitempty"`
	VersionID string `json:"version_id,omitempty"`
	Stage     Stage  `json:"stage"`

	ErrorKind model.ErrorKind `json:"error_kind"`
	Error     string          `json:"error"`

	// SourceURL or StorageLocation gives the stage-specific context needed
	// to replay the failure.
	SourceURL       string `json:"source_url,omitempty"`
	StorageLocation string `json:"storage_location,omitempty"`

	Attempts int `json:"attempts,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Schema returns the message type for this payload.
func (p *FailedPayload) Schema() message.Type { return FailedType }

// Validate validates the payload.
func (p *FailedPayload) Validate() error {
	if p.DocID == "" {
		return errors.New("doc_id is required")
	}
	if p.Stage == "" {
		return errors.New("stage is required")
	}
	if p.Error == "" {
		return errors.New("error is required")
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *FailedPayload) MarshalJSON() ([]byte, error) {
	type Alias FailedPayload
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *FailedPayload) UnmarshalJSON(data []byte) error {
	type Alias FailedPayload
	return json.Unmarshal(data, (*Alias)(p))
}
