package model

import "time"

// Extraction is the structured payload produced by one parse of a document
// version. It is a closed, typed shape rather than a free-form blob so that
// downstream consumers get compile-time-checkable structure.
type Extraction struct {
	CaseNumber   string       `json:"case_number,omitempty"`
	CourtName    string       `json:"court,omitempty"`
	JudgeName    string       `json:"judge,omitempty"`
	DecisionDate *time.Time   `json:"date,omitempty"`
	DocumentType DocumentType `json:"document_type,omitempty"`

	Parties  []ExtractedParty   `json:"parties,omitempty"`
	Claims   []ExtractedClaim   `json:"claims,omitempty"`
	LawRefs  []string           `json:"law_references,omitempty"`
	Amounts  []ExtractedAmount  `json:"amounts,omitempty"`
	Outcome  OutcomeResult      `json:"outcome,omitempty"`
	Sections []ExtractedSection `json:"sections,omitempty"`
}

// ExtractedParty is a party mention found in the decision text.
type ExtractedParty struct {
	Name string    `json:"name"`
	Role PartyRole `json:"role"`
}

// ExtractedClaim is a claim with its monetary demand, when one is stated.
type ExtractedClaim struct {
	ClaimType string  `json:"claim_type,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// ExtractedAmount is a monetary amount mentioned anywhere in the text.
type ExtractedAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// ExtractedSection is one ordered structural slice of the decision text.
type ExtractedSection struct {
	Type       SectionType `json:"type"`
	OrderIndex int         `json:"order_index"`
	Text       string      `json:"text"`
}
