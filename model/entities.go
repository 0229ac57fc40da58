package model

import "time"

// Court is a court upserted from parsed decisions, keyed by name.
type Court struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region,omitempty"`
	Level  string `json:"level,omitempty"`
}

// Judge is a presiding judge, unique per (full name, court).
type Judge struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	CourtID  string `json:"court_id,omitempty"`
}

// CaseStatus tracks the lifecycle of a court case.
type CaseStatus string

const (
	CaseStatusOpen   CaseStatus = "open"
	CaseStatusClosed CaseStatus = "closed"
)

// Case groups the filings of one court case, keyed by the registry number.
type Case struct {
	ID             string     `json:"id"`
	RegistryNumber string     `json:"registry_number"`
	CourtID        string     `json:"court_id,omitempty"`
	Category       string     `json:"category,omitempty"`
	Status         CaseStatus `json:"status,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// PartyRole is a party's role within a case.
type PartyRole string

const (
	PartyRolePlaintiff  PartyRole = "plaintiff"
	PartyRoleDefendant  PartyRole = "defendant"
	PartyRoleThirdParty PartyRole = "third_party"
)

// Party is a natural or legal person appearing in cases.
type Party struct {
	ID             string `json:"id"`
	Type           string `json:"type,omitempty"`
	NormalizedName string `json:"normalized_name"`
	TaxID          string `json:"tax_id,omitempty"`
}

// CaseParty links a party to a case in a given role.
type CaseParty struct {
	CaseID  string    `json:"case_id"`
	PartyID string    `json:"party_id"`
	Role    PartyRole `json:"role"`
}

// Claim is a monetary or declaratory claim raised in a case.
type Claim struct {
	ID        string  `json:"id"`
	CaseID    string  `json:"case_id"`
	ClaimType string  `json:"claim_type,omitempty"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// LawArticle is a cited article of law, unique per code.
type LawArticle struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Title string `json:"title,omitempty"`
}

// DocumentLawRef links a document version to a cited law article.
type DocumentLawRef struct {
	DocumentVersionID string `json:"document_version_id"`
	LawArticleID      string `json:"law_article_id"`
}

// OutcomeResult is the court's disposition toward a party.
type OutcomeResult string

const (
	OutcomeGranted          OutcomeResult = "granted"
	OutcomePartiallyGranted OutcomeResult = "partially_granted"
	OutcomeDenied           OutcomeResult = "denied"
)

// DecisionOutcome records the disposition for one party in one decision.
type DecisionOutcome struct {
	DocumentVersionID string        `json:"document_version_id"`
	PartyID           string        `json:"party_id"`
	Result            OutcomeResult `json:"result"`
	AmountAwarded     float64       `json:"amount_awarded,omitempty"`
}

// SectionType is the closed set of structural sections extracted from a
// decision text.
type SectionType string

const (
	SectionFacts          SectionType = "FACTS"
	SectionClaims         SectionType = "CLAIMS"
	SectionArguments      SectionType = "ARGUMENTS"
	SectionLawReferences  SectionType = "LAW_REFERENCES"
	SectionCourtReasoning SectionType = "COURT_REASONING"
	SectionDecision       SectionType = "DECISION"
	SectionAmounts        SectionType = "AMOUNTS"
)

// DocumentSection is one ordered structural slice of a parsed decision.
type DocumentSection struct {
	ID                string      `json:"id"`
	DocumentVersionID string      `json:"document_version_id"`
	SectionType       SectionType `json:"section_type"`
	OrderIndex        int         `json:"order_index"`
	Text              string      `json:"text"`
}
