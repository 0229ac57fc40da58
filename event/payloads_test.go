package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/courtstream/model"
)

func TestDiscoveredPayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload DiscoveredPayload
		wantErr bool
	}{
		{
			"valid",
			DiscoveredPayload{DocID: "doc-1", SourceURL: "https://reyestr.court.gov.ua/Review/1", Stage: StageDiscovery},
			false,
		},
		{
			"missing doc_id",
			DiscoveredPayload{SourceURL: "https://reyestr.court.gov.ua/Review/1"},
			true,
		},
		{
			"missing source_url",
			DiscoveredPayload{DocID: "doc-1"},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsedPayload_ValidateConfidenceRange(t *testing.T) {
	base := ParsedPayload{
		DocID:         "doc-1",
		VersionID:     "ver-1",
		VersionNumber: 1,
		ContentHash:   "abc",
		ParserVersion: "1.0.0",
		Stage:         StageParse,
	}

	valid := base
	valid.Confidence = 0.7
	assert.NoError(t, valid.Validate())

	tooHigh := base
	tooHigh.Confidence = 1.5
	assert.Error(t, tooHigh.Validate())

	negative := base
	negative.Confidence = -0.1
	assert.Error(t, negative.Validate())
}

func TestParsedPayload_ValidateVersionNumber(t *testing.T) {
	p := ParsedPayload{
		DocID:         "doc-1",
		VersionID:     "ver-1",
		VersionNumber: 0,
		ContentHash:   "abc",
		ParserVersion: "1.0.0",
		Confidence:    0.5,
	}
	assert.Error(t, p.Validate(), "version numbers start at 1")
}

func TestFailedPayload_Validate(t *testing.T) {
	p := FailedPayload{
		DocID:     "doc-1",
		Stage:     StageFetch,
		ErrorKind: model.ErrorKindPermanentFetch,
		Error:     "HTTP 404",
	}
	require.NoError(t, p.Validate())

	p.Error = ""
	assert.Error(t, p.Validate())
}

func TestFetchedPayload_JSONWireFormat(t *testing.T) {
	p := FetchedPayload{
		DocID:           "doc-109591011",
		CaseID:          "910/1234/24",
		Stage:           StageFetch,
		SourceURL:       "https://reyestr.court.gov.ua/Review/109591011",
		ContentHash:     "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		StorageLocation: "b9/4d/b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		ContentType:     "text/html; charset=utf-8",
		OccurredAt:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(&p)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "doc-109591011", wire["doc_id"])
	assert.Equal(t, "910/1234/24", wire["case_id"])
	assert.Equal(t, "fetch", wire["stage"])
	assert.Contains(t, wire, "content_hash")
	assert.Contains(t, wire, "storage_location")
	assert.Contains(t, wire, "occurred_at")

	var back FetchedPayload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p, back)
}

func TestParsedPayload_RoundTripKeepsExtraction(t *testing.T) {
	date := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	p := ParsedPayload{
		DocID:         "doc-1",
		VersionID:     "ver-1",
		VersionNumber: 2,
		ContentHash:   "deadbeef",
		ParserVersion: "1.0.0",
		Confidence:    1.0,
		Stage:         StageParse,
		Extraction: model.Extraction{
			CaseNumber:   "910/1234/24",
			CourtName:    "Господарський суд міста Києва",
			JudgeName:    "Іванов І.І.",
			DecisionDate: &date,
			Parties: []model.ExtractedParty{
				{Name: "ТОВ Альфа", Role: model.PartyRolePlaintiff},
				{Name: "ТОВ Бета", Role: model.PartyRoleDefendant},
			},
			LawRefs: []string{"ЦКУ 625"},
			Outcome: model.OutcomeGranted,
		},
	}

	data, err := json.Marshal(&p)
	require.NoError(t, err)

	var back ParsedPayload
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Extraction.CaseNumber, back.Extraction.CaseNumber)
	assert.Len(t, back.Extraction.Parties, 2)
	assert.Equal(t, model.PartyRoleDefendant, back.Extraction.Parties[1].Role)
}

func TestPayloadSchemas(t *testing.T) {
	assert.Equal(t, "court", DiscoveredType.Domain)
	assert.Equal(t, (&DiscoveredPayload{}).Schema(), DiscoveredType)
	assert.Equal(t, (&FetchedPayload{}).Schema(), FetchedType)
	assert.Equal(t, (&ParsedPayload{}).Schema(), ParsedType)
	assert.Equal(t, (&FailedPayload{}).Schema(), FailedType)
}
