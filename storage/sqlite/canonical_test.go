package sqlite

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testWrite(docID string, number int, hash string) VersionWrite {
	return VersionWrite{
		Document: model.LogicalDocument{
			ID:        docID,
			Type:      model.DocumentTypeDecision,
			SourceURL: "https://registry.example/doc/12345",
		},
		Version: model.DocumentVersion{
			DocumentID:     docID,
			VersionNumber:  number,
			SourceURL:      "https://registry.example/doc/12345",
			SourceHash:     hash,
			RawStoragePath: "ab/cd/" + hash,
			ParsedJSON:     []byte(`{"case_number":"910/12345/23"}`),
		},
		Extraction: model.Extraction{
			CaseNumber:   "910/12345/23",
			CourtName:    "Господарський суд міста Києва",
			JudgeName:    "Мельник О.В.",
			DocumentType: model.DocumentTypeDecision,
			Parties: []model.ExtractedParty{
				{Name: "ТОВ «Будівельник»", Role: model.PartyRolePlaintiff},
				{Name: "ПП «Ремонт-Сервіс»", Role: model.PartyRoleDefendant},
			},
			Claims: []model.ExtractedClaim{
				{ClaimType: "стягнення заборгованості", Amount: 150000.50, Currency: "UAH"},
			},
			LawRefs: []string{"ЦКУ 625"},
			Outcome: model.OutcomeGranted,
			Sections: []model.ExtractedSection{
				{Type: model.SectionFacts, OrderIndex: 0, Text: "встановив"},
				{Type: model.SectionDecision, OrderIndex: 1, Text: "вирішив"},
			},
		},
		ParseRun: model.ParseRun{
			ParserVersion:   "regex/1.0.0",
			ConfidenceScore: 1.0,
			ParsedAt:        time.Now().UTC(),
		},
	}
}

func TestWriteParsedFirstVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	outcome, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)
	assert.Equal(t, WriteApplied, outcome)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.CurrentVersionID)
	assert.NotEmpty(t, doc.CaseID)
	assert.Equal(t, model.DocumentTypeDecision, doc.Type)

	ver, err := store.GetVersion(ctx, "doc-1", 1)
	require.NoError(t, err)
	assert.Equal(t, doc.CurrentVersionID, ver.ID)
	assert.Equal(t, strings.Repeat("a", 64), ver.SourceHash)
	assert.JSONEq(t, `{"case_number":"910/12345/23"}`, string(ver.ParsedJSON))
}

func TestWriteParsedGapless(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// The first version of a document must be number 1.
	_, err := store.WriteParsed(ctx, testWrite("doc-1", 2, strings.Repeat("b", 64)))
	assert.ErrorIs(t, err, storage.ErrVersionGap)

	_, err = store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)

	// Skipping a number is refused until the missing one arrives.
	_, err = store.WriteParsed(ctx, testWrite("doc-1", 3, strings.Repeat("c", 64)))
	assert.ErrorIs(t, err, storage.ErrVersionGap)

	_, err = store.WriteParsed(ctx, testWrite("doc-1", 2, strings.Repeat("b", 64)))
	require.NoError(t, err)

	_, err = store.WriteParsed(ctx, testWrite("doc-1", 3, strings.Repeat("c", 64)))
	require.NoError(t, err)

	maxVersion, err := store.MaxVersionNumber(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 3, maxVersion)
}

func TestWriteParsedIdempotentRedelivery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := testWrite("doc-1", 1, strings.Repeat("a", 64))

	outcome, err := store.WriteParsed(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, WriteApplied, outcome)

	before, err := store.Stats(ctx)
	require.NoError(t, err)

	outcome, err = store.WriteParsed(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, WriteDuplicate, outcome)

	after, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	versions, err := store.ListVersions(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestWriteParsedHashConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)

	_, err = store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("f", 64)))
	require.Error(t, err)
	assert.True(t, model.IsConsistencyViolation(err))
}

func TestWriteParsedCurrentPointerNeverRegresses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)
	_, err = store.WriteParsed(ctx, testWrite("doc-1", 2, strings.Repeat("b", 64)))
	require.NoError(t, err)

	v2, err := store.GetVersion(ctx, "doc-1", 2)
	require.NoError(t, err)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, v2.ID, doc.CurrentVersionID)

	// Redelivering version 1 must not move the pointer backwards.
	outcome, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)
	assert.Equal(t, WriteDuplicate, outcome)

	doc, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, doc.CurrentVersionID)
}

// TestRepeatedDiscoveryLifecycle walks a document through three discovery
// rounds the way the fetch and write stages do: an unseen document gets
// version 1, identical bytes on re-discovery are dropped at the hash
// compare, and changed bytes append version 2 and advance the pointer.
func TestRepeatedDiscoveryLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h1 := storage.HashContent([]byte("<html>ухвалив стягнути 150000 грн</html>"))
	h2 := storage.HashContent([]byte("<html>ухвалив стягнути 175000 грн</html>"))

	// Round one: nothing known, fetch proceeds, writer creates version 1.
	last, err := store.LatestVersionHash(ctx, "doc-1")
	require.NoError(t, err)
	require.Empty(t, last)

	next, err := store.MaxVersionNumber(ctx, "doc-1")
	require.NoError(t, err)
	outcome, err := store.WriteParsed(ctx, testWrite("doc-1", next+1, h1))
	require.NoError(t, err)
	assert.Equal(t, WriteApplied, outcome)

	v1, err := store.GetVersion(ctx, "doc-1", 1)
	require.NoError(t, err)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, v1.ID, doc.CurrentVersionID)

	// Round two: the registry serves the same bytes. The fetch stage sees
	// the hash match and drops the event before anything reaches the writer.
	last, err = store.LatestVersionHash(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, h1, last)

	versions, err := store.ListVersions(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	// Round three: the decision text changed, so version 2 is appended
	// and becomes current.
	last, err = store.LatestVersionHash(ctx, "doc-1")
	require.NoError(t, err)
	require.NotEqual(t, h2, last)

	next, err = store.MaxVersionNumber(ctx, "doc-1")
	require.NoError(t, err)
	outcome, err = store.WriteParsed(ctx, testWrite("doc-1", next+1, h2))
	require.NoError(t, err)
	assert.Equal(t, WriteApplied, outcome)

	v2, err := store.GetVersion(ctx, "doc-1", 2)
	require.NoError(t, err)

	doc, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, v2.ID, doc.CurrentVersionID)
	assert.NotEqual(t, v1.ID, v2.ID)
}

func TestWriteParsedReplayAppendsRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)

	// Replay through an upgraded parser: same version, new run, new payload.
	replay := testWrite("doc-1", 1, strings.Repeat("a", 64))
	replay.ParseRun.ParserVersion = "regex/2.0.0"
	replay.Version.ParsedJSON = []byte(`{"case_number":"910/12345/23","court":"найновіший"}`)

	outcome, err := store.WriteParsed(ctx, replay)
	require.NoError(t, err)
	assert.Equal(t, WriteDuplicate, outcome)

	ver, err := store.GetVersion(ctx, "doc-1", 1)
	require.NoError(t, err)
	assert.Contains(t, string(ver.ParsedJSON), "найновіший")

	runs, err := store.ListParseRuns(ctx, ver.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "regex/1.0.0", runs[0].ParserVersion)
	assert.Equal(t, "regex/2.0.0", runs[1].ParserVersion)
}

func TestWriteParsedEntityGraph(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Documents: 1,
		Versions:  1,
		Cases:     1,
		Courts:    1,
		Parties:   2,
		ParseRuns: 1,
	}, stats)

	// A second document in the same case reuses the entity rows.
	w := testWrite("doc-2", 1, strings.Repeat("b", 64))
	_, err = store.WriteParsed(ctx, w)
	require.NoError(t, err)

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 1, stats.Cases)
	assert.Equal(t, 1, stats.Courts)
	assert.Equal(t, 2, stats.Parties)
}

func TestWriteParsedValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w := testWrite("", 1, strings.Repeat("a", 64))
	_, err := store.WriteParsed(ctx, w)
	assert.Error(t, err)

	w = testWrite("doc-1", 0, strings.Repeat("a", 64))
	_, err = store.WriteParsed(ctx, w)
	assert.Error(t, err)

	w = testWrite("doc-1", 1, strings.Repeat("a", 64))
	w.Version.SourceHash = ""
	_, err = store.WriteParsed(ctx, w)
	assert.Error(t, err)
}

func TestWriteParsedWithoutCaseNumber(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A document whose parse found no case number still gets a version.
	w := testWrite("doc-1", 1, strings.Repeat("a", 64))
	w.Extraction.CaseNumber = ""
	w.Extraction.Claims = nil

	outcome, err := store.WriteParsed(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, WriteApplied, outcome)

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, doc.CaseID)
	assert.NotEmpty(t, doc.CurrentVersionID)
}

func TestGetDocumentNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument(context.Background(), "doc-missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetVersionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetVersion(context.Background(), "doc-1", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLatestVersionHashEmpty(t *testing.T) {
	store := newTestStore(t)

	hash, err := store.LatestVersionHash(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestLatestVersionHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.WriteParsed(ctx, testWrite("doc-1", 1, strings.Repeat("a", 64)))
	require.NoError(t, err)
	_, err = store.WriteParsed(ctx, testWrite("doc-1", 2, strings.Repeat("b", 64)))
	require.NoError(t, err)

	hash, err := store.LatestVersionHash(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 64), hash)
}
