package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/storage"
)

// WriteOutcome reports what a version write did.
type WriteOutcome string

const (
	// WriteApplied means a new version row was created.
	WriteApplied WriteOutcome = "applied"

	// WriteDuplicate means the version already existed with the same
	// content hash and the write was absorbed as a no-op.
	WriteDuplicate WriteOutcome = "duplicate"
)

// VersionWrite is one parsed document version together with everything
// derived from it. WriteParsed applies it atomically.
type VersionWrite struct {
	Document   model.LogicalDocument
	Version    model.DocumentVersion
	Extraction model.Extraction
	ParseRun   model.ParseRun
}

// WriteParsed persists a parsed version and its extracted entities in one
// transaction. Version numbers per document must be gapless and start at 1:
// a write that would skip a number fails with storage.ErrVersionGap so the
// caller can requeue it. Redelivery of an already-written version with the
// same content hash is absorbed as WriteDuplicate; the same number with a
// different hash is a consistency violation. The document's current pointer
// only ever moves forward.
func (s *Store) WriteParsed(ctx context.Context, w VersionWrite) (WriteOutcome, error) {
	if w.Document.ID == "" {
		return "", fmt.Errorf("document ID is required")
	}
	if w.Version.VersionNumber < 1 {
		return "", fmt.Errorf("version number must be >= 1, got %d", w.Version.VersionNumber)
	}
	if w.Version.SourceHash == "" {
		return "", fmt.Errorf("version source hash is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	docID := w.Document.ID
	now := time.Now().UTC()

	// Entity graph first so the document and case rows can link to it.
	var courtID string
	if w.Extraction.CourtName != "" {
		if courtID, err = upsertCourt(ctx, tx, w.Extraction.CourtName); err != nil {
			return "", err
		}
	}

	if w.Extraction.JudgeName != "" {
		if err := upsertJudge(ctx, tx, w.Extraction.JudgeName, courtID); err != nil {
			return "", err
		}
	}

	var caseID string
	if w.Extraction.CaseNumber != "" {
		if caseID, err = upsertCase(ctx, tx, w.Extraction.CaseNumber, courtID); err != nil {
			return "", err
		}
	}

	createdAt := w.Document.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, case_id, type, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			case_id = COALESCE(documents.case_id, excluded.case_id),
			type = excluded.type,
			updated_at = excluded.updated_at`,
		docID, nullable(caseID), string(w.Document.Type), w.Document.SourceURL, createdAt, now); err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}

	versionID := w.Version.ID
	outcome := WriteApplied

	var existingID, existingHash string
	err = tx.QueryRowContext(ctx,
		`SELECT id, source_hash FROM document_versions WHERE document_id = ? AND version_number = ?`,
		docID, w.Version.VersionNumber).Scan(&existingID, &existingHash)
	switch {
	case err == nil:
		if existingHash != w.Version.SourceHash {
			return "", model.NewConsistencyViolation(fmt.Errorf(
				"version %d of %s already exists with hash %s, refusing write with hash %s",
				w.Version.VersionNumber, docID, existingHash, w.Version.SourceHash))
		}
		versionID = existingID
		outcome = WriteDuplicate
		// A replay through a newer parser lands here with a fresh payload.
		if len(w.Version.ParsedJSON) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE document_versions SET parsed_json = ? WHERE id = ?`,
				string(w.Version.ParsedJSON), versionID); err != nil {
				return "", fmt.Errorf("update version payload: %w", err)
			}
		}
	case errors.Is(err, sql.ErrNoRows):
		var maxVersion int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = ?`,
			docID).Scan(&maxVersion); err != nil {
			return "", fmt.Errorf("query max version: %w", err)
		}
		if w.Version.VersionNumber > maxVersion+1 {
			return "", fmt.Errorf("version %d of %s after %d: %w",
				w.Version.VersionNumber, docID, maxVersion, storage.ErrVersionGap)
		}

		if versionID == "" {
			versionID = model.NewVersionID()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_versions
				(id, document_id, version_number, source_url, source_hash, raw_storage_path, parsed_json, published_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			versionID, docID, w.Version.VersionNumber, w.Version.SourceURL, w.Version.SourceHash,
			nullable(w.Version.RawStoragePath), nullableBytes(w.Version.ParsedJSON),
			nullTime(w.Version.PublishedAt), now); err != nil {
			return "", fmt.Errorf("insert version: %w", err)
		}
	default:
		return "", fmt.Errorf("query version: %w", err)
	}

	// Derived rows are replaced or upserted so redelivery cannot duplicate
	// them.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_sections WHERE document_version_id = ?`, versionID); err != nil {
		return "", fmt.Errorf("clear sections: %w", err)
	}
	for _, sec := range w.Extraction.Sections {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_sections (id, document_version_id, section_type, order_index, text)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), versionID, string(sec.Type), sec.OrderIndex, sec.Text); err != nil {
			return "", fmt.Errorf("insert section: %w", err)
		}
	}

	for _, code := range w.Extraction.LawRefs {
		artID, err := upsertLawArticle(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_law_refs (document_version_id, law_article_id)
			VALUES (?, ?) ON CONFLICT DO NOTHING`, versionID, artID); err != nil {
			return "", fmt.Errorf("insert law ref: %w", err)
		}
	}

	var plaintiffID string
	for _, p := range w.Extraction.Parties {
		partyID, err := upsertParty(ctx, tx, p.Name)
		if err != nil {
			return "", err
		}
		if p.Role == model.PartyRolePlaintiff && plaintiffID == "" {
			plaintiffID = partyID
		}
		if caseID != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO case_parties (case_id, party_id, role)
				VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
				caseID, partyID, string(p.Role)); err != nil {
				return "", fmt.Errorf("insert case party: %w", err)
			}
		}
	}

	if caseID != "" {
		for _, c := range w.Extraction.Claims {
			if c.ClaimType == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO claims (id, case_id, claim_type, amount, currency)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(case_id, claim_type) DO UPDATE SET
					amount = excluded.amount,
					currency = excluded.currency`,
				uuid.NewString(), caseID, c.ClaimType, nullFloat(c.Amount), nullable(c.Currency)); err != nil {
				return "", fmt.Errorf("upsert claim: %w", err)
			}
		}
	}

	if w.Extraction.Outcome != "" && plaintiffID != "" {
		var awarded any
		if w.Extraction.Outcome == model.OutcomeGranted && len(w.Extraction.Claims) > 0 && w.Extraction.Claims[0].Amount > 0 {
			awarded = w.Extraction.Claims[0].Amount
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_outcomes (document_version_id, party_id, result, amount_awarded)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(document_version_id, party_id) DO UPDATE SET
				result = excluded.result,
				amount_awarded = excluded.amount_awarded`,
			versionID, plaintiffID, string(w.Extraction.Outcome), awarded); err != nil {
			return "", fmt.Errorf("upsert outcome: %w", err)
		}
	}

	// One run per (version, parser): a replay after a parser upgrade
	// appends, redelivery with the same parser does not.
	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM parse_runs WHERE document_version_id = ? AND parser_version = ? LIMIT 1`,
		versionID, w.ParseRun.ParserVersion).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		runID := w.ParseRun.ID
		if runID == "" {
			runID = model.NewParseRunID()
		}
		parsedAt := w.ParseRun.ParsedAt
		if parsedAt.IsZero() {
			parsedAt = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO parse_runs (id, document_version_id, parser_version, confidence_score, parsed_at)
			VALUES (?, ?, ?, ?, ?)`,
			runID, versionID, w.ParseRun.ParserVersion, w.ParseRun.ConfidenceScore, parsedAt); err != nil {
			return "", fmt.Errorf("insert parse run: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("query parse run: %w", err)
	}

	// The current pointer only moves forward, so an out-of-order replay of
	// an older version never regresses it.
	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET current_version_id = ?, updated_at = ?
		WHERE id = ? AND (
			current_version_id IS NULL
			OR (SELECT version_number FROM document_versions WHERE id = documents.current_version_id) < ?
		)`,
		versionID, now, docID, w.Version.VersionNumber); err != nil {
		return "", fmt.Errorf("advance current version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit version write: %w", err)
	}

	return outcome, nil
}

func upsertCourt(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM courts WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query court: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO courts (id, name) VALUES (?, ?)`, id, name); err != nil {
		return "", fmt.Errorf("insert court: %w", err)
	}
	return id, nil
}

func upsertJudge(ctx context.Context, tx *sql.Tx, fullName, courtID string) error {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM judges WHERE full_name = ? AND court_id IS ?`,
		fullName, nullable(courtID)).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query judge: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO judges (id, full_name, court_id) VALUES (?, ?, ?)`,
		uuid.NewString(), fullName, nullable(courtID)); err != nil {
		return fmt.Errorf("insert judge: %w", err)
	}
	return nil
}

func upsertCase(ctx context.Context, tx *sql.Tx, registryNumber, courtID string) (string, error) {
	var id string
	var existingCourt sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT id, court_id FROM cases WHERE registry_number = ?`, registryNumber).
		Scan(&id, &existingCourt)
	if err == nil {
		// Fill in the court once a parse identifies it.
		if !existingCourt.Valid && courtID != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cases SET court_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				courtID, id); err != nil {
				return "", fmt.Errorf("update case court: %w", err)
			}
		}
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query case: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cases (id, registry_number, court_id, status) VALUES (?, ?, ?, ?)`,
		id, registryNumber, nullable(courtID), string(model.CaseStatusOpen)); err != nil {
		return "", fmt.Errorf("insert case: %w", err)
	}
	return id, nil
}

func upsertParty(ctx context.Context, tx *sql.Tx, normalizedName string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM parties WHERE normalized_name = ?`, normalizedName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query party: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO parties (id, normalized_name) VALUES (?, ?)`, id, normalizedName); err != nil {
		return "", fmt.Errorf("insert party: %w", err)
	}
	return id, nil
}

func upsertLawArticle(ctx context.Context, tx *sql.Tx, code string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM law_articles WHERE code = ?`, code).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("query law article: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO law_articles (id, code) VALUES (?, ?)`, id, code); err != nil {
		return "", fmt.Errorf("insert law article: %w", err)
	}
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
