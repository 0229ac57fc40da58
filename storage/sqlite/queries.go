package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/c360studio/courtstream/model"
	"github.com/c360studio/courtstream/storage"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// GetDocument returns a logical document by id. The CaseID field holds the
// canonical case row id, not the wire-level case identifier.
func (s *Store) GetDocument(ctx context.Context, docID string) (*model.LogicalDocument, error) {
	var (
		doc       model.LogicalDocument
		caseID    sql.NullString
		docType   sql.NullString
		sourceURL sql.NullString
		currentID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, case_id, type, source_url, current_version_id, created_at, updated_at
		FROM documents WHERE id = ?`, docID).
		Scan(&doc.ID, &caseID, &docType, &sourceURL, &currentID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", docID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("query document: %w", err)
	}

	doc.CaseID = caseID.String
	doc.Type = model.DocumentType(docType.String)
	doc.SourceURL = sourceURL.String
	doc.CurrentVersionID = currentID.String
	return &doc, nil
}

// GetVersion returns one version of a document by number.
func (s *Store) GetVersion(ctx context.Context, docID string, number int) (*model.DocumentVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, source_url, source_hash, raw_storage_path, parsed_json, published_at, created_at
		FROM document_versions WHERE document_id = ? AND version_number = ?`,
		docID, number)

	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("version %d of %s: %w", number, docID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("query version: %w", err)
	}
	return v, nil
}

// ListVersions returns every version of a document in version order.
func (s *Store) ListVersions(ctx context.Context, docID string) ([]model.DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, source_url, source_hash, raw_storage_path, parsed_json, published_at, created_at
		FROM document_versions WHERE document_id = ? ORDER BY version_number`, docID)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	//nolint:prealloc // count unknown up front
	var versions []model.DocumentVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// ListParseRuns returns the parse runs recorded against a version, oldest
// first.
func (s *Store) ListParseRuns(ctx context.Context, versionID string) ([]model.ParseRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_version_id, parser_version, confidence_score, parsed_at
		FROM parse_runs WHERE document_version_id = ? ORDER BY parsed_at, id`, versionID)
	if err != nil {
		return nil, fmt.Errorf("query parse runs: %w", err)
	}
	defer rows.Close()

	//nolint:prealloc // count unknown up front
	var runs []model.ParseRun
	for rows.Next() {
		var r model.ParseRun
		var conf sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.DocumentVersionID, &r.ParserVersion, &conf, &r.ParsedAt); err != nil {
			return nil, fmt.Errorf("scan parse run: %w", err)
		}
		r.ConfidenceScore = conf.Float64
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MaxVersionNumber returns the highest version number written for a
// document, or 0 when none exist.
func (s *Store) MaxVersionNumber(ctx context.Context, docID string) (int, error) {
	var maxVersion int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = ?`,
		docID).Scan(&maxVersion); err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	return maxVersion, nil
}

// LatestVersionHash returns the content hash of the newest version, or ""
// when the document has no versions yet.
func (s *Store) LatestVersionHash(ctx context.Context, docID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT source_hash FROM document_versions
		WHERE document_id = ? ORDER BY version_number DESC LIMIT 1`, docID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest hash: %w", err)
	}
	return hash, nil
}

// Stats summarizes canonical table sizes.
type Stats struct {
	Documents int `json:"documents"`
	Versions  int `json:"versions"`
	Cases     int `json:"cases"`
	Courts    int `json:"courts"`
	Parties   int `json:"parties"`
	ParseRuns int `json:"parse_runs"`
}

// Stats returns row counts across the canonical tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dest  *int
	}{
		{"documents", &st.Documents},
		{"document_versions", &st.Versions},
		{"cases", &st.Cases},
		{"courts", &st.Courts},
		{"parties", &st.Parties},
		{"parse_runs", &st.ParseRuns},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return st, nil
}

func scanVersion(row rowScanner) (*model.DocumentVersion, error) {
	var (
		v           model.DocumentVersion
		rawPath     sql.NullString
		parsedJSON  sql.NullString
		publishedAt sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.SourceURL, &v.SourceHash,
		&rawPath, &parsedJSON, &publishedAt, &v.CreatedAt); err != nil {
		return nil, err
	}

	v.RawStoragePath = rawPath.String
	if parsedJSON.Valid {
		v.ParsedJSON = []byte(parsedJSON.String)
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		v.PublishedAt = &t
	}
	return &v, nil
}
