// Package storage provides raw document content, change fingerprint, and
// fetch lease storage for the ingestion pipeline.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContentStore persists raw fetched documents on the local filesystem,
// addressed by their SHA-256 content hash. Writes are idempotent: storing
// the same content twice returns the same location without rewriting the
// file.
type ContentStore struct {
	root string
}

// NewContentStore creates a content store rooted at dir, creating the
// directory if needed.
func NewContentStore(dir string) (*ContentStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("content store dir is required")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve content store dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create content store dir: %w", err)
	}

	return &ContentStore{root: abs}, nil
}

// HashContent returns the lowercase hex SHA-256 digest of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores content under its hash and returns the relative storage
// location. If the content already exists the existing location is
// returned without writing.
func (s *ContentStore) Put(hash string, content []byte) (string, error) {
	if err := validateHash(hash); err != nil {
		return "", err
	}

	// Shard by the first two byte pairs to keep directories small.
	rel := filepath.Join(hash[:2], hash[2:4], hash)
	path := filepath.Join(s.root, rel)

	if _, err := os.Stat(path); err == nil {
		return rel, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial
	// document.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename content file: %w", err)
	}

	return rel, nil
}

// Get reads the content stored at a location previously returned by Put.
// Returns ErrNotFound when no content exists at the location.
func (s *ContentStore) Get(location string) ([]byte, error) {
	clean := filepath.Clean(location)
	if clean == "" || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("invalid storage location %q", location)
	}

	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content at %s: %w", location, ErrNotFound)
		}
		return nil, fmt.Errorf("read content: %w", err)
	}

	return data, nil
}

// Root returns the absolute root directory of the store.
func (s *ContentStore) Root() string {
	return s.root
}

func validateHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("content hash must be 64 hex characters, got %d", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return fmt.Errorf("content hash is not hex: %w", err)
	}
	return nil
}
