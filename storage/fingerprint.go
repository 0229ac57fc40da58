package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/courtstream/model"
)

// FingerprintBucket is the KV bucket holding last-seen change signals.
const FingerprintBucket = "COURT_FINGERPRINTS"

// FingerprintStore persists the last-seen change signal per document in
// NATS KV. Signals are opaque registry hints; the store only answers
// whether a document looks different since the last poll.
type FingerprintStore struct {
	nc     *natsclient.Client
	bucket jetstream.KeyValue
}

// NewFingerprintStore creates a fingerprint store backed by NATS KV.
func NewFingerprintStore(nc *natsclient.Client) (*FingerprintStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	ctx := context.Background()

	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      FingerprintBucket,
		Description: "Last-seen change signals per document",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("create fingerprints bucket: %w", err)
	}

	return &FingerprintStore{nc: nc, bucket: bucket}, nil
}

// Get returns the stored fingerprint for a document. Returns ErrNotFound
// when the document has never been seen.
func (s *FingerprintStore) Get(ctx context.Context, docID string) (*model.ChangeFingerprint, error) {
	entry, err := s.bucket.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("fingerprint for %s: %w", docID, ErrNotFound)
		}
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}

	var fp model.ChangeFingerprint
	if err := json.Unmarshal(entry.Value(), &fp); err != nil {
		return nil, fmt.Errorf("unmarshal fingerprint: %w", err)
	}

	return &fp, nil
}

// Put stores the fingerprint for a document, replacing any previous value.
func (s *FingerprintStore) Put(ctx context.Context, fp *model.ChangeFingerprint) error {
	if fp.DocumentID == "" {
		return fmt.Errorf("fingerprint document ID is required")
	}

	data, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}

	if _, err := s.bucket.Put(ctx, fp.DocumentID, data); err != nil {
		return fmt.Errorf("put fingerprint: %w", err)
	}

	return nil
}
