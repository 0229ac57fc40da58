package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// LeaseBucket is the KV bucket holding in-flight fetch leases.
const LeaseBucket = "COURT_FETCH_LEASES"

// DefaultLeaseTTL bounds how long a crashed worker can block a document.
const DefaultLeaseTTL = 5 * time.Minute

// LeaseStore hands out short-lived per-document fetch leases so concurrent
// workers do not download the same document twice. Leases expire via the
// bucket TTL, so a crashed holder frees its documents without cleanup.
type LeaseStore struct {
	nc     *natsclient.Client
	bucket jetstream.KeyValue
}

// NewLeaseStore creates a lease store backed by NATS KV. A non-positive
// ttl selects DefaultLeaseTTL.
func NewLeaseStore(nc *natsclient.Client, ttl time.Duration) (*LeaseStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	ctx := context.Background()

	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      LeaseBucket,
		Description: "In-flight fetch leases per document",
		TTL:         ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("create leases bucket: %w", err)
	}

	return &LeaseStore{nc: nc, bucket: bucket}, nil
}

// Acquire takes the fetch lease for a document. Returns ErrLeaseHeld when
// another worker already holds it.
func (s *LeaseStore) Acquire(ctx context.Context, docID, holder string) error {
	if _, err := s.bucket.Create(ctx, docID, []byte(holder)); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("lease for %s: %w", docID, ErrLeaseHeld)
		}
		return fmt.Errorf("acquire lease: %w", err)
	}
	return nil
}

// Release frees the lease for a document. Releasing an unheld lease is a
// no-op.
func (s *LeaseStore) Release(ctx context.Context, docID string) error {
	if err := s.bucket.Delete(ctx, docID); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
