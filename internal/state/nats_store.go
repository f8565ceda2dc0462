package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSStore shares snapshots between replicas through one JetStream KV bucket.
// Params: NATS connection and bucket handle keyed by source name.
// Returns: KV-backed snapshot cache; entries expire after the bucket TTL.
type NATSStore struct {
	kv     nats.KeyValue
	bucket string
}

// NewNATSStore opens the snapshot bucket, creating it when missing.
// Params: connected NATS client, bucket name, and optional value TTL.
// Returns: initialized store or JetStream setup error.
func NewNATSStore(nc *nats.Conn, bucket string, ttl time.Duration) (*NATSStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if err != nil {
		if !errors.Is(err, nats.ErrBucketNotFound) {
			return nil, fmt.Errorf("open snapshot bucket %q: %w", bucket, err)
		}
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "last good alert group snapshot per source",
			History:     1,
			TTL:         ttl,
		})
		if err != nil {
			return nil, fmt.Errorf("create snapshot bucket %q: %w", bucket, err)
		}
	}

	return &NATSStore{kv: kv, bucket: bucket}, nil
}

// Put writes the snapshot under its source key.
// Params: snapshot with source and revision set.
// Returns: validation, encode, or KV error.
func (s *NATSStore) Put(_ context.Context, snapshot Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := s.kv.Put(snapshot.Source, body); err != nil {
		return fmt.Errorf("put snapshot %q: %w", snapshot.Source, err)
	}
	return nil
}

// Get reads the latest snapshot of one source.
// Params: source name.
// Returns: snapshot, ErrNotFound for missing or expired keys, or KV error.
func (s *NATSStore) Get(_ context.Context, source string) (Snapshot, error) {
	entry, err := s.kv.Get(source)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("get snapshot %q: %w", source, err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(entry.Value(), &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %q: %w", source, err)
	}
	return snapshot, nil
}

// Bucket returns the KV bucket name.
func (s *NATSStore) Bucket() string {
	return s.bucket
}

// Close releases the store; the shared connection is closed by its owner.
func (s *NATSStore) Close() error {
	return nil
}
