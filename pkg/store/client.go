package store

import (
	"context"
	"errors"
)

// The underlying store exposes partitions of sorted rows. All operations
// are single-partition and atomic at the row level only; there are no
// cross-partition transactions. Callers that need multi-partition effects
// layer ordered writes, idempotent retries and repair on top (see
// pkg/fanout and pkg/repair).
var (
	// ErrUnavailable means the store could not serve the request at all.
	// The write definitely did not apply; callers retry with backoff.
	ErrUnavailable = errors.New("store: unavailable")
	// ErrTimeout means the outcome is unknown. The write may or may not
	// have applied; callers must recover via an idempotent retry, never a
	// blind one.
	ErrTimeout = errors.New("store: timeout, outcome unknown")
	// ErrInvalidArgument is a caller bug and is never retried.
	ErrInvalidArgument = errors.New("store: invalid argument")
	// ErrNotFound is returned by point lookups for absent rows.
	ErrNotFound = errors.New("store: not found")
)

// Row is one clustering-keyed entry inside a partition.
type Row struct {
	Clustering string
	Value      []byte
}

// Client is the narrow boundary to the sorted keyed store. Rows within a
// partition are ordered lexicographically by clustering key; range reads
// return rows in that order. An empty clustering key addresses the
// partition's single row (used for metadata records).
type Client interface {
	// Put writes or replaces one row.
	Put(ctx context.Context, partition, clustering string, value []byte) error
	// Get reads one row, returning ErrNotFound when absent.
	Get(ctx context.Context, partition, clustering string) ([]byte, error)
	// Scan returns up to limit rows whose clustering key is strictly
	// greater than after ("" starts at the beginning of the partition).
	Scan(ctx context.Context, partition, after string, limit int) ([]Row, error)
	// Delete removes one row. Deleting an absent row is not an error.
	Delete(ctx context.Context, partition, clustering string) error
}
