// Package storage pins payloads on a content-addressed store and resolves
// content identifiers back to payloads or time-limited access URLs.
// Identifiers are CIDv1 strings, so writes are idempotent and retrieval is
// tamper-evident.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var (
	ErrTransport = errors.New("storage: transport failure")
	ErrNotFound  = errors.New("storage: content not found")
	ErrBadCID    = errors.New("storage: malformed content id")
)

// Store is the content-addressed storage collaborator.
type Store interface {
	// Put pins raw bytes and returns their content id.
	Put(ctx context.Context, data []byte) (string, error)
	// PutJSON pins v as a JSON document under the given name.
	PutJSON(ctx context.Context, v any, name string) (string, error)
	// Get retrieves the payload for a content id.
	Get(ctx context.Context, id string) ([]byte, error)
	// SignedURL returns a retrieval URL valid for ttl.
	SignedURL(ctx context.Context, id string, ttl time.Duration) (string, error)
}

// ComputeCID derives the CIDv1 (raw codec, sha2-256) for a payload.
func ComputeCID(data []byte) (string, error) {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}

// ValidateCID rejects strings that do not parse as a CID.
func ValidateCID(id string) error {
	if _, err := cid.Decode(id); err != nil {
		return fmt.Errorf("%w: %q", ErrBadCID, id)
	}
	return nil
}
