// Package docstore stores raw metadata documents referenced by federation and
// entity records.
package docstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"io/fs"
	"path"

	"github.com/mr-tron/base58"
)

// Driver identifies a concrete document storage backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrInvalidKey = errors.New("invalid document key")
	ErrCorrupt    = errors.New("stored document is corrupt")
)

// Store persists documents under opaque keys.
type Store interface {
	// Put stores data under key, replacing any existing document.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the document stored under key.
	// Returns ErrNotFound if there is no such document.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the document stored under key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	Driver() Driver
}

// Key prefixes for record documents.
const (
	FederationPrefix = "federations"
	EntityPrefix     = "entities"
)

// ContentKey derives a key for data under prefix from its content:
// the Base58-encoded SHA256 digest. Identical documents share a key so an
// unchanged document is never stored twice.
func ContentKey(prefix string, data []byte) string {
	hash := sha256.Sum256(data)
	return path.Join(prefix, base58.Encode(hash[:])+".xml")
}

// ValidateKey rejects keys that are empty, absolute or escape their root.
func ValidateKey(key string) error {
	if key == "." || !fs.ValidPath(key) {
		return ErrInvalidKey
	}
	return nil
}
