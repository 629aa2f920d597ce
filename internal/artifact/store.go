// Package artifact defines the keyed, read-once archive store.
//
// Archives are anonymous and single-use: a Get that succeeds also consumes
// the artifact, and a key can expire underneath a caller at any time. The
// abstraction keeps the application independent of the backing medium
// (local filesystem, memory, Google Cloud Storage).
package artifact

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound signals an absent, already-claimed, or expired artifact. It is
// a normal user-facing condition, not a system fault.
var ErrNotFound = errors.New("artifact not found")

// Store persists finished archives under opaque keys.
type Store interface {
	// Put writes the archive bytes under key.
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the archive bytes and consumes the artifact: after a
	// successful read the key yields ErrNotFound. A Get racing an expiry
	// sweep may also return ErrNotFound; callers must treat that as normal.
	Get(ctx context.Context, key string) ([]byte, error)
}

var keyPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeKey strips everything but ASCII letters and digits from an
// externally supplied identifier. Keys pass through this before any path or
// object name is built from them, so traversal sequences cannot escape the
// store.
func SanitizeKey(raw string) string {
	return keyPattern.ReplaceAllString(raw, "")
}
