// Package batch holds the core domain types and the row processing loop.
package batch

import (
	"context"
	"time"
)

// Status is the lifecycle state of one input row.
type Status string

// Row statuses reported to the progress stream.
const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
)

// Record is one validated input row: the identifier used for output file
// naming and the phrase sent to the image search surface. Records are
// immutable after ingestion. IDs are not required to be unique; a duplicate
// silently overwrites the earlier download of the same ID.
type Record struct {
	ID     string
	Phrase string
}

// RowStatus is the reportable state of one record. Error is only set for
// failed rows.
type RowStatus struct {
	ID     string `json:"id"`
	Phrase string `json:"image_name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Asset is a downloaded image: raw bytes plus the extension classified from
// the response content type. It only lives between a successful fetch and the
// write into the batch working directory.
type Asset struct {
	Data      []byte
	Extension string
}

// Resolver turns a search phrase into an ordered list of candidate image
// URLs. A nil or empty result is a normal outcome, not an error; resolution
// failures are expected against an uncontrolled search surface.
type Resolver interface {
	Resolve(ctx context.Context, phrase string) []string
}

// Fetcher attempts to materialize one candidate URL into a viable Asset.
// ok is false for any miss: unreachable, non-2xx, undersized payload. Misses
// never surface as errors so a caller can simply try the next candidate.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Asset, bool)
}

// Emitter receives a full row-status snapshot after every state transition.
// Snapshots are copies; the receiver may retain them.
type Emitter interface {
	Snapshot(items []RowStatus)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(items []RowStatus)

// Snapshot calls f.
func (f EmitterFunc) Snapshot(items []RowStatus) { f(items) }

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
