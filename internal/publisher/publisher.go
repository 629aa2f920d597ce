// Package publisher defines batch lifecycle notifications.
package publisher

import (
	"context"
	"time"
)

// Publisher emits batch lifecycle payloads to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BatchSummary is the payload published when a batch finishes.
type BatchSummary struct {
	ArtifactKey string        `json:"artifact_key,omitempty"`
	Rows        int           `json:"rows"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Outcome     string        `json:"outcome"`
}

// NoOp discards every publish.
type NoOp struct{}

// Publish does nothing and reports success.
func (NoOp) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}
