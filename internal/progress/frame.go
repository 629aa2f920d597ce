// Package progress streams newline-delimited JSON frames over a long-lived
// HTTP response.
package progress

import "imagepack/internal/batch"

// FrameType discriminates stream frames so a consumer can dispatch without
// ambiguity.
type FrameType string

// Supported frame types. Exactly one terminal frame (complete or error) ends
// a stream.
const (
	FrameProgress FrameType = "progress"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
)

// Frame is one self-delimited message. Items is set for progress frames,
// DownloadURL for complete, Message for error.
type Frame struct {
	Type        FrameType         `json:"type"`
	Items       []batch.RowStatus `json:"items,omitempty"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	Message     string            `json:"message,omitempty"`
}
