package progress

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"imagepack/internal/batch"
)

// Stream serializes frames onto one HTTP response, flushing after each so the
// client sees state transitions as they happen. All methods are safe for
// concurrent use; frame emission is the single serialization point that keeps
// the stream strictly ordered. Writes after Close are silently dropped, which
// lets cleanup paths race an in-flight emitter without corrupting output.
type Stream struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	enc     *json.Encoder
	closed  bool
	logger  *zap.Logger
}

// NewStream wraps a response writer. The caller is responsible for setting
// response headers before the first frame is written.
func NewStream(w http.ResponseWriter, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stream{
		w:      w,
		enc:    json.NewEncoder(w),
		logger: logger,
	}
	if f, ok := w.(http.Flusher); ok {
		s.flusher = f
	}
	return s
}

// Progress emits a full row-status snapshot.
func (s *Stream) Progress(items []batch.RowStatus) {
	s.write(Frame{Type: FrameProgress, Items: items})
}

// Complete emits the terminal frame carrying the artifact retrieval URL.
func (s *Stream) Complete(downloadURL string) {
	s.write(Frame{Type: FrameComplete, DownloadURL: downloadURL})
}

// Error emits the terminal failure frame.
func (s *Stream) Error(message string) {
	s.write(Frame{Type: FrameError, Message: message})
}

// Close marks the stream finished. Idempotent; later writes are dropped.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Stream) write(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// Encoder appends the newline delimiter. A failed write usually means the
	// client went away; keep going, the processor decides whether to stop.
	if err := s.enc.Encode(f); err != nil {
		s.logger.Debug("frame write failed", zap.Error(err))
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
