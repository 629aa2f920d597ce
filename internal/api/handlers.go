package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"go.uber.org/zap"

	"imagepack/internal/archive"
	"imagepack/internal/artifact"
	"imagepack/internal/batch"
	"imagepack/internal/metrics"
	"imagepack/internal/progress"
	"imagepack/internal/publisher"
)

const (
	maxUploadBytes   = 32 << 20
	downloadFilename = "images.zip"
)

// processBatch accepts the tabular upload, runs the batch, and streams
// NDJSON progress frames over the open response. Validation failures are
// rejected with a plain 400 before any frame is written; once the stream has
// started, terminal failures arrive as an error frame instead.
func (s *Server) processBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	records, err := batch.ParseTable(header.Filename, data)
	if err != nil {
		var vErr *batch.ValidationError
		if errors.As(err, &vErr) {
			s.writeError(w, http.StatusBadRequest, vErr.Error())
		} else {
			s.writeError(w, http.StatusBadRequest, "invalid input")
		}
		metrics.BatchFinished("rejected")
		return
	}

	workDir, err := os.MkdirTemp("", "imagepack-batch-*")
	if err != nil {
		s.logger.Error("create working directory failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := progress.NewStream(w, s.logger.Named("stream"))
	defer stream.Close()

	ctx := r.Context()
	proc := batch.NewProcessor(
		s.resolver,
		s.fetcher,
		s.clock,
		batch.Config{
			Concurrency: s.cfg.Batch.Concurrency,
			RowDelay:    s.cfg.RowDelay(),
		},
		s.logger.Named("processor"),
	)
	result := proc.Run(ctx, records, workDir, batch.EmitterFunc(stream.Progress))

	var buf bytes.Buffer
	entries, buildErr := archive.Build(workDir, &buf)
	// Working directory is gone regardless of archive outcome. A cleanup
	// failure never replaces the primary result being reported.
	if rmErr := os.RemoveAll(workDir); rmErr != nil {
		s.logger.Warn("working directory cleanup failed", zap.Error(rmErr))
	}
	if buildErr != nil {
		s.logger.Error("archive build failed", zap.Error(buildErr))
		stream.Error("Failed to create archive")
		metrics.BatchFinished("error")
		return
	}
	metrics.ArchiveBuilt(entries)

	if ctx.Err() != nil {
		// Client went away mid-batch; nobody is left to claim a token.
		metrics.BatchFinished("canceled")
		return
	}

	key, err := s.tokens.NewToken()
	if err == nil {
		err = s.store.Put(ctx, key, buf.Bytes())
	}
	if err != nil {
		s.logger.Error("archive store failed", zap.Error(err))
		stream.Error("Failed to store archive")
		metrics.BatchFinished("error")
		return
	}

	summary := publisher.BatchSummary{
		ArtifactKey: key,
		Rows:        len(records),
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		Elapsed:     result.Elapsed,
		Outcome:     "complete",
	}
	if _, pubErr := s.publisher.Publish(ctx, s.cfg.PubSub.TopicName, summary); pubErr != nil {
		s.logger.Warn("batch summary publish failed", zap.Error(pubErr))
	}

	stream.Complete("/api/download?file=" + key)
	metrics.BatchFinished("complete")
}

// downloadArchive serves an archive exactly once, then deletes it. An absent
// key is a normal outcome (already claimed or expired), answered with 404.
func (s *Server) downloadArchive(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("file")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "file parameter is required")
		return
	}
	key := artifact.SanitizeKey(raw)
	if key == "" {
		s.writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	data, err := s.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		s.logger.Error("artifact read failed", zap.String("key", key), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("archive write failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.ArtifactServed()
}
