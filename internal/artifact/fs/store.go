// Package fs implements the artifact store on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagepack/internal/artifact"
)

const artifactSuffix = ".zip"

// Config captures the parameters for the filesystem artifact store.
type Config struct {
	// BaseDir is the shared directory holding finished archives.
	BaseDir string `mapstructure:"base_dir"`
	// TTL is how long an unclaimed artifact survives before the sweep
	// removes it. Zero disables expiry.
	TTL time.Duration `mapstructure:"ttl"`
	// SweepInterval is the janitor cadence.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Store writes archives to BaseDir, serves each at most once, and expires
// unclaimed ones via a background sweep.
type Store struct {
	cfg    Config
	logger *zap.Logger
}

// New validates the base directory and returns a Store.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case err != nil && os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Store{cfg: cfg, logger: logger}, nil
}

// Put writes the archive and verifies the result exists with nonzero size
// before reporting success.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verify artifact: %w", err)
	}
	if info.Size() == 0 && len(data) > 0 {
		return fmt.Errorf("artifact %s written empty", key)
	}
	return nil
}

// Get reads the archive and deletes it. Deletion failure is swallowed; the
// read already succeeded and cleanup must never mask that.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, artifact.ErrNotFound
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, artifact.ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	if err := os.Remove(path); err != nil {
		s.logger.Warn("artifact delete after read failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return data, nil
}

// StartSweeper runs the TTL janitor until ctx is canceled. No-op when expiry
// is disabled.
func (s *Store) StartSweeper(ctx context.Context) {
	if s.cfg.TTL <= 0 {
		return
	}
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		s.logger.Warn("artifact sweep failed", zap.Error(err))
		return
	}
	cutoff := time.Now().Add(-s.cfg.TTL)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), artifactSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.BaseDir, entry.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("expired artifacts removed", zap.Int("count", removed))
	}
}

func (s *Store) pathFor(key string) (string, error) {
	clean := artifact.SanitizeKey(key)
	if clean == "" {
		return "", fmt.Errorf("empty artifact key")
	}
	base := filepath.Clean(s.cfg.BaseDir)
	full := filepath.Clean(filepath.Join(base, clean+artifactSuffix))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errors.New("path traversal detected")
	}
	return full, nil
}
