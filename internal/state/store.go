package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPath is used when no state path is configured.
const DefaultPath = "state.json"

// Store reads and writes the state document at a single path. It assumes it is
// the only writer.
type Store struct {
	path     string
	lookback time.Duration
	logger   zerolog.Logger
}

// NewStore constructs a file-backed Store.
func NewStore(path string, lookback time.Duration, logger zerolog.Logger) *Store {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &Store{
		path:     path,
		lookback: lookback,
		logger:   logger.With().Str("component", "state_store").Str("path", path).Logger(),
	}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted document, or the default document when the file is
// missing or cannot be interpreted. It never fails.
func (s *Store) Load() Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info().Msg("state file not found; starting flat with empty history")
		} else {
			s.logger.Warn().Err(err).Msg("state file unreadable; starting from defaults")
		}
		return NewDocument(s.lookback)
	}

	doc, mig, err := decode(data, s.lookback)
	if err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(data)).Msg("state file malformed; starting from defaults")
		return NewDocument(s.lookback)
	}

	if mig.changed() {
		event := s.logger.Warn().
			Strs("filled", mig.filled).
			Int("dropped_samples", mig.dropped)
		if mig.reset != "" {
			event = event.Str("position_reset", mig.reset)
		}
		event.Msg("state document migrated")
	}

	s.logger.Info().
		Bool("position_open", doc.Position.IsOpen()).
		Int("history", doc.History.Len()).
		Msg("state loaded")
	return doc
}

// Save replaces the document on disk atomically.
func (s *Store) Save(doc Document) error {
	payload, err := json.MarshalIndent(encode(doc), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state document: %w", err)
	}
	if err := writeFileAtomic(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("write state document: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs it and
// renames it over path, then syncs the directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	// best-effort on platforms where directories cannot be synced
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
