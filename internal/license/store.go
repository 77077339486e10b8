package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrNoRecord indicates no license record has been stored yet (first run,
// after reset, or after a tampered file was discarded).
var ErrNoRecord = errors.New("license: no stored record")

// Store is the durable single-record persistence surface supplied by the
// host environment. All license fields are written together as one record;
// no multi-key transaction is required.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// storedRecord is the on-disk envelope: the record plus an HMAC signature so
// local edits of status or expiry are detected on load.
type storedRecord struct {
	Record    Record    `json:"record"`
	SavedAt   time.Time `json:"saved_at"`
	Signature string    `json:"signature"`
}

// FileStore persists the license record as a signed JSON file with owner-only
// permissions.
type FileStore struct {
	path   string
	secret []byte
	logger *slog.Logger
}

// NewFileStore creates a file-backed store at path. The secret keys the
// tamper signature; it should be stable across restarts of the same install.
func NewFileStore(path string, secret []byte, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		secret: secret,
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Load reads and verifies the stored record. A missing, unparseable, or
// tampered file yields ErrNoRecord: local state is never partially trusted.
func (s *FileStore) Load(ctx context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNoRecord
		}
		return Record{}, fmt.Errorf("read license file: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.WarnContext(ctx, "discarding unparseable license file",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return Record{}, ErrNoRecord
	}

	expected := s.sign(stored.Record, stored.SavedAt)
	if !hmac.Equal([]byte(stored.Signature), []byte(expected)) {
		s.logger.WarnContext(ctx, "license file signature mismatch, discarding",
			slog.String("path", s.path),
		)
		return Record{}, ErrNoRecord
	}

	return stored.Record, nil
}

// Save writes the record atomically via a temp file rename.
func (s *FileStore) Save(ctx context.Context, rec Record) error {
	stored := storedRecord{
		Record:  rec,
		SavedAt: time.Now(),
	}
	stored.Signature = s.sign(stored.Record, stored.SavedAt)

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal license record: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create license dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write license file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace license file: %w", err)
	}

	s.logger.DebugContext(ctx, "license record saved",
		slog.String("path", s.path),
		slog.String("status", string(rec.Status)),
		slog.Int("size_bytes", len(data)),
	)
	return nil
}

// Clear removes the stored record if it exists.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove license file: %w", err)
	}
	return nil
}

// sign computes an HMAC-SHA256 over the canonical serialization of the
// record and its save time.
func (s *FileStore) sign(rec Record, savedAt time.Time) string {
	payload, _ := json.Marshal(rec)
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	h.Write([]byte("|" + savedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}
