package resettoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/storefront/pkg/metrics"
)

// fileRecord is the on-disk shape of a token entry; the file holds a JSON object keyed
// by token.
type fileRecord struct {
	Email      string `json:"email"`
	CustomerID string `json:"customerId"`
	Timestamp  int64  `json:"timestamp"`
}

// FileStore keeps tokens in memory and mirrors the whole map to a JSON file after every
// mutation. Each Get merges the file back in so tokens issued by another process are
// visible.
type FileStore struct {
	path string
	opts options

	mu      sync.Mutex
	entries map[string]fileRecord
}

// NewFileStore builds a FileStore and performs the initial load from path.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("resettoken: file path is required")
	}

	store := &FileStore{
		path:    path,
		opts:    applyOptions("resettoken.file", opts),
		entries: make(map[string]fileRecord),
	}

	store.mu.Lock()
	store.load()
	store.mu.Unlock()

	return store, nil
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load merges the file contents into memory. A missing or malformed file leaves the
// in-memory map untouched.
func (s *FileStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
}

// Put records the token and persists the map. When persistence is strict and the
// write fails, the token is dropped from memory as well.
func (s *FileStore) Put(_ context.Context, token Token) error {
	if err := token.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[token.Token]
	s.entries[token.Token] = fileRecord{
		Email:      token.Email,
		CustomerID: token.CustomerID,
		Timestamp:  token.IssuedAt.UnixMilli(),
	}
	if err := s.persist(); err != nil {
		// strict mode: a token that was not written must not be redeemable here either
		if existed {
			s.entries[token.Token] = previous
		} else {
			delete(s.entries, token.Token)
		}
		return err
	}
	return nil
}

// Get reloads the file, drops expired entries and returns the live record for token.
func (s *FileStore) Get(_ context.Context, token string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	if _, err := s.sweep(); err != nil {
		return nil, err
	}

	record, ok := s.entries[token]
	if !ok {
		return nil, ErrNotFound
	}

	result := record.token(token)
	return &result, nil
}

// Delete removes token. Deleting an unknown token is a no-op.
func (s *FileStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[token]; !ok {
		return nil
	}
	delete(s.entries, token)
	return s.persist()
}

// DeleteByCustomer removes every token issued to customerID and returns how many were
// removed.
func (s *FileStore) DeleteByCustomer(_ context.Context, customerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()

	removed := 0
	for token, record := range s.entries {
		if record.CustomerID == customerID {
			delete(s.entries, token)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persist()
}

// Sweep reloads the file and removes expired tokens.
func (s *FileStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.load()
	return s.sweep()
}

// Len reports the number of tokens currently held in memory, expired ones included.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *FileStore) sweep() (int, error) {
	now := s.opts.clock()

	removed := 0
	for token, record := range s.entries {
		if record.token(token).Expired(now, s.opts.ttl) {
			delete(s.entries, token)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	metrics.TokensSwept.Add(float64(removed))
	return removed, s.persist()
}

func (s *FileStore) load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.opts.log.Warn("failed to read reset token file", zap.String("path", s.path), zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}

	var loaded map[string]fileRecord
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.opts.log.Warn("ignoring malformed reset token file", zap.String("path", s.path), zap.Error(err))
		return
	}

	for token, record := range loaded {
		if token == "" {
			continue
		}
		s.entries[token] = record
	}
}

// persist rewrites the whole file through a temp file and rename. Failures are
// swallowed unless strict durability was requested.
func (s *FileStore) persist() error {
	err := s.writeFile()
	if err == nil {
		return nil
	}

	metrics.TokenStoreFailures.WithLabelValues("file").Inc()
	s.opts.log.Error("failed to persist reset tokens",
		zap.String("path", s.path),
		zap.Int("tokens", len(s.entries)),
		zap.Error(err),
	)

	if s.opts.bestEffort {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersist, err)
}

func (s *FileStore) writeFile() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (r fileRecord) token(token string) Token {
	return Token{
		Token:      token,
		Email:      r.Email,
		CustomerID: r.CustomerID,
		IssuedAt:   time.UnixMilli(r.Timestamp),
	}
}
