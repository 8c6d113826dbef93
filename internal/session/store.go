// Package session keeps the merchant API token between runs.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filippo.io/age"
)

const ageHeader = "age-encryption.org/v1"

var (
	ErrNoToken    = errors.New("no session token")
	ErrBlankToken = errors.New("token is blank")
	ErrLocked     = errors.New("session file is encrypted and no passphrase is set")
)

// Validator checks a candidate token against the upstream API.
type Validator interface {
	ValidateToken(ctx context.Context, token string) error
}

type record struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

// Store persists the token at path. With a passphrase the file is an age
// scrypt envelope; without one it is plain JSON.
type Store struct {
	path       string
	passphrase string

	mu    sync.RWMutex
	token string
}

func NewStore(path, passphrase string) *Store {
	return &Store{path: path, passphrase: passphrase}
}

// Token returns the in-memory token, "" when signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Load reads the token from disk into memory.
func (s *Store) Load() (string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read session: %w", err)
	}

	if bytes.HasPrefix(raw, []byte(ageHeader)) {
		if s.passphrase == "" {
			return "", ErrLocked
		}
		id, err := age.NewScryptIdentity(s.passphrase)
		if err != nil {
			return "", fmt.Errorf("session identity: %w", err)
		}
		r, err := age.Decrypt(bytes.NewReader(raw), id)
		if err != nil {
			return "", fmt.Errorf("decrypt session: %w", err)
		}
		if raw, err = io.ReadAll(r); err != nil {
			return "", fmt.Errorf("decrypt session: %w", err)
		}
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("parse session: %w", err)
	}
	token := strings.TrimSpace(rec.Token)
	if token == "" {
		return "", ErrNoToken
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return token, nil
}

// Save writes token to disk and makes it current.
func (s *Store) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrBlankToken
	}
	data, err := json.Marshal(record{Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if s.passphrase != "" {
		if data, err = s.seal(data); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	rcpt, err := age.NewScryptRecipient(s.passphrase)
	if err != nil {
		return nil, fmt.Errorf("session recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, rcpt)
	if err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}
	return buf.Bytes(), nil
}

// Clear forgets the token in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

// Login validates token upstream and persists it on success.
func (s *Store) Login(ctx context.Context, v Validator, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrBlankToken
	}
	if err := v.ValidateToken(ctx, token); err != nil {
		return err
	}
	if err := s.Save(token); err != nil {
		return err
	}
	slog.InfoContext(ctx, "signed in", "path", s.path)
	return nil
}

// Logout clears the session. It fits the api client's unauthorized hook.
func (s *Store) Logout() {
	if err := s.Clear(); err != nil {
		slog.Error("failed to clear session", "error", err)
		return
	}
	slog.Info("signed out")
}
