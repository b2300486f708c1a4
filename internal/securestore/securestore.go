// Package securestore keeps small secrets (the session object) on the device.
// Values are sealed with NaCl secretbox under a key derived from a random
// device key that never leaves the workspace directory.
package securestore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"

	"safeplate/internal/repo"
)

const (
	deviceKeyFile = "device.key"
	deviceKeyLen  = 32
	nonceLen      = 24
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("secure item not found")
	// ErrTampered is returned when a sealed value fails authentication.
	ErrTampered = errors.New("secure item failed authentication")
)

// Store is the secure key-value storage used for the session.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Sealed stores secretbox-sealed values in the local database.
type Sealed struct {
	Repo repo.Repo
	key  [32]byte
}

// Open loads (or creates) the device key in dir and returns a sealed store.
func Open(dir string, r repo.Repo) (*Sealed, error) {
	master, err := loadOrCreateDeviceKey(filepath.Join(dir, deviceKeyFile))
	if err != nil {
		return nil, err
	}
	return NewSealed(master, r)
}

// NewSealed derives the sealing key from master.
func NewSealed(master []byte, r repo.Repo) (*Sealed, error) {
	if len(master) < 16 {
		return nil, fmt.Errorf("device key too short: %d bytes", len(master))
	}
	s := &Sealed{Repo: r}
	h := hkdf.New(sha256.New, master, nil, []byte("safeplate-secure-store"))
	if _, err := io.ReadFull(h, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	return s, nil
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	it, err := s.Repo.GetSealed(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(it.Nonce) != nonceLen {
		return nil, ErrTampered
	}
	var nonce [nonceLen]byte
	copy(nonce[:], it.Nonce)
	out, ok := secretbox.Open(nil, it.Ciphertext, &nonce, &s.key)
	if !ok {
		return nil, ErrTampered
	}
	value, ok := unbind(key, out)
	if !ok {
		return nil, ErrTampered
	}
	return value, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nil, bind(key, value), &nonce, &s.key)
	return s.Repo.PutSealed(ctx, repo.SealedItem{Key: key, Nonce: nonce[:], Ciphertext: sealed})
}

// bind prefixes value with the length-prefixed key so a row moved to
// another key, including a prefix of the original, fails to open.
func bind(key string, value []byte) []byte {
	plain := binary.AppendUvarint(nil, uint64(len(key)))
	plain = append(plain, key...)
	return append(plain, value...)
}

func unbind(key string, plain []byte) ([]byte, bool) {
	n, size := binary.Uvarint(plain)
	if size <= 0 || n != uint64(len(key)) {
		return nil, false
	}
	rest := plain[size:]
	if uint64(len(rest)) < n || string(rest[:n]) != key {
		return nil, false
	}
	return rest[n:], true
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.Repo.DeleteSealed(ctx, key)
}

func loadOrCreateDeviceKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != deviceKeyLen {
			return nil, fmt.Errorf("device key %s is corrupt (%d bytes)", path, len(data))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	key := make([]byte, deviceKeyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate device key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write device key: %w", err)
	}
	return key, nil
}

// Memory is an in-process Store, used in tests and when no workspace is available.
type Memory struct {
	mu    sync.Mutex
	items map[string][]byte
	// FailDelete makes Delete return this error, for exercising cleanup paths.
	FailDelete error
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	delete(m.items, key)
	return nil
}
