package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/near-handshake/handshake-go/pkg/identity"
)

// ErrKeyMismatch is returned when a key file's public key does not match its secret key.
var ErrKeyMismatch = errors.New("key file public key does not match secret key")

// KeyFile is the on-disk node key.
type KeyFile struct {
	// AccountID is carried for compatibility and is usually empty for node keys.
	AccountID string `json:"account_id"`

	// PublicKey is "ed25519:<base58>".
	PublicKey string `json:"public_key"`

	// SecretKey is "ed25519:<base58>" of the 64 byte expanded key.
	SecretKey string `json:"secret_key"`
}

// Identity decodes and cross-checks the stored key pair.
func (k *KeyFile) Identity() (*identity.Identity, error) {
	id, err := identity.ParseSecretKey(k.SecretKey)
	if err != nil {
		return nil, err
	}
	if k.PublicKey != "" {
		pk, err := identity.ParsePublicKey(k.PublicKey)
		if err != nil {
			return nil, err
		}
		if pk != id.PublicKey() {
			return nil, ErrKeyMismatch
		}
	}
	return id, nil
}

// NewKeyFile builds the on-disk form of id.
func NewKeyFile(id *identity.Identity) *KeyFile {
	return &KeyFile{
		PublicKey: id.PublicKey().String(),
		SecretKey: id.SecretKey(),
	}
}

// KeyFileStore manages a node key file.
type KeyFileStore struct {
	mu   sync.Mutex
	path string
}

// NewKeyFileStore creates a new key file store.
func NewKeyFileStore(path string) *KeyFileStore {
	return &KeyFileStore{path: path}
}

// Path returns the file location.
func (s *KeyFileStore) Path() string {
	return s.path
}

// Save writes the key file atomically with mode 0600.
func (s *KeyFileStore) Save(kf *KeyFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".node_key-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Load reads the key file.
// Returns nil, nil if the file doesn't exist.
func (s *KeyFileStore) Load() (*KeyFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	kf := &KeyFile{}
	if err := json.Unmarshal(data, kf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return kf, nil
}

// Clear removes the key file.
func (s *KeyFileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// LoadOrGenerate returns the identity stored at path, generating and saving a
// new one from r when the file does not exist. The bool reports whether a new
// key was created.
func LoadOrGenerate(path string, r io.Reader) (*identity.Identity, bool, error) {
	store := NewKeyFileStore(path)

	kf, err := store.Load()
	if err != nil {
		return nil, false, err
	}
	if kf != nil {
		id, err := kf.Identity()
		if err != nil {
			return nil, false, fmt.Errorf("key file %s: %w", path, err)
		}
		return id, false, nil
	}

	id, err := identity.Generate(r)
	if err != nil {
		return nil, false, err
	}
	if err := store.Save(NewKeyFile(id)); err != nil {
		return nil, false, fmt.Errorf("save key file: %w", err)
	}
	return id, true, nil
}
