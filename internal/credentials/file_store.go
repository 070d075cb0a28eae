package credentials

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptSaltSz = 16
)

// ErrUndecryptable indicates the credential file exists but cannot be opened
// with the configured passphrase.
var ErrUndecryptable = errors.New("credential file cannot be decrypted")

type fileRecord struct {
	Token  string `json:"auth_token,omitempty"`
	Sealed string `json:"sealed,omitempty"`
	Salt   string `json:"salt,omitempty"`
}

// FileStore persists the credential as a small JSON document. When a
// passphrase is configured the token is sealed with XChaCha20-Poly1305 under a
// scrypt-derived key.
type FileStore struct {
	path       string
	passphrase []byte

	mu sync.Mutex
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: []byte(passphrase)}
}

// Load reads the credential from disk.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read credential file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(contents, &rec); err != nil {
		return "", fmt.Errorf("decode credential file: %w", err)
	}

	if rec.Sealed == "" {
		if rec.Token == "" {
			return "", ErrNotFound
		}
		return rec.Token, nil
	}

	token, err := s.open(rec)
	if err != nil {
		return "", err
	}
	return token, nil
}

// Save writes the credential, replacing the file atomically.
func (s *FileStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := fileRecord{Token: token}
	if len(s.passphrase) > 0 {
		sealed, err := s.seal(token)
		if err != nil {
			return err
		}
		rec = sealed
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	return nil
}

// Delete removes the credential file. A missing file is not an error.
func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *FileStore) seal(token string) (fileRecord, error) {
	salt := make([]byte, scryptSaltSz)
	if _, err := rand.Read(salt); err != nil {
		return fileRecord{}, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := s.deriveAEAD(salt)
	if err != nil {
		return fileRecord{}, err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fileRecord{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(token), []byte(Key))
	return fileRecord{
		Sealed: base64.StdEncoding.EncodeToString(sealed),
		Salt:   base64.StdEncoding.EncodeToString(salt),
	}, nil
}

func (s *FileStore) open(rec fileRecord) (string, error) {
	if len(s.passphrase) == 0 {
		return "", ErrUndecryptable
	}

	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: bad salt", ErrUndecryptable)
	}
	sealed, err := base64.StdEncoding.DecodeString(rec.Sealed)
	if err != nil {
		return "", fmt.Errorf("%w: bad payload", ErrUndecryptable)
	}

	aead, err := s.deriveAEAD(salt)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("%w: payload too short", ErrUndecryptable)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(Key))
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plain), nil
}

func (s *FileStore) deriveAEAD(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return aead, nil
}
