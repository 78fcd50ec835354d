// Package crypto seals ledger snapshots at rest with a passphrase:
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the OWASP-recommended minimum for HMAC-SHA256.
	DefaultIterations = 480_000
	minIterations     = 1_000
	saltLen           = 16
	aesKeyLen         = 32
	envelopeVersion   = 1
)

// ErrWrongPassphrase is returned when authentication of sealed data fails.
var ErrWrongPassphrase = errors.New("crypto: wrong passphrase or corrupted data")

// envelope is the JSON format of sealed data.
type envelope struct {
	Version    int    `json:"sealed_version"`
	Iterations int    `json:"kdf_iterations"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Sealer encrypts and decrypts blobs with one passphrase.
type Sealer struct {
	passphrase []byte
	iterations int
}

// NewSealer creates a Sealer. iterations <= 0 selects DefaultIterations.
func NewSealer(passphrase string, iterations int) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if iterations < minIterations {
		return nil, fmt.Errorf("crypto: %d kdf iterations is below the minimum %d", iterations, minIterations)
	}
	return &Sealer{passphrase: []byte(passphrase), iterations: iterations}, nil
}

func (s *Sealer) gcm(salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key(s.passphrase, salt, iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under a fresh salt and nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := s.gcm(salt, s.iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.Marshal(envelope{
		Version:    envelopeVersion,
		Iterations: s.iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	})
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("crypto: parsing sealed envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("crypto: unsupported sealed version %d", env.Version)
	}
	if env.Iterations < minIterations {
		return nil, fmt.Errorf("crypto: sealed with %d kdf iterations: %w", env.Iterations, ErrWrongPassphrase)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := s.gcm(salt, env.Iterations)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("crypto: nonce length %d: %w", len(nonce), ErrWrongPassphrase)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// IsSealed reports whether data looks like a Seal envelope.
func IsSealed(data []byte) bool {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return false
	}
	var probe struct {
		Version    int    `json:"sealed_version"`
		Ciphertext string `json:"ciphertext"`
	}
	return json.Unmarshal(data, &probe) == nil && probe.Version > 0 && probe.Ciphertext != ""
}
