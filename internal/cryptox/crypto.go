// Package cryptox seals chunk blobs before they are persisted to the local
// store, so partially uploaded file contents never sit on disk in the clear.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/lyceum-cloud/uplink/internal/common"
	"golang.org/x/crypto/argon2"
)

var ErrMalformedBox = errors.New("malformed sealed box")

// DeriveKey stretches the host secret into a 32-byte AES key.
func DeriveKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// Sealer encrypts and decrypts chunk blobs with AES-GCM. The same Sealer
// (same secret and salt) must be used to open what it sealed.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the data key from the host secret and salt and prepares
// the AEAD. The secret is typically generated once per installation and kept
// in the store's meta table.
func NewSealer(secret, salt []byte) (*Sealer, error) {
	block, err := aes.NewCipher(DeriveKey(secret, salt))
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plain and returns nonce||ciphertext as a single blob.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(box []byte) ([]byte, error) {
	if len(box) < s.aead.NonceSize() {
		return nil, ErrMalformedBox
	}
	nonce, ct := box[:s.aead.NonceSize()], box[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed box: %w", err)
	}
	return plain, nil
}
