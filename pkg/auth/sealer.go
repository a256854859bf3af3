package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedPrefix = "sealed:v1:"
	nonceSize    = 24
)

// ErrUnsealable is returned when a sealed value cannot be opened with the
// configured key.
var ErrUnsealable = errors.New("sealed value cannot be opened")

// Sealer encrypts short secrets with NaCl secretbox. Sealed values carry a
// version prefix; values without it are treated as plaintext so that
// credentials stored before a key was configured keep working.
type Sealer struct {
	key     *[32]byte
	enabled bool
}

// NewSealer derives a secretbox key from secretKey. An empty secretKey gives
// a Sealer that stores values as plaintext.
func NewSealer(secretKey string) *Sealer {
	if secretKey == "" {
		return &Sealer{}
	}

	key := sha256.Sum256([]byte(secretKey))

	return &Sealer{key: &key, enabled: true}
}

// Seal encrypts plain. Empty input stays empty.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" || !s.enabled {
		return plain, nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, s.key)

	return sealedPrefix + base64.RawStdEncoding.EncodeToString(box), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedPrefix)
	if !ok {
		return sealed, nil
	}

	if !s.enabled {
		return "", fmt.Errorf("%w: no secret key configured", ErrUnsealable)
	}

	box, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}

	if len(box) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("%w: value too short", ErrUnsealable)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])

	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrUnsealable
	}

	return string(plain), nil
}
