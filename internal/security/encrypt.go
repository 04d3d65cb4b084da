package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/fernet/fernet-go"
)

var (
	ErrEmptyKey      = errors.New("encryption key must not be empty")
	ErrUndecryptable = errors.New("failed to decrypt message body")
)

// Encryptor seals chat message bodies at rest with AES-256-GCM. Bodies
// written by older deployments as Fernet tokens can still be opened when the
// matching keys are configured.
type Encryptor struct {
	aead       cipher.AEAD
	fernetKeys []*fernet.Key
}

// NewEncryptor derives the AES key from secret with SHA-256, so secrets of
// any length work. secret itself and every legacy key that parses as a Fernet
// key are accepted for decryption.
func NewEncryptor(secret string, legacyKeys []string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrEmptyKey
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	keys := make([]*fernet.Key, 0, len(legacyKeys)+1)
	for _, raw := range append([]string{secret}, legacyKeys...) {
		if fk := parseFernetKey(raw); fk != nil {
			keys = append(keys, fk)
		}
	}
	return &Encryptor{aead: aead, fernetKeys: keys}, nil
}

func parseFernetKey(raw string) *fernet.Key {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	key, err := fernet.DecodeKey(trimmed)
	if err != nil {
		return nil
	}
	return key
}

func (e *Encryptor) Encrypt(plain string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encryptor) Decrypt(enc string) (string, error) {
	n := e.aead.NonceSize()
	if raw, err := base64.StdEncoding.DecodeString(enc); err == nil && len(raw) >= n {
		if plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil); err == nil {
			return string(plain), nil
		}
	}

	if len(e.fernetKeys) > 0 {
		if plain := fernet.VerifyAndDecrypt([]byte(enc), 0*time.Second, e.fernetKeys); plain != nil {
			return string(plain), nil
		}
	}
	return "", ErrUndecryptable
}

// Open decrypts enc and falls back to the stored text for rows that were
// never encrypted.
func (e *Encryptor) Open(enc string) string {
	plain, err := e.Decrypt(enc)
	if err != nil {
		return enc
	}
	return plain
}
