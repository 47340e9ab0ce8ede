package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/stride/pkg/domain"
)

// EncryptionConfig holds the draft keys. All keys are 32 bytes (AES-256).
type EncryptionConfig struct {
	// ActiveKey seals new drafts and is tried first when opening.
	ActiveKey []byte

	// FallbackKeys are retired keys still accepted when opening, so keys can
	// be rotated without losing stored drafts.
	FallbackKeys [][]byte
}

var (
	// ErrInvalidKey is returned for keys that are not 32 bytes long.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")
	// ErrUnsealedDraft is returned when encryption is on but a stored draft
	// carries no sealed payload.
	ErrUnsealedDraft = errors.New("draft is missing encrypted data envelope")
)

// sealedDraft is the plaintext sealed into Draft.Sealed.
type sealedDraft struct {
	Inputs       *domain.PreparerData `json:"preparerContext"`
	Prescription *domain.Prescription `json:"prescription,omitempty"`
}

type encryptionMiddleware struct {
	Archive
	keys keyring
}

// NewEncryptionMiddleware seals the inputs and prescription of saved drafts
// with AES-GCM. The owning user id is bound as additional data, so a sealed
// payload moved to another user's draft does not open. Archive records pass
// through.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	keys, err := newKeyring(config.ActiveKey, config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	return func(next Archive) Archive {
		return &encryptionMiddleware{Archive: next, keys: keys}
	}, nil
}

// DecodeKey parses a base64 encoded AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func (m *encryptionMiddleware) SaveDraft(ctx context.Context, draft *domain.Draft) error {
	plain, err := json.Marshal(sealedDraft{Inputs: draft.Inputs, Prescription: draft.Prescription})
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	sealed, err := m.keys.seal(plain, []byte(draft.UserID))
	if err != nil {
		return fmt.Errorf("failed to encrypt draft: %w", err)
	}

	// Metadata stays in clear for expiry and listing.
	envelope := *draft
	envelope.Inputs = nil
	envelope.Prescription = nil
	envelope.Sealed = base64.StdEncoding.EncodeToString(sealed)
	return m.Archive.SaveDraft(ctx, &envelope)
}

func (m *encryptionMiddleware) LoadDraft(ctx context.Context, userID string) (*domain.Draft, error) {
	envelope, err := m.Archive.LoadDraft(ctx, userID)
	if err != nil {
		return nil, err
	}
	if envelope.Sealed == "" {
		return nil, ErrUnsealedDraft
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := m.keys.open(sealed, []byte(envelope.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt draft: %w", err)
	}

	var payload sealedDraft
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted draft: %w", err)
	}

	out := *envelope
	out.Sealed = ""
	out.Inputs = payload.Inputs
	out.Prescription = payload.Prescription
	return &out, nil
}

// keyring holds one AEAD per key, the active key first.
type keyring []cipher.AEAD

func newKeyring(active []byte, fallback [][]byte) (keyring, error) {
	keys := make(keyring, 0, 1+len(fallback))
	for _, k := range append([][]byte{active}, fallback...) {
		if len(k) != 32 {
			return nil, ErrInvalidKey
		}
		block, err := aes.NewCipher(k)
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		keys = append(keys, aead)
	}
	return keys, nil
}

// seal returns nonce||ciphertext under the active key.
func (k keyring) seal(plain, ad []byte) ([]byte, error) {
	aead := k[0]
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, ad), nil
}

func (k keyring) open(sealed, ad []byte) ([]byte, error) {
	for _, aead := range k {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], ad); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
