package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/stride/pkg/adapters/memory"
	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sampleDraft() *domain.Draft {
	return &domain.Draft{
		ID:     "d-1",
		UserID: "ana",
		Inputs: &domain.PreparerData{
			AvailableTime: 45,
			LocationID:    "gym",
			HasPain:       true,
			PainDetails:   "left knee after running",
		},
		Prescription: &domain.Prescription{Type: "strength"},
		CustomName:   "Knee friendly",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func encrypted(t *testing.T, next middleware.Archive, active []byte, fallback ...[]byte) middleware.Archive {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	require.NoError(t, err)
	return mw(next)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewArchive()
	secure := encrypted(t, underlying, generateKey(t))
	ctx := context.Background()

	original := sampleDraft()
	require.NoError(t, secure.SaveDraft(ctx, original))

	// The underlying store only sees the envelope.
	stored, err := underlying.LoadDraft(ctx, "ana")
	require.NoError(t, err)
	assert.Nil(t, stored.Inputs)
	assert.Nil(t, stored.Prescription)
	assert.NotEmpty(t, stored.Sealed)
	assert.False(t, strings.Contains(stored.Sealed, "knee"))
	assert.Equal(t, original.ExpiresAt, stored.ExpiresAt)

	// The caller's draft is untouched.
	require.NotNil(t, original.Inputs)

	loaded, err := secure.LoadDraft(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, loaded.Sealed)
	require.NotNil(t, loaded.Inputs)
	assert.Equal(t, "left knee after running", loaded.Inputs.PainDetails)
	assert.Equal(t, "strength", loaded.Prescription.Type)
	assert.Equal(t, "Knee friendly", loaded.CustomName)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewArchive()
	ctx := context.Background()
	oldKey, newKey := generateKey(t), generateKey(t)

	require.NoError(t, encrypted(t, underlying, oldKey).SaveDraft(ctx, sampleDraft()))

	_, err := encrypted(t, underlying, newKey).LoadDraft(ctx, "ana")
	assert.ErrorContains(t, err, "failed to decrypt draft")

	loaded, err := encrypted(t, underlying, newKey, oldKey).LoadDraft(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, 45, loaded.Inputs.AvailableTime)
}

func TestEncryptionMiddleware_RejectsPlainDrafts(t *testing.T) {
	underlying := memory.NewArchive()
	ctx := context.Background()
	require.NoError(t, underlying.SaveDraft(ctx, sampleDraft()))

	_, err := encrypted(t, underlying, generateKey(t)).LoadDraft(ctx, "ana")
	assert.ErrorIs(t, err, middleware.ErrUnsealedDraft)

	_, err = encrypted(t, underlying, generateKey(t)).LoadDraft(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestEncryptionMiddleware_BindsUser(t *testing.T) {
	underlying := memory.NewArchive()
	ctx := context.Background()
	secure := encrypted(t, underlying, generateKey(t))
	require.NoError(t, secure.SaveDraft(ctx, sampleDraft()))

	stolen, err := underlying.LoadDraft(ctx, "ana")
	require.NoError(t, err)
	stolen.UserID = "mallory"
	require.NoError(t, underlying.SaveDraft(ctx, stolen))

	_, err = secure.LoadDraft(ctx, "mallory")
	assert.ErrorContains(t, err, "failed to decrypt draft")
}

func TestEncryptionKeys(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t), FallbackKeys: [][]byte{[]byte("old")}})
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)

	key := generateKey(t)
	decoded, err := middleware.DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, decoded)

	_, err = middleware.DecodeKey("%%%")
	assert.Error(t, err)
	_, err = middleware.DecodeKey(base64.StdEncoding.EncodeToString([]byte("too short")))
	assert.ErrorIs(t, err, middleware.ErrInvalidKey)
}
