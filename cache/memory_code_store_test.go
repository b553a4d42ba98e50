package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmage/oauth2/domain"
)

func newTestCode(value string) *domain.AuthorizationCode {
	now := time.Now().UnixMilli()
	return &domain.AuthorizationCode{
		Code:                value,
		OAuthClientID:       "client-1",
		RedirectURI:         "https://app.example.com/cb",
		CreationTimestamp:   now,
		ExpirationTimestamp: now + (5 * time.Minute).Milliseconds(),
	}
}

func TestMemoryCodeStoreAddAndGet(t *testing.T) {
	store := NewMemoryCodeStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	code := newTestCode("c1")
	require.NoError(t, store.AddCode(ctx, code))

	err := store.AddCode(ctx, newTestCode("c1"))
	assert.ErrorIs(t, err, domain.ErrDuplicateRecord)

	got, err := store.GetCode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, code.OAuthClientID, got.OAuthClientID)

	// The store hands out copies; mutating one must not leak back.
	got.UsedTimestamp = 42
	again, err := store.GetCode(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, again.UsedTimestamp)

	_, err = store.GetCode(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestMemoryCodeStoreReplaceCode(t *testing.T) {
	store := NewMemoryCodeStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	code := newTestCode("c1")
	require.NoError(t, store.AddCode(ctx, code))

	// First writer lands.
	responded := *code
	responded.Response = &domain.AuthorizationCodeResponse{UserID: "user-1", Granted: true}
	require.NoError(t, store.ReplaceCode(ctx, code, &responded))

	// Second writer still holds the pre-response view and must lose.
	conflicting := *code
	conflicting.Response = &domain.AuthorizationCodeResponse{UserID: "user-2", Granted: true}
	err := store.ReplaceCode(ctx, code, &conflicting)
	assert.ErrorIs(t, err, domain.ErrStaleRecord)

	// A writer holding the current view succeeds.
	used := responded
	used.UsedTimestamp = time.Now().UnixMilli()
	require.NoError(t, store.ReplaceCode(ctx, &responded, &used))

	err = store.ReplaceCode(ctx, &responded, &used)
	assert.ErrorIs(t, err, domain.ErrStaleRecord)

	err = store.ReplaceCode(ctx, newTestCode("missing"), newTestCode("missing"))
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestMemoryCodeStoreDeepCopiesResponse(t *testing.T) {
	store := NewMemoryCodeStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	code := newTestCode("c1")
	require.NoError(t, store.AddCode(ctx, code))

	responded := *code
	responded.Response = &domain.AuthorizationCodeResponse{UserID: "user-1", Granted: true}
	require.NoError(t, store.ReplaceCode(ctx, code, &responded))

	// Mutating a returned response must not reach the stored record, or
	// a writer could slip past the compare-and-set.
	got, err := store.GetCode(ctx, "c1")
	require.NoError(t, err)
	got.Response.Granted = false

	stored, err := store.GetCode(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, stored.Response.Granted)

	// A writer holding the unmutated view still wins.
	used := *stored
	used.UsedTimestamp = time.Now().UnixMilli()
	require.NoError(t, store.ReplaceCode(ctx, stored, &used))
}

func TestMemoryCodeStoreGetCodesByResponder(t *testing.T) {
	store := NewMemoryCodeStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	older := newTestCode("c1")
	older.CreationTimestamp = 1
	older.Response = &domain.AuthorizationCodeResponse{UserID: "user-1", Granted: true}
	require.NoError(t, store.AddCode(ctx, older))

	newer := newTestCode("c2")
	newer.CreationTimestamp = 2
	newer.Response = &domain.AuthorizationCodeResponse{UserID: "user-1", Granted: false}
	require.NoError(t, store.AddCode(ctx, newer))

	pending := newTestCode("c3")
	require.NoError(t, store.AddCode(ctx, pending))

	foreign := newTestCode("c4")
	foreign.Response = &domain.AuthorizationCodeResponse{UserID: "user-2", Granted: true}
	require.NoError(t, store.AddCode(ctx, foreign))

	codes, err := store.GetCodesByResponder(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "c1", codes[0].Code)
	assert.Equal(t, "c2", codes[1].Code)

	none, err := store.GetCodesByResponder(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, none)
}
