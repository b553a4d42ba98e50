package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ohmage/oauth2/domain"
)

func newTestToken(access, refresh, code string, createdAt int64) *domain.AuthorizationToken {
	return &domain.AuthorizationToken{
		AccessToken:         access,
		RefreshToken:        refresh,
		UserID:              "user-1",
		AuthorizationCode:   code,
		Status:              domain.TokenStatusActive,
		CreationTimestamp:   createdAt,
		ExpirationTimestamp: createdAt + (30 * time.Minute).Milliseconds(),
	}
}

func TestMemoryTokenStoreAddAndLookups(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	token := newTestToken("a1", "r1", "c1", 1000)
	require.NoError(t, store.AddToken(ctx, token))

	err := store.AddToken(ctx, newTestToken("a1", "r2", "", 1000))
	assert.ErrorIs(t, err, domain.ErrDuplicateRecord)
	err = store.AddToken(ctx, newTestToken("a2", "r1", "", 1000))
	assert.ErrorIs(t, err, domain.ErrDuplicateRecord)

	got, err := store.GetToken(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RefreshToken)

	got, err = store.GetTokenByRefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccessToken)

	_, err = store.GetToken(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = store.GetTokenByRefreshToken(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestMemoryTokenStoreGetTokenByCode(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	// A refresh chain: all three tokens carry the originating code.
	require.NoError(t, store.AddToken(ctx, newTestToken("a1", "r1", "c1", 1000)))
	require.NoError(t, store.AddToken(ctx, newTestToken("a2", "r2", "c1", 2000)))
	require.NoError(t, store.AddToken(ctx, newTestToken("a3", "r3", "c1", 3000)))

	head, err := store.GetTokenByCode(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a1", head.AccessToken)

	_, err = store.GetTokenByCode(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}

func TestMemoryTokenStoreReplaceToken(t *testing.T) {
	store := NewMemoryTokenStore(time.Hour)
	defer store.Close()
	ctx := context.Background()

	token := newTestToken("a1", "r1", "c1", 1000)
	require.NoError(t, store.AddToken(ctx, token))

	rotated := *token
	rotated.Status = domain.TokenStatusRefreshed
	rotated.NextToken = "a2"
	require.NoError(t, store.ReplaceToken(ctx, token, &rotated))

	// A concurrent rotation still holding the active view loses.
	other := *token
	other.Status = domain.TokenStatusRefreshed
	other.NextToken = "a3"
	err := store.ReplaceToken(ctx, token, &other)
	assert.ErrorIs(t, err, domain.ErrStaleRecord)

	stored, err := store.GetToken(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.NextToken)

	err = store.ReplaceToken(ctx, newTestToken("missing", "r9", "", 0), &rotated)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
}
