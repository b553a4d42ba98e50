package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared by every repository implementation. Lookups
// return the *NotFound errors instead of a nil record; writes return
// ErrDuplicateRecord when a uniqueness constraint trips and
// ErrStaleRecord when a compare-and-set replace finds the stored record
// no longer matches the expected state.
var (
	ErrClientNotFound = errors.New("oauth client not found")
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrTokenNotFound  = errors.New("authorization token not found")
	ErrUserNotFound   = errors.New("user not found")

	ErrDuplicateRecord = errors.New("record already exists")
	ErrStaleRecord     = errors.New("record changed since it was read")
)

// ClientRepository persists OAuth client registrations. The engine uses
// only GetClient; the remaining methods serve client management.
type ClientRepository interface {
	CreateClient(ctx context.Context, client *OAuthClient) error
	GetClient(ctx context.Context, clientID string) (*OAuthClient, error)
	UpdateClient(ctx context.Context, client *OAuthClient) error
	ListClientIDs(ctx context.Context, owner string) ([]string, error)
}

// AuthorizationCodeRepository persists authorization codes keyed by their
// code value.
//
// ReplaceCode is a compare-and-set whole-record replace: it stores
// updated only if the persisted record still matches old on the mutable
// fields (response, used timestamp), and returns ErrStaleRecord
// otherwise. This is what lets two concurrent consent calls converge
// instead of silently double-writing.
type AuthorizationCodeRepository interface {
	AddCode(ctx context.Context, code *AuthorizationCode) error
	GetCode(ctx context.Context, codeValue string) (*AuthorizationCode, error)
	// GetCodesByResponder lists every code the given user has responded
	// to, oldest first.
	GetCodesByResponder(ctx context.Context, userID string) ([]*AuthorizationCode, error)
	ReplaceCode(ctx context.Context, old, updated *AuthorizationCode) error
	DeleteExpiredCodes(ctx context.Context) error
}

// TokenRepository persists authorization tokens keyed by access-token
// value and indexed by refresh-token value and by originating code value.
//
// Every token in a refresh chain carries the originating code value;
// GetTokenByCode resolves to the head of the chain, the oldest token by
// creation timestamp. AddToken must enforce uniqueness of access-token
// and refresh-token values, returning ErrDuplicateRecord on a collision.
// ReplaceToken is a compare-and-set replace on the mutable fields
// (status, next token): replacing an already-refreshed token returns
// ErrStaleRecord, which is what closes the duplicate-successor race in
// refresh rotation.
type TokenRepository interface {
	AddToken(ctx context.Context, token *AuthorizationToken) error
	GetToken(ctx context.Context, accessToken string) (*AuthorizationToken, error)
	GetTokenByRefreshToken(ctx context.Context, refreshToken string) (*AuthorizationToken, error)
	GetTokenByCode(ctx context.Context, codeValue string) (*AuthorizationToken, error)
	ReplaceToken(ctx context.Context, old, updated *AuthorizationToken) error
	DeleteExpiredTokens(ctx context.Context) error
}

// SchemaRegistry answers whether the stream or survey a scope references
// actually exists. It is a read-only collaborator owned by the data
// platform, not by this subsystem.
type SchemaRegistry interface {
	SchemaExists(ctx context.Context, scope Scope) (bool, error)
}

// UserRepository resolves the users who respond to consent prompts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}
