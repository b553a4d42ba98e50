package oauth2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ohmage/oauth2/domain"
	autherrors "github.com/ohmage/oauth2/errors"
	"github.com/ohmage/oauth2/internal/metrics"
)

const (
	// DefaultCodeTTL is how long an authorization code may be exchanged
	// after issuance.
	DefaultCodeTTL = 5 * time.Minute
	// DefaultTokenTTL is the lifetime of an access token.
	DefaultTokenTTL = 30 * time.Minute
)

// AuthorizationEngine implements the OAuth2 authorization-code and token
// lifecycle: issuing codes, recording a single consent decision per code,
// exchanging a code for a token exactly once, and rotating refresh tokens
// through a single-use chain.
//
// The engine holds no mutable state of its own. All state lives in the
// injected stores, and every public operation runs as an independent unit
// of work; concurrent calls converge through the stores' compare-and-set
// replace semantics.
type AuthorizationEngine struct {
	clients  domain.ClientRepository
	codes    domain.AuthorizationCodeRepository
	tokens   domain.TokenRepository
	schemas  domain.SchemaRegistry
	codeTTL  time.Duration
	tokenTTL time.Duration
	now      func() time.Time
}

// EngineOption customizes an AuthorizationEngine.
type EngineOption func(*AuthorizationEngine)

// WithCodeTTL overrides the authorization-code lifetime.
func WithCodeTTL(ttl time.Duration) EngineOption {
	return func(e *AuthorizationEngine) { e.codeTTL = ttl }
}

// WithTokenTTL overrides the access-token lifetime.
func WithTokenTTL(ttl time.Duration) EngineOption {
	return func(e *AuthorizationEngine) { e.tokenTTL = ttl }
}

// NewAuthorizationEngine creates an engine on top of the given stores.
func NewAuthorizationEngine(
	clients domain.ClientRepository,
	codes domain.AuthorizationCodeRepository,
	tokens domain.TokenRepository,
	schemas domain.SchemaRegistry,
	opts ...EngineOption,
) *AuthorizationEngine {
	e := &AuthorizationEngine{
		clients:  clients,
		codes:    codes,
		tokens:   tokens,
		schemas:  schemas,
		codeTTL:  DefaultCodeTTL,
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IssueCode validates the request and persists a new authorization code.
// The returned code value is what the adapter embeds in the consent
// redirect. The supplied redirect URI, when present, must be absolute and
// fragment-free; when absent the client's registered default is used.
func (e *AuthorizationEngine) IssueCode(
	ctx context.Context,
	clientID string,
	scopeValues []string,
	redirectURI string,
	state string,
) (string, error) {
	client, err := e.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return "", autherrors.NewNotFound("the OAuth client is unknown")
		}
		return "", fmt.Errorf("retrieving client: %w", err)
	}

	scopes, err := domain.ParseScopes(scopeValues)
	if err != nil {
		return "", autherrors.NewInvalidArgument("invalid scope: %v", err)
	}
	for _, scope := range scopes {
		exists, err := e.schemas.SchemaExists(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("checking schema existence: %w", err)
		}
		if !exists {
			return "", autherrors.NewInvalidArgument("the schema is unknown: %s", scope)
		}
	}

	validatedURI := client.RedirectURI
	if redirectURI != "" {
		validatedURI, err = ValidateRedirectURI(redirectURI)
		if err != nil {
			return "", autherrors.NewInvalidArgument("the redirect URI is invalid: %v", err)
		}
	}

	now := e.now()
	code := &domain.AuthorizationCode{
		Code:                NewOpaqueToken(),
		OAuthClientID:       client.ID,
		Scopes:              scopes,
		RedirectURI:         validatedURI,
		State:               state,
		CreationTimestamp:   now.UnixMilli(),
		ExpirationTimestamp: now.Add(e.codeTTL).UnixMilli(),
	}
	if err := e.codes.AddCode(ctx, code); err != nil {
		return "", fmt.Errorf("storing authorization code: %w", err)
	}

	log.Debug().
		Str("client_id", client.ID).
		Int("scopes", len(scopes)).
		Msg("Issued authorization code")
	metrics.CodesIssued()

	return code.Code, nil
}

// RecordConsent attaches the responding user's decision to a code. The
// decision is recorded at most once per code: replaying the identical
// decision is a no-op, while a response from a different user or with a
// flipped granted flag is rejected. The used timestamp is not touched
// here; that happens only at exchange.
func (e *AuthorizationEngine) RecordConsent(
	ctx context.Context,
	codeValue string,
	userID string,
	granted bool,
) error {
	if userID == "" {
		return autherrors.NewAuthentication("no responding user was given")
	}

	code, err := e.getCode(ctx, codeValue)
	if err != nil {
		return err
	}
	if code.Expired(e.now().UnixMilli()) {
		return autherrors.NewInvalidArgument("the code has expired")
	}

	if code.Response == nil {
		updated := *code
		updated.Response = &domain.AuthorizationCodeResponse{
			UserID:            userID,
			Granted:           granted,
			CreationTimestamp: e.now().UnixMilli(),
		}

		err = e.codes.ReplaceCode(ctx, code, &updated)
		switch {
		case err == nil:
			metrics.ConsentsRecorded(granted)
			return nil
		case errors.Is(err, domain.ErrStaleRecord):
			// A concurrent call attached a response first. Re-read and
			// fall through to the conflict check so identical decisions
			// converge.
			code, err = e.getCode(ctx, codeValue)
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("storing consent response: %w", err)
		}
	}

	response := code.Response
	if response == nil || response.UserID == "" {
		return autherrors.NewIllegalState("the code %q has a response with no responder", codeValue)
	}
	if response.UserID != userID {
		return autherrors.NewInvalidArgument("another user already responded to this request")
	}
	if response.Granted != granted {
		return autherrors.NewInvalidArgument(
			"the user has already responded to this request with a different answer")
	}

	// The same user replaying the same decision; nothing to do.
	return nil
}

// RevokeConsent lets the responding user invalidate a decision they
// previously recorded, by stamping the response's invalidation timestamp.
// Only the original responder may revoke, and only once.
func (e *AuthorizationEngine) RevokeConsent(ctx context.Context, codeValue, userID string) error {
	if userID == "" {
		return autherrors.NewAuthentication("no requesting user was given")
	}

	code, err := e.getCode(ctx, codeValue)
	if err != nil {
		return err
	}
	if code.Response == nil {
		return autherrors.NewInvalidArgument("the code has not been responded to")
	}
	if code.Response.UserID != userID {
		return autherrors.NewInvalidArgument("the requesting user is not the responder for this code")
	}
	if code.Response.Invalidated() {
		return autherrors.NewInvalidArgument("the response has already been invalidated")
	}

	updated := *code
	response := *code.Response
	response.InvalidationTimestamp = e.now().UnixMilli()
	updated.Response = &response

	if err := e.codes.ReplaceCode(ctx, code, &updated); err != nil {
		if errors.Is(err, domain.ErrStaleRecord) {
			return autherrors.NewInvalidArgument("the response has already been invalidated")
		}
		return fmt.Errorf("storing invalidated response: %w", err)
	}
	return nil
}

// GetCode retrieves a code for inspection. Once a code has been responded
// to, only the responder may read it; before that it is visible to anyone
// holding the code value.
func (e *AuthorizationEngine) GetCode(
	ctx context.Context,
	codeValue string,
	requestingUserID string,
) (*domain.AuthorizationCode, error) {
	code, err := e.getCode(ctx, codeValue)
	if err != nil {
		return nil, err
	}
	if code.Response != nil && code.Response.UserID != requestingUserID {
		return nil, autherrors.NewInvalidArgument("the requesting user is not the responder for this code")
	}
	return code, nil
}

// GetCodesByResponder lists every code the requesting user has responded
// to, oldest first. Codes without a response never appear here; they are
// only reachable by value through GetCode.
func (e *AuthorizationEngine) GetCodesByResponder(
	ctx context.Context,
	userID string,
) ([]*domain.AuthorizationCode, error) {
	if userID == "" {
		return nil, autherrors.NewAuthentication("no requesting user was given")
	}
	codes, err := e.codes.GetCodesByResponder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing authorization codes: %w", err)
	}
	return codes, nil
}

// ExchangeCode trades an authorization code for a token, exactly once.
// A retried exchange returns the originally minted token unchanged; once
// that token has been refreshed the exchange is rejected, because the
// token it would return has been superseded.
func (e *AuthorizationEngine) ExchangeCode(
	ctx context.Context,
	clientID string,
	clientSecret string,
	codeValue string,
	redirectURI string,
) (*domain.AuthorizationToken, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	code, err := e.getCode(ctx, codeValue)
	if err != nil {
		return nil, err
	}
	if code.OAuthClientID != client.ID {
		return nil, autherrors.NewInvalidArgument("this code belongs to a different OAuth client")
	}
	if code.Expired(e.now().UnixMilli()) {
		return nil, autherrors.NewInvalidArgument("the code has expired")
	}

	if redirectURI == "" {
		if code.RedirectURI != client.RedirectURI {
			return nil, autherrors.NewInvalidArgument(
				"the code was issued with a non-default redirect URI, but this call did not provide one")
		}
	} else if redirectURI != code.RedirectURI {
		return nil, autherrors.NewInvalidArgument(
			"the given redirect URI does not match the code's redirect URI")
	}

	response := code.Response
	if response == nil {
		return nil, autherrors.NewInvalidArgument("the user has not yet responded")
	}
	if response.UserID == "" {
		return nil, autherrors.NewIllegalState("the code %q has a response with no responder", codeValue)
	}
	if !response.Granted {
		return nil, autherrors.NewInvalidArgument("the user declined the request")
	}

	if code.UsedTimestamp == 0 {
		// Claim the code before minting: setting the used timestamp via
		// compare-and-set means at most one caller ever mints a token
		// for this code, no matter how the calls interleave.
		updated := *code
		updated.UsedTimestamp = e.now().UnixMilli()

		err = e.codes.ReplaceCode(ctx, code, &updated)
		switch {
		case err == nil:
			token := e.mintToken(response.UserID, code.Scopes, code.Code)
			if err := e.tokens.AddToken(ctx, token); err != nil {
				// Release the claim so a retry can mint again instead of
				// finding a used code with no token behind it.
				if undoErr := e.codes.ReplaceCode(ctx, &updated, code); undoErr != nil {
					log.Error().Err(undoErr).
						Str("client_id", client.ID).
						Msg("Failed to release code claim after token store failure")
				}
				return nil, fmt.Errorf("storing authorization token: %w", err)
			}
			metrics.TokensExchanged()
			log.Debug().
				Str("client_id", client.ID).
				Str("user_id", response.UserID).
				Msg("Exchanged authorization code for a token")
			return token, nil
		case errors.Is(err, domain.ErrStaleRecord):
			// Another exchange claimed the code first; fall through and
			// return whatever it minted.
		default:
			return nil, fmt.Errorf("marking code as used: %w", err)
		}
	}

	token, err := e.tokens.GetTokenByCode(ctx, code.Code)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			// The claiming call has not persisted its token yet.
			return nil, fmt.Errorf("the code %q is claimed but its token is not yet visible", codeValue)
		}
		return nil, fmt.Errorf("retrieving token for code: %w", err)
	}
	if token.Refreshed() {
		return nil, autherrors.NewInvalidArgument(
			"this code has already been used to create a token, and that token has already been refreshed")
	}
	return token, nil
}

// Refresh rotates a token one hop: the presented token's successor is
// minted once and every caller racing on the same predecessor observes
// that same successor. A token whose successor has itself been refreshed
// can no longer be presented here; clients must always use the most
// recently issued refresh token.
func (e *AuthorizationEngine) Refresh(
	ctx context.Context,
	clientID string,
	clientSecret string,
	refreshToken string,
) (*domain.AuthorizationToken, error) {
	client, err := e.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	token, err := e.tokens.GetTokenByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil, autherrors.NewInvalidArgument("the token is unknown")
		}
		return nil, fmt.Errorf("retrieving token: %w", err)
	}

	if token.AuthorizationCode == "" {
		return nil, autherrors.NewInvalidArgument(
			"this token was not issued via an authorization code, so it cannot be refreshed via this call")
	}

	code, err := e.codes.GetCode(ctx, token.AuthorizationCode)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return nil, autherrors.NewIllegalState(
				"the originating code for token is missing")
		}
		return nil, fmt.Errorf("retrieving originating code: %w", err)
	}
	if code.OAuthClientID != client.ID {
		return nil, autherrors.NewInvalidArgument("this code belongs to a different OAuth client")
	}

	if !token.Refreshed() {
		successor := e.mintToken(token.UserID, token.Scopes, token.AuthorizationCode)

		// Point the predecessor at the successor first, conditional on
		// it still being active. Whoever wins this compare-and-set is
		// the only caller that will persist a successor.
		updated := *token
		updated.Status = domain.TokenStatusRefreshed
		updated.NextToken = successor.AccessToken

		err = e.tokens.ReplaceToken(ctx, token, &updated)
		switch {
		case err == nil:
			if err := e.tokens.AddToken(ctx, successor); err != nil {
				log.Error().Err(err).
					Str("client_id", client.ID).
					Msg("Failed to persist successor token after claiming rotation")
				// Restore the predecessor so a retry can rotate again
				// instead of chasing a successor that was never stored.
				if undoErr := e.tokens.ReplaceToken(ctx, &updated, token); undoErr != nil {
					log.Error().Err(undoErr).
						Str("client_id", client.ID).
						Msg("Failed to restore predecessor after successor store failure")
				}
				return nil, fmt.Errorf("storing successor token: %w", err)
			}
			metrics.TokensRefreshed()
			return successor, nil
		case errors.Is(err, domain.ErrStaleRecord):
			// A concurrent refresh rotated this token first; follow the
			// pointer it installed.
			token, err = e.tokens.GetTokenByRefreshToken(ctx, refreshToken)
			if err != nil {
				return nil, fmt.Errorf("re-reading rotated token: %w", err)
			}
		default:
			return nil, fmt.Errorf("marking token as refreshed: %w", err)
		}
	}

	successor, err := e.tokens.GetToken(ctx, token.NextToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			// The claiming call has not persisted the successor yet.
			return nil, fmt.Errorf("token rotation in progress; successor not yet visible")
		}
		return nil, fmt.Errorf("retrieving successor token: %w", err)
	}
	if successor.Refreshed() {
		return nil, autherrors.NewInvalidArgument(
			"this token has already been refreshed and its refreshed token has also been refreshed")
	}
	return successor, nil
}

// getCode fetches a code, mapping a missing record to invalid-argument:
// by the time a caller presents a code value, a miss means the value is
// wrong, not that a resource is absent.
func (e *AuthorizationEngine) getCode(ctx context.Context, codeValue string) (*domain.AuthorizationCode, error) {
	if codeValue == "" {
		return nil, autherrors.NewInvalidArgument("the code is missing")
	}
	code, err := e.codes.GetCode(ctx, codeValue)
	if err != nil {
		if errors.Is(err, domain.ErrCodeNotFound) {
			return nil, autherrors.NewInvalidArgument("the code is unknown")
		}
		return nil, fmt.Errorf("retrieving authorization code: %w", err)
	}
	return code, nil
}

// authenticateClient verifies the client's identity and shared secret.
// Failures here are authentication errors, never invalid arguments.
func (e *AuthorizationEngine) authenticateClient(
	ctx context.Context,
	clientID string,
	clientSecret string,
) (*domain.OAuthClient, error) {
	if clientID == "" {
		return nil, autherrors.NewAuthentication("the OAuth client ID is missing")
	}
	if clientSecret == "" {
		return nil, autherrors.NewAuthentication("the OAuth client secret is missing")
	}

	client, err := e.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, domain.ErrClientNotFound) {
			return nil, autherrors.NewAuthentication("the OAuth client is unknown")
		}
		return nil, fmt.Errorf("retrieving client: %w", err)
	}

	if !SecretsEqual(client.Secret, clientSecret) {
		return nil, autherrors.NewAuthentication("the OAuth client secret is incorrect")
	}
	return client, nil
}

// mintToken builds a new active token for the given user and scope set.
func (e *AuthorizationEngine) mintToken(userID string, scopes []domain.Scope, codeValue string) *domain.AuthorizationToken {
	now := e.now()
	return &domain.AuthorizationToken{
		AccessToken:         NewOpaqueToken(),
		RefreshToken:        NewOpaqueToken(),
		UserID:              userID,
		Scopes:              scopes,
		AuthorizationCode:   codeValue,
		Status:              domain.TokenStatusActive,
		CreationTimestamp:   now.UnixMilli(),
		ExpirationTimestamp: now.Add(e.tokenTTL).UnixMilli(),
	}
}
