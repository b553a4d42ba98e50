// Package echo is the HTTP adapter for the authorization engine.
package echo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	oauth2 "github.com/ohmage/oauth2"
	"github.com/ohmage/oauth2/api"
	"github.com/ohmage/oauth2/cache"
	"github.com/ohmage/oauth2/domain"
	"github.com/ohmage/oauth2/errors"
)

// consentPath is where the authorize endpoint sends the user's browser so
// they can respond to the request.
const consentPath = "/oauth2/authorization"

// OAuth2API holds the handler dependencies.
type OAuth2API struct {
	engine        *oauth2.AuthorizationEngine
	clientService *oauth2.ClientService
	users         domain.UserRepository
	tokens        domain.TokenRepository
	tokenCache    cache.TokenCache
}

// NewOAuth2API initializes the OAuth2 API. The token cache may be nil, in
// which case bearer authentication always hits the token store.
func NewOAuth2API(
	engine *oauth2.AuthorizationEngine,
	clientService *oauth2.ClientService,
	users domain.UserRepository,
	tokens domain.TokenRepository,
	tokenCache cache.TokenCache,
) *OAuth2API {
	return &OAuth2API{
		engine:        engine,
		clientService: clientService,
		users:         users,
		tokens:        tokens,
		tokenCache:    tokenCache,
	}
}

// RegisterRoutes registers the OAuth2 routes.
func (oa *OAuth2API) RegisterRoutes(e *echo.Echo) {
	e.GET("/oauth2/authorize", oa.AuthorizeHandler)
	e.POST("/oauth2/authorization", oa.ConsentHandler)
	e.POST("/oauth2/token", oa.TokenHandler)

	protected := e.Group("", oa.BearerAuth())
	protected.GET("/oauth2/codes", oa.ListCodesHandler)
	protected.GET("/oauth2/codes/:code", oa.GetCodeHandler)
	protected.DELETE("/oauth2/codes/:code/response", oa.InvalidateCodeResponseHandler)
	protected.POST("/oauth2/clients", oa.RegisterClientHandler)
	protected.GET("/oauth2/clients", oa.ListClientsHandler)
	protected.GET("/oauth2/clients/:id", oa.GetClientHandler)
	protected.PUT("/oauth2/clients/:id", oa.UpdateClientHandler)
}

// AuthorizeHandler handles OAuth 2.0 authorization requests. It issues an
// authorization code and redirects the user's browser to the consent page
// carrying the code value.
func (oa *OAuth2API) AuthorizeHandler(c echo.Context) error {
	clientID := c.QueryParam("client_id")
	scope := c.QueryParam("scope")
	redirectURI := c.QueryParam("redirect_uri")
	state := c.QueryParam("state")

	if responseType := c.QueryParam("response_type"); responseType != "" && responseType != "code" {
		return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("unsupported response_type"))
	}

	ctx := c.Request().Context()

	code, err := oa.engine.IssueCode(ctx, clientID, strings.Fields(scope), redirectURI, state)
	if err != nil {
		return writeError(c, err)
	}

	return c.Redirect(http.StatusFound, consentPath+"?code="+url.QueryEscape(code))
}

// ConsentHandler records the user's decision on an authorization code and
// sends the browser back to the client's redirect URI. The responding user
// authenticates inline with email and password.
func (oa *OAuth2API) ConsentHandler(c echo.Context) error {
	email := c.FormValue("email")
	password := c.FormValue("password")
	codeValue := c.FormValue("code")
	grantedValue := c.FormValue("granted")

	granted, err := strconv.ParseBool(grantedValue)
	if err != nil {
		return c.JSON(http.StatusBadRequest,
			errors.NewInvalidRequest("granted must be a boolean"))
	}

	ctx := c.Request().Context()

	user, err := oa.authenticateUser(ctx, email, password)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_credentials"})
	}

	if err := oa.engine.RecordConsent(ctx, codeValue, user.ID, granted); err != nil {
		return writeError(c, err)
	}

	code, err := oa.engine.GetCode(ctx, codeValue, user.ID)
	if err != nil {
		return writeError(c, err)
	}

	params := url.Values{}
	if granted {
		params.Set("code", code.Code)
	} else {
		params.Set("error", errors.AccessDenied)
	}
	if code.State != "" {
		params.Set("state", code.State)
	}

	return c.Redirect(http.StatusFound, appendQuery(code.RedirectURI, params))
}

// TokenHandler handles OAuth2 token requests for the authorization_code
// and refresh_token grants. Client credentials are accepted either as form
// values or as HTTP basic auth.
func (oa *OAuth2API) TokenHandler(c echo.Context) error {
	clientID, clientSecret := oa.clientCredentials(c)
	grantType := c.FormValue("grant_type")

	ctx := c.Request().Context()

	var token *domain.AuthorizationToken
	var err error

	switch grantType {
	case "authorization_code":
		token, err = oa.engine.ExchangeCode(ctx,
			clientID, clientSecret, c.FormValue("code"), c.FormValue("redirect_uri"))
	case "refresh_token":
		refreshToken := c.FormValue("refresh_token")
		if refreshToken == "" {
			return c.JSON(http.StatusBadRequest, errors.NewInvalidRequest("refresh_token is required"))
		}
		predecessor, _ := oa.tokens.GetTokenByRefreshToken(ctx, refreshToken)
		token, err = oa.engine.Refresh(ctx, clientID, clientSecret, refreshToken)
		if err == nil {
			oa.markTokenRefreshed(ctx, predecessor)
		}
	default:
		return c.JSON(http.StatusBadRequest, errors.NewUnsupportedGrantType())
	}

	if err != nil {
		return writeError(c, err)
	}

	oa.cacheToken(c, token)

	expiresIn := int((token.ExpirationTimestamp - time.Now().UnixMilli()) / 1000)
	if expiresIn < 0 {
		expiresIn = 0
	}

	log.Info().
		Str("client_id", clientID).
		Str("grant_type", grantType).
		Str("user_id", token.UserID).
		Msg("Token issued")

	c.Response().Header().Set("Cache-Control", "no-store")

	return c.JSON(http.StatusOK, &api.TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        strings.Join(domain.ScopeStrings(token.Scopes), " "),
	})
}

// ListCodesHandler lists the codes the authenticated user has responded
// to.
func (oa *OAuth2API) ListCodesHandler(c echo.Context) error {
	codes, err := oa.engine.GetCodesByResponder(c.Request().Context(), currentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	if codes == nil {
		codes = []*domain.AuthorizationCode{}
	}
	return c.JSON(http.StatusOK, echo.Map{"codes": codes})
}

// GetCodeHandler returns an authorization code for inspection by its
// responder.
func (oa *OAuth2API) GetCodeHandler(c echo.Context) error {
	code, err := oa.engine.GetCode(c.Request().Context(), c.Param("code"), currentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, code)
}

// InvalidateCodeResponseHandler revokes the requesting user's consent
// decision on a code.
func (oa *OAuth2API) InvalidateCodeResponseHandler(c echo.Context) error {
	err := oa.engine.RevokeConsent(c.Request().Context(), c.Param("code"), currentUserID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// authenticateUser resolves the consenting user by email and verifies the
// password. The error is deliberately uniform; callers respond 401 without
// revealing whether the account exists.
func (oa *OAuth2API) authenticateUser(ctx context.Context, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, errors.NewInvalidClient("missing credentials")
	}
	user, err := oa.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, errors.NewInvalidClient("invalid credentials")
	}
	if !user.VerifyPassword(password) {
		return nil, errors.NewInvalidClient("invalid credentials")
	}
	return user, nil
}

// clientCredentials pulls the client ID and secret from basic auth or,
// failing that, from the form body.
func (oa *OAuth2API) clientCredentials(c echo.Context) (string, string) {
	if id, secret, ok := c.Request().BasicAuth(); ok {
		return id, secret
	}
	return c.FormValue("client_id"), c.FormValue("client_secret")
}

// cacheToken records a freshly issued token in the cache so bearer
// authentication can skip the store. Failures only cost a cache miss.
func (oa *OAuth2API) cacheToken(c echo.Context, token *domain.AuthorizationToken) {
	if oa.tokenCache == nil {
		return
	}
	entry := &cache.TokenEntry{
		AccessToken: token.AccessToken,
		UserID:      token.UserID,
		Scopes:      domain.ScopeStrings(token.Scopes),
		ExpiresAt:   time.UnixMilli(token.ExpirationTimestamp),
	}
	if err := oa.tokenCache.Set(c.Request().Context(), entry); err != nil {
		log.Warn().Err(err).Msg("Failed to cache issued token")
	}
}

// markTokenRefreshed overwrites the rotated predecessor's cache entry so
// bearer authentication rejects it without a store round trip. A rotated
// token is inert for resource access even while its entry is still live.
func (oa *OAuth2API) markTokenRefreshed(ctx context.Context, prior *domain.AuthorizationToken) {
	if oa.tokenCache == nil || prior == nil {
		return
	}
	entry := &cache.TokenEntry{
		AccessToken: prior.AccessToken,
		UserID:      prior.UserID,
		Scopes:      domain.ScopeStrings(prior.Scopes),
		ExpiresAt:   time.UnixMilli(prior.ExpirationTimestamp),
		Refreshed:   true,
	}
	if err := oa.tokenCache.Set(ctx, entry); err != nil {
		log.Warn().Err(err).Str("user_id", prior.UserID).Msg("Failed to mark rotated token in cache")
		if err := oa.tokenCache.Delete(ctx, prior.AccessToken); err != nil {
			log.Warn().Err(err).Msg("Failed to evict rotated token from cache")
		}
	}
}

// appendQuery adds params to a URI that may already carry a query string.
func appendQuery(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	for key, values := range params {
		for _, value := range values {
			q.Set(key, value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
