package echo

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/ohmage/oauth2/cache"
	"github.com/ohmage/oauth2/domain"
)

// userIDContextKey is where BearerAuth stores the authenticated user's ID.
const userIDContextKey = "auth.user_id"

// BearerAuth authenticates requests by access token. The token cache is
// consulted first; a miss falls through to the token store and the result
// is cached for the token's remaining lifetime.
func (oa *OAuth2API) BearerAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accessToken, ok := bearerToken(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing_token"})
			}

			ctx := c.Request().Context()

			if oa.tokenCache != nil {
				if entry, ok := oa.tokenCache.Get(ctx, accessToken); ok {
					if entry.Refreshed || time.Now().After(entry.ExpiresAt) {
						return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
					}
					c.Set(userIDContextKey, entry.UserID)
					return next(c)
				}
			}

			token, err := oa.tokens.GetToken(ctx, accessToken)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
			}
			if token.Refreshed() || token.Expired(time.Now().UnixMilli()) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_token"})
			}

			if oa.tokenCache != nil {
				entry := &cache.TokenEntry{
					AccessToken: token.AccessToken,
					UserID:      token.UserID,
					Scopes:      domain.ScopeStrings(token.Scopes),
					ExpiresAt:   time.UnixMilli(token.ExpirationTimestamp),
				}
				if err := oa.tokenCache.Set(ctx, entry); err != nil {
					log.Warn().Err(err).Msg("Failed to cache validated token")
				}
			}

			c.Set(userIDContextKey, token.UserID)
			return next(c)
		}
	}
}

// currentUserID returns the user authenticated by BearerAuth, or "" on an
// unprotected route.
func currentUserID(c echo.Context) string {
	userID, _ := c.Get(userIDContextKey).(string)
	return userID
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
