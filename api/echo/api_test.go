package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	oauth2 "github.com/ohmage/oauth2"
	"github.com/ohmage/oauth2/api"
	"github.com/ohmage/oauth2/cache"
	"github.com/ohmage/oauth2/domain"
)

const (
	testClientID     = "client-1"
	testClientSecret = "secret-1"
	testRedirectURI  = "https://app.example.com/callback"
	testUserEmail    = "user@example.com"
	testUserPassword = "hunter2"
)

// memoryTokenCache is a map-backed cache.TokenCache for handler tests.
type memoryTokenCache struct {
	mu      sync.Mutex
	entries map[string]*cache.TokenEntry
}

func newMemoryTokenCache() *memoryTokenCache {
	return &memoryTokenCache{entries: map[string]*cache.TokenEntry{}}
}

func (c *memoryTokenCache) Set(_ context.Context, entry *cache.TokenEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := *entry
	c.entries[entry.AccessToken] = &clone
	return nil
}

func (c *memoryTokenCache) Get(_ context.Context, accessToken string) (*cache.TokenEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[accessToken]
	if !ok {
		return nil, false
	}
	clone := *entry
	return &clone, true
}

func (c *memoryTokenCache) Delete(_ context.Context, accessToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accessToken)
	return nil
}

type apiFixture struct {
	server     *echo.Echo
	clients    *cache.MemoryClientStore
	codes      *cache.MemoryCodeStore
	tokens     *cache.MemoryTokenStore
	tokenCache *memoryTokenCache
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		clients:    cache.NewMemoryClientStore(),
		codes:      cache.NewMemoryCodeStore(time.Hour),
		tokens:     cache.NewMemoryTokenStore(time.Hour),
		tokenCache: newMemoryTokenCache(),
	}
	t.Cleanup(func() {
		f.codes.Close()
		f.tokens.Close()
	})

	schemas := cache.NewMemorySchemaRegistry()
	version := int64(1)
	schemas.Register(domain.ScopeTypeStream, "heartRate", &version)

	users := cache.NewMemoryUserStore()
	hash, err := bcrypt.GenerateFromPassword([]byte(testUserPassword), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, users.CreateUser(context.Background(), &domain.User{
		ID:       "user-1",
		Email:    testUserEmail,
		Password: string(hash),
	}))

	require.NoError(t, f.clients.CreateClient(context.Background(), &domain.OAuthClient{
		ID:          testClientID,
		Secret:      testClientSecret,
		Name:        "Heart Rate Dashboard",
		RedirectURI: testRedirectURI,
		Owner:       "owner-1",
	}))

	engine := oauth2.NewAuthorizationEngine(f.clients, f.codes, f.tokens, schemas)
	clientService := oauth2.NewClientService(f.clients, true)

	f.server = echo.New()
	NewOAuth2API(engine, clientService, users, f.tokens, f.tokenCache).RegisterRoutes(f.server)

	return f
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return f.do(req)
}

// authorize runs the authorize request and returns the issued code value.
func (f *apiFixture) authorize(t *testing.T, state string) string {
	t.Helper()

	rec := f.do(httptest.NewRequest(http.MethodGet,
		"/oauth2/authorize?client_id="+testClientID+
			"&scope="+url.QueryEscape("STREAM:heartRate:1:READ")+
			"&state="+state, nil))
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	require.Equal(t, "/oauth2/authorization", location.Path)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

// consent posts the user's decision and returns the final redirect URL.
func (f *apiFixture) consent(t *testing.T, code string, granted bool) *url.URL {
	t.Helper()

	rec := f.postForm("/oauth2/authorization", url.Values{
		"email":    {testUserEmail},
		"password": {testUserPassword},
		"code":     {code},
		"granted":  {strconv.FormatBool(granted)},
	})
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get(echo.HeaderLocation))
	require.NoError(t, err)
	return location
}

// exchange trades a granted code for a token response.
func (f *apiFixture) exchange(t *testing.T, code string) *api.TokenResponse {
	t.Helper()

	rec := f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
		"code":          {code},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestAuthorizeHandler(t *testing.T) {
	f := newAPIFixture(t)
	f.authorize(t, "xyz")
}

func TestAuthorizeHandlerUnknownClient(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet,
		"/oauth2/authorize?client_id=nope&scope=STREAM:heartRate:1:READ", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestConsentHandlerGranted(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "xyz")

	location := f.consent(t, code, true)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, code, location.Query().Get("code"))
	assert.Equal(t, "xyz", location.Query().Get("state"))
}

func TestConsentHandlerDeclined(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "xyz")

	location := f.consent(t, code, false)
	assert.Equal(t, "access_denied", location.Query().Get("error"))
	assert.Empty(t, location.Query().Get("code"))
	assert.Equal(t, "xyz", location.Query().Get("state"))
}

func TestConsentHandlerBadCredentials(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")

	rec := f.postForm("/oauth2/authorization", url.Values{
		"email":    {testUserEmail},
		"password": {"wrong"},
		"code":     {code},
		"granted":  {"true"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenHandlerAuthorizationCodeGrant(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)

	resp := f.exchange(t, code)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Greater(t, resp.ExpiresIn, 0)
	assert.Equal(t, "STREAM:heartRate:1:READ", resp.Scope)
}

func TestTokenHandlerBasicAuth(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)

	form := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
	}
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.SetBasicAuth(testClientID, testClientSecret)

	rec := f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestTokenHandlerRefreshGrant(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	first := f.exchange(t, code)

	rec := f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var second api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestTokenHandlerErrors(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)

	rec := f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"client_secret": {"wrong"},
		"code":          {code},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_client")

	rec = f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
		"code":          {"unknown"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_grant")

	rec = f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"password"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_grant_type")

	rec = f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "refresh_token is required")
}

func TestBearerAuthProtectsCodeInspection(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	token := f.exchange(t, code)

	// No token.
	rec := f.do(httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Garbage token.
	req := httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The responder's own token sees the code.
	req = httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got domain.AuthorizationCode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, code, got.Code)
	require.NotNil(t, got.Response)
	assert.True(t, got.Response.Granted)
}

// A rotated token must stop authenticating immediately, even while its
// cache entry from issuance is still live.
func TestBearerAuthRejectsRotatedToken(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	first := f.exchange(t, code)

	// The issued token authenticates, served from the cache.
	req := httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+first.AccessToken)
	require.Equal(t, http.StatusOK, f.do(req).Code)

	rec := f.postForm("/oauth2/token", url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
		"refresh_token": {first.RefreshToken},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var second api.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))

	// The predecessor is inert; its successor takes over.
	req = httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+first.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/oauth2/codes/"+code, nil)
	req.Header.Set("Authorization", "Bearer "+second.AccessToken)
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestListCodesHandler(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	token := f.exchange(t, code)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/codes", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Codes []*domain.AuthorizationCode `json:"codes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Codes, 1)
	assert.Equal(t, code, body.Codes[0].Code)
}

func TestInvalidateCodeResponse(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	token := f.exchange(t, code)

	req := httptest.NewRequest(http.MethodDelete, "/oauth2/codes/"+code+"/response", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec := f.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Second revocation is rejected.
	req = httptest.NewRequest(http.MethodDelete, "/oauth2/codes/"+code+"/response", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientManagement(t *testing.T) {
	f := newAPIFixture(t)
	code := f.authorize(t, "")
	f.consent(t, code, true)
	token := f.exchange(t, code)

	body := `{"client_name":"New App","redirect_uri":"https://new.example.com/cb"}`
	req := httptest.NewRequest(http.MethodPost, "/oauth2/clients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created domain.OAuthClient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Secret)
	assert.Equal(t, "user-1", created.Owner)

	// The public view hides the secret.
	req = httptest.NewRequest(http.MethodGet, "/oauth2/clients/"+created.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Secret)

	req = httptest.NewRequest(http.MethodGet, "/oauth2/clients", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)
}
