// Package api holds the wire models shared by the HTTP adapters.
package api

// TokenResponse is the OAuth 2.0 token endpoint response body.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// RegisterClientRequest is the body for registering an OAuth client.
type RegisterClientRequest struct {
	Name        string `json:"client_name"`
	Description string `json:"description,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// UpdateClientRequest carries the fields an owner may change on a client.
// Empty fields are left untouched.
type UpdateClientRequest struct {
	Name        string `json:"client_name,omitempty"`
	Description string `json:"description,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}
