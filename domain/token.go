package domain

// TokenStatus is the lifecycle state of an authorization token. A token is
// either active or has been refreshed exactly once, in which case it is
// permanently inert and only points at its successor.
type TokenStatus string

const (
	TokenStatusActive    TokenStatus = "active"
	TokenStatusRefreshed TokenStatus = "refreshed"
)

// AuthorizationToken is an access/refresh token pair bound to a user and a
// scope set. Tokens minted through the authorization-code flow carry the
// originating code value; tokens minted directly for a resource owner do
// not, and cannot be refreshed through the code-flow rotation.
//
// The only mutation a token ever sees is the transition from active to
// refreshed, which sets NextToken to the successor's access-token value.
// Refreshed tokens form a singly linked, acyclic chain whose tail is the
// currently valid token. All timestamps are epoch milliseconds.
type AuthorizationToken struct {
	AccessToken         string      `bson:"access_token"                 json:"access_token"`
	RefreshToken        string      `bson:"refresh_token"                json:"refresh_token"`
	UserID              string      `bson:"user_id"                      json:"user_id"`
	Scopes              []Scope     `bson:"scopes"                       json:"scopes"`
	AuthorizationCode   string      `bson:"authorization_code,omitempty" json:"authorization_code,omitempty"`
	Status              TokenStatus `bson:"status"                       json:"-"`
	NextToken           string      `bson:"next_token,omitempty"         json:"-"`
	CreationTimestamp   int64       `bson:"creation_timestamp"           json:"creation_timestamp"`
	ExpirationTimestamp int64       `bson:"expiration_timestamp"         json:"expiration_timestamp"`
}

// Refreshed reports whether the token has been rotated and now only serves
// as a pointer to its successor.
func (t *AuthorizationToken) Refreshed() bool {
	return t.Status == TokenStatusRefreshed
}

// Expired reports whether the token is past its expiration at the given
// time, in epoch milliseconds.
func (t *AuthorizationToken) Expired(nowMillis int64) bool {
	return t.ExpirationTimestamp < nowMillis
}
