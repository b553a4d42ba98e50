package domain

// AuthorizationCodeResponse records a user's one-time decision on an
// authorization code. UserID and Granted are immutable once written; only
// InvalidationTimestamp may be added afterwards, by the responding user,
// to revoke a previously granted decision.
type AuthorizationCodeResponse struct {
	UserID                string `bson:"user_id"                          json:"user_id"`
	Granted               bool   `bson:"granted"                          json:"granted"`
	CreationTimestamp     int64  `bson:"creation_timestamp"               json:"creation_timestamp"`
	InvalidationTimestamp int64  `bson:"invalidation_timestamp,omitempty" json:"invalidation_timestamp,omitempty"`
}

// Invalidated reports whether the responding user has revoked the decision.
func (r *AuthorizationCodeResponse) Invalidated() bool {
	return r.InvalidationTimestamp != 0
}

// AuthorizationCode is a short-lived, single-use credential representing a
// user's pending or completed decision to grant a client access.
//
// A code is mutated exactly twice after creation: once when the user's
// response is attached, and once when it is exchanged for a token and its
// used timestamp is set. Expired codes are never deleted by the protocol;
// expiration is a read-time check. All timestamps are epoch milliseconds.
type AuthorizationCode struct {
	Code                string                     `bson:"code"                     json:"code"`
	OAuthClientID       string                     `bson:"oauth_client_id"          json:"oauth_client_id"`
	Scopes              []Scope                    `bson:"scopes"                   json:"scopes"`
	RedirectURI         string                     `bson:"redirect_uri"             json:"redirect_uri"`
	State               string                     `bson:"state,omitempty"          json:"state,omitempty"`
	CreationTimestamp   int64                      `bson:"creation_timestamp"       json:"creation_timestamp"`
	ExpirationTimestamp int64                      `bson:"expiration_timestamp"     json:"expiration_timestamp"`
	UsedTimestamp       int64                      `bson:"used_timestamp,omitempty" json:"used_timestamp,omitempty"`
	Response            *AuthorizationCodeResponse `bson:"response,omitempty"       json:"response,omitempty"`
}

// Expired reports whether the code is past its expiration at the given
// time, in epoch milliseconds.
func (c *AuthorizationCode) Expired(nowMillis int64) bool {
	return c.ExpirationTimestamp < nowMillis
}
