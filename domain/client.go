package domain

// OAuthClient represents a registered OAuth 2.0 client application. The
// engine only ever reads clients; registration and updates belong to the
// client management service.
type OAuthClient struct {
	ID                string `bson:"client_id"             json:"client_id"`
	Secret            string `bson:"client_secret"         json:"client_secret,omitempty"`
	Name              string `bson:"client_name"           json:"client_name"`
	Description       string `bson:"description,omitempty" json:"description,omitempty"`
	RedirectURI       string `bson:"redirect_uri"          json:"redirect_uri"`
	Owner             string `bson:"owner"                 json:"owner"`
	CreationTimestamp int64  `bson:"creation_timestamp"    json:"creation_timestamp"`
}
