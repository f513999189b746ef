package domain

// OAuthClient describes a registered OAuth client application.
// Administrative edits happen elsewhere; this core only reads clients to
// validate revocation conditions.
type OAuthClient struct {
	ClientID       string   `bson:"_id" json:"client_id"`
	Name           string   `bson:"name" json:"name"`
	RedirectURIs   []string `bson:"redirect_uris" json:"redirect_uris"`
	AllowedScopes  []string `bson:"allowed_scopes" json:"allowed_scopes"`
	IsConfidential bool     `bson:"is_confidential" json:"is_confidential"`
	IsActive       bool     `bson:"is_active" json:"is_active"`
}
