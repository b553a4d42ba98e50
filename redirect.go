package oauth2

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateRedirectURI checks that a redirect URI is acceptable for the
// authorization-code flow: it must be absolute and must not contain a
// fragment component. The same rule applies at client registration and at
// code issuance. The returned value is the normalized form of the URI.
func ValidateRedirectURI(rawURI string) (string, error) {
	if rawURI == "" {
		return "", fmt.Errorf("the redirect URI is empty")
	}
	if strings.Contains(rawURI, "#") {
		return "", fmt.Errorf("the redirect URI must not contain a fragment")
	}

	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("the redirect URI is malformed: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("the redirect URI must be absolute")
	}
	if u.Fragment != "" || u.RawFragment != "" {
		return "", fmt.Errorf("the redirect URI must not contain a fragment")
	}

	return u.String(), nil
}
