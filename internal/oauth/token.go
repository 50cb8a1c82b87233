package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// Lifetime reads expires_in from a token response, falling back to the expiry x/oauth2 derived
// from it. Zero means the provider sent none.
func Lifetime(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		return time.Until(tok.Expiry).Round(time.Second)
	}
	return 0
}

// GrantedScopes returns the scope field of a token response, or nil when absent.
func GrantedScopes(tok *oauth2.Token) []string {
	raw, ok := tok.Extra(ParamScope).(string)
	if !ok {
		return nil
	}
	return ParseScopes(raw)
}
