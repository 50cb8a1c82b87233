package oauth

import (
	"strings"

	"github.com/garrettladley/whoopweb/internal/config"
	"golang.org/x/oauth2"
)

const (
	authPath  = "/oauth/oauth2/auth"
	tokenPath = "/oauth/oauth2/token" //nolint:gosec // not credentials, just endpoint path
	apiPath   = "/developer"
)

const (
	ScopeOffline = "offline"
	ScopeProfile = "read:profile"
)

// NewConfig builds the WHOOP client configuration. Client credentials travel in the
// token request body, which is what WHOOP expects.
func NewConfig(cfg config.Config) *oauth2.Config {
	host := strings.TrimSuffix(cfg.Whoop.APIHostname, "/")
	return &oauth2.Config{
		ClientID:     cfg.Whoop.ClientID,
		ClientSecret: cfg.Whoop.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       cfg.Whoop.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   host + authPath,
			TokenURL:  host + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// APIBaseURL is the root of the WHOOP developer API for the configured host.
func APIBaseURL(cfg config.Config) string {
	return strings.TrimSuffix(cfg.Whoop.APIHostname, "/") + apiPath
}
