package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"golang.org/x/oauth2"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleService signs users in with Google and resolves their access tokens.
type GoogleService struct {
	config      *oauth2.Config
	httpClient  *http.Client
	userInfoURL string
}

// NewGoogleService creates a Google service from the configured client credentials.
//
// Only the client id is required; the server side needs no secret to resolve tokens.
func NewGoogleService(creds shared.GoogleConfig, client *http.Client) (*GoogleService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing google client_id", shared.ErrMissingCredentials)
	}
	if client == nil {
		client = http.DefaultClient
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}

	return &GoogleService{
		config:      config,
		httpClient:  client,
		userInfoURL: googleUserInfoURL,
	}, nil
}

// Config returns the OAuth2 config used by the login flow.
func (g *GoogleService) Config() *oauth2.Config {
	return g.config
}

// AuthURL returns the consent page URL for the login flow.
func (g *GoogleService) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token.
func (g *GoogleService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// TokenSource returns a source that refreshes token as it expires.
func (g *GoogleService) TokenSource(ctx context.Context, token *oauth2.Token) oauth2.TokenSource {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	return g.config.TokenSource(ctx, token)
}

// UserInfo resolves accessToken to the Google account it was issued for.
//
// A rejected token reports [shared.ErrUnauthorized].
func (g *GoogleService) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", shared.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: google rejected the token", shared.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: userinfo status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode userinfo: %v", shared.ErrAPIRequest, err)
	}
	if info.Subject == "" {
		return nil, fmt.Errorf("%w: userinfo has no subject", shared.ErrUnauthorized)
	}

	return &info, nil
}
