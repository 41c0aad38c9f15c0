package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/nagiyu/niconico-mylist-assistant/internal/server"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const loginTimeout = 5 * time.Minute

// tokenPath returns where the Google token is kept, defaulting to ~/.nma/token.json.
func (r *Runner) tokenPath() string {
	if r.config.Client.TokenPath != "" {
		return r.config.Client.TokenPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nma", "token.json")
	}
	return filepath.Join(home, ".nma", "token.json")
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: run 'nma auth login' first", shared.ErrNotAuthenticated)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidToken, path, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s has no access token", shared.ErrInvalidToken, path)
	}
	return &token, nil
}

// tokenSource returns the saved token, refreshing it through Google when a client secret is configured.
func (r *Runner) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := loadToken(r.tokenPath())
	if err != nil {
		return nil, err
	}

	if r.config.Credentials.Google.ClientSecret != "" {
		if google, err := services.NewGoogleService(r.config.Credentials.Google, r.httpClient); err == nil {
			return google.TokenSource(ctx, token), nil
		}
	}
	// Without a client secret the token cannot be refreshed.
	if !token.Expiry.IsZero() && !token.Valid() {
		return nil, fmt.Errorf("%w: expired at %s, run 'nma auth login' again", shared.ErrTokenExpired, shared.Timestamp(token.Expiry))
	}
	return oauth2.StaticTokenSource(token), nil
}

// AuthLogin runs the browser sign-in and saves the token.
//
// A one-shot callback server listens on the host of the configured redirect URI.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	google, err := services.NewGoogleService(r.config.Credentials.Google, r.httpClient)
	if err != nil {
		return err
	}

	redirect, err := url.Parse(google.Config().RedirectURL)
	if err != nil {
		return fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}
	if redirect.Path != server.CallbackPath {
		return fmt.Errorf("%w: redirect_uri must use the path %s", shared.ErrInvalidConfig, server.CallbackPath)
	}

	state := shared.GenerateID()
	login := server.NewLoginHandler(google, state)
	router := server.NewBasicRouter()
	router.Handler(login)

	lctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe(lctx, redirect.Host, router, r.logger)
	}()

	authURL := google.AuthURL(state)
	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to sign in:\n%s\n", authURL)
	} else if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Open this URL to sign in:\n%s\n", authURL)
	} else {
		r.writePlain("Waiting for sign-in in the browser...\n")
	}

	var result server.LoginResult
	select {
	case result = <-login.Result():
		cancel()
		if err := <-errc; err != nil {
			r.logger.Warn("callback server shutdown", "error", err)
		}
	case err := <-errc:
		if err == nil {
			return fmt.Errorf("%w: sign-in was not completed", shared.ErrTimeout)
		}
		return fmt.Errorf("%w: callback server: %v", shared.ErrAuthFailed, err)
	}

	if result.Err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Err)
	}

	path := r.tokenPath()
	if err := saveToken(path, result.Token); err != nil {
		return err
	}
	r.logger.Info("token saved", "path", path)

	if info, err := google.UserInfo(ctx, result.Token.AccessToken); err == nil {
		return r.writePlain("✓ Signed in as %s\n", info.Email)
	}
	return r.writePlain("✓ Signed in\n")
}

// AuthLogout removes the saved token.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	path := r.tokenPath()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.writePlain("Not signed in\n")
		}
		return fmt.Errorf("failed to remove token: %w", err)
	}
	r.logger.Info("token removed", "path", path)
	return r.writePlain("✓ Signed out\n")
}

type authStatus struct {
	Server        string `json:"server"`
	Healthy       bool   `json:"healthy"`
	TokenPath     string `json:"token_path"`
	Authenticated bool   `json:"authenticated"`
	Accepted      bool   `json:"accepted"`
	Expiry        string `json:"expiry,omitempty"`
}

// AuthStatus checks the server's /health endpoint and whether it accepts the saved token.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	status := authStatus{Server: r.config.Client.APIURL, TokenPath: r.tokenPath()}

	r.logger.Info("checking auth status", "server", status.Server)
	resp, err := services.NewMusicClient(status.Server, r.httpClient, nil).Get(ctx, "/health")
	status.Healthy = err == nil && resp.OK()

	if token, err := loadToken(status.TokenPath); err == nil {
		status.Authenticated = true
		if !token.Expiry.IsZero() {
			status.Expiry = shared.Timestamp(token.Expiry)
		}
	}

	if status.Healthy && status.Authenticated {
		if ts, err := r.tokenSource(ctx); err == nil {
			resp, err := services.NewMusicClient(status.Server, r.httpClient, ts).Get(ctx, "/api/notifications")
			status.Accepted = err == nil && resp.StatusCode == http.StatusOK
		}
	}

	err = r.emit(cmd, status, func() error {
		if status.Healthy {
			r.writePlain("✓ Server is healthy: %s\n", status.Server)
		} else {
			r.writePlain("✗ Server unavailable: %s\n", status.Server)
		}
		switch {
		case !status.Authenticated:
			r.writePlain("Authentication: ✗ Not signed in\n")
		case status.Accepted:
			r.writePlain("Authentication: ✓ Signed in\n")
		default:
			r.writePlain("Authentication: ✗ Token saved but not accepted\n")
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !status.Healthy {
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, status.Server)
	}
	return nil
}
