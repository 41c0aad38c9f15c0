package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	tu "github.com/nagiyu/niconico-mylist-assistant/internal/testing"
)

var _ IdentityProvider = (*GoogleService)(nil)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *GoogleService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewGoogleService(shared.GoogleConfig{ClientID: "client"}, nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	g.userInfoURL = server.URL + "/userinfo"
	return g
}

func TestGoogleService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewGoogleService(shared.GoogleConfig{}, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Defaults", func(t *testing.T) {
			g, err := NewGoogleService(shared.GoogleConfig{ClientID: "id", ClientSecret: "secret"}, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if g.Config().RedirectURL != "http://localhost:3000/callback" {
				t.Errorf("unexpected redirect %q", g.Config().RedirectURL)
			}
			if len(g.Config().Scopes) != 3 {
				t.Errorf("expected openid email profile scopes, got %v", g.Config().Scopes)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		g, _ := NewGoogleService(shared.GoogleConfig{ClientID: "id", RedirectURI: "http://localhost:9999/cb"}, nil)
		u, err := url.Parse(g.AuthURL("state-1"))
		if err != nil {
			t.Fatalf("failed to parse url: %v", err)
		}
		q := u.Query()
		if q.Get("state") != "state-1" || q.Get("client_id") != "id" || q.Get("access_type") != "offline" {
			t.Errorf("unexpected auth query %s", u.RawQuery)
		}
		if q.Get("redirect_uri") != "http://localhost:9999/cb" {
			t.Errorf("unexpected redirect_uri %q", q.Get("redirect_uri"))
		}
	})

	t.Run("UserInfo", func(t *testing.T) {
		t.Run("Resolves Subject", func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer good" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				w.Write([]byte(`{"sub":"1234","email":"a@example.com","name":"A"}`))
			})

			info, err := g.UserInfo(context.Background(), "good")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if info.Subject != "1234" || info.Email != "a@example.com" {
				t.Errorf("unexpected info %+v", info)
			}
		})

		t.Run("Rejected Token", func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})

			if _, err := g.UserInfo(context.Background(), "bad"); !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})

		t.Run("Empty Token", func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("no request expected")
			})

			if _, err := g.UserInfo(context.Background(), ""); !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})

		t.Run("Missing Subject", func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"email":"a@example.com"}`))
			})

			if _, err := g.UserInfo(context.Background(), "good"); !errors.Is(err, shared.ErrUnauthorized) {
				t.Errorf("expected ErrUnauthorized, got %v", err)
			}
		})

		t.Run("Upstream Failure", func(t *testing.T) {
			g := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})

			if _, err := g.UserInfo(context.Background(), "good"); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("dial failed"))}
			g, _ := NewGoogleService(shared.GoogleConfig{ClientID: "id"}, client)

			if _, err := g.UserInfo(context.Background(), "good"); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("Exchange", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.ParseForm()
			if r.Form.Get("code") != "code-1" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
		}))
		defer server.Close()

		g, _ := NewGoogleService(shared.GoogleConfig{ClientID: "id", ClientSecret: "secret"}, nil)
		g.config.Endpoint.TokenURL = server.URL

		token, err := g.Exchange(context.Background(), "code-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token.AccessToken != "at" || token.RefreshToken != "rt" {
			t.Errorf("unexpected token %+v", token)
		}

		if _, err := g.Exchange(context.Background(), "wrong"); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}
