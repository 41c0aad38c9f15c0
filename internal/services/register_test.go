package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

var _ JobSubmitter = (*RegisterService)(nil)

func newTestRegister(t *testing.T, endpoint string) *RegisterService {
	t.Helper()
	svc, err := NewRegisterService(
		shared.RegisterConfig{Endpoint: endpoint},
		shared.ServerConfig{PublicURL: "https://nma.example.com/", CallbackSecret: "secret"},
		nil, nil,
	)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	svc.maxElapsed = 3 * time.Second
	svc.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.Local) }
	return svc
}

func validRegisterRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Email:    "user@example.com",
		Password: "pw",
		IDList:   []string{"sm1", "sm2"},
		Title:    "Favorites",
	}
}

func TestRegisterService(t *testing.T) {
	ctx := context.Background()

	t.Run("New Requires Secret", func(t *testing.T) {
		_, err := NewRegisterService(shared.RegisterConfig{}, shared.ServerConfig{}, nil, nil)
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Submit", func(t *testing.T) {
		var got workerJob
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode job: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		svc := newTestRegister(t, server.URL)
		req := validRegisterRequest()
		req.Subscription = json.RawMessage(`{"endpoint":"https://push.example.com/1"}`)

		job, err := svc.Submit(ctx, "owner-1", req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.ID == "" || job.Message != AcceptedMessage {
			t.Errorf("unexpected job %+v", job)
		}

		if got.JobID != job.ID {
			t.Errorf("expected job id %q sent to worker, got %q", job.ID, got.JobID)
		}
		if got.Email != "user@example.com" || got.Password != "pw" || len(got.IDList) != 2 || got.Title != "Favorites" {
			t.Errorf("unexpected payload %+v", got)
		}
		if got.CallbackURL != "https://nma.example.com/api/send-notification" {
			t.Errorf("unexpected callback url %q", got.CallbackURL)
		}
		if !strings.Contains(string(got.Subscription), "push.example.com") {
			t.Errorf("expected subscription to be passed through, got %s", got.Subscription)
		}

		claims, err := svc.VerifyCallbackToken(got.CallbackToken)
		if err != nil {
			t.Fatalf("expected callback token to verify, got %v", err)
		}
		if claims.Subject != "owner-1" || claims.ID != job.ID {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("Default Title", func(t *testing.T) {
		var got workerJob
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		svc := newTestRegister(t, server.URL)
		req := validRegisterRequest()
		req.Title = "  "

		if _, err := svc.Submit(ctx, "owner-1", req); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Title != "CustomMylist_20240309_140506" {
			t.Errorf("expected default title, got %q", got.Title)
		}
	})

	t.Run("Invalid Request", func(t *testing.T) {
		svc := newTestRegister(t, "http://127.0.0.1:1")
		req := validRegisterRequest()
		req.IDList = nil

		if _, err := svc.Submit(ctx, "owner-1", req); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Missing Owner", func(t *testing.T) {
		svc := newTestRegister(t, "http://127.0.0.1:1")
		if _, err := svc.Submit(ctx, "", validRegisterRequest()); !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("No Endpoint", func(t *testing.T) {
		svc := newTestRegister(t, "")
		if _, err := svc.Submit(ctx, "owner-1", validRegisterRequest()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})

	t.Run("Worker Error Is Retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		svc := newTestRegister(t, server.URL)
		if _, err := svc.Submit(ctx, "owner-1", validRegisterRequest()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("expected 2 calls, got %d", calls.Load())
		}
	})

	t.Run("Worker Rejection Is Permanent", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad job", http.StatusBadRequest)
		}))
		defer server.Close()

		svc := newTestRegister(t, server.URL)
		_, err := svc.Submit(ctx, "owner-1", validRegisterRequest())
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected 1 call, got %d", calls.Load())
		}
	})
}

func TestCallbackToken(t *testing.T) {
	svc := newTestRegister(t, "")

	t.Run("Round Trip", func(t *testing.T) {
		token, err := svc.IssueCallbackToken("owner-1", "job-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		claims, err := svc.VerifyCallbackToken(token)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if claims.Subject != "owner-1" || claims.ID != "job-1" {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		other, _ := NewRegisterService(shared.RegisterConfig{}, shared.ServerConfig{CallbackSecret: "other"}, nil, nil)
		token, _ := other.IssueCallbackToken("owner-1", "job-1")

		if _, err := svc.VerifyCallbackToken(token); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		token, _ := svc.IssueCallbackToken("owner-1", "job-1")
		later := *svc
		later.now = func() time.Time { return svc.now().Add(48 * time.Hour) }

		if _, err := later.VerifyCallbackToken(token); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Wrong Token Type", func(t *testing.T) {
		claims := &CallbackClaims{
			TokenType:        "access",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "owner-1"},
		}
		token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))

		if _, err := svc.VerifyCallbackToken(token); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := svc.VerifyCallbackToken("not.a.token"); !errors.Is(err, shared.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
