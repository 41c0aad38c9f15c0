package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

const (
	// AcceptedMessage is returned to the caller once a job is queued.
	AcceptedMessage = "registration started; you will be notified when it finishes"

	callbackTokenType = "callback"
	callbackPath      = "/api/send-notification"
	defaultTokenTTL   = 24 * time.Hour
)

// CallbackClaims authorize the worker to report one job's completion for one owner.
type CallbackClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RegisterService submits auto-registration jobs to the external worker.
type RegisterService struct {
	endpoint    string
	callbackURL string
	secret      []byte
	httpClient  *http.Client
	logger      *log.Logger
	tokenTTL    time.Duration
	maxElapsed  time.Duration
	now         func() time.Time
}

// workerJob is the payload the worker receives.
type workerJob struct {
	JobID         string          `json:"job_id"`
	Email         string          `json:"email"`
	Password      string          `json:"password"`
	IDList        []string        `json:"id_list"`
	Title         string          `json:"title"`
	Subscription  json.RawMessage `json:"subscription,omitempty"`
	CallbackURL   string          `json:"callback_url"`
	CallbackToken string          `json:"callback_token"`
}

// NewRegisterService creates a service that posts to the configured worker endpoint.
//
// The worker reports back to publicURL + "/api/send-notification" with a token signed by secret.
func NewRegisterService(cfg shared.RegisterConfig, server shared.ServerConfig, client *http.Client, logger *log.Logger) (*RegisterService, error) {
	if server.CallbackSecret == "" {
		return nil, fmt.Errorf("%w: server.callback_secret is required", shared.ErrInvalidConfig)
	}
	if client == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &RegisterService{
		endpoint:    cfg.Endpoint,
		callbackURL: strings.TrimRight(server.PublicURL, "/") + callbackPath,
		secret:      []byte(server.CallbackSecret),
		httpClient:  client,
		logger:      shared.WithLogger(logger, "component", "register"),
		tokenTTL:    defaultTokenTTL,
		maxElapsed:  30 * time.Second,
		now:         time.Now,
	}, nil
}

// IssueCallbackToken signs a token binding jobID to ownerID.
func (s *RegisterService) IssueCallbackToken(ownerID, jobID string) (string, error) {
	now := s.now()
	claims := &CallbackClaims{
		TokenType: callbackTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			ID:        jobID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyCallbackToken checks a token presented by the worker and returns its claims.
func (s *RegisterService) VerifyCallbackToken(raw string) (*CallbackClaims, error) {
	claims := &CallbackClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if claims.TokenType != callbackTokenType || claims.Subject == "" {
		return nil, fmt.Errorf("%w: not a callback token", shared.ErrInvalidToken)
	}
	return claims, nil
}

// Submit validates req, fills the default mylist title and queues the job.
//
// Only submission is confirmed; the job's outcome arrives later as a notification.
func (s *RegisterService) Submit(ctx context.Context, ownerID string, req models.RegisterRequest) (*Job, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("%w: registration worker endpoint is not configured", shared.ErrServiceUnavailable)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", shared.ErrUnauthorized)
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = models.DefaultMylistTitle(s.now())
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	jobID := shared.GenerateID()
	token, err := s.IssueCallbackToken(ownerID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign callback token: %w", err)
	}

	payload, err := json.Marshal(workerJob{
		JobID:         jobID,
		Email:         req.Email,
		Password:      req.Password,
		IDList:        req.IDList,
		Title:         req.Title,
		Subscription:  req.Subscription,
		CallbackURL:   s.callbackURL,
		CallbackToken: token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	if err := s.post(ctx, payload); err != nil {
		return nil, err
	}

	s.logger.Info("registration job submitted", "job_id", jobID, "owner", ownerID, "videos", len(req.IDList))
	return &Job{ID: jobID, Message: AcceptedMessage}, nil
}

// post delivers payload to the worker, retrying transport failures and 5xx responses.
func (s *RegisterService) post(ctx context.Context, payload []byte) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed

	err := backoff.Retry(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			s.logger.Warn("worker unreachable, retrying", "error", err)
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500:
			s.logger.Warn("worker failed, retrying", "status", resp.StatusCode)
			return fmt.Errorf("worker returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		default:
			return backoff.Permanent(fmt.Errorf("%w: worker rejected job with status %d: %s",
				shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(body))))
		}
	}, backoff.WithContext(bo, ctx))

	if err != nil && !errors.Is(err, shared.ErrAPIRequest) {
		return fmt.Errorf("%w: failed to start registration: %v", shared.ErrServiceUnavailable, err)
	}
	return err
}
