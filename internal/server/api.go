package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/repositories"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Notifier delivers job notifications and keeps the recent ones.
type Notifier interface {
	Publish(ctx context.Context, ownerID string, note models.Notification) error
	Recent(ctx context.Context, ownerID string) ([]models.Notification, error)
}

// CallbackVerifier authenticates the worker's completion callback.
type CallbackVerifier interface {
	VerifyCallbackToken(raw string) (*services.CallbackClaims, error)
}

// Streamer upgrades a request to a notification stream for one owner.
type Streamer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, ownerID string, checkOrigin func(*http.Request) bool) error
}

// APIConfig collects the collaborators of the music API.
type APIConfig struct {
	Repo      *repositories.MusicRepository
	Identity  *IdentityCache
	Lookup    services.VideoLookup
	Jobs      services.JobSubmitter
	Callbacks CallbackVerifier
	Notifier  Notifier
	Streams   Streamer

	// AllowedOrigins are accepted for websocket upgrades in addition to same-origin requests.
	AllowedOrigins []string
	Logger         *log.Logger
}

// API serves the music endpoints.
type API struct {
	APIConfig
	logger *log.Logger
}

// NewAPI creates the API. Repo and Identity are required.
func NewAPI(cfg APIConfig) (*API, error) {
	if cfg.Repo == nil {
		return nil, fmt.Errorf("%w: music repository is required", shared.ErrInvalidConfig)
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: identity provider is required", shared.ErrInvalidConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &API{APIConfig: cfg, logger: shared.WithLogger(logger, "component", "api")}, nil
}

// Handler builds the router with logging and recovery around every route.
func (a *API) Handler() http.Handler {
	r := NewBasicRouter()
	r.Use(Logging(a.logger), Recover(a.logger))
	a.Register(r)
	return r
}

// Register adds every route to r.
func (a *API) Register(r Router) {
	auth := Identity(a.Identity, a.logger)
	authed := func(fn http.HandlerFunc) http.Handler { return auth(fn) }

	r.Handle(http.MethodGet, "/health", http.HandlerFunc(a.health))

	r.Handle(http.MethodGet, "/api/music", authed(a.listMusic))
	r.Handle(http.MethodPost, "/api/music", authed(a.createMusic))
	r.Handle(http.MethodPut, "/api/music", authed(a.updateMusic))
	r.Handle(http.MethodDelete, "/api/music", authed(a.deleteMusic))
	r.Handle(http.MethodPost, "/api/music/bulk-import", authed(a.bulkImport))
	r.Handle(http.MethodGet, "/api/music/info", authed(a.videoInfo))
	r.Handle(http.MethodGet, "/api/music/search", authed(a.search))

	r.Handle(http.MethodPost, "/api/register", authed(a.register))
	r.Handle(http.MethodPost, "/api/send-notification", http.HandlerFunc(a.sendNotification))
	r.Handle(http.MethodGet, "/api/notifications", authed(a.notifications))
	r.Handle(http.MethodGet, "/api/notifications/ws", authed(a.notificationStream))
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) scope(r *http.Request) *repositories.OwnerScope {
	return a.Repo.ForOwner(OwnerFrom(r.Context()))
}

func (a *API) listMusic(w http.ResponseWriter, r *http.Request) {
	views, err := a.scope(r).List(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if views == nil {
		views = []models.MergedMusicView{}
	}
	writeJSON(w, http.StatusOK, views)
}

type createResponse struct {
	OK bool `json:"ok"`
	models.CreatedIDs
}

func (a *API) createMusic(w http.ResponseWriter, r *http.Request) {
	var in models.MusicInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, a.logger, err)
		return
	}

	ids, err := a.scope(r).Create(r.Context(), in)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, createResponse{OK: true, CreatedIDs: ids})
}

type updateResponse struct {
	OK            bool   `json:"ok"`
	UserSettingID string `json:"user_music_setting_id"`
}

func (a *API) updateMusic(w http.ResponseWriter, r *http.Request) {
	var view models.MergedMusicView
	if err := decodeJSON(w, r, &view); err != nil {
		writeError(w, a.logger, err)
		return
	}

	settingID, err := a.scope(r).Update(r.Context(), view)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResponse{OK: true, UserSettingID: settingID})
}

type deleteRequest struct {
	CommonID      string `json:"music_common_id"`
	UserSettingID string `json:"user_music_setting_id"`
}

func (a *API) deleteMusic(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}

	if err := a.scope(r).Delete(r.Context(), req.CommonID, req.UserSettingID); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type bulkImportRequest struct {
	Items []models.BulkImportItem `json:"items"`
}

func (a *API) bulkImport(w http.ResponseWriter, r *http.Request) {
	var req bulkImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if req.Items == nil {
		writeError(w, a.logger, fmt.Errorf("%w: items must be an array", shared.ErrInvalidInput))
		return
	}

	result, err := a.scope(r).BulkImport(r.Context(), req.Items)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("bulk import",
		"owner", OwnerFrom(r.Context()),
		"success", result.Success,
		"failure", result.Failure,
		"skip", result.Skip,
	)
	writeJSON(w, http.StatusOK, result)
}

// lookupBody is the envelope of the info endpoint and of lookup failures, which are reported in-band.
type lookupBody struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	VideoID string `json:"video_id,omitempty"`
	Title   string `json:"title,omitempty"`
}

type searchBody struct {
	Status  string                  `json:"status"`
	Results []services.SearchResult `json:"results"`
}

// failureMessage picks the first known message contained in err.
func failureMessage(err error, fallback string, known ...string) string {
	text := err.Error()
	for _, msg := range known {
		if strings.Contains(text, msg) {
			return msg
		}
	}
	return fallback
}

func (a *API) videoInfo(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("video_id"))
	if videoID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "video_id is required"})
		return
	}
	if a.Lookup == nil {
		writeError(w, a.logger, fmt.Errorf("%w: video lookup is not configured", shared.ErrServiceUnavailable))
		return
	}

	info, err := a.Lookup.VideoInfo(r.Context(), videoID)
	if err != nil {
		a.logger.Debug("video info failed", "video_id", videoID, "error", err)
		msg := failureMessage(err, services.MsgInfoNetwork,
			services.MsgInfoNotFound,
			services.MsgInfoEmpty,
			services.MsgInfoNoTitle,
			services.MsgInfoFailed,
		)
		writeJSON(w, http.StatusOK, lookupBody{Status: "failure", Message: msg})
		return
	}
	writeJSON(w, http.StatusOK, lookupBody{Status: "success", VideoID: videoID, Title: info.Title})
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("q"))
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "search keyword (q) is required"})
		return
	}
	if a.Lookup == nil {
		writeError(w, a.logger, fmt.Errorf("%w: video lookup is not configured", shared.ErrServiceUnavailable))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	results, err := a.Lookup.Search(r.Context(), keyword, limit)
	if err != nil {
		a.logger.Debug("search failed", "q", keyword, "error", err)
		msg := failureMessage(err, services.MsgSearchNetwork,
			services.MsgSearchNoHits,
			services.MsgSearchFailed,
		)
		writeJSON(w, http.StatusOK, lookupBody{Status: "failure", Message: msg})
		return
	}
	if results == nil {
		results = []services.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchBody{Status: "success", Results: results})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	if a.Jobs == nil {
		writeError(w, a.logger, fmt.Errorf("%w: registration is not configured", shared.ErrServiceUnavailable))
		return
	}

	var req models.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}

	job, err := a.Jobs.Submit(r.Context(), OwnerFrom(r.Context()), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

type callbackRequest struct {
	Message   string   `json:"message"`
	FailedIDs []string `json:"failed_ids"`
}

// sendNotification is called by the worker, authenticated by the job's callback token.
func (a *API) sendNotification(w http.ResponseWriter, r *http.Request) {
	if a.Callbacks == nil || a.Notifier == nil {
		writeError(w, a.logger, fmt.Errorf("%w: notifications are not configured", shared.ErrServiceUnavailable))
		return
	}

	claims, err := a.Callbacks.VerifyCallbackToken(BearerToken(r))
	if err != nil {
		a.logger.Warn("callback rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized"})
		return
	}

	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}

	note := models.Notification{
		Message:   req.Message,
		FailedIDs: req.FailedIDs,
		JobID:     claims.ID,
	}
	if note.Message == "" {
		note.Message = models.CompletionMessage(req.FailedIDs)
	}

	if err := a.Notifier.Publish(r.Context(), claims.Subject, note); err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.logger.Info("job finished", "job_id", claims.ID, "owner", claims.Subject, "failed", len(req.FailedIDs))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) notifications(w http.ResponseWriter, r *http.Request) {
	if a.Notifier == nil {
		writeJSON(w, http.StatusOK, []models.Notification{})
		return
	}
	notes, err := a.Notifier.Recent(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if notes == nil {
		notes = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (a *API) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return strings.EqualFold(origin, "http://"+r.Host) || strings.EqualFold(origin, "https://"+r.Host)
}

func (a *API) notificationStream(w http.ResponseWriter, r *http.Request) {
	if a.Streams == nil {
		writeError(w, a.logger, fmt.Errorf("%w: notification stream is not configured", shared.ErrServiceUnavailable))
		return
	}
	// The upgrader has already answered the request when it fails.
	if err := a.Streams.ServeWS(w, r, OwnerFrom(r.Context()), a.checkOrigin); err != nil {
		a.logger.Debug("websocket upgrade failed", "error", err)
	}
}
