// Music API client for a running "nma serve"
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"golang.org/x/oauth2"
)

const defaultAPIBaseURL = "http://127.0.0.1:8080"

// MusicClient makes authenticated requests to the music API.
type MusicClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMusicClient creates a client for the API at baseURL.
//
// When ts is non-nil every request carries its token as a bearer credential;
// client is used as the underlying transport either way.
func NewMusicClient(baseURL string, client *http.Client, ts oauth2.TokenSource) *MusicClient {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	if ts != nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		client = oauth2.NewClient(ctx, ts)
	}

	return &MusicClient{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends a request and returns the raw response without interpreting its status.
func (a *MusicClient) Do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	fullURL := a.baseURL + path

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *MusicClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *MusicClient) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, data)
}

// StatusError maps a non-2xx API response onto the shared error taxonomy.
func StatusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(status)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrUnauthorized, msg)
	case status == http.StatusBadRequest && msg == shared.ErrDuplicateEntry.Error():
		return shared.ErrDuplicateEntry
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrRecordNotFound, msg)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrStoreUnavailable, status, msg)
	}
}

// call sends in as JSON (when non-nil) and decodes a 2xx body into out (when non-nil).
func (a *MusicClient) call(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	resp, err := a.Do(ctx, method, path, data)
	if err != nil {
		if errors.Is(err, shared.ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}
	if !resp.OK() {
		return StatusError(resp.StatusCode, resp.Body)
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}
	return nil
}

// List fetches the caller's merged list.
func (a *MusicClient) List(ctx context.Context) ([]models.MergedMusicView, error) {
	var views []models.MergedMusicView
	if err := a.call(ctx, http.MethodGet, "/api/music", nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Create registers an entry and returns the ids the server assigned.
func (a *MusicClient) Create(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error) {
	var ids models.CreatedIDs
	if err := a.call(ctx, http.MethodPost, "/api/music", in, &ids); err != nil {
		return models.CreatedIDs{}, err
	}
	return ids, nil
}

// Update saves an edited entry and returns the caller's settings id.
func (a *MusicClient) Update(ctx context.Context, view models.MergedMusicView) (string, error) {
	var out struct {
		UserSettingID string `json:"user_music_setting_id"`
	}
	if err := a.call(ctx, http.MethodPut, "/api/music", view, &out); err != nil {
		return "", err
	}
	if out.UserSettingID == "" {
		out.UserSettingID = view.UserSettingID
	}
	return out.UserSettingID, nil
}

// Delete removes an entry and, when present, the caller's settings for it.
func (a *MusicClient) Delete(ctx context.Context, commonID, userSettingID string) error {
	body := map[string]string{
		"music_common_id":       commonID,
		"user_music_setting_id": userSettingID,
	}
	return a.call(ctx, http.MethodDelete, "/api/music", body, nil)
}

// BulkImport imports items and returns the per-item outcome.
func (a *MusicClient) BulkImport(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error) {
	in := struct {
		Items []models.BulkImportItem `json:"items"`
	}{Items: items}

	result := models.NewBulkImportResult()
	if err := a.call(ctx, http.MethodPost, "/api/music/bulk-import", in, result); err != nil {
		return nil, err
	}
	return result, nil
}

// lookupResponse is the envelope of the info and search endpoints.
type lookupResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	VideoID string         `json:"video_id"`
	Title   string         `json:"title"`
	Results []SearchResult `json:"results"`
}

// VideoInfo asks the server to resolve a video title.
func (a *MusicClient) VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	var out lookupResponse
	if err := a.call(ctx, http.MethodGet, "/api/music/info?video_id="+url.QueryEscape(videoID), nil, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, out.Message)
	}
	return &VideoInfo{VideoID: out.VideoID, Title: out.Title}, nil
}

// Search asks the server to search niconico.
func (a *MusicClient) Search(ctx context.Context, keyword string, limit int) ([]SearchResult, error) {
	path := "/api/music/search?q=" + url.QueryEscape(keyword)
	if limit > 0 {
		path += "&limit=" + strconv.Itoa(limit)
	}

	var out lookupResponse
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return nil, fmt.Errorf("%w: %s", shared.ErrAPIRequest, out.Message)
	}
	return out.Results, nil
}

// Submit starts an auto-registration job on the server. The owner comes from the session.
func (a *MusicClient) Submit(ctx context.Context, _ string, req models.RegisterRequest) (*Job, error) {
	var job Job
	if err := a.call(ctx, http.MethodPost, "/api/register", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
