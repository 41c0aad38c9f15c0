package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nagiyu/niconico-mylist-assistant/internal/cache"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	tu "github.com/nagiyu/niconico-mylist-assistant/internal/testing"
	"golang.org/x/oauth2"
)

var _ cache.Backend = (*MusicClient)(nil)
var _ VideoLookup = (*MusicClient)(nil)
var _ JobSubmitter = (*MusicClient)(nil)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("failed to encode response: %v", err)
	}
}

func TestMusicClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			client := NewMusicClient("http://example.com", customClient, nil)

			if client.baseURL != "http://example.com" {
				t.Errorf("expected baseURL 'http://example.com', got %s", client.baseURL)
			}
			if client.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			client := NewMusicClient("", nil, nil)

			if client.baseURL != "http://127.0.0.1:8080" {
				t.Errorf("expected default baseURL, got %s", client.baseURL)
			}
			if client.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})

		t.Run("With Token Source", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
					t.Errorf("expected bearer token, got %q", got)
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-123"})
			client := NewMusicClient(server.URL, nil, ts)
			if _, err := client.Get(context.Background(), "/api/music"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Successful Request With JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/health" {
					t.Errorf("expected path '/health', got %s", r.URL.Path)
				}
				writeJSON(t, w, http.StatusOK, map[string]string{"status": "ok"})
			}))
			defer server.Close()

			resp, err := NewMusicClient(server.URL, nil, nil).Get(context.Background(), "/health")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !resp.OK() {
				t.Errorf("expected status 200, got %d", resp.StatusCode)
			}
			if !resp.IsJSON || resp.JSONData == nil {
				t.Error("expected JSON response to be decoded")
			}
		})

		t.Run("Successful Request With Non-JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Custom-Header", "test-value")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("plain text response"))
			}))
			defer server.Close()

			resp, err := NewMusicClient(server.URL, nil, nil).Get(context.Background(), "/test")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON || resp.JSONData != nil {
				t.Error("expected response to not be JSON")
			}
			if string(resp.Body) != "plain text response" {
				t.Errorf("expected body 'plain text response', got %s", string(resp.Body))
			}
			if resp.Headers.Get("X-Custom-Header") != "test-value" {
				t.Errorf("expected custom header to be preserved")
			}
		})

		t.Run("Failed Request Creation", func(t *testing.T) {
			_, err := NewMusicClient("http://example.com", nil, nil).Get(context.Background(), "/test\x00invalid")
			if err == nil || !strings.Contains(err.Error(), "failed to create request") {
				t.Errorf("expected 'failed to create request' error, got %v", err)
			}
		})

		t.Run("Failed HTTP Request", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection failed"))}

			_, err := NewMusicClient("http://example.com", client, nil).Get(context.Background(), "/test")
			if err == nil || !strings.Contains(err.Error(), "request failed") {
				t.Errorf("expected 'request failed' error, got %v", err)
			}
		})

		t.Run("Failed Response Body Read", func(t *testing.T) {
			client := &http.Client{
				Transport: tu.NewMockRoundTripper(&http.Response{
					StatusCode: http.StatusOK,
					Body:       &tu.FCloser{},
					Header:     http.Header{},
				}, nil),
			}

			_, err := NewMusicClient("http://example.com", client, nil).Get(context.Background(), "/test")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected 'failed to read response' error, got %v", err)
			}
		})

		t.Run("With Canceled Context", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			if _, err := NewMusicClient(server.URL, nil, nil).Get(ctx, "/test"); err == nil {
				t.Error("expected error for canceled context")
			}
		})
	})

	t.Run("Post", func(t *testing.T) {
		t.Run("Sends JSON Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST method, got %s", r.Method)
				}
				if r.Header.Get("Content-Type") != "application/json" {
					t.Errorf("expected Content-Type 'application/json', got %s", r.Header.Get("Content-Type"))
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"test":"data"}` {
					t.Errorf("unexpected request body %s", body)
				}
				writeJSON(t, w, http.StatusCreated, map[string]string{"id": "123"})
			}))
			defer server.Close()

			resp, err := NewMusicClient(server.URL, nil, nil).Post(context.Background(), "/test", []byte(`{"test":"data"}`))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("expected status 201, got %d", resp.StatusCode)
			}
		})

		t.Run("Non-2xx Is Not An Error", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": "bad"})
			}))
			defer server.Close()

			resp, err := NewMusicClient(server.URL, nil, nil).Post(context.Background(), "/test", []byte(`{}`))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.OK() {
				t.Error("expected non-OK response")
			}
		})
	})
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"Unauthorized", http.StatusUnauthorized, `{"error":"unauthorized"}`, shared.ErrUnauthorized},
		{"Duplicate", http.StatusBadRequest, `{"error":"this entry already exists"}`, shared.ErrDuplicateEntry},
		{"Not Found", http.StatusNotFound, `{"error":"record not found"}`, shared.ErrRecordNotFound},
		{"Bad Request", http.StatusBadRequest, `{"error":"title is required"}`, shared.ErrInvalidInput},
		{"Non-JSON Client Error", http.StatusUnprocessableEntity, `nope`, shared.ErrInvalidInput},
		{"Server Error", http.StatusInternalServerError, `{"error":"boom"}`, shared.ErrStoreUnavailable},
		{"Bad Gateway", http.StatusBadGateway, ``, shared.ErrStoreUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := StatusError(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("Duplicate Message Is Verbatim", func(t *testing.T) {
		err := StatusError(http.StatusBadRequest, []byte(`{"error":"this entry already exists"}`))
		if err.Error() != "this entry already exists" {
			t.Errorf("expected verbatim message, got %q", err.Error())
		}
	})

	t.Run("Message From Body", func(t *testing.T) {
		err := StatusError(http.StatusBadRequest, []byte(`{"error":"title is required"}`))
		if !strings.Contains(err.Error(), "title is required") {
			t.Errorf("expected server message in error, got %q", err.Error())
		}
	})
}

func TestMusicClientBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("List", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/api/music" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			writeJSON(t, w, http.StatusOK, []models.MergedMusicView{
				{CommonID: "c1", UserSettingID: "u1", ExternalID: "sm1", Title: "One", Favorite: true},
			})
		}))
		defer server.Close()

		views, err := NewMusicClient(server.URL, nil, nil).List(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(views) != 1 || views[0].ExternalID != "sm1" || !views[0].Favorite {
			t.Errorf("unexpected views %+v", views)
		}
	})

	t.Run("Create", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var in models.MusicInput
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if in.ExternalID != "sm9" || in.Title != "Nine" {
				t.Errorf("unexpected input %+v", in)
			}
			writeJSON(t, w, http.StatusCreated, models.CreatedIDs{CommonID: "c9", UserSettingID: "u9"})
		}))
		defer server.Close()

		ids, err := NewMusicClient(server.URL, nil, nil).Create(ctx, models.MusicInput{ExternalID: "sm9", Title: "Nine"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if ids.CommonID != "c9" || ids.UserSettingID != "u9" {
			t.Errorf("unexpected ids %+v", ids)
		}
	})

	t.Run("Create Duplicate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusBadRequest, map[string]string{"error": "this entry already exists"})
		}))
		defer server.Close()

		_, err := NewMusicClient(server.URL, nil, nil).Create(ctx, models.MusicInput{ExternalID: "sm9", Title: "Nine"})
		if !errors.Is(err, shared.ErrDuplicateEntry) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("Returns Server Settings ID", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPut {
					t.Errorf("expected PUT, got %s", r.Method)
				}
				writeJSON(t, w, http.StatusOK, map[string]string{"user_music_setting_id": "u-new"})
			}))
			defer server.Close()

			id, err := NewMusicClient(server.URL, nil, nil).Update(ctx, models.MergedMusicView{CommonID: "c1", ExternalID: "sm1", Title: "One"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if id != "u-new" {
				t.Errorf("expected u-new, got %q", id)
			}
		})

		t.Run("Falls Back To Existing ID", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, map[string]string{"message": "updated"})
			}))
			defer server.Close()

			id, err := NewMusicClient(server.URL, nil, nil).Update(ctx, models.MergedMusicView{CommonID: "c1", UserSettingID: "u1"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if id != "u1" {
				t.Errorf("expected u1, got %q", id)
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Errorf("expected DELETE, got %s", r.Method)
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["music_common_id"] != "c1" || body["user_music_setting_id"] != "u1" {
				t.Errorf("unexpected body %v", body)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		if err := NewMusicClient(server.URL, nil, nil).Delete(ctx, "c1", "u1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("BulkImport", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/music/bulk-import" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			result := models.NewBulkImportResult()
			result.Success = 1
			result.Skip = 1
			result.Details.Success = []string{"sm1"}
			result.Details.Skip = []string{"sm2"}
			result.CreatedItems = []models.CreatedItem{{ExternalID: "sm1", CommonID: "c1", Title: "One"}}
			writeJSON(t, w, http.StatusOK, result)
		}))
		defer server.Close()

		result, err := NewMusicClient(server.URL, nil, nil).BulkImport(ctx, []models.BulkImportItem{
			{ExternalID: "sm1", Title: "One"},
			{ExternalID: "sm2", Title: "Two"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Success != 1 || result.Skip != 1 || len(result.CreatedItems) != 1 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}))
		defer server.Close()

		_, err := NewMusicClient(server.URL, nil, nil).List(ctx)
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}

		_, err := NewMusicClient("http://example.com", client, nil).List(ctx)
		if !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := NewMusicClient(server.URL, nil, nil).List(ctx)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}

func TestMusicClientLookups(t *testing.T) {
	ctx := context.Background()

	t.Run("VideoInfo", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Query().Get("video_id") {
			case "sm9":
				writeJSON(t, w, http.StatusOK, map[string]string{"status": "success", "video_id": "sm9", "title": "Nine"})
			default:
				writeJSON(t, w, http.StatusOK, map[string]string{"status": "failure", "message": "video not found"})
			}
		}))
		defer server.Close()

		client := NewMusicClient(server.URL, nil, nil)
		info, err := client.VideoInfo(ctx, "sm9")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.Title != "Nine" {
			t.Errorf("expected title Nine, got %q", info.Title)
		}

		if _, err := client.VideoInfo(ctx, "sm0"); !errors.Is(err, shared.ErrVideoNotFound) {
			t.Errorf("expected ErrVideoNotFound, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("q") != "vocaloid" || r.URL.Query().Get("limit") != "3" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"status":  "success",
				"results": []SearchResult{{ContentID: "sm1", Title: "One", ViewCounter: 10}},
			})
		}))
		defer server.Close()

		results, err := NewMusicClient(server.URL, nil, nil).Search(ctx, "vocaloid", 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(results) != 1 || results[0].ContentID != "sm1" {
			t.Errorf("unexpected results %+v", results)
		}
	})

	t.Run("Submit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/register" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var req models.RegisterRequest
			json.NewDecoder(r.Body).Decode(&req)
			if len(req.IDList) != 2 {
				t.Errorf("expected 2 ids, got %v", req.IDList)
			}
			writeJSON(t, w, http.StatusAccepted, Job{ID: "job-1", Message: "accepted"})
		}))
		defer server.Close()

		job, err := NewMusicClient(server.URL, nil, nil).Submit(ctx, "", models.RegisterRequest{
			Email: "a@example.com", Password: "pw", IDList: []string{"sm1", "sm2"},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if job.ID != "job-1" {
			t.Errorf("expected job-1, got %q", job.ID)
		}
	})
}
