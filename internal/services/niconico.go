package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultInfoURL   = "https://ext.nicovideo.jp/api/getthumbinfo"
	DefaultSearchURL = "https://api.search.nicovideo.jp/api/v2/snapshot/video/contents/search"

	// DefaultSearchLimit is the number of most viewed hits a search returns.
	DefaultSearchLimit = 5
	maxSearchLimit     = 100

	searchTargets = "title,description,tags"
	searchFields  = "contentId,title,description,tags,viewCounter,startTime,thumbnailUrl"
	searchContext = "niconico-mylist-assistant"
	userAgent     = "nma/1.0 (+https://github.com/nagiyu/niconico-mylist-assistant)"
)

// Failure messages surfaced to users by the info endpoint.
const (
	MsgInfoFailed    = "ERROR: Failure getting info."
	MsgInfoEmpty     = "ERROR: Empty response from API."
	MsgInfoNotFound  = "ERROR: Not Found or Invalid video ID."
	MsgInfoNoTitle   = "ERROR: Could not extract title from response."
	MsgInfoNetwork   = "ERROR: Network or server error."
	MsgSearchFailed  = "search API returned an error"
	MsgSearchNoHits  = "no search results were found"
	MsgSearchNetwork = "an error occurred while searching"
)

// NiconicoService reads video metadata from niconico's public APIs.
type NiconicoService struct {
	infoURL    string
	searchURL  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
	maxElapsed time.Duration
}

// NewNiconicoService creates a service from config. Empty URLs fall back to the public endpoints.
//
// A rate limit of zero or less disables throttling.
func NewNiconicoService(cfg shared.NiconicoConfig, client *http.Client, logger *log.Logger) *NiconicoService {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	infoURL := cfg.InfoURL
	if infoURL == "" {
		infoURL = DefaultInfoURL
	}
	searchURL := cfg.SearchURL
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &NiconicoService{
		infoURL:    strings.TrimRight(infoURL, "/"),
		searchURL:  searchURL,
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     shared.WithLogger(logger, "component", "niconico"),
		maxElapsed: 10 * time.Second,
	}
}

// statusError carries a non-2xx upstream status through the retry loop.
type statusError struct{ code int }

func (e *statusError) Error() string { return fmt.Sprintf("upstream returned status %d", e.code) }

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// fetch GETs rawURL, waiting on the rate limiter before every attempt.
//
// Transport errors, 429 and 5xx are retried; other statuses fail at once.
func (s *NiconicoService) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = s.maxElapsed

	var body []byte
	err := backoff.Retry(func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json, text/xml, */*")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			s.logger.Debug("request failed, retrying", "url", rawURL, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &statusError{code: resp.StatusCode}
			if serr.retryable() {
				s.logger.Debug("upstream busy, retrying", "url", rawURL, "status", resp.StatusCode)
				return serr
			}
			return backoff.Permanent(serr)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	return body, err
}

// thumbInfo is the part of the getthumbinfo document the service reads.
type thumbInfo struct {
	XMLName xml.Name `xml:"nicovideo_thumb_response"`
	Status  string   `xml:"status,attr"`
	Error   *struct {
		Code        string `xml:"code"`
		Description string `xml:"description"`
	} `xml:"error"`
	Thumb struct {
		VideoID string `xml:"video_id"`
		Title   string `xml:"title"`
	} `xml:"thumb"`
}

// ParseThumbInfo extracts the title from a getthumbinfo document.
//
// CDATA and plain titles decode the same way. An <error> element or a status other than "ok"
// reports [shared.ErrVideoNotFound].
func ParseThumbInfo(videoID string, data []byte) (*VideoInfo, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrAPIRequest, MsgInfoEmpty)
	}

	var doc thumbInfo
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, MsgInfoNoTitle, err)
	}

	if doc.Error != nil || (doc.Status != "" && doc.Status != "ok") {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, MsgInfoNotFound)
	}

	if doc.Thumb.Title == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrAPIRequest, MsgInfoNoTitle)
	}

	return &VideoInfo{VideoID: videoID, Title: doc.Thumb.Title}, nil
}

// VideoInfo looks up the title of videoID.
func (s *NiconicoService) VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, fmt.Errorf("%w: video_id is required", shared.ErrInvalidInput)
	}

	body, err := s.fetch(ctx, s.infoURL+"/"+url.PathEscape(videoID))
	if err != nil {
		var serr *statusError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, MsgInfoFailed, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, MsgInfoNetwork, err)
	}

	info, err := ParseThumbInfo(videoID, body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("resolved video", "video_id", videoID, "title", info.Title)
	return info, nil
}

// SearchURL builds the snapshot search query for keyword.
func (s *NiconicoService) SearchURL(keyword string, limit int) string {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	q := url.Values{}
	q.Set("q", keyword)
	q.Set("targets", searchTargets)
	q.Set("fields", searchFields)
	q.Set("_sort", "-viewCounter")
	q.Set("_limit", fmt.Sprint(limit))
	q.Set("_context", searchContext)
	return s.searchURL + "?" + q.Encode()
}

// Search returns the most viewed videos matching keyword.
func (s *NiconicoService) Search(ctx context.Context, keyword string, limit int) ([]SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("%w: search keyword (q) is required", shared.ErrInvalidInput)
	}

	body, err := s.fetch(ctx, s.SearchURL(keyword, limit))
	if err != nil {
		var serr *statusError
		if errors.As(err, &serr) {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, MsgSearchFailed, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrServiceUnavailable, MsgSearchNetwork, err)
	}

	var payload struct {
		Data []SearchResult `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrAPIRequest, MsgSearchFailed, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrVideoNotFound, MsgSearchNoHits)
	}

	s.logger.Debug("search finished", "keyword", keyword, "hits", len(payload.Data))
	return payload.Data, nil
}
