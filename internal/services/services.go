package services

import (
	"context"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
)

// VideoLookup resolves niconico video metadata.
type VideoLookup interface {
	// VideoInfo returns the title of a video.
	// Fails with [shared.ErrVideoNotFound] for unknown or invalid ids.
	VideoInfo(ctx context.Context, videoID string) (*VideoInfo, error)

	// Search returns the most viewed videos matching keyword.
	Search(ctx context.Context, keyword string, limit int) ([]SearchResult, error)
}

// IdentityProvider resolves an access token to the account it was issued for.
type IdentityProvider interface {
	UserInfo(ctx context.Context, accessToken string) (*UserInfo, error)
}

// JobSubmitter starts an asynchronous registration job.
//
// Submission only queues the job; completion is reported later as a notification.
type JobSubmitter interface {
	Submit(ctx context.Context, ownerID string, req models.RegisterRequest) (*Job, error)
}

// VideoInfo is the metadata of one niconico video.
type VideoInfo struct {
	VideoID string `json:"video_id"`
	Title   string `json:"title"`
}

// SearchResult is one hit of the niconico snapshot search.
type SearchResult struct {
	ContentID    string `json:"contentId"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Tags         string `json:"tags"`
	ViewCounter  int    `json:"viewCounter"`
	StartTime    string `json:"startTime"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

// UserInfo is the subset of the Google userinfo response the server needs.
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Job identifies a submitted registration job.
type Job struct {
	ID      string `json:"job_id"`
	Message string `json:"message"`
}
