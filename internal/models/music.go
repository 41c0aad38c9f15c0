package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MusicInput is the body of a create request.
type MusicInput struct {
	ExternalID string `json:"music_id"`
	Title      string `json:"title"`
	Favorite   bool   `json:"favorite"`
	Skip       bool   `json:"skip"`
	Memo       string `json:"memo"`
}

// View builds the list entry a confirmed create produces.
func (in MusicInput) View(ids CreatedIDs) MergedMusicView {
	return MergedMusicView{
		CommonID:      ids.CommonID,
		UserSettingID: ids.UserSettingID,
		ExternalID:    in.ExternalID,
		Title:         in.Title,
		Favorite:      in.Favorite,
		Skip:          in.Skip,
		Memo:          in.Memo,
	}
}

// CreatedIDs are the server-generated identifiers of a created entry.
type CreatedIDs struct {
	CommonID      string `json:"music_common_id"`
	UserSettingID string `json:"user_music_setting_id"`
}

// BulkImportItem is one row of a bulk import.
type BulkImportItem struct {
	ExternalID string `json:"music_id"`
	Title      string `json:"title"`
}

// CreatedItem reports a common record created by a bulk import.
type CreatedItem struct {
	ExternalID string `json:"music_id"`
	CommonID   string `json:"music_common_id"`
	Title      string `json:"title"`
}

// BulkImportDetails lists the external ids per outcome.
type BulkImportDetails struct {
	Success []string `json:"success"`
	Failure []string `json:"failure"`
	Skip    []string `json:"skip"`
}

// BulkImportResult summarises a bulk import.
//
// Per-item store failures are counted in Failure; they never fail the batch as a whole.
type BulkImportResult struct {
	Success      int               `json:"success"`
	Failure      int               `json:"failure"`
	Skip         int               `json:"skip"`
	Details      BulkImportDetails `json:"details"`
	CreatedItems []CreatedItem     `json:"createdItems"`
}

// NewBulkImportResult returns an empty result whose lists encode as [] rather than null.
func NewBulkImportResult() *BulkImportResult {
	return &BulkImportResult{
		Details: BulkImportDetails{
			Success: []string{},
			Failure: []string{},
			Skip:    []string{},
		},
		CreatedItems: []CreatedItem{},
	}
}

// Partial reports whether some, but not all, processed items failed.
func (r *BulkImportResult) Partial() bool {
	return r.Failure > 0 && r.Success+r.Skip > 0
}

// Views converts every created item into a list entry without personal settings.
func (r *BulkImportResult) Views() []MergedMusicView {
	views := make([]MergedMusicView, 0, len(r.CreatedItems))
	for _, item := range r.CreatedItems {
		views = append(views, MergedMusicView{
			CommonID:   item.CommonID,
			ExternalID: item.ExternalID,
			Title:      item.Title,
		})
	}
	return views
}

// RegisterRequest starts an auto-registration job on the external worker.
//
// Subscription is the browser push subscription, passed through untouched.
type RegisterRequest struct {
	Email        string          `json:"email"`
	Password     string          `json:"password"`
	IDList       []string        `json:"id_list"`
	Title        string          `json:"title,omitempty"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

// Notification is delivered to a user when a registration job finishes.
type Notification struct {
	Message   string   `json:"message"`
	FailedIDs []string `json:"failed_ids,omitempty"`
	JobID     string   `json:"job_id,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

// CompletionMessage words the result of a registration job the way the worker reports it.
func CompletionMessage(failedIDs []string) string {
	if len(failedIDs) == 0 {
		return "registration finished: all videos were added"
	}
	return fmt.Sprintf("registration finished: %d videos failed", len(failedIDs))
}

// DefaultMylistTitle names a mylist after the local time it was requested at.
func DefaultMylistTitle(now time.Time) string {
	return "CustomMylist_" + now.Format("20060102_150405")
}
