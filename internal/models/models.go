// package models defines the data model for the mylist assistant
package models

import "fmt"

// Kind discriminates the two record kinds stored in the shared table.
type Kind string

const (
	KindMusic Kind = "music"
	KindUser  Kind = "user"
)

// Valid reports whether k is one of the known record kinds.
func (k Kind) Valid() bool {
	return k == KindMusic || k == KindUser
}

// Model defines the base interface for both persisted record kinds.
type Model interface {
	Key() (string, Kind) // Key returns the composite (id, kind) primary key
	Deleted() bool       // Deleted reports whether the record carries a deletion timestamp
	Validate() error     // Validate checks the record before it is written
}

// Record is the physical row shape shared by both kinds.
//
// Fields that do not apply to a kind stay at their zero value.
type Record struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
	DeletedAt  string `json:"deleted_at"`
	ExternalID string `json:"music_id"`
	Title      string `json:"title,omitempty"`
	OwnerID    string `json:"user_id,omitempty"`
	Favorite   bool   `json:"favorite,omitempty"`
	Skip       bool   `json:"skip,omitempty"`
	Memo       string `json:"memo,omitempty"`
}

func (r Record) Key() (string, Kind) { return r.ID, r.Kind }
func (r Record) Deleted() bool       { return r.DeletedAt != "" }

// Validate checks the fields every record needs.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	if r.ExternalID == "" {
		return fmt.Errorf("record %s: music id is required", r.ID)
	}
	if r.Kind == KindUser && r.OwnerID == "" {
		return fmt.Errorf("record %s: user id is required for user settings", r.ID)
	}
	return nil
}

// Common projects a music record, dropping the user-only fields.
func (r Record) Common() CommonMusicRecord {
	return CommonMusicRecord{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
		ExternalID: r.ExternalID,
		Title:      r.Title,
	}
}

// Setting projects a user record.
func (r Record) Setting() UserSettingRecord {
	return UserSettingRecord{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		DeletedAt:  r.DeletedAt,
		ExternalID: r.ExternalID,
		OwnerID:    r.OwnerID,
		Favorite:   r.Favorite,
		Skip:       r.Skip,
		Memo:       r.Memo,
	}
}

// CommonMusicRecord is the shared metadata for one external video id.
type CommonMusicRecord struct {
	ID         string
	CreatedAt  string
	UpdatedAt  string
	DeletedAt  string
	ExternalID string
	Title      string
}

// Record converts c to its physical row.
func (c CommonMusicRecord) Record() Record {
	return Record{
		ID:         c.ID,
		Kind:       KindMusic,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		DeletedAt:  c.DeletedAt,
		ExternalID: c.ExternalID,
		Title:      c.Title,
	}
}

// UserSettingRecord holds one owner's personal flags for an external video id.
type UserSettingRecord struct {
	ID         string
	CreatedAt  string
	UpdatedAt  string
	DeletedAt  string
	ExternalID string
	OwnerID    string
	Favorite   bool
	Skip       bool
	Memo       string
}

// Record converts s to its physical row.
func (s UserSettingRecord) Record() Record {
	return Record{
		ID:         s.ID,
		Kind:       KindUser,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
		DeletedAt:  s.DeletedAt,
		ExternalID: s.ExternalID,
		OwnerID:    s.OwnerID,
		Favorite:   s.Favorite,
		Skip:       s.Skip,
		Memo:       s.Memo,
	}
}

// MergedMusicView is one entry of a user's list: the common record joined with the caller's settings.
//
// UserSettingID is empty when the owner has not personalized the entry yet.
type MergedMusicView struct {
	CommonID      string `json:"music_common_id"`
	UserSettingID string `json:"user_music_setting_id"`
	ExternalID    string `json:"music_id"`
	Title         string `json:"title"`
	Favorite      bool   `json:"favorite"`
	Skip          bool   `json:"skip"`
	Memo          string `json:"memo"`
}

// Merge left-joins commons with settings on the external id.
//
// Deleted records on either side are ignored. Output follows the order of commons.
// When several settings share an external id the first one wins.
func Merge(commons []CommonMusicRecord, settings []UserSettingRecord) []MergedMusicView {
	byExternal := make(map[string]UserSettingRecord, len(settings))
	for _, s := range settings {
		if s.DeletedAt != "" {
			continue
		}
		if _, ok := byExternal[s.ExternalID]; !ok {
			byExternal[s.ExternalID] = s
		}
	}

	views := make([]MergedMusicView, 0, len(commons))
	for _, c := range commons {
		if c.DeletedAt != "" {
			continue
		}
		view := MergedMusicView{
			CommonID:   c.ID,
			ExternalID: c.ExternalID,
			Title:      c.Title,
		}
		if s, ok := byExternal[c.ExternalID]; ok {
			view.UserSettingID = s.ID
			view.Favorite = s.Favorite
			view.Skip = s.Skip
			view.Memo = s.Memo
		}
		views = append(views, view)
	}
	return views
}
