package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/store"
)

// MusicRepository reads and writes music entries for any owner.
type MusicRepository struct {
	store  store.Store
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// ListAll returns every common record joined with ownerID's settings.
//
// On failure nothing is returned; callers never see a partial list.
func (r *MusicRepository) ListAll(ctx context.Context, ownerID string) ([]models.MergedMusicView, error) {
	commons, err := r.store.Scan(ctx, store.Filter{Kind: models.KindMusic})
	if err != nil {
		return nil, fmt.Errorf("failed to list music: %w", err)
	}

	settings, err := r.store.Scan(ctx, store.Filter{Kind: models.KindUser, OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}

	c := make([]models.CommonMusicRecord, 0, len(commons))
	for _, rec := range commons {
		c = append(c, rec.Common())
	}
	s := make([]models.UserSettingRecord, 0, len(settings))
	for _, rec := range settings {
		s = append(s, rec.Setting())
	}

	views := models.Merge(c, s)
	r.logger.Debug("listed entries", "owner", ownerID, "count", len(views))
	return views, nil
}

// exists reports whether a live common record for externalID is in the store.
//
// The check is catalog-wide: an entry registered by any owner counts.
func (r *MusicRepository) exists(ctx context.Context, externalID string) (bool, error) {
	found, err := r.store.Scan(ctx, store.Filter{Kind: models.KindMusic, ExternalID: externalID})
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

// CreateEntry registers a new external id with ownerID's settings.
//
// Fails with [shared.ErrDuplicateEntry] when any owner already registered the id.
func (r *MusicRepository) CreateEntry(ctx context.Context, ownerID string, in models.MusicInput) (models.CreatedIDs, error) {
	if err := in.Validate(); err != nil {
		return models.CreatedIDs{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	dup, err := r.exists(ctx, in.ExternalID)
	if err != nil {
		return models.CreatedIDs{}, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if dup {
		return models.CreatedIDs{}, shared.ErrDuplicateEntry
	}

	now := r.timestamp()
	common := models.CommonMusicRecord{
		ID:         r.newID(),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExternalID: in.ExternalID,
		Title:      in.Title,
	}
	setting := models.UserSettingRecord{
		ID:         r.newID(),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExternalID: in.ExternalID,
		OwnerID:    ownerID,
		Favorite:   in.Favorite,
		Skip:       in.Skip,
		Memo:       in.Memo,
	}

	if err := r.store.Put(ctx, common.Record()); err != nil {
		return models.CreatedIDs{}, fmt.Errorf("failed to create music record: %w", err)
	}
	if err := r.store.Put(ctx, setting.Record()); err != nil {
		r.logger.Warn("music record created without settings", "music_common_id", common.ID, "error", err)
		return models.CreatedIDs{}, fmt.Errorf("failed to create settings record: %w", err)
	}

	r.logger.Info("created entry", "owner", ownerID, "music_id", in.ExternalID, "music_common_id", common.ID)
	return models.CreatedIDs{CommonID: common.ID, UserSettingID: setting.ID}, nil
}

// UpdateEntry writes an edited entry and returns the id of ownerID's settings record.
//
// The common record's id and title are overwritten unconditionally. An empty
// UserSettingID creates the owner's first settings record; otherwise the named
// record is updated in place and reassigned to ownerID. No check is made that the
// named record belonged to ownerID before the update.
func (r *MusicRepository) UpdateEntry(ctx context.Context, ownerID string, view models.MergedMusicView) (string, error) {
	if err := view.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := r.timestamp()
	commonKey := store.Key{ID: view.CommonID, Kind: models.KindMusic}
	commonPatch := store.Patch{
		ExternalID: store.Ptr(view.ExternalID),
		Title:      store.Ptr(view.Title),
		UpdatedAt:  now,
	}
	if err := r.store.Update(ctx, commonKey, commonPatch); err != nil {
		return "", fmt.Errorf("failed to update music record: %w", err)
	}

	if view.UserSettingID == "" {
		setting := models.UserSettingRecord{
			ID:         r.newID(),
			CreatedAt:  now,
			UpdatedAt:  now,
			ExternalID: view.ExternalID,
			OwnerID:    ownerID,
			Favorite:   view.Favorite,
			Skip:       view.Skip,
			Memo:       view.Memo,
		}
		if err := r.store.Put(ctx, setting.Record()); err != nil {
			return "", fmt.Errorf("failed to create settings record: %w", err)
		}
		r.logger.Info("created settings", "owner", ownerID, "user_music_setting_id", setting.ID)
		return setting.ID, nil
	}

	settingKey := store.Key{ID: view.UserSettingID, Kind: models.KindUser}
	settingPatch := store.Patch{
		ExternalID: store.Ptr(view.ExternalID),
		OwnerID:    store.Ptr(ownerID),
		Favorite:   store.Ptr(view.Favorite),
		Skip:       store.Ptr(view.Skip),
		Memo:       store.Ptr(view.Memo),
		UpdatedAt:  now,
	}
	if err := r.store.Update(ctx, settingKey, settingPatch); err != nil {
		return "", fmt.Errorf("failed to update settings record: %w", err)
	}

	r.logger.Debug("updated entry", "owner", ownerID, "music_common_id", view.CommonID)
	return view.UserSettingID, nil
}

// DeleteEntry removes the common record and then the settings record.
//
// The two deletes are not atomic. When the second fails the returned error is a
// [*shared.OrphanedRecordError] naming the settings record left behind. An empty
// userSettingID skips the second delete.
func (r *MusicRepository) DeleteEntry(ctx context.Context, commonID, userSettingID string) error {
	if commonID == "" {
		return fmt.Errorf("%w: music_common_id is required", shared.ErrInvalidInput)
	}

	if err := r.store.Delete(ctx, store.Key{ID: commonID, Kind: models.KindMusic}); err != nil {
		return fmt.Errorf("failed to delete music record: %w", err)
	}

	if userSettingID == "" {
		r.logger.Info("deleted entry", "music_common_id", commonID)
		return nil
	}

	if err := r.store.Delete(ctx, store.Key{ID: userSettingID, Kind: models.KindUser}); err != nil {
		r.logger.Error("settings record orphaned", "music_common_id", commonID, "user_music_setting_id", userSettingID, "error", err)
		return &shared.OrphanedRecordError{
			RemainingID:   userSettingID,
			RemainingKind: string(models.KindUser),
			Err:           err,
		}
	}

	r.logger.Info("deleted entry", "music_common_id", commonID, "user_music_setting_id", userSettingID)
	return nil
}

// BulkImport creates common records for items whose external id is not registered yet.
//
// Existing ids are read once before any write; the set grows as items are created,
// so repeats within the batch are skipped too. Items are processed in order and
// a failed item is counted without stopping the batch. No settings records are created.
func (r *MusicRepository) BulkImport(ctx context.Context, ownerID string, items []models.BulkImportItem) (*models.BulkImportResult, error) {
	existing, err := r.store.Scan(ctx, store.Filter{Kind: models.KindMusic})
	if err != nil {
		return nil, fmt.Errorf("failed to load existing music: %w", err)
	}

	seen := make(map[string]bool, len(existing)+len(items))
	for _, rec := range existing {
		seen[rec.ExternalID] = true
	}

	result := models.NewBulkImportResult()
	now := r.timestamp()

	for _, item := range items {
		if seen[item.ExternalID] {
			result.Skip++
			result.Details.Skip = append(result.Details.Skip, item.ExternalID)
			continue
		}

		common := models.CommonMusicRecord{
			ID:         r.newID(),
			CreatedAt:  now,
			UpdatedAt:  now,
			ExternalID: item.ExternalID,
			Title:      item.Title,
		}
		if err := r.store.Put(ctx, common.Record()); err != nil {
			r.logger.Warn("failed to import item", "music_id", item.ExternalID, "error", err)
			result.Failure++
			result.Details.Failure = append(result.Details.Failure, item.ExternalID)
			continue
		}

		result.Success++
		result.Details.Success = append(result.Details.Success, item.ExternalID)
		result.CreatedItems = append(result.CreatedItems, models.CreatedItem{
			ExternalID: item.ExternalID,
			CommonID:   common.ID,
			Title:      item.Title,
		})
		seen[item.ExternalID] = true
	}

	r.logger.Info("bulk import finished",
		"owner", ownerID,
		"success", result.Success,
		"skip", result.Skip,
		"failure", result.Failure,
	)
	return result, nil
}

// OwnerScope binds a repository to one owner.
//
// It satisfies the cache controller's backend interface for in-process use.
type OwnerScope struct {
	repo    *MusicRepository
	ownerID string
}

// ForOwner returns the repository scoped to ownerID.
func (r *MusicRepository) ForOwner(ownerID string) *OwnerScope {
	return &OwnerScope{repo: r, ownerID: ownerID}
}

// Owner returns the bound owner id.
func (o *OwnerScope) Owner() string { return o.ownerID }

func (o *OwnerScope) List(ctx context.Context) ([]models.MergedMusicView, error) {
	return o.repo.ListAll(ctx, o.ownerID)
}

func (o *OwnerScope) Create(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error) {
	return o.repo.CreateEntry(ctx, o.ownerID, in)
}

func (o *OwnerScope) Update(ctx context.Context, view models.MergedMusicView) (string, error) {
	return o.repo.UpdateEntry(ctx, o.ownerID, view)
}

func (o *OwnerScope) Delete(ctx context.Context, commonID, userSettingID string) error {
	return o.repo.DeleteEntry(ctx, commonID, userSettingID)
}

func (o *OwnerScope) BulkImport(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error) {
	return o.repo.BulkImport(ctx, o.ownerID, items)
}
