package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Backend performs confirmed mutations for one owner.
//
// Implemented in-process by the repository's owner scope and over HTTP by the music API client.
type Backend interface {
	List(ctx context.Context) ([]models.MergedMusicView, error)
	Create(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error)
	Update(ctx context.Context, view models.MergedMusicView) (string, error)
	Delete(ctx context.Context, commonID, userSettingID string) error
	BulkImport(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error)
}

// Controller owns the cached list.
//
// Backend calls run without the lock held, so confirmations may be applied out
// of issue order. Patches address entries by server-assigned id; two in-flight
// patches to the same id resolve last-confirmed-wins.
type Controller struct {
	backend        Backend
	logger         *log.Logger
	onUnauthorized func()

	mu        sync.RWMutex
	entries   []models.MergedMusicView
	populated bool
}

// NewController creates an empty, unpopulated controller.
func NewController(backend Backend, logger *log.Logger) *Controller {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Controller{
		backend: backend,
		logger:  shared.WithLogger(logger, "component", "cache"),
	}
}

// OnUnauthorized registers the force-logout hook run when the backend rejects the session.
func (c *Controller) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// fail inspects a backend error before it is returned to the caller.
//
// An unauthorized session empties the cache and triggers the logout hook; it is never retried.
func (c *Controller) fail(op string, err error) error {
	if errors.Is(err, shared.ErrUnauthorized) {
		c.logger.Warn("session rejected, clearing cache", "op", op)
		c.Reset()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return err
	}
	c.logger.Debug("backend call failed", "op", op, "error", err)
	return err
}

// Reset empties the cache and marks it unpopulated.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.populated = false
}

// Sync replaces the cache with a fresh list from the backend.
func (c *Controller) Sync(ctx context.Context) error {
	views, err := c.backend.List(ctx)
	if err != nil {
		return c.fail("sync", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append([]models.MergedMusicView(nil), views...)
	c.populated = true
	c.logger.Debug("synced", "count", len(views))
	return nil
}

// Create registers a new entry and appends it with the server-assigned ids.
func (c *Controller) Create(ctx context.Context, in models.MusicInput) (models.MergedMusicView, error) {
	ids, err := c.backend.Create(ctx, in)
	if err != nil {
		return models.MergedMusicView{}, c.fail("create", err)
	}

	view := in.View(ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, view)
	return view, nil
}

// SearchAdd registers a search result with default settings.
func (c *Controller) SearchAdd(ctx context.Context, externalID, title string) (models.MergedMusicView, error) {
	return c.Create(ctx, models.MusicInput{ExternalID: externalID, Title: title})
}

// Update saves an edited entry and replaces the cached entry with the same common id.
//
// The submitted fields are stored as given. When the entry had no settings
// record yet, the id the backend created for it is filled in so the next edit
// updates that record instead of creating another one.
func (c *Controller) Update(ctx context.Context, view models.MergedMusicView) (models.MergedMusicView, error) {
	settingID, err := c.backend.Update(ctx, view)
	if err != nil {
		return models.MergedMusicView{}, c.fail("update", err)
	}
	if view.UserSettingID == "" {
		view.UserSettingID = settingID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].CommonID == view.CommonID {
			c.entries[i] = view
			return view, nil
		}
	}
	// Removed by a concurrent delete or sync while the update was in flight.
	c.logger.Debug("updated entry not cached", "music_common_id", view.CommonID)
	return view, nil
}

// Delete removes an entry once the backend confirmed both deletes.
func (c *Controller) Delete(ctx context.Context, commonID, userSettingID string) error {
	if err := c.backend.Delete(ctx, commonID, userSettingID); err != nil {
		return c.fail("delete", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.CommonID != commonID {
			kept = append(kept, e)
		}
	}
	c.entries = kept
	return nil
}

// BulkImport imports items and appends one default entry per created item.
//
// Per-item failures are reported in the result and do not fail the call.
func (c *Controller) BulkImport(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error) {
	result, err := c.backend.BulkImport(ctx, items)
	if err != nil {
		return nil, c.fail("bulk-import", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, result.Views()...)
	return result, nil
}

// Entries returns a copy of the cached list.
func (c *Controller) Entries() []models.MergedMusicView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.MergedMusicView(nil), c.entries...)
}

// Len returns the number of cached entries.
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Populated reports whether a sync has succeeded since the last reset.
func (c *Controller) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.populated
}

// Get returns the cached entry with commonID.
func (c *Controller) Get(commonID string) (models.MergedMusicView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.CommonID == commonID {
			return e, true
		}
	}
	return models.MergedMusicView{}, false
}

// Find returns the first cached entry for externalID.
func (c *Controller) Find(externalID string) (models.MergedMusicView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.ExternalID == externalID {
			return e, true
		}
	}
	return models.MergedMusicView{}, false
}
