package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Key is the composite primary key of a record.
type Key struct {
	ID   string
	Kind models.Kind
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// KeyOf returns the key of r.
func KeyOf(r models.Record) Key {
	return Key{ID: r.ID, Kind: r.Kind}
}

// Filter narrows a scan. Zero-valued fields match everything.
type Filter struct {
	Kind           models.Kind
	ExternalID     string
	OwnerID        string
	IncludeDeleted bool
}

// Match reports whether r passes the filter.
func (f Filter) Match(r models.Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.ExternalID != "" && r.ExternalID != f.ExternalID {
		return false
	}
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if !f.IncludeDeleted && r.Deleted() {
		return false
	}
	return true
}

// Patch lists the attributes an update sets. Nil fields are left alone.
type Patch struct {
	ExternalID *string
	Title      *string
	OwnerID    *string
	Memo       *string
	Favorite   *bool
	Skip       *bool
	UpdatedAt  string
}

// Empty reports whether p sets nothing.
func (p Patch) Empty() bool {
	return p.ExternalID == nil && p.Title == nil && p.OwnerID == nil && p.Memo == nil &&
		p.Favorite == nil && p.Skip == nil && p.UpdatedAt == ""
}

// Apply writes the non-nil attributes of p onto r.
func (p Patch) Apply(r *models.Record) {
	if p.ExternalID != nil {
		r.ExternalID = *p.ExternalID
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.OwnerID != nil {
		r.OwnerID = *p.OwnerID
	}
	if p.Memo != nil {
		r.Memo = *p.Memo
	}
	if p.Favorite != nil {
		r.Favorite = *p.Favorite
	}
	if p.Skip != nil {
		r.Skip = *p.Skip
	}
	if p.UpdatedAt != "" {
		r.UpdatedAt = p.UpdatedAt
	}
}

// Ptr returns a pointer to v, for building a [Patch].
func Ptr[T any](v T) *T {
	return &v
}

// Store is a scan-and-filter key-value collection of records.
type Store interface {
	Scan(ctx context.Context, f Filter) ([]models.Record, error) // Scan returns every record matching f in insertion order
	Put(ctx context.Context, r models.Record) error              // Put inserts r or replaces the record with the same key
	Update(ctx context.Context, k Key, p Patch) error            // Update sets the patched attributes of an existing record
	Delete(ctx context.Context, k Key) error                     // Delete removes a record; a missing key is not an error
	Close() error
}

// Open returns the backend selected by config.Store.Driver.
func Open(ctx context.Context, config *shared.Config, logger *log.Logger) (Store, error) {
	switch config.Store.Driver {
	case "", "sqlite":
		db, err := shared.OpenDatabase(config.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
		}
		logger.Debug("opened sqlite store", "path", config.Database.Path)
		return NewSQLiteStore(db), nil
	case "redis":
		s, err := DialRedis(ctx, config.Redis)
		if err != nil {
			return nil, err
		}
		logger.Debug("opened redis store", "prefix", config.Redis.KeyPrefix)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", shared.ErrInvalidConfig, config.Store.Driver)
	}
}

const retryMaxElapsed = 10 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed
	return bo
}

// isRetryableError reports transient connection and lock errors from either backend.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{
		"database is locked",
		"database table is locked",
		"driver: bad connection",
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"loading the dataset in memory",
		"transaction failed",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// withRetry runs op, retrying transient errors with exponential backoff until ctx is done.
func withRetry(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newRetryBackoff(), ctx))
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", shared.ErrStoreUnavailable, action, err)
}
