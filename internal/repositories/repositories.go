// package repositories provides the record store adapter.
package repositories

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/store"
)

// Option configures a [MusicRepository].
type Option func(*MusicRepository)

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *MusicRepository) { r.now = now }
}

// WithIDGenerator replaces the record id source.
func WithIDGenerator(newID func() string) Option {
	return func(r *MusicRepository) { r.newID = newID }
}

// NewMusicRepository creates a [MusicRepository] over s.
func NewMusicRepository(s store.Store, logger *log.Logger, opts ...Option) *MusicRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	r := &MusicRepository{
		store:  s,
		logger: shared.WithLogger(logger, "component", "repository"),
		now:    time.Now,
		newID:  shared.GenerateID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MusicRepository) timestamp() string {
	return shared.Timestamp(r.now())
}
