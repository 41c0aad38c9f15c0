package cache

import (
	"fmt"
	"strings"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// PageSize is the number of entries per page.
const PageSize = 20

// FlagFilter restricts a boolean field of an entry.
type FlagFilter int

const (
	FlagAny     FlagFilter = iota // FlagAny matches both values
	FlagOnly                      // FlagOnly matches entries with the flag set
	FlagExclude                   // FlagExclude matches entries with the flag unset
)

func (f FlagFilter) String() string {
	switch f {
	case FlagOnly:
		return "only"
	case FlagExclude:
		return "exclude"
	default:
		return "any"
	}
}

// ParseFlagFilter reads "any", "only" or "exclude". The empty string is "any".
func ParseFlagFilter(s string) (FlagFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all":
		return FlagAny, nil
	case "only", "yes", "true":
		return FlagOnly, nil
	case "exclude", "no", "false":
		return FlagExclude, nil
	default:
		return FlagAny, fmt.Errorf("%w: flag filter %q", shared.ErrInvalidArgument, s)
	}
}

func (f FlagFilter) match(v bool) bool {
	switch f {
	case FlagOnly:
		return v
	case FlagExclude:
		return !v
	default:
		return true
	}
}

// Query selects cached entries.
//
// Term matches an external id prefix or a title substring, ignoring case.
// All three conditions must hold.
type Query struct {
	Term     string
	Favorite FlagFilter
	Skip     FlagFilter
}

// Match reports whether v satisfies q.
func (q Query) Match(v models.MergedMusicView) bool {
	if term := strings.ToLower(strings.TrimSpace(q.Term)); term != "" {
		if !strings.HasPrefix(strings.ToLower(v.ExternalID), term) &&
			!strings.Contains(strings.ToLower(v.Title), term) {
			return false
		}
	}
	return q.Favorite.match(v.Favorite) && q.Skip.match(v.Skip)
}

// Filter returns the entries of views matching q, in their original order.
func Filter(views []models.MergedMusicView, q Query) []models.MergedMusicView {
	out := make([]models.MergedMusicView, 0, len(views))
	for _, v := range views {
		if q.Match(v) {
			out = append(out, v)
		}
	}
	return out
}

// PageResult is one window of a filtered list. Page is 1-based.
type PageResult struct {
	Items      []models.MergedMusicView
	Page       int
	TotalPages int
	TotalItems int
}

// Paginate slices views into the given 1-based page of PageSize entries.
//
// Pages below 1 or past the end are clamped. An empty list has one empty page.
func Paginate(views []models.MergedMusicView, page int) PageResult {
	total := len(views)
	pages := (total + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	page = min(max(page, 1), pages)

	start := (page - 1) * PageSize
	end := min(start+PageSize, total)

	return PageResult{
		Items:      append([]models.MergedMusicView{}, views[start:end]...),
		Page:       page,
		TotalPages: pages,
		TotalItems: total,
	}
}

// Filter returns the cached entries matching q.
func (c *Controller) Filter(q Query) []models.MergedMusicView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Filter(c.entries, q)
}

// Page filters the cache with q and returns the requested page.
func (c *Controller) Page(q Query, page int) PageResult {
	return Paginate(c.Filter(q), page)
}
