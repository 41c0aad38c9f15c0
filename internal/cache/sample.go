package cache

import (
	"fmt"
	"sort"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Rand is the random source used for sampling; *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Sample picks up to count external ids at random from entries that are not skipped.
//
// Each eligible entry gets an independent random key and the entries are sorted
// by it, giving a uniform permutation; the first min(count, eligible) ids are returned.
func Sample(views []models.MergedMusicView, count int, rng Rand) ([]string, error) {
	if err := models.ValidateCount(count); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	type keyed struct {
		id  string
		key float64
	}
	eligible := make([]keyed, 0, len(views))
	for _, v := range views {
		if v.Skip {
			continue
		}
		eligible = append(eligible, keyed{id: v.ExternalID, key: rng.Float64()})
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].key < eligible[j].key })

	n := min(count, len(eligible))
	ids := make([]string, 0, n)
	for _, e := range eligible[:n] {
		ids = append(ids, e.id)
	}
	return ids, nil
}

// Sample draws from the cached list.
func (c *Controller) Sample(count int, rng Rand) ([]string, error) {
	return Sample(c.Entries(), count, rng)
}

// Eligible counts cached entries that may be sampled.
func (c *Controller) Eligible() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if !e.Skip {
			n++
		}
	}
	return n
}
