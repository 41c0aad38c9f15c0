package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	tu "github.com/nagiyu/niconico-mylist-assistant/internal/testing"
)

func newTestController(backend Backend) *Controller {
	return NewController(backend, shared.NewLogger(io.Discard))
}

// countingBackend assigns sequential ids the way a server would.
func countingBackend() *tu.MockBackend {
	var mu sync.Mutex
	n := 0
	return &tu.MockBackend{
		CreateFn: func(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error) {
			mu.Lock()
			defer mu.Unlock()
			n++
			return models.CreatedIDs{CommonID: fmt.Sprintf("c%d", n), UserSettingID: fmt.Sprintf("u%d", n)}, nil
		},
	}
}

func TestController(t *testing.T) {
	ctx := context.Background()

	t.Run("Sync Replaces Cache", func(t *testing.T) {
		backend := &tu.MockBackend{
			ListFn: func(context.Context) ([]models.MergedMusicView, error) {
				return []models.MergedMusicView{{CommonID: "c1", ExternalID: "sm1"}}, nil
			},
		}
		c := newTestController(backend)
		if c.Populated() {
			t.Fatal("expected unpopulated cache before sync")
		}

		c.Create(ctx, models.MusicInput{ExternalID: "sm9", Title: "local"})
		if err := c.Sync(ctx); err != nil {
			t.Fatalf("sync failed: %v", err)
		}

		if !c.Populated() || c.Len() != 1 {
			t.Errorf("expected synced cache with 1 entry, got %d", c.Len())
		}
		if _, ok := c.Get("c1"); !ok {
			t.Error("expected c1 after sync")
		}
	})

	t.Run("Creates Are Addressable By Server ID", func(t *testing.T) {
		c := newTestController(countingBackend())

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.Create(ctx, models.MusicInput{ExternalID: fmt.Sprintf("sm%d", i), Title: "t"}); err != nil {
					t.Errorf("create failed: %v", err)
				}
			}()
		}
		wg.Wait()

		if c.Len() != 10 {
			t.Fatalf("expected 10 entries, got %d", c.Len())
		}
		for i := 1; i <= 10; i++ {
			v, ok := c.Get(fmt.Sprintf("c%d", i))
			if !ok {
				t.Errorf("expected entry c%d", i)
				continue
			}
			if v.UserSettingID != fmt.Sprintf("u%d", i) {
				t.Errorf("expected u%d on c%d, got %s", i, i, v.UserSettingID)
			}
		}
	})

	t.Run("Create Failure Leaves Cache", func(t *testing.T) {
		backend := &tu.MockBackend{
			CreateFn: func(context.Context, models.MusicInput) (models.CreatedIDs, error) {
				return models.CreatedIDs{}, shared.ErrDuplicateEntry
			},
		}
		c := newTestController(backend)

		_, err := c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "t"})
		if !errors.Is(err, shared.ErrDuplicateEntry) {
			t.Errorf("expected ErrDuplicateEntry, got %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d", c.Len())
		}
	})

	t.Run("SearchAdd Uses Defaults", func(t *testing.T) {
		c := newTestController(countingBackend())

		v, err := c.SearchAdd(ctx, "sm5", "found")
		if err != nil {
			t.Fatalf("search add failed: %v", err)
		}
		want := models.MergedMusicView{CommonID: "c1", UserSettingID: "u1", ExternalID: "sm5", Title: "found"}
		if v != want {
			t.Errorf("expected %+v, got %+v", want, v)
		}
	})

	t.Run("Update Replaces Entry", func(t *testing.T) {
		c := newTestController(countingBackend())
		v, _ := c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "old"})

		v.Title = "new"
		v.Favorite = true
		if _, err := c.Update(ctx, v); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, _ := c.Get(v.CommonID)
		if got != v {
			t.Errorf("expected %+v, got %+v", v, got)
		}
	})

	t.Run("Update Fills New Settings ID", func(t *testing.T) {
		backend := &tu.MockBackend{
			ListFn: func(context.Context) ([]models.MergedMusicView, error) {
				return []models.MergedMusicView{{CommonID: "c1", ExternalID: "sm1", Title: "t"}}, nil
			},
			UpdateFn: func(context.Context, models.MergedMusicView) (string, error) {
				return "u-new", nil
			},
		}
		c := newTestController(backend)
		c.Sync(ctx)

		v, _ := c.Get("c1")
		v.Skip = true
		if _, err := c.Update(ctx, v); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		got, _ := c.Get("c1")
		if got.UserSettingID != "u-new" || !got.Skip {
			t.Errorf("expected new settings id and skip, got %+v", got)
		}
	})

	t.Run("Update Failure Leaves Cache", func(t *testing.T) {
		backend := countingBackend()
		backend.UpdateFn = func(context.Context, models.MergedMusicView) (string, error) {
			return "", shared.ErrStoreUnavailable
		}
		c := newTestController(backend)
		v, _ := c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "old"})

		edited := v
		edited.Title = "new"
		if _, err := c.Update(ctx, edited); !errors.Is(err, shared.ErrStoreUnavailable) {
			t.Errorf("expected ErrStoreUnavailable, got %v", err)
		}
		got, _ := c.Get(v.CommonID)
		if got.Title != "old" {
			t.Errorf("expected cache untouched, got %+v", got)
		}
	})

	t.Run("Delete After Confirmation", func(t *testing.T) {
		c := newTestController(countingBackend())
		a, _ := c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "a"})
		b, _ := c.Create(ctx, models.MusicInput{ExternalID: "sm2", Title: "b"})

		if err := c.Delete(ctx, a.CommonID, a.UserSettingID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, ok := c.Get(a.CommonID); ok {
			t.Error("expected a to be removed")
		}
		if _, ok := c.Get(b.CommonID); !ok {
			t.Error("expected b to remain")
		}
	})

	t.Run("Delete Failure Keeps Entry", func(t *testing.T) {
		backend := countingBackend()
		backend.DeleteFn = func(context.Context, string, string) error {
			return &shared.OrphanedRecordError{RemainingID: "u1", RemainingKind: "user", Err: shared.ErrStoreUnavailable}
		}
		c := newTestController(backend)
		v, _ := c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "a"})

		err := c.Delete(ctx, v.CommonID, v.UserSettingID)
		if !errors.Is(err, shared.ErrOrphanedRecordRisk) {
			t.Errorf("expected ErrOrphanedRecordRisk, got %v", err)
		}
		if _, ok := c.Get(v.CommonID); !ok {
			t.Error("expected entry to stay cached until both deletes are acknowledged")
		}
	})

	t.Run("BulkImport Appends Created Items", func(t *testing.T) {
		backend := &tu.MockBackend{
			BulkImportFn: func(_ context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error) {
				result := models.NewBulkImportResult()
				result.Success = 1
				result.Skip = 1
				result.CreatedItems = append(result.CreatedItems, models.CreatedItem{ExternalID: "sm1", CommonID: "c1", Title: "one"})
				return result, nil
			},
		}
		c := newTestController(backend)

		result, err := c.BulkImport(ctx, []models.BulkImportItem{{ExternalID: "sm1", Title: "one"}, {ExternalID: "sm2", Title: "two"}})
		if err != nil || result.Success != 1 {
			t.Fatalf("bulk import failed: %v %+v", err, result)
		}
		got, ok := c.Get("c1")
		want := models.MergedMusicView{CommonID: "c1", ExternalID: "sm1", Title: "one"}
		if !ok || got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
		if c.Len() != 1 {
			t.Errorf("expected only created items appended, got %d", c.Len())
		}
	})

	t.Run("Unauthorized Forces Logout", func(t *testing.T) {
		backend := countingBackend()
		c := newTestController(backend)
		c.Create(ctx, models.MusicInput{ExternalID: "sm1", Title: "a"})

		loggedOut := 0
		c.OnUnauthorized(func() { loggedOut++ })
		backend.ListFn = func(context.Context) ([]models.MergedMusicView, error) {
			return nil, fmt.Errorf("%w: token expired", shared.ErrUnauthorized)
		}

		err := c.Sync(ctx)
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if loggedOut != 1 {
			t.Errorf("expected logout hook once, got %d", loggedOut)
		}
		if c.Len() != 0 || c.Populated() {
			t.Error("expected cache cleared")
		}
		if n := len(backend.Calls); n != 2 {
			t.Errorf("expected no retry, got calls %v", backend.Calls)
		}
	})
}

func testViews() []models.MergedMusicView {
	return []models.MergedMusicView{
		{CommonID: "c1", ExternalID: "sm100", Title: "Blue Sky", Favorite: true},
		{CommonID: "c2", ExternalID: "sm200", Title: "Night sky", Skip: true},
		{CommonID: "c3", ExternalID: "nm300", Title: "Morning", Favorite: true, Skip: true},
		{CommonID: "c4", ExternalID: "so400", Title: "skyline"},
	}
}

func ids(views []models.MergedMusicView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.CommonID)
	}
	return out
}

func TestQuery(t *testing.T) {
	tc := []struct {
		name  string
		query Query
		want  []string
	}{
		{name: "empty query", query: Query{}, want: []string{"c1", "c2", "c3", "c4"}},
		{name: "title contains ignoring case", query: Query{Term: "SKY"}, want: []string{"c1", "c2", "c4"}},
		{name: "external id prefix", query: Query{Term: "sm"}, want: []string{"c1", "c2"}},
		{name: "external id is prefix only", query: Query{Term: "300"}, want: []string{}},
		{name: "favorites only", query: Query{Favorite: FlagOnly}, want: []string{"c1", "c3"}},
		{name: "exclude skipped", query: Query{Skip: FlagExclude}, want: []string{"c1", "c4"}},
		{name: "combined", query: Query{Term: "sky", Favorite: FlagExclude, Skip: FlagExclude}, want: []string{"c4"}},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(testViews(), tt.query))
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	t.Run("Predicates Commute", func(t *testing.T) {
		views := testViews()
		term := Query{Term: "sky"}
		fav := Query{Favorite: FlagOnly}
		skip := Query{Skip: FlagExclude}

		a := Filter(Filter(Filter(views, term), fav), skip)
		b := Filter(Filter(Filter(views, skip), term), fav)
		c := Filter(views, Query{Term: "sky", Favorite: FlagOnly, Skip: FlagExclude})

		if fmt.Sprint(ids(a)) != fmt.Sprint(ids(b)) || fmt.Sprint(ids(a)) != fmt.Sprint(ids(c)) {
			t.Errorf("expected same result in any order: %v %v %v", ids(a), ids(b), ids(c))
		}
	})

	t.Run("ParseFlagFilter", func(t *testing.T) {
		for in, want := range map[string]FlagFilter{"": FlagAny, "only": FlagOnly, "Exclude": FlagExclude} {
			got, err := ParseFlagFilter(in)
			if err != nil || got != want {
				t.Errorf("ParseFlagFilter(%q) = %v, %v", in, got, err)
			}
		}
		if _, err := ParseFlagFilter("maybe"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaginate(t *testing.T) {
	views := make([]models.MergedMusicView, 45)
	for i := range views {
		views[i] = models.MergedMusicView{CommonID: fmt.Sprintf("c%d", i)}
	}

	t.Run("Windows", func(t *testing.T) {
		first := Paginate(views, 1)
		if len(first.Items) != PageSize || first.Items[0].CommonID != "c0" || first.TotalPages != 3 || first.TotalItems != 45 {
			t.Errorf("unexpected first page %+v", first)
		}

		last := Paginate(views, 3)
		if len(last.Items) != 5 || last.Items[0].CommonID != "c40" {
			t.Errorf("unexpected last page: %d items starting %s", len(last.Items), last.Items[0].CommonID)
		}
	})

	t.Run("Clamps", func(t *testing.T) {
		if p := Paginate(views, 0); p.Page != 1 {
			t.Errorf("expected page 1, got %d", p.Page)
		}
		if p := Paginate(views, 99); p.Page != 3 {
			t.Errorf("expected page 3, got %d", p.Page)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		p := Paginate(nil, 1)
		if p.TotalPages != 1 || len(p.Items) != 0 {
			t.Errorf("expected one empty page, got %+v", p)
		}
	})

	t.Run("Controller Page Filters First", func(t *testing.T) {
		backend := &tu.MockBackend{
			ListFn: func(context.Context) ([]models.MergedMusicView, error) { return testViews(), nil },
		}
		c := newTestController(backend)
		c.Sync(context.Background())

		p := c.Page(Query{Favorite: FlagOnly}, 1)
		if p.TotalItems != 2 || fmt.Sprint(ids(p.Items)) != "[c1 c3]" {
			t.Errorf("unexpected page %+v", p)
		}
	})
}

func TestSample(t *testing.T) {
	example := []models.MergedMusicView{
		{ExternalID: "sm1", Skip: false},
		{ExternalID: "sm2", Skip: true},
		{ExternalID: "sm3", Skip: false},
	}

	t.Run("Excludes Skipped And Bounds Count", func(t *testing.T) {
		got, err := Sample(example, 5, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatalf("sample failed: %v", err)
		}
		sort.Strings(got)
		if fmt.Sprint(got) != "[sm1 sm3]" {
			t.Errorf("expected [sm1 sm3], got %v", got)
		}
	})

	t.Run("Never Exceeds Requested Count", func(t *testing.T) {
		views := make([]models.MergedMusicView, 50)
		for i := range views {
			views[i] = models.MergedMusicView{ExternalID: fmt.Sprintf("sm%d", i), Skip: i%5 == 0}
		}

		for seed := int64(0); seed < 20; seed++ {
			got, err := Sample(views, 7, rand.New(rand.NewSource(seed)))
			if err != nil {
				t.Fatalf("sample failed: %v", err)
			}
			if len(got) != 7 {
				t.Errorf("seed %d: expected 7 ids, got %d", seed, len(got))
			}
			seen := map[string]bool{}
			for _, id := range got {
				if seen[id] {
					t.Errorf("seed %d: duplicate id %s", seed, id)
				}
				seen[id] = true
				var n int
				fmt.Sscanf(id, "sm%d", &n)
				if n%5 == 0 {
					t.Errorf("seed %d: skipped entry %s sampled", seed, id)
				}
			}
		}
	})

	t.Run("Fixed Seed Is Deterministic", func(t *testing.T) {
		views := make([]models.MergedMusicView, 30)
		for i := range views {
			views[i] = models.MergedMusicView{ExternalID: fmt.Sprintf("sm%d", i)}
		}

		a, _ := Sample(views, 10, rand.New(rand.NewSource(42)))
		b, _ := Sample(views, 10, rand.New(rand.NewSource(42)))
		if fmt.Sprint(a) != fmt.Sprint(b) {
			t.Errorf("expected same sample for the same seed: %v vs %v", a, b)
		}

		full, _ := Sample(views, 30, rand.New(rand.NewSource(42)))
		if fmt.Sprint(full[:10]) != fmt.Sprint(a) {
			t.Errorf("expected a prefix of the full permutation: %v vs %v", a, full[:10])
		}
	})

	t.Run("Invalid Count", func(t *testing.T) {
		if _, err := Sample(example, 0, rand.New(rand.NewSource(1))); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Controller Sample", func(t *testing.T) {
		backend := &tu.MockBackend{
			ListFn: func(context.Context) ([]models.MergedMusicView, error) { return example, nil },
		}
		c := newTestController(backend)
		c.Sync(context.Background())

		if c.Eligible() != 2 {
			t.Errorf("expected 2 eligible entries, got %d", c.Eligible())
		}
		got, err := c.Sample(1, rand.New(rand.NewSource(3)))
		if err != nil || len(got) != 1 || got[0] == "sm2" {
			t.Errorf("unexpected sample %v, %v", got, err)
		}
	})
}
