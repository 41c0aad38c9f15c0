// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/store"
)

// FaultyStore wraps a [store.Store] and fails the operations a test selects.
//
// Each hook returns nil to let the call through to the wrapped store.
type FaultyStore struct {
	store.Store

	mu        sync.Mutex
	Calls     []string
	ScanErr   func(store.Filter) error
	PutErr    func(models.Record) error
	UpdateErr func(store.Key) error
	DeleteErr func(store.Key) error
}

func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{Store: inner}
}

func (f *FaultyStore) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

// CallCount counts recorded calls starting with prefix, e.g. "put" or "delete:user".
func (f *FaultyStore) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *FaultyStore) Scan(ctx context.Context, filter store.Filter) ([]models.Record, error) {
	f.record("scan:" + string(filter.Kind))
	if f.ScanErr != nil {
		if err := f.ScanErr(filter); err != nil {
			return nil, err
		}
	}
	return f.Store.Scan(ctx, filter)
}

func (f *FaultyStore) Put(ctx context.Context, r models.Record) error {
	f.record("put:" + string(r.Kind) + ":" + r.ID)
	if f.PutErr != nil {
		if err := f.PutErr(r); err != nil {
			return err
		}
	}
	return f.Store.Put(ctx, r)
}

func (f *FaultyStore) Update(ctx context.Context, k store.Key, p store.Patch) error {
	f.record("update:" + k.String())
	if f.UpdateErr != nil {
		if err := f.UpdateErr(k); err != nil {
			return err
		}
	}
	return f.Store.Update(ctx, k, p)
}

func (f *FaultyStore) Delete(ctx context.Context, k store.Key) error {
	f.record("delete:" + k.String())
	if f.DeleteErr != nil {
		if err := f.DeleteErr(k); err != nil {
			return err
		}
	}
	return f.Store.Delete(ctx, k)
}

// MockBackend is a scripted cache backend. Unset hooks succeed with zero values.
type MockBackend struct {
	mu    sync.Mutex
	Calls []string

	ListFn       func(ctx context.Context) ([]models.MergedMusicView, error)
	CreateFn     func(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error)
	UpdateFn     func(ctx context.Context, view models.MergedMusicView) (string, error)
	DeleteFn     func(ctx context.Context, commonID, userSettingID string) error
	BulkImportFn func(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error)
}

func (m *MockBackend) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

func (m *MockBackend) List(ctx context.Context) ([]models.MergedMusicView, error) {
	m.record("list")
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	return []models.MergedMusicView{}, nil
}

func (m *MockBackend) Create(ctx context.Context, in models.MusicInput) (models.CreatedIDs, error) {
	m.record("create:" + in.ExternalID)
	if m.CreateFn != nil {
		return m.CreateFn(ctx, in)
	}
	return models.CreatedIDs{}, nil
}

func (m *MockBackend) Update(ctx context.Context, view models.MergedMusicView) (string, error) {
	m.record("update:" + view.CommonID)
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, view)
	}
	return view.UserSettingID, nil
}

func (m *MockBackend) Delete(ctx context.Context, commonID, userSettingID string) error {
	m.record("delete:" + commonID)
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, commonID, userSettingID)
	}
	return nil
}

func (m *MockBackend) BulkImport(ctx context.Context, items []models.BulkImportItem) (*models.BulkImportResult, error) {
	m.record("bulk-import")
	if m.BulkImportFn != nil {
		return m.BulkImportFn(ctx, items)
	}
	return models.NewBulkImportResult(), nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
