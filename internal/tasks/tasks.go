// package tasks implements multi-step music list operations on top of the cache controller.
package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nagiyu/niconico-mylist-assistant/internal/cache"
	"github.com/nagiyu/niconico-mylist-assistant/internal/formatter"
	"github.com/nagiyu/niconico-mylist-assistant/internal/models"
	"github.com/nagiyu/niconico-mylist-assistant/internal/services"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

// Engine runs list operations that span several backend or service calls.
type Engine struct {
	controller *cache.Controller
	lookup     services.VideoLookup
	jobs       services.JobSubmitter
	ownerID    string
	logger     *log.Logger
}

// NewEngine creates an engine. lookup and jobs may be nil when the caller never resolves titles or registers.
func NewEngine(controller *cache.Controller, lookup services.VideoLookup, jobs services.JobSubmitter, logger *log.Logger) *Engine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Engine{
		controller: controller,
		lookup:     lookup,
		jobs:       jobs,
		logger:     shared.WithLogger(logger, "component", "tasks"),
	}
}

// ForOwner returns a copy of the engine that submits jobs on behalf of ownerID.
func (e *Engine) ForOwner(ownerID string) *Engine {
	c := *e
	c.ownerID = ownerID
	return &c
}

// Controller returns the cache the engine operates on.
func (e *Engine) Controller() *cache.Controller {
	return e.controller
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ensureSynced populates the cache on first use.
func (e *Engine) ensureSynced(ctx context.Context, progress chan<- ProgressUpdate) error {
	if e.controller.Populated() {
		return nil
	}
	e.sendProgress(progress, syncUpdate(0, 1))
	if err := e.controller.Sync(ctx); err != nil {
		return err
	}
	e.sendProgress(progress, syncedUpdate(1, 1, e.controller.Len()))
	return nil
}

// AutoRegisterRequest describes one auto-registration run.
type AutoRegisterRequest struct {
	Count        int
	Email        string
	Password     string
	Title        string
	Subscription []byte
	Rand         cache.Rand // defaults to math/rand/v2
}

// AutoRegisterResult identifies the submitted job.
type AutoRegisterResult struct {
	JobID   string
	Message string
	IDs     []string
}

// AutoRegister samples Count non-skipped videos and submits them for registration.
//
// The call returns once the job is accepted; completion is reported asynchronously.
func (e *Engine) AutoRegister(ctx context.Context, progress chan<- ProgressUpdate, req AutoRegisterRequest) (*AutoRegisterResult, error) {
	if e.jobs == nil {
		return nil, fmt.Errorf("%w: registration is not configured", shared.ErrServiceUnavailable)
	}
	if err := models.ValidateCount(req.Count); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if err := models.ValidateEmail(req.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", shared.ErrInvalidInput)
	}

	if err := e.ensureSynced(ctx, progress); err != nil {
		return nil, err
	}

	rng := req.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	e.sendProgress(progress, sampleUpdate(1, 1, req.Count, e.controller.Eligible()))
	ids, err := e.controller.Sample(req.Count, rng)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no videos are eligible for registration", shared.ErrInvalidInput)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = models.DefaultMylistTitle(time.Now())
	}

	e.sendProgress(progress, submitUpdate(0, 1, len(ids), title))
	job, err := e.jobs.Submit(ctx, e.ownerID, models.RegisterRequest{
		Email:        req.Email,
		Password:     req.Password,
		IDList:       ids,
		Title:        title,
		Subscription: req.Subscription,
	})
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, submittedUpdate(1, 1, job.ID))

	e.logger.Info("auto registration submitted", "job_id", job.ID, "videos", len(ids))
	return &AutoRegisterResult{JobID: job.ID, Message: job.Message, IDs: ids}, nil
}

// ImportOpts configure [Engine.Import].
type ImportOpts struct {
	Resolve EnrichOpts
}

// ImportResult combines title resolution and bulk import outcomes.
type ImportResult struct {
	Unresolved []TitleResult
	Import     *models.BulkImportResult
}

// Import resolves missing titles, then bulk imports every row that has one.
//
// Rows whose title could not be resolved are reported in Unresolved and not sent.
func (e *Engine) Import(ctx context.Context, progress chan<- ProgressUpdate, items []models.BulkImportItem, opts ImportOpts) (*ImportResult, error) {
	result := &ImportResult{}

	var missing []string
	for _, item := range items {
		if strings.TrimSpace(item.Title) == "" {
			missing = append(missing, item.ExternalID)
		}
	}

	ready := items
	if len(missing) > 0 {
		enriched, err := e.Enrich(ctx, progress, missing, opts.Resolve)
		if err != nil {
			return nil, err
		}

		titles := make(map[string]string, len(enriched.Results))
		for _, r := range enriched.Results {
			if r.Error == nil {
				titles[r.ExternalID] = r.Title
			} else {
				result.Unresolved = append(result.Unresolved, r)
			}
		}

		ready = make([]models.BulkImportItem, 0, len(items))
		for _, item := range items {
			if strings.TrimSpace(item.Title) == "" {
				title, ok := titles[item.ExternalID]
				if !ok {
					continue
				}
				item.Title = title
			}
			ready = append(ready, item)
		}
	}

	if len(ready) == 0 {
		result.Import = models.NewBulkImportResult()
		return result, nil
	}

	e.sendProgress(progress, importUpdate(0, 1, len(ready)))
	imported, err := e.controller.BulkImport(ctx, ready)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, importedUpdate(1, 1, imported.Success, imported.Skip, imported.Failure))

	result.Import = imported
	return result, nil
}

// Export writes the entries matching q to path in format and returns the path written.
func (e *Engine) Export(ctx context.Context, progress chan<- ProgressUpdate, q cache.Query, format formatter.Format, path string) (string, error) {
	if err := e.ensureSynced(ctx, progress); err != nil {
		return "", err
	}

	views := e.controller.Filter(q)
	written, err := formatter.WriteExport(views, format, path)
	if err != nil {
		return "", err
	}
	e.sendProgress(progress, exportUpdate(1, 1, len(views), written))
	return written, nil
}
