package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/OpenNSW/fito/internal/fito/export"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/google/uuid"
)

// FailureMarker in the request's observaciones makes the job fail while processing.
const FailureMarker = "#fail"

var (
	ErrEmptyRequest = errors.New("generation request carries no line items")
	ErrJobNotReady  = errors.New("job has not completed")
)

// Runner accepts generation requests and advances them one step per tick:
// pending, then processing one certificate (payer) per tick, then completed.
type Runner struct {
	store    *JobStore
	interval time.Duration
	now      func() time.Time
}

// NewRunner creates a runner that advances jobs every interval.
func NewRunner(store *JobStore, interval time.Duration) *Runner {
	return &Runner{store: store, interval: interval, now: time.Now}
}

// Submit validates and stores a new pending job.
func (r *Runner) Submit(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	if len(req.ShipmentIDs) == 0 || len(req.LineItems) == 0 {
		return nil, ErrEmptyRequest
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}

	payers := map[string]struct{}{}
	for _, li := range req.LineItems {
		payers[li.PayerID] = struct{}{}
	}

	job := &JobRecord{
		ID:         "fito-" + uuid.NewString(),
		Status:     model.JobStatusPending,
		TotalCount: len(payers),
		Request:    req,
	}
	if err := r.store.Create(ctx, job); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "sandbox job accepted",
		"jobID", job.ID,
		"shipments", req.ShipmentIDs,
		"certificates", job.TotalCount)

	return &model.GenerateResponse{
		JobID:   job.ID,
		Message: fmt.Sprintf("generation of %d certificate(s) queued", job.TotalCount),
		Count:   job.TotalCount,
	}, nil
}

// Status returns the public view of a job.
func (r *Runner) Status(ctx context.Context, id string) (*model.GenerationJob, error) {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	view := job.View()
	return &view, nil
}

// Download returns the XML of a completed job.
func (r *Runner) Download(ctx context.Context, id string) ([]byte, error) {
	job, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotReady, id, job.Status)
	}
	return job.XML, nil
}

// Run advances jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Advance(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "sandbox runner step failed", "error", err)
			}
		}
	}
}

// Advance moves every unfinished job one step forward.
func (r *Runner) Advance(ctx context.Context) error {
	jobs, err := r.store.Unfinished(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := &jobs[i]
		r.step(ctx, job)
		if err := r.store.Save(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) step(ctx context.Context, job *JobRecord) {
	switch job.Status {
	case model.JobStatusPending:
		job.Status = model.JobStatusProcessing
		return
	case model.JobStatusProcessing:
	default:
		return
	}

	if strings.Contains(job.Request.Config.Notes, FailureMarker) {
		job.Status = model.JobStatusFailed
		job.Error = fmt.Sprintf("certificate %d of %d was rejected by the authority", job.ProcessedCount+1, job.TotalCount)
		slog.WarnContext(ctx, "sandbox job failed on request", "jobID", job.ID)
		return
	}

	job.ProcessedCount++
	if job.ProcessedCount < job.TotalCount {
		return
	}

	xml, err := export.BuildCertificates(job.ID, job.Request, r.now())
	if err != nil {
		job.Status = model.JobStatusFailed
		job.Error = err.Error()
		slog.ErrorContext(ctx, "sandbox certificate rendering failed", "jobID", job.ID, "error", err)
		return
	}
	job.XML = xml
	job.Status = model.JobStatusCompleted
	slog.InfoContext(ctx, "sandbox job completed", "jobID", job.ID, "certificates", job.TotalCount)
}
