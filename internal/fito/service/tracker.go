package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/internal/metrics"
)

// ErrJobInFlight is returned when a submission is attempted while another job is still tracked.
var ErrJobInFlight = errors.New("a generation job is already being tracked")

// TrackerState is the position of a JobTracker in its lifecycle.
type TrackerState string

const (
	TrackerIdle       TrackerState = "IDLE"
	TrackerSubmitting TrackerState = "SUBMITTING"
	TrackerTracking   TrackerState = "TRACKING"
	TrackerDone       TrackerState = "DONE"
	TrackerFailed     TrackerState = "FAILED"
)

// GenerationClient submits generation jobs and reports their status.
type GenerationClient interface {
	Generate(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error)
	JobStatus(ctx context.Context, jobID string) (*model.GenerationJob, error)
	DownloadURL(jobID string) string
}

// JobListener is told when a job is accepted and when it reaches a terminal status.
type JobListener interface {
	OnJobAccepted(ctx context.Context, req model.GenerateRequest, resp model.GenerateResponse)
	OnJobTerminal(ctx context.Context, job model.GenerationJob)
}

// TrackerSnapshot is the externally visible state of a JobTracker.
type TrackerSnapshot struct {
	State          TrackerState    `json:"state"`
	JobID          string          `json:"jobId,omitempty"`
	Message        string          `json:"message,omitempty"`
	Status         model.JobStatus `json:"status,omitempty"`
	ProcessedCount int             `json:"processedCount"`
	TotalCount     int             `json:"totalCount"`
	Progress       float64         `json:"progress"`
	Error          string          `json:"error,omitempty"`
	DownloadURL    string          `json:"downloadUrl,omitempty"`
}

// JobTracker submits one generation job at a time and polls it until a terminal status.
type JobTracker struct {
	client   GenerationClient
	interval time.Duration
	listener JobListener
	metrics  *metrics.FitoMetrics

	mu          sync.Mutex
	gen         uint64 // bumped on every reset; a submission only lands if unchanged
	state       TrackerState
	message     string
	job         model.GenerationJob
	errMsg      string
	downloadURL string
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewJobTracker creates an idle tracker. listener and m may be nil.
func NewJobTracker(client GenerationClient, interval time.Duration, listener JobListener, m *metrics.FitoMetrics) *JobTracker {
	return &JobTracker{
		client:   client,
		interval: interval,
		listener: listener,
		metrics:  m,
		state:    TrackerIdle,
	}
}

// Submit posts the generation request and starts polling on success.
// A rejected submission leaves the tracker FAILED without a poll loop.
func (t *JobTracker) Submit(ctx context.Context, req model.GenerateRequest) (*model.GenerateResponse, error) {
	t.mu.Lock()
	if t.state == TrackerSubmitting || t.state == TrackerTracking {
		t.mu.Unlock()
		return nil, ErrJobInFlight
	}
	t.resetLocked()
	t.state = TrackerSubmitting
	gen := t.gen
	t.mu.Unlock()

	resp, err := t.client.Generate(ctx, req)
	if err != nil {
		t.metrics.IncJob(metrics.JobSubmitFailed)
		t.mu.Lock()
		if t.gen == gen {
			t.state = TrackerFailed
			t.errMsg = err.Error()
		}
		t.mu.Unlock()
		slog.ErrorContext(ctx, "generation submission failed", "shipments", req.ShipmentIDs, "error", err)
		return nil, fmt.Errorf("failed to submit generation: %w", err)
	}

	t.metrics.IncJob(metrics.JobSubmitted)

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		// cancelled or superseded while the request was in flight
		slog.WarnContext(ctx, "generation job accepted after its submission was cancelled, not tracking",
			"jobID", resp.JobID,
			"shipments", req.ShipmentIDs)
		return resp, nil
	}
	t.state = TrackerTracking
	t.message = resp.Message
	t.job = model.GenerationJob{
		ID:         resp.JobID,
		Status:     model.JobStatusPending,
		TotalCount: resp.Count,
		CreatedAt:  time.Now().UTC(),
	}
	t.mu.Unlock()

	slog.InfoContext(ctx, "generation job accepted",
		"jobID", resp.JobID,
		"count", resp.Count,
		"message", resp.Message)

	// recorded before the first poll so a terminal status always finds the record
	if t.listener != nil {
		t.listener.OnJobAccepted(context.WithoutCancel(ctx), req, *resp)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return resp, nil
	}
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.poll(pollCtx, resp.JobID, t.done)

	return resp, nil
}

func (t *JobTracker) poll(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		job, err := t.client.JobStatus(ctx, jobID)
		if ctx.Err() != nil {
			return
		}
		t.metrics.IncPoll(err)
		if err != nil {
			slog.ErrorContext(ctx, "job status poll failed, retrying on next tick", "jobID", jobID, "error", err)
			continue
		}
		if t.observe(ctx, jobID, *job) {
			return
		}
	}
}

// observe applies one poll response and reports whether polling should stop.
func (t *JobTracker) observe(ctx context.Context, jobID string, job model.GenerationJob) bool {
	t.mu.Lock()
	if t.state != TrackerTracking || t.job.ID != jobID {
		t.mu.Unlock()
		return true
	}

	if job.ID == "" {
		job.ID = jobID
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = t.job.CreatedAt
	}
	t.job = job

	switch job.Status {
	case model.JobStatusCompleted:
		t.state = TrackerDone
		t.downloadURL = t.client.DownloadURL(jobID)
		t.metrics.IncJob(metrics.JobCompleted)
	case model.JobStatusFailed:
		t.state = TrackerFailed
		t.errMsg = job.Error
		if t.errMsg == "" {
			t.errMsg = "generation failed"
		}
		t.metrics.IncJob(metrics.JobFailed)
	default:
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	slog.InfoContext(ctx, "generation job finished",
		"jobID", jobID,
		"status", job.Status,
		"processed", job.ProcessedCount,
		"total", job.TotalCount)

	if t.listener != nil {
		t.listener.OnJobTerminal(context.WithoutCancel(ctx), job)
	}
	return true
}

// Cancel stops polling and returns to IDLE. The job keeps running server-side.
func (t *JobTracker) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *JobTracker) resetLocked() {
	t.gen++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.state = TrackerIdle
	t.message = ""
	t.job = model.GenerationJob{}
	t.errMsg = ""
	t.downloadURL = ""
}

// Wait blocks until the current poll loop, if any, has exited.
func (t *JobTracker) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns the current lifecycle state.
func (t *JobTracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns the current progress view.
func (t *JobTracker) Snapshot() TrackerSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerSnapshot{
		State:          t.state,
		JobID:          t.job.ID,
		Message:        t.message,
		Status:         t.job.Status,
		ProcessedCount: t.job.ProcessedCount,
		TotalCount:     t.job.TotalCount,
		Progress:       t.job.Progress(),
		Error:          t.errMsg,
		DownloadURL:    t.downloadURL,
	}
}
