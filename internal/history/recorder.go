package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/OpenNSW/fito/internal/archive"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/google/uuid"
)

// CertificateArchiver stores the certificate file of a completed job.
type CertificateArchiver interface {
	Archive(ctx context.Context, jobID string) (*archive.Receipt, error)
}

// Recorder keeps the history table in step with the job tracker and archives
// completed jobs. Failures are logged and never reach the operator.
type Recorder struct {
	store    *Store
	archiver CertificateArchiver
	now      func() time.Time
}

// NewRecorder creates a Recorder. A nil archiver disables archiving.
func NewRecorder(store *Store, archiver CertificateArchiver) *Recorder {
	return &Recorder{store: store, archiver: archiver, now: time.Now}
}

func (r *Recorder) JobAccepted(ctx context.Context, sessionID uuid.UUID, shipment model.ShipmentDocument, req model.GenerateRequest, resp model.GenerateResponse) {
	record := &GenerationRecord{
		JobID:          resp.JobID,
		SessionID:      sessionID,
		ShipmentIDs:    req.ShipmentIDs,
		GuideNumber:    shipment.GuideNumber,
		RequestedCount: resp.Count,
		LineItemCount:  len(req.LineItems),
		Status:         model.JobStatusPending,
		TotalCount:     resp.Count,
	}
	if err := r.store.Create(ctx, record); err != nil {
		slog.ErrorContext(ctx, "failed to record accepted generation job", "jobID", resp.JobID, "error", err)
	}
}

func (r *Recorder) JobFinished(ctx context.Context, job model.GenerationJob) {
	if err := r.store.MarkFinished(ctx, job, r.now()); err != nil {
		slog.ErrorContext(ctx, "failed to record finished generation job", "jobID", job.ID, "status", job.Status, "error", err)
	}
	if job.Status != model.JobStatusCompleted || r.archiver == nil {
		return
	}

	receipt, err := r.archiver.Archive(ctx, job.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to archive certificates", "jobID", job.ID, "error", err)
		return
	}
	if err := r.store.AttachArchive(ctx, job.ID, receipt.Key, receipt.URL, receipt.Certificates); err != nil {
		slog.ErrorContext(ctx, "failed to record certificate archive", "jobID", job.ID, "key", receipt.Key, "error", err)
	}
}
