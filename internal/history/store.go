package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/OpenNSW/fito/utils"
	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("generation record not found")

// Store persists generation records.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the history table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&GenerationRecord{}); err != nil {
		return fmt.Errorf("failed to migrate generation records: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, record *GenerationRecord) error {
	if record.JobID == "" {
		return fmt.Errorf("generation record requires a job id")
	}
	if record.Status == "" {
		record.Status = model.JobStatusPending
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create generation record for job %s: %w", record.JobID, err)
	}
	return nil
}

// MarkFinished stores the terminal status of a job.
func (s *Store) MarkFinished(ctx context.Context, job model.GenerationJob, finishedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&GenerationRecord{}).
		Where("job_id = ?", job.ID).
		Updates(map[string]any{
			"status":          job.Status,
			"processed_count": job.ProcessedCount,
			"total_count":     job.TotalCount,
			"error":           job.Error,
			"completed_at":    finishedAt.UTC(),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update generation record for job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, job.ID)
	}
	return nil
}

// AttachArchive stores where a job's certificates were archived.
func (s *Store) AttachArchive(ctx context.Context, jobID, key, url string, certificates int) error {
	result := s.db.WithContext(ctx).
		Model(&GenerationRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"archive_key":  key,
			"archive_url":  url,
			"certificates": certificates,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to attach archive to job %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, jobID)
	}
	return nil
}

func (s *Store) GetByJobID(ctx context.Context, jobID string) (*GenerationRecord, error) {
	var record GenerationRecord
	result := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to retrieve generation record: %w", result.Error)
	}
	return &record, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	offset, limit := utils.GetPaginationParams(filter.Offset, filter.Limit)

	scoped := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&GenerationRecord{})
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count generation records: %w", err)
	}

	records := []GenerationRecord{}
	if err := scoped().Order("created_at DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list generation records: %w", err)
	}

	return &ListResult{
		TotalCount: total,
		Records:    records,
		Offset:     offset,
		Limit:      limit,
	}, nil
}
