package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrJobNotFound is returned when a job id is unknown to the sandbox.
var ErrJobNotFound = errors.New("job not found")

// JobRecord is a generation job as stored by the sandbox.
type JobRecord struct {
	ID             string                `gorm:"type:varchar(64);primaryKey"`
	Status         model.JobStatus       `gorm:"type:varchar(20);not null;index"`
	ProcessedCount int                   `gorm:"not null;default:0"`
	TotalCount     int                   `gorm:"not null;default:0"`
	Error          string                `gorm:"type:text"`
	Request        model.GenerateRequest `gorm:"type:text;serializer:json"`
	XML            []byte                `gorm:"type:blob"`
	CreatedAt      time.Time             `gorm:"autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"autoUpdateTime"`
}

// TableName returns the table name for JobRecord
func (JobRecord) TableName() string {
	return "sandbox_jobs"
}

// View converts the record to the status payload of the generation API.
func (j *JobRecord) View() model.GenerationJob {
	return model.GenerationJob{
		ID:             j.ID,
		Status:         j.Status,
		ProcessedCount: j.ProcessedCount,
		TotalCount:     j.TotalCount,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
	}
}

// JobStore handles database operations for sandbox jobs
type JobStore struct {
	db *gorm.DB
}

// OpenJobStore opens (or creates) the SQLite job database and migrates it.
func OpenJobStore(dbPath string) (*JobStore, error) {
	if dbPath == "" {
		dbPath = "fito_sandbox.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &JobStore{db: db}, nil
}

// Create inserts a new job.
func (s *JobStore) Create(ctx context.Context, job *JobRecord) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*JobRecord, error) {
	var job JobRecord
	err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

// Unfinished returns pending and processing jobs, oldest first.
func (s *JobStore) Unfinished(ctx context.Context) ([]JobRecord, error) {
	var jobs []JobRecord
	err := s.db.WithContext(ctx).
		Where("status IN ?", []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing}).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	return jobs, nil
}

// Save persists every column of a job.
func (s *JobStore) Save(ctx context.Context, job *JobRecord) error {
	if err := s.db.WithContext(ctx).Save(job).Error; err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Close closes the database connection
func (s *JobStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
