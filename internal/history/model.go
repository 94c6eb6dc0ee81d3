package history

import (
	"time"

	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel carries the identity and timestamps shared by persisted records.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;column:id;not null;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"type:timestamptz;column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

// BeforeCreate is a GORM hook that is triggered before a new record is created.
func (base *BaseModel) BeforeCreate(tx *gorm.DB) (err error) {
	if base.ID == uuid.Nil {
		base.ID, err = uuid.NewRandom()
		if err != nil {
			return
		}
	}
	base.CreatedAt = time.Now().UTC()
	base.UpdatedAt = time.Now().UTC()
	return
}

// BeforeUpdate is a GORM hook that is triggered before an existing record is updated.
func (base *BaseModel) BeforeUpdate(tx *gorm.DB) (err error) {
	base.UpdatedAt = time.Now().UTC()
	return
}

// GenerationRecord is the audit entry of one submitted generation job.
type GenerationRecord struct {
	BaseModel
	JobID          string          `gorm:"type:varchar(128);column:job_id;not null;uniqueIndex" json:"jobId"`
	SessionID      uuid.UUID       `gorm:"type:uuid;column:session_id" json:"sessionId"`
	ShipmentIDs    []int64         `gorm:"type:jsonb;column:shipment_ids;serializer:json;not null" json:"guias"`
	GuideNumber    string          `gorm:"type:varchar(64);column:guide_number" json:"guiNumero"`
	RequestedCount int             `gorm:"column:requested_count;not null" json:"count"`                // certificates announced on submission
	LineItemCount  int             `gorm:"column:line_item_count;not null" json:"lineItemCount"`        // aggregated lines submitted
	Status         model.JobStatus `gorm:"type:varchar(20);column:status;not null;index" json:"status"` // pending until a terminal poll
	ProcessedCount int             `gorm:"column:processed_count" json:"processedCount"`
	TotalCount     int             `gorm:"column:total_count" json:"totalCount"`
	Error          string          `gorm:"type:text;column:error" json:"error,omitempty"`
	ArchiveKey     string          `gorm:"type:varchar(255);column:archive_key" json:"archiveKey,omitempty"`
	ArchiveURL     string          `gorm:"type:text;column:archive_url" json:"archiveUrl,omitempty"`
	Certificates   int             `gorm:"column:certificates" json:"certificates,omitempty"` // counted in the archived file
	CompletedAt    *time.Time      `gorm:"type:timestamptz;column:completed_at" json:"completedAt,omitempty"`
}

func (r *GenerationRecord) TableName() string {
	return "fito_generation_records"
}

// ListFilter narrows a history listing. Nil fields are ignored.
type ListFilter struct {
	Status *model.JobStatus
	Offset *int
	Limit  *int
}

// ListResult is one page of history records.
type ListResult struct {
	TotalCount int64              `json:"totalCount"`
	Records    []GenerationRecord `json:"records"`
	Offset     int                `json:"offset"`
	Limit      int                `json:"limit"`
}
