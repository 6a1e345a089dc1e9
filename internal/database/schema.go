package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	UploadPending    string = "pending"
	UploadProcessing string = "processing"
	UploadCompleted  string = "completed"
	UploadFailed     string = "failed"
)

// Length bounds shared by validation and the API layer.
const (
	MaxNameLength        = 100
	MaxVersionLength     = 50
	MaxDescriptionLength = 1000
	MaxFilenameLength    = 255
	MaxErrorLength       = 2000
)

const DefaultVersion = "1.0"

type Project struct {
	Id          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null;uniqueIndex"`
	Description string `gorm:"size:1000"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Metrics    []Metric    `gorm:"foreignKey:ProjectId"`
	CsvUploads []CsvUpload `gorm:"foreignKey:ProjectId"`
}

type Model struct {
	Id          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null;uniqueIndex:idx_models_name_version"`
	Version     string `gorm:"size:50;not null;default:'1.0';uniqueIndex:idx_models_name_version"`
	Description string `gorm:"size:1000"`

	CreatedAt time.Time

	Metrics []Metric `gorm:"foreignKey:ModelId"`
}

type Dataset struct {
	Id          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:100;not null;uniqueIndex:idx_datasets_name_version"`
	Version     string `gorm:"size:50;not null;default:'1.0';uniqueIndex:idx_datasets_name_version"`
	Description string `gorm:"size:1000"`
	Metadata    datatypes.JSON

	CreatedAt time.Time

	Metrics []Metric `gorm:"foreignKey:DatasetId"`
}

type MetricType struct {
	Id             uint   `gorm:"primaryKey"`
	Name           string `gorm:"size:100;not null;uniqueIndex"`
	Description    string `gorm:"size:500"`
	Unit           string `gorm:"size:50"`
	HigherIsBetter bool   `gorm:"default:true"`

	CreatedAt time.Time

	Metrics []Metric `gorm:"foreignKey:MetricTypeId"`
}

type Metric struct {
	Id        uint            `gorm:"primaryKey"`
	Value     decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Timestamp time.Time       `gorm:"index;not null"`
	Notes     string          `gorm:"size:1000"`

	CreatedAt time.Time

	ProjectId    uint `gorm:"index;not null"`
	ModelId      uint `gorm:"index;not null"`
	DatasetId    uint `gorm:"index;not null"`
	MetricTypeId uint `gorm:"index;not null"`

	// Null for metrics entered outside a batch upload.
	CsvUploadId uuid.NullUUID `gorm:"type:uuid;index"`

	Project    *Project    `gorm:"foreignKey:ProjectId"`
	Model      *Model      `gorm:"foreignKey:ModelId"`
	Dataset    *Dataset    `gorm:"foreignKey:DatasetId"`
	MetricType *MetricType `gorm:"foreignKey:MetricTypeId"`
	CsvUpload  *CsvUpload  `gorm:"foreignKey:CsvUploadId"`
}

type CsvUpload struct {
	Id       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename string    `gorm:"size:255;not null"`
	FileSize int64     `gorm:"not null;default:0"`

	Status        string `gorm:"size:50;not null;default:'pending'"`
	ErrorMessage  string `gorm:"size:2000"`
	RowsProcessed int    `gorm:"not null;default:0"`
	RowsFailed    int    `gorm:"not null;default:0"`

	ProcessingStartedAt   sql.NullTime
	ProcessingCompletedAt sql.NullTime
	CreatedAt             time.Time

	ProjectId uint     `gorm:"index;not null"`
	Project   *Project `gorm:"foreignKey:ProjectId"`

	Metrics []Metric `gorm:"foreignKey:CsvUploadId"`
}

// UploadedFile is a raw X/Y data file; its datasets power the graph surface.
type UploadedFile struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Filename    string    `gorm:"size:255;not null"`
	Size        int64     `gorm:"not null;default:0"`
	ContentType string    `gorm:"size:100"`
	UploadedAt  time.Time

	Datasets []GraphDataset `gorm:"foreignKey:UploadedFileId;constraint:OnDelete:CASCADE"`
}

type GraphDataset struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UploadedFileId uuid.UUID `gorm:"type:uuid;index;not null"`
	Name           string    `gorm:"size:100;not null"`
	XAxisLabel     string    `gorm:"size:100"`
	YAxisLabel     string    `gorm:"size:100"`

	// Ordered [{x, y, label?}] sequence. Points are replaced wholesale, never
	// mutated individually, so the cached stats below stay consistent.
	DataPoints datatypes.JSON

	TotalPoints int `gorm:"not null;default:0"`
	MinX        *float64
	MaxX        *float64
	MinY        *float64
	MaxY        *float64

	CreatedAt time.Time
}

type DatasetSelection struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DatasetId uuid.UUID `gorm:"type:uuid;index;not null"`

	// Null session id is the single global scope.
	SessionId  sql.NullString `gorm:"size:100"`
	IsCurrent  bool           `gorm:"not null;default:false"`
	SelectedAt time.Time
}
