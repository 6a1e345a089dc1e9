package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Project struct {
	Id          uint
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateProjectRequest struct {
	Name        string
	Description string
}

type Model struct {
	Id          uint
	Name        string
	Version     string
	Description string
	CreatedAt   time.Time
}

type Dataset struct {
	Id          uint
	Name        string
	Version     string
	Description string
	CreatedAt   time.Time
}

type MetricType struct {
	Id             uint
	Name           string
	Unit           string
	Description    string
	HigherIsBetter bool
	CreatedAt      time.Time
}

// MetricFilter narrows metric queries. Field tags match the snake_case
// query parameters used by the dashboard.
type MetricFilter struct {
	ProjectIds     []uint     `schema:"project_ids"`
	ModelIds       []uint     `schema:"model_ids"`
	DatasetIds     []uint     `schema:"dataset_ids"`
	MetricTypeIds  []uint     `schema:"metric_type_ids"`
	StartTimestamp *time.Time `schema:"start_timestamp"`
	EndTimestamp   *time.Time `schema:"end_timestamp"`
	Limit          int        `schema:"limit"`
}

type MetricResponse struct {
	Id        uint
	Value     decimal.Decimal
	Timestamp time.Time
	Notes     string
	CreatedAt time.Time

	ProjectName string

	ModelName    string
	ModelVersion string

	DatasetName    string
	DatasetVersion string

	MetricTypeName           string
	MetricTypeUnit           string
	MetricTypeHigherIsBetter bool
}

type CreateMetricRequest struct {
	Project    string
	Model      string
	Dataset    string
	MetricName string
	Value      decimal.Decimal
	Timestamp  time.Time
	Notes      string
}

type CsvUpload struct {
	Id                    uuid.UUID
	Filename              string
	FileSize              int64
	Status                string
	ErrorMessage          string
	RowsProcessed         int
	RowsFailed            int
	UploadTimestamp       time.Time
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	ProjectId             uint
}

type UploadSubmitResponse struct {
	Message  string
	UploadId uuid.UUID
}

type MetricSummary struct {
	MetricTypeName   string
	MetricTypeUnit   string
	LatestValue      decimal.Decimal
	LatestTimestamp  time.Time
	ModelName        string
	DatasetName      string
	TrendDirection   string
	ChangePercentage *decimal.Decimal `json:"ChangePercentage,omitempty"`
}

type ProjectSummary struct {
	Id                    uint
	Name                  string
	Description           string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	TotalMetrics          int64
	TotalModels           int64
	TotalDatasets         int64
	LatestMetricTimestamp *time.Time `json:"LatestMetricTimestamp,omitempty"`
}

type UploadedFile struct {
	Id          uuid.UUID
	Filename    string
	Size        int64
	ContentType string
	UploadedAt  time.Time
}

type DataPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

type GraphData struct {
	DatasetId   uuid.UUID
	DatasetName string
	XAxisLabel  string
	YAxisLabel  string
	DataPoints  []DataPoint
	TotalPoints int
	MinX        *float64 `json:"MinX,omitempty"`
	MaxX        *float64 `json:"MaxX,omitempty"`
	MinY        *float64 `json:"MinY,omitempty"`
	MaxY        *float64 `json:"MaxY,omitempty"`
}

type SelectDatasetRequest struct {
	SessionId string `json:"SessionId,omitempty"`
}
