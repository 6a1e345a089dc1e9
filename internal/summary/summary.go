package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

var ErrNoObservations = errors.New("no metrics recorded for this combination")

type MetricSummary struct {
	MetricTypeName   string
	MetricTypeUnit   string
	LatestValue      decimal.Decimal
	LatestTimestamp  time.Time
	ModelName        string
	DatasetName      string
	TrendDirection   string
	ChangePercentage *decimal.Decimal
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
	LatestMetricTimestamp *time.Time
}

type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Summarize reports the latest observation and trend for one
// (project, metric type, model, dataset) combination.
func (e *Engine) Summarize(ctx context.Context, projectId, metricTypeId, modelId, datasetId uint) (MetricSummary, error) {
	// The two newest observations are enough for the trend. Insertion order
	// breaks timestamp ties so the result is stable across databases.
	var latest []database.Metric
	err := e.db.WithContext(ctx).
		Where("project_id = ? AND metric_type_id = ? AND model_id = ? AND dataset_id = ?",
			projectId, metricTypeId, modelId, datasetId).
		Order("timestamp DESC, id DESC").
		Limit(2).
		Find(&latest).Error
	if err != nil {
		return MetricSummary{}, fmt.Errorf("could not load metrics for summary: %w", err)
	}
	if len(latest) == 0 {
		return MetricSummary{}, ErrNoObservations
	}

	var metricType database.MetricType
	if err := e.db.WithContext(ctx).First(&metricType, "id = ?", metricTypeId).Error; err != nil {
		return MetricSummary{}, fmt.Errorf("could not load metric type %d: %w", metricTypeId, err)
	}
	var model database.Model
	if err := e.db.WithContext(ctx).First(&model, "id = ?", modelId).Error; err != nil {
		return MetricSummary{}, fmt.Errorf("could not load model %d: %w", modelId, err)
	}
	var dataset database.Dataset
	if err := e.db.WithContext(ctx).First(&dataset, "id = ?", datasetId).Error; err != nil {
		return MetricSummary{}, fmt.Errorf("could not load dataset %d: %w", datasetId, err)
	}

	result := MetricSummary{
		MetricTypeName:  metricType.Name,
		MetricTypeUnit:  metricType.Unit,
		LatestValue:     latest[0].Value,
		LatestTimestamp: latest[0].Timestamp,
		ModelName:       model.Name,
		DatasetName:     dataset.Name,
		TrendDirection:  TrendStable,
	}

	if len(latest) == 2 {
		result.TrendDirection, result.ChangePercentage = trend(latest[0].Value, latest[1].Value)
	}

	return result, nil
}

// trend compares the latest value to the one before it. The change
// percentage is nil when the previous value is zero.
func trend(latest, previous decimal.Decimal) (string, *decimal.Decimal) {
	direction := TrendStable
	switch latest.Cmp(previous) {
	case 1:
		direction = TrendUp
	case -1:
		direction = TrendDown
	}

	if previous.IsZero() {
		return direction, nil
	}

	change := latest.Sub(previous).
		Div(previous.Abs()).
		Mul(decimal.NewFromInt(100)).
		Round(6)

	return direction, &change
}

// SummarizeProject aggregates live counts for a project. The counts are
// grouped on demand rather than stored, so they cannot go stale.
func (e *Engine) SummarizeProject(ctx context.Context, projectId uint) (ProjectSummary, error) {
	var project database.Project
	if err := e.db.WithContext(ctx).First(&project, "id = ?", projectId).Error; err != nil {
		return ProjectSummary{}, fmt.Errorf("could not load project %d: %w", projectId, err)
	}

	result := ProjectSummary{
		Id:          project.Id,
		Name:        project.Name,
		Description: project.Description,
		CreatedAt:   project.CreatedAt,
		UpdatedAt:   project.UpdatedAt,
	}

	metrics := e.db.WithContext(ctx).Model(&database.Metric{}).Where("project_id = ?", projectId)

	if err := metrics.Session(&gorm.Session{}).Count(&result.TotalMetrics).Error; err != nil {
		return ProjectSummary{}, fmt.Errorf("could not count metrics for project %d: %w", projectId, err)
	}
	if err := metrics.Session(&gorm.Session{}).Distinct("model_id").Count(&result.TotalModels).Error; err != nil {
		return ProjectSummary{}, fmt.Errorf("could not count models for project %d: %w", projectId, err)
	}
	if err := metrics.Session(&gorm.Session{}).Distinct("dataset_id").Count(&result.TotalDatasets).Error; err != nil {
		return ProjectSummary{}, fmt.Errorf("could not count datasets for project %d: %w", projectId, err)
	}

	var newest database.Metric
	err := e.db.WithContext(ctx).
		Where("project_id = ?", projectId).
		Order("timestamp DESC, id DESC").
		First(&newest).Error
	if err == nil {
		ts := newest.Timestamp
		result.LatestMetricTimestamp = &ts
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ProjectSummary{}, fmt.Errorf("could not find latest metric for project %d: %w", projectId, err)
	}

	return result, nil
}

// SummarizeMetrics builds a MetricSummary for every distinct
// (metric type, model, dataset) combination seen in the project.
func (e *Engine) SummarizeMetrics(ctx context.Context, projectId uint) ([]MetricSummary, error) {
	var combos []struct {
		MetricTypeId uint
		ModelId      uint
		DatasetId    uint
	}
	err := e.db.WithContext(ctx).
		Model(&database.Metric{}).
		Where("project_id = ?", projectId).
		Distinct("metric_type_id", "model_id", "dataset_id").
		Find(&combos).Error
	if err != nil {
		return nil, fmt.Errorf("could not list metric combinations for project %d: %w", projectId, err)
	}

	summaries := make([]MetricSummary, 0, len(combos))
	for _, combo := range combos {
		s, err := e.Summarize(ctx, projectId, combo.MetricTypeId, combo.ModelId, combo.DatasetId)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}

	return summaries, nil
}
