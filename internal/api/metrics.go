package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/pkg/api"
)

// metricRow is a Metric joined with the names of its reference entities, so
// the dashboard never has to chase ids.
type metricRow struct {
	database.Metric

	ProjectName string

	ModelName    string
	ModelVersion string

	DatasetName    string
	DatasetVersion string

	MetricTypeName           string
	MetricTypeUnit           string
	MetricTypeHigherIsBetter bool
}

func (s *BackendService) GetMetrics(r *http.Request) (any, error) {
	filter, err := ParseRequestQueryParams[api.MetricFilter](r)
	if err != nil {
		return nil, err
	}

	if filter.Limit < 0 || filter.Limit > MaxMetricLimit {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "limit must be between 0 and %d", MaxMetricLimit)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultMetricLimit
	}

	query := s.db.WithContext(r.Context()).
		Model(&database.Metric{}).
		Select(`metrics.*,
			projects.name AS project_name,
			models.name AS model_name, models.version AS model_version,
			datasets.name AS dataset_name, datasets.version AS dataset_version,
			metric_types.name AS metric_type_name, metric_types.unit AS metric_type_unit,
			metric_types.higher_is_better AS metric_type_higher_is_better`).
		Joins("JOIN projects ON projects.id = metrics.project_id").
		Joins("JOIN models ON models.id = metrics.model_id").
		Joins("JOIN datasets ON datasets.id = metrics.dataset_id").
		Joins("JOIN metric_types ON metric_types.id = metrics.metric_type_id")

	if len(filter.ProjectIds) > 0 {
		query = query.Where("metrics.project_id IN ?", filter.ProjectIds)
	}
	if len(filter.ModelIds) > 0 {
		query = query.Where("metrics.model_id IN ?", filter.ModelIds)
	}
	if len(filter.DatasetIds) > 0 {
		query = query.Where("metrics.dataset_id IN ?", filter.DatasetIds)
	}
	if len(filter.MetricTypeIds) > 0 {
		query = query.Where("metrics.metric_type_id IN ?", filter.MetricTypeIds)
	}
	if filter.StartTimestamp != nil {
		query = query.Where("metrics.timestamp >= ?", *filter.StartTimestamp)
	}
	if filter.EndTimestamp != nil {
		query = query.Where("metrics.timestamp <= ?", *filter.EndTimestamp)
	}

	var rows []metricRow
	if err := query.Order("metrics.timestamp DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		slog.Error("error querying metrics", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving metrics")
	}

	out := make([]api.MetricResponse, len(rows))
	for i, row := range rows {
		out[i] = api.MetricResponse{
			Id:                       row.Id,
			Value:                    row.Value,
			Timestamp:                row.Timestamp,
			Notes:                    row.Notes,
			CreatedAt:                row.CreatedAt,
			ProjectName:              row.ProjectName,
			ModelName:                row.ModelName,
			ModelVersion:             row.ModelVersion,
			DatasetName:              row.DatasetName,
			DatasetVersion:           row.DatasetVersion,
			MetricTypeName:           row.MetricTypeName,
			MetricTypeUnit:           row.MetricTypeUnit,
			MetricTypeHigherIsBetter: row.MetricTypeHigherIsBetter,
		}
	}
	return out, nil
}

func (s *BackendService) CreateMetric(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateMetricRequest](r)
	if err != nil {
		return nil, err
	}

	if err := ingest.CheckMetricValue(req.Value); err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid metric value: %v", err)
	}
	if req.Timestamp.IsZero() {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "timestamp is required")
	}
	if len(req.Notes) > database.MaxDescriptionLength {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "notes must be at most %d characters", database.MaxDescriptionLength)
	}

	ctx := r.Context()
	resolver := ingest.NewResolver(s.db)

	projectId, err := resolver.Project(ctx, req.Project)
	if err != nil {
		return nil, resolveError(err)
	}
	modelId, err := resolver.Model(ctx, req.Model, "")
	if err != nil {
		return nil, resolveError(err)
	}
	datasetId, err := resolver.Dataset(ctx, req.Dataset, "")
	if err != nil {
		return nil, resolveError(err)
	}
	metricTypeId, err := resolver.MetricType(ctx, req.MetricName)
	if err != nil {
		return nil, resolveError(err)
	}

	metric := database.Metric{
		Value:        req.Value,
		Timestamp:    req.Timestamp.UTC(),
		Notes:        req.Notes,
		CreatedAt:    time.Now().UTC(),
		ProjectId:    projectId,
		ModelId:      modelId,
		DatasetId:    datasetId,
		MetricTypeId: metricTypeId,
	}
	if err := s.db.WithContext(ctx).Create(&metric).Error; err != nil {
		slog.Error("error creating metric", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create metric entry")
	}

	slog.Info("created metric", "metric_id", metric.Id, "project_id", projectId)
	return map[string]any{"Id": metric.Id}, nil
}

func resolveError(err error) error {
	if errors.Is(err, ingest.ErrInvalidReference) {
		return CodedError(http.StatusUnprocessableEntity, err)
	}
	slog.Error("error resolving metric entities", "error", err)
	return CodedErrorf(http.StatusInternalServerError, "failed to resolve metric entities")
}
