package api

import (
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/stats"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/summary"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/pkg/api"
)

func toApiProject(p database.Project) api.Project {
	return api.Project{
		Id:          p.Id,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toApiModel(m database.Model) api.Model {
	return api.Model{
		Id:          m.Id,
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func toApiDataset(d database.Dataset) api.Dataset {
	return api.Dataset{
		Id:          d.Id,
		Name:        d.Name,
		Version:     d.Version,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
	}
}

func toApiMetricType(t database.MetricType) api.MetricType {
	return api.MetricType{
		Id:             t.Id,
		Name:           t.Name,
		Unit:           t.Unit,
		Description:    t.Description,
		HigherIsBetter: t.HigherIsBetter,
		CreatedAt:      t.CreatedAt,
	}
}

func toApiUpload(u database.CsvUpload) api.CsvUpload {
	out := api.CsvUpload{
		Id:              u.Id,
		Filename:        u.Filename,
		FileSize:        u.FileSize,
		Status:          u.Status,
		ErrorMessage:    u.ErrorMessage,
		RowsProcessed:   u.RowsProcessed,
		RowsFailed:      u.RowsFailed,
		UploadTimestamp: u.CreatedAt,
		ProjectId:       u.ProjectId,
	}
	if u.ProcessingStartedAt.Valid {
		t := u.ProcessingStartedAt.Time
		out.ProcessingStartedAt = &t
	}
	if u.ProcessingCompletedAt.Valid {
		t := u.ProcessingCompletedAt.Time
		out.ProcessingCompletedAt = &t
	}
	return out
}

func toApiMetricSummary(s summary.MetricSummary) api.MetricSummary {
	return api.MetricSummary{
		MetricTypeName:   s.MetricTypeName,
		MetricTypeUnit:   s.MetricTypeUnit,
		LatestValue:      s.LatestValue,
		LatestTimestamp:  s.LatestTimestamp,
		ModelName:        s.ModelName,
		DatasetName:      s.DatasetName,
		TrendDirection:   s.TrendDirection,
		ChangePercentage: s.ChangePercentage,
	}
}

func toApiProjectSummary(s summary.ProjectSummary) api.ProjectSummary {
	return api.ProjectSummary{
		Id:                    s.Id,
		Name:                  s.Name,
		Description:           s.Description,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
		TotalMetrics:          s.TotalMetrics,
		TotalModels:           s.TotalModels,
		TotalDatasets:         s.TotalDatasets,
		LatestMetricTimestamp: s.LatestMetricTimestamp,
	}
}

func toApiGraphData(d database.GraphDataset) (api.GraphData, error) {
	points, err := stats.Points(&d)
	if err != nil {
		return api.GraphData{}, err
	}

	dataPoints := make([]api.DataPoint, len(points))
	for i, p := range points {
		dataPoints[i] = api.DataPoint{X: p.X, Y: p.Y, Label: p.Label}
	}

	return api.GraphData{
		DatasetId:   d.Id,
		DatasetName: d.Name,
		XAxisLabel:  d.XAxisLabel,
		YAxisLabel:  d.YAxisLabel,
		DataPoints:  dataPoints,
		TotalPoints: d.TotalPoints,
		MinX:        d.MinX,
		MaxX:        d.MaxX,
		MinY:        d.MinY,
		MaxY:        d.MaxY,
	}, nil
}
