package summary_test

import (
	"context"
	"testing"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/summary"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func seedEntities(t *testing.T, db *gorm.DB) (database.Project, database.Model, database.Dataset, database.MetricType) {
	t.Helper()

	project := database.Project{Name: "fraud-detection"}
	model := database.Model{Name: "xgboost", Version: "1.0"}
	dataset := database.Dataset{Name: "holdout", Version: "1.0"}
	metricType := database.MetricType{Name: "accuracy", Unit: "%", HigherIsBetter: true}

	require.NoError(t, db.Create(&project).Error)
	require.NoError(t, db.Create(&model).Error)
	require.NoError(t, db.Create(&dataset).Error)
	require.NoError(t, db.Create(&metricType).Error)

	return project, model, dataset, metricType
}

func addMetric(t *testing.T, db *gorm.DB, project database.Project, model database.Model, dataset database.Dataset, metricType database.MetricType, value string, ts time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&database.Metric{
		Value:        decimal.RequireFromString(value),
		Timestamp:    ts,
		ProjectId:    project.Id,
		ModelId:      model.Id,
		DatasetId:    dataset.Id,
		MetricTypeId: metricType.Id,
	}).Error)
}

func TestSummarizeTrend(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		values    []string
		direction string
		change    string
	}{
		{name: "equal values are stable", values: []string{"10.0", "10.0"}, direction: summary.TrendStable, change: "0"},
		{name: "increase is up", values: []string{"10.0", "12.0"}, direction: summary.TrendUp, change: "20"},
		{name: "decrease is down", values: []string{"10.0", "8.0"}, direction: summary.TrendDown, change: "-20"},
		{name: "single observation is stable", values: []string{"10.0"}, direction: summary.TrendStable},
		{name: "zero previous hides change", values: []string{"0", "5.0"}, direction: summary.TrendUp},
		{name: "fractional change rounds to six places", values: []string{"3.0", "4.0"}, direction: summary.TrendUp, change: "33.333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := createDB(t)
			project, model, dataset, metricType := seedEntities(t, db)

			for i, value := range tt.values {
				addMetric(t, db, project, model, dataset, metricType, value, base.Add(time.Duration(i)*time.Hour))
			}

			result, err := summary.NewEngine(db).Summarize(context.Background(), project.Id, metricType.Id, model.Id, dataset.Id)
			require.NoError(t, err)

			assert.Equal(t, tt.direction, result.TrendDirection)
			last := tt.values[len(tt.values)-1]
			assert.True(t, result.LatestValue.Equal(decimal.RequireFromString(last)),
				"latest value %s != %s", result.LatestValue, last)

			if tt.change == "" {
				assert.Nil(t, result.ChangePercentage)
			} else {
				require.NotNil(t, result.ChangePercentage)
				assert.True(t, result.ChangePercentage.Equal(decimal.RequireFromString(tt.change)),
					"change %s != %s", result.ChangePercentage, tt.change)
			}
		})
	}
}

func TestSummarizeTiedTimestamps(t *testing.T) {
	db := createDB(t)
	project, model, dataset, metricType := seedEntities(t, db)

	// Same timestamp for every observation: the most recently inserted one
	// wins, so latest=9.0 and previous=12.0.
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	addMetric(t, db, project, model, dataset, metricType, "10.0", ts)
	addMetric(t, db, project, model, dataset, metricType, "12.0", ts)
	addMetric(t, db, project, model, dataset, metricType, "9.0", ts)

	result, err := summary.NewEngine(db).Summarize(context.Background(), project.Id, metricType.Id, model.Id, dataset.Id)
	require.NoError(t, err)

	assert.True(t, result.LatestValue.Equal(decimal.RequireFromString("9.0")))
	assert.Equal(t, summary.TrendDown, result.TrendDirection)
	require.NotNil(t, result.ChangePercentage)
	assert.True(t, result.ChangePercentage.Equal(decimal.RequireFromString("-25")))
}

func TestSummarizeIncludesNames(t *testing.T) {
	db := createDB(t)
	project, model, dataset, metricType := seedEntities(t, db)
	addMetric(t, db, project, model, dataset, metricType, "0.97", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	result, err := summary.NewEngine(db).Summarize(context.Background(), project.Id, metricType.Id, model.Id, dataset.Id)
	require.NoError(t, err)

	assert.Equal(t, "accuracy", result.MetricTypeName)
	assert.Equal(t, "%", result.MetricTypeUnit)
	assert.Equal(t, "xgboost", result.ModelName)
	assert.Equal(t, "holdout", result.DatasetName)
}

func TestSummarizeNoObservations(t *testing.T) {
	db := createDB(t)
	project, model, dataset, metricType := seedEntities(t, db)

	_, err := summary.NewEngine(db).Summarize(context.Background(), project.Id, metricType.Id, model.Id, dataset.Id)
	assert.ErrorIs(t, err, summary.ErrNoObservations)
}

func TestSummarizeProject(t *testing.T) {
	db := createDB(t)
	project, model, dataset, metricType := seedEntities(t, db)

	otherModel := database.Model{Name: "lightgbm", Version: "1.0"}
	require.NoError(t, db.Create(&otherModel).Error)

	newest := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	addMetric(t, db, project, model, dataset, metricType, "0.95", newest.Add(-48*time.Hour))
	addMetric(t, db, project, model, dataset, metricType, "0.96", newest.Add(-24*time.Hour))
	addMetric(t, db, project, otherModel, dataset, metricType, "0.91", newest)

	result, err := summary.NewEngine(db).SummarizeProject(context.Background(), project.Id)
	require.NoError(t, err)

	assert.Equal(t, project.Id, result.Id)
	assert.Equal(t, "fraud-detection", result.Name)
	assert.EqualValues(t, 3, result.TotalMetrics)
	assert.EqualValues(t, 2, result.TotalModels)
	assert.EqualValues(t, 1, result.TotalDatasets)
	require.NotNil(t, result.LatestMetricTimestamp)
	assert.True(t, result.LatestMetricTimestamp.Equal(newest))
}

func TestSummarizeProjectWithoutMetrics(t *testing.T) {
	db := createDB(t)
	project, _, _, _ := seedEntities(t, db)

	result, err := summary.NewEngine(db).SummarizeProject(context.Background(), project.Id)
	require.NoError(t, err)

	assert.EqualValues(t, 0, result.TotalMetrics)
	assert.Nil(t, result.LatestMetricTimestamp)
}

func TestSummarizeMetrics(t *testing.T) {
	db := createDB(t)
	project, model, dataset, metricType := seedEntities(t, db)

	f1 := database.MetricType{Name: "f1_score"}
	require.NoError(t, db.Create(&f1).Error)

	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	addMetric(t, db, project, model, dataset, metricType, "0.95", ts)
	addMetric(t, db, project, model, dataset, f1, "0.88", ts)

	summaries, err := summary.NewEngine(db).SummarizeMetrics(context.Background(), project.Id)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	names := []string{summaries[0].MetricTypeName, summaries[1].MetricTypeName}
	assert.ElementsMatch(t, []string{"accuracy", "f1_score"}, names)
}
