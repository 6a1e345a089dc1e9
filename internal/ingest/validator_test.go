package ingest_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRow() ingest.RawRow {
	return ingest.RawRow{
		Line:        1,
		Project:     "fraud-detection",
		Model:       "xgboost",
		Dataset:     "holdout",
		MetricName:  "accuracy",
		MetricValue: "0.9731",
		Timestamp:   "2025-06-01T12:30:00",
	}
}

func TestValidateRow(t *testing.T) {
	row, err := ingest.ValidateRow(validRow())
	require.NoError(t, err)

	assert.Equal(t, "fraud-detection", row.Project)
	assert.Equal(t, "xgboost", row.Model)
	assert.Equal(t, "holdout", row.Dataset)
	assert.Equal(t, "accuracy", row.MetricName)
	assert.True(t, row.Value.Equal(decimal.RequireFromString("0.9731")))
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC), row.Timestamp)
}

func TestValidateRowTrimsNames(t *testing.T) {
	raw := validRow()
	raw.Project = "  fraud-detection  "

	row, err := ingest.ValidateRow(raw)
	require.NoError(t, err)
	assert.Equal(t, "fraud-detection", row.Project)
}

func TestValidateRowMissingField(t *testing.T) {
	for _, column := range []string{"project", "model", "dataset", "metric_name", "metric_value", "timestamp"} {
		raw := validRow()
		switch column {
		case "project":
			raw.Project = "   "
		case "model":
			raw.Model = ""
		case "dataset":
			raw.Dataset = ""
		case "metric_name":
			raw.MetricName = ""
		case "metric_value":
			raw.MetricValue = ""
		case "timestamp":
			raw.Timestamp = ""
		}

		_, err := ingest.ValidateRow(raw)
		require.Error(t, err, column)

		var rowErr *ingest.RowError
		require.ErrorAs(t, err, &rowErr, column)
		assert.Equal(t, ingest.MissingField, rowErr.Kind, column)
		assert.Equal(t, column, rowErr.Column, column)
	}
}

func TestValidateRowNameTooLong(t *testing.T) {
	raw := validRow()
	raw.Model = strings.Repeat("x", 101)

	_, err := ingest.ValidateRow(raw)
	var rowErr *ingest.RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, ingest.InvalidValue, rowErr.Kind)
}

func TestValidateRowMetricValue(t *testing.T) {
	valid := []string{"0", "-1.5", "99.123456", "12345678901234.567890", "1.5e10", "1e19"}
	for _, value := range valid {
		raw := validRow()
		raw.MetricValue = value
		_, err := ingest.ValidateRow(raw)
		assert.NoError(t, err, value)
	}

	// Scientific notation expands to fixed point before the digit bound is
	// applied, so 1e25 is as oversized as its 26-digit expansion.
	invalid := []string{"abc", "1.2.3", "0.1234567", "123456789012345678901", "1e25", "9.9e20"}
	for _, value := range invalid {
		raw := validRow()
		raw.MetricValue = value

		_, err := ingest.ValidateRow(raw)
		var rowErr *ingest.RowError
		require.ErrorAs(t, err, &rowErr, value)
		assert.Equal(t, ingest.InvalidValue, rowErr.Kind, value)
		assert.Equal(t, "metric_value", rowErr.Column, value)
	}
}

func TestValidateRowTimestampFormats(t *testing.T) {
	valid := map[string]time.Time{
		"2025-06-01T12:30:00":       time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		"2025-06-01 12:30:00":       time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		"2025-06-01T12:30:00Z":      time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		"2025-06-01":                time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		"2025-06-01T12:30:00+02:00": time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	for input, expected := range valid {
		raw := validRow()
		raw.Timestamp = input

		row, err := ingest.ValidateRow(raw)
		require.NoError(t, err, input)
		assert.True(t, row.Timestamp.Equal(expected), input)
	}

	for _, input := range []string{"not-a-date", "01/06/2025", "2025-13-01"} {
		raw := validRow()
		raw.Timestamp = input

		_, err := ingest.ValidateRow(raw)
		var rowErr *ingest.RowError
		require.ErrorAs(t, err, &rowErr, input)
		assert.Equal(t, ingest.InvalidTimestamp, rowErr.Kind, input)
	}
}

func TestValidateRowHasNoSideEffects(t *testing.T) {
	raw := validRow()

	first, err := ingest.ValidateRow(raw)
	require.NoError(t, err)
	second, err := ingest.ValidateRow(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
