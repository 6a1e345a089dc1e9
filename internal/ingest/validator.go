package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/shopspring/decimal"
)

// Columns every metrics CSV must carry, matched case-insensitively against
// the header row.
var RequiredColumns = []string{"project", "model", "dataset", "metric_name", "metric_value", "timestamp"}

const (
	maxFractionalDigits  = 6
	maxSignificantDigits = 20
)

// Timestamps are timezone-naive absolute instants; zoned inputs are accepted
// and normalized to UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

type RawRow struct {
	Line int

	Project     string
	Model       string
	Dataset     string
	MetricName  string
	MetricValue string
	Timestamp   string
}

type ValidatedRow struct {
	Project    string
	Model      string
	Dataset    string
	MetricName string
	Value      decimal.Decimal
	Timestamp  time.Time
}

// ValidateRow parses and type-checks a single CSV row. It is pure: no lookups
// and no entity creation happen here, so a failed row leaves no trace.
func ValidateRow(row RawRow) (ValidatedRow, error) {
	var out ValidatedRow
	var err error

	if out.Project, err = validName(row.Line, "project", row.Project); err != nil {
		return ValidatedRow{}, err
	}
	if out.Model, err = validName(row.Line, "model", row.Model); err != nil {
		return ValidatedRow{}, err
	}
	if out.Dataset, err = validName(row.Line, "dataset", row.Dataset); err != nil {
		return ValidatedRow{}, err
	}
	if out.MetricName, err = validName(row.Line, "metric_name", row.MetricName); err != nil {
		return ValidatedRow{}, err
	}

	value := strings.TrimSpace(row.MetricValue)
	if value == "" {
		return ValidatedRow{}, rowErrorf(row.Line, MissingField, "metric_value", "value is required")
	}
	out.Value, err = parseMetricValue(row.Line, value)
	if err != nil {
		return ValidatedRow{}, err
	}

	ts := strings.TrimSpace(row.Timestamp)
	if ts == "" {
		return ValidatedRow{}, rowErrorf(row.Line, MissingField, "timestamp", "timestamp is required")
	}
	out.Timestamp, err = parseTimestamp(row.Line, ts)
	if err != nil {
		return ValidatedRow{}, err
	}

	return out, nil
}

func validName(line int, column, raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", rowErrorf(line, MissingField, column, "value is required")
	}
	if len(name) > database.MaxNameLength {
		return "", rowErrorf(line, InvalidValue, column, "value exceeds %d characters", database.MaxNameLength)
	}
	return name, nil
}

func parseMetricValue(line int, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, rowErrorf(line, InvalidValue, "metric_value", "%q is not numeric", raw)
	}
	if err := CheckMetricValue(value); err != nil {
		return decimal.Decimal{}, &RowError{Line: line, Kind: InvalidValue, Column: "metric_value", Err: err}
	}
	return value, nil
}

// CheckMetricValue enforces the decimal(20,6) storage contract: at most 6
// fractional digits and at most 20 digits in fixed-point form. NumDigits
// counts only coefficient digits, so a positive exponent (scientific-notation
// input like 1e25) has to be added back to get the fixed-point width.
func CheckMetricValue(value decimal.Decimal) error {
	if value.Exponent() < -maxFractionalDigits {
		return fmt.Errorf("more than %d fractional digits", maxFractionalDigits)
	}
	digits := value.NumDigits()
	if exp := int(value.Exponent()); exp > 0 {
		digits += exp
	}
	if digits > maxSignificantDigits {
		return fmt.Errorf("more than %d significant digits", maxSignificantDigits)
	}
	return nil
}

func parseTimestamp(line int, raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, rowErrorf(line, InvalidTimestamp, "timestamp", "%q is not a recognized timestamp", raw)
}
