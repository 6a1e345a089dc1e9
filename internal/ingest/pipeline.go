package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pipeline consumes one upload's CSV stream and commits successful rows as
// metrics. Row-level failures are counted and summarized without aborting
// the batch; only systemic faults (unreadable stream, storage errors) abort
// and mark the upload failed.
type Pipeline struct {
	db *gorm.DB
}

func NewPipeline(db *gorm.DB) *Pipeline {
	return &Pipeline{db: db}
}

// batchResult folds per-row outcomes. Counters are additionally persisted
// row by row; this accumulator only carries the error summary.
type batchResult struct {
	processed int
	failed    int

	errs   []string
	errLen int
}

func (b *batchResult) addError(msg string) {
	b.failed++
	if b.errLen >= database.MaxErrorLength {
		return
	}
	b.errs = append(b.errs, msg)
	b.errLen += len(msg) + 2
}

func (b *batchResult) summary() string {
	if b.failed == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d rows failed: %s",
		b.failed, b.failed+b.processed, strings.Join(b.errs, "; "))
}

// Run processes the upload identified by uploadId from the given CSV stream.
// It drives the upload's status machine: pending → processing → completed or
// failed. A second Run for the same upload is rejected with ErrAlreadyRunning.
func (p *Pipeline) Run(ctx context.Context, uploadId uuid.UUID, r io.Reader) error {
	if err := p.claim(ctx, uploadId); err != nil {
		return err
	}

	slog.Info("started processing upload", "upload_id", uploadId)

	reader := csv.NewReader(r)

	columns, err := p.readHeader(reader)
	if err != nil {
		return p.fail(ctx, uploadId, err)
	}

	resolver := NewResolver(p.db)
	var result batchResult

	line := 1 // data rows are numbered from 1; the header is row 0
	for ; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				p.failRow(ctx, uploadId, &result, rowErrorf(line, MissingField, "row", "wrong number of columns"))
				continue
			}
			return p.fail(ctx, uploadId, fmt.Errorf("could not read CSV stream at row %d: %w", line, err))
		}

		row, err := ValidateRow(rawRow(line, record, columns))
		if err != nil {
			p.failRow(ctx, uploadId, &result, err)
			continue
		}

		metric, err := p.resolveRow(ctx, resolver, row, uploadId)
		if err != nil {
			if errors.Is(err, ErrInvalidReference) {
				p.failRow(ctx, uploadId, &result, fmt.Errorf("row %d: %w", line, err))
				continue
			}
			return p.fail(ctx, uploadId, fmt.Errorf("resolving entities for row %d: %w", line, err))
		}

		if err := p.db.WithContext(ctx).Create(&metric).Error; err != nil {
			return p.fail(ctx, uploadId, fmt.Errorf("saving metric for row %d: %w", line, err))
		}

		result.processed++
		if err := database.IncrementUploadRow(ctx, p.db, uploadId, true); err != nil {
			return p.fail(ctx, uploadId, err)
		}
	}

	// A batch with some row failures still completes; "failed" is reserved
	// for systemic faults that abort processing.
	if err := database.FinishUpload(ctx, p.db, uploadId, database.UploadCompleted, result.summary()); err != nil {
		return err
	}

	slog.Info("finished processing upload",
		"upload_id", uploadId, "rows_processed", result.processed, "rows_failed", result.failed)

	return nil
}

func (p *Pipeline) claim(ctx context.Context, uploadId uuid.UUID) error {
	res := p.db.WithContext(ctx).
		Model(&database.CsvUpload{}).
		Where("id = ? AND status = ?", uploadId, database.UploadPending).
		Updates(map[string]any{
			"status":                database.UploadProcessing,
			"processing_started_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		})
	if res.Error != nil {
		return fmt.Errorf("could not claim upload %s: %w", uploadId, res.Error)
	}
	if res.RowsAffected == 0 {
		var upload database.CsvUpload
		if err := p.db.WithContext(ctx).First(&upload, "id = ?", uploadId).Error; err != nil {
			return fmt.Errorf("upload %s not found: %w", uploadId, err)
		}
		return fmt.Errorf("upload %s has status %s: %w", uploadId, upload.Status, ErrAlreadyRunning)
	}
	return nil
}

func (p *Pipeline) readHeader(reader *csv.Reader) (map[string]int, error) {
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("could not read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range RequiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("CSV header is missing required column %q", required)
		}
	}

	return columns, nil
}

func rawRow(line int, record []string, columns map[string]int) RawRow {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	return RawRow{
		Line:        line,
		Project:     field("project"),
		Model:       field("model"),
		Dataset:     field("dataset"),
		MetricName:  field("metric_name"),
		MetricValue: field("metric_value"),
		Timestamp:   field("timestamp"),
	}
}

func (p *Pipeline) resolveRow(ctx context.Context, resolver *Resolver, row ValidatedRow, uploadId uuid.UUID) (database.Metric, error) {
	projectId, err := resolver.Project(ctx, row.Project)
	if err != nil {
		return database.Metric{}, err
	}
	modelId, err := resolver.Model(ctx, row.Model, "")
	if err != nil {
		return database.Metric{}, err
	}
	datasetId, err := resolver.Dataset(ctx, row.Dataset, "")
	if err != nil {
		return database.Metric{}, err
	}
	metricTypeId, err := resolver.MetricType(ctx, row.MetricName)
	if err != nil {
		return database.Metric{}, err
	}

	return database.Metric{
		Value:        row.Value,
		Timestamp:    row.Timestamp,
		CreatedAt:    time.Now().UTC(),
		ProjectId:    projectId,
		ModelId:      modelId,
		DatasetId:    datasetId,
		MetricTypeId: metricTypeId,
		CsvUploadId:  uuid.NullUUID{UUID: uploadId, Valid: true},
	}, nil
}

func (p *Pipeline) failRow(ctx context.Context, uploadId uuid.UUID, result *batchResult, rowErr error) {
	slog.Warn("skipping CSV row", "upload_id", uploadId, "error", rowErr)
	result.addError(rowErr.Error())
	if err := database.IncrementUploadRow(ctx, p.db, uploadId, false); err != nil {
		slog.Error("could not record row failure", "upload_id", uploadId, "error", err)
	}
}

func (p *Pipeline) fail(ctx context.Context, uploadId uuid.UUID, cause error) error {
	slog.Error("upload processing failed", "upload_id", uploadId, "error", cause)
	if err := database.FinishUpload(ctx, p.db, uploadId, database.UploadFailed, cause.Error()); err != nil {
		slog.Error("could not mark upload as failed", "upload_id", uploadId, "error", err)
	}
	return cause
}
