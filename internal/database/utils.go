package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IncrementUploadRow bumps rows_processed or rows_failed by one. Counters are
// incremented per row, in the database, so an interrupted batch still reports
// an accurate count for the rows it committed.
func IncrementUploadRow(ctx context.Context, txn *gorm.DB, uploadId uuid.UUID, success bool) error {
	column := "rows_processed"
	if !success {
		column = "rows_failed"
	}

	if err := txn.WithContext(ctx).
		Model(&CsvUpload{}).
		Where("id = ?", uploadId).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1)).
		Error; err != nil {
		slog.Error("could not increment upload row count", "upload_id", uploadId, "column", column, "error", err)
		return fmt.Errorf("could not increment upload row count: %w", err)
	}

	return nil
}

// FinishUpload moves an upload to a terminal status. Guarded on the current
// status being "processing" so a terminal record is never rewritten.
func FinishUpload(ctx context.Context, txn *gorm.DB, uploadId uuid.UUID, status, errorMessage string) error {
	if status != UploadCompleted && status != UploadFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}

	res := txn.WithContext(ctx).
		Model(&CsvUpload{}).
		Where("id = ? AND status = ?", uploadId, UploadProcessing).
		Updates(map[string]any{
			"status":                  status,
			"error_message":           TruncateError(errorMessage),
			"processing_completed_at": sql.NullTime{Time: time.Now().UTC(), Valid: true},
		})
	if res.Error != nil {
		slog.Error("error updating upload status", "upload_id", uploadId, "status", status, "error", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("upload %s is not in processing state", uploadId)
	}
	return nil
}

// TruncateError bounds a message to the error_message column size so storing
// a failure can never itself fail.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	return msg[:MaxErrorLength]
}
