package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/messaging"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// RequeueInterruptedUploads resets uploads that were queued or mid-batch
// when the process last stopped and publishes fresh ingest tasks for them.
// Metrics already committed by the interrupted attempt are removed so the
// rerun cannot double-count rows.
func RequeueInterruptedUploads(ctx context.Context, db *gorm.DB, publisher messaging.Publisher, staleAfter time.Duration) error {
	cutoff := time.Now().UTC().Add(-staleAfter)

	var uploads []database.CsvUpload
	err := db.WithContext(ctx).
		Where("status = ?", database.UploadPending).
		Or("status = ? AND processing_started_at < ?", database.UploadProcessing, cutoff).
		Find(&uploads).Error
	if err != nil {
		return fmt.Errorf("could not list interrupted uploads: %w", err)
	}

	for _, upload := range uploads {
		err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
			if err := txn.Where("csv_upload_id = ?", upload.Id).Delete(&database.Metric{}).Error; err != nil {
				return err
			}
			return txn.Model(&database.CsvUpload{}).
				Where("id = ?", upload.Id).
				Updates(map[string]any{
					"status":                database.UploadPending,
					"error_message":         "",
					"rows_processed":        0,
					"rows_failed":           0,
					"processing_started_at": nil,
				}).Error
		})
		if err != nil {
			return fmt.Errorf("could not reset upload %s: %w", upload.Id, err)
		}

		payload := messaging.IngestTaskPayload{
			UploadId:  upload.Id,
			ObjectKey: fmt.Sprintf("%s/%s", upload.Id, upload.Filename),
		}
		if err := publisher.PublishIngestTask(ctx, payload); err != nil {
			return fmt.Errorf("could not requeue upload %s: %w", upload.Id, err)
		}

		slog.Info("requeued interrupted upload", "upload_id", upload.Id, "filename", upload.Filename)
	}

	return nil
}
