package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
)

// Bulk import of a local metrics CSV straight into the database, without
// going through the HTTP surface or the queue.
func main() {
	var (
		envFile   string
		csvPath   string
		projectId uint
	)
	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.StringVar(&csvPath, "file", "", "path to the metrics CSV to import")
	flag.UintVar(&projectId, "project", 0, "project id the upload belongs to")
	flag.Parse()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Fatalf("error loading .env file '%s': %v", envFile, err)
		}
	}
	if csvPath == "" {
		log.Fatalf("-file is required")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatalf("DATABASE_URL must be set")
	}

	db, err := database.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()

	var project database.Project
	if err := db.WithContext(ctx).First(&project, "id = ?", projectId).Error; err != nil {
		log.Fatalf("Failed to find project %d: %v", projectId, err)
	}

	file, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", csvPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		log.Fatalf("Failed to stat %s: %v", csvPath, err)
	}

	upload := database.CsvUpload{
		Id:        uuid.New(),
		Filename:  filepath.Base(csvPath),
		FileSize:  info.Size(),
		Status:    database.UploadPending,
		CreatedAt: time.Now().UTC(),
		ProjectId: project.Id,
	}
	if err := db.WithContext(ctx).Create(&upload).Error; err != nil {
		log.Fatalf("Failed to create upload record: %v", err)
	}

	bar := progressbar.NewOptions64(info.Size(),
		progressbar.OptionSetDescription("importing "+upload.Filename),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowBytes(true),
		progressbar.OptionClearOnFinish(),
	)

	pipeline := ingest.NewPipeline(db)
	runErr := pipeline.Run(ctx, upload.Id, io.TeeReader(file, bar))
	_ = bar.Finish()
	if runErr != nil {
		log.Fatalf("Import failed: %v", runErr)
	}

	var result database.CsvUpload
	if err := db.WithContext(ctx).First(&result, "id = ?", upload.Id).Error; err != nil {
		log.Fatalf("Failed to load upload record: %v", err)
	}

	fmt.Printf("import %s: status=%s processed=%d failed=%d\n",
		result.Filename, result.Status, result.RowsProcessed, result.RowsFailed)
	if result.ErrorMessage != "" {
		fmt.Printf("errors: %s\n", result.ErrorMessage)
	}
}
