package integrationtests

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	backend "github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/api"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/messaging"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/storage"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/pkg/api"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadIsTerminal(upload api.CsvUpload) bool {
	return upload.Status == database.UploadCompleted || upload.Status == database.UploadFailed
}

func waitForUpload(t *testing.T, router http.Handler, uploadId uuid.UUID) api.CsvUpload {
	for i := 0; i < 40; i++ {
		var upload api.CsvUpload
		time.Sleep(500 * time.Millisecond)
		err := httpRequest(router, "GET", fmt.Sprintf("/uploads/%s", uploadId), nil, &upload)
		require.NoError(t, err)

		if uploadIsTerminal(upload) {
			return upload
		}
	}

	t.Fatal("timeout reached before upload completed")
	return api.CsvUpload{}
}

func ingestCsv(rows ...string) string {
	header := "project,model,dataset,metric_name,metric_value,timestamp"
	return strings.Join(append([]string{header}, rows...), "\n") + "\n"
}

func TestIngestWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minioUrl := setupMinioContainer(t, ctx)

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        minioUrl,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(ctx, storage.UploadBucket))

	db := createDB(t)

	publisher, reciever := setupRabbitMQContainer(t, ctx)

	service := backend.NewBackendService(db, publisher, store)
	router := chi.NewRouter()
	service.AddRoutes(router)

	worker := ingest.NewTaskProcessor(db, store, reciever)
	go worker.Start()
	defer worker.Stop()

	var project api.Project
	require.NoError(t, httpRequest(router, "POST", "/projects", api.CreateProjectRequest{Name: "fraud-detection"}, &project))

	contents := ingestCsv(
		"fraud-detection,xgboost,holdout,accuracy,0.94,2025-06-01T10:00:00",
		"fraud-detection,xgboost,holdout,accuracy,0.97,2025-06-02T10:00:00",
		"fraud-detection,xgboost,holdout,accuracy,oops,2025-06-03T10:00:00",
		"fraud-detection,lightgbm,holdout,f1_score,0.88,2025-06-02T10:00:00",
	)

	var submitted api.UploadSubmitResponse
	fields := map[string]string{"project_id": fmt.Sprint(project.Id)}
	require.NoError(t, multipartRequest(t, router, "/uploads", fields, "metrics.csv", contents, &submitted))

	upload := waitForUpload(t, router, submitted.UploadId)

	assert.Equal(t, database.UploadCompleted, upload.Status)
	assert.Equal(t, 3, upload.RowsProcessed)
	assert.Equal(t, 1, upload.RowsFailed)
	assert.Contains(t, upload.ErrorMessage, "row 3")
	require.NotNil(t, upload.ProcessingStartedAt)
	require.NotNil(t, upload.ProcessingCompletedAt)

	var metrics []api.MetricResponse
	require.NoError(t, httpRequest(router, "GET", fmt.Sprintf("/metrics?project_ids=%d", project.Id), nil, &metrics))
	require.Len(t, metrics, 3)

	// Newest first across the whole project.
	assert.Equal(t, "accuracy", metrics[0].MetricTypeName)
	assert.True(t, metrics[0].Value.Equal(decimal.RequireFromString("0.97")))

	var projectSummary api.ProjectSummary
	require.NoError(t, httpRequest(router, "GET", fmt.Sprintf("/projects/%d/summary", project.Id), nil, &projectSummary))
	assert.EqualValues(t, 3, projectSummary.TotalMetrics)
	assert.EqualValues(t, 2, projectSummary.TotalModels)
	assert.EqualValues(t, 1, projectSummary.TotalDatasets)

	var summaries []api.MetricSummary
	require.NoError(t, httpRequest(router, "GET", fmt.Sprintf("/projects/%d/metrics/summary", project.Id), nil, &summaries))
	require.Len(t, summaries, 2)
}

func TestIngestWorkflowDuplicateDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minioUrl := setupMinioContainer(t, ctx)

	store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
		Endpoint:        minioUrl,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
	})
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(ctx, storage.UploadBucket))

	db := createDB(t)

	publisher, reciever := setupRabbitMQContainer(t, ctx)

	service := backend.NewBackendService(db, publisher, store)
	router := chi.NewRouter()
	service.AddRoutes(router)

	worker := ingest.NewTaskProcessor(db, store, reciever)
	go worker.Start()
	defer worker.Stop()

	var project api.Project
	require.NoError(t, httpRequest(router, "POST", "/projects", api.CreateProjectRequest{Name: "churn"}, &project))

	contents := ingestCsv("churn,catboost,holdout,auc,0.91,2025-06-01T10:00:00")

	var submitted api.UploadSubmitResponse
	fields := map[string]string{"project_id": fmt.Sprint(project.Id)}
	require.NoError(t, multipartRequest(t, router, "/uploads", fields, "metrics.csv", contents, &submitted))

	upload := waitForUpload(t, router, submitted.UploadId)
	require.Equal(t, database.UploadCompleted, upload.Status)

	// A second delivery for the same upload is acked without reprocessing.
	err = publisher.PublishIngestTask(ctx, messaging.IngestTaskPayload{
		UploadId:  submitted.UploadId,
		ObjectKey: fmt.Sprintf("%s/metrics.csv", submitted.UploadId),
	})
	require.NoError(t, err)

	time.Sleep(2 * time.Second)

	var after api.CsvUpload
	require.NoError(t, httpRequest(router, "GET", fmt.Sprintf("/uploads/%s", submitted.UploadId), nil, &after))
	assert.Equal(t, database.UploadCompleted, after.Status)
	assert.Equal(t, 1, after.RowsProcessed)

	var metrics []api.MetricResponse
	require.NoError(t, httpRequest(router, "GET", fmt.Sprintf("/metrics?project_ids=%d", project.Id), nil, &metrics))
	assert.Len(t, metrics, 1)
}
