package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/ingest"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/messaging"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/selection"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/storage"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/summary"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/pkg/api"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxUploadBytes = 100 << 20

	DefaultMetricLimit = 1000
	MaxMetricLimit     = 10000
)

type BackendService struct {
	db        *gorm.DB
	publisher messaging.Publisher
	storage   storage.ObjectStore

	summaries  *summary.Engine
	selections *selection.Manager
}

func NewBackendService(db *gorm.DB, pub messaging.Publisher, store storage.ObjectStore) *BackendService {
	return &BackendService{
		db:         db,
		publisher:  pub,
		storage:    store,
		summaries:  summary.NewEngine(db),
		selections: selection.NewManager(db),
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/projects", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateProject))
		r.Get("/", RestHandler(s.ListProjects))
		r.Get("/{project_id}", RestHandler(s.GetProject))
		r.Delete("/{project_id}", RestHandler(s.DeleteProject))
		r.Get("/{project_id}/summary", RestHandler(s.GetProjectSummary))
		r.Get("/{project_id}/metrics/summary", RestHandler(s.GetProjectMetricSummaries))
	})
	r.Get("/models", RestHandler(s.ListModels))
	r.Get("/datasets", RestHandler(s.ListDatasets))
	r.Get("/metric-types", RestHandler(s.ListMetricTypes))
	r.Route("/metrics", func(r chi.Router) {
		r.Get("/", RestHandler(s.GetMetrics))
		r.Post("/", RestHandler(s.CreateMetric))
	})
	r.Route("/uploads", func(r chi.Router) {
		r.Post("/", RestHandler(s.SubmitUpload))
		r.Get("/", RestHandler(s.ListUploads))
		r.Get("/{upload_id}", RestHandler(s.GetUpload))
	})
	r.Route("/graph", func(r chi.Router) {
		r.Post("/files", RestHandler(s.UploadGraphFile))
		r.Get("/datasets/{dataset_id}", RestHandler(s.GetGraphData))
		r.Post("/datasets/{dataset_id}/select", RestHandler(s.SelectGraphDataset))
		r.Get("/selection", RestHandler(s.GetGraphSelection))
	})
}

func (s *BackendService) CreateProject(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateProjectRequest](r)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "project name is required")
	}
	if len(name) > database.MaxNameLength {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "project name must be at most %d characters", database.MaxNameLength)
	}
	if len(req.Description) > database.MaxDescriptionLength {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "project description must be at most %d characters", database.MaxDescriptionLength)
	}

	ctx := r.Context()

	var existing database.Project
	err = s.db.WithContext(ctx).First(&existing, "name = ?", name).Error
	if err == nil {
		return nil, CodedErrorf(http.StatusConflict, "project '%s' already exists", name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Error("error checking for existing project", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create project")
	}

	project := database.Project{Name: name, Description: req.Description}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		slog.Error("error creating project", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create project")
	}

	slog.Info("created project", "project_id", project.Id, "name", project.Name)
	return toApiProject(project), nil
}

func (s *BackendService) ListProjects(r *http.Request) (any, error) {
	var projects []database.Project
	if err := s.db.WithContext(r.Context()).Order("name").Find(&projects).Error; err != nil {
		slog.Error("error listing projects", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving projects")
	}

	out := make([]api.Project, len(projects))
	for i, p := range projects {
		out[i] = toApiProject(p)
	}
	return out, nil
}

func (s *BackendService) getProject(r *http.Request) (database.Project, error) {
	projectId, err := URLParamUint(r, "project_id")
	if err != nil {
		return database.Project{}, err
	}

	var project database.Project
	if err := s.db.WithContext(r.Context()).First(&project, "id = ?", projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Project{}, CodedErrorf(http.StatusNotFound, "project not found")
		}
		slog.Error("error getting project", "error", err)
		return database.Project{}, CodedErrorf(http.StatusInternalServerError, "error retrieving project record")
	}
	return project, nil
}

func (s *BackendService) GetProject(r *http.Request) (any, error) {
	project, err := s.getProject(r)
	if err != nil {
		return nil, err
	}
	return toApiProject(project), nil
}

func (s *BackendService) DeleteProject(r *http.Request) (any, error) {
	project, err := s.getProject(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var metricCount int64
	if err := s.db.WithContext(ctx).Model(&database.Metric{}).Where("project_id = ?", project.Id).Count(&metricCount).Error; err != nil {
		slog.Error("error counting project metrics", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting project")
	}
	if metricCount > 0 {
		return nil, CodedError(http.StatusConflict,
			fmt.Errorf("project '%s' has %d recorded metrics: %w", project.Name, metricCount, ingest.ErrReferentialViolation))
	}

	var uploads []database.CsvUpload
	if err := s.db.WithContext(ctx).Where("project_id = ?", project.Id).Find(&uploads).Error; err != nil {
		slog.Error("error listing project uploads", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting project")
	}

	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Where("project_id = ?", project.Id).Delete(&database.CsvUpload{}).Error; err != nil {
			return err
		}
		return txn.Delete(&database.Project{}, "id = ?", project.Id).Error
	})
	if err != nil {
		slog.Error("error deleting project", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting project")
	}

	// The raw CSV bytes are keyed "<upload id>/<filename>"; removing the
	// prefix per upload leaves no orphaned objects behind.
	for _, upload := range uploads {
		if err := s.storage.DeleteObjects(ctx, storage.UploadBucket, upload.Id.String()+"/"); err != nil {
			slog.Error("error deleting stored upload", "upload_id", upload.Id, "error", err)
		}
	}

	slog.Info("deleted project", "project_id", project.Id, "name", project.Name)
	return nil, nil
}

func (s *BackendService) GetProjectSummary(r *http.Request) (any, error) {
	project, err := s.getProject(r)
	if err != nil {
		return nil, err
	}

	result, err := s.summaries.SummarizeProject(r.Context(), project.Id)
	if err != nil {
		slog.Error("error summarizing project", "project_id", project.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error computing project summary")
	}
	return toApiProjectSummary(result), nil
}

func (s *BackendService) GetProjectMetricSummaries(r *http.Request) (any, error) {
	project, err := s.getProject(r)
	if err != nil {
		return nil, err
	}

	summaries, err := s.summaries.SummarizeMetrics(r.Context(), project.Id)
	if err != nil {
		slog.Error("error summarizing project metrics", "project_id", project.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error computing metric summaries")
	}

	out := make([]api.MetricSummary, len(summaries))
	for i, item := range summaries {
		out[i] = toApiMetricSummary(item)
	}
	return out, nil
}

func (s *BackendService) ListModels(r *http.Request) (any, error) {
	var models []database.Model
	if err := s.db.WithContext(r.Context()).Order("name, version").Find(&models).Error; err != nil {
		slog.Error("error listing models", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving models")
	}

	out := make([]api.Model, len(models))
	for i, m := range models {
		out[i] = toApiModel(m)
	}
	return out, nil
}

func (s *BackendService) ListDatasets(r *http.Request) (any, error) {
	var datasets []database.Dataset
	if err := s.db.WithContext(r.Context()).Order("name, version").Find(&datasets).Error; err != nil {
		slog.Error("error listing datasets", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving datasets")
	}

	out := make([]api.Dataset, len(datasets))
	for i, d := range datasets {
		out[i] = toApiDataset(d)
	}
	return out, nil
}

func (s *BackendService) ListMetricTypes(r *http.Request) (any, error) {
	var types []database.MetricType
	if err := s.db.WithContext(r.Context()).Order("name").Find(&types).Error; err != nil {
		slog.Error("error listing metric types", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving metric types")
	}

	out := make([]api.MetricType, len(types))
	for i, t := range types {
		out[i] = toApiMetricType(t)
	}
	return out, nil
}

func (s *BackendService) SubmitUpload(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing 'file' form field")
	}
	defer file.Close()

	projectId, err := formUint(r, "project_id")
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	var project database.Project
	if err := s.db.WithContext(ctx).First(&project, "id = ?", projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "project not found")
		}
		slog.Error("error getting project", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving project record")
	}

	filename := header.Filename
	if len(filename) > database.MaxFilenameLength {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "filename must be at most %d characters", database.MaxFilenameLength)
	}

	upload := database.CsvUpload{
		Id:        uuid.New(),
		Filename:  filename,
		FileSize:  header.Size,
		Status:    database.UploadPending,
		CreatedAt: time.Now().UTC(),
		ProjectId: project.Id,
	}

	objectKey := fmt.Sprintf("%s/%s", upload.Id, filename)
	if err := s.storage.PutObject(ctx, storage.UploadBucket, objectKey, file); err != nil {
		slog.Error("error storing upload", "upload_id", upload.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store uploaded file")
	}

	if err := s.db.WithContext(ctx).Create(&upload).Error; err != nil {
		slog.Error("error creating upload record", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create upload entry")
	}

	payload := messaging.IngestTaskPayload{UploadId: upload.Id, ObjectKey: objectKey}
	if err := s.publisher.PublishIngestTask(ctx, payload); err != nil {
		slog.Error("error publishing ingest task", "upload_id", upload.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue ingest task")
	}

	slog.Info("submitted upload", "upload_id", upload.Id, "filename", filename, "project_id", project.Id)
	return api.UploadSubmitResponse{Message: "Upload submitted", UploadId: upload.Id}, nil
}

func (s *BackendService) GetUpload(r *http.Request) (any, error) {
	uploadId, err := URLParamUUID(r, "upload_id")
	if err != nil {
		return nil, err
	}

	var upload database.CsvUpload
	if err := s.db.WithContext(r.Context()).First(&upload, "id = ?", uploadId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "upload not found")
		}
		slog.Error("error getting upload", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving upload record")
	}

	return toApiUpload(upload), nil
}

type uploadFilter struct {
	ProjectId *uint `schema:"project_id"`
}

func (s *BackendService) ListUploads(r *http.Request) (any, error) {
	filter, err := ParseRequestQueryParams[uploadFilter](r)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(r.Context()).Order("created_at DESC")
	if filter.ProjectId != nil {
		query = query.Where("project_id = ?", *filter.ProjectId)
	}

	var uploads []database.CsvUpload
	if err := query.Find(&uploads).Error; err != nil {
		slog.Error("error listing uploads", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving uploads")
	}

	out := make([]api.CsvUpload, len(uploads))
	for i, u := range uploads {
		out[i] = toApiUpload(u)
	}
	return out, nil
}
