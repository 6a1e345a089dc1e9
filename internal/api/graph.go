package api

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/selection"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/stats"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/pkg/api"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadGraphFile accepts an x,y[,label] CSV and creates an UploadedFile
// with one graph dataset holding the parsed points and their stats.
func (s *BackendService) UploadGraphFile(r *http.Request) (any, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse multipart form: %v", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing 'file' form field")
	}
	defer file.Close()

	xLabel, yLabel, points, err := parseGraphCsv(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid data file: %v", err)
	}

	name := strings.TrimSuffix(header.Filename, ".csv")
	if len(name) > database.MaxNameLength {
		name = name[:database.MaxNameLength]
	}

	uploaded := database.UploadedFile{
		Id:          uuid.New(),
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		UploadedAt:  time.Now().UTC(),
	}
	dataset := database.GraphDataset{
		Id:             uuid.New(),
		UploadedFileId: uploaded.Id,
		Name:           name,
		XAxisLabel:     xLabel,
		YAxisLabel:     yLabel,
		CreatedAt:      time.Now().UTC(),
	}
	if err := stats.ReplacePoints(&dataset, points); err != nil {
		slog.Error("error encoding data points", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store data points")
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&uploaded).Error; err != nil {
			return err
		}
		return txn.Create(&dataset).Error
	})
	if err != nil {
		slog.Error("error creating graph dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create graph dataset")
	}

	slog.Info("created graph dataset", "dataset_id", dataset.Id, "points", dataset.TotalPoints)
	return toApiGraphData(dataset)
}

func parseGraphCsv(r io.Reader) (xLabel, yLabel string, points []stats.Point, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return "", "", nil, fmt.Errorf("could not read header: %w", err)
	}
	if len(header) < 2 {
		return "", "", nil, fmt.Errorf("expected at least x and y columns, got %d", len(header))
	}
	xLabel = strings.TrimSpace(header[0])
	yLabel = strings.TrimSpace(header[1])

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", "", nil, fmt.Errorf("could not read row %d: %w", line, err)
		}
		if len(record) < 2 {
			return "", "", nil, fmt.Errorf("row %d has %d columns, expected at least 2", line, len(record))
		}

		x, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
		if err != nil {
			return "", "", nil, fmt.Errorf("row %d has non-numeric x value %q", line, record[0])
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return "", "", nil, fmt.Errorf("row %d has non-numeric y value %q", line, record[1])
		}

		point := stats.Point{X: x, Y: y}
		if len(record) > 2 {
			point.Label = strings.TrimSpace(record[2])
		}
		points = append(points, point)
	}

	return xLabel, yLabel, points, nil
}

func (s *BackendService) GetGraphData(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	var dataset database.GraphDataset
	if err := s.db.WithContext(r.Context()).First(&dataset, "id = ?", datasetId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error getting graph dataset", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving graph dataset")
	}

	data, err := toApiGraphData(dataset)
	if err != nil {
		slog.Error("error decoding data points", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error decoding data points")
	}
	return data, nil
}

func sessionId(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func (s *BackendService) SelectGraphDataset(r *http.Request) (any, error) {
	datasetId, err := URLParamUUID(r, "dataset_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SelectDatasetRequest](r)
	if err != nil {
		return nil, err
	}
	if len(req.SessionId) > database.MaxNameLength {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "session id must be at most %d characters", database.MaxNameLength)
	}

	if err := s.selections.Select(r.Context(), datasetId, sessionId(req.SessionId)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "dataset not found")
		}
		slog.Error("error selecting graph dataset", "dataset_id", datasetId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to select dataset")
	}

	return nil, nil
}

type selectionFilter struct {
	SessionId string `schema:"session_id"`
}

func (s *BackendService) GetGraphSelection(r *http.Request) (any, error) {
	filter, err := ParseRequestQueryParams[selectionFilter](r)
	if err != nil {
		return nil, err
	}

	dataset, err := s.selections.Current(r.Context(), sessionId(filter.SessionId))
	if err != nil {
		if errors.Is(err, selection.ErrNoSelection) {
			return nil, CodedErrorf(http.StatusNotFound, "no dataset is currently selected")
		}
		slog.Error("error getting graph selection", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving selection")
	}

	data, err := toApiGraphData(dataset)
	if err != nil {
		slog.Error("error decoding data points", "dataset_id", dataset.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error decoding data points")
	}
	return data, nil
}
