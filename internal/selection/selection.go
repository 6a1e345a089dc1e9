package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNoSelection = errors.New("no dataset is currently selected")

// Manager tracks which graph dataset is "current". Selections are scoped by
// session id; a null session id is its own scope, the global selection.
type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

func sessionScope(txn *gorm.DB, sessionId sql.NullString) *gorm.DB {
	if sessionId.Valid {
		return txn.Where("session_id = ?", sessionId.String)
	}
	return txn.Where("session_id IS NULL")
}

// Select makes datasetId the current selection for the session's scope. The
// unset-then-set runs in one transaction, and the partial unique index on
// (session scope, is_current) rejects any interleaving that would leave two
// current rows.
func (m *Manager) Select(ctx context.Context, datasetId uuid.UUID, sessionId sql.NullString) error {
	err := m.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var dataset database.GraphDataset
		if err := txn.First(&dataset, "id = ?", datasetId).Error; err != nil {
			return fmt.Errorf("could not find dataset %s: %w", datasetId, err)
		}

		res := sessionScope(txn.Model(&database.DatasetSelection{}), sessionId).
			Where("is_current").
			Update("is_current", false)
		if res.Error != nil {
			return fmt.Errorf("could not clear previous selection: %w", res.Error)
		}

		record := database.DatasetSelection{
			Id:         uuid.New(),
			DatasetId:  datasetId,
			SessionId:  sessionId,
			IsCurrent:  true,
			SelectedAt: time.Now().UTC(),
		}
		if err := txn.Create(&record).Error; err != nil {
			return fmt.Errorf("could not record selection: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("selecting dataset %s: %w", datasetId, err)
	}
	return nil
}

// Current returns the selected dataset for the session's scope.
func (m *Manager) Current(ctx context.Context, sessionId sql.NullString) (database.GraphDataset, error) {
	var selection database.DatasetSelection
	err := sessionScope(m.db.WithContext(ctx), sessionId).
		Where("is_current").
		First(&selection).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.GraphDataset{}, ErrNoSelection
	}
	if err != nil {
		return database.GraphDataset{}, fmt.Errorf("could not load current selection: %w", err)
	}

	var dataset database.GraphDataset
	if err := m.db.WithContext(ctx).First(&dataset, "id = ?", selection.DatasetId).Error; err != nil {
		return database.GraphDataset{}, fmt.Errorf("could not load selected dataset %s: %w", selection.DatasetId, err)
	}

	return dataset, nil
}

// Clear removes the current selection for the session's scope, if any.
func (m *Manager) Clear(ctx context.Context, sessionId sql.NullString) error {
	res := sessionScope(m.db.WithContext(ctx).Model(&database.DatasetSelection{}), sessionId).
		Where("is_current").
		Update("is_current", false)
	if res.Error != nil {
		return fmt.Errorf("could not clear selection: %w", res.Error)
	}
	return nil
}
