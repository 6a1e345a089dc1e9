package selection_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/selection"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

func createGraphDataset(t *testing.T, db *gorm.DB, name string) database.GraphDataset {
	t.Helper()

	file := database.UploadedFile{
		Id:         uuid.New(),
		Filename:   name + ".csv",
		UploadedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&file).Error)

	dataset := database.GraphDataset{
		Id:             uuid.New(),
		UploadedFileId: file.Id,
		Name:           name,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(&dataset).Error)
	return dataset
}

func currentCount(t *testing.T, db *gorm.DB, sessionId sql.NullString) int64 {
	t.Helper()

	query := db.Model(&database.DatasetSelection{}).Where("is_current")
	if sessionId.Valid {
		query = query.Where("session_id = ?", sessionId.String)
	} else {
		query = query.Where("session_id IS NULL")
	}

	var count int64
	require.NoError(t, query.Count(&count).Error)
	return count
}

var noSession = sql.NullString{}

func TestSelectAndCurrent(t *testing.T) {
	db := createDB(t)
	dataset := createGraphDataset(t, db, "loss-curve")

	manager := selection.NewManager(db)
	ctx := context.Background()

	require.NoError(t, manager.Select(ctx, dataset.Id, noSession))

	current, err := manager.Current(ctx, noSession)
	require.NoError(t, err)
	assert.Equal(t, dataset.Id, current.Id)
	assert.Equal(t, "loss-curve", current.Name)
}

func TestSelectReplacesPrevious(t *testing.T) {
	db := createDB(t)
	first := createGraphDataset(t, db, "loss-curve")
	second := createGraphDataset(t, db, "accuracy-curve")

	manager := selection.NewManager(db)
	ctx := context.Background()

	require.NoError(t, manager.Select(ctx, first.Id, noSession))
	require.NoError(t, manager.Select(ctx, second.Id, noSession))
	require.NoError(t, manager.Select(ctx, first.Id, noSession))

	current, err := manager.Current(ctx, noSession)
	require.NoError(t, err)
	assert.Equal(t, first.Id, current.Id)

	assert.EqualValues(t, 1, currentCount(t, db, noSession))
}

func TestSelectionScopedBySession(t *testing.T) {
	db := createDB(t)
	first := createGraphDataset(t, db, "loss-curve")
	second := createGraphDataset(t, db, "accuracy-curve")

	manager := selection.NewManager(db)
	ctx := context.Background()

	alice := sql.NullString{String: "alice", Valid: true}
	bob := sql.NullString{String: "bob", Valid: true}

	require.NoError(t, manager.Select(ctx, first.Id, alice))
	require.NoError(t, manager.Select(ctx, second.Id, bob))
	require.NoError(t, manager.Select(ctx, second.Id, noSession))

	aliceCurrent, err := manager.Current(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, first.Id, aliceCurrent.Id)

	bobCurrent, err := manager.Current(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, second.Id, bobCurrent.Id)

	globalCurrent, err := manager.Current(ctx, noSession)
	require.NoError(t, err)
	assert.Equal(t, second.Id, globalCurrent.Id)

	assert.EqualValues(t, 1, currentCount(t, db, alice))
	assert.EqualValues(t, 1, currentCount(t, db, bob))
	assert.EqualValues(t, 1, currentCount(t, db, noSession))
}

func TestSelectUnknownDataset(t *testing.T) {
	db := createDB(t)

	err := selection.NewManager(db).Select(context.Background(), uuid.New(), noSession)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCurrentWithoutSelection(t *testing.T) {
	db := createDB(t)

	_, err := selection.NewManager(db).Current(context.Background(), noSession)
	assert.ErrorIs(t, err, selection.ErrNoSelection)
}

func TestClearSelection(t *testing.T) {
	db := createDB(t)
	dataset := createGraphDataset(t, db, "loss-curve")

	manager := selection.NewManager(db)
	ctx := context.Background()

	require.NoError(t, manager.Select(ctx, dataset.Id, noSession))
	require.NoError(t, manager.Clear(ctx, noSession))

	_, err := manager.Current(ctx, noSession)
	assert.ErrorIs(t, err, selection.ErrNoSelection)
}
