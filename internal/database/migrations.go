package database

import (
	"log"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func allTables() []any {
	return []any{
		&Project{}, &Model{}, &Dataset{}, &MetricType{}, &Metric{}, &CsvUpload{},
		&UploadedFile{}, &GraphDataset{}, &DatasetSelection{},
	}
}

// The partial unique index is what guarantees at most one current selection
// per session scope even when two transactions race; gorm tags cannot express
// it so it is created with raw SQL. Supported by both postgres and sqlite.
func createSelectionIndex(txn *gorm.DB) error {
	return txn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_dataset_selections_current
		 ON dataset_selections (coalesce(session_id, ''))
		 WHERE is_current`,
	).Error
}

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "0",
			Migrate: func(txn *gorm.DB) error {
				if err := txn.AutoMigrate(allTables()...); err != nil {
					return err
				}
				return createSelectionIndex(txn)
			},
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// Run by the migrator when no previous migration is detected, so a
		// clean database gets the latest schema in one step instead of
		// replaying every migration.

		log.Println("clean database detected, running full schema initialization")

		dbType := db.Dialector.Name()
		if dbType == "sqlite" || dbType == "sqlite3" {
			// Sqlite does not enable foreign key constraints by default.
			if err := txn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
				slog.Error("error enabling foreign keys for SQLite", "error", err)
			}
		}

		if err := txn.AutoMigrate(allTables()...); err != nil {
			return err
		}
		return createSelectionIndex(txn)
	})

	return migrator
}
