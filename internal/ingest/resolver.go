package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kristobal-Khunta/ml-metrics-dashboard/internal/database"
	"gorm.io/gorm"
)

// Resolver maps entity names found in CSV rows to canonical ids, creating
// missing entities on first reference. It is scoped to one ingestion batch:
// the name→id cache guarantees a name resolved twice within a batch yields
// the same id without a second lookup or a duplicate create.
//
// Cross-batch creation races are settled by the storage layer's uniqueness
// constraints; the loser retries its resolution as a plain lookup.
type Resolver struct {
	db *gorm.DB

	projects    map[string]uint
	models      map[string]uint
	datasets    map[string]uint
	metricTypes map[string]uint
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:          db,
		projects:    make(map[string]uint),
		models:      make(map[string]uint),
		datasets:    make(map[string]uint),
		metricTypes: make(map[string]uint),
	}
}

func (r *Resolver) Project(ctx context.Context, name string) (uint, error) {
	name, err := entityName(name)
	if err != nil {
		return 0, err
	}
	if id, ok := r.projects[name]; ok {
		return id, nil
	}

	var project database.Project
	err = firstOrCreateRetry(ctx, r.db, &project,
		database.Project{Name: name},
		database.Project{CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("resolving project %q: %w", name, err)
	}

	r.projects[name] = project.Id
	return project.Id, nil
}

func (r *Resolver) Model(ctx context.Context, name, version string) (uint, error) {
	name, version, err := versionedName(name, version)
	if err != nil {
		return 0, err
	}
	key := name + "\x00" + version
	if id, ok := r.models[key]; ok {
		return id, nil
	}

	var model database.Model
	err = firstOrCreateRetry(ctx, r.db, &model,
		database.Model{Name: name, Version: version},
		database.Model{CreatedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("resolving model %q: %w", name, err)
	}

	r.models[key] = model.Id
	return model.Id, nil
}

func (r *Resolver) Dataset(ctx context.Context, name, version string) (uint, error) {
	name, version, err := versionedName(name, version)
	if err != nil {
		return 0, err
	}
	key := name + "\x00" + version
	if id, ok := r.datasets[key]; ok {
		return id, nil
	}

	var dataset database.Dataset
	err = firstOrCreateRetry(ctx, r.db, &dataset,
		database.Dataset{Name: name, Version: version},
		database.Dataset{CreatedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("resolving dataset %q: %w", name, err)
	}

	r.datasets[key] = dataset.Id
	return dataset.Id, nil
}

func (r *Resolver) MetricType(ctx context.Context, name string) (uint, error) {
	name, err := entityName(name)
	if err != nil {
		return 0, err
	}
	if id, ok := r.metricTypes[name]; ok {
		return id, nil
	}

	var metricType database.MetricType
	err = firstOrCreateRetry(ctx, r.db, &metricType,
		database.MetricType{Name: name},
		database.MetricType{HigherIsBetter: true, CreatedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("resolving metric type %q: %w", name, err)
	}

	r.metricTypes[name] = metricType.Id
	return metricType.Id, nil
}

func entityName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidReference)
	}
	if len(name) > database.MaxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidReference, database.MaxNameLength)
	}
	return name, nil
}

func versionedName(rawName, rawVersion string) (string, string, error) {
	name, err := entityName(rawName)
	if err != nil {
		return "", "", err
	}
	version := strings.TrimSpace(rawVersion)
	if version == "" {
		version = database.DefaultVersion
	}
	if len(version) > database.MaxVersionLength {
		return "", "", fmt.Errorf("%w: version exceeds %d characters", ErrInvalidReference, database.MaxVersionLength)
	}
	return name, version, nil
}

// firstOrCreateRetry is FirstOrCreate hardened against a concurrent creator:
// if the insert loses to the unique constraint, the entity now exists, so
// the resolution is retried as a lookup.
func firstOrCreateRetry[T any](ctx context.Context, db *gorm.DB, dest *T, query T, attrs T) error {
	err := db.WithContext(ctx).Where(query).Attrs(attrs).FirstOrCreate(dest).Error
	if err == nil {
		return nil
	}

	if lookupErr := db.WithContext(ctx).Where(query).First(dest).Error; lookupErr == nil {
		return nil
	}

	return err
}
