// Package seed brings the store to a known state from JSON snapshots.
//
// A run clears every entity in delete order, then loads each entity's
// snapshot in create order, one record at a time. Both orders must respect
// the dependency graph declared in this package. Runs are best effort: a
// failure on one entity is logged and the run moves on to the next.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/judyrop/inventory/logging"
	"github.com/judyrop/inventory/store"
)

// Options configures a Loader. Orders are lists of snapshot file names.
type Options struct {
	Dir         string
	CreateOrder []string
	DeleteOrder []string
}

// Loader clears and reseeds the entities of a Registry from snapshot files.
type Loader struct {
	registry Registry
	opts     Options
	logger   *logging.Logger
}

// NewLoader returns a Loader over registry. Empty orders fall back to the
// default create order and its reverse.
func NewLoader(registry Registry, opts Options, logger *logging.Logger) *Loader {
	if opts.CreateOrder == nil {
		opts.CreateOrder = FileNames(DefaultCreateOrder)
	}
	if opts.DeleteOrder == nil {
		opts.DeleteOrder = FileNames(DefaultDeleteOrder())
	}
	return &Loader{
		registry: registry,
		opts:     opts,
		logger:   logger.WithComponent(logging.ComponentSeed),
	}
}

// Run clears and reseeds the store. It returns an error only for failures
// that stop the whole run: an unusable snapshot directory, an order that
// breaks the dependency graph, or a cancelled context.
func (l *Loader) Run(ctx context.Context) error {
	info, err := os.Stat(l.opts.Dir)
	if err != nil {
		return fmt.Errorf("snapshot directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot directory: %s is not a directory", l.opts.Dir)
	}

	if err := ValidateDeleteOrder(resolve(l.opts.DeleteOrder)); err != nil {
		return err
	}
	if err := ValidateCreateOrder(resolve(l.opts.CreateOrder)); err != nil {
		return err
	}

	l.logger.Info("Deleting existing data",
		logging.FieldOperation, logging.OpDelete,
		logging.FieldCount, len(l.opts.DeleteOrder))
	for _, fileName := range l.opts.DeleteOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.clear(ctx, fileName)
	}

	l.logger.Info("Seeding new data",
		logging.FieldOperation, logging.OpCreate,
		logging.FieldCount, len(l.opts.CreateOrder))
	for _, fileName := range l.opts.CreateOrder {
		if err := ctx.Err(); err != nil {
			return err
		}
		created, skipped, err := l.seedFile(ctx, fileName)
		if ctxErr := ctx.Err(); ctxErr != nil {
			l.logger.Warn("Seeding interrupted",
				logging.FieldFile, fileName,
				logging.FieldCreated, created)
			return ctxErr
		}
		switch {
		case errors.Is(err, ErrSnapshotMissing):
			l.logger.Warn("Snapshot file missing, skipping",
				logging.FieldFile, fileName)
		case errors.Is(err, ErrUnknownEntity):
			l.logger.Error("No model matches the snapshot file",
				logging.FieldFile, fileName)
		case errors.Is(err, ErrMalformedSnapshot):
			l.logger.Error("Malformed snapshot, file not seeded",
				logging.FieldFile, fileName,
				logging.FieldCreated, created,
				logging.FieldError, err)
		case err != nil:
			l.logger.Error("Error seeding file",
				logging.FieldFile, fileName,
				logging.FieldCreated, created,
				logging.FieldError, err)
		default:
			l.logger.Info("Seeded",
				logging.FieldEntity, ModelName(fileName),
				logging.FieldCreated, created,
				logging.FieldSkipped, skipped)
		}
	}

	l.logger.Info("Seeding finished")
	return nil
}

// clear deletes every row of one entity. Failures are logged, never returned.
func (l *Loader) clear(ctx context.Context, fileName string) {
	name := ModelName(fileName)
	entity, ok := EntityFromFile(fileName)
	if !ok {
		l.logger.Debug("No model for file, nothing to clear", logging.FieldFile, fileName)
		return
	}
	acc, ok := l.registry[entity]
	if !ok {
		l.logger.Debug("No accessor registered, nothing to clear", logging.FieldEntity, name)
		return
	}
	if !acc.Exists(ctx) {
		l.logger.Info("Table does not exist, nothing to clear", logging.FieldEntity, entity)
		return
	}

	n, err := acc.DeleteMany(ctx)
	switch {
	case store.IsForeignKeyViolation(err):
		l.logger.Warn("Skipping entity due to foreign key constraint",
			logging.FieldEntity, entity,
			logging.FieldError, err)
	case err != nil:
		l.logger.Error("Error deleting data",
			logging.FieldEntity, entity,
			logging.FieldError, err)
	default:
		l.logger.Info("Cleared data", logging.FieldEntity, entity, logging.FieldCount, n)
	}
}

// seedFile creates one row per record of a snapshot file. Duplicate keys
// skip the record; any other failure stops the file.
func (l *Loader) seedFile(ctx context.Context, fileName string) (created, skipped int, err error) {
	entity, known := EntityFromFile(fileName)

	records, err := ReadSnapshot(filepath.Join(l.opts.Dir, fileName))
	if err != nil {
		return 0, 0, err
	}

	acc, ok := l.registry[entity]
	if !known || !ok {
		return 0, 0, &SnapshotError{File: fileName, Record: -1, Err: ErrUnknownEntity}
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return created, skipped, err
		}
		err := acc.Create(ctx, rec)
		if store.IsDuplicateKey(err) {
			l.logger.Warn("Skipping duplicate entry",
				logging.FieldEntity, entity,
				logging.FieldRecord, i)
			skipped++
			continue
		}
		if err != nil {
			return created, skipped, &SnapshotError{File: fileName, Record: i, Err: err}
		}
		created++
	}
	return created, skipped, nil
}

// resolve maps file names to entities, dropping names that match nothing.
func resolve(fileNames []string) []Entity {
	entities := make([]Entity, 0, len(fileNames))
	for _, f := range fileNames {
		if e, ok := EntityFromFile(f); ok {
			entities = append(entities, e)
		}
	}
	return entities
}
