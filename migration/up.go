package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("could not create source driver: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize migration: %w", err)
	}
	return m, nil
}

// Up applies every pending migration. A database left dirty by an earlier
// failed run is forced back to the previous version and migrated again once.
func Up(ctx context.Context, db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		var dirtyErr migrate.ErrDirty
		if !errors.As(err, &dirtyErr) {
			return fmt.Errorf("migration up failed: %w", err)
		}

		prev, err := previousVersion(dirtyErr.Version)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Warn().Int("dirty_version", dirtyErr.Version).Int("force_version", prev).Msg("database dirty, forcing back")
		if err := m.Force(prev); err != nil {
			return fmt.Errorf("failed to force to version %d: %w", prev, err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migration up failed after force: %w", err)
		}
	}

	version, dirty, _ := m.Version()
	zerolog.Ctx(ctx).Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations applied")
	return nil
}

// Down reverts every migration.
func Down(ctx context.Context, db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	zerolog.Ctx(ctx).Info().Msg("migrations reverted")
	return nil
}

// previousVersion returns the version preceding dirty among the embedded
// migrations, or -1 when dirty is the first one.
func previousVersion(dirty int) (int, error) {
	versions, err := Versions()
	if err != nil {
		return 0, fmt.Errorf("dirty at %d: %w", dirty, err)
	}
	for i, v := range versions {
		if v == dirty {
			if i == 0 {
				return -1, nil
			}
			return versions[i-1], nil
		}
	}
	return 0, fmt.Errorf("dirty version %d is not an embedded migration", dirty)
}

// Versions lists the embedded migration versions in ascending order.
func Versions() ([]int, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		// <version>_<description>.up.sql
		v, err := strconv.Atoi(strings.SplitN(name, "_", 2)[0])
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}
