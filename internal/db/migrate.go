package db

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies the embedded schema migrations. ErrNoChange is not an
// error: a freshly booted instance against a current database is the norm.
func Migrate(dbURI string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, pgxURI(dbURI))
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// pgxURI rewrites a postgres:// connection string to the scheme the
// migrate pgx/v5 driver registers under.
func pgxURI(dbURI string) string {
	if strings.HasPrefix(dbURI, "postgresql://") {
		return "pgx5://" + strings.TrimPrefix(dbURI, "postgresql://")
	}
	if strings.HasPrefix(dbURI, "postgres://") {
		return "pgx5://" + strings.TrimPrefix(dbURI, "postgres://")
	}
	return dbURI
}
