package database

import (
	"context"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Migration struct {
	Id   int
	Name string
	Sql  string
}

// UpdateDatabase applies, in order, every migration with an id greater than
// the version currently recorded in the database.
func UpdateDatabase(ctx context.Context, db *pgxpool.Pool, migrations []Migration) error {
	log.Info("Updating postgres...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current schema version %v", version)

	for _, m := range migrations {
		if m.Id > version {
			log.Infof("Applying migration %s", m.Name)
			if _, err := db.Exec(ctx, m.Sql); err != nil {
				return errors.WithMessagef(err, "error applying migration %s", m.Name)
			}
			version = m.Id
			if err := setVersion(ctx, db, version); err != nil {
				return err
			}
		}
	}
	log.Info("Database updated.")
	return nil
}

func readVersion(ctx context.Context, db *pgxpool.Pool) (int, error) {
	_, err := db.Exec(ctx,
		`CREATE SEQUENCE IF NOT EXISTS database_version START WITH 0 MINVALUE 0;`)
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow(ctx, `SELECT last_value FROM database_version`).Scan(&version)
	return version, err
}

func setVersion(ctx context.Context, db *pgxpool.Pool, version int) error {
	_, err := db.Exec(ctx, `SELECT setval('database_version', $1)`, version)
	return err
}

// ReadMigrations loads migrations from an embedded filesystem. File names
// must be of the form <id>_<name>.sql, applied in ascending id order.
func ReadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		id, err := strconv.Atoi(strings.Split(entry.Name(), "_")[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "migration %s has no numeric prefix", entry.Name())
		}
		sql, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, errors.WithStack(err)
		}
		migrations = append(migrations, Migration{
			Id:   id,
			Name: entry.Name(),
			Sql:  string(sql),
		})
	}
	return migrations, nil
}
