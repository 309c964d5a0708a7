package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds libpq-style connection parameters plus pool sizing.
type PostgresConfig struct {
	// Connection parameters as accepted by libpq, e.g., host, port, user,
	// password, dbname, sslmode.
	Connection map[string]string
	// Maximum number of connections in the pool. Must be at least the number
	// of ingestion workers so every in-flight batch can hold a lease.
	PoolSize int
}

func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	result := ""
	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	for k, v := range values {
		result += k + "='" + replacer.Replace(v) + "' "
	}
	return strings.TrimSpace(result)
}

func OpenPgxPool(config PostgresConfig) (*pgxpool.Pool, error) {
	connString := CreateConnectionString(config.Connection)
	if config.PoolSize > 0 {
		connString = fmt.Sprintf("%s pool_max_conns=%d", connString, config.PoolSize)
	}
	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}
	err = db.Ping(context.Background())
	return db, err
}

// UniqueTableName returns a name for a temporary staging table that will not
// collide with other transactions loading into the same destination table.
func UniqueTableName(table string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s_tmp_%s", table, suffix)
}
