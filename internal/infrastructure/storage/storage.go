package storage

import (
	"fmt"

	"coinpulse/internal/application/port"
	"coinpulse/internal/infrastructure/storage/postgres"
	"coinpulse/internal/infrastructure/storage/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open picks the durable store from the configured driver.
func Open(driver, sqlitePath, postgresDSN string) (port.Repository, error) {
	switch driver {
	case DriverSQLite, "":
		return sqlite.New(sqlitePath)
	case DriverPostgres:
		return postgres.New(postgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
