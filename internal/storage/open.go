package storage

import (
	"fmt"
)

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Options selects and locates a storage engine.
type Options struct {
	Driver      string
	DataFile    string
	SQLitePath  string
	PostgresURL string
	BadgerDir   string
}

// Open returns the Repository for the configured driver.
func Open(opts Options) (Repository, error) {
	var (
		repo Repository
		err  error
	)
	switch opts.Driver {
	case "", DriverFile:
		repo, err = NewFileRepository(opts.DataFile)
	case DriverSQLite:
		repo, err = NewSQLiteRepository(opts.SQLitePath)
	case DriverPostgres:
		repo, err = NewPostgresRepository(opts.PostgresURL)
	case DriverBadger:
		repo, err = NewBadgerRepository(opts.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}
