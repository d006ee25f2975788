package db

import "context"

// Database is the subset of a SQL connection pool the judge relies on.
type Database interface {
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// Row is a single-row result.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an Exec.
type Result interface {
	// RowsAffected counts matched rows, not only changed ones.
	RowsAffected() (int64, error)
}
