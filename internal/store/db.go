package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite connection behind one profile's offline queue.
type DB struct {
	*sql.DB
}

func dsn(path string) string {
	v := url.Values{}
	v.Set("_journal_mode", "WAL")
	v.Set("_busy_timeout", "5000")
	v.Set("_synchronous", "FULL")
	v.Set("_foreign_keys", "on")
	return path + "?" + v.Encode()
}

// Open opens the queue database at path, creating the file if needed.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open queue db %s: %w", path, err)
	}
	// One connection: every queue operation is a single serialized statement or tx.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping queue db %s: %w", path, err)
	}
	return &DB{db}, nil
}
