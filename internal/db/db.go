// Package db opens the device-local SQLite store that holds drafts, sealed
// secrets and the event log of a workspace.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	fileName = "safeplate.db"
	dirName  = ".safeplate"
)

// Config locates the store. A ReadOnly store must already exist; opening it
// creates nothing on disk.
type Config struct {
	Workspace string
	ReadOnly  bool
}

// Dir returns the private directory holding the database and device key.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, dirName)
}

// Path returns the database file of a workspace.
func Path(workspace string) string {
	return filepath.Join(Dir(workspace), fileName)
}

// EnsureWorkspace creates the private workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := Dir(workspace)
	if err := os.MkdirAll(path, 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the store with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	path := Path(cfg.Workspace)
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if cfg.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("local store: %w", err)
		}
		q.Set("mode", "ro")
	} else if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return conn, nil
}
