package main

import (
	"path/filepath"
	"strings"

	"github.com/lox/hotelling/internal/backup"
)

// openSave opens a save for reading or resuming. Database files go through
// the sqlite store, anything else is read as a JSON snapshot.
func openSave(path, sessionID string) (backup.Store, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		store, err := backup.OpenSQLite(path, sessionID)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return backup.NewFileStore(path), nil
	}
}
