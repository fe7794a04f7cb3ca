// Package postgres implements store.Store on top of PostgreSQL via GORM,
// with connection and migration wiring generalized to the two
// append-mostly tables this core actually needs: entries and sessions.
package postgres

import (
	"encoding/json"
	"time"
)

// entryRow is the GORM model backing the entries table. Each field has its
// own column: value, write lock and ephemeral owner as bytea, read locks
// and children as JSONB arrays; storage_version is its own indexed column
// so CAS can be expressed as a single guarded UPDATE.
type entryRow struct {
	Path           string    `gorm:"primaryKey;size:4096"`
	Value          []byte    `gorm:"type:bytea"`
	CreationTime   time.Time `gorm:"not null"`
	LastWriteTime  time.Time `gorm:"not null"`
	WriteLock      []byte    `gorm:"type:bytea"`
	ReadLocks      string    `gorm:"type:jsonb;not null;default:'[]'"`
	EphemeralOwner []byte    `gorm:"type:bytea"`
	Children       string    `gorm:"type:jsonb;not null;default:'[]'"`
	StorageVersion uint64    `gorm:"not null;index"`
}

// TableName pins the table name GORM's pluralizer would otherwise guess.
func (entryRow) TableName() string { return "coord_entries" }

// sessionRow is the GORM model backing the sessions table.
type sessionRow struct {
	SessionID      []byte    `gorm:"primaryKey;type:bytea"`
	LeaseEnd       time.Time `gorm:"not null;index"`
	IsEnded        bool      `gorm:"not null;default:false"`
	EntryPaths     string    `gorm:"type:jsonb;not null;default:'[]'"`
	StorageVersion uint64    `gorm:"not null;index"`
}

func (sessionRow) TableName() string { return "coord_sessions" }

func encodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func decodeStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeLocks(ids [][]byte) (string, error) {
	if ids == nil {
		ids = [][]byte{}
	}
	b, err := json.Marshal(ids)
	return string(b), err
}

func decodeLocks(s string) ([][]byte, error) {
	if s == "" {
		return nil, nil
	}
	var out [][]byte
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
