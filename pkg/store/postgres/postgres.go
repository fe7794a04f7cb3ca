package postgres

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

// Store is a PostgreSQL-backed store.Store. It uses a guarded UPDATE
// (`WHERE storage_version = ?`) for CAS, matching the optimistic-concurrency
// contract every store.Store implementation must honor.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL, applies pending migrations, and returns a
// ready-to-use Store.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, coorderr.NewInvariant("", err.Error())
	}

	if err := runMigrations(ctx, cfg.DSN(), logger); err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ store.Store = (*Store)(nil)

func toRow(e *store.StoredEntry) (*entryRow, error) {
	readLocks := make([][]byte, 0, len(e.ReadLocks))
	for _, id := range e.ReadLocks {
		readLocks = append(readLocks, id.Bytes())
	}
	readLocksJSON, err := encodeLocks(readLocks)
	if err != nil {
		return nil, err
	}
	childrenJSON, err := encodeStrings(e.Children)
	if err != nil {
		return nil, err
	}
	return &entryRow{
		Path:           e.Path,
		Value:          e.Value,
		CreationTime:   e.CreationTime,
		LastWriteTime:  e.LastWriteTime,
		WriteLock:      nilIfNone(e.WriteLock),
		ReadLocks:      readLocksJSON,
		EphemeralOwner: nilIfNone(e.EphemeralOwner),
		Children:       childrenJSON,
		StorageVersion: e.StorageVersion,
	}, nil
}

func fromRow(r *entryRow) (*store.StoredEntry, error) {
	locks, err := decodeLocks(r.ReadLocks)
	if err != nil {
		return nil, err
	}
	children, err := decodeStrings(r.Children)
	if err != nil {
		return nil, err
	}
	readLocks := make([]session.ID, 0, len(locks))
	for _, b := range locks {
		readLocks = append(readLocks, session.FromBytes(b))
	}
	return &store.StoredEntry{
		Path:           r.Path,
		Value:          r.Value,
		CreationTime:   r.CreationTime,
		LastWriteTime:  r.LastWriteTime,
		WriteLock:      session.FromBytes(r.WriteLock),
		ReadLocks:      readLocks,
		EphemeralOwner: session.FromBytes(r.EphemeralOwner),
		Children:       children,
		StorageVersion: r.StorageVersion,
	}, nil
}

func nilIfNone(id session.ID) []byte {
	if id.IsNone() {
		return nil
	}
	return id.Bytes()
}

// GetEntry returns the current record for path.
func (s *Store) GetEntry(ctx context.Context, path string) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(path)
	}

	var row entryRow
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, coorderr.NewEntryNotFound(path)
	}
	if err != nil {
		return nil, coorderr.NewStorageUnavailable(path, err)
	}
	return fromRow(&row)
}

// CASEntry implements the compare-and-swap contract on the entries table.
// A nil expected means "create": the write only succeeds if no row exists.
// Otherwise the write is a guarded UPDATE keyed on storage_version.
func (s *Store) CASEntry(ctx context.Context, desired, expected *store.StoredEntry) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.Path)
	}

	row, err := toRow(desired)
	if err != nil {
		return nil, coorderr.NewInvariant(desired.Path, err.Error())
	}

	if expected == nil {
		err := s.db.WithContext(ctx).Clauses().Create(row).Error
		if err != nil {
			// Unique-violation on the primary key means someone else won
			// the create race; return their current record.
			current, getErr := s.GetEntry(ctx, desired.Path)
			if getErr != nil {
				return nil, coorderr.NewStorageUnavailable(desired.Path, err)
			}
			return current, nil
		}
		return fromRow(row)
	}

	result := s.db.WithContext(ctx).Model(&entryRow{}).
		Where("path = ? AND storage_version = ?", desired.Path, expected.StorageVersion).
		Updates(map[string]any{
			"value":           row.Value,
			"creation_time":   row.CreationTime,
			"last_write_time": row.LastWriteTime,
			"write_lock":      row.WriteLock,
			"read_locks":      row.ReadLocks,
			"ephemeral_owner": row.EphemeralOwner,
			"children":        row.Children,
			"storage_version": row.StorageVersion,
		})
	if result.Error != nil {
		return nil, coorderr.NewStorageUnavailable(desired.Path, result.Error)
	}
	if result.RowsAffected == 0 {
		return s.GetEntry(ctx, desired.Path)
	}
	return fromRow(row)
}

// DeleteEntry removes the record at path if it matches expected.
func (s *Store) DeleteEntry(ctx context.Context, path string, expected *store.StoredEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(path)
	}

	result := s.db.WithContext(ctx).
		Where("path = ? AND storage_version = ?", path, expected.StorageVersion).
		Delete(&entryRow{})
	if result.Error != nil {
		return false, coorderr.NewStorageUnavailable(path, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ScanEntries materializes every row in the entries table matching predicate.
func (s *Store) ScanEntries(ctx context.Context, predicate func(*store.StoredEntry) bool) ([]*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	var rows []entryRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}

	out := make([]*store.StoredEntry, 0, len(rows))
	for i := range rows {
		e, err := fromRow(&rows[i])
		if err != nil {
			return nil, coorderr.NewInvariant(rows[i].Path, err.Error())
		}
		if predicate == nil || predicate(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func toSessionRow(rec *store.StoredSession) (*sessionRow, error) {
	paths, err := encodeStrings(rec.EntryPaths)
	if err != nil {
		return nil, err
	}
	return &sessionRow{
		SessionID:      rec.SessionID.Bytes(),
		LeaseEnd:       rec.LeaseEnd,
		IsEnded:        rec.IsEnded,
		EntryPaths:     paths,
		StorageVersion: rec.StorageVersion,
	}, nil
}

func fromSessionRow(r *sessionRow) (*store.StoredSession, error) {
	paths, err := decodeStrings(r.EntryPaths)
	if err != nil {
		return nil, err
	}
	return &store.StoredSession{
		SessionID:      session.FromBytes(r.SessionID),
		LeaseEnd:       r.LeaseEnd,
		IsEnded:        r.IsEnded,
		EntryPaths:     paths,
		StorageVersion: r.StorageVersion,
	}, nil
}

// GetSession returns the current record for id.
func (s *Store) GetSession(ctx context.Context, id session.ID) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(id.String())
	}

	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", id.Bytes()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, coorderr.NewEntryNotFound(id.String())
	}
	if err != nil {
		return nil, coorderr.NewStorageUnavailable(id.String(), err)
	}
	return fromSessionRow(&row)
}

// CASSession implements the compare-and-swap contract on the sessions table.
func (s *Store) CASSession(ctx context.Context, desired, expected *store.StoredSession) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.SessionID.String())
	}

	row, err := toSessionRow(desired)
	if err != nil {
		return nil, coorderr.NewInvariant(desired.SessionID.String(), err.Error())
	}

	if expected == nil {
		if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
			current, getErr := s.GetSession(ctx, desired.SessionID)
			if getErr != nil {
				return nil, coorderr.NewStorageUnavailable(desired.SessionID.String(), err)
			}
			return current, nil
		}
		return fromSessionRow(row)
	}

	result := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_id = ? AND storage_version = ?", desired.SessionID.Bytes(), expected.StorageVersion).
		Updates(map[string]any{
			"lease_end":       row.LeaseEnd,
			"is_ended":        row.IsEnded,
			"entry_paths":     row.EntryPaths,
			"storage_version": row.StorageVersion,
		})
	if result.Error != nil {
		return nil, coorderr.NewStorageUnavailable(desired.SessionID.String(), result.Error)
	}
	if result.RowsAffected == 0 {
		return s.GetSession(ctx, desired.SessionID)
	}
	return fromSessionRow(row)
}

// DeleteSession removes the record for id if it matches expected.
func (s *Store) DeleteSession(ctx context.Context, id session.ID, expected *store.StoredSession) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(id.String())
	}

	result := s.db.WithContext(ctx).
		Where("session_id = ? AND storage_version = ?", id.Bytes(), expected.StorageVersion).
		Delete(&sessionRow{})
	if result.Error != nil {
		return false, coorderr.NewStorageUnavailable(id.String(), result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ScanSessions materializes every row in the sessions table.
func (s *Store) ScanSessions(ctx context.Context) ([]*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	var rows []sessionRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}

	out := make([]*store.StoredSession, 0, len(rows))
	for i := range rows {
		rec, err := fromSessionRow(&rows[i])
		if err != nil {
			return nil, coorderr.NewInvariant(session.FromBytes(rows[i].SessionID).String(), err.Error())
		}
		out = append(out, rec)
	}
	return out, nil
}
