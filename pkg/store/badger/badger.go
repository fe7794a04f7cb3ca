// Package badger implements store.Store on top of BadgerDB, grounded on the
// teacher's own pkg/metadata/store/badger key-namespace and single-Txn
// patterns. CAS is implemented as read-then-conditional-set inside one
// Badger transaction. A failed transaction, ErrConflict included, is not
// retried here; it is returned as a StorageUnavailable error.
package badger

import (
	"context"
	"errors"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/coordcore/pkg/coorderr"
	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
	"github.com/marmos91/coordcore/pkg/store/xdrcodec"
)

// ============================================================================
// Key Namespace
// ============================================================================
//
// Data Type   Prefix   Key Format            Value
// =========================================================================
// Entry       "e:"     e:<escaped path>      XDR-encoded StoredEntry
// Session     "s:"     s:<session bytes>     XDR-encoded StoredSession

const (
	prefixEntry   = "e:"
	prefixSession = "s:"
)

func keyEntry(path string) []byte {
	return append([]byte(prefixEntry), path...)
}

func keySession(id session.ID) []byte {
	return append([]byte(prefixSession), id.Bytes()...)
}

// Store is a BadgerDB-backed store.Store.
type Store struct {
	db *badgerdb.DB
}

// Open opens (creating if absent) a Badger store at dir.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, coorderr.NewStorageUnavailable("", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Badger handles.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

// GetEntry returns the current record for path.
func (s *Store) GetEntry(ctx context.Context, path string) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(path)
	}

	var out *store.StoredEntry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyEntry(path))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return coorderr.NewEntryNotFound(path)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := xdrcodec.DecodeEntry(val)
			if decErr != nil {
				return decErr
			}
			out = decoded
			return nil
		})
	})
	if err != nil {
		return nil, wrapStorageErr(path, err)
	}
	return out, nil
}

// CASEntry implements the compare-and-swap contract via a single Badger
// transaction: read the current value, verify it matches expected's
// storage version (nil expected means "must not exist"), then write.
func (s *Store) CASEntry(ctx context.Context, desired, expected *store.StoredEntry) (*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.Path)
	}

	var result *store.StoredEntry
	txnErr := s.db.Update(func(txn *badgerdb.Txn) error {
		current, err := readEntry(txn, desired.Path)
		if err != nil && !coorderr.Is(err, coorderr.EntryNotFound) {
			return err
		}

		if !entryMatches(current, expected) {
			result = current
			return nil
		}

		encoded, err := xdrcodec.EncodeEntry(desired)
		if err != nil {
			return err
		}
		if err := txn.Set(keyEntry(desired.Path), encoded); err != nil {
			return err
		}
		result = desired.Clone()
		return nil
	})
	if txnErr != nil {
		return nil, wrapStorageErr(desired.Path, txnErr)
	}
	return result, nil
}

// DeleteEntry removes the record at path if it matches expected.
func (s *Store) DeleteEntry(ctx context.Context, path string, expected *store.StoredEntry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(path)
	}

	deleted := false
	txnErr := s.db.Update(func(txn *badgerdb.Txn) error {
		current, err := readEntry(txn, path)
		if err != nil && !coorderr.Is(err, coorderr.EntryNotFound) {
			return err
		}
		if !entryMatches(current, expected) {
			return nil
		}
		if err := txn.Delete(keyEntry(path)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if txnErr != nil {
		return false, wrapStorageErr(path, txnErr)
	}
	return deleted, nil
}

// ScanEntries iterates every key under the entry prefix.
func (s *Store) ScanEntries(ctx context.Context, predicate func(*store.StoredEntry) bool) ([]*store.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	var out []*store.StoredEntry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixEntry)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				e, decErr := xdrcodec.DecodeEntry(val)
				if decErr != nil {
					return decErr
				}
				if predicate == nil || predicate(e) {
					out = append(out, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr("", err)
	}
	return out, nil
}

// GetSession returns the current record for id.
func (s *Store) GetSession(ctx context.Context, id session.ID) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(id.String())
	}

	var out *store.StoredSession
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keySession(id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return coorderr.NewEntryNotFound(id.String())
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := xdrcodec.DecodeSession(val)
			if decErr != nil {
				return decErr
			}
			out = decoded
			return nil
		})
	})
	if err != nil {
		return nil, wrapStorageErr(id.String(), err)
	}
	return out, nil
}

// CASSession implements the compare-and-swap contract for session records.
func (s *Store) CASSession(ctx context.Context, desired, expected *store.StoredSession) (*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled(desired.SessionID.String())
	}

	var result *store.StoredSession
	txnErr := s.db.Update(func(txn *badgerdb.Txn) error {
		current, err := readSession(txn, desired.SessionID)
		if err != nil && !coorderr.Is(err, coorderr.EntryNotFound) {
			return err
		}

		if !sessionMatches(current, expected) {
			result = current
			return nil
		}

		encoded, err := xdrcodec.EncodeSession(desired)
		if err != nil {
			return err
		}
		if err := txn.Set(keySession(desired.SessionID), encoded); err != nil {
			return err
		}
		result = desired.Clone()
		return nil
	})
	if txnErr != nil {
		return nil, wrapStorageErr(desired.SessionID.String(), txnErr)
	}
	return result, nil
}

// DeleteSession removes the record for id if it matches expected.
func (s *Store) DeleteSession(ctx context.Context, id session.ID, expected *store.StoredSession) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, coorderr.NewCancelled(id.String())
	}

	deleted := false
	txnErr := s.db.Update(func(txn *badgerdb.Txn) error {
		current, err := readSession(txn, id)
		if err != nil && !coorderr.Is(err, coorderr.EntryNotFound) {
			return err
		}
		if !sessionMatches(current, expected) {
			return nil
		}
		if err := txn.Delete(keySession(id)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if txnErr != nil {
		return false, wrapStorageErr(id.String(), txnErr)
	}
	return deleted, nil
}

// ScanSessions iterates every key under the session prefix.
func (s *Store) ScanSessions(ctx context.Context) ([]*store.StoredSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, coorderr.NewCancelled("")
	}

	var out []*store.StoredSession
	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixSession)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				rec, decErr := xdrcodec.DecodeSession(val)
				if decErr != nil {
					return decErr
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStorageErr("", err)
	}
	return out, nil
}

func readEntry(txn *badgerdb.Txn, path string) (*store.StoredEntry, error) {
	item, err := txn.Get(keyEntry(path))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, coorderr.NewEntryNotFound(path)
	}
	if err != nil {
		return nil, err
	}
	var out *store.StoredEntry
	err = item.Value(func(val []byte) error {
		decoded, decErr := xdrcodec.DecodeEntry(val)
		if decErr != nil {
			return decErr
		}
		out = decoded
		return nil
	})
	return out, err
}

func readSession(txn *badgerdb.Txn, id session.ID) (*store.StoredSession, error) {
	item, err := txn.Get(keySession(id))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, coorderr.NewEntryNotFound(id.String())
	}
	if err != nil {
		return nil, err
	}
	var out *store.StoredSession
	err = item.Value(func(val []byte) error {
		decoded, decErr := xdrcodec.DecodeSession(val)
		if decErr != nil {
			return decErr
		}
		out = decoded
		return nil
	})
	return out, err
}

// entryMatches compares by storage version rather than full deep-equality:
// once a record round-trips through XDR encoding, storage_version is the
// only field the CAS contract actually requires to be discriminating.
func entryMatches(current, expected *store.StoredEntry) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return current.Path == expected.Path && current.StorageVersion == expected.StorageVersion
}

func sessionMatches(current, expected *store.StoredSession) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return current.SessionID.Equal(expected.SessionID) && current.StorageVersion == expected.StorageVersion
}

func wrapStorageErr(path string, err error) error {
	if _, ok := coorderr.CodeOf(err); ok {
		return err
	}
	return coorderr.NewStorageUnavailable(path, err)
}
