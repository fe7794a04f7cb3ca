// Package xdrcodec provides the byte-stable wire encoding for StoredEntry
// and StoredSession records used by the badger backend.
//
// Encoding uses github.com/rasky/go-xdr/xdr2 (RFC 4506 XDR). StoredEntry
// and StoredSession are flattened into plain wire structs first (XDR's
// reflection-based codec needs exported, primitive-ish fields; it has no
// notion of session.ID or time.Time).
package xdrcodec

import (
	"bytes"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/coordcore/pkg/session"
	"github.com/marmos91/coordcore/pkg/store"
)

type wireEntry struct {
	Path              string
	Value             []byte
	CreationTimeNano  int64
	LastWriteTimeNano int64
	WriteLock         []byte
	ReadLocks         [][]byte
	StorageVersion    uint64
	EphemeralOwner    []byte
	Children          []string
}

type wireSession struct {
	SessionID      []byte
	LeaseEndNano   int64
	IsEnded        bool
	StorageVersion uint64
	EntryPaths     []string
}

// EncodeEntry serializes e to its XDR wire form.
func EncodeEntry(e *store.StoredEntry) ([]byte, error) {
	w := wireEntry{
		Path:              e.Path,
		Value:             e.Value,
		CreationTimeNano:  e.CreationTime.UnixNano(),
		LastWriteTimeNano: e.LastWriteTime.UnixNano(),
		WriteLock:         e.WriteLock.Bytes(),
		StorageVersion:    e.StorageVersion,
		EphemeralOwner:    e.EphemeralOwner.Bytes(),
		Children:          e.Children,
	}
	for _, r := range e.ReadLocks {
		w.ReadLocks = append(w.ReadLocks, r.Bytes())
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEntry parses b back into a StoredEntry.
func DecodeEntry(b []byte) (*store.StoredEntry, error) {
	var w wireEntry
	if _, err := xdr.Unmarshal(bytes.NewReader(b), &w); err != nil {
		return nil, err
	}

	e := &store.StoredEntry{
		Path:           w.Path,
		Value:          w.Value,
		CreationTime:   time.Unix(0, w.CreationTimeNano).UTC(),
		LastWriteTime:  time.Unix(0, w.LastWriteTimeNano).UTC(),
		WriteLock:      session.FromBytes(w.WriteLock),
		StorageVersion: w.StorageVersion,
		EphemeralOwner: session.FromBytes(w.EphemeralOwner),
		Children:       w.Children,
	}
	for _, r := range w.ReadLocks {
		e.ReadLocks = append(e.ReadLocks, session.FromBytes(r))
	}
	return e, nil
}

// EncodeSession serializes s to its XDR wire form.
func EncodeSession(s *store.StoredSession) ([]byte, error) {
	w := wireSession{
		SessionID:      s.SessionID.Bytes(),
		LeaseEndNano:   s.LeaseEnd.UnixNano(),
		IsEnded:        s.IsEnded,
		StorageVersion: s.StorageVersion,
		EntryPaths:     s.EntryPaths,
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSession parses b back into a StoredSession.
func DecodeSession(b []byte) (*store.StoredSession, error) {
	var w wireSession
	if _, err := xdr.Unmarshal(bytes.NewReader(b), &w); err != nil {
		return nil, err
	}

	return &store.StoredSession{
		SessionID:      session.FromBytes(w.SessionID),
		LeaseEnd:       time.Unix(0, w.LeaseEndNano).UTC(),
		IsEnded:        w.IsEnded,
		StorageVersion: w.StorageVersion,
		EntryPaths:     w.EntryPaths,
	}, nil
}
