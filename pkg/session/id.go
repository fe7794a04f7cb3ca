package session

import "encoding/hex"

// ID is an opaque session identifier: a time-derived prefix (guaranteeing
// uniqueness under same-address contention) followed by the physical
// address bytes of the owning node. Equality and hashing are over the raw
// byte sequence, so ID is comparable and usable as a map key once converted
// to its string form (see Key).
type ID struct {
	bytes string // raw bytes, stored as string so ID is comparable/hashable
}

// None is the designated empty session identifier.
var None = ID{}

// FromBytes wraps a raw byte sequence as a session ID. The caller must not
// mutate b afterwards.
func FromBytes(b []byte) ID {
	if len(b) == 0 {
		return None
	}
	return ID{bytes: string(b)}
}

// Bytes returns the raw byte sequence.
func (id ID) Bytes() []byte {
	if id.bytes == "" {
		return nil
	}
	return []byte(id.bytes)
}

// IsNone reports whether id is the designated empty identifier.
func (id ID) IsNone() bool {
	return id.bytes == ""
}

// Equal reports byte-sequence equality. The zero value of ID compares equal
// to None.
func (id ID) Equal(other ID) bool {
	return id.bytes == other.bytes
}

// String renders the identifier's bytes as lowercase hex, or "none" for
// None; hex-decoding the result recovers the bytes of any other ID.
func (id ID) String() string {
	if id.IsNone() {
		return "none"
	}
	return hex.EncodeToString([]byte(id.bytes))
}

// Key returns a value suitable for use as a map key (the raw bytes as a Go
// string, which is exactly what ID already stores internally).
func (id ID) Key() string {
	return id.bytes
}
