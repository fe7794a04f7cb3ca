package session

import (
	"encoding/binary"
	"sync/atomic"
	"time"
)

// Provider produces fresh, globally-unique session identifiers.
//
// Each identifier is prefix‖address, where prefix combines the process's
// start time with a per-process monotonic counter (so two identifiers
// issued by the same process are always distinct) and address is the
// node's physical address bytes (so two identifiers issued by different
// processes are always distinct, absent address reuse).
type Provider struct {
	address   []byte
	startNano int64
	counter   atomic.Uint64
}

// NewProvider builds a Provider advertising addr (typically the host:port
// this process's exchange transport is reachable on) as the physical
// address component of every identifier it issues.
func NewProvider(addr []byte) *Provider {
	a := make([]byte, len(addr))
	copy(a, addr)
	return &Provider{
		address:   a,
		startNano: time.Now().UnixNano(),
	}
}

// New issues a fresh session identifier.
func (p *Provider) New() ID {
	n := p.counter.Add(1)

	prefix := make([]byte, 16)
	binary.BigEndian.PutUint64(prefix[0:8], uint64(p.startNano))
	binary.BigEndian.PutUint64(prefix[8:16], n)

	buf := make([]byte, 0, len(prefix)+len(p.address))
	buf = append(buf, prefix...)
	buf = append(buf, p.address...)
	return FromBytes(buf)
}

// Address returns the physical address bytes embedded in every identifier
// this provider issues. The exchange transports do not read it: they fan
// out to their configured peers rather than routing by session address.
func (p *Provider) Address() []byte {
	out := make([]byte, len(p.address))
	copy(out, p.address)
	return out
}

// AddressOf extracts the physical-address suffix from an identifier issued
// by a Provider (the 16-byte time+counter prefix is fixed-width).
func AddressOf(id ID) []byte {
	b := id.Bytes()
	if len(b) <= 16 {
		return nil
	}
	return b[16:]
}
