package gomavlib

import (
	"sync/atomic"
	"time"
)

// closableWaitPollInterval is how often Closable.Wait polls for closure.
const closableWaitPollInterval = 20 * time.Millisecond

// Closer represents a resource whose state is owned by a single owner.
//
// Unlike Rust, Go has no destructors, so a Closer is closed explicitly by
// calling Close (typically via defer) rather than on scope exit. Call
// AsClosable to hand out a read-only view to dependents, or AsShared to
// produce a SharedCloser bound to this Closer's state.
type Closer struct {
	flag *atomic.Bool
}

// NewCloser creates an open Closer.
func NewCloser() *Closer {
	return &Closer{flag: new(atomic.Bool)}
}

// AsClosable returns a read-only view of this Closer's state.
func (c *Closer) AsClosable() Closable {
	return Closable{flag: c.flag}
}

// AsShared returns a SharedCloser bound to this Closer.
//
// The returned SharedCloser is associated: discarding it never closes the
// parent Closer early, but every clone released normally still contributes
// to the shared owner count.
func (c *Closer) AsShared() SharedCloser {
	owners := new(atomic.Int32)
	owners.Store(1)
	return SharedCloser{
		flag:       c.flag,
		owners:     owners,
		associated: true,
	}
}

// Close closes the resource. Safe to call more than once.
func (c *Closer) Close() {
	c.flag.Store(true)
}

// IsClosed reports whether the resource is closed.
func (c *Closer) IsClosed() bool {
	return c.flag.Load()
}

// SharedCloser is a Closer with shared ownership.
//
// Every clone must eventually call Release (the Go substitute for Rust's
// drop) or Discard. Release decrements the owner count and closes the
// resource once the last owner releases. Discard drops a copy without
// contributing to a close, except when this is a standalone (non-associated)
// SharedCloser's last remaining owner.
type SharedCloser struct {
	flag       *atomic.Bool
	owners     *atomic.Int32
	associated bool
}

// NewSharedCloser creates a new, standalone SharedCloser.
func NewSharedCloser() SharedCloser {
	owners := new(atomic.Int32)
	owners.Store(1)
	return SharedCloser{
		flag:   new(atomic.Bool),
		owners: owners,
	}
}

// AsClosable returns a read-only view of this SharedCloser's state.
func (s SharedCloser) AsClosable() Closable {
	return Closable{flag: s.flag}
}

// Clone returns a new owning handle to the same underlying resource.
func (s SharedCloser) Clone() SharedCloser {
	s.owners.Add(1)
	return s
}

// Close closes the resource immediately, regardless of remaining owners.
func (s SharedCloser) Close() {
	s.flag.Store(true)
}

// IsClosed reports whether the resource is closed.
func (s SharedCloser) IsClosed() bool {
	return s.flag.Load()
}

// Release gives up this owner's claim. If it was the last one, the resource
// closes.
func (s SharedCloser) Release() {
	if s.owners.Add(-1) <= 0 {
		s.flag.Store(true)
	}
}

// Discard gives up this owner's claim without propagating a close to a
// parent Closer, unless this SharedCloser was never associated with one and
// this is its last owner.
func (s SharedCloser) Discard() {
	if !s.associated && s.owners.Load() <= 1 {
		s.Close()
	}
	s.owners.Add(-1)
}

// Closable is a read-only view of a Closer or SharedCloser's state.
type Closable struct {
	flag *atomic.Bool
}

// IsClosed reports whether the underlying resource is closed.
func (c Closable) IsClosed() bool {
	if c.flag == nil {
		return false
	}
	return c.flag.Load()
}

// Wait blocks until the underlying resource closes. Used by code that needs
// to notice a lifetime ending without an extra synchronization primitive of
// its own (a single-channel transport watching its one Channel die, for
// instance).
func (c Closable) Wait() {
	if c.IsClosed() {
		return
	}
	ticker := time.NewTicker(closableWaitPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if c.IsClosed() {
			return
		}
	}
}

// Switch is a guarded boolean gated on a Closable: once the Closable closes,
// the switch is pinned to its zero value and further writes are ignored.
// Used for node activation state.
type Switch struct {
	state   Closable
	value   atomic.Bool
}

// NewSwitch creates a Switch gated on state, starting at value.
func NewSwitch(state Closable, value bool) *Switch {
	sw := &Switch{state: state}
	sw.value.Store(value)
	return sw
}

// Set stores value, unless the gating Closable has already closed.
func (s *Switch) Set(value bool) {
	if s.state.IsClosed() {
		return
	}
	s.value.Store(value)
}

// Get returns the current value. Once the gating Closable closes, Get
// always returns false.
func (s *Switch) Get() bool {
	if s.state.IsClosed() {
		return false
	}
	return s.value.Load()
}
