package core

// Track — the transactional cache over the substate store.
//
// Every substate read or write during a transaction routes through here. The
// track keeps a per-substate lock table (at most one mutable holder, any
// number of readers), buffers writes, and on finalize emits an ordered
// changeset: all writes on success, force-writes only on failure so the fee
// debit survives a revert.

import (
	"sort"
)

// LockMode selects the access discipline for an acquired substate lock.
type LockMode uint8

const (
	// LockRead allows shared reads.
	LockRead LockMode = iota
	// LockMutable allows exclusive read/write access.
	LockMutable
	// LockUnmodifiedBaseMutable behaves like LockMutable but fails if the
	// base substate was already touched in this transaction. Required by
	// fee-lock semantics.
	LockUnmodifiedBaseMutable
)

// LockFlags modify lock behaviour.
type LockFlags uint8

const (
	// LockFlagForceWrite marks writes through this lock as surviving
	// transaction failure. Used only for fee deduction.
	LockFlagForceWrite LockFlags = 1 << iota
)

// LockHandle names an outstanding lock.
type LockHandle uint32

type trackedSubstate struct {
	id       SubstateID
	payload  []byte
	version  uint32
	exists   bool
	loaded   bool // base fetched from store
	created  bool // first created in this transaction
	touched  bool // written in this transaction
	forced   []byte // force-written payload, retained on failure
	readers  int
	writer   bool
	seq      int // creation order for deterministic changesets
	kvParent bool
}

type trackLock struct {
	substate *trackedSubstate
	mode     LockMode
	flags    LockFlags
}

// Track provides the transactional substate view.
type Track struct {
	store      SubstateStore
	substates  map[string]*trackedSubstate
	locks      map[LockHandle]*trackLock
	nextHandle LockHandle
	nextSeq    int
}

// NewTrack wraps a substate store for one transaction.
func NewTrack(store SubstateStore) *Track {
	return &Track{
		store:     store,
		substates: make(map[string]*trackedSubstate),
		locks:     make(map[LockHandle]*trackLock),
	}
}

func (t *Track) load(id SubstateID) *trackedSubstate {
	key := string(id.Key())
	if s, ok := t.substates[key]; ok {
		return s
	}
	s := &trackedSubstate{id: id, seq: t.nextSeq}
	t.nextSeq++
	if payload, version, ok := t.store.Get(id); ok {
		s.payload = payload
		s.version = version
		s.exists = true
	}
	s.loaded = true
	t.substates[key] = s
	return s
}

// AcquireLock locks the substate in the requested mode.
func (t *Track) AcquireLock(id SubstateID, mode LockMode, flags LockFlags) (LockHandle, error) {
	s := t.load(id)
	if !s.exists {
		return 0, &TrackError{Kind: TrackNotFound, ID: id}
	}
	switch mode {
	case LockRead:
		if s.writer {
			return 0, &TrackError{Kind: TrackReentrancy, ID: id}
		}
		s.readers++
	case LockMutable:
		if s.writer || s.readers > 0 {
			return 0, &TrackError{Kind: TrackReentrancy, ID: id}
		}
		s.writer = true
	case LockUnmodifiedBaseMutable:
		if s.touched || s.created {
			return 0, &TrackError{Kind: TrackBaseAlreadyTouched, ID: id}
		}
		if s.writer || s.readers > 0 {
			return 0, &TrackError{Kind: TrackReentrancy, ID: id}
		}
		s.writer = true
	}
	t.nextHandle++
	h := t.nextHandle
	t.locks[h] = &trackLock{substate: s, mode: mode, flags: flags}
	return h, nil
}

// IsLockedMutable reports whether any mutable lock is outstanding on id;
// the kernel uses it for re-entrancy detection across frames.
func (t *Track) IsLockedMutable(id SubstateID) bool {
	if s, ok := t.substates[string(id.Key())]; ok {
		return s.writer
	}
	return false
}

// Read returns the current payload under the handle.
func (t *Track) Read(h LockHandle) ([]byte, error) {
	l, ok := t.locks[h]
	if !ok {
		return nil, ErrInvalidLockHandle
	}
	return l.substate.payload, nil
}

// Write replaces the payload under a mutable handle.
func (t *Track) Write(h LockHandle, payload []byte) error {
	l, ok := t.locks[h]
	if !ok {
		return ErrInvalidLockHandle
	}
	if l.mode == LockRead {
		return &TrackError{Kind: TrackReentrancy, ID: l.substate.id}
	}
	l.substate.payload = append([]byte(nil), payload...)
	l.substate.touched = true
	if l.flags&LockFlagForceWrite != 0 {
		l.substate.forced = append([]byte(nil), payload...)
	}
	return nil
}

// Release drops the lock.
func (t *Track) Release(h LockHandle) error {
	l, ok := t.locks[h]
	if !ok {
		return ErrInvalidLockHandle
	}
	delete(t.locks, h)
	switch l.mode {
	case LockRead:
		l.substate.readers--
	default:
		l.substate.writer = false
	}
	return nil
}

// OutstandingLocks returns the number of live handles; the executor asserts
// zero after the root frame drops.
func (t *Track) OutstandingLocks() int { return len(t.locks) }

// CreateSubstate introduces a brand-new substate. It fails if the id exists
// in the store or was already created in this transaction.
func (t *Track) CreateSubstate(id SubstateID, payload []byte) error {
	s := t.load(id)
	if s.exists {
		return &TrackError{Kind: TrackSubstateExists, ID: id}
	}
	s.exists = true
	s.created = true
	s.touched = true
	s.payload = append([]byte(nil), payload...)
	return nil
}

// SetOrCreate upserts a plain substate outside the lock discipline; reserved
// for kernel-internal writes during globalization and genesis.
func (t *Track) SetOrCreate(id SubstateID, payload []byte) {
	s := t.load(id)
	if !s.exists {
		s.created = true
	}
	s.exists = true
	s.touched = true
	s.payload = append([]byte(nil), payload...)
}

// SetKeyValue upserts an entry under a key-value space; creation and update
// share the same action because KV spaces are sparse by contract.
func (t *Track) SetKeyValue(id SubstateID, payload []byte) error {
	if len(id.SortKey) == 0 {
		return &TrackError{Kind: TrackNotFound, ID: id}
	}
	s := t.load(id)
	if !s.exists {
		s.created = true
	}
	s.exists = true
	s.touched = true
	s.kvParent = true
	s.payload = append([]byte(nil), payload...)
	return nil
}

// GetSubstate is a lock-free point read used by scans, previews and the
// executor's receipt assembly. Dirty state shadows the store.
func (t *Track) GetSubstate(id SubstateID) ([]byte, bool) {
	key := string(id.Key())
	if s, ok := t.substates[key]; ok {
		if !s.exists {
			return nil, false
		}
		return s.payload, true
	}
	payload, _, ok := t.store.Get(id)
	return payload, ok
}

// Scan merges store entries with the transaction's dirty overlay.
func (t *Track) Scan(node NodeID, module ModuleID, offset SubstateOffset, limit int) []SubstateEntry {
	prefix := string(substateKeyPrefix(node, module, offset))
	merged := make(map[string]SubstateEntry)
	for _, e := range t.store.Scan(node, module, offset, 0) {
		merged[string(e.ID.Key())] = e
	}
	for key, s := range t.substates {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if !s.exists {
			delete(merged, key)
			continue
		}
		merged[key] = SubstateEntry{ID: s.id, Payload: s.payload, Version: s.version}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []SubstateEntry
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, merged[k])
	}
	return out
}

// AmendBoth rewrites a substate's dirty image and, when present, its
// force-written image through the same function. Used by fee settlement so
// refunds land on whichever image the outcome keeps.
func (t *Track) AmendBoth(id SubstateID, amend func(payload []byte) []byte) {
	s := t.load(id)
	if !s.exists {
		return
	}
	s.payload = amend(s.payload)
	s.touched = true
	if s.forced != nil {
		s.forced = amend(s.forced)
	}
}

// Finalize produces the changeset. On success every dirty substate is
// included; on failure only force-writes survive.
func (t *Track) Finalize(success bool) *Changeset {
	type pending struct {
		seq int
		ch  Change
	}
	var list []pending
	for _, s := range t.substates {
		if success && s.touched {
			action := ChangeUpdate
			switch {
			case s.created && s.kvParent:
				action = ChangeSetKeyValue
			case s.created:
				action = ChangeCreate
			case s.kvParent:
				action = ChangeSetKeyValue
			}
			list = append(list, pending{seq: s.seq, ch: Change{Action: action, ID: s.id, Payload: s.payload}})
			continue
		}
		if !success && s.forced != nil && !s.created {
			list = append(list, pending{seq: s.seq, ch: Change{Action: ChangeForceWrite, ID: s.id, Payload: s.forced}})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	cs := &Changeset{}
	for _, p := range list {
		cs.Changes = append(cs.Changes, p.ch)
	}
	return cs
}
