package core

// Substate store — the durable key→value map beneath the track layer.
//
// The kernel only sees the SubstateStore contract: point reads, prefix scans
// and atomic changeset commits. Two implementations ship here: a mutex-guarded
// in-memory store for tests and previews, and a bbolt-backed store for the
// simulator's data directory.

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// ChangeAction describes one entry of a commit changeset.
type ChangeAction uint8

const (
	ChangeCreate ChangeAction = iota
	ChangeUpdate
	ChangeSetKeyValue
	ChangeForceWrite
	ChangeDelete
)

func (a ChangeAction) String() string {
	switch a {
	case ChangeCreate:
		return "Create"
	case ChangeUpdate:
		return "Update"
	case ChangeSetKeyValue:
		return "SetKeyValue"
	case ChangeForceWrite:
		return "ForceWrite"
	case ChangeDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Change is one substate mutation.
type Change struct {
	Action  ChangeAction
	ID      SubstateID
	Payload []byte
}

// Changeset is the ordered list of mutations a transaction commits.
type Changeset struct {
	Changes []Change
}

// IsEmpty reports whether the changeset carries no mutations.
func (c *Changeset) IsEmpty() bool { return c == nil || len(c.Changes) == 0 }

// SubstateEntry is one scan result.
type SubstateEntry struct {
	ID      SubstateID
	Payload []byte
	Version uint32
}

// SubstateStore is the durable map of typed substates. Commit must be atomic
// at changeset granularity.
type SubstateStore interface {
	// Get returns the payload and version for id, or ok=false.
	Get(id SubstateID) (payload []byte, version uint32, ok bool)
	// Scan returns up to limit entries under the (node, module, offset)
	// key space, ordered by sort key. limit <= 0 means unbounded.
	Scan(node NodeID, module ModuleID, offset SubstateOffset, limit int) []SubstateEntry
	// Commit applies the changeset atomically, bumping versions.
	Commit(cs *Changeset) error
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

type memEntry struct {
	payload []byte
	version uint32
}

// InMemorySubstateStore is the test/preview store.
type InMemorySubstateStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

// NewInMemorySubstateStore returns an empty store.
func NewInMemorySubstateStore() *InMemorySubstateStore {
	return &InMemorySubstateStore{entries: make(map[string]memEntry)}
}

func (s *InMemorySubstateStore) Get(id SubstateID) ([]byte, uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[string(id.Key())]
	if !ok {
		return nil, 0, false
	}
	cpy := append([]byte(nil), e.payload...)
	return cpy, e.version, true
}

func (s *InMemorySubstateStore) Scan(node NodeID, module ModuleID, offset SubstateOffset, limit int) []SubstateEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := substateKeyPrefix(node, module, offset)
	var keys []string
	for k := range s.entries {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out []SubstateEntry
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		e := s.entries[k]
		out = append(out, SubstateEntry{
			ID:      SubstateID{Node: node, Module: module, Offset: offset, SortKey: append([]byte(nil), k[len(prefix):]...)},
			Payload: append([]byte(nil), e.payload...),
			Version: e.version,
		})
	}
	return out
}

func (s *InMemorySubstateStore) Commit(cs *Changeset) error {
	if cs.IsEmpty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range cs.Changes {
		key := string(ch.ID.Key())
		switch ch.Action {
		case ChangeCreate:
			if _, exists := s.entries[key]; exists {
				return fmt.Errorf("commit create: %s already exists", ch.ID)
			}
			s.entries[key] = memEntry{payload: append([]byte(nil), ch.Payload...), version: 0}
		case ChangeUpdate, ChangeSetKeyValue, ChangeForceWrite:
			prev := s.entries[key]
			s.entries[key] = memEntry{payload: append([]byte(nil), ch.Payload...), version: prev.version + 1}
		case ChangeDelete:
			delete(s.entries, key)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// bbolt store
// -----------------------------------------------------------------------------

var boltSubstatesBucket = []byte("substates")

// BoltSubstateStore persists the substate space in a single bbolt bucket.
// Stored values are version(le32) || payload, so reads stay one lookup.
type BoltSubstateStore struct {
	db  *bolt.DB
	log *logrus.Logger
}

// OpenBoltSubstateStore opens (or creates) the database at path.
func OpenBoltSubstateStore(path string, lg *logrus.Logger) (*BoltSubstateStore, error) {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open substate db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltSubstatesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init substate db: %w", err)
	}
	lg.Infof("substate store open at %s", path)
	return &BoltSubstateStore{db: db, log: lg}, nil
}

// Close releases the underlying database.
func (s *BoltSubstateStore) Close() error { return s.db.Close() }

func (s *BoltSubstateStore) Get(id SubstateID) ([]byte, uint32, bool) {
	var payload []byte
	var version uint32
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltSubstatesBucket).Get(id.Key())
		if v == nil || len(v) < 4 {
			return nil
		}
		found = true
		version = binary.LittleEndian.Uint32(v[:4])
		payload = append([]byte(nil), v[4:]...)
		return nil
	})
	return payload, version, found
}

func (s *BoltSubstateStore) Scan(node NodeID, module ModuleID, offset SubstateOffset, limit int) []SubstateEntry {
	prefix := substateKeyPrefix(node, module, offset)
	var out []SubstateEntry
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltSubstatesBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			if len(v) < 4 {
				continue
			}
			out = append(out, SubstateEntry{
				ID:      SubstateID{Node: node, Module: module, Offset: offset, SortKey: append([]byte(nil), k[len(prefix):]...)},
				Payload: append([]byte(nil), v[4:]...),
				Version: binary.LittleEndian.Uint32(v[:4]),
			})
		}
		return nil
	})
	return out
}

func (s *BoltSubstateStore) Commit(cs *Changeset) error {
	if cs.IsEmpty() {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltSubstatesBucket)
		for _, ch := range cs.Changes {
			key := ch.ID.Key()
			switch ch.Action {
			case ChangeCreate:
				if b.Get(key) != nil {
					return fmt.Errorf("commit create: %s already exists", ch.ID)
				}
				if err := b.Put(key, encodeVersioned(0, ch.Payload)); err != nil {
					return err
				}
			case ChangeUpdate, ChangeSetKeyValue, ChangeForceWrite:
				version := uint32(0)
				if prev := b.Get(key); len(prev) >= 4 {
					version = binary.LittleEndian.Uint32(prev[:4]) + 1
				}
				if err := b.Put(key, encodeVersioned(version, ch.Payload)); err != nil {
					return err
				}
			case ChangeDelete:
				if err := b.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit changeset: %w", err)
	}
	s.log.WithFields(logrus.Fields{"changes": len(cs.Changes)}).Debug("changeset committed")
	return nil
}

func encodeVersioned(version uint32, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out[:4], version)
	copy(out[4:], payload)
	return out
}
