package core

import (
	"errors"
	"testing"
)

func testSubstateID(n byte) SubstateID {
	var node NodeID
	node[0] = byte(EntityNormalComponent)
	node[1] = n
	return SubstateID{Node: node, Module: ModuleMain, Offset: OffsetComponentState}
}

func seededTrack(t *testing.T, ids ...SubstateID) (*Track, *InMemorySubstateStore) {
	t.Helper()
	store := NewInMemorySubstateStore()
	cs := &Changeset{}
	for _, id := range ids {
		cs.Changes = append(cs.Changes, Change{Action: ChangeCreate, ID: id, Payload: []byte(`{"v":1}`)})
	}
	if err := store.Commit(cs); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return NewTrack(store), store
}

func TestTrackAtMostOneMutableLock(t *testing.T) {
	id := testSubstateID(1)
	tr, _ := seededTrack(t, id)

	h, err := tr.AcquireLock(id, LockMutable, 0)
	if err != nil {
		t.Fatalf("first mutable lock: %v", err)
	}
	if _, err := tr.AcquireLock(id, LockMutable, 0); err == nil {
		t.Fatalf("second mutable lock should fail")
	}
	if _, err := tr.AcquireLock(id, LockRead, 0); err == nil {
		t.Fatalf("read lock under writer should fail")
	}
	if err := tr.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := tr.AcquireLock(id, LockMutable, 0); err != nil {
		t.Fatalf("relock after release: %v", err)
	}
}

func TestTrackSharedReaders(t *testing.T) {
	id := testSubstateID(2)
	tr, _ := seededTrack(t, id)
	if _, err := tr.AcquireLock(id, LockRead, 0); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := tr.AcquireLock(id, LockRead, 0); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if _, err := tr.AcquireLock(id, LockMutable, 0); err == nil {
		t.Fatalf("mutable under readers should fail")
	}
}

func TestTrackNotFound(t *testing.T) {
	tr, _ := seededTrack(t)
	_, err := tr.AcquireLock(testSubstateID(3), LockRead, 0)
	var te *TrackError
	if !errors.As(err, &te) || te.Kind != TrackNotFound {
		t.Fatalf("expected TrackNotFound, got %v", err)
	}
}

func TestTrackUnmodifiedBaseMutable(t *testing.T) {
	id := testSubstateID(4)
	tr, _ := seededTrack(t, id)

	h, err := tr.AcquireLock(id, LockMutable, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := tr.Write(h, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tr.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, err = tr.AcquireLock(id, LockUnmodifiedBaseMutable, 0)
	var te *TrackError
	if !errors.As(err, &te) || te.Kind != TrackBaseAlreadyTouched {
		t.Fatalf("expected BaseAlreadyTouched, got %v", err)
	}
}

func TestTrackCreateDuplicateFails(t *testing.T) {
	id := testSubstateID(5)
	tr, _ := seededTrack(t, id)
	err := tr.CreateSubstate(id, []byte(`{}`))
	var te *TrackError
	if !errors.As(err, &te) || te.Kind != TrackSubstateExists {
		t.Fatalf("expected SubstateExists, got %v", err)
	}
}

func TestTrackFinalizeDiscardsOnFailureExceptForceWrites(t *testing.T) {
	forced := testSubstateID(6)
	normal := testSubstateID(7)
	tr, _ := seededTrack(t, forced, normal)

	hf, err := tr.AcquireLock(forced, LockUnmodifiedBaseMutable, LockFlagForceWrite)
	if err != nil {
		t.Fatalf("lock forced: %v", err)
	}
	if err := tr.Write(hf, []byte(`{"fee":1}`)); err != nil {
		t.Fatalf("write forced: %v", err)
	}
	_ = tr.Release(hf)

	hn, err := tr.AcquireLock(normal, LockMutable, 0)
	if err != nil {
		t.Fatalf("lock normal: %v", err)
	}
	if err := tr.Write(hn, []byte(`{"v":9}`)); err != nil {
		t.Fatalf("write normal: %v", err)
	}
	_ = tr.Release(hn)

	cs := tr.Finalize(false)
	if len(cs.Changes) != 1 {
		t.Fatalf("failure changeset has %d changes, want 1", len(cs.Changes))
	}
	if cs.Changes[0].Action != ChangeForceWrite {
		t.Fatalf("expected ForceWrite, got %s", cs.Changes[0].Action)
	}
	if string(cs.Changes[0].ID.Key()) != string(forced.Key()) {
		t.Fatalf("force write targets wrong substate")
	}
}

func TestTrackFinalizeSuccessKeepsAllWrites(t *testing.T) {
	id := testSubstateID(8)
	tr, _ := seededTrack(t, id)
	h, err := tr.AcquireLock(id, LockMutable, 0)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := tr.Write(h, []byte(`{"v":3}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = tr.Release(h)
	if err := tr.CreateSubstate(testSubstateID(9), []byte(`{"new":true}`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	cs := tr.Finalize(true)
	if len(cs.Changes) != 2 {
		t.Fatalf("success changeset has %d changes, want 2", len(cs.Changes))
	}
}
