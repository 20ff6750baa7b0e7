package core

import (
	"bytes"
	"testing"
)

func TestKVStorePutGet(t *testing.T) {
	k := newTestKernel(t)
	store, err := k.NewKeyValueStore()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.KVStorePut(store, []byte("alpha"), []byte(`{"x":1}`), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, ok := k.KVStoreGet(store, []byte("alpha"))
	if !ok {
		t.Fatalf("entry missing")
	}
	if !bytes.Equal(entry.Value, []byte(`{"x":1}`)) {
		t.Fatalf("value=%s", entry.Value)
	}
	if _, ok := k.KVStoreGet(store, []byte("beta")); ok {
		t.Fatalf("absent key should report ok=false")
	}
}

func TestKVStoreRefusesBucketEntries(t *testing.T) {
	k := newTestKernel(t)
	store, err := k.NewKeyValueStore()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(1))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := k.KVStorePut(store, []byte("k"), nil, []NodeID{bucket}); err == nil {
		t.Fatalf("bucket in kv entry should be refused")
	}
	if err := k.VaultPut(FaucetVault, bucket); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestKVStoreMayNotBeReturned(t *testing.T) {
	k := newTestKernel(t)
	store, err := k.NewKeyValueStore()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := movableOut(k, store, k.CurrentFrame().Actor()); err == nil {
		t.Fatalf("kv store must be sticky")
	}
}
