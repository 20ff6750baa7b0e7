package core

// Key-value stores — sparse typed maps with owned-value semantics per entry.
// A KV store is created in the heap, is owned by exactly one component, and
// follows its owner into the track at globalization. Entries may own child
// nodes (vaults, nested KV stores); buckets are refused like everywhere else.

import "fmt"

// NewKeyValueStore creates an empty KV store owned by the current frame.
func (k *Kernel) NewKeyValueStore() (NodeID, error) {
	id, err := k.AllocateNodeID(EntityKeyValueStore)
	if err != nil {
		return NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: id, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			BlueprintName: "KeyValueStore",
		}),
	}
	if err := k.CreateNode(id, substates); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func kvEntryID(store NodeID, key []byte) SubstateID {
	return SubstateID{Node: store, Module: ModuleMain, Offset: OffsetKeyValueEntry, SortKey: key}
}

// KVStorePut upserts one entry. Owned child ids transfer to the entry; a
// bucket among them is refused.
func (k *Kernel) KVStorePut(store NodeID, key []byte, value []byte, owned []NodeID) error {
	if len(key) == 0 {
		return applicationError(fmt.Errorf("kv store key must not be empty"))
	}
	for _, child := range owned {
		if child.EntityType() == EntityBucket {
			return applicationError(fmt.Errorf("%w: bucket %s in kv entry", ErrNodeNotMovable, child))
		}
	}
	entry := encodeSubstate(&KeyValueEntrySubstate{Value: value, Owned: owned})
	if k.heap.Contains(store) {
		node := k.heap.Get(store)
		node.Put(kvEntryID(store, key), entry)
		for _, child := range owned {
			node.Owned[child] = true
		}
		return nil
	}
	// Tracked store: entries persist directly; owned children move with
	// them.
	for _, child := range owned {
		if k.heap.Contains(child) {
			if frame := k.frameOwning(child); frame != nil {
				_ = frame.releaseOwnership(child)
			}
			if err := k.moveNodeToTrack(child, false); err != nil {
				return err
			}
		}
	}
	if err := k.track.SetKeyValue(kvEntryID(store, key), entry); err != nil {
		return kernelError(err)
	}
	return nil
}

// KVStoreGet reads one entry, ok=false when absent.
func (k *Kernel) KVStoreGet(store NodeID, key []byte) (*KeyValueEntrySubstate, bool) {
	payload, ok := k.peekSubstate(kvEntryID(store, key))
	if !ok {
		return nil, false
	}
	var entry KeyValueEntrySubstate
	if err := decodeSubstate(payload, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

// KVStoreScan lists up to limit entries of a tracked store in key order.
func (k *Kernel) KVStoreScan(store NodeID, limit int) []SubstateEntry {
	return k.track.Scan(store, ModuleMain, OffsetKeyValueEntry, limit)
}
