package core

// Worktop — the transaction-scope resource accumulator between manifest
// instructions. One bucket per resource address; put merges, take splits.
// The worktop must be empty by the end of the manifest.

import (
	"bytes"
	"fmt"
	"sort"
)

// NewWorktop creates the root frame's worktop node.
func (k *Kernel) NewWorktop() (NodeID, error) {
	id, err := k.AllocateNodeID(EntityWorktop)
	if err != nil {
		return NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: id, Module: ModuleMain, Offset: OffsetWorktop}: encodeSubstate(&WorktopSubstate{}),
	}
	if err := k.CreateNode(id, substates); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func (k *Kernel) readWorktop(worktop NodeID) (*WorktopSubstate, error) {
	var wt WorktopSubstate
	if err := k.peekTyped(SubstateID{Node: worktop, Module: ModuleMain, Offset: OffsetWorktop}, &wt); err != nil {
		return nil, applicationError(err)
	}
	return &wt, nil
}

func (k *Kernel) writeWorktop(worktop NodeID, wt *WorktopSubstate) error {
	node := k.heap.Get(worktop)
	if node == nil {
		return kernelError(fmt.Errorf("worktop %s: %w", worktop, ErrNotFound))
	}
	node.Put(SubstateID{Node: worktop, Module: ModuleMain, Offset: OffsetWorktop}, encodeSubstate(wt))
	return nil
}

// worktopIsEmpty reports whether every held bucket is empty.
func (k *Kernel) worktopIsEmpty(worktop NodeID) (bool, error) {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return false, err
	}
	for _, bucket := range wt.Buckets {
		empty, err := k.bucketIsEmpty(bucket)
		if err != nil {
			return false, err
		}
		if !empty {
			return false, nil
		}
	}
	return true, nil
}

// WorktopPut merges a bucket into the worktop's per-resource bucket. The
// worktop takes ownership; the merged-in shell is destroyed.
func (k *Kernel) WorktopPut(worktop, bucket NodeID) error {
	resource, _, err := k.BucketResource(bucket)
	if err != nil {
		return err
	}
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return err
	}
	if existing, ok := wt.Buckets[resource]; ok {
		amount, _ := k.BucketAmount(bucket)
		if err := k.BucketPut(existing, bucket); err != nil {
			return err
		}
		k.trace.Record("worktop_put", worktop, resource, amount, "")
		return nil
	}
	if wt.Buckets == nil {
		wt.Buckets = make(map[NodeID]NodeID)
	}
	wt.Buckets[resource] = bucket
	amount, _ := k.BucketAmount(bucket)
	k.trace.Record("worktop_put", worktop, resource, amount, "")
	return k.writeWorktop(worktop, wt)
}

// WorktopTakeByAmount splits amount of resource into a new bucket.
func (k *Kernel) WorktopTakeByAmount(worktop, resource NodeID, amount Decimal) (NodeID, error) {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return NodeID{}, err
	}
	bucket, ok := wt.Buckets[resource]
	if !ok {
		return NodeID{}, applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
	}
	out, err := k.BucketTakeByAmount(bucket, amount)
	if err != nil {
		return NodeID{}, err
	}
	k.trace.Record("worktop_take", worktop, resource, amount, "")
	return out, nil
}

// WorktopTakeByIDs splits the named non-fungibles into a new bucket.
func (k *Kernel) WorktopTakeByIDs(worktop, resource NodeID, ids []NonFungibleLocalID) (NodeID, error) {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return NodeID{}, err
	}
	bucket, ok := wt.Buckets[resource]
	if !ok {
		return NodeID{}, applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
	}
	out, err := k.BucketTakeByIDs(bucket, ids)
	if err != nil {
		return NodeID{}, err
	}
	k.trace.Record("worktop_take", worktop, resource, NewDecimal(int64(len(ids))), "")
	return out, nil
}

// WorktopTakeAll removes the whole per-resource bucket, or returns a fresh
// empty bucket when the worktop holds none of the resource.
func (k *Kernel) WorktopTakeAll(worktop, resource NodeID) (NodeID, error) {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return NodeID{}, err
	}
	bucket, ok := wt.Buckets[resource]
	if !ok {
		resourceType := ResourceFungible
		if resource.EntityType() == EntityNonFungibleResource {
			resourceType = ResourceNonFungible
		}
		return k.NewBucket(resource, resourceType)
	}
	delete(wt.Buckets, resource)
	if err := k.writeWorktop(worktop, wt); err != nil {
		return NodeID{}, err
	}
	amount, _ := k.BucketAmount(bucket)
	k.trace.Record("worktop_take", worktop, resource, amount, "")
	return bucket, nil
}

// WorktopAssertContains asserts a minimum amount (nil = any positive) of a
// resource without consuming it.
func (k *Kernel) WorktopAssertContains(worktop, resource NodeID, amount *Decimal, ids []NonFungibleLocalID) error {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return err
	}
	bucket, ok := wt.Buckets[resource]
	if !ok {
		return applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
	}
	if len(ids) > 0 {
		held, err := k.containerLiquidIDs(bucket)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(held))
		for _, id := range held {
			have[id.String()] = true
		}
		for _, id := range ids {
			if !have[id.String()] {
				return applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
			}
		}
		return nil
	}
	held, err := k.BucketAmount(bucket)
	if err != nil {
		return err
	}
	if amount == nil {
		if !held.IsPositive() {
			return applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
		}
		return nil
	}
	if held.Cmp(*amount) < 0 {
		return applicationError(&WorktopError{Kind: WorktopAssertionFailed, Resource: resource})
	}
	return nil
}

// WorktopDrain removes and returns every held bucket.
func (k *Kernel) WorktopDrain(worktop NodeID) ([]NodeID, error) {
	wt, err := k.readWorktop(worktop)
	if err != nil {
		return nil, err
	}
	resources := make([]NodeID, 0, len(wt.Buckets))
	for resource := range wt.Buckets {
		resources = append(resources, resource)
	}
	sort.Slice(resources, func(i, j int) bool {
		return bytes.Compare(resources[i][:], resources[j][:]) < 0
	})
	var out []NodeID
	for _, resource := range resources {
		out = append(out, wt.Buckets[resource])
	}
	wt.Buckets = nil
	if err := k.writeWorktop(worktop, wt); err != nil {
		return nil, err
	}
	return out, nil
}
