package core

// Bucket state machine — the transient resource holder.
//
// States: empty, liquid, partially locked. Buckets live in the heap, are
// owned by exactly one frame, and must be empty by the time they drop; a
// non-empty bucket at end of transaction is a resource leak.

import "fmt"

// NewBucket creates an empty bucket for the given resource, owned by the
// current frame.
func (k *Kernel) NewBucket(resource NodeID, resourceType ResourceType) (NodeID, error) {
	id, err := k.AllocateNodeID(EntityBucket)
	if err != nil {
		return NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: id, Module: ModuleMain, Offset: OffsetBucketInfo}: encodeSubstate(&VaultInfoSubstate{
			ResourceAddress: resource,
			ResourceType:    resourceType,
		}),
	}
	if resourceType == ResourceFungible {
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetBucketLiquidFungible}] = encodeSubstate(&LiquidFungibleSubstate{})
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetBucketLockedFungible}] = encodeSubstate(&LockedFungibleSubstate{})
	} else {
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetBucketLiquidNonFungible}] = encodeSubstate(&LiquidNonFungibleSubstate{})
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetBucketLockedNonFungible}] = encodeSubstate(&LockedNonFungibleSubstate{})
	}
	if err := k.CreateNode(id, substates); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// bucketIsEmpty is the leak-check predicate.
func (k *Kernel) bucketIsEmpty(bucket NodeID) (bool, error) {
	return k.containerIsEmpty(bucket)
}

// BucketResource returns the bucket's fixed resource binding.
func (k *Kernel) BucketResource(bucket NodeID) (NodeID, ResourceType, error) {
	info, err := k.containerInfo(bucket)
	if err != nil {
		return NodeID{}, 0, err
	}
	return info.ResourceAddress, info.ResourceType, nil
}

// BucketAmount returns liquid+locked total.
func (k *Kernel) BucketAmount(bucket NodeID) (Decimal, error) {
	return k.containerTotalAmount(bucket)
}

// BucketTakeByAmount splits amount into a fresh bucket.
func (k *Kernel) BucketTakeByAmount(bucket NodeID, amount Decimal) (NodeID, error) {
	info, err := k.containerInfo(bucket)
	if err != nil {
		return NodeID{}, err
	}
	if info.ResourceType != ResourceFungible {
		return NodeID{}, applicationError(fmt.Errorf("%w: bucket %s is non-fungible", ErrResourceMismatch, bucket))
	}
	divisibility, err := k.resourceDivisibility(info.ResourceAddress)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.mutateContainerFungible(bucket, func(liq *LiquidFungibleSubstate, _ *LockedFungibleSubstate) error {
		return liquidTakeByAmount(liq, amount, divisibility)
	}); err != nil {
		return NodeID{}, asApplicationError(err)
	}
	out, err := k.NewBucket(info.ResourceAddress, ResourceFungible)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.bucketPutFungible(out, amount); err != nil {
		return NodeID{}, err
	}
	return out, nil
}

// BucketTakeByIDs splits the named non-fungibles into a fresh bucket.
func (k *Kernel) BucketTakeByIDs(bucket NodeID, ids []NonFungibleLocalID) (NodeID, error) {
	info, err := k.containerInfo(bucket)
	if err != nil {
		return NodeID{}, err
	}
	if info.ResourceType != ResourceNonFungible {
		return NodeID{}, applicationError(fmt.Errorf("%w: bucket %s is fungible", ErrResourceMismatch, bucket))
	}
	if err := k.mutateContainerNonFungible(bucket, func(liq *LiquidNonFungibleSubstate, _ *LockedNonFungibleSubstate) error {
		return liquidTakeIDs(liq, ids)
	}); err != nil {
		return NodeID{}, asApplicationError(err)
	}
	out, err := k.NewBucket(info.ResourceAddress, ResourceNonFungible)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.bucketPutNonFungible(out, ids); err != nil {
		return NodeID{}, err
	}
	return out, nil
}

// BucketTakeAll drains the bucket's liquid resource into a fresh bucket.
func (k *Kernel) BucketTakeAll(bucket NodeID) (NodeID, error) {
	info, err := k.containerInfo(bucket)
	if err != nil {
		return NodeID{}, err
	}
	if info.ResourceType == ResourceFungible {
		amount, err := k.containerLiquidAmount(bucket)
		if err != nil {
			return NodeID{}, err
		}
		return k.BucketTakeByAmount(bucket, amount)
	}
	ids, err := k.containerLiquidIDs(bucket)
	if err != nil {
		return NodeID{}, err
	}
	return k.BucketTakeByIDs(bucket, ids)
}

// BucketPut merges other into bucket and drops the emptied shell. Resource
// addresses must match.
func (k *Kernel) BucketPut(bucket, other NodeID) error {
	info, err := k.containerInfo(bucket)
	if err != nil {
		return err
	}
	otherInfo, err := k.containerInfo(other)
	if err != nil {
		return err
	}
	if info.ResourceAddress != otherInfo.ResourceAddress {
		return applicationError(fmt.Errorf("%w: %s vs %s", ErrResourceMismatch, info.ResourceAddress, otherInfo.ResourceAddress))
	}
	if info.ResourceType == ResourceFungible {
		amount, err := k.containerLiquidAmount(other)
		if err != nil {
			return err
		}
		if err := k.mutateContainerFungible(other, func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error {
			if len(locked.Amounts) > 0 {
				return fmt.Errorf("%w: bucket %s has outstanding proof locks", ErrResourceNotEmpty, other)
			}
			liq.Amount = DecimalZero
			return nil
		}); err != nil {
			return asApplicationError(err)
		}
		if err := k.bucketPutFungible(bucket, amount); err != nil {
			return err
		}
	} else {
		ids, err := k.containerLiquidIDs(other)
		if err != nil {
			return err
		}
		if err := k.mutateContainerNonFungible(other, func(liq *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error {
			if len(locked.IDs) > 0 {
				return fmt.Errorf("%w: bucket %s has outstanding proof locks", ErrResourceNotEmpty, other)
			}
			liq.IDs = nil
			return nil
		}); err != nil {
			return asApplicationError(err)
		}
		if err := k.bucketPutNonFungible(bucket, ids); err != nil {
			return err
		}
	}
	return k.BucketDropEmpty(other)
}

// BucketDropEmpty destroys an empty bucket; dropping a non-empty bucket is
// refused.
func (k *Kernel) BucketDropEmpty(bucket NodeID) error {
	empty, err := k.bucketIsEmpty(bucket)
	if err != nil {
		return err
	}
	if !empty {
		return applicationError(fmt.Errorf("%w: bucket %s", ErrResourceNotEmpty, bucket))
	}
	frame := k.frameOwning(bucket)
	if frame == nil {
		return kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, bucket))
	}
	_, err = k.dropOwnedNode(frame, bucket)
	return err
}

// bucketPutFungible credits amount into the bucket's liquid balance.
func (k *Kernel) bucketPutFungible(bucket NodeID, amount Decimal) error {
	return asApplicationError(k.mutateContainerFungible(bucket, func(liq *LiquidFungibleSubstate, _ *LockedFungibleSubstate) error {
		return liquidPut(liq, amount)
	}))
}

// bucketPutNonFungible credits ids into the bucket's liquid set.
func (k *Kernel) bucketPutNonFungible(bucket NodeID, ids []NonFungibleLocalID) error {
	return asApplicationError(k.mutateContainerNonFungible(bucket, func(liq *LiquidNonFungibleSubstate, _ *LockedNonFungibleSubstate) error {
		liquidPutIDs(liq, ids)
		return nil
	}))
}

// containerLiquidIDs lists the free non-fungible ids of a container.
func (k *Kernel) containerLiquidIDs(container NodeID) ([]NonFungibleLocalID, error) {
	offs, err := offsetsFor(container)
	if err != nil {
		return nil, applicationError(err)
	}
	var liq LiquidNonFungibleSubstate
	if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqNF}, &liq); err != nil {
		return nil, applicationError(err)
	}
	var out []NonFungibleLocalID
	for _, key := range sortedIDKeys(liq.IDs) {
		id, err := ParseNonFungibleLocalID(key)
		if err != nil {
			panic(fmt.Sprintf("corrupt local id %q", key))
		}
		out = append(out, id)
	}
	return out, nil
}

// asApplicationError keeps RuntimeErrors intact and wraps plain resource
// errors as application failures.
func asApplicationError(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RuntimeError); ok {
		return re
	}
	return applicationError(err)
}
