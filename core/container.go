package core

// Shared resource-container plumbing. Buckets (heap) and vaults (track) hold
// the same substate shapes at different offsets; the helpers here give the
// bucket/vault/proof state machines one uniform surface over both.

import "fmt"

type containerOffsets struct {
	info   SubstateOffset
	liqF   SubstateOffset
	lockF  SubstateOffset
	liqNF  SubstateOffset
	lockNF SubstateOffset
}

func offsetsFor(id NodeID) (containerOffsets, error) {
	switch id.EntityType() {
	case EntityBucket:
		return containerOffsets{
			info:   OffsetBucketInfo,
			liqF:   OffsetBucketLiquidFungible,
			lockF:  OffsetBucketLockedFungible,
			liqNF:  OffsetBucketLiquidNonFungible,
			lockNF: OffsetBucketLockedNonFungible,
		}, nil
	case EntityFungibleVault, EntityNonFungibleVault:
		return containerOffsets{
			info:   OffsetVaultInfo,
			liqF:   OffsetVaultLiquidFungible,
			lockF:  OffsetVaultLockedFungible,
			liqNF:  OffsetVaultLiquidNonFungible,
			lockNF: OffsetVaultLockedNonFungible,
		}, nil
	default:
		return containerOffsets{}, fmt.Errorf("%w: %s is not a resource container", ErrResourceMismatch, id)
	}
}

// peekSubstate is a lock-free read across heap and track; used for checks
// that must not disturb lock state (teardown, previews, dumps).
func (k *Kernel) peekSubstate(id SubstateID) ([]byte, bool) {
	if k.heap.Contains(id.Node) {
		return k.heap.Get(id.Node).Get(id)
	}
	return k.track.GetSubstate(id)
}

func (k *Kernel) peekTyped(id SubstateID, out any) error {
	payload, ok := k.peekSubstate(id)
	if !ok {
		return &TrackError{Kind: TrackNotFound, ID: id}
	}
	return decodeSubstate(payload, out)
}

// containerInfo reads a container's resource binding.
func (k *Kernel) containerInfo(container NodeID) (VaultInfoSubstate, error) {
	offs, err := offsetsFor(container)
	if err != nil {
		return VaultInfoSubstate{}, applicationError(err)
	}
	var info VaultInfoSubstate
	if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.info}, &info); err != nil {
		return VaultInfoSubstate{}, applicationError(err)
	}
	return info, nil
}

// containerLiquidAmount returns the free amount (fungible) or id count
// expressed as a Decimal (non-fungible).
func (k *Kernel) containerLiquidAmount(container NodeID) (Decimal, error) {
	info, err := k.containerInfo(container)
	if err != nil {
		return DecimalZero, err
	}
	offs, _ := offsetsFor(container)
	if info.ResourceType == ResourceFungible {
		var liq LiquidFungibleSubstate
		if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqF}, &liq); err != nil {
			return DecimalZero, applicationError(err)
		}
		return liq.Amount, nil
	}
	var liq LiquidNonFungibleSubstate
	if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqNF}, &liq); err != nil {
		return DecimalZero, applicationError(err)
	}
	return NewDecimal(int64(len(liq.IDs))), nil
}

// containerTotalAmount is liquid plus locked.
func (k *Kernel) containerTotalAmount(container NodeID) (Decimal, error) {
	info, err := k.containerInfo(container)
	if err != nil {
		return DecimalZero, err
	}
	offs, _ := offsetsFor(container)
	if info.ResourceType == ResourceFungible {
		var liq LiquidFungibleSubstate
		var locked LockedFungibleSubstate
		if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqF}, &liq); err != nil {
			return DecimalZero, applicationError(err)
		}
		if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.lockF}, &locked); err != nil {
			return DecimalZero, applicationError(err)
		}
		return liq.Amount.Add(lockedFungibleTotal(&locked))
	}
	var liq LiquidNonFungibleSubstate
	var locked LockedNonFungibleSubstate
	if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqNF}, &liq); err != nil {
		return DecimalZero, applicationError(err)
	}
	if err := k.peekTyped(SubstateID{Node: container, Module: ModuleMain, Offset: offs.lockNF}, &locked); err != nil {
		return DecimalZero, applicationError(err)
	}
	return NewDecimal(int64(len(liq.IDs) + len(locked.IDs))), nil
}

// containerIsEmpty reports liquid and locked both zero.
func (k *Kernel) containerIsEmpty(container NodeID) (bool, error) {
	total, err := k.containerTotalAmount(container)
	if err != nil {
		return false, err
	}
	return total.IsZero(), nil
}

// mutateContainerFungible runs fn over the liquid+locked fungible pair under
// mutable locks and writes both back.
func (k *Kernel) mutateContainerFungible(container NodeID, fn func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error) error {
	offs, err := offsetsFor(container)
	if err != nil {
		return applicationError(err)
	}
	liqID := SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqF}
	lockID := SubstateID{Node: container, Module: ModuleMain, Offset: offs.lockF}
	return k.withSubstate(liqID, LockMutable, 0, func(liqPayload []byte) ([]byte, error) {
		var liq LiquidFungibleSubstate
		if err := decodeSubstate(liqPayload, &liq); err != nil {
			return nil, err
		}
		var inner error
		werr := k.withSubstate(lockID, LockMutable, 0, func(lockPayload []byte) ([]byte, error) {
			var locked LockedFungibleSubstate
			if err := decodeSubstate(lockPayload, &locked); err != nil {
				return nil, err
			}
			if inner = fn(&liq, &locked); inner != nil {
				return nil, inner
			}
			return encodeSubstate(&locked), nil
		})
		if werr != nil {
			return nil, werr
		}
		return encodeSubstate(&liq), nil
	})
}

// mutateContainerNonFungible mirrors mutateContainerFungible for id sets.
func (k *Kernel) mutateContainerNonFungible(container NodeID, fn func(liq *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error) error {
	offs, err := offsetsFor(container)
	if err != nil {
		return applicationError(err)
	}
	liqID := SubstateID{Node: container, Module: ModuleMain, Offset: offs.liqNF}
	lockID := SubstateID{Node: container, Module: ModuleMain, Offset: offs.lockNF}
	return k.withSubstate(liqID, LockMutable, 0, func(liqPayload []byte) ([]byte, error) {
		var liq LiquidNonFungibleSubstate
		if err := decodeSubstate(liqPayload, &liq); err != nil {
			return nil, err
		}
		var inner error
		werr := k.withSubstate(lockID, LockMutable, 0, func(lockPayload []byte) ([]byte, error) {
			var locked LockedNonFungibleSubstate
			if err := decodeSubstate(lockPayload, &locked); err != nil {
				return nil, err
			}
			if inner = fn(&liq, &locked); inner != nil {
				return nil, inner
			}
			return encodeSubstate(&locked), nil
		})
		if werr != nil {
			return nil, werr
		}
		return encodeSubstate(&liq), nil
	})
}

// resourceDivisibility looks up the divisibility of a fungible resource.
func (k *Kernel) resourceDivisibility(resource NodeID) (uint8, error) {
	if resource.EntityType() != EntityFungibleResource {
		return 0, applicationError(fmt.Errorf("%w: %s is not fungible", ErrResourceMismatch, resource))
	}
	var mgr FungibleResourceManagerSubstate
	if err := k.peekTyped(SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetResourceManager}, &mgr); err != nil {
		return 0, applicationError(err)
	}
	return mgr.Divisibility, nil
}
