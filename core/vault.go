package core

// Vault state machine — the persistent resource holder.
//
// Vaults are created by resource-manager logic, owned by components (or KV
// stores), and addressed by reference afterwards. Fee locking is the one
// operation with special lock semantics: it requires the vault's liquid
// substate to be untouched this transaction and force-writes the debit so it
// survives a revert.

import "fmt"

// NewVault creates a vault heap node bound to resource; it is owned by the
// current (resource-manager) frame until handed to its component.
func (k *Kernel) NewVault(resource NodeID, resourceType ResourceType) (NodeID, error) {
	entity := EntityFungibleVault
	if resourceType == ResourceNonFungible {
		entity = EntityNonFungibleVault
	}
	id, err := k.AllocateNodeID(entity)
	if err != nil {
		return NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: id, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: ResourcePackage,
			BlueprintName:  "Vault",
			OuterObject:    resource,
		}),
		{Node: id, Module: ModuleMain, Offset: OffsetVaultInfo}: encodeSubstate(&VaultInfoSubstate{
			ResourceAddress: resource,
			ResourceType:    resourceType,
		}),
	}
	if resourceType == ResourceFungible {
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetVaultLiquidFungible}] = encodeSubstate(&LiquidFungibleSubstate{})
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetVaultLockedFungible}] = encodeSubstate(&LockedFungibleSubstate{})
	} else {
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetVaultLiquidNonFungible}] = encodeSubstate(&LiquidNonFungibleSubstate{})
		substates[SubstateID{Node: id, Module: ModuleMain, Offset: OffsetVaultLockedNonFungible}] = encodeSubstate(&LockedNonFungibleSubstate{})
	}
	if err := k.CreateNode(id, substates); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

// VaultAmount returns the vault's liquid amount; repeated reads of an
// unmodified vault return the same value.
func (k *Kernel) VaultAmount(vault NodeID) (Decimal, error) {
	return k.containerLiquidAmount(vault)
}

// vaultGuard rejects operations on frozen vaults.
func (k *Kernel) vaultGuard(vault NodeID) error {
	info, err := k.containerInfo(vault)
	if err != nil {
		return err
	}
	if info.Frozen {
		return applicationError(fmt.Errorf("%w: %s", ErrVaultFrozen, vault))
	}
	return nil
}

// VaultTakeByAmount withdraws amount into a fresh bucket.
func (k *Kernel) VaultTakeByAmount(vault NodeID, amount Decimal) (NodeID, error) {
	if err := k.vaultGuard(vault); err != nil {
		return NodeID{}, err
	}
	info, err := k.containerInfo(vault)
	if err != nil {
		return NodeID{}, err
	}
	if info.ResourceType != ResourceFungible {
		return NodeID{}, applicationError(fmt.Errorf("%w: vault %s is non-fungible", ErrResourceMismatch, vault))
	}
	divisibility, err := k.resourceDivisibility(info.ResourceAddress)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.mutateContainerFungible(vault, func(liq *LiquidFungibleSubstate, _ *LockedFungibleSubstate) error {
		return liquidTakeByAmount(liq, amount, divisibility)
	}); err != nil {
		return NodeID{}, asApplicationError(err)
	}
	bucket, err := k.NewBucket(info.ResourceAddress, ResourceFungible)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.bucketPutFungible(bucket, amount); err != nil {
		return NodeID{}, err
	}
	k.trace.Record("vault_take", vault, info.ResourceAddress, amount, "")
	return bucket, nil
}

// VaultTakeByIDs withdraws the named non-fungibles into a fresh bucket.
func (k *Kernel) VaultTakeByIDs(vault NodeID, ids []NonFungibleLocalID) (NodeID, error) {
	if err := k.vaultGuard(vault); err != nil {
		return NodeID{}, err
	}
	info, err := k.containerInfo(vault)
	if err != nil {
		return NodeID{}, err
	}
	if info.ResourceType != ResourceNonFungible {
		return NodeID{}, applicationError(fmt.Errorf("%w: vault %s is fungible", ErrResourceMismatch, vault))
	}
	if err := k.mutateContainerNonFungible(vault, func(liq *LiquidNonFungibleSubstate, _ *LockedNonFungibleSubstate) error {
		return liquidTakeIDs(liq, ids)
	}); err != nil {
		return NodeID{}, asApplicationError(err)
	}
	bucket, err := k.NewBucket(info.ResourceAddress, ResourceNonFungible)
	if err != nil {
		return NodeID{}, err
	}
	if err := k.bucketPutNonFungible(bucket, ids); err != nil {
		return NodeID{}, err
	}
	k.trace.Record("vault_take", vault, info.ResourceAddress, NewDecimal(int64(len(ids))), "")
	return bucket, nil
}

// VaultPut deposits a bucket's liquid contents and drops the emptied bucket.
func (k *Kernel) VaultPut(vault, bucket NodeID) error {
	if err := k.vaultGuard(vault); err != nil {
		return err
	}
	info, err := k.containerInfo(vault)
	if err != nil {
		return err
	}
	bucketInfo, err := k.containerInfo(bucket)
	if err != nil {
		return err
	}
	if info.ResourceAddress != bucketInfo.ResourceAddress {
		return applicationError(fmt.Errorf("%w: %s vs %s", ErrResourceMismatch, info.ResourceAddress, bucketInfo.ResourceAddress))
	}
	if info.ResourceType == ResourceFungible {
		amount, err := k.containerLiquidAmount(bucket)
		if err != nil {
			return err
		}
		if err := k.mutateContainerFungible(bucket, func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error {
			if len(locked.Amounts) > 0 {
				return fmt.Errorf("%w: bucket %s has outstanding proof locks", ErrResourceNotEmpty, bucket)
			}
			liq.Amount = DecimalZero
			return nil
		}); err != nil {
			return asApplicationError(err)
		}
		if err := k.mutateContainerFungible(vault, func(liq *LiquidFungibleSubstate, _ *LockedFungibleSubstate) error {
			return liquidPut(liq, amount)
		}); err != nil {
			return asApplicationError(err)
		}
		k.trace.Record("vault_put", vault, info.ResourceAddress, amount, "")
	} else {
		ids, err := k.containerLiquidIDs(bucket)
		if err != nil {
			return err
		}
		if err := k.mutateContainerNonFungible(bucket, func(liq *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error {
			if len(locked.IDs) > 0 {
				return fmt.Errorf("%w: bucket %s has outstanding proof locks", ErrResourceNotEmpty, bucket)
			}
			liq.IDs = nil
			return nil
		}); err != nil {
			return asApplicationError(err)
		}
		if err := k.mutateContainerNonFungible(vault, func(liq *LiquidNonFungibleSubstate, _ *LockedNonFungibleSubstate) error {
			liquidPutIDs(liq, ids)
			return nil
		}); err != nil {
			return asApplicationError(err)
		}
		k.trace.Record("vault_put", vault, info.ResourceAddress, NewDecimal(int64(len(ids))), "")
	}
	return k.BucketDropEmpty(bucket)
}

// VaultLockFee moves amount from an XRD vault into the fee reserve. The
// liquid substate is acquired with the unmodified-base discipline — locking
// fees against a vault already touched this transaction is refused — and the
// debit is force-written.
func (k *Kernel) VaultLockFee(vault NodeID, amount Decimal, contingent bool) error {
	info, err := k.containerInfo(vault)
	if err != nil {
		return err
	}
	if info.ResourceAddress != XRDAddress {
		return applicationError(&FeeReserveError{Kind: FeeLockNotRadixToken})
	}
	liqID := SubstateID{Node: vault, Module: ModuleMain, Offset: OffsetVaultLiquidFungible}
	err = k.withSubstate(liqID, LockUnmodifiedBaseMutable, LockFlagForceWrite, func(payload []byte) ([]byte, error) {
		var liq LiquidFungibleSubstate
		if err := decodeSubstate(payload, &liq); err != nil {
			return nil, err
		}
		if liq.Amount.Cmp(amount) < 0 {
			return nil, &FeeReserveError{Kind: FeeInsufficientBalance}
		}
		rest, err := liq.Amount.Sub(amount)
		if err != nil {
			return nil, err
		}
		if err := k.fees.LockFee(vault, amount, contingent); err != nil {
			return nil, err
		}
		liq.Amount = rest
		return encodeSubstate(&liq), nil
	})
	if err != nil {
		return asApplicationError(err)
	}
	detail := "lock_fee"
	if contingent {
		detail = "lock_contingent_fee"
	}
	k.trace.Record(detail, vault, info.ResourceAddress, amount, "")
	return nil
}

// VaultRecall forcibly withdraws from a vault on behalf of the resource
// manager's recaller role; the auth check happens at the resource-manager
// method boundary.
func (k *Kernel) VaultRecall(vault NodeID, amount Decimal) (NodeID, error) {
	return k.VaultTakeByAmount(vault, amount)
}

// VaultCreateProofOfAmount locks amount in the vault and builds a proof.
func (k *Kernel) VaultCreateProofOfAmount(vault NodeID, amount Decimal) (NodeID, error) {
	return k.createProofFromContainer(vault, &amount, nil, false)
}

// VaultCreateProofOfAll locks the whole liquid balance.
func (k *Kernel) VaultCreateProofOfAll(vault NodeID) (NodeID, error) {
	return k.createProofFromContainer(vault, nil, nil, true)
}

// VaultSetFrozen toggles the freeze flag; guarded by the freezer role at the
// resource-manager boundary.
func (k *Kernel) VaultSetFrozen(vault NodeID, frozen bool) error {
	offs, err := offsetsFor(vault)
	if err != nil {
		return applicationError(err)
	}
	infoID := SubstateID{Node: vault, Module: ModuleMain, Offset: offs.info}
	return asApplicationError(k.withSubstate(infoID, LockMutable, 0, func(payload []byte) ([]byte, error) {
		var info VaultInfoSubstate
		if err := decodeSubstate(payload, &info); err != nil {
			return nil, err
		}
		info.Frozen = frozen
		return encodeSubstate(&info), nil
	}))
}
