package core

// Resource managers — the mint/burn/recall authorities for fungible and
// non-fungible resources. Creation runs as a kernel service on behalf of the
// resource package; mint, burn, recall and data updates are real method
// invocations so the auth module guards them with the resource's roles.

import (
	"fmt"
)

// CreateFungibleResource builds and globalizes a fungible resource manager.
// With an initial supply, the minted amount is returned in a bucket owned by
// the current frame.
func (k *Kernel) CreateFungibleResource(divisibility uint8, trackTotalSupply bool, initialSupply *Decimal, roles RoleAssignmentSubstate, metadata map[string]string) (NodeID, NodeID, error) {
	if divisibility > DecimalScale {
		return NodeID{}, NodeID{}, applicationError(fmt.Errorf("divisibility %d out of range [0,%d]", divisibility, DecimalScale))
	}
	resource, err := k.AllocateNodeID(EntityFungibleResource)
	if err != nil {
		return NodeID{}, NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: resource, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: ResourcePackage,
			BlueprintName:  "FungibleResourceManager",
		}),
		{Node: resource, Module: ModuleMain, Offset: OffsetResourceManager}: encodeSubstate(&FungibleResourceManagerSubstate{
			Divisibility:     divisibility,
			TrackTotalSupply: trackTotalSupply,
		}),
	}
	if trackTotalSupply {
		supply := DecimalZero
		if initialSupply != nil {
			supply = *initialSupply
		}
		substates[SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetResourceManagerTotalSupply}] = encodeSubstate(&TotalSupplySubstate{Amount: supply})
	}
	if err := k.CreateNode(resource, substates); err != nil {
		return NodeID{}, NodeID{}, err
	}
	if err := k.Globalize(resource, roles, metadata); err != nil {
		return NodeID{}, NodeID{}, err
	}

	var bucket NodeID
	if initialSupply != nil {
		if initialSupply.IsNegative() || !initialSupply.CheckScale(divisibility) {
			return NodeID{}, NodeID{}, applicationError(ErrInvalidAmount)
		}
		bucket, err = k.NewBucket(resource, ResourceFungible)
		if err != nil {
			return NodeID{}, NodeID{}, err
		}
		if err := k.bucketPutFungible(bucket, *initialSupply); err != nil {
			return NodeID{}, NodeID{}, err
		}
		k.trace.Record("mint", resource, resource, *initialSupply, "initial supply")
	}
	k.log.WithField("resource", resource.String()).Info("fungible resource created")
	return resource, bucket, nil
}

// CreateNonFungibleResource builds and globalizes a non-fungible resource
// manager, optionally minting an initial id set.
func (k *Kernel) CreateNonFungibleResource(idKind NonFungibleIDKind, mutableFields []string, initial map[string][]byte, roles RoleAssignmentSubstate, metadata map[string]string) (NodeID, NodeID, error) {
	resource, err := k.AllocateNodeID(EntityNonFungibleResource)
	if err != nil {
		return NodeID{}, NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: resource, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: ResourcePackage,
			BlueprintName:  "NonFungibleResourceManager",
		}),
		{Node: resource, Module: ModuleMain, Offset: OffsetResourceManager}: encodeSubstate(&NonFungibleResourceManagerSubstate{
			IDKind:           idKind,
			TrackTotalSupply: true,
			MutableFields:    mutableFields,
		}),
		{Node: resource, Module: ModuleMain, Offset: OffsetResourceManagerTotalSupply}: encodeSubstate(&TotalSupplySubstate{
			Amount: NewDecimal(int64(len(initial))),
		}),
	}
	if err := k.CreateNode(resource, substates); err != nil {
		return NodeID{}, NodeID{}, err
	}
	if err := k.Globalize(resource, roles, metadata); err != nil {
		return NodeID{}, NodeID{}, err
	}

	var bucket NodeID
	if len(initial) > 0 {
		var ids []NonFungibleLocalID
		for idStr, data := range initial {
			id, err := ParseNonFungibleLocalID(idStr)
			if err != nil {
				return NodeID{}, NodeID{}, applicationError(err)
			}
			if !id.MatchesKind(idKind) {
				return NodeID{}, NodeID{}, applicationError(fmt.Errorf("%w: id %s does not match resource id kind", ErrUnknownID, id))
			}
			entry := SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetNonFungibleData, SortKey: []byte(idStr)}
			if err := k.track.SetKeyValue(entry, encodeSubstate(&NonFungibleDataSubstate{Data: data})); err != nil {
				return NodeID{}, NodeID{}, kernelError(err)
			}
			ids = append(ids, id)
		}
		bucket, err = k.NewBucket(resource, ResourceNonFungible)
		if err != nil {
			return NodeID{}, NodeID{}, err
		}
		if err := k.bucketPutNonFungible(bucket, ids); err != nil {
			return NodeID{}, NodeID{}, err
		}
		k.trace.Record("mint", resource, resource, NewDecimal(int64(len(ids))), "initial supply")
	}
	k.log.WithField("resource", resource.String()).Info("non-fungible resource created")
	return resource, bucket, nil
}

// adjustTotalSupply applies a mint (+) or burn (−) delta when tracking is on.
func (k *Kernel) adjustTotalSupply(resource NodeID, delta Decimal, burn bool) error {
	id := SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetResourceManagerTotalSupply}
	if _, ok := k.peekSubstate(id); !ok {
		return nil // supply not tracked
	}
	return asApplicationError(k.withSubstate(id, LockMutable, 0, func(payload []byte) ([]byte, error) {
		var ts TotalSupplySubstate
		if err := decodeSubstate(payload, &ts); err != nil {
			return nil, err
		}
		var err error
		if burn {
			ts.Amount, err = ts.Amount.Sub(delta)
		} else {
			ts.Amount, err = ts.Amount.Add(delta)
		}
		if err != nil {
			return nil, err
		}
		if ts.Amount.IsNegative() {
			return nil, fmt.Errorf("total supply underflow")
		}
		return encodeSubstate(&ts), nil
	}))
}

// TotalSupply reads the tracked supply, if any.
func (k *Kernel) TotalSupply(resource NodeID) (Decimal, bool) {
	var ts TotalSupplySubstate
	id := SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetResourceManagerTotalSupply}
	if err := k.peekTyped(id, &ts); err != nil {
		return DecimalZero, false
	}
	return ts.Amount, true
}

// -----------------------------------------------------------------------------
// Native method bodies (guarded by the auth module via methodRoleTable)
// -----------------------------------------------------------------------------

// resourceManagerMintFungible mints args[0] (Decimal) into a new bucket.
func resourceManagerMintFungible(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("mint expects (Decimal)"))
	}
	amount := args[0].Decimal
	var mgr FungibleResourceManagerSubstate
	if err := k.peekTyped(SubstateID{Node: actor.Node, Module: ModuleMain, Offset: OffsetResourceManager}, &mgr); err != nil {
		return Value{}, applicationError(err)
	}
	if amount.IsNegative() || amount.IsZero() || !amount.CheckScale(mgr.Divisibility) {
		return Value{}, applicationError(ErrInvalidAmount)
	}
	if err := k.adjustTotalSupply(actor.Node, amount, false); err != nil {
		return Value{}, err
	}
	bucket, err := k.NewBucket(actor.Node, ResourceFungible)
	if err != nil {
		return Value{}, err
	}
	if err := k.bucketPutFungible(bucket, amount); err != nil {
		return Value{}, err
	}
	k.trace.Record("mint", actor.Node, actor.Node, amount, "")
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// resourceManagerMintNonFungible mints a map of id → data.
func resourceManagerMintNonFungible(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindMap {
		return Value{}, applicationError(fmt.Errorf("mint expects (Map<NonFungibleLocalId, Array<U8>>)"))
	}
	var mgr NonFungibleResourceManagerSubstate
	if err := k.peekTyped(SubstateID{Node: actor.Node, Module: ModuleMain, Offset: OffsetResourceManager}, &mgr); err != nil {
		return Value{}, applicationError(err)
	}
	var ids []NonFungibleLocalID
	for i := 0; i+1 < len(args[0].Fields); i += 2 {
		id := args[0].Fields[i].NFID
		if !id.MatchesKind(mgr.IDKind) {
			return Value{}, applicationError(fmt.Errorf("%w: id %s does not match resource id kind", ErrUnknownID, id))
		}
		entry := SubstateID{Node: actor.Node, Module: ModuleMain, Offset: OffsetNonFungibleData, SortKey: []byte(id.String())}
		if _, exists := k.track.GetSubstate(entry); exists {
			return Value{}, applicationError(fmt.Errorf("non-fungible %s already minted", id))
		}
		data := valueToBytes(args[0].Fields[i+1])
		if err := k.track.SetKeyValue(entry, encodeSubstate(&NonFungibleDataSubstate{Data: data})); err != nil {
			return Value{}, kernelError(err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return Value{}, applicationError(ErrInvalidAmount)
	}
	if err := k.adjustTotalSupply(actor.Node, NewDecimal(int64(len(ids))), false); err != nil {
		return Value{}, err
	}
	bucket, err := k.NewBucket(actor.Node, ResourceNonFungible)
	if err != nil {
		return Value{}, err
	}
	if err := k.bucketPutNonFungible(bucket, ids); err != nil {
		return Value{}, err
	}
	k.trace.Record("mint", actor.Node, actor.Node, NewDecimal(int64(len(ids))), "")
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// resourceManagerBurn consumes a bucket of the manager's own resource.
func resourceManagerBurn(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindBucket {
		return Value{}, applicationError(fmt.Errorf("burn expects (Bucket)"))
	}
	bucket := args[0].Address
	resource, resourceType, err := k.BucketResource(bucket)
	if err != nil {
		return Value{}, err
	}
	if resource != actor.Node {
		return Value{}, applicationError(fmt.Errorf("%w: bucket holds %s", ErrResourceMismatch, resource))
	}
	if resourceType == ResourceFungible {
		amount, err := k.containerLiquidAmount(bucket)
		if err != nil {
			return Value{}, err
		}
		if err := asApplicationError(k.mutateContainerFungible(bucket, func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error {
			if len(locked.Amounts) > 0 {
				return fmt.Errorf("%w: bucket under proof lock", ErrResourceNotEmpty)
			}
			liq.Amount = DecimalZero
			return nil
		})); err != nil {
			return Value{}, err
		}
		if err := k.adjustTotalSupply(resource, amount, true); err != nil {
			return Value{}, err
		}
		k.trace.Record("burn", actor.Node, resource, amount, "")
	} else {
		ids, err := k.containerLiquidIDs(bucket)
		if err != nil {
			return Value{}, err
		}
		if err := asApplicationError(k.mutateContainerNonFungible(bucket, func(liq *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error {
			if len(locked.IDs) > 0 {
				return fmt.Errorf("%w: bucket under proof lock", ErrResourceNotEmpty)
			}
			liq.IDs = nil
			return nil
		})); err != nil {
			return Value{}, err
		}
		for _, id := range ids {
			entry := SubstateID{Node: resource, Module: ModuleMain, Offset: OffsetNonFungibleData, SortKey: []byte(id.String())}
			if err := k.track.SetKeyValue(entry, encodeSubstate(&NonFungibleDataSubstate{})); err != nil {
				return Value{}, kernelError(err)
			}
		}
		if err := k.adjustTotalSupply(resource, NewDecimal(int64(len(ids))), true); err != nil {
			return Value{}, err
		}
		k.trace.Record("burn", actor.Node, resource, NewDecimal(int64(len(ids))), "")
	}
	if err := k.BucketDropEmpty(bucket); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}

// resourceManagerRecall force-withdraws from a vault of this resource.
func resourceManagerRecall(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindAddress || args[1].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("recall expects (Address, Decimal)"))
	}
	vault := args[0].Address
	info, err := k.containerInfo(vault)
	if err != nil {
		return Value{}, err
	}
	if info.ResourceAddress != actor.Node {
		return Value{}, applicationError(fmt.Errorf("%w: vault holds %s", ErrResourceMismatch, info.ResourceAddress))
	}
	bucket, err := k.VaultRecall(vault, args[1].Decimal)
	if err != nil {
		return Value{}, err
	}
	k.trace.Record("recall", vault, actor.Node, args[1].Decimal, "")
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// resourceManagerFreeze toggles a vault's freeze flag.
func resourceManagerFreeze(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindAddress || args[1].Kind != KindBool {
		return Value{}, applicationError(fmt.Errorf("freeze expects (Address, Bool)"))
	}
	vault := args[0].Address
	info, err := k.containerInfo(vault)
	if err != nil {
		return Value{}, err
	}
	if info.ResourceAddress != actor.Node {
		return Value{}, applicationError(fmt.Errorf("%w: vault holds %s", ErrResourceMismatch, info.ResourceAddress))
	}
	if err := k.VaultSetFrozen(vault, args[1].Bool); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}

// resourceManagerUpdateData rewrites a mutable non-fungible data entry.
func resourceManagerUpdateData(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindNonFungibleLocalID {
		return Value{}, applicationError(fmt.Errorf("update_non_fungible_data expects (NonFungibleLocalId, Array<U8>)"))
	}
	id := args[0].NFID
	entry := SubstateID{Node: actor.Node, Module: ModuleMain, Offset: OffsetNonFungibleData, SortKey: []byte(id.String())}
	if _, ok := k.track.GetSubstate(entry); !ok {
		return Value{}, applicationError(fmt.Errorf("%w: %s", ErrUnknownID, id))
	}
	if err := k.track.SetKeyValue(entry, encodeSubstate(&NonFungibleDataSubstate{Data: valueToBytes(args[1])})); err != nil {
		return Value{}, kernelError(err)
	}
	return TupleValue(), nil
}

// resourceManagerGetTotalSupply returns the tracked supply.
func resourceManagerGetTotalSupply(k *Kernel, actor Actor, args []Value) (Value, error) {
	supply, ok := k.TotalSupply(actor.Node)
	if !ok {
		return Value{}, applicationError(fmt.Errorf("total supply not tracked for %s", actor.Node))
	}
	return DecimalValue(supply), nil
}

// valueToBytes flattens an Array<U8> value into raw bytes.
func valueToBytes(v Value) []byte {
	if v.Kind != KindArray || v.ElementKind != KindU8 {
		return nil
	}
	out := make([]byte, 0, len(v.Fields))
	for _, f := range v.Fields {
		if f.Int != nil {
			out = append(out, byte(f.Int.Uint64()))
		}
	}
	return out
}

// bytesValue builds an Array<U8> from raw bytes.
func bytesValue(b []byte) Value {
	fields := make([]Value, len(b))
	for i, c := range b {
		fields[i] = U8Value(c)
	}
	return ArrayValue(KindU8, fields...)
}
