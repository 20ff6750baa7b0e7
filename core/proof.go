package core

// Proof state machine — immutable evidence of locked resource.
//
// A proof references one or more containers (buckets, vaults) whose locked
// substates hold the backing amounts. Proofs are shared, never cloned into
// new amounts: sharing re-references the same containers and bumps their lock
// counts. Dropping a proof releases its locks. Crossing a frame boundary
// flips the proof to restricted; a restricted proof may not cross again.

import (
	"fmt"
	"math/big"
)

// createProofFromContainer locks amount/ids on the container and builds a
// proof node owned by the current frame.
func (k *Kernel) createProofFromContainer(container NodeID, amount *Decimal, ids []NonFungibleLocalID, all bool) (NodeID, error) {
	info, err := k.containerInfo(container)
	if err != nil {
		return NodeID{}, err
	}
	proofID, err := k.AllocateNodeID(EntityProof)
	if err != nil {
		return NodeID{}, err
	}
	node := map[SubstateID][]byte{
		{Node: proofID, Module: ModuleMain, Offset: OffsetProofInfo}: encodeSubstate(&ProofInfoSubstate{
			ResourceAddress: info.ResourceAddress,
			ResourceType:    info.ResourceType,
		}),
	}
	if info.ResourceType == ResourceFungible {
		var locked Decimal
		if all {
			liq, err := k.containerLiquidAmount(container)
			if err != nil {
				return NodeID{}, err
			}
			locked = liq
		} else if amount != nil {
			locked = *amount
		} else {
			return NodeID{}, applicationError(ErrInvalidAmount)
		}
		if !locked.IsPositive() {
			return NodeID{}, applicationError(fmt.Errorf("%w: proof of empty amount", ErrInvalidAmount))
		}
		if err := k.mutateContainerFungible(container, func(liq *LiquidFungibleSubstate, lk *LockedFungibleSubstate) error {
			return lockFungibleAmount(liq, lk, locked, DecimalScale)
		}); err != nil {
			return NodeID{}, asApplicationError(err)
		}
		node[SubstateID{Node: proofID, Module: ModuleMain, Offset: OffsetProofFungible}] = encodeSubstate(&FungibleProofSubstate{
			Total:    locked,
			Evidence: []ProofEvidence{{Container: container, Amount: locked}},
		})
	} else {
		var lockIDs []NonFungibleLocalID
		if all {
			liq, err := k.containerLiquidIDs(container)
			if err != nil {
				return NodeID{}, err
			}
			lockIDs = liq
		} else if len(ids) > 0 {
			lockIDs = ids
		} else if amount != nil {
			liq, err := k.containerLiquidIDs(container)
			if err != nil {
				return NodeID{}, err
			}
			n := new(big.Int).Quo(amount.raw(), decScaleFactor).Int64()
			if n <= 0 || int64(len(liq)) < n {
				return NodeID{}, applicationError(ErrInsufficientBalance)
			}
			lockIDs = liq[:n]
		}
		if len(lockIDs) == 0 {
			return NodeID{}, applicationError(fmt.Errorf("%w: proof of empty id set", ErrInvalidAmount))
		}
		if err := k.mutateContainerNonFungible(container, func(liq *LiquidNonFungibleSubstate, lk *LockedNonFungibleSubstate) error {
			return lockNonFungibleIDs(liq, lk, lockIDs)
		}); err != nil {
			return NodeID{}, asApplicationError(err)
		}
		idSet := make(map[string]bool, len(lockIDs))
		strs := make([]string, 0, len(lockIDs))
		for _, id := range lockIDs {
			idSet[id.String()] = true
			strs = append(strs, id.String())
		}
		node[SubstateID{Node: proofID, Module: ModuleMain, Offset: OffsetProofNonFungible}] = encodeSubstate(&NonFungibleProofSubstate{
			IDs:      idSet,
			Evidence: []ProofEvidence{{Container: container, IDs: strs}},
		})
	}
	if err := k.CreateNode(proofID, node); err != nil {
		return NodeID{}, err
	}
	k.trace.Record("create_proof", container, info.ResourceAddress, DecimalZero, "")
	return proofID, nil
}

// BucketCreateProofOfAmount locks amount in a bucket and builds a proof.
func (k *Kernel) BucketCreateProofOfAmount(bucket NodeID, amount Decimal) (NodeID, error) {
	return k.createProofFromContainer(bucket, &amount, nil, false)
}

// BucketCreateProofOfAll locks the bucket's liquid contents.
func (k *Kernel) BucketCreateProofOfAll(bucket NodeID) (NodeID, error) {
	return k.createProofFromContainer(bucket, nil, nil, true)
}

// BucketCreateProofOfIDs locks the named ids.
func (k *Kernel) BucketCreateProofOfIDs(bucket NodeID, ids []NonFungibleLocalID) (NodeID, error) {
	return k.createProofFromContainer(bucket, nil, ids, false)
}

// snapshotProof reads a proof into the evaluator's view.
func (k *Kernel) snapshotProof(proof NodeID) (proofSnapshot, error) {
	var info ProofInfoSubstate
	if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofInfo}, &info); err != nil {
		return proofSnapshot{}, applicationError(err)
	}
	snap := proofSnapshot{Resource: info.ResourceAddress}
	if info.ResourceType == ResourceFungible {
		var body FungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofFungible}, &body); err != nil {
			return proofSnapshot{}, applicationError(err)
		}
		snap.Amount = body.Total
	} else {
		var body NonFungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofNonFungible}, &body); err != nil {
			return proofSnapshot{}, applicationError(err)
		}
		snap.IDs = body.IDs
		snap.Amount = NewDecimal(int64(len(body.IDs)))
	}
	return snap, nil
}

// ProofResource returns the proof's resource binding.
func (k *Kernel) ProofResource(proof NodeID) (NodeID, error) {
	var info ProofInfoSubstate
	if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofInfo}, &info); err != nil {
		return NodeID{}, applicationError(err)
	}
	return info.ResourceAddress, nil
}

// shareProof derives a new proof from an existing one without unlocking it:
// the source containers gain one more lock reference each, scoped to the
// requested amount or id subset.
func (k *Kernel) shareProof(source NodeID, amount *Decimal, ids []NonFungibleLocalID) (NodeID, error) {
	var info ProofInfoSubstate
	if err := k.peekTyped(SubstateID{Node: source, Module: ModuleMain, Offset: OffsetProofInfo}, &info); err != nil {
		return NodeID{}, applicationError(err)
	}
	proofID, err := k.AllocateNodeID(EntityProof)
	if err != nil {
		return NodeID{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: proofID, Module: ModuleMain, Offset: OffsetProofInfo}: encodeSubstate(&ProofInfoSubstate{
			ResourceAddress: info.ResourceAddress,
			ResourceType:    info.ResourceType,
		}),
	}
	if info.ResourceType == ResourceFungible {
		var body FungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: source, Module: ModuleMain, Offset: OffsetProofFungible}, &body); err != nil {
			return NodeID{}, applicationError(err)
		}
		total := body.Total
		if amount != nil {
			if amount.Cmp(body.Total) > 0 {
				return NodeID{}, applicationError(fmt.Errorf("%w: proof holds %s, requested %s", ErrInsufficientBalance, body.Total, amount))
			}
			total = *amount
		}
		// Re-lock total against the first evidence container; locked
		// amounts there already cover the source proof, so this lock
		// draws on the container's lock table, not its liquid balance.
		var evidence []ProofEvidence
		remaining := total
		for _, ev := range body.Evidence {
			if !remaining.IsPositive() {
				break
			}
			slice := ev.Amount
			if slice.Cmp(remaining) > 0 {
				slice = remaining
			}
			if err := k.relockFungible(ev.Container, slice); err != nil {
				return NodeID{}, err
			}
			evidence = append(evidence, ProofEvidence{Container: ev.Container, Amount: slice})
			var subErr error
			remaining, subErr = remaining.Sub(slice)
			if subErr != nil {
				return NodeID{}, applicationError(subErr)
			}
		}
		substates[SubstateID{Node: proofID, Module: ModuleMain, Offset: OffsetProofFungible}] = encodeSubstate(&FungibleProofSubstate{
			Total:    total,
			Evidence: evidence,
		})
	} else {
		var body NonFungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: source, Module: ModuleMain, Offset: OffsetProofNonFungible}, &body); err != nil {
			return NodeID{}, applicationError(err)
		}
		want := make(map[string]bool)
		if len(ids) > 0 {
			for _, id := range ids {
				if !body.IDs[id.String()] {
					return NodeID{}, applicationError(fmt.Errorf("%w: %s", ErrUnknownID, id))
				}
				want[id.String()] = true
			}
		} else {
			for id := range body.IDs {
				want[id] = true
			}
		}
		var evidence []ProofEvidence
		for _, ev := range body.Evidence {
			var slice []string
			for _, idStr := range ev.IDs {
				if want[idStr] {
					slice = append(slice, idStr)
				}
			}
			if len(slice) == 0 {
				continue
			}
			parsed := make([]NonFungibleLocalID, 0, len(slice))
			for _, s := range slice {
				id, err := ParseNonFungibleLocalID(s)
				if err != nil {
					panic(fmt.Sprintf("corrupt local id %q", s))
				}
				parsed = append(parsed, id)
			}
			if err := k.relockNonFungible(ev.Container, parsed); err != nil {
				return NodeID{}, err
			}
			evidence = append(evidence, ProofEvidence{Container: ev.Container, IDs: slice})
		}
		substates[SubstateID{Node: proofID, Module: ModuleMain, Offset: OffsetProofNonFungible}] = encodeSubstate(&NonFungibleProofSubstate{
			IDs:      want,
			Evidence: evidence,
		})
	}
	if err := k.CreateNode(proofID, substates); err != nil {
		return NodeID{}, err
	}
	return proofID, nil
}

// relockFungible adds a lock reference for amount; since amount never
// exceeds what the source proof already pins, no liquid is drawn.
func (k *Kernel) relockFungible(container NodeID, amount Decimal) error {
	return asApplicationError(k.mutateContainerFungible(container, func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error {
		return lockFungibleAmount(liq, locked, amount, DecimalScale)
	}))
}

func (k *Kernel) relockNonFungible(container NodeID, ids []NonFungibleLocalID) error {
	return asApplicationError(k.mutateContainerNonFungible(container, func(_ *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error {
		if locked.IDs == nil {
			locked.IDs = make(map[string]uint32)
		}
		for _, id := range ids {
			if locked.IDs[id.String()] == 0 {
				return fmt.Errorf("%w: %s not under lock", ErrUnknownID, id)
			}
			locked.IDs[id.String()]++
		}
		return nil
	}))
}

// dropProofNode releases the proof's evidence locks and destroys the node.
// Runs with system access: evidence containers may belong to ancestor
// frames during teardown.
func (k *Kernel) dropProofNode(frame *CallFrame, proof NodeID) error {
	k.sysDepth++
	defer func() { k.sysDepth-- }()
	var info ProofInfoSubstate
	if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofInfo}, &info); err != nil {
		return applicationError(err)
	}
	if info.ResourceType == ResourceFungible {
		var body FungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofFungible}, &body); err != nil {
			return applicationError(err)
		}
		for _, ev := range body.Evidence {
			if err := asApplicationError(k.mutateContainerFungible(ev.Container, func(liq *LiquidFungibleSubstate, locked *LockedFungibleSubstate) error {
				return unlockFungibleAmount(liq, locked, ev.Amount)
			})); err != nil {
				return err
			}
		}
	} else {
		var body NonFungibleProofSubstate
		if err := k.peekTyped(SubstateID{Node: proof, Module: ModuleMain, Offset: OffsetProofNonFungible}, &body); err != nil {
			return applicationError(err)
		}
		for _, ev := range body.Evidence {
			parsed := make([]NonFungibleLocalID, 0, len(ev.IDs))
			for _, s := range ev.IDs {
				id, err := ParseNonFungibleLocalID(s)
				if err != nil {
					panic(fmt.Sprintf("corrupt local id %q", s))
				}
				parsed = append(parsed, id)
			}
			if err := asApplicationError(k.mutateContainerNonFungible(ev.Container, func(liq *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate) error {
				unlockNonFungibleIDs(liq, locked, parsed)
				return nil
			})); err != nil {
				return err
			}
		}
	}
	_, err := k.dropOwnedNode(frame, proof)
	return err
}

// DropProof releases a proof owned by the current frame.
func (k *Kernel) DropProof(proof NodeID) error {
	frame := k.frameOwning(proof)
	if frame == nil {
		return kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, proof))
	}
	return k.dropProofNode(frame, proof)
}
