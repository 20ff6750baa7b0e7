package core

// Auth zone — the per-frame proof stack consulted by access-rule evaluation.
//
// Each frame owns one zone. Evaluation walks the current zone and then the
// ancestors', so proofs pushed by a caller remain visible to callees. Zones
// are drained automatically when their frame drops.

import "fmt"

func (k *Kernel) authZoneSubstateID(zone NodeID) SubstateID {
	return SubstateID{Node: zone, Module: ModuleMain, Offset: OffsetAuthZone}
}

func (k *Kernel) readAuthZone(zone NodeID) (*AuthZoneSubstate, error) {
	node := k.heap.Get(zone)
	if node == nil {
		return nil, kernelError(fmt.Errorf("auth zone %s: %w", zone, ErrNotFound))
	}
	payload, ok := node.Get(k.authZoneSubstateID(zone))
	if !ok {
		return nil, kernelError(&TrackError{Kind: TrackNotFound, ID: k.authZoneSubstateID(zone)})
	}
	var az AuthZoneSubstate
	if err := decodeSubstate(payload, &az); err != nil {
		return nil, kernelError(err)
	}
	return &az, nil
}

func (k *Kernel) writeAuthZone(zone NodeID, az *AuthZoneSubstate) error {
	node := k.heap.Get(zone)
	if node == nil {
		return kernelError(fmt.Errorf("auth zone %s: %w", zone, ErrNotFound))
	}
	node.Put(k.authZoneSubstateID(zone), encodeSubstate(az))
	return nil
}

// AuthZonePush appends an owned proof to the current frame's zone. The proof
// stays owned by the frame; the zone only lists it.
func (k *Kernel) AuthZonePush(proof NodeID) error {
	frame := k.CurrentFrame()
	if proof.EntityType() != EntityProof {
		return applicationError(fmt.Errorf("%w: %s is not a proof", ErrResourceMismatch, proof))
	}
	if !frame.Owns(proof) {
		return kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, proof))
	}
	az, err := k.readAuthZone(frame.authZone)
	if err != nil {
		return err
	}
	az.Proofs = append(az.Proofs, proof)
	return k.writeAuthZone(frame.authZone, az)
}

// AuthZonePop removes and returns the top proof.
func (k *Kernel) AuthZonePop() (NodeID, error) {
	frame := k.CurrentFrame()
	az, err := k.readAuthZone(frame.authZone)
	if err != nil {
		return NodeID{}, err
	}
	if len(az.Proofs) == 0 {
		return NodeID{}, applicationError(fmt.Errorf("auth zone is empty"))
	}
	top := az.Proofs[len(az.Proofs)-1]
	az.Proofs = az.Proofs[:len(az.Proofs)-1]
	if err := k.writeAuthZone(frame.authZone, az); err != nil {
		return NodeID{}, err
	}
	return top, nil
}

// AuthZoneClear drops every proof in the current frame's zone.
func (k *Kernel) AuthZoneClear() error {
	return k.drainAuthZone(k.CurrentFrame())
}

// drainAuthZone empties a frame's zone, dropping each proof.
func (k *Kernel) drainAuthZone(frame *CallFrame) error {
	if frame.authZone.IsZero() {
		return nil
	}
	az, err := k.readAuthZone(frame.authZone)
	if err != nil {
		return err
	}
	proofs := az.Proofs
	az.Proofs = nil
	if err := k.writeAuthZone(frame.authZone, az); err != nil {
		return err
	}
	for _, p := range proofs {
		if err := k.dropProofNode(frame, p); err != nil {
			return err
		}
	}
	return nil
}

// collectAuthProofs snapshots every proof visible from frame: its zone, then
// each ancestor's, root-most last, plus virtual signer badges.
func (k *Kernel) collectAuthProofs(frame *CallFrame) ([]proofSnapshot, error) {
	var out []proofSnapshot
	for f := frame; f != nil; f = f.parent {
		if f.authZone.IsZero() {
			continue
		}
		az, err := k.readAuthZone(f.authZone)
		if err != nil {
			return nil, err
		}
		for i := len(az.Proofs) - 1; i >= 0; i-- {
			snap, err := k.snapshotProof(az.Proofs[i])
			if err != nil {
				return nil, err
			}
			out = append(out, snap)
		}
		for _, v := range az.VirtualNonFungibles {
			out = append(out, proofSnapshot{
				Resource: v.Resource,
				Amount:   DecimalOne,
				IDs:      map[string]bool{v.Local.String(): true},
			})
		}
	}
	return out, nil
}

// AddVirtualSignerBadge injects a signer badge into the root frame's auth
// zone; used by the executor after signature verification.
func (k *Kernel) AddVirtualSignerBadge(badge NonFungibleGlobalID) error {
	root := k.RootFrame()
	az, err := k.readAuthZone(root.authZone)
	if err != nil {
		return err
	}
	az.VirtualNonFungibles = append(az.VirtualNonFungibles, badge)
	return k.writeAuthZone(root.authZone, az)
}

// CreateProofFromAuthZone composes a proof over the zone's proofs of one
// resource: everything, a fixed amount, or a fixed id set.
func (k *Kernel) CreateProofFromAuthZone(resource NodeID, amount *Decimal, ids []NonFungibleLocalID) (NodeID, error) {
	frame := k.CurrentFrame()
	az, err := k.readAuthZone(frame.authZone)
	if err != nil {
		return NodeID{}, err
	}
	// Find a zone proof of the resource to re-derive evidence from. Proofs
	// share locks; composing from the zone never locks new amounts beyond
	// what the source containers already hold.
	for i := len(az.Proofs) - 1; i >= 0; i-- {
		snap, err := k.snapshotProof(az.Proofs[i])
		if err != nil {
			return NodeID{}, err
		}
		if snap.Resource != resource {
			continue
		}
		return k.shareProof(az.Proofs[i], amount, ids)
	}
	return NodeID{}, applicationError(fmt.Errorf("%w: no proof of %s in auth zone", ErrNotFound, resource))
}
