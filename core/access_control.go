package core

// Owner-gated mutation of a global entity's metadata and role assignments.
// These are kernel services invoked by the manifest's access-control
// instructions; each verifies the entity's owner rule against the proofs
// currently in scope before touching the substate.

import "fmt"

// checkOwner evaluates the node's owner rule against the current auth zones.
func (k *Kernel) checkOwner(node NodeID) error {
	var roles RoleAssignmentSubstate
	rolesID := SubstateID{Node: node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}
	payload, ok := k.track.GetSubstate(rolesID)
	if !ok {
		return moduleError(&AuthError{Rule: DenyAll(), Actor: node.String()})
	}
	if err := decodeSubstate(payload, &roles); err != nil {
		return moduleError(err)
	}
	proofs, err := k.collectAuthProofs(k.CurrentFrame())
	if err != nil {
		return err
	}
	if !evaluateRule(roles.Owner, proofs, &roles) {
		return moduleError(&AuthError{Rule: roles.Owner, Actor: node.String()})
	}
	return nil
}

// SetMetadata writes one metadata entry, owner-gated.
func (k *Kernel) SetMetadata(node NodeID, key, value string) error {
	if err := k.checkOwner(node); err != nil {
		return err
	}
	id := SubstateID{Node: node, Module: ModuleMetadata, Offset: OffsetMetadataEntry, SortKey: []byte(key)}
	if err := k.track.SetKeyValue(id, encodeSubstate(&MetadataEntrySubstate{Value: value})); err != nil {
		return kernelError(err)
	}
	return nil
}

// GetMetadata reads one metadata entry.
func (k *Kernel) GetMetadata(node NodeID, key string) (string, bool) {
	id := SubstateID{Node: node, Module: ModuleMetadata, Offset: OffsetMetadataEntry, SortKey: []byte(key)}
	payload, ok := k.track.GetSubstate(id)
	if !ok {
		return "", false
	}
	var entry MetadataEntrySubstate
	if err := decodeSubstate(payload, &entry); err != nil {
		return "", false
	}
	return entry.Value, true
}

// SetRole assigns a named role's rule, owner-gated.
func (k *Kernel) SetRole(node NodeID, role string, rule AccessRule) error {
	if err := k.checkOwner(node); err != nil {
		return err
	}
	if role == "" {
		return applicationError(fmt.Errorf("role name must not be empty"))
	}
	rolesID := SubstateID{Node: node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}
	return asApplicationError(k.withSubstate(rolesID, LockMutable, 0, func(payload []byte) ([]byte, error) {
		var roles RoleAssignmentSubstate
		if err := decodeSubstate(payload, &roles); err != nil {
			return nil, err
		}
		if roles.Roles == nil {
			roles.Roles = make(map[string]AccessRule)
		}
		roles.Roles[role] = rule
		return encodeSubstate(&roles), nil
	}))
}

// SetOwnerRole replaces the owner rule itself, owner-gated.
func (k *Kernel) SetOwnerRole(node NodeID, rule AccessRule) error {
	if err := k.checkOwner(node); err != nil {
		return err
	}
	rolesID := SubstateID{Node: node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}
	return asApplicationError(k.withSubstate(rolesID, LockMutable, 0, func(payload []byte) ([]byte, error) {
		var roles RoleAssignmentSubstate
		if err := decodeSubstate(payload, &roles); err != nil {
			return nil, err
		}
		roles.Owner = rule
		return encodeSubstate(&roles), nil
	}))
}
