package core

// Node and substate model.
//
// A node is a collection of substates addressed by (node id, module, offset),
// with an optional sort key for key-value spaces (metadata, non-fungible data
// tables, KV-store entries). Payloads are stored as encoded bytes; each node
// kind exposes typed decode/encode helpers further down.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// ModuleID partitions a node's substates.
type ModuleID uint8

const (
	ModuleMain ModuleID = iota
	ModuleMetadata
	ModuleAccessRules
	ModuleRoyalty
	ModuleTypeInfo
)

func (m ModuleID) String() string {
	switch m {
	case ModuleMain:
		return "Main"
	case ModuleMetadata:
		return "Metadata"
	case ModuleAccessRules:
		return "AccessRules"
	case ModuleRoyalty:
		return "Royalty"
	case ModuleTypeInfo:
		return "TypeInfo"
	default:
		return fmt.Sprintf("Module(%d)", uint8(m))
	}
}

// SubstateOffset selects a substate within a module. Variants are
// node-type-specific; the numeric space is shared so ids stay compact.
type SubstateOffset uint16

const (
	OffsetTypeInfo SubstateOffset = iota

	OffsetPackageInfo
	OffsetPackageCode
	OffsetPackageRoyaltyConfig

	OffsetResourceManager
	OffsetResourceManagerTotalSupply
	OffsetNonFungibleData // sort-keyed by local id

	OffsetVaultInfo
	OffsetVaultLiquidFungible
	OffsetVaultLockedFungible
	OffsetVaultLiquidNonFungible
	OffsetVaultLockedNonFungible

	OffsetBucketInfo
	OffsetBucketLiquidFungible
	OffsetBucketLockedFungible
	OffsetBucketLiquidNonFungible
	OffsetBucketLockedNonFungible

	OffsetProofInfo
	OffsetProofFungible
	OffsetProofNonFungible

	OffsetWorktop
	OffsetAuthZone

	OffsetComponentState
	OffsetComponentRoyaltyAccumulator

	OffsetKeyValueEntry // sort-keyed
	OffsetMetadataEntry // sort-keyed
	OffsetRoleAssignment

	OffsetCurrentEpoch
)

// SubstateID is the full address of one substate.
type SubstateID struct {
	Node    NodeID
	Module  ModuleID
	Offset  SubstateOffset
	SortKey []byte
}

// Key returns the canonical byte encoding used as the store/map key:
// node || module || offset(le16) || sort key.
func (s SubstateID) Key() []byte {
	out := make([]byte, 0, NodeIDLength+3+len(s.SortKey))
	out = append(out, s.Node[:]...)
	out = append(out, byte(s.Module))
	var off [2]byte
	binary.LittleEndian.PutUint16(off[:], uint16(s.Offset))
	out = append(out, off[:]...)
	out = append(out, s.SortKey...)
	return out
}

func (s SubstateID) String() string {
	if len(s.SortKey) > 0 {
		return fmt.Sprintf("%s/%s/%d/%x", s.Node, s.Module, s.Offset, s.SortKey)
	}
	return fmt.Sprintf("%s/%s/%d", s.Node, s.Module, s.Offset)
}

// substateKeyPrefix is the Key() prefix shared by every sort key under one
// (node, module, offset) space; used for range scans.
func substateKeyPrefix(node NodeID, module ModuleID, offset SubstateOffset) []byte {
	return SubstateID{Node: node, Module: module, Offset: offset}.Key()
}

// -----------------------------------------------------------------------------
// Typed substates. Persisted payloads are JSON-encoded; the manifest value
// codec (codec.go) is reserved for the wire contract that is fixed externally.
// -----------------------------------------------------------------------------

// TypeInfoSubstate describes what a node is.
type TypeInfoSubstate struct {
	PackageAddress NodeID `json:"package_address"`
	BlueprintName  string `json:"blueprint_name"`
	Global         bool   `json:"global"`
	// OuterObject links an inner object (e.g. a vault) to the resource
	// manager or component that defines its behaviour.
	OuterObject NodeID `json:"outer_object,omitempty"`
}

// PackageInfoSubstate carries the blueprint schemas of a published package.
type PackageInfoSubstate struct {
	Blueprints map[string]BlueprintSchema `json:"blueprints"`
}

// BlueprintSchema declares a blueprint's callable surface.
type BlueprintSchema struct {
	Functions []string `json:"functions"` // callable without a receiver
	Methods   []string `json:"methods"`   // require a component receiver
}

// PackageCodeSubstate holds the raw code blob (wasm or the native marker).
type PackageCodeSubstate struct {
	Code []byte `json:"code"`
}

// PackageRoyaltyConfigSubstate maps blueprint → function → royalty amount.
// Vault is the XRD accumulator credited on commit; created at publish time
// when any royalty is configured.
type PackageRoyaltyConfigSubstate struct {
	Config map[string]map[string]Decimal `json:"config,omitempty"`
	Vault  NodeID                        `json:"vault,omitempty"`
}

// FungibleResourceManagerSubstate is the Main substate of a fungible resource.
type FungibleResourceManagerSubstate struct {
	Divisibility     uint8 `json:"divisibility"`
	TrackTotalSupply bool  `json:"track_total_supply"`
}

// TotalSupplySubstate tracks minted-minus-burned when enabled.
type TotalSupplySubstate struct {
	Amount Decimal `json:"amount"`
}

// NonFungibleResourceManagerSubstate is the Main substate of a non-fungible
// resource.
type NonFungibleResourceManagerSubstate struct {
	IDKind           NonFungibleIDKind `json:"id_kind"`
	TrackTotalSupply bool              `json:"track_total_supply"`
	MutableFields    []string          `json:"mutable_fields,omitempty"`
}

// NonFungibleDataSubstate is one entry of the per-id data table.
type NonFungibleDataSubstate struct {
	Data []byte `json:"data"` // encoded Value
}

// VaultInfoSubstate fixes the resource a vault (or bucket) holds.
type VaultInfoSubstate struct {
	ResourceAddress NodeID       `json:"resource_address"`
	ResourceType    ResourceType `json:"resource_type"`
	Frozen          bool         `json:"frozen,omitempty"`
}

// LiquidFungibleSubstate is the free balance of a fungible vault or bucket.
type LiquidFungibleSubstate struct {
	Amount Decimal `json:"amount"`
}

// LockedFungibleSubstate counts outstanding proof locks per locked amount.
type LockedFungibleSubstate struct {
	Amounts map[string]uint32 `json:"amounts,omitempty"` // Decimal string → count
}

// LiquidNonFungibleSubstate is the free id set of a non-fungible vault/bucket.
type LiquidNonFungibleSubstate struct {
	IDs map[string]bool `json:"ids,omitempty"` // canonical local id → present
}

// LockedNonFungibleSubstate counts outstanding proof locks per id.
type LockedNonFungibleSubstate struct {
	IDs map[string]uint32 `json:"ids,omitempty"`
}

// ProofInfoSubstate fixes a proof's resource and restriction flag.
type ProofInfoSubstate struct {
	ResourceAddress NodeID       `json:"resource_address"`
	ResourceType    ResourceType `json:"resource_type"`
	Restricted      bool         `json:"restricted"`
}

// ProofEvidence names one container a proof holds a lock against.
type ProofEvidence struct {
	Container NodeID   `json:"container"`
	Amount    Decimal  `json:"amount,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// FungibleProofSubstate is the evidence body of a fungible proof.
type FungibleProofSubstate struct {
	Total    Decimal         `json:"total"`
	Evidence []ProofEvidence `json:"evidence"`
}

// NonFungibleProofSubstate is the evidence body of a non-fungible proof.
type NonFungibleProofSubstate struct {
	IDs      map[string]bool `json:"ids"`
	Evidence []ProofEvidence `json:"evidence"`
}

// WorktopSubstate maps resource address → bucket node holding it.
type WorktopSubstate struct {
	Buckets map[NodeID]NodeID `json:"buckets,omitempty"`
}

// AuthZoneSubstate is the ordered proof stack of one call frame. Virtual
// non-fungibles are signer badges injected by the executor on the root zone;
// they satisfy Require rules without a backing container.
type AuthZoneSubstate struct {
	Proofs             []NodeID              `json:"proofs,omitempty"`
	VirtualNonFungibles []NonFungibleGlobalID `json:"virtual_non_fungibles,omitempty"`
}

// ComponentStateSubstate is the encoded application state of a component.
type ComponentStateSubstate struct {
	State []byte `json:"state"` // encoded Value
}

// ComponentRoyaltySubstate accumulates royalties owed to the component owner.
type ComponentRoyaltySubstate struct {
	Vault NodeID `json:"vault"`
}

// KeyValueEntrySubstate is one owned-value entry of a KV store.
type KeyValueEntrySubstate struct {
	Value []byte   `json:"value"`
	Owned []NodeID `json:"owned,omitempty"`
}

// MetadataEntrySubstate is one metadata key's value.
type MetadataEntrySubstate struct {
	Value string `json:"value"`
}

// RoleAssignmentSubstate is the role-list form of access control: the owner
// rule plus named roles, each guarded by an access rule.
type RoleAssignmentSubstate struct {
	Owner AccessRule            `json:"owner"`
	Roles map[string]AccessRule `json:"roles,omitempty"`
}

// CurrentEpochSubstate is the system clock consulted by envelope validation.
type CurrentEpochSubstate struct {
	Epoch uint64 `json:"epoch"`
}

// -----------------------------------------------------------------------------
// Encode/decode helpers. Marshalling these structs cannot fail (no channels,
// no cycles), so encode panics on error as a kernel bug.
// -----------------------------------------------------------------------------

func encodeSubstate(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("substate encode: %v", err))
	}
	return b
}

func decodeSubstate(b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("substate decode: %w", err)
	}
	return nil
}
