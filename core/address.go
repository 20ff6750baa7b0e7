package core

// Node identifiers and global addresses.
//
// A NodeID is a 30-byte tag whose leading byte encodes the entity type. Global
// addresses are node ids of globalized entities; they render as bech32m with a
// human-readable prefix derived from the entity type. Transient entities
// (buckets, proofs, worktops, auth zones) render as hex for logs only.

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NodeIDLength is the byte length of every node id.
const NodeIDLength = 30

// EntityType is the leading byte of a NodeID.
type EntityType byte

const (
	EntityPackage             EntityType = 0x0d
	EntityFungibleResource    EntityType = 0x5d
	EntityNonFungibleResource EntityType = 0x5e
	EntityNormalComponent     EntityType = 0x0c
	EntityAccountComponent    EntityType = 0x0a
	EntityIdentityComponent   EntityType = 0x0b
	EntityVirtualAccount      EntityType = 0xd1
	EntityVirtualIdentity     EntityType = 0xd2
	EntityKeyValueStore       EntityType = 0xb0
	EntityFungibleVault       EntityType = 0x58
	EntityNonFungibleVault    EntityType = 0x59
	EntityBucket              EntityType = 0xf0
	EntityProof               EntityType = 0xf1
	EntityWorktop             EntityType = 0xf2
	EntityAuthZone            EntityType = 0xf3
	EntityTransactionRuntime  EntityType = 0xf4
	EntityLogger              EntityType = 0xf5
)

// NodeID identifies a node; the zero value is invalid.
type NodeID [NodeIDLength]byte

// EntityType returns the entity tag in the leading byte.
func (n NodeID) EntityType() EntityType { return EntityType(n[0]) }

// IsZero reports whether the id is the all-zero value.
func (n NodeID) IsZero() bool { return n == NodeID{} }

// IsGlobalEntity reports whether the entity type is one that may carry a
// global address once globalized.
func (n NodeID) IsGlobalEntity() bool {
	switch n.EntityType() {
	case EntityPackage, EntityFungibleResource, EntityNonFungibleResource,
		EntityNormalComponent, EntityAccountComponent, EntityIdentityComponent,
		EntityVirtualAccount, EntityVirtualIdentity:
		return true
	}
	return false
}

// IsTransient reports whether the node kind may never persist across the
// transaction boundary.
func (n NodeID) IsTransient() bool {
	switch n.EntityType() {
	case EntityBucket, EntityProof, EntityWorktop, EntityAuthZone,
		EntityTransactionRuntime, EntityLogger:
		return true
	}
	return false
}

// IsVault reports whether the node is a fungible or non-fungible vault.
func (n NodeID) IsVault() bool {
	t := n.EntityType()
	return t == EntityFungibleVault || t == EntityNonFungibleVault
}

// IsResourceManager reports whether the node is a resource manager.
func (n NodeID) IsResourceManager() bool {
	t := n.EntityType()
	return t == EntityFungibleResource || t == EntityNonFungibleResource
}

// NewNodeID builds a node id from an entity type and seed material. The 29
// trailing bytes are the truncated SHA-256 of the seed, which keeps ids
// content-derived and collision-resistant.
func NewNodeID(entity EntityType, seed []byte) NodeID {
	h := sha256.Sum256(seed)
	var id NodeID
	id[0] = byte(entity)
	copy(id[1:], h[:NodeIDLength-1])
	return id
}

func (n NodeID) hrp() string {
	switch n.EntityType() {
	case EntityPackage:
		return "package_sim"
	case EntityFungibleResource, EntityNonFungibleResource:
		return "resource_sim"
	case EntityAccountComponent, EntityVirtualAccount:
		return "account_sim"
	case EntityIdentityComponent, EntityVirtualIdentity:
		return "identity_sim"
	case EntityFungibleVault, EntityNonFungibleVault:
		return "internal_vault_sim"
	case EntityKeyValueStore:
		return "internal_keyvaluestore_sim"
	case EntityNormalComponent:
		return "component_sim"
	default:
		return ""
	}
}

// String renders global entities as bech32m and transient ids as raw hex.
func (n NodeID) String() string {
	hrp := n.hrp()
	if hrp == "" {
		return hex.EncodeToString(n[:])
	}
	s, err := bech32mEncode(hrp, n[:])
	if err != nil {
		return hex.EncodeToString(n[:])
	}
	return s
}

// MarshalText implements encoding.TextMarshaler so node ids can be JSON map
// keys. The text form is the raw hex of the id, not the bech32m address.
func (n NodeID) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(n[:])), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("decode node id: %w", err)
	}
	if len(raw) != NodeIDLength {
		return fmt.Errorf("node id must be %d bytes, got %d", NodeIDLength, len(raw))
	}
	copy(n[:], raw)
	return nil
}

// ParseAddress accepts either a bech32m address or a raw hex node id.
func ParseAddress(s string) (NodeID, error) {
	var id NodeID
	if _, data, err := bech32mDecode(s); err == nil {
		if len(data) != NodeIDLength {
			return id, fmt.Errorf("address payload must be %d bytes, got %d", NodeIDLength, len(data))
		}
		copy(id[:], data)
		return id, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != NodeIDLength {
		return id, fmt.Errorf("invalid address %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

// -----------------------------------------------------------------------------
// bech32m (BIP-350 variant) — no pack repo carries a bech32 library, so the
// checked encoder lives here; see DESIGN.md.
// -----------------------------------------------------------------------------

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

const bech32mConst = 0x2bc830a3

func bech32Polymod(values []byte) uint32 {
	gen := []uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func convertBits(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	var out []byte
	maxv := uint32(1<<toBits) - 1
	for _, b := range data {
		if uint32(b)>>fromBits != 0 {
			return nil, fmt.Errorf("invalid data byte %d", b)
		}
		acc = acc<<fromBits | uint32(b)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte(acc>>bits&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte(acc<<(toBits-bits)&maxv))
		}
	} else if bits >= fromBits || acc<<(toBits-bits)&maxv != 0 {
		return nil, fmt.Errorf("invalid padding")
	}
	return out, nil
}

func bech32mEncode(hrp string, data []byte) (string, error) {
	conv, err := convertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	values := append(bech32HrpExpand(hrp), conv...)
	polymod := bech32Polymod(append(values, 0, 0, 0, 0, 0, 0)) ^ bech32mConst
	var buf bytes.Buffer
	buf.WriteString(hrp)
	buf.WriteByte('1')
	for _, v := range conv {
		buf.WriteByte(bech32Charset[v])
	}
	for i := 0; i < 6; i++ {
		buf.WriteByte(bech32Charset[(polymod>>uint(5*(5-i)))&31])
	}
	return buf.String(), nil
}

func bech32mDecode(s string) (string, []byte, error) {
	pos := bytes.LastIndexByte([]byte(s), '1')
	if pos < 1 || pos+7 > len(s) {
		return "", nil, fmt.Errorf("invalid bech32 string")
	}
	hrp := s[:pos]
	var data []byte
	for i := pos + 1; i < len(s); i++ {
		d := bytes.IndexByte([]byte(bech32Charset), s[i])
		if d == -1 {
			return "", nil, fmt.Errorf("invalid character %q", s[i])
		}
		data = append(data, byte(d))
	}
	if bech32Polymod(append(bech32HrpExpand(hrp), data...)) != bech32mConst {
		return "", nil, fmt.Errorf("checksum mismatch")
	}
	out, err := convertBits(data[:len(data)-6], 5, 8, false)
	if err != nil {
		return "", nil, err
	}
	return hrp, out, nil
}

// -----------------------------------------------------------------------------
// Well-known genesis addresses
// -----------------------------------------------------------------------------

// Genesis node ids are content-derived from fixed seeds so every fresh ledger
// agrees on them without a bootstrap receipt exchange.
var (
	// XRDAddress is the native token resource manager.
	XRDAddress = NewNodeID(EntityFungibleResource, []byte("radiance:xrd"))

	// EcdsaSecp256k1Badge is the virtual signature badge resource: proofs of
	// its non-fungibles represent verified transaction signers.
	EcdsaSecp256k1Badge = NewNodeID(EntityNonFungibleResource, []byte("radiance:ecdsa_secp256k1"))

	// SystemBadge guards system-level operations such as epoch updates.
	SystemBadge = NewNodeID(EntityNonFungibleResource, []byte("radiance:system"))

	// PackagePackage hosts package publishing functions.
	PackagePackage = NewNodeID(EntityPackage, []byte("radiance:package:package"))

	// ResourcePackage hosts the fungible/non-fungible resource blueprints.
	ResourcePackage = NewNodeID(EntityPackage, []byte("radiance:package:resource"))

	// AccountPackage hosts the account blueprint.
	AccountPackage = NewNodeID(EntityPackage, []byte("radiance:package:account"))

	// FaucetPackage hosts the test faucet blueprint.
	FaucetPackage = NewNodeID(EntityPackage, []byte("radiance:package:faucet"))

	// FaucetComponent is the genesis faucet instance.
	FaucetComponent = NewNodeID(EntityNormalComponent, []byte("radiance:component:faucet"))

	// SystemComponent stores epoch and other system substates.
	SystemComponent = NewNodeID(EntityNormalComponent, []byte("radiance:component:system"))
)
