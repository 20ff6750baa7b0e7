package core

// Resource primitives: resource types, non-fungible ids, and the pure
// mutators over liquid/locked containers shared by buckets and vaults.
//
// Mutators never touch the store; they transform decoded substates and
// return detached resource values, so conservation checks reduce to "every
// take has a matching put".

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ResourceType distinguishes fungible from non-fungible resources.
type ResourceType uint8

const (
	ResourceFungible ResourceType = iota
	ResourceNonFungible
)

func (t ResourceType) String() string {
	if t == ResourceNonFungible {
		return "NonFungible"
	}
	return "Fungible"
}

// -----------------------------------------------------------------------------
// Non-fungible local ids
// -----------------------------------------------------------------------------

// NonFungibleIDKind is the id discipline of a non-fungible resource.
type NonFungibleIDKind uint8

const (
	NFIDString NonFungibleIDKind = iota
	NFIDInteger
	NFIDBytes
	NFIDRUID
)

// NonFungibleLocalID identifies one unit within a non-fungible resource.
type NonFungibleLocalID struct {
	Kind  NonFungibleIDKind `json:"kind"`
	Str   string            `json:"str,omitempty"`
	Int   uint64            `json:"int,omitempty"`
	Bytes []byte            `json:"bytes,omitempty"`
}

// IntegerID, StringID, BytesID and RUID build local ids of each kind.
func IntegerID(n uint64) NonFungibleLocalID {
	return NonFungibleLocalID{Kind: NFIDInteger, Int: n}
}

func StringID(s string) NonFungibleLocalID {
	return NonFungibleLocalID{Kind: NFIDString, Str: s}
}

func BytesID(b []byte) NonFungibleLocalID {
	return NonFungibleLocalID{Kind: NFIDBytes, Bytes: b}
}

// NewRUID draws a fresh random 32-byte id.
func NewRUID() NonFungibleLocalID {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("ruid: %v", err))
	}
	return NonFungibleLocalID{Kind: NFIDRUID, Bytes: b[:]}
}

// String renders the canonical text form: <s>, #n#, [hex], {hex}.
func (id NonFungibleLocalID) String() string {
	switch id.Kind {
	case NFIDString:
		return "<" + id.Str + ">"
	case NFIDInteger:
		return "#" + strconv.FormatUint(id.Int, 10) + "#"
	case NFIDBytes:
		return "[" + hex.EncodeToString(id.Bytes) + "]"
	case NFIDRUID:
		return "{" + hex.EncodeToString(id.Bytes) + "}"
	default:
		return "?"
	}
}

// ParseNonFungibleLocalID parses the canonical text form.
func ParseNonFungibleLocalID(s string) (NonFungibleLocalID, error) {
	var id NonFungibleLocalID
	if len(s) < 2 {
		return id, fmt.Errorf("invalid non-fungible id %q", s)
	}
	body := s[1 : len(s)-1]
	switch {
	case s[0] == '<' && s[len(s)-1] == '>':
		return StringID(body), nil
	case s[0] == '#' && s[len(s)-1] == '#':
		n, err := strconv.ParseUint(body, 10, 64)
		if err != nil {
			return id, fmt.Errorf("invalid integer id %q: %w", s, err)
		}
		return IntegerID(n), nil
	case s[0] == '[' && s[len(s)-1] == ']':
		b, err := hex.DecodeString(body)
		if err != nil {
			return id, fmt.Errorf("invalid bytes id %q: %w", s, err)
		}
		return BytesID(b), nil
	case s[0] == '{' && s[len(s)-1] == '}':
		b, err := hex.DecodeString(strings.ReplaceAll(body, "-", ""))
		if err != nil || len(b) != 32 {
			return id, fmt.Errorf("invalid ruid %q", s)
		}
		return NonFungibleLocalID{Kind: NFIDRUID, Bytes: b}, nil
	}
	return id, fmt.Errorf("invalid non-fungible id %q", s)
}

// MatchesKind reports whether the id belongs to a resource with the given id
// discipline.
func (id NonFungibleLocalID) MatchesKind(kind NonFungibleIDKind) bool {
	return id.Kind == kind
}

// NonFungibleGlobalID pairs a resource address with a local id.
type NonFungibleGlobalID struct {
	Resource NodeID             `json:"resource"`
	Local    NonFungibleLocalID `json:"local"`
}

func (g NonFungibleGlobalID) String() string {
	return g.Resource.String() + ":" + g.Local.String()
}

// -----------------------------------------------------------------------------
// Fungible container mutators
// -----------------------------------------------------------------------------

// liquidTakeByAmount removes amount from the liquid balance, enforcing scale
// and non-negativity.
func liquidTakeByAmount(liquid *LiquidFungibleSubstate, amount Decimal, divisibility uint8) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !amount.CheckScale(divisibility) {
		return ErrInvalidAmount
	}
	if liquid.Amount.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	rest, err := liquid.Amount.Sub(amount)
	if err != nil {
		return err
	}
	liquid.Amount = rest
	return nil
}

// liquidPut adds amount to the liquid balance.
func liquidPut(liquid *LiquidFungibleSubstate, amount Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	total, err := liquid.Amount.Add(amount)
	if err != nil {
		return err
	}
	liquid.Amount = total
	return nil
}

// lockedFungibleTotal is the amount a container's proofs collectively pin:
// the maximum outstanding lock entry. Overlapping proofs of smaller amounts
// share the same pinned resource rather than stacking.
func lockedFungibleTotal(locked *LockedFungibleSubstate) Decimal {
	total := DecimalZero
	for amtStr, count := range locked.Amounts {
		if count == 0 {
			continue
		}
		amt := MustDecimal(amtStr)
		if amt.Cmp(total) > 0 {
			total = amt
		}
	}
	return total
}

// lockFungibleAmount pins amount under lock, drawing from the liquid balance
// only the margin beyond what is already pinned.
func lockFungibleAmount(liquid *LiquidFungibleSubstate, locked *LockedFungibleSubstate, amount Decimal, divisibility uint8) error {
	pinned := lockedFungibleTotal(locked)
	if amount.Cmp(pinned) > 0 {
		margin, err := amount.Sub(pinned)
		if err != nil {
			return err
		}
		if err := liquidTakeByAmount(liquid, margin, divisibility); err != nil {
			return err
		}
	}
	if locked.Amounts == nil {
		locked.Amounts = make(map[string]uint32)
	}
	locked.Amounts[amount.String()]++
	return nil
}

// unlockFungibleAmount drops one lock reference; whatever is no longer
// pinned by any remaining entry flows back into the liquid balance.
func unlockFungibleAmount(liquid *LiquidFungibleSubstate, locked *LockedFungibleSubstate, amount Decimal) error {
	key := amount.String()
	count, ok := locked.Amounts[key]
	if !ok || count == 0 {
		// Locked-without-entry indicates a kernel bug, not user error.
		panic(fmt.Sprintf("unlock of unknown fungible lock %s", key))
	}
	before := lockedFungibleTotal(locked)
	if count == 1 {
		delete(locked.Amounts, key)
	} else {
		locked.Amounts[key] = count - 1
	}
	after := lockedFungibleTotal(locked)
	if before.Cmp(after) > 0 {
		released, err := before.Sub(after)
		if err != nil {
			return err
		}
		return liquidPut(liquid, released)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Non-fungible container mutators
// -----------------------------------------------------------------------------

func sortedIDKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// liquidTakeIDs removes the named ids from the liquid set.
func liquidTakeIDs(liquid *LiquidNonFungibleSubstate, ids []NonFungibleLocalID) error {
	for _, id := range ids {
		if !liquid.IDs[id.String()] {
			return ErrUnknownID
		}
	}
	for _, id := range ids {
		delete(liquid.IDs, id.String())
	}
	return nil
}

// liquidTakeCount removes n ids in canonical order and returns them.
func liquidTakeCount(liquid *LiquidNonFungibleSubstate, n uint64) ([]NonFungibleLocalID, error) {
	if uint64(len(liquid.IDs)) < n {
		return nil, ErrInsufficientBalance
	}
	keys := sortedIDKeys(liquid.IDs)[:n]
	out := make([]NonFungibleLocalID, 0, n)
	for _, k := range keys {
		id, err := ParseNonFungibleLocalID(k)
		if err != nil {
			panic(fmt.Sprintf("corrupt local id %q", k))
		}
		delete(liquid.IDs, k)
		out = append(out, id)
	}
	return out, nil
}

// liquidPutIDs adds ids to the liquid set; duplicates are a conservation
// violation and therefore a kernel bug.
func liquidPutIDs(liquid *LiquidNonFungibleSubstate, ids []NonFungibleLocalID) {
	if liquid.IDs == nil {
		liquid.IDs = make(map[string]bool)
	}
	for _, id := range ids {
		k := id.String()
		if liquid.IDs[k] {
			panic(fmt.Sprintf("duplicate non-fungible %s", k))
		}
		liquid.IDs[k] = true
	}
}

// lockNonFungibleIDs moves ids under lock. Ids already locked just gain a
// reference; ids still liquid are moved out of the liquid set first, keeping
// the disjointness invariant.
func lockNonFungibleIDs(liquid *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate, ids []NonFungibleLocalID) error {
	if locked.IDs == nil {
		locked.IDs = make(map[string]uint32)
	}
	for _, id := range ids {
		k := id.String()
		if locked.IDs[k] > 0 {
			continue
		}
		if !liquid.IDs[k] {
			return ErrUnknownID
		}
	}
	for _, id := range ids {
		k := id.String()
		if locked.IDs[k] == 0 {
			delete(liquid.IDs, k)
		}
		locked.IDs[k]++
	}
	return nil
}

// unlockNonFungibleIDs drops one reference per id, returning fully released
// ids to the liquid set.
func unlockNonFungibleIDs(liquid *LiquidNonFungibleSubstate, locked *LockedNonFungibleSubstate, ids []NonFungibleLocalID) {
	for _, id := range ids {
		k := id.String()
		count := locked.IDs[k]
		if count == 0 {
			panic(fmt.Sprintf("unlock of unknown non-fungible lock %s", k))
		}
		if count == 1 {
			delete(locked.IDs, k)
			if liquid.IDs == nil {
				liquid.IDs = make(map[string]bool)
			}
			liquid.IDs[k] = true
		} else {
			locked.IDs[k] = count - 1
		}
	}
}
