package core

// Call frames — one per invocation, forming the only concurrency structure a
// transaction has. A frame owns a subset of heap nodes, sees a set of
// referenceable node ids, and carries its own auth zone. Substate access is
// handle-based: frames never borrow each other's state.

import "fmt"

// MaxCallDepth bounds the invocation stack.
const MaxCallDepth = 8

// ActorKind tags what is executing in a frame.
type ActorKind uint8

const (
	ActorRoot ActorKind = iota
	ActorFunction
	ActorMethod
	ActorVirtualLazyLoad
)

// Actor identifies the running callee of a call frame.
type Actor struct {
	Kind      ActorKind
	Package   NodeID
	Blueprint string
	Fn        string
	Node      NodeID   // method receiver
	Module    ModuleID // method receiver module
}

func (a Actor) String() string {
	switch a.Kind {
	case ActorRoot:
		return "root"
	case ActorFunction:
		return fmt.Sprintf("%s:%s:%s", a.Package, a.Blueprint, a.Fn)
	case ActorMethod:
		return fmt.Sprintf("%s::%s", a.Node, a.Fn)
	case ActorVirtualLazyLoad:
		return fmt.Sprintf("virtual:%s", a.Node)
	default:
		return "unknown"
	}
}

// IsResourceManagerActor reports whether the actor runs resource-manager
// logic; only such actors may emit vault ownership.
func (a Actor) IsResourceManagerActor() bool {
	switch a.Kind {
	case ActorMethod:
		return a.Node.IsResourceManager()
	case ActorFunction:
		return a.Package == ResourcePackage
	default:
		return false
	}
}

// CallFrame is one entry of the invocation stack.
type CallFrame struct {
	depth    int
	actor    Actor
	parent   *CallFrame
	owned    map[NodeID]bool
	refs     map[NodeID]bool
	authZone NodeID
}

func newCallFrame(parent *CallFrame, actor Actor) *CallFrame {
	depth := 0
	if parent != nil {
		depth = parent.depth + 1
	}
	return &CallFrame{
		depth:  depth,
		actor:  actor,
		parent: parent,
		owned:  make(map[NodeID]bool),
		refs:   make(map[NodeID]bool),
	}
}

// Depth is the frame's distance from the root (root = 0).
func (f *CallFrame) Depth() int { return f.depth }

// Actor returns the frame's executing actor.
func (f *CallFrame) Actor() Actor { return f.actor }

// Owns reports frame ownership of a heap node.
func (f *CallFrame) Owns(id NodeID) bool { return f.owned[id] }

// AddRef makes a node id addressable by the frame.
func (f *CallFrame) AddRef(id NodeID) { f.refs[id] = true }

// takeOwnership registers id as owned; a double-add is a kernel bug.
func (f *CallFrame) takeOwnership(id NodeID) {
	if f.owned[id] {
		panic(fmt.Sprintf("frame: duplicate ownership of %s", id))
	}
	f.owned[id] = true
}

// releaseOwnership removes id from the owned set.
func (f *CallFrame) releaseOwnership(id NodeID) error {
	if !f.owned[id] {
		return fmt.Errorf("%w: %s", ErrNodeNotOwned, id)
	}
	delete(f.owned, id)
	return nil
}

// ownedIDs snapshots the owned node ids.
func (f *CallFrame) ownedIDs() []NodeID {
	out := make([]NodeID, 0, len(f.owned))
	for id := range f.owned {
		out = append(out, id)
	}
	return out
}

// canAccess decides node visibility: owned heap nodes, explicitly granted
// refs, the frame's own auth zone, and globally tracked entities.
func (f *CallFrame) canAccess(k *Kernel, id NodeID) bool {
	if f.owned[id] || f.refs[id] || id == f.authZone {
		return true
	}
	if k.heap.Contains(id) {
		return false
	}
	// Tracked nodes are addressable by global address; vaults stay
	// addressable by the component that owns them via refs above.
	_, ok := k.track.GetSubstate(SubstateID{Node: id, Module: ModuleTypeInfo, Offset: OffsetTypeInfo})
	return ok
}

// movableOut reports whether an owned node may be transferred across a frame
// boundary in invocation arguments or return values.
func movableOut(k *Kernel, id NodeID, callerActor Actor) error {
	switch id.EntityType() {
	case EntityBucket, EntityProof:
		return nil
	case EntityWorktop, EntityAuthZone, EntityTransactionRuntime, EntityLogger:
		return fmt.Errorf("%w: %s", ErrNodeNotMovable, id)
	case EntityFungibleVault, EntityNonFungibleVault:
		// Vaults move only while resource-manager logic is constructing
		// them; afterwards they are sticky to their owner.
		if callerActor.IsResourceManagerActor() {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrStickyVault, id)
	case EntityKeyValueStore:
		return fmt.Errorf("%w: %s", ErrStickyKVStore, id)
	default:
		return nil
	}
}
