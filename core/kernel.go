package core

// Kernel — the call-frame stack and the substate/ownership mediator.
//
// Every invocation, node creation, substate lock and resource movement in a
// transaction flows through here. The kernel owns the frame stack, routes
// substate access to the heap or the track, fires system-module hooks around
// every operation, and unwinds state on failure: locks released, heap nodes
// dropped, writes discarded except force-writes.

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Hash is a 32-byte digest.
type Hash [32]byte

// Hex renders the digest for logs.
func (h Hash) Hex() string { return fmt.Sprintf("%x", h[:]) }

// NativeFn is the body of a native blueprint function or method.
type NativeFn func(k *Kernel, actor Actor, args []Value) (Value, error)

type heapLockState struct {
	readers int
	writer  bool
}

type kernelLock struct {
	id          SubstateID
	isHeap      bool
	trackHandle LockHandle
	mode        LockMode
	flags       LockFlags
}

// Kernel drives one transaction.
type Kernel struct {
	track  *Track
	heap   *Heap
	fees   *FeeReserve
	wasm   WasmEngine
	txHash Hash

	modules []SystemModule
	trace   *ExecutionTraceModule
	runtime *TransactionRuntimeModule

	frames []*CallFrame

	locks      map[LockHandle]*kernelLock
	nextHandle LockHandle
	heapLocks  map[string]*heapLockState

	idSeq uint64

	// sysDepth > 0 marks kernel-internal access (teardown, settlement)
	// that bypasses frame visibility checks.
	sysDepth int

	log *logrus.Entry
}

// NewKernel wires a kernel for one transaction. The executor supplies the
// track, fee reserve and wasm engine; the kernel builds its module stack and
// root frame.
func NewKernel(track *Track, fees *FeeReserve, wasm WasmEngine, txHash Hash) *Kernel {
	k := &Kernel{
		track:     track,
		heap:      NewHeap(),
		fees:      fees,
		wasm:      wasm,
		txHash:    txHash,
		locks:     make(map[LockHandle]*kernelLock),
		heapLocks: make(map[string]*heapLockState),
		log:       logrus.WithField("tx", fmt.Sprintf("%x", txHash[:8])),
	}
	k.trace = NewExecutionTraceModule()
	k.runtime = NewTransactionRuntimeModule(txHash)
	k.modules = []SystemModule{
		&CostingModule{reserve: fees},
		&NodeMoveModule{},
		&AuthModule{},
		&LimitsModule{MaxSubstateSize: DefaultMaxSubstateSize, MaxLogSize: DefaultMaxLogSize},
		k.runtime,
		k.trace,
	}

	root := newCallFrame(nil, Actor{Kind: ActorRoot})
	k.frames = []*CallFrame{root}
	root.authZone = k.mustCreateAuthZone(root)
	return k
}

// CurrentFrame returns the executing frame.
func (k *Kernel) CurrentFrame() *CallFrame { return k.frames[len(k.frames)-1] }

// RootFrame returns the depth-0 frame.
func (k *Kernel) RootFrame() *CallFrame { return k.frames[0] }

// Track exposes the transactional substate view to the executor.
func (k *Kernel) Track() *Track { return k.track }

// Heap exposes the node arena to the executor's leak checks.
func (k *Kernel) Heap() *Heap { return k.heap }

// FeeReserve exposes the metering state.
func (k *Kernel) FeeReserve() *FeeReserve { return k.fees }

// TxHash returns the transaction hash.
func (k *Kernel) TxHash() Hash { return k.txHash }

// Trace returns the execution-trace module.
func (k *Kernel) Trace() *ExecutionTraceModule { return k.trace }

// Runtime returns the transaction-runtime module.
func (k *Kernel) Runtime() *TransactionRuntimeModule { return k.runtime }

// -----------------------------------------------------------------------------
// Node id allocation
// -----------------------------------------------------------------------------

// AllocateNodeID derives a fresh node id from the transaction hash and an
// allocation counter, so ids are deterministic per transaction.
func (k *Kernel) AllocateNodeID(entity EntityType) (NodeID, error) {
	for _, m := range k.modules {
		if err := m.OnAllocateNodeID(k, entity); err != nil {
			return NodeID{}, err
		}
	}
	seed := make([]byte, len(k.txHash)+8)
	copy(seed, k.txHash[:])
	binary.LittleEndian.PutUint64(seed[len(k.txHash):], k.idSeq)
	k.idSeq++
	return NewNodeID(entity, seed), nil
}

// -----------------------------------------------------------------------------
// Node lifecycle
// -----------------------------------------------------------------------------

// CreateNode inserts a heap node owned by the current frame.
func (k *Kernel) CreateNode(id NodeID, substates map[SubstateID][]byte) error {
	node := NewHeapNode()
	for sid, payload := range substates {
		if sid.Node != id {
			panic(fmt.Sprintf("kernel: substate %s does not belong to node %s", sid, id))
		}
		node.Put(sid, payload)
	}
	k.heap.Insert(id, node)
	k.CurrentFrame().takeOwnership(id)
	for _, m := range k.modules {
		if err := m.AfterCreateNode(k, id); err != nil {
			return err
		}
	}
	return nil
}

// DropNode removes an owned heap node and returns its shell. Callers are
// responsible for emptiness/lock checks appropriate to the node kind.
func (k *Kernel) DropNode(id NodeID) (*HeapNode, error) {
	frame := k.CurrentFrame()
	if !frame.Owns(id) {
		return nil, kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, id))
	}
	node, err := k.heap.Remove(id)
	if err != nil {
		return nil, kernelError(err)
	}
	if err := frame.releaseOwnership(id); err != nil {
		return nil, kernelError(err)
	}
	for _, m := range k.modules {
		if err := m.AfterDropNode(k, id); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// Globalize promotes an owned heap node (and its owned vault/KV children)
// into the track under its fixed address. One-way.
func (k *Kernel) Globalize(id NodeID, roles RoleAssignmentSubstate, metadata map[string]string) error {
	frame := k.CurrentFrame()
	if !frame.Owns(id) {
		return kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, id))
	}
	if !id.IsGlobalEntity() {
		return kernelError(fmt.Errorf("%w: %s", ErrNodeNotMovable, id))
	}
	node := k.heap.Get(id)
	if node == nil {
		return kernelError(fmt.Errorf("heap node %s: %w", id, ErrNotFound))
	}
	// Refuse if the node's TypeInfo already says global.
	var info TypeInfoSubstate
	infoID := SubstateID{Node: id, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}
	if payload, ok := node.Get(infoID); ok {
		if err := decodeSubstate(payload, &info); err != nil {
			return kernelError(err)
		}
		if info.Global {
			return kernelError(fmt.Errorf("%w: %s", ErrNodeAlreadyGlobal, id))
		}
	}
	// A node owning any bucket may not be globalized; non-empty buckets
	// would leak, empty ones are transient by contract.
	for child := range node.Owned {
		if child.EntityType() == EntityBucket {
			return kernelError(fmt.Errorf("%w: %s owns bucket %s", ErrNodeNotMovable, id, child))
		}
	}
	if err := k.chargeExecution(CostGlobalize, 1); err != nil {
		return err
	}

	// Move the node and its owned subtree out of the heap into the track.
	if err := k.moveNodeToTrack(id, true); err != nil {
		return err
	}
	_ = frame.releaseOwnership(id)
	frame.AddRef(id)

	info.Global = true
	k.track.SetOrCreate(SubstateID{Node: id, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}, encodeSubstate(&info))
	k.track.SetOrCreate(SubstateID{Node: id, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}, encodeSubstate(&roles))
	for key, value := range metadata {
		sid := SubstateID{Node: id, Module: ModuleMetadata, Offset: OffsetMetadataEntry, SortKey: []byte(key)}
		if err := k.track.SetKeyValue(sid, encodeSubstate(&MetadataEntrySubstate{Value: value})); err != nil {
			return kernelError(err)
		}
	}
	k.log.WithFields(logrus.Fields{"node": id.String()}).Debug("node globalized")
	return nil
}

// moveNodeToTrack recursively migrates heap substates into the track. The
// root node's TypeInfo is written by Globalize; children carry theirs over.
func (k *Kernel) moveNodeToTrack(id NodeID, isRoot bool) error {
	node, err := k.heap.Remove(id)
	if err != nil {
		return kernelError(err)
	}
	for key, payload := range node.Substates {
		sid, err := parseSubstateKey([]byte(key))
		if err != nil {
			panic(fmt.Sprintf("kernel: corrupt substate key: %v", err))
		}
		if isRoot && sid.Module == ModuleTypeInfo {
			continue // rewritten with Global=true by the caller
		}
		if err := k.chargeExecution(CostCreateSubstate, 1); err != nil {
			return err
		}
		if len(sid.SortKey) > 0 {
			if err := k.track.SetKeyValue(sid, payload); err != nil {
				return kernelError(err)
			}
		} else if err := k.track.CreateSubstate(sid, payload); err != nil {
			return kernelError(err)
		}
	}
	for child := range node.Owned {
		// Ownership of children follows the parent regardless of which
		// frame held them; the forest invariant guarantees one owner.
		if frame := k.frameOwning(child); frame != nil {
			_ = frame.releaseOwnership(child)
		}
		if err := k.moveNodeToTrack(child, false); err != nil {
			return err
		}
	}
	return nil
}

func (k *Kernel) frameOwning(id NodeID) *CallFrame {
	for i := len(k.frames) - 1; i >= 0; i-- {
		if k.frames[i].Owns(id) {
			return k.frames[i]
		}
	}
	return nil
}

// parseSubstateKey inverts SubstateID.Key().
func parseSubstateKey(b []byte) (SubstateID, error) {
	if len(b) < NodeIDLength+3 {
		return SubstateID{}, fmt.Errorf("substate key too short")
	}
	var id SubstateID
	copy(id.Node[:], b[:NodeIDLength])
	id.Module = ModuleID(b[NodeIDLength])
	id.Offset = SubstateOffset(binary.LittleEndian.Uint16(b[NodeIDLength+1 : NodeIDLength+3]))
	if rest := b[NodeIDLength+3:]; len(rest) > 0 {
		id.SortKey = append([]byte(nil), rest...)
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// Substate access (handle-based)
// -----------------------------------------------------------------------------

// LockSubstate acquires a handle on (node, module, offset).
func (k *Kernel) LockSubstate(node NodeID, module ModuleID, offset SubstateOffset, mode LockMode, flags LockFlags) (LockHandle, error) {
	return k.LockSubstateID(SubstateID{Node: node, Module: module, Offset: offset}, mode, flags)
}

// LockSubstateID is LockSubstate with a full id (sort keys included).
func (k *Kernel) LockSubstateID(id SubstateID, mode LockMode, flags LockFlags) (LockHandle, error) {
	if k.sysDepth == 0 && !k.CurrentFrame().canAccess(k, id.Node) {
		return 0, kernelError(fmt.Errorf("%w: %s", ErrNodeNotVisible, id.Node))
	}
	lock := &kernelLock{id: id, mode: mode, flags: flags}
	var size int
	if k.heap.Contains(id.Node) {
		if mode == LockUnmodifiedBaseMutable {
			return 0, kernelError(&TrackError{Kind: TrackLockOnHeapNode, ID: id})
		}
		node := k.heap.Get(id.Node)
		payload, ok := node.Get(id)
		if !ok {
			return 0, kernelError(&TrackError{Kind: TrackNotFound, ID: id})
		}
		key := string(id.Key())
		st := k.heapLocks[key]
		if st == nil {
			st = &heapLockState{}
			k.heapLocks[key] = st
		}
		switch mode {
		case LockRead:
			if st.writer {
				return 0, kernelError(&TrackError{Kind: TrackReentrancy, ID: id})
			}
			st.readers++
		default:
			if st.writer || st.readers > 0 {
				return 0, kernelError(&TrackError{Kind: TrackReentrancy, ID: id})
			}
			st.writer = true
		}
		lock.isHeap = true
		size = len(payload)
	} else {
		h, err := k.track.AcquireLock(id, mode, flags)
		if err != nil {
			return 0, kernelError(err)
		}
		lock.trackHandle = h
		if payload, readErr := k.track.Read(h); readErr == nil {
			size = len(payload)
		}
	}
	k.nextHandle++
	handle := k.nextHandle
	k.locks[handle] = lock
	for _, m := range k.modules {
		if err := m.AfterLockSubstate(k, id, size); err != nil {
			return 0, err
		}
	}
	return handle, nil
}

// ReadSubstate returns the payload behind a handle.
func (k *Kernel) ReadSubstate(h LockHandle) ([]byte, error) {
	l, ok := k.locks[h]
	if !ok {
		return nil, kernelError(ErrInvalidLockHandle)
	}
	var payload []byte
	if l.isHeap {
		node := k.heap.Get(l.id.Node)
		if node == nil {
			return nil, kernelError(&TrackError{Kind: TrackNotFound, ID: l.id})
		}
		payload, _ = node.Get(l.id)
	} else {
		var err error
		payload, err = k.track.Read(l.trackHandle)
		if err != nil {
			return nil, kernelError(err)
		}
	}
	for _, m := range k.modules {
		if err := m.OnReadSubstate(k, l.id, len(payload)); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// WriteSubstate replaces the payload behind a mutable handle.
func (k *Kernel) WriteSubstate(h LockHandle, payload []byte) error {
	l, ok := k.locks[h]
	if !ok {
		return kernelError(ErrInvalidLockHandle)
	}
	if l.mode == LockRead {
		return kernelError(&TrackError{Kind: TrackReentrancy, ID: l.id})
	}
	for _, m := range k.modules {
		if err := m.OnWriteSubstate(k, l.id, len(payload)); err != nil {
			return err
		}
	}
	if l.isHeap {
		node := k.heap.Get(l.id.Node)
		if node == nil {
			return kernelError(&TrackError{Kind: TrackNotFound, ID: l.id})
		}
		node.Put(l.id, payload)
		return nil
	}
	if err := k.track.Write(l.trackHandle, payload); err != nil {
		return kernelError(err)
	}
	return nil
}

// DropLock releases a handle.
func (k *Kernel) DropLock(h LockHandle) error {
	l, ok := k.locks[h]
	if !ok {
		return kernelError(ErrInvalidLockHandle)
	}
	delete(k.locks, h)
	if l.isHeap {
		key := string(l.id.Key())
		if st := k.heapLocks[key]; st != nil {
			if l.mode == LockRead {
				st.readers--
			} else {
				st.writer = false
			}
			if st.readers == 0 && !st.writer {
				delete(k.heapLocks, key)
			}
		}
	} else if err := k.track.Release(l.trackHandle); err != nil {
		return kernelError(err)
	}
	for _, m := range k.modules {
		if err := m.OnDropLock(k, l.id); err != nil {
			return err
		}
	}
	return nil
}

// withSubstate is the lock-scoped helper natives use: lock, read, transform,
// optionally write back (when fn returns a payload), release.
func (k *Kernel) withSubstate(id SubstateID, mode LockMode, flags LockFlags, fn func(payload []byte) ([]byte, error)) error {
	h, err := k.LockSubstateID(id, mode, flags)
	if err != nil {
		return err
	}
	defer func() { _ = k.DropLock(h) }()
	payload, err := k.ReadSubstate(h)
	if err != nil {
		return err
	}
	out, err := fn(payload)
	if err != nil {
		return err
	}
	if out != nil {
		return k.WriteSubstate(h, out)
	}
	return nil
}

// readTyped is a read-locked decode of one substate.
func (k *Kernel) readTyped(id SubstateID, out any) error {
	return k.withSubstate(id, LockRead, 0, func(payload []byte) ([]byte, error) {
		return nil, decodeSubstate(payload, out)
	})
}

// chargeExecution routes a cost through the fee reserve.
func (k *Kernel) chargeExecution(entry CostEntry, times uint64) error {
	if err := k.fees.ConsumeExecution(entry, times); err != nil {
		return moduleError(err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Invocation
// -----------------------------------------------------------------------------

// indexValue walks a value tree collecting owned node ids (buckets, proofs)
// and referenced global addresses.
func indexValue(v Value, owned *[]NodeID, refs *[]NodeID) {
	switch v.Kind {
	case KindBucket, KindProof:
		*owned = append(*owned, v.Address)
	case KindAddress:
		*refs = append(*refs, v.Address)
	case KindArray, KindTuple, KindEnum, KindMap:
		for _, f := range v.Fields {
			indexValue(f, owned, refs)
		}
	}
}

func indexValues(values []Value) (owned []NodeID, refs []NodeID) {
	for _, v := range values {
		indexValue(v, &owned, &refs)
	}
	return owned, refs
}

// Invoke runs the §4.8 invocation contract: move-in, auth, child frame,
// execute, move-out.
func (k *Kernel) Invoke(actor Actor, args []Value) (Value, error) {
	caller := k.CurrentFrame()

	inputSize := 0
	for _, a := range args {
		if b, err := EncodeValue(a); err == nil {
			inputSize += len(b)
		}
	}
	for _, m := range k.modules {
		if err := m.BeforeInvoke(k, actor, inputSize); err != nil {
			return Value{}, err
		}
	}

	// Re-entrancy: a method on a component whose state is mutably locked
	// anywhere on the stack may not be re-entered.
	if actor.Kind == ActorMethod && actor.Module == ModuleMain {
		stateID := SubstateID{Node: actor.Node, Module: ModuleMain, Offset: OffsetComponentState}
		if k.track.IsLockedMutable(stateID) {
			return Value{}, kernelError(fmt.Errorf("%w: %s", ErrComponentReentrancy, actor.Node))
		}
	}

	// Move-in.
	ownedIn, refsIn := indexValues(args)
	for _, id := range ownedIn {
		if !caller.Owns(id) {
			return Value{}, kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, id))
		}
		if err := movableOut(k, id, caller.Actor()); err != nil {
			return Value{}, kernelError(err)
		}
		// A non-globalized component may not move into a method call of
		// another component.
		if actor.Kind == ActorMethod && id.IsGlobalEntity() {
			return Value{}, kernelError(fmt.Errorf("%w: %s", ErrNodeNotMovable, id))
		}
	}

	for _, m := range k.modules {
		if err := m.BeforePushFrame(k, actor, args); err != nil {
			return Value{}, err
		}
	}
	if err := k.chargeRoyalty(actor); err != nil {
		return Value{}, err
	}

	frame := newCallFrame(caller, actor)
	if frame.Depth() > MaxCallDepth {
		return Value{}, kernelError(ErrMaxCallDepthExceeded)
	}
	k.frames = append(k.frames, frame)
	frame.authZone = k.mustCreateAuthZone(frame)

	for _, id := range ownedIn {
		_ = caller.releaseOwnership(id)
		frame.takeOwnership(id)
		for _, m := range k.modules {
			if err := m.OnMoveNode(k, id, false); err != nil {
				k.unwindFrame(frame)
				return Value{}, err
			}
		}
	}
	for _, id := range refsIn {
		frame.AddRef(id)
	}
	if actor.Kind == ActorMethod {
		frame.AddRef(actor.Node)
	}

	output, err := k.dispatch(actor, args)
	if err != nil {
		k.unwindFrame(frame)
		return Value{}, err
	}

	// Move-out.
	ownedOut, refsOut := indexValues([]Value{output})
	for _, id := range ownedOut {
		if !frame.Owns(id) {
			k.unwindFrame(frame)
			return Value{}, kernelError(fmt.Errorf("%w: %s", ErrNodeNotOwned, id))
		}
		if err := movableOut(k, id, actor); err != nil {
			k.unwindFrame(frame)
			return Value{}, kernelError(err)
		}
	}
	// Vault creation is the one case of non-bucket ownership transfer on
	// return: resource-manager actors hand freshly built vaults to their
	// caller as Address values.
	if actor.IsResourceManagerActor() {
		for _, id := range refsOut {
			if id.IsVault() && frame.Owns(id) {
				ownedOut = append(ownedOut, id)
			}
		}
	}
	for _, id := range ownedOut {
		_ = frame.releaseOwnership(id)
		caller.takeOwnership(id)
		for _, m := range k.modules {
			if err := m.OnMoveNode(k, id, true); err != nil {
				k.unwindFrame(frame)
				return Value{}, err
			}
		}
	}
	for _, id := range refsOut {
		if !k.heap.Contains(id) {
			caller.AddRef(id)
		}
	}

	leakErr := k.dropFrame(frame)
	k.frames = k.frames[:len(k.frames)-1]
	if leakErr != nil {
		return Value{}, leakErr
	}
	return output, nil
}

// unwindFrame tears a failed frame down, dropping its nodes best-effort, and
// pops it from the stack.
func (k *Kernel) unwindFrame(frame *CallFrame) {
	_ = k.dropFrame(frame)
	if len(k.frames) > 0 && k.frames[len(k.frames)-1] == frame {
		k.frames = k.frames[:len(k.frames)-1]
	}
}

// dropFrame drains the frame's auth zone and drops its remaining owned
// nodes. A non-empty bucket or worktop at drop is a resource leak.
func (k *Kernel) dropFrame(frame *CallFrame) error {
	// Proofs first — auth-zone held and loose alike — since they pin locks
	// on containers that drop in the second pass.
	var leak error
	_ = k.drainAuthZone(frame)
	for _, id := range frame.ownedIDs() {
		if id.EntityType() == EntityProof {
			if err := k.dropProofNode(frame, id); err != nil && leak == nil {
				leak = err
			}
		}
	}
	for _, id := range frame.ownedIDs() {
		switch id.EntityType() {
		case EntityProof:
			// handled above
		case EntityBucket:
			empty, err := k.bucketIsEmpty(id)
			if err == nil && !empty {
				if leak == nil {
					leak = applicationError(fmt.Errorf("%w: bucket %s", ErrResourceLeak, id))
				}
				continue
			}
			_, _ = k.dropOwnedNode(frame, id)
		case EntityWorktop:
			empty, err := k.worktopIsEmpty(id)
			if err == nil && !empty {
				if leak == nil {
					leak = applicationError(&WorktopError{Kind: WorktopResourceLeak})
				}
				continue
			}
			_, _ = k.dropOwnedNode(frame, id)
		case EntityAuthZone, EntityTransactionRuntime, EntityLogger:
			_, _ = k.dropOwnedNode(frame, id)
		default:
			// Transient components and vaults left owned at frame drop
			// are destroyed; any held resources leak.
			if held, err := k.nodeHoldsResources(id); err == nil && held {
				if leak == nil {
					leak = applicationError(fmt.Errorf("%w: node %s", ErrResourceLeak, id))
				}
				continue
			}
			_, _ = k.dropOwnedNode(frame, id)
		}
	}
	return leak
}

// dropOwnedNode is DropNode against a specific frame (used during teardown
// when the frame may no longer be current).
func (k *Kernel) dropOwnedNode(frame *CallFrame, id NodeID) (*HeapNode, error) {
	if !frame.Owns(id) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotOwned, id)
	}
	node, err := k.heap.Remove(id)
	if err != nil {
		return nil, err
	}
	_ = frame.releaseOwnership(id)
	for _, m := range k.modules {
		if err := m.AfterDropNode(k, id); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// nodeHoldsResources reports whether a heap node or any owned child still
// holds a balance or id set.
func (k *Kernel) nodeHoldsResources(id NodeID) (bool, error) {
	node := k.heap.Get(id)
	if node == nil {
		return false, ErrNotFound
	}
	if id.IsVault() || id.EntityType() == EntityBucket {
		empty, err := k.containerIsEmpty(id)
		if err != nil {
			return false, err
		}
		return !empty, nil
	}
	for child := range node.Owned {
		held, err := k.nodeHoldsResources(child)
		if err == nil && held {
			return true, nil
		}
	}
	return false, nil
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

func (k *Kernel) dispatch(actor Actor, args []Value) (Value, error) {
	switch actor.Kind {
	case ActorFunction:
		if fn := lookupNativeFunction(actor.Package, actor.Blueprint, actor.Fn); fn != nil {
			return fn(k, actor, args)
		}
		return k.invokeWasm(actor, args)
	case ActorMethod:
		if fn := lookupNativeMethod(k, actor); fn != nil {
			return fn(k, actor, args)
		}
		return k.invokeWasm(actor, args)
	default:
		return Value{}, kernelError(fmt.Errorf("cannot dispatch actor %s", actor))
	}
}

// resolveMethodActor fills in the package/blueprint of a method receiver
// from its TypeInfo substate.
func (k *Kernel) resolveMethodActor(node NodeID, module ModuleID, fn string) (Actor, error) {
	actor := Actor{Kind: ActorMethod, Node: node, Module: module, Fn: fn}
	var info TypeInfoSubstate
	infoID := SubstateID{Node: node, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}
	if k.heap.Contains(node) {
		payload, ok := k.heap.Get(node).Get(infoID)
		if !ok {
			return actor, kernelError(&TrackError{Kind: TrackNotFound, ID: infoID})
		}
		if err := decodeSubstate(payload, &info); err != nil {
			return actor, kernelError(err)
		}
	} else {
		payload, ok := k.track.GetSubstate(infoID)
		if !ok {
			return actor, kernelError(&TrackError{Kind: TrackNotFound, ID: infoID})
		}
		if err := decodeSubstate(payload, &info); err != nil {
			return actor, kernelError(err)
		}
	}
	actor.Package = info.PackageAddress
	actor.Blueprint = info.BlueprintName
	return actor, nil
}

// -----------------------------------------------------------------------------
// Auth zone plumbing shared with natives
// -----------------------------------------------------------------------------

func (k *Kernel) mustCreateAuthZone(frame *CallFrame) NodeID {
	seed := make([]byte, len(k.txHash)+8)
	copy(seed, k.txHash[:])
	binary.LittleEndian.PutUint64(seed[len(k.txHash):], k.idSeq)
	k.idSeq++
	id := NewNodeID(EntityAuthZone, seed)
	node := NewHeapNode()
	node.Put(SubstateID{Node: id, Module: ModuleMain, Offset: OffsetAuthZone}, encodeSubstate(&AuthZoneSubstate{}))
	k.heap.Insert(id, node)
	frame.takeOwnership(id)
	return id
}
