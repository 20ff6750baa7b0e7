package core

// System modules — pluggable hooks fired by the kernel around every
// operation. The standard stack is costing, node-move, auth, limits,
// transaction-runtime and execution-trace; each implements the subset of
// hooks it cares about and inherits no-ops for the rest.

import (
	"fmt"

	"github.com/google/uuid"
)

// Default limits enforced by the limits module.
const (
	DefaultMaxSubstateSize = 1 << 20 // 1 MiB
	DefaultMaxLogSize      = 16 << 10
	DefaultMaxEventSize    = 32 << 10
)

// SystemModule is the hook surface. All hooks may veto by returning an
// error, which unwinds the transaction.
type SystemModule interface {
	OnInit(k *Kernel) error
	BeforeInvoke(k *Kernel, actor Actor, inputSize int) error
	BeforePushFrame(k *Kernel, actor Actor, args []Value) error
	AfterCreateNode(k *Kernel, node NodeID) error
	AfterDropNode(k *Kernel, node NodeID) error
	AfterLockSubstate(k *Kernel, id SubstateID, size int) error
	OnReadSubstate(k *Kernel, id SubstateID, size int) error
	OnWriteSubstate(k *Kernel, id SubstateID, size int) error
	OnDropLock(k *Kernel, id SubstateID) error
	OnAllocateNodeID(k *Kernel, entity EntityType) error
	OnMoveNode(k *Kernel, node NodeID, toCaller bool) error
	OnExecutionFinish(k *Kernel) error
}

// baseModule supplies no-op hooks for embedding.
type baseModule struct{}

func (baseModule) OnInit(*Kernel) error                              { return nil }
func (baseModule) BeforeInvoke(*Kernel, Actor, int) error            { return nil }
func (baseModule) BeforePushFrame(*Kernel, Actor, []Value) error     { return nil }
func (baseModule) AfterCreateNode(*Kernel, NodeID) error             { return nil }
func (baseModule) AfterDropNode(*Kernel, NodeID) error               { return nil }
func (baseModule) AfterLockSubstate(*Kernel, SubstateID, int) error  { return nil }
func (baseModule) OnReadSubstate(*Kernel, SubstateID, int) error     { return nil }
func (baseModule) OnWriteSubstate(*Kernel, SubstateID, int) error    { return nil }
func (baseModule) OnDropLock(*Kernel, SubstateID) error              { return nil }
func (baseModule) OnAllocateNodeID(*Kernel, EntityType) error        { return nil }
func (baseModule) OnMoveNode(*Kernel, NodeID, bool) error            { return nil }
func (baseModule) OnExecutionFinish(*Kernel) error                   { return nil }

// -----------------------------------------------------------------------------
// Costing
// -----------------------------------------------------------------------------

// CostingModule translates kernel hooks into fee-reserve charges.
type CostingModule struct {
	baseModule
	reserve *FeeReserve
}

func (m *CostingModule) BeforeInvoke(k *Kernel, actor Actor, inputSize int) error {
	if err := m.reserve.ConsumeExecution(CostInvoke, 1); err != nil {
		return moduleError(err)
	}
	if err := m.reserve.ConsumeExecution(CostInvokeInputByte, uint64(inputSize)); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) AfterCreateNode(k *Kernel, node NodeID) error {
	if err := m.reserve.ConsumeExecution(CostCreateNode, 1); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) AfterDropNode(k *Kernel, node NodeID) error {
	if err := m.reserve.ConsumeExecution(CostDropNode, 1); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) AfterLockSubstate(k *Kernel, id SubstateID, size int) error {
	if err := m.reserve.ConsumeExecution(CostLockSubstate, 1); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) OnReadSubstate(k *Kernel, id SubstateID, size int) error {
	if err := m.reserve.ConsumeExecution(CostReadSubstate, 1); err != nil {
		return moduleError(err)
	}
	if err := m.reserve.ConsumeExecution(CostReadSubstateByte, uint64(size)); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) OnWriteSubstate(k *Kernel, id SubstateID, size int) error {
	if err := m.reserve.ConsumeExecution(CostWriteSubstate, 1); err != nil {
		return moduleError(err)
	}
	if err := m.reserve.ConsumeExecution(CostWriteSubstateByte, uint64(size)); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) OnDropLock(k *Kernel, id SubstateID) error {
	if err := m.reserve.ConsumeExecution(CostDropLock, 1); err != nil {
		return moduleError(err)
	}
	return nil
}

func (m *CostingModule) OnAllocateNodeID(k *Kernel, entity EntityType) error {
	if err := m.reserve.ConsumeExecution(CostAllocateNodeID, 1); err != nil {
		return moduleError(err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Node movement
// -----------------------------------------------------------------------------

// NodeMoveModule applies the cross-frame side effects of a node move: a
// proof crossing a frame boundary becomes restricted, and a restricted proof
// may not cross again.
type NodeMoveModule struct {
	baseModule
}

func (m *NodeMoveModule) OnMoveNode(k *Kernel, node NodeID, toCaller bool) error {
	if node.EntityType() != EntityProof {
		return nil
	}
	infoID := SubstateID{Node: node, Module: ModuleMain, Offset: OffsetProofInfo}
	heapNode := k.heap.Get(node)
	if heapNode == nil {
		return nil
	}
	payload, ok := heapNode.Get(infoID)
	if !ok {
		return nil
	}
	var info ProofInfoSubstate
	if err := decodeSubstate(payload, &info); err != nil {
		return moduleError(err)
	}
	if info.Restricted {
		return moduleError(ErrProofRestricted)
	}
	info.Restricted = true
	heapNode.Put(infoID, encodeSubstate(&info))
	return nil
}

// -----------------------------------------------------------------------------
// Authorization
// -----------------------------------------------------------------------------

// methodRoleTable maps blueprint:method onto the guarding role. Methods not
// listed are public. Role names resolve against the receiver's
// RoleAssignment substate; a named-but-unassigned role denies.
var methodRoleTable = map[string]string{
	"Account:withdraw":                  "owner",
	"Account:withdraw_non_fungibles":    "owner",
	"Account:lock_fee":                  "owner",
	"Account:lock_contingent_fee":       "owner",
	"Account:lock_fee_and_withdraw":     "owner",
	"Account:create_proof_of_amount":    "owner",
	"Account:securify":                  "owner",
	"FungibleResourceManager:mint":      "minter",
	"FungibleResourceManager:burn":      "burner",
	"FungibleResourceManager:recall":    "recaller",
	"FungibleResourceManager:freeze":    "freezer",
	"NonFungibleResourceManager:mint":   "minter",
	"NonFungibleResourceManager:burn":   "burner",
	"NonFungibleResourceManager:recall": "recaller",
	"NonFungibleResourceManager:freeze": "freezer",
	"NonFungibleResourceManager:update_non_fungible_data": "non_fungible_data_updater",
}

// AuthModule checks method access rules eagerly at invocation entry.
type AuthModule struct {
	baseModule
}

func (m *AuthModule) BeforePushFrame(k *Kernel, actor Actor, args []Value) error {
	if actor.Kind != ActorMethod {
		return nil
	}
	// Heap receivers (buckets, proofs, worktops) have no access-rules
	// module; their reachability is their authorization.
	if k.heap.Contains(actor.Node) {
		return nil
	}
	roleName, guarded := methodRoleTable[actor.Blueprint+":"+actor.Fn]
	if !guarded {
		return nil
	}
	var roles RoleAssignmentSubstate
	rolesID := SubstateID{Node: actor.Node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}
	payload, ok := k.track.GetSubstate(rolesID)
	if !ok {
		return moduleError(&AuthError{Rule: DenyAll(), Actor: actor.String()})
	}
	if err := decodeSubstate(payload, &roles); err != nil {
		return moduleError(err)
	}
	var rule AccessRule
	if roleName == "owner" {
		rule = roles.Owner
	} else if assigned, ok := roles.Roles[roleName]; ok {
		rule = assigned
	} else {
		rule = DenyAll()
	}
	proofs, err := k.collectAuthProofs(k.CurrentFrame())
	if err != nil {
		return err
	}
	if !evaluateRule(rule, proofs, &roles) {
		return moduleError(&AuthError{Rule: rule, Actor: actor.String()})
	}
	return nil
}

// -----------------------------------------------------------------------------
// Limits
// -----------------------------------------------------------------------------

// LimitsModule enforces configured transaction-level limits.
type LimitsModule struct {
	baseModule
	MaxSubstateSize int
	MaxLogSize      int
}

func (m *LimitsModule) OnWriteSubstate(k *Kernel, id SubstateID, size int) error {
	if size > m.MaxSubstateSize {
		return moduleError(fmt.Errorf("substate %s exceeds max size (%d > %d)", id, size, m.MaxSubstateSize))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Transaction runtime
// -----------------------------------------------------------------------------

// Event is an application event captured in the receipt.
type Event struct {
	Emitter NodeID `json:"emitter"`
	Name    string `json:"name"`
	Data    []byte `json:"data"`
}

// LogEntry is a guest log line captured in the receipt.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// TransactionRuntimeModule exposes transaction_hash, generate_uuid and the
// event/log sinks.
type TransactionRuntimeModule struct {
	baseModule
	txHash  Hash
	uuidSeq uint64
	events  []Event
	logs    []LogEntry
}

func NewTransactionRuntimeModule(txHash Hash) *TransactionRuntimeModule {
	return &TransactionRuntimeModule{txHash: txHash}
}

// TransactionHash returns the executing transaction's hash.
func (m *TransactionRuntimeModule) TransactionHash() Hash { return m.txHash }

// GenerateUUID derives a deterministic v5 UUID from the transaction hash and
// a per-transaction counter, so replays agree.
func (m *TransactionRuntimeModule) GenerateUUID() string {
	seed := fmt.Sprintf("%x:%d", m.txHash[:], m.uuidSeq)
	m.uuidSeq++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// EmitEvent records an application event.
func (m *TransactionRuntimeModule) EmitEvent(emitter NodeID, name string, data []byte) error {
	if len(data) > DefaultMaxEventSize {
		return moduleError(fmt.Errorf("event %q exceeds max size", name))
	}
	m.events = append(m.events, Event{Emitter: emitter, Name: name, Data: data})
	return nil
}

// EmitLog records a guest log line.
func (m *TransactionRuntimeModule) EmitLog(level, message string) error {
	if len(message) > DefaultMaxLogSize {
		return moduleError(fmt.Errorf("log message exceeds max size"))
	}
	m.logs = append(m.logs, LogEntry{Level: level, Message: message})
	return nil
}

// Events returns the captured events.
func (m *TransactionRuntimeModule) Events() []Event { return m.events }

// Logs returns the captured log lines.
func (m *TransactionRuntimeModule) Logs() []LogEntry { return m.logs }

// -----------------------------------------------------------------------------
// Execution trace
// -----------------------------------------------------------------------------

// TraceEntry records one resource movement; the trace never fails execution.
type TraceEntry struct {
	Instruction int     `json:"instruction"`
	Op          string  `json:"op"`
	Node        NodeID  `json:"node"`
	Resource    NodeID  `json:"resource,omitempty"`
	Amount      Decimal `json:"amount,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

// ExecutionTraceModule records resource movements per manifest instruction.
type ExecutionTraceModule struct {
	baseModule
	instruction int
	entries     []TraceEntry
}

func NewExecutionTraceModule() *ExecutionTraceModule {
	return &ExecutionTraceModule{instruction: -1}
}

// SetInstruction marks the instruction index for subsequent records.
func (m *ExecutionTraceModule) SetInstruction(idx int) { m.instruction = idx }

// Record appends a trace entry; it never errors by contract.
func (m *ExecutionTraceModule) Record(op string, node, resource NodeID, amount Decimal, detail string) {
	m.entries = append(m.entries, TraceEntry{
		Instruction: m.instruction,
		Op:          op,
		Node:        node,
		Resource:    resource,
		Amount:      amount,
		Detail:      detail,
	})
}

// Entries returns the collected trace.
func (m *ExecutionTraceModule) Entries() []TraceEntry { return m.entries }
