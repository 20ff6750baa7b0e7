package core

// Canonical cost-unit schedule for every metered kernel operation. The
// numbers reflect the relative CPU, memory and storage weight of each
// operation and are charged by the costing system module before the work
// runs.
//
// Unknown entries fall back to DefaultCost, which is deliberately punitive
// and logged once per missing entry.

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CostEntry names a metered operation.
type CostEntry string

const (
	CostTxBase            CostEntry = "tx_base"
	CostTxPayloadByte     CostEntry = "tx_payload_byte"
	CostTxSignature       CostEntry = "tx_signature"
	CostInvoke            CostEntry = "invoke"
	CostInvokeInputByte   CostEntry = "invoke_input_byte"
	CostCreateNode        CostEntry = "create_node"
	CostDropNode          CostEntry = "drop_node"
	CostAllocateNodeID    CostEntry = "allocate_node_id"
	CostLockSubstate      CostEntry = "lock_substate"
	CostReadSubstate      CostEntry = "read_substate"
	CostReadSubstateByte  CostEntry = "read_substate_byte"
	CostWriteSubstate     CostEntry = "write_substate"
	CostWriteSubstateByte CostEntry = "write_substate_byte"
	CostDropLock          CostEntry = "drop_lock"
	CostCreateSubstate    CostEntry = "create_substate"
	CostGlobalize         CostEntry = "globalize"
	CostInstruction       CostEntry = "instruction"
	CostEmitEvent         CostEntry = "emit_event"
	CostEmitLog           CostEntry = "emit_log"
	CostGenerateUUID      CostEntry = "generate_uuid"
	CostWasmInstantiate   CostEntry = "wasm_instantiate"
	CostWasmExecuteUnit   CostEntry = "wasm_execute_unit"
	CostPublishPackage    CostEntry = "publish_package"
	CostPublishByte       CostEntry = "publish_byte"
)

// DefaultCost is charged for any operation missing from the table.
const DefaultCost uint64 = 100_000

var costTable = map[CostEntry]uint64{
	CostTxBase:            50_000,
	CostTxPayloadByte:     5,
	CostTxSignature:       10_000,
	CostInvoke:            2_000,
	CostInvokeInputByte:   2,
	CostCreateNode:        1_000,
	CostDropNode:          500,
	CostAllocateNodeID:    100,
	CostLockSubstate:      500,
	CostReadSubstate:      200,
	CostReadSubstateByte:  1,
	CostWriteSubstate:     500,
	CostWriteSubstateByte: 2,
	CostDropLock:          100,
	CostCreateSubstate:    5_000,
	CostGlobalize:         10_000,
	CostInstruction:       1_000,
	CostEmitEvent:         500,
	CostEmitLog:           500,
	CostGenerateUUID:      200,
	CostWasmInstantiate:   50_000,
	CostWasmExecuteUnit:   1,
	CostPublishPackage:    100_000,
	CostPublishByte:       10,
}

var costMissingOnce sync.Map // CostEntry → struct{}

// Cost returns the base cost-unit price for one operation. Reads are
// lock-free and safe for concurrent transactions.
func Cost(entry CostEntry) uint64 {
	if c, ok := costTable[entry]; ok {
		return c
	}
	if _, logged := costMissingOnce.LoadOrStore(entry, struct{}{}); !logged {
		logrus.Warnf("cost_table: missing cost for %q, charging default", entry)
	}
	return DefaultCost
}
