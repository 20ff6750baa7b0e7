package core

// WASM engine boundary. The kernel only consumes the trait below; the
// wasmer-backed implementation wires guest imports onto the kernel syscall
// surface, metering every upcall through the fee reserve.

import (
	"errors"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"
)

// WasmRuntime is the upcall interface handed to guest code. It mirrors the
// kernel API one syscall per method.
type WasmRuntime interface {
	LockSubstate(node NodeID, module ModuleID, offset SubstateOffset, mutable bool) (LockHandle, error)
	ReadSubstate(handle LockHandle) ([]byte, error)
	WriteSubstate(handle LockHandle, payload []byte) error
	DropLock(handle LockHandle) error
	Invoke(args []byte) ([]byte, error)
	NewNode(entity EntityType) (NodeID, error)
	DropNode(id NodeID) error
	GlobalizeNode(id NodeID) error
	EmitEvent(name string, data []byte) error
	EmitLog(level, message string) error
	ConsumeCostUnits(n uint64) error
	GenerateUUID() (string, error)
	TransactionHash() Hash
}

// WasmInstance is one instantiated module.
type WasmInstance interface {
	Invoke(export string, args []byte, runtime WasmRuntime) ([]byte, error)
}

// WasmEngine instantiates guest modules.
type WasmEngine interface {
	Instantiate(code []byte) (WasmInstance, error)
}

// -----------------------------------------------------------------------------
// Kernel-backed runtime
// -----------------------------------------------------------------------------

// kernelRuntime adapts the kernel to the WasmRuntime surface for the
// currently executing frame.
type kernelRuntime struct {
	k *Kernel
}

func (r *kernelRuntime) LockSubstate(node NodeID, module ModuleID, offset SubstateOffset, mutable bool) (LockHandle, error) {
	mode := LockRead
	if mutable {
		mode = LockMutable
	}
	return r.k.LockSubstate(node, module, offset, mode, 0)
}

func (r *kernelRuntime) ReadSubstate(handle LockHandle) ([]byte, error) {
	return r.k.ReadSubstate(handle)
}

func (r *kernelRuntime) WriteSubstate(handle LockHandle, payload []byte) error {
	return r.k.WriteSubstate(handle, payload)
}

func (r *kernelRuntime) DropLock(handle LockHandle) error { return r.k.DropLock(handle) }

func (r *kernelRuntime) Invoke(raw []byte) ([]byte, error) {
	// Wire form: Tuple(Address(package) | Address(component), String(blueprint),
	// String(fn), Tuple(args...)); function vs method selected by the
	// receiver's entity type.
	v, err := DecodeValue(raw)
	if err != nil {
		return nil, applicationError(fmt.Errorf("invoke payload: %w", err))
	}
	if v.Kind != KindTuple || len(v.Fields) != 4 {
		return nil, applicationError(fmt.Errorf("invoke payload must be a 4-tuple"))
	}
	receiver := v.Fields[0].Address
	blueprint := v.Fields[1].Str
	fn := v.Fields[2].Str
	args := v.Fields[3].Fields

	var actor Actor
	if receiver.EntityType() == EntityPackage {
		actor = Actor{Kind: ActorFunction, Package: receiver, Blueprint: blueprint, Fn: fn}
	} else {
		actor, err = r.k.resolveMethodActor(receiver, ModuleMain, fn)
		if err != nil {
			return nil, err
		}
	}
	out, err := r.k.Invoke(actor, args)
	if err != nil {
		return nil, err
	}
	return EncodeValue(out)
}

func (r *kernelRuntime) NewNode(entity EntityType) (NodeID, error) {
	id, err := r.k.AllocateNodeID(entity)
	if err != nil {
		return NodeID{}, err
	}
	if err := r.k.CreateNode(id, map[SubstateID][]byte{}); err != nil {
		return NodeID{}, err
	}
	return id, nil
}

func (r *kernelRuntime) DropNode(id NodeID) error {
	_, err := r.k.DropNode(id)
	return err
}

func (r *kernelRuntime) GlobalizeNode(id NodeID) error {
	return r.k.Globalize(id, RoleAssignmentSubstate{Owner: AllowAll()}, nil)
}

func (r *kernelRuntime) EmitEvent(name string, data []byte) error {
	return r.k.runtime.EmitEvent(r.k.CurrentFrame().Actor().Node, name, data)
}

func (r *kernelRuntime) EmitLog(level, message string) error {
	return r.k.runtime.EmitLog(level, message)
}

func (r *kernelRuntime) ConsumeCostUnits(n uint64) error {
	return r.k.chargeExecution(CostWasmExecuteUnit, n)
}

func (r *kernelRuntime) GenerateUUID() (string, error) {
	if err := r.k.chargeExecution(CostGenerateUUID, 1); err != nil {
		return "", err
	}
	return r.k.runtime.GenerateUUID(), nil
}

func (r *kernelRuntime) TransactionHash() Hash { return r.k.txHash }

// invokeWasm routes a non-native actor through the guest engine.
func (k *Kernel) invokeWasm(actor Actor, args []Value) (Value, error) {
	code, err := k.PackageCode(actor.Package)
	if err != nil {
		return Value{}, err
	}
	if isNativeCode(code) {
		return Value{}, kernelError(fmt.Errorf("no native body for %s", actor))
	}
	if k.wasm == nil {
		return Value{}, kernelError(errors.New("wasm engine not configured"))
	}
	if err := k.chargeExecution(CostWasmInstantiate, 1); err != nil {
		return Value{}, err
	}
	instance, err := k.wasm.Instantiate(code)
	if err != nil {
		return Value{}, applicationError(fmt.Errorf("wasm instantiate: %w", err))
	}
	argsValue := TupleValue(args...)
	encoded, err := EncodeValue(argsValue)
	if err != nil {
		return Value{}, applicationError(err)
	}
	export := actor.Blueprint + "_" + actor.Fn
	out, err := instance.Invoke(export, encoded, &kernelRuntime{k: k})
	if err != nil {
		return Value{}, asApplicationError(err)
	}
	if len(out) == 0 {
		return TupleValue(), nil
	}
	v, err := DecodeValue(out)
	if err != nil {
		return Value{}, applicationError(fmt.Errorf("wasm return payload: %w", err))
	}
	return v, nil
}

// -----------------------------------------------------------------------------
// Wasmer implementation
// -----------------------------------------------------------------------------

// WasmerEngine compiles and runs guest modules with wasmer's JIT.
type WasmerEngine struct {
	engine *wasmer.Engine
}

// NewWasmerEngine builds the default engine.
func NewWasmerEngine() *WasmerEngine {
	return &WasmerEngine{engine: wasmer.NewEngine()}
}

func (e *WasmerEngine) Instantiate(code []byte) (WasmInstance, error) {
	return &wasmerInstance{engine: e.engine, code: code}, nil
}

type wasmerInstance struct {
	engine *wasmer.Engine
	code   []byte
}

type wasmerHostCtx struct {
	mem     *wasmer.Memory
	runtime WasmRuntime
	failure error
}

func (h *wasmerHostCtx) read(ptr, ln int32) []byte {
	data := h.mem.Data()
	if ptr < 0 || ln < 0 || int(ptr+ln) > len(data) {
		return nil
	}
	out := make([]byte, ln)
	copy(out, data[ptr:ptr+ln])
	return out
}

func (h *wasmerHostCtx) write(ptr int32, data []byte) {
	copy(h.mem.Data()[ptr:], data)
}

func (in *wasmerInstance) Invoke(export string, args []byte, runtime WasmRuntime) ([]byte, error) {
	store := wasmer.NewStore(in.engine)
	mod, err := wasmer.NewModule(store, in.code)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	hctx := &wasmerHostCtx{runtime: runtime}
	imports := registerEngineHost(store, hctx)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, ErrWasmExportMissing
	}
	hctx.mem = mem

	fn, err := instance.Exports.GetFunction(export)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWasmExportMissing, export)
	}
	// Calling convention: guest allocates via exported `alloc`, host copies
	// args in, guest returns ptr<<32|len of the response buffer.
	alloc, err := instance.Exports.GetFunction("alloc")
	if err != nil {
		return nil, fmt.Errorf("%w: alloc", ErrWasmExportMissing)
	}
	ptrRaw, err := alloc(len(args))
	if err != nil {
		return nil, err
	}
	ptr, _ := ptrRaw.(int32)
	hctx.write(ptr, args)

	ret, err := fn(ptr, int32(len(args)))
	if hctx.failure != nil {
		return nil, hctx.failure
	}
	if err != nil {
		return nil, err
	}
	packed, ok := ret.(int64)
	if !ok || packed == 0 {
		return nil, nil
	}
	outPtr := int32(packed >> 32)
	outLen := int32(packed & 0xffffffff)
	return hctx.read(outPtr, outLen), nil
}

// registerEngineHost exposes the kernel syscalls under the "env" namespace.
func registerEngineHost(store *wasmer.Store, h *wasmerHostCtx) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.ValueKind(wasmer.I32)
	i64 := wasmer.ValueKind(wasmer.I64)

	fail := func(err error) {
		if h.failure == nil {
			h.failure = err
		}
	}

	hostConsume := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i64), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.runtime.ConsumeCostUnits(uint64(args[0].I64())); err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostInvoke := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			payload := h.read(args[0].I32(), args[1].I32())
			out, err := h.runtime.Invoke(payload)
			if err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			h.write(args[2].I32(), out)
			return []wasmer.Value{wasmer.NewI32(int32(len(out)))}, nil
		})

	hostReadSubstate := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			payload, err := h.runtime.ReadSubstate(LockHandle(args[0].I32()))
			if err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			h.write(args[1].I32(), payload)
			return []wasmer.Value{wasmer.NewI32(int32(len(payload)))}, nil
		})

	hostWriteSubstate := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			payload := h.read(args[1].I32(), args[2].I32())
			if err := h.runtime.WriteSubstate(LockHandle(args[0].I32()), payload); err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostLockSubstate := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32, i32, i32, i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			raw := h.read(args[0].I32(), args[1].I32())
			if len(raw) != NodeIDLength {
				fail(fmt.Errorf("lock_substate: bad node id"))
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			var node NodeID
			copy(node[:], raw)
			handle, err := h.runtime.LockSubstate(node, ModuleID(args[2].I32()), SubstateOffset(args[3].I32()), args[4].I32() == 1)
			if err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(int32(handle))}, nil
		})

	hostDropLock := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32), wasmer.NewValueTypes(i32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.runtime.DropLock(LockHandle(args[0].I32())); err != nil {
				fail(err)
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		})

	hostEmitLog := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32, i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			msg := h.read(args[0].I32(), args[1].I32())
			if err := h.runtime.EmitLog("info", string(msg)); err != nil {
				fail(err)
			}
			return []wasmer.Value{}, nil
		})

	hostTxHash := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(i32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			hash := h.runtime.TransactionHash()
			h.write(args[0].I32(), hash[:])
			return []wasmer.Value{}, nil
		})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_cost_units": hostConsume,
		"host_invoke":             hostInvoke,
		"host_lock_substate":      hostLockSubstate,
		"host_read_substate":      hostReadSubstate,
		"host_write_substate":     hostWriteSubstate,
		"host_drop_lock":          hostDropLock,
		"host_emit_log":           hostEmitLog,
		"host_transaction_hash":   hostTxHash,
	})
	return imports
}

// encodeInvokePayload builds the wire form consumed by kernelRuntime.Invoke;
// the tests use it to check the payload shape.
func encodeInvokePayload(receiver NodeID, blueprint, fn string, args []Value) ([]byte, error) {
	return EncodeValue(TupleValue(
		AddressValue(receiver),
		StringValue(blueprint),
		StringValue(fn),
		TupleValue(args...),
	))
}
