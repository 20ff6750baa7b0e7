package core

// Manifest interpreter — executes the instruction sequence against the
// kernel's root frame, maintaining the bucket/proof name tables and the
// transaction worktop. Returned buckets land on the worktop; returned proofs
// land in the auth zone, matching the behaviour callers rely on between
// instructions.

import (
	"fmt"
)

// InstructionOp enumerates the fixed manifest instruction set.
type InstructionOp uint8

const (
	OpTakeFromWorktop InstructionOp = iota
	OpReturnToWorktop
	OpAssertWorktopContains

	OpPopFromAuthZone
	OpPushToAuthZone
	OpClearAuthZone
	OpCreateProofFromAuthZone
	OpCreateProofFromBucket
	OpDropProof
	OpDropAllProofs

	OpCallFunction
	OpCallMethod

	OpPublishPackage
	OpCreateFungibleResource
	OpCreateNonFungibleResource

	OpLockFee
	OpLockContingentFee

	OpMintFungible
	OpMintNonFungible
	OpBurnResource
	OpRecallResource

	OpSetMetadata
	OpSetRole
	OpSetOwnerRole
	OpAssertAccessRule
)

// Instruction is one manifest step; fields are op-specific.
type Instruction struct {
	Op InstructionOp

	// Resource selectors.
	Resource NodeID
	Amount   *Decimal
	IDs      []NonFungibleLocalID
	All      bool

	// Name bindings.
	NewBucketName string
	BucketName    string
	NewProofName  string
	ProofName     string

	// Calls.
	Package   NodeID
	Blueprint string
	Fn        string
	Address   NodeID
	Args      []Value

	// Publishing & creation.
	Code          []byte
	Schema        map[string]BlueprintSchema
	Royalty       PackageRoyaltyConfigSubstate
	Metadata      map[string]string
	Roles         RoleAssignmentSubstate
	Divisibility  uint8
	IDKind        NonFungibleIDKind
	InitialSupply *Decimal
	InitialNFs    map[string][]byte

	// Access control.
	Key   string
	Value string
	Role  string
	Rule  AccessRule
}

// Interpreter drives one manifest.
type Interpreter struct {
	kernel  *Kernel
	worktop NodeID
	buckets map[string]NodeID
	proofs  map[string]NodeID
	anonSeq int
}

// NewInterpreter builds the interpreter and its worktop on the root frame.
func NewInterpreter(k *Kernel) (*Interpreter, error) {
	worktop, err := k.NewWorktop()
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		kernel:  k,
		worktop: worktop,
		buckets: make(map[string]NodeID),
		proofs:  make(map[string]NodeID),
	}, nil
}

// Worktop exposes the worktop node for end-of-manifest checks.
func (ip *Interpreter) Worktop() NodeID { return ip.worktop }

// Run executes every instruction, returning the index of the failing one.
func (ip *Interpreter) Run(instructions []Instruction) (int, error) {
	for idx, ins := range instructions {
		ip.kernel.trace.SetInstruction(idx)
		if err := ip.kernel.chargeExecution(CostInstruction, 1); err != nil {
			return idx, err
		}
		if err := ip.execute(ins); err != nil {
			return idx, err
		}
	}
	return len(instructions), nil
}

func (ip *Interpreter) bindBucket(name string, bucket NodeID) string {
	if name == "" {
		ip.anonSeq++
		name = fmt.Sprintf("bucket%d", ip.anonSeq)
	}
	ip.buckets[name] = bucket
	return name
}

func (ip *Interpreter) bindProof(name string, proof NodeID) string {
	if name == "" {
		ip.anonSeq++
		name = fmt.Sprintf("proof%d", ip.anonSeq)
	}
	ip.proofs[name] = proof
	return name
}

func (ip *Interpreter) takeBucket(name string) (NodeID, error) {
	id, ok := ip.buckets[name]
	if !ok {
		return NodeID{}, interpreterError(&NameResolverError{Kind: "bucket", Name: name})
	}
	delete(ip.buckets, name)
	return id, nil
}

func (ip *Interpreter) takeProof(name string) (NodeID, error) {
	id, ok := ip.proofs[name]
	if !ok {
		return NodeID{}, interpreterError(&NameResolverError{Kind: "proof", Name: name})
	}
	delete(ip.proofs, name)
	return id, nil
}

// resolveValue rewrites manifest-level bucket/proof names and expressions
// into kernel-level node references. Buckets and proofs are consumed by use.
func (ip *Interpreter) resolveValue(v Value) (Value, error) {
	switch v.Kind {
	case KindBucket:
		if v.Address.IsZero() {
			bucket, err := ip.takeBucket(v.Str)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindBucket, Address: bucket}, nil
		}
		return v, nil
	case KindProof:
		if v.Address.IsZero() {
			proof, err := ip.takeProof(v.Str)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindProof, Address: proof}, nil
		}
		return v, nil
	case KindExpression:
		switch v.Expr {
		case ExpressionEntireWorktop:
			buckets, err := ip.kernel.WorktopDrain(ip.worktop)
			if err != nil {
				return Value{}, err
			}
			fields := make([]Value, 0, len(buckets))
			for _, b := range buckets {
				fields = append(fields, Value{Kind: KindBucket, Address: b})
			}
			return Value{Kind: KindArray, ElementKind: KindBucket, Fields: fields}, nil
		case ExpressionEntireAuthZone:
			var fields []Value
			for {
				proof, err := ip.kernel.AuthZonePop()
				if err != nil {
					break
				}
				fields = append(fields, Value{Kind: KindProof, Address: proof})
			}
			return Value{Kind: KindArray, ElementKind: KindProof, Fields: fields}, nil
		}
		return v, nil
	case KindArray, KindTuple, KindEnum, KindMap:
		out := v
		out.Fields = make([]Value, len(v.Fields))
		for i, f := range v.Fields {
			resolved, err := ip.resolveValue(f)
			if err != nil {
				return Value{}, err
			}
			out.Fields[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (ip *Interpreter) resolveArgs(args []Value) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		resolved, err := ip.resolveValue(a)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// handleOutput routes an invocation's returned nodes: buckets to the
// worktop, proofs to the auth zone.
func (ip *Interpreter) handleOutput(v Value) error {
	owned, _ := indexValues([]Value{v})
	for _, id := range owned {
		switch id.EntityType() {
		case EntityBucket:
			if err := ip.kernel.WorktopPut(ip.worktop, id); err != nil {
				return err
			}
		case EntityProof:
			if err := ip.kernel.AuthZonePush(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ip *Interpreter) callMethod(address NodeID, fn string, args []Value) (Value, error) {
	actor, err := ip.kernel.resolveMethodActor(address, ModuleMain, fn)
	if err != nil {
		return Value{}, err
	}
	return ip.kernel.Invoke(actor, args)
}

func (ip *Interpreter) execute(ins Instruction) error {
	k := ip.kernel
	switch ins.Op {
	case OpTakeFromWorktop:
		var bucket NodeID
		var err error
		switch {
		case ins.All:
			bucket, err = k.WorktopTakeAll(ip.worktop, ins.Resource)
		case len(ins.IDs) > 0:
			bucket, err = k.WorktopTakeByIDs(ip.worktop, ins.Resource, ins.IDs)
		case ins.Amount != nil:
			bucket, err = k.WorktopTakeByAmount(ip.worktop, ins.Resource, *ins.Amount)
		default:
			return interpreterError(fmt.Errorf("TakeFromWorktop requires amount, ids or all"))
		}
		if err != nil {
			return err
		}
		ip.bindBucket(ins.NewBucketName, bucket)
		return nil

	case OpReturnToWorktop:
		bucket, err := ip.takeBucket(ins.BucketName)
		if err != nil {
			return err
		}
		return k.WorktopPut(ip.worktop, bucket)

	case OpAssertWorktopContains:
		return k.WorktopAssertContains(ip.worktop, ins.Resource, ins.Amount, ins.IDs)

	case OpPopFromAuthZone:
		proof, err := k.AuthZonePop()
		if err != nil {
			return err
		}
		ip.bindProof(ins.NewProofName, proof)
		return nil

	case OpPushToAuthZone:
		proof, err := ip.takeProof(ins.ProofName)
		if err != nil {
			return err
		}
		return k.AuthZonePush(proof)

	case OpClearAuthZone:
		return k.AuthZoneClear()

	case OpCreateProofFromAuthZone:
		proof, err := k.CreateProofFromAuthZone(ins.Resource, ins.Amount, ins.IDs)
		if err != nil {
			return err
		}
		ip.bindProof(ins.NewProofName, proof)
		return nil

	case OpCreateProofFromBucket:
		bucket, ok := ip.buckets[ins.BucketName]
		if !ok {
			return interpreterError(&NameResolverError{Kind: "bucket", Name: ins.BucketName})
		}
		var proof NodeID
		var err error
		switch {
		case len(ins.IDs) > 0:
			proof, err = k.BucketCreateProofOfIDs(bucket, ins.IDs)
		case ins.Amount != nil:
			proof, err = k.BucketCreateProofOfAmount(bucket, *ins.Amount)
		default:
			proof, err = k.BucketCreateProofOfAll(bucket)
		}
		if err != nil {
			return err
		}
		ip.bindProof(ins.NewProofName, proof)
		return nil

	case OpDropProof:
		proof, err := ip.takeProof(ins.ProofName)
		if err != nil {
			return err
		}
		return k.DropProof(proof)

	case OpDropAllProofs:
		for name := range ip.proofs {
			proof := ip.proofs[name]
			delete(ip.proofs, name)
			if err := k.DropProof(proof); err != nil {
				return err
			}
		}
		return k.AuthZoneClear()

	case OpCallFunction:
		args, err := ip.resolveArgs(ins.Args)
		if err != nil {
			return err
		}
		out, err := k.Invoke(Actor{
			Kind:      ActorFunction,
			Package:   ins.Package,
			Blueprint: ins.Blueprint,
			Fn:        ins.Fn,
		}, args)
		if err != nil {
			return err
		}
		return ip.handleOutput(out)

	case OpCallMethod:
		args, err := ip.resolveArgs(ins.Args)
		if err != nil {
			return err
		}
		out, err := ip.callMethod(ins.Address, ins.Fn, args)
		if err != nil {
			return err
		}
		return ip.handleOutput(out)

	case OpPublishPackage:
		_, err := k.PublishPackage(ins.Code, ins.Schema, ins.Royalty, ins.Metadata, ins.Roles)
		return err

	case OpCreateFungibleResource:
		_, bucket, err := k.CreateFungibleResource(ins.Divisibility, true, ins.InitialSupply, ins.Roles, ins.Metadata)
		if err != nil {
			return err
		}
		if !bucket.IsZero() {
			return k.WorktopPut(ip.worktop, bucket)
		}
		return nil

	case OpCreateNonFungibleResource:
		_, bucket, err := k.CreateNonFungibleResource(ins.IDKind, nil, ins.InitialNFs, ins.Roles, ins.Metadata)
		if err != nil {
			return err
		}
		if !bucket.IsZero() {
			return k.WorktopPut(ip.worktop, bucket)
		}
		return nil

	case OpLockFee:
		if ins.Amount == nil {
			return interpreterError(fmt.Errorf("LockFee requires an amount"))
		}
		_, err := ip.callMethod(ins.Address, "lock_fee", []Value{DecimalValue(*ins.Amount)})
		return err

	case OpLockContingentFee:
		if ins.Amount == nil {
			return interpreterError(fmt.Errorf("LockContingentFee requires an amount"))
		}
		_, err := ip.callMethod(ins.Address, "lock_contingent_fee", []Value{DecimalValue(*ins.Amount)})
		return err

	case OpMintFungible:
		if ins.Amount == nil {
			return interpreterError(fmt.Errorf("MintFungible requires an amount"))
		}
		out, err := ip.callMethod(ins.Resource, "mint", []Value{DecimalValue(*ins.Amount)})
		if err != nil {
			return err
		}
		return ip.handleOutput(out)

	case OpMintNonFungible:
		entries := Value{Kind: KindMap, KeyKind: KindNonFungibleLocalID, ValueKind: KindArray}
		for idStr, data := range ins.InitialNFs {
			id, err := ParseNonFungibleLocalID(idStr)
			if err != nil {
				return interpreterError(err)
			}
			entries.Fields = append(entries.Fields, NFIDValue(id), bytesValue(data))
		}
		out, err := ip.callMethod(ins.Resource, "mint", []Value{entries})
		if err != nil {
			return err
		}
		return ip.handleOutput(out)

	case OpBurnResource:
		bucket, err := ip.takeBucket(ins.BucketName)
		if err != nil {
			return err
		}
		resource, _, err := k.BucketResource(bucket)
		if err != nil {
			return err
		}
		_, err = ip.callMethod(resource, "burn", []Value{{Kind: KindBucket, Address: bucket}})
		return err

	case OpRecallResource:
		if ins.Amount == nil {
			return interpreterError(fmt.Errorf("RecallResource requires an amount"))
		}
		info, err := k.containerInfo(ins.Address)
		if err != nil {
			return err
		}
		out, err := ip.callMethod(info.ResourceAddress, "recall", []Value{AddressValue(ins.Address), DecimalValue(*ins.Amount)})
		if err != nil {
			return err
		}
		return ip.handleOutput(out)

	case OpSetMetadata:
		return k.SetMetadata(ins.Address, ins.Key, ins.Value)

	case OpSetRole:
		return k.SetRole(ins.Address, ins.Role, ins.Rule)

	case OpSetOwnerRole:
		return k.SetOwnerRole(ins.Address, ins.Rule)

	case OpAssertAccessRule:
		proofs, err := k.collectAuthProofs(k.CurrentFrame())
		if err != nil {
			return err
		}
		if !evaluateRule(ins.Rule, proofs, nil) {
			return moduleError(&AuthError{Rule: ins.Rule, Actor: "root"})
		}
		return nil

	default:
		return interpreterError(fmt.Errorf("unknown instruction op %d", ins.Op))
	}
}
