package core

// Faucet blueprint — the genesis test-token dispenser. Holds a large XRD
// vault; `free` hands out a fixed allowance and `lock_fee` lets manifests
// pay fees straight from the faucet.

import "fmt"

type faucetState struct {
	Vault NodeID `json:"vault"`
}

// FaucetFreeAmount is the XRD handed out per `free` call.
var FaucetFreeAmount = NewDecimal(10_000)

func (k *Kernel) faucetVault(faucet NodeID) (NodeID, error) {
	var comp ComponentStateSubstate
	if err := k.readTyped(SubstateID{Node: faucet, Module: ModuleMain, Offset: OffsetComponentState}, &comp); err != nil {
		return NodeID{}, err
	}
	var st faucetState
	if err := decodeSubstate(comp.State, &st); err != nil {
		return NodeID{}, applicationError(err)
	}
	k.CurrentFrame().AddRef(st.Vault)
	return st.Vault, nil
}

// faucetFree withdraws the standard allowance into a bucket.
func faucetFree(k *Kernel, actor Actor, args []Value) (Value, error) {
	vault, err := k.faucetVault(actor.Node)
	if err != nil {
		return Value{}, err
	}
	bucket, err := k.VaultTakeByAmount(vault, FaucetFreeAmount)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// faucetLockFee locks a fee against the faucet's vault.
func faucetLockFee(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("lock_fee expects (Decimal)"))
	}
	vault, err := k.faucetVault(actor.Node)
	if err != nil {
		return Value{}, err
	}
	if err := k.VaultLockFee(vault, args[0].Decimal, false); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}
