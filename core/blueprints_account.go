package core

// Account blueprint — the native component that holds a user's vaults.
//
// State is a resource → vault table. Deposits are public; withdrawals, fee
// locks and proof creation are guarded by the owner role, normally the
// signer badge derived from the account's public key.

import (
	"fmt"
)

type accountState struct {
	Vaults map[NodeID]NodeID `json:"vaults"`
}

// accountCreateAdvanced creates and globalizes an account whose owner rule
// is supplied by the caller. Returns the account address.
func accountCreateAdvanced(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, applicationError(fmt.Errorf("create_advanced expects (owner rule)"))
	}
	rule, err := decodeRuleValue(args[0])
	if err != nil {
		return Value{}, applicationError(err)
	}
	account, err := k.AllocateNodeID(EntityAccountComponent)
	if err != nil {
		return Value{}, err
	}
	substates := map[SubstateID][]byte{
		{Node: account, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: AccountPackage,
			BlueprintName:  "Account",
		}),
		{Node: account, Module: ModuleMain, Offset: OffsetComponentState}: encodeSubstate(&ComponentStateSubstate{
			State: encodeSubstate(&accountState{Vaults: map[NodeID]NodeID{}}),
		}),
	}
	if err := k.CreateNode(account, substates); err != nil {
		return Value{}, err
	}
	roles := RoleAssignmentSubstate{Owner: rule}
	if err := k.Globalize(account, roles, nil); err != nil {
		return Value{}, err
	}
	k.log.WithField("account", account.String()).Info("account created")
	return AddressValue(account), nil
}

// accountCreateWithBucket creates an account and seeds it with the supplied
// bucket in one call, so a fresh ledger can fund an account whose address is
// not yet known when the manifest is built.
func accountCreateWithBucket(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[1].Kind != KindBucket {
		return Value{}, applicationError(fmt.Errorf("create_with_bucket expects (owner rule, Bucket)"))
	}
	out, err := accountCreateAdvanced(k, actor, args[:1])
	if err != nil {
		return Value{}, err
	}
	depositActor := Actor{
		Kind:      ActorMethod,
		Node:      out.Address,
		Package:   AccountPackage,
		Blueprint: "Account",
		Fn:        "deposit",
	}
	if _, err := accountDeposit(k, depositActor, args[1:]); err != nil {
		return Value{}, err
	}
	return out, nil
}

func (k *Kernel) readAccountState(account NodeID) (*accountState, error) {
	var comp ComponentStateSubstate
	if err := k.readTyped(SubstateID{Node: account, Module: ModuleMain, Offset: OffsetComponentState}, &comp); err != nil {
		return nil, err
	}
	var st accountState
	if err := decodeSubstate(comp.State, &st); err != nil {
		return nil, applicationError(err)
	}
	return &st, nil
}

func (k *Kernel) writeAccountState(account NodeID, st *accountState) error {
	id := SubstateID{Node: account, Module: ModuleMain, Offset: OffsetComponentState}
	return k.withSubstate(id, LockMutable, 0, func([]byte) ([]byte, error) {
		return encodeSubstate(&ComponentStateSubstate{State: encodeSubstate(st)}), nil
	})
}

// accountVault resolves the account's vault for a resource, creating one on
// first deposit when create is set.
func (k *Kernel) accountVault(account, resource NodeID, create bool) (NodeID, error) {
	st, err := k.readAccountState(account)
	if err != nil {
		return NodeID{}, err
	}
	if vault, ok := st.Vaults[resource]; ok {
		k.CurrentFrame().AddRef(vault)
		return vault, nil
	}
	if !create {
		return NodeID{}, applicationError(fmt.Errorf("account %s holds no vault for %s: %w", account, resource, ErrNotFound))
	}
	resourceType := ResourceFungible
	if resource.EntityType() == EntityNonFungibleResource {
		resourceType = ResourceNonFungible
	}
	vault, err := k.NewVault(resource, resourceType)
	if err != nil {
		return NodeID{}, err
	}
	// Promote the fresh vault into the track under the account's ownership.
	if frame := k.frameOwning(vault); frame != nil {
		_ = frame.releaseOwnership(vault)
	}
	if err := k.moveNodeToTrack(vault, false); err != nil {
		return NodeID{}, err
	}
	st.Vaults[resource] = vault
	if err := k.writeAccountState(account, st); err != nil {
		return NodeID{}, err
	}
	k.CurrentFrame().AddRef(vault)
	return vault, nil
}

// accountDeposit accepts one bucket.
func accountDeposit(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindBucket {
		return Value{}, applicationError(fmt.Errorf("deposit expects (Bucket)"))
	}
	bucket := args[0].Address
	resource, _, err := k.BucketResource(bucket)
	if err != nil {
		return Value{}, err
	}
	vault, err := k.accountVault(actor.Node, resource, true)
	if err != nil {
		return Value{}, err
	}
	if err := k.VaultPut(vault, bucket); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}

// accountDepositBatch accepts an array of buckets.
func accountDepositBatch(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || (args[0].Kind != KindArray && args[0].Kind != KindTuple) {
		return Value{}, applicationError(fmt.Errorf("deposit_batch expects (Array<Bucket>)"))
	}
	for _, f := range args[0].Fields {
		if f.Kind != KindBucket {
			return Value{}, applicationError(fmt.Errorf("deposit_batch expects buckets"))
		}
		if _, err := accountDeposit(k, actor, []Value{f}); err != nil {
			return Value{}, err
		}
	}
	return TupleValue(), nil
}

// accountWithdraw takes (resource, amount) from the matching vault.
func accountWithdraw(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindAddress || args[1].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("withdraw expects (Address, Decimal)"))
	}
	vault, err := k.accountVault(actor.Node, args[0].Address, false)
	if err != nil {
		return Value{}, err
	}
	bucket, err := k.VaultTakeByAmount(vault, args[1].Decimal)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// accountWithdrawNonFungibles takes named ids.
func accountWithdrawNonFungibles(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindAddress || args[1].Kind != KindArray {
		return Value{}, applicationError(fmt.Errorf("withdraw_non_fungibles expects (Address, Array<NonFungibleLocalId>)"))
	}
	vault, err := k.accountVault(actor.Node, args[0].Address, false)
	if err != nil {
		return Value{}, err
	}
	var ids []NonFungibleLocalID
	for _, f := range args[1].Fields {
		ids = append(ids, f.NFID)
	}
	bucket, err := k.VaultTakeByIDs(vault, ids)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindBucket, Address: bucket}, nil
}

// accountLockFee locks a transaction fee against the account's XRD vault.
func accountLockFee(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("lock_fee expects (Decimal)"))
	}
	vault, err := k.accountVault(actor.Node, XRDAddress, false)
	if err != nil {
		return Value{}, err
	}
	if err := k.VaultLockFee(vault, args[0].Decimal, false); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}

// accountLockContingentFee locks a success-contingent fee.
func accountLockContingentFee(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("lock_contingent_fee expects (Decimal)"))
	}
	vault, err := k.accountVault(actor.Node, XRDAddress, false)
	if err != nil {
		return Value{}, err
	}
	if err := k.VaultLockFee(vault, args[0].Decimal, true); err != nil {
		return Value{}, err
	}
	return TupleValue(), nil
}

// accountLockFeeAndWithdraw combines the two owner operations in one call.
func accountLockFeeAndWithdraw(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 3 {
		return Value{}, applicationError(fmt.Errorf("lock_fee_and_withdraw expects (Decimal, Address, Decimal)"))
	}
	if _, err := accountLockFee(k, actor, args[:1]); err != nil {
		return Value{}, err
	}
	return accountWithdraw(k, actor, args[1:])
}

// accountCreateProofOfAmount builds a proof from the account's vault.
func accountCreateProofOfAmount(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 2 || args[0].Kind != KindAddress || args[1].Kind != KindDecimal {
		return Value{}, applicationError(fmt.Errorf("create_proof_of_amount expects (Address, Decimal)"))
	}
	vault, err := k.accountVault(actor.Node, args[0].Address, false)
	if err != nil {
		return Value{}, err
	}
	proof, err := k.VaultCreateProofOfAmount(vault, args[1].Decimal)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindProof, Address: proof}, nil
}

// accountBalance reads a vault balance; zero when no vault exists.
func accountBalance(k *Kernel, actor Actor, args []Value) (Value, error) {
	if len(args) != 1 || args[0].Kind != KindAddress {
		return Value{}, applicationError(fmt.Errorf("balance expects (Address)"))
	}
	vault, err := k.accountVault(actor.Node, args[0].Address, false)
	if err != nil {
		return DecimalValue(DecimalZero), nil
	}
	amount, err := k.VaultAmount(vault)
	if err != nil {
		return Value{}, err
	}
	return DecimalValue(amount), nil
}

// accountSecurify swaps the signer-badge owner rule for a fresh owner badge
// minted into the returned bucket.
func accountSecurify(k *Kernel, actor Actor, args []Value) (Value, error) {
	badgeResource, badgeBucket, err := k.CreateNonFungibleResource(
		NFIDInteger, nil,
		map[string][]byte{IntegerID(1).String(): nil},
		RoleAssignmentSubstate{Owner: DenyAll()},
		map[string]string{"name": "Account Owner Badge"},
	)
	if err != nil {
		return Value{}, err
	}
	rolesID := SubstateID{Node: actor.Node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}
	err = k.withSubstate(rolesID, LockMutable, 0, func(payload []byte) ([]byte, error) {
		var roles RoleAssignmentSubstate
		if err := decodeSubstate(payload, &roles); err != nil {
			return nil, err
		}
		roles.Owner = RequireNonFungible(NonFungibleGlobalID{Resource: badgeResource, Local: IntegerID(1)})
		return encodeSubstate(&roles), nil
	})
	if err != nil {
		return Value{}, asApplicationError(err)
	}
	return Value{Kind: KindBucket, Address: badgeBucket}, nil
}

// decodeRuleValue converts the wire form of an access rule (a JSON blob in
// an Array<U8>) back into the rule tree.
func decodeRuleValue(v Value) (AccessRule, error) {
	raw := valueToBytes(v)
	if raw == nil {
		return AccessRule{}, fmt.Errorf("expected encoded access rule")
	}
	var rule AccessRule
	if err := decodeSubstate(raw, &rule); err != nil {
		return AccessRule{}, err
	}
	return rule, nil
}

// EncodeRuleValue is the inverse of decodeRuleValue; manifest builders use
// it to pass rules to the account natives.
func EncodeRuleValue(rule AccessRule) Value {
	return bytesValue(encodeSubstate(&rule))
}
