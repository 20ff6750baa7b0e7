package core

import (
	"encoding/json"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func newTestEnv(t *testing.T) (*InMemorySubstateStore, *Executor) {
	t.Helper()
	store := NewInMemorySubstateStore()
	if err := Bootstrap(store, nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return store, NewExecutor(store, nil, FeeReserveConfig{}, nil)
}

// createTestAccount funds a fresh account with 10000 XRD from the faucet and
// returns its address plus the signer's private key bytes.
func createTestAccount(t *testing.T, exec *Executor, store *InMemorySubstateStore) (NodeID, []byte) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	badge := SignerBadge(PublicKeyHash(ethcrypto.CompressPubkey(&key.PublicKey)))
	fee := NewDecimal(5000)
	tx := &Transaction{
		Header: TransactionHeader{EndEpoch: 100},
		Instructions: []Instruction{
			{Op: OpLockFee, Address: FaucetComponent, Amount: &fee},
			{Op: OpCallMethod, Address: FaucetComponent, Fn: "free"},
			{Op: OpTakeFromWorktop, Resource: XRDAddress, All: true, NewBucketName: "xrd"},
			{
				Op:        OpCallFunction,
				Package:   AccountPackage,
				Blueprint: "Account",
				Fn:        "create_with_bucket",
				Args: []Value{
					EncodeRuleValue(RequireNonFungible(badge)),
					{Kind: KindBucket, Str: "xrd"},
				},
			},
		},
	}
	receipt := exec.Execute(tx)
	if receipt.Outcome != OutcomeCommitSuccess {
		t.Fatalf("account creation outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	for _, addr := range receipt.NewGlobalEntities {
		if addr.EntityType() == EntityAccountComponent {
			return addr, ethcrypto.FromECDSA(key)
		}
	}
	t.Fatalf("no account in receipt")
	return NodeID{}, nil
}

func accountXRDVault(t *testing.T, store SubstateStore, account NodeID) NodeID {
	t.Helper()
	payload, _, ok := store.Get(SubstateID{Node: account, Module: ModuleMain, Offset: OffsetComponentState})
	if !ok {
		t.Fatalf("account %s state missing", account)
	}
	var comp ComponentStateSubstate
	if err := json.Unmarshal(payload, &comp); err != nil {
		t.Fatalf("decode component state: %v", err)
	}
	var st accountState
	if err := json.Unmarshal(comp.State, &st); err != nil {
		t.Fatalf("decode account state: %v", err)
	}
	vault, ok := st.Vaults[XRDAddress]
	if !ok {
		t.Fatalf("account %s holds no XRD vault", account)
	}
	return vault
}

func vaultBalance(t *testing.T, store SubstateStore, vault NodeID) Decimal {
	t.Helper()
	payload, _, ok := store.Get(SubstateID{Node: vault, Module: ModuleMain, Offset: OffsetVaultLiquidFungible})
	if !ok {
		t.Fatalf("vault %s liquid missing", vault)
	}
	var liq LiquidFungibleSubstate
	if err := json.Unmarshal(payload, &liq); err != nil {
		t.Fatalf("decode liquid: %v", err)
	}
	return liq.Amount
}

func signedTx(t *testing.T, priv []byte, instructions []Instruction) *Transaction {
	t.Helper()
	tx := &Transaction{
		Header:       TransactionHeader{EndEpoch: 100},
		Instructions: instructions,
	}
	if priv != nil {
		if err := SignTransaction(tx, priv); err != nil {
			t.Fatalf("sign: %v", err)
		}
	}
	return tx
}

func mustSub(t *testing.T, a, b Decimal) Decimal {
	t.Helper()
	d, err := a.Sub(b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	return d
}

func TestSimpleTransfer(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)
	accountB, _ := createTestAccount(t, exec, store)

	fee := NewDecimal(500)
	amount := NewDecimal(66)
	receipt := exec.Execute(signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &fee},
		{Op: OpCallMethod, Address: accountA, Fn: "withdraw", Args: []Value{
			AddressValue(XRDAddress), DecimalValue(amount),
		}},
		{Op: OpCallMethod, Address: accountB, Fn: "try_deposit_batch_or_abort", Args: []Value{
			ExprValue(ExpressionEntireWorktop),
		}},
	}))
	if receipt.Outcome != OutcomeCommitSuccess {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}

	balB := vaultBalance(t, store, accountXRDVault(t, store, accountB))
	if balB.Cmp(NewDecimal(10066)) != 0 {
		t.Fatalf("balance(B)=%s want 10066", balB)
	}
	balA := vaultBalance(t, store, accountXRDVault(t, store, accountA))
	want := mustSub(t, mustSub(t, NewDecimal(10000), amount), receipt.FeeSummary.TotalExecutionCost)
	if balA.Cmp(want) != 0 {
		t.Fatalf("balance(A)=%s want %s", balA, want)
	}
}

func TestFailedTransferStillPaysFee(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)
	accountB, _ := createTestAccount(t, exec, store)

	fee := NewDecimal(500)
	amount := NewDecimal(66)
	one := NewDecimal(1)
	receipt := exec.Execute(signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &fee},
		{Op: OpCallMethod, Address: accountA, Fn: "withdraw", Args: []Value{
			AddressValue(XRDAddress), DecimalValue(amount),
		}},
		{Op: OpCallMethod, Address: accountB, Fn: "try_deposit_batch_or_abort", Args: []Value{
			ExprValue(ExpressionEntireWorktop),
		}},
		{Op: OpAssertWorktopContains, Resource: XRDAddress, Amount: &one},
	}))
	if receipt.Outcome != OutcomeCommitFailure {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	if !strings.Contains(receipt.Error, "assertion failed") {
		t.Fatalf("error=%q want worktop assertion failure", receipt.Error)
	}
	if receipt.InstructionIndex != 3 {
		t.Fatalf("failing instruction=%d want 3", receipt.InstructionIndex)
	}

	// A pays only the fee; the withdrawal is rolled back. B is untouched.
	balA := vaultBalance(t, store, accountXRDVault(t, store, accountA))
	want := mustSub(t, NewDecimal(10000), receipt.FeeSummary.TotalExecutionCost)
	if balA.Cmp(want) != 0 {
		t.Fatalf("balance(A)=%s want %s", balA, want)
	}
	balB := vaultBalance(t, store, accountXRDVault(t, store, accountB))
	if balB.Cmp(NewDecimal(10000)) != 0 {
		t.Fatalf("balance(B)=%s want 10000", balB)
	}
}

func TestRejectionWhenFeeInsufficient(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)

	tiny := MustDecimal("0.000000000000000001")
	receipt := exec.Execute(signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &tiny},
	}))
	if receipt.Outcome != OutcomeReject {
		t.Fatalf("outcome=%s want Reject", receipt.Outcome)
	}
	// Nothing persists, not even a partial debit.
	bal := vaultBalance(t, store, accountXRDVault(t, store, accountA))
	if bal.Cmp(NewDecimal(10000)) != 0 {
		t.Fatalf("balance=%s want 10000", bal)
	}
}

func TestRejectionWhenNoFeePaid(t *testing.T) {
	_, exec := newTestEnv(t)
	receipt := exec.Execute(signedTx(t, nil, nil))
	if receipt.Outcome != OutcomeReject {
		t.Fatalf("outcome=%s want Reject", receipt.Outcome)
	}
}

func TestRejectionWhenEpochOutOfRange(t *testing.T) {
	store, exec := newTestEnv(t)
	if err := SetCurrentEpoch(store, 500); err != nil {
		t.Fatalf("set epoch: %v", err)
	}
	tx := &Transaction{Header: TransactionHeader{StartEpoch: 0, EndEpoch: 100}}
	receipt := exec.Execute(tx)
	if receipt.Outcome != OutcomeReject {
		t.Fatalf("outcome=%s want Reject", receipt.Outcome)
	}
}

func TestLockedFeeVisibleInSummary(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)

	amount := MustDecimal("104.676")
	receipt := exec.Execute(signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &amount},
	}))
	if receipt.Outcome != OutcomeCommitSuccess {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	if receipt.FeeSummary.FeeLocks.Lock.Cmp(amount) != 0 {
		t.Fatalf("fee lock=%s want %s", receipt.FeeSummary.FeeLocks.Lock, amount)
	}
	if !receipt.FeeSummary.FeeLocks.ContingentLock.IsZero() {
		t.Fatalf("contingent lock=%s want 0", receipt.FeeSummary.FeeLocks.ContingentLock)
	}
}

func TestContingentFeeOnlyDebitedOnSuccess(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)
	accountB, keyB := createTestAccount(t, exec, store)

	fee := NewDecimal(500)
	contingent := MustDecimal("0.001")
	one := NewDecimal(1)
	tx := signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &fee},
		{Op: OpLockContingentFee, Address: accountB, Amount: &contingent},
		{Op: OpAssertWorktopContains, Resource: XRDAddress, Amount: &one},
	})
	if err := SignTransaction(tx, keyB); err != nil {
		t.Fatalf("sign B: %v", err)
	}
	receipt := exec.Execute(tx)
	if receipt.Outcome != OutcomeCommitFailure {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	// B's contingent lock is returned in full.
	balB := vaultBalance(t, store, accountXRDVault(t, store, accountB))
	if balB.Cmp(NewDecimal(10000)) != 0 {
		t.Fatalf("balance(B)=%s want 10000", balB)
	}
	balA := vaultBalance(t, store, accountXRDVault(t, store, accountA))
	want := mustSub(t, NewDecimal(10000), receipt.FeeSummary.TotalExecutionCost)
	if balA.Cmp(want) != 0 {
		t.Fatalf("balance(A)=%s want %s", balA, want)
	}
}

func TestUnauthorizedWithdrawFailsAfterFeeLock(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, _ := createTestAccount(t, exec, store)
	_, keyB := createTestAccount(t, exec, store)

	fee := NewDecimal(500)
	amount := NewDecimal(1)
	receipt := exec.Execute(signedTx(t, keyB, []Instruction{
		{Op: OpLockFee, Address: FaucetComponent, Amount: &fee},
		{Op: OpCallMethod, Address: accountA, Fn: "withdraw", Args: []Value{
			AddressValue(XRDAddress), DecimalValue(amount),
		}},
	}))
	if receipt.Outcome != OutcomeCommitFailure {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	if !strings.Contains(receipt.Error, "unauthorized") {
		t.Fatalf("error=%q want unauthorized", receipt.Error)
	}
	bal := vaultBalance(t, store, accountXRDVault(t, store, accountA))
	if bal.Cmp(NewDecimal(10000)) != 0 {
		t.Fatalf("balance(A)=%s want 10000", bal)
	}
}

// Test blueprint used by the call-depth boundary tests.
var testCallerPackage = NewNodeID(EntityPackage, []byte("test:caller"))

func init() {
	nativePackages[testCallerPackage] = true
	nativeFunctions[nativeKey("Caller", "recursive")] = func(k *Kernel, actor Actor, args []Value) (Value, error) {
		n := args[0].Int.Uint64()
		if n == 0 {
			return TupleValue(), nil
		}
		return k.Invoke(Actor{
			Kind:      ActorFunction,
			Package:   testCallerPackage,
			Blueprint: "Caller",
			Fn:        "recursive",
		}, []Value{U64Value(n - 1)})
	}
}

func TestMaxCallDepthBoundary(t *testing.T) {
	_, exec := newTestEnv(t)
	fee := NewDecimal(500)

	run := func(n uint64) *TransactionReceipt {
		return exec.Execute(signedTx(t, nil, []Instruction{
			{Op: OpLockFee, Address: FaucetComponent, Amount: &fee},
			{Op: OpCallFunction, Package: testCallerPackage, Blueprint: "Caller", Fn: "recursive", Args: []Value{
				U64Value(n),
			}},
		}))
	}

	if receipt := run(MaxCallDepth - 2); receipt.Outcome != OutcomeCommitSuccess {
		t.Fatalf("depth %d outcome=%s err=%s", MaxCallDepth-2, receipt.Outcome, receipt.Error)
	}
	receipt := run(MaxCallDepth)
	if receipt.Outcome != OutcomeCommitFailure {
		t.Fatalf("depth %d outcome=%s err=%s", MaxCallDepth, receipt.Outcome, receipt.Error)
	}
	if !strings.Contains(receipt.Error, "max call depth") {
		t.Fatalf("error=%q want max call depth", receipt.Error)
	}
}

func TestResourceConservationAcrossTransfer(t *testing.T) {
	store, exec := newTestEnv(t)
	accountA, keyA := createTestAccount(t, exec, store)
	accountB, _ := createTestAccount(t, exec, store)

	total := func() Decimal {
		sum := vaultBalance(t, store, FaucetVault)
		for _, acct := range []NodeID{accountA, accountB} {
			var err error
			sum, err = sum.Add(vaultBalance(t, store, accountXRDVault(t, store, acct)))
			if err != nil {
				t.Fatalf("sum: %v", err)
			}
		}
		return sum
	}

	before := total()
	fee := NewDecimal(500)
	amount := NewDecimal(250)
	receipt := exec.Execute(signedTx(t, keyA, []Instruction{
		{Op: OpLockFee, Address: accountA, Amount: &fee},
		{Op: OpCallMethod, Address: accountA, Fn: "withdraw", Args: []Value{
			AddressValue(XRDAddress), DecimalValue(amount),
		}},
		{Op: OpCallMethod, Address: accountB, Fn: "try_deposit_batch_or_abort", Args: []Value{
			ExprValue(ExpressionEntireWorktop),
		}},
	}))
	if receipt.Outcome != OutcomeCommitSuccess {
		t.Fatalf("outcome=%s err=%s", receipt.Outcome, receipt.Error)
	}
	// No XRD is minted or burned by a transfer; only the execution fee
	// leaves the three vaults.
	after := total()
	want := mustSub(t, before, receipt.FeeSummary.TotalExecutionCost)
	if after.Cmp(want) != 0 {
		t.Fatalf("total after=%s want %s", after, want)
	}
}
