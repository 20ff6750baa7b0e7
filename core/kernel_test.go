package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// newTestKernel builds a bootstrapped kernel with a generously funded fee
// reserve so unit tests never trip metering.
func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	store := NewInMemorySubstateStore()
	if err := Bootstrap(store, nil); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	fees := NewFeeReserve(DefaultFeeReserveConfig())
	if err := fees.LockFee(FaucetVault, NewDecimal(100_000), false); err != nil {
		t.Fatalf("fund reserve: %v", err)
	}
	var txHash Hash
	copy(txHash[:], []byte("kernel-test-transaction-hash...."))
	return NewKernel(NewTrack(store), fees, nil, txHash)
}

func TestVaultTakePutConserves(t *testing.T) {
	k := newTestKernel(t)
	before, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(123))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	got, err := k.BucketAmount(bucket)
	if err != nil {
		t.Fatalf("bucket amount: %v", err)
	}
	if got.Cmp(NewDecimal(123)) != 0 {
		t.Fatalf("bucket=%s want 123", got)
	}
	if err := k.VaultPut(FaucetVault, bucket); err != nil {
		t.Fatalf("put: %v", err)
	}
	after, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	if after.Cmp(before) != 0 {
		t.Fatalf("vault=%s want %s", after, before)
	}
}

func TestVaultNeverGoesNegative(t *testing.T) {
	k := newTestKernel(t)
	balance, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	over, err := balance.Add(DecimalOne)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := k.VaultTakeByAmount(FaucetVault, over); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	after, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	if after.Cmp(balance) != 0 {
		t.Fatalf("failed take changed balance: %s", after)
	}
}

func TestWorktopTakeReturnRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	worktop, err := k.NewWorktop()
	if err != nil {
		t.Fatalf("worktop: %v", err)
	}
	funding, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(100))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if err := k.WorktopPut(worktop, funding); err != nil {
		t.Fatalf("put: %v", err)
	}
	bucket, err := k.WorktopTakeByAmount(worktop, XRDAddress, NewDecimal(40))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := k.WorktopPut(worktop, bucket); err != nil {
		t.Fatalf("return: %v", err)
	}
	hundred := NewDecimal(100)
	if err := k.WorktopAssertContains(worktop, XRDAddress, &hundred, nil); err != nil {
		t.Fatalf("worktop changed by take/return: %v", err)
	}
}

func TestWorktopAssertFails(t *testing.T) {
	k := newTestKernel(t)
	worktop, err := k.NewWorktop()
	if err != nil {
		t.Fatalf("worktop: %v", err)
	}
	amount := NewDecimal(1)
	err = k.WorktopAssertContains(worktop, XRDAddress, &amount, nil)
	var we *WorktopError
	if !errors.As(err, &we) || we.Kind != WorktopAssertionFailed {
		t.Fatalf("expected assertion failure, got %v", err)
	}
}

func TestProofLocksAndReleases(t *testing.T) {
	k := newTestKernel(t)
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(50))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	proof, err := k.BucketCreateProofOfAmount(bucket, NewDecimal(30))
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	// 30 is pinned: only 20 may leave the bucket.
	if _, err := k.BucketTakeByAmount(bucket, NewDecimal(25)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected pinned balance refusal, got %v", err)
	}
	snap, err := k.snapshotProof(proof)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Resource != XRDAddress || snap.Amount.Cmp(NewDecimal(30)) != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if err := k.DropProof(proof); err != nil {
		t.Fatalf("drop proof: %v", err)
	}
	total, err := k.BucketAmount(bucket)
	if err != nil {
		t.Fatalf("amount: %v", err)
	}
	if total.Cmp(NewDecimal(50)) != 0 {
		t.Fatalf("bucket=%s after proof drop, want 50", total)
	}
	if err := k.VaultPut(FaucetVault, bucket); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestBucketDropNonEmptyRefused(t *testing.T) {
	k := newTestKernel(t)
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(5))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := k.BucketDropEmpty(bucket); !errors.Is(err, ErrResourceNotEmpty) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if err := k.VaultPut(FaucetVault, bucket); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestVaultLockFeeRequiresXRD(t *testing.T) {
	k := newTestKernel(t)
	vault, err := k.NewVault(NewNodeID(EntityFungibleResource, []byte("test:doge")), ResourceFungible)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	err = k.VaultLockFee(vault, NewDecimal(10), false)
	var fe *FeeReserveError
	if !errors.As(err, &fe) || fe.Kind != FeeLockNotRadixToken {
		t.Fatalf("expected LockFeeNotRadixToken, got %v", err)
	}
}

func TestVaultLockFeeRefusesTouchedBase(t *testing.T) {
	k := newTestKernel(t)
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(1))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	err = k.VaultLockFee(FaucetVault, NewDecimal(10), false)
	var te *TrackError
	if !errors.As(err, &te) || te.Kind != TrackBaseAlreadyTouched {
		t.Fatalf("expected BaseAlreadyTouched, got %v", err)
	}
	if err := k.VaultPut(FaucetVault, bucket); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestVaultLockFeeRefusesHeapVault(t *testing.T) {
	k := newTestKernel(t)
	vault, err := k.NewVault(XRDAddress, ResourceFungible)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	err = k.VaultLockFee(vault, NewDecimal(10), false)
	var te *TrackError
	if !errors.As(err, &te) || te.Kind != TrackLockOnHeapNode {
		t.Fatalf("expected heap-node lock refusal, got %v", err)
	}
}

func TestGlobalizeTwiceFails(t *testing.T) {
	k := newTestKernel(t)
	out, err := k.Invoke(Actor{
		Kind:      ActorFunction,
		Package:   AccountPackage,
		Blueprint: "Account",
		Fn:        "create_advanced",
	}, []Value{EncodeRuleValue(AllowAll())})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	account := out.Address
	// The node is tracked now; globalizing again must fail.
	if err := k.Globalize(account, RoleAssignmentSubstate{Owner: AllowAll()}, nil); err == nil {
		t.Fatalf("second globalize should fail")
	}
}

func TestGlobalizeRefusesOwnedBucket(t *testing.T) {
	k := newTestKernel(t)
	component, err := k.AllocateNodeID(EntityNormalComponent)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := k.CreateNode(component, map[SubstateID][]byte{
		{Node: component, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: AccountPackage,
			BlueprintName:  "Account",
		}),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	bucket, err := k.VaultTakeByAmount(FaucetVault, NewDecimal(1))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	k.heap.Get(component).Owned[bucket] = true
	if err := k.Globalize(component, RoleAssignmentSubstate{Owner: AllowAll()}, nil); err == nil {
		t.Fatalf("globalize with owned bucket should fail")
	}
}

func TestComponentReentrancyRefused(t *testing.T) {
	k := newTestKernel(t)
	out, err := k.Invoke(Actor{
		Kind:      ActorFunction,
		Package:   AccountPackage,
		Blueprint: "Account",
		Fn:        "create_advanced",
	}, []Value{EncodeRuleValue(AllowAll())})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	account := out.Address
	h, err := k.LockSubstate(account, ModuleMain, OffsetComponentState, LockMutable, 0)
	if err != nil {
		t.Fatalf("lock state: %v", err)
	}
	actor, err := k.resolveMethodActor(account, ModuleMain, "balance")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	_, err = k.Invoke(actor, []Value{AddressValue(XRDAddress)})
	if err == nil || !strings.Contains(err.Error(), "reentrancy") {
		t.Fatalf("expected reentrancy refusal, got %v", err)
	}
	if err := k.DropLock(h); err != nil {
		t.Fatalf("drop lock: %v", err)
	}
}

func TestPublishPackageRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	code := append([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, []byte("module-body")...)
	pkg, err := k.PublishPackage(code, map[string]BlueprintSchema{
		"Hello": {Functions: []string{"greet"}},
	}, PackageRoyaltyConfigSubstate{}, map[string]string{"name": "hello"}, RoleAssignmentSubstate{Owner: AllowAll()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	back, err := k.PackageCode(pkg)
	if err != nil {
		t.Fatalf("read code: %v", err)
	}
	if !bytes.Equal(back, code) {
		t.Fatalf("code round trip mismatch")
	}
}

func TestPublishRejectsNonWasm(t *testing.T) {
	k := newTestKernel(t)
	if _, err := k.PublishPackage([]byte("not wasm"), nil, PackageRoyaltyConfigSubstate{}, nil, RoleAssignmentSubstate{}); err == nil {
		t.Fatalf("expected wasm validation error")
	}
}

func TestIdempotentVaultRead(t *testing.T) {
	k := newTestKernel(t)
	first, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := k.VaultAmount(FaucetVault)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("repeated read differs: %s vs %s", first, second)
	}
}
