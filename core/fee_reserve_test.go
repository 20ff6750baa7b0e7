package core

import (
	"testing"
)

func testVaultID(n byte) NodeID {
	var id NodeID
	id[0] = byte(EntityFungibleVault)
	id[1] = n
	return id
}

func TestFeeReserveLoanRepayment(t *testing.T) {
	r := NewFeeReserve(DefaultFeeReserveConfig())
	if err := r.ConsumeDeferred(CostTxBase, 1); err != nil {
		t.Fatalf("deferred: %v", err)
	}
	if err := r.ConsumeExecution(CostInvoke, 1); err != nil {
		t.Fatalf("pre-loan execution: %v", err)
	}
	if r.IsLoanRepaid() {
		t.Fatalf("loan repaid before any lock")
	}
	if err := r.LockFee(testVaultID(1), NewDecimal(500), false); err != nil {
		t.Fatalf("lock fee: %v", err)
	}
	if !r.IsLoanRepaid() {
		t.Fatalf("loan should be repaid")
	}
	if r.FeeVault() != testVaultID(1) {
		t.Fatalf("fee vault not bound")
	}
	// Deferred charges are folded into consumed at repayment.
	if r.Consumed() < Cost(CostTxBase)+Cost(CostInvoke) {
		t.Fatalf("consumed=%d missing deferred charges", r.Consumed())
	}
	if err := r.ConsumeDeferred(CostTxBase, 1); err == nil {
		t.Fatalf("deferred charge after repayment should fail")
	}
}

func TestFeeReserveTinyLockCannotRepayLoan(t *testing.T) {
	r := NewFeeReserve(DefaultFeeReserveConfig())
	if err := r.ConsumeExecution(CostInvoke, 1); err != nil {
		t.Fatalf("pre-loan execution: %v", err)
	}
	err := r.LockFee(testVaultID(1), MustDecimal("0.000000000000000001"), false)
	fe, ok := err.(*FeeReserveError)
	if !ok || fe.Kind != FeeLoanNotRepaid {
		t.Fatalf("expected LoanNotRepaid, got %v", err)
	}
	if r.IsLoanRepaid() {
		t.Fatalf("loan must remain unrepaid")
	}
}

func TestFeeReservePreLoanBudgetIsTheLoan(t *testing.T) {
	cfg := DefaultFeeReserveConfig()
	cfg.SystemLoan = 1_000
	r := NewFeeReserve(cfg)
	err := r.ConsumeExecution(CostInvoke, 1) // 2000 > 1000
	fe, ok := err.(*FeeReserveError)
	if !ok || fe.Kind != FeeLoanNotRepaid {
		t.Fatalf("expected LoanNotRepaid, got %v", err)
	}
}

func TestFeeReserveMaxCostUnits(t *testing.T) {
	cfg := DefaultFeeReserveConfig()
	cfg.MaxCostUnits = Cost(CostInvoke) * 2
	r := NewFeeReserve(cfg)
	if err := r.LockFee(testVaultID(1), NewDecimal(1000), false); err != nil {
		t.Fatalf("lock fee: %v", err)
	}
	if err := r.ConsumeExecution(CostInvoke, 1); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if err := r.ConsumeExecution(CostInvoke, 1); err != nil {
		t.Fatalf("second consume: %v", err)
	}
	err := r.ConsumeExecution(CostInvoke, 1)
	fe, ok := err.(*FeeReserveError)
	if !ok || fe.Kind != FeeMaxCostUnitsExceeded {
		t.Fatalf("expected MaxCostUnitsExceeded, got %v", err)
	}
}

func TestFeeReserveSettlementOnFailureRefundsContingent(t *testing.T) {
	r := NewFeeReserve(DefaultFeeReserveConfig())
	if err := r.LockFee(testVaultID(1), NewDecimal(500), false); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := r.LockFee(testVaultID(2), MustDecimal("0.001"), true); err != nil {
		t.Fatalf("contingent lock: %v", err)
	}
	if err := r.ConsumeExecution(CostInvoke, 10); err != nil {
		t.Fatalf("consume: %v", err)
	}

	st := r.Finalize(false)
	if st.Summary.FeeLocks.Lock.Cmp(NewDecimal(500)) != 0 {
		t.Fatalf("lock summary=%s want 500", st.Summary.FeeLocks.Lock)
	}
	if st.Summary.FeeLocks.ContingentLock.Cmp(MustDecimal("0.001")) != 0 {
		t.Fatalf("contingent summary=%s", st.Summary.FeeLocks.ContingentLock)
	}
	// Contingent vault refunded in full on failure.
	if st.Refunds[testVaultID(2)].Cmp(MustDecimal("0.001")) != 0 {
		t.Fatalf("contingent refund=%s want 0.001", st.Refunds[testVaultID(2)])
	}
	// Paying vault refunded everything except the execution cost.
	owed := st.Summary.TotalExecutionCost
	wantRefund, err := NewDecimal(500).Sub(owed)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if st.Refunds[testVaultID(1)].Cmp(wantRefund) != 0 {
		t.Fatalf("refund=%s want %s", st.Refunds[testVaultID(1)], wantRefund)
	}
}

func TestFeeReserveRoyaltyOnlyPostLoan(t *testing.T) {
	r := NewFeeReserve(DefaultFeeReserveConfig())
	if err := r.ConsumeRoyalty(testVaultID(9), testVaultID(9), NewDecimal(1)); err == nil {
		t.Fatalf("royalty pre-loan should fail")
	}
	if err := r.LockFee(testVaultID(1), NewDecimal(100), false); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := r.ConsumeRoyalty(testVaultID(9), testVaultID(9), NewDecimal(1)); err != nil {
		t.Fatalf("royalty: %v", err)
	}
	st := r.Finalize(true)
	if st.Summary.TotalRoyaltyCost.Cmp(NewDecimal(1)) != 0 {
		t.Fatalf("royalty cost=%s want 1", st.Summary.TotalRoyaltyCost)
	}
	if len(st.RoyaltyPayouts) != 1 {
		t.Fatalf("expected one royalty payout")
	}
}
