package core

// Fee reserve — cost-unit metering with a bounded system loan.
//
// Execution starts on credit: the system loan covers metered work until the
// first successful non-contingent lock_fee binds an XRD vault and repays the
// loan (including the deferred transaction-level charges). After that the
// reserve meters against the full cost-unit budget and the locked XRD
// balance. Settlement computes per-vault refunds; the executor applies them
// through force-writes so the fee debit survives a revert.

import (
	"math"
	"math/big"
)

type feePhase uint8

const (
	phasePreLoan feePhase = iota
	phasePostLoan
)

// FeeReserveConfig fixes the transaction-scope pricing parameters.
type FeeReserveConfig struct {
	CostUnitPrice Decimal
	TipPercentage uint16
	MaxCostUnits  uint64
	SystemLoan    uint64
}

// DefaultFeeReserveConfig mirrors the simulator defaults.
func DefaultFeeReserveConfig() FeeReserveConfig {
	return FeeReserveConfig{
		CostUnitPrice: MustDecimal("0.000001"),
		TipPercentage: 0,
		MaxCostUnits:  100_000_000,
		SystemLoan:    600_000,
	}
}

// FeePayment records one lock_fee call.
type FeePayment struct {
	Vault      NodeID  `json:"vault"`
	Amount     Decimal `json:"amount"`
	Contingent bool    `json:"contingent"`
}

// RoyaltyClaim accrues XRD owed to a recipient's vault.
type RoyaltyClaim struct {
	Recipient NodeID  `json:"recipient"`
	Vault     NodeID  `json:"vault"`
	Amount    Decimal `json:"amount"`
}

// FeeLocks is the preview-visible lock summary.
type FeeLocks struct {
	Lock           Decimal `json:"lock"`
	ContingentLock Decimal `json:"contingent_lock"`
}

// FeeSummary is the settled fee outcome carried on every receipt.
type FeeSummary struct {
	CostUnitPrice      Decimal        `json:"cost_unit_price"`
	TipPercentage      uint16         `json:"tip_percentage"`
	CostUnitsConsumed  uint64         `json:"cost_units_consumed"`
	TotalExecutionCost Decimal        `json:"total_execution_cost"`
	TotalRoyaltyCost   Decimal        `json:"total_royalty_cost"`
	FeeLocks           FeeLocks       `json:"fee_locks"`
	Payments           []FeePayment   `json:"payments,omitempty"`
	RoyaltyClaims      []RoyaltyClaim `json:"royalty_claims,omitempty"`
}

// FeeReserve meters one transaction.
type FeeReserve struct {
	cfg            FeeReserveConfig
	effectivePrice Decimal

	phase         feePhase
	consumed      uint64
	deferredUnits uint64

	feeVault        NodeID
	payments        []FeePayment
	lockedTotal     Decimal // non-contingent
	contingentTotal Decimal

	royalties    []RoyaltyClaim
	royaltyTotal Decimal
}

// NewFeeReserve builds a reserve in the pre-loan phase.
func NewFeeReserve(cfg FeeReserveConfig) *FeeReserve {
	// effective price = cost unit price × (100 + tip) / 100
	scaled, err := cfg.CostUnitPrice.MulUint64(uint64(100 + cfg.TipPercentage))
	if err != nil {
		panic("fee reserve: cost unit price overflow")
	}
	price, err := scaled.DivUint64(100)
	if err != nil {
		panic("fee reserve: cost unit price overflow")
	}
	return &FeeReserve{cfg: cfg, effectivePrice: price}
}

// EffectivePrice is the tip-adjusted XRD price per cost unit.
func (r *FeeReserve) EffectivePrice() Decimal { return r.effectivePrice }

// Consumed returns the immediate cost units burned so far.
func (r *FeeReserve) Consumed() uint64 { return r.consumed }

// IsLoanRepaid reports whether a fee vault is bound.
func (r *FeeReserve) IsLoanRepaid() bool { return r.phase == phasePostLoan }

// FeeVault returns the fee-paying vault bound by the first non-contingent
// lock, or a zero id.
func (r *FeeReserve) FeeVault() NodeID { return r.feeVault }

func (r *FeeReserve) xrdFor(units uint64) Decimal {
	d, err := r.effectivePrice.MulUint64(units)
	if err != nil {
		panic("fee reserve: owed amount overflow")
	}
	return d
}

// unitsCovered converts a locked XRD amount into affordable cost units.
// Both values are scale-18, so integer division of the raw values gives the
// floored unit count directly.
func (r *FeeReserve) unitsCovered(locked Decimal) uint64 {
	if r.effectivePrice.IsZero() {
		return r.cfg.MaxCostUnits
	}
	q := new(big.Int).Quo(locked.raw(), r.effectivePrice.raw())
	if !q.IsUint64() {
		return math.MaxUint64
	}
	return q.Uint64()
}

// ConsumeDeferred records a charge that applies at loan repayment: the tx
// base cost, payload size and signature verification. Deferred charges may
// not be issued once the loan is repaid.
func (r *FeeReserve) ConsumeDeferred(entry CostEntry, times uint64) error {
	if r.phase == phasePostLoan {
		return &FeeReserveError{Kind: FeeLockAfterLoanRepaid}
	}
	units := Cost(entry) * times
	if r.consumed+r.deferredUnits+units > r.cfg.SystemLoan {
		return &FeeReserveError{Kind: FeeLoanNotRepaid}
	}
	r.deferredUnits += units
	return nil
}

// ConsumeExecution charges immediate cost units.
func (r *FeeReserve) ConsumeExecution(entry CostEntry, times uint64) error {
	units := Cost(entry) * times
	if r.phase == phasePreLoan {
		if r.consumed+r.deferredUnits+units > r.cfg.SystemLoan {
			return &FeeReserveError{Kind: FeeLoanNotRepaid}
		}
		r.consumed += units
		return nil
	}
	if r.consumed+units > r.cfg.MaxCostUnits {
		return &FeeReserveError{Kind: FeeMaxCostUnitsExceeded}
	}
	if r.consumed+units > r.unitsCovered(r.lockedTotal) {
		return &FeeReserveError{Kind: FeeInsufficientFunds}
	}
	r.consumed += units
	return nil
}

// LockFee records that vault committed amount XRD toward fees. The first
// non-contingent lock must repay the system loan in full and transitions the
// reserve to the post-loan phase.
func (r *FeeReserve) LockFee(vault NodeID, amount Decimal, contingent bool) error {
	if !amount.IsPositive() {
		return &FeeReserveError{Kind: FeeInsufficientBalance}
	}
	if contingent {
		total, err := r.contingentTotal.Add(amount)
		if err != nil {
			return err
		}
		r.contingentTotal = total
		r.payments = append(r.payments, FeePayment{Vault: vault, Amount: amount, Contingent: true})
		return nil
	}
	newLocked, err := r.lockedTotal.Add(amount)
	if err != nil {
		return err
	}
	if r.phase == phasePreLoan {
		owedUnits := r.consumed + r.deferredUnits
		if r.unitsCovered(newLocked) < owedUnits {
			return &FeeReserveError{Kind: FeeLoanNotRepaid}
		}
		r.consumed = owedUnits
		r.deferredUnits = 0
		r.phase = phasePostLoan
		r.feeVault = vault
	}
	r.lockedTotal = newLocked
	r.payments = append(r.payments, FeePayment{Vault: vault, Amount: amount, Contingent: false})
	return nil
}

// ConsumeRoyalty accrues an XRD royalty payable to recipient's vault on
// commit, checking the reserve can still afford it.
func (r *FeeReserve) ConsumeRoyalty(recipient, vault NodeID, amount Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if r.phase == phasePreLoan {
		return &FeeReserveError{Kind: FeeLoanNotRepaid}
	}
	newTotal, err := r.royaltyTotal.Add(amount)
	if err != nil {
		return err
	}
	owed, err := r.xrdFor(r.consumed).Add(newTotal)
	if err != nil {
		return err
	}
	if owed.Cmp(r.lockedTotal) > 0 {
		return &FeeReserveError{Kind: FeeInsufficientFunds}
	}
	r.royaltyTotal = newTotal
	r.royalties = append(r.royalties, RoyaltyClaim{Recipient: recipient, Vault: vault, Amount: amount})
	return nil
}

// FeeSettlement is the finalized debit/credit plan.
type FeeSettlement struct {
	Summary FeeSummary
	// Refunds maps each paying vault to the XRD returned to it.
	Refunds map[NodeID]Decimal
	// RoyaltyPayouts lists the vault credits applied on commit-success.
	RoyaltyPayouts []RoyaltyClaim
}

// Finalize computes the settlement. On success the execution cost and
// royalties are debited and the remainder of every lock is refunded; on
// failure only the execution cost is kept and contingent locks are refunded
// in full.
func (r *FeeReserve) Finalize(success bool) *FeeSettlement {
	execCost := r.xrdFor(r.consumed)
	summary := FeeSummary{
		CostUnitPrice:      r.cfg.CostUnitPrice,
		TipPercentage:      r.cfg.TipPercentage,
		CostUnitsConsumed:  r.consumed,
		TotalExecutionCost: execCost,
		TotalRoyaltyCost:   r.royaltyTotal,
		FeeLocks:           FeeLocks{Lock: r.lockedTotal, ContingentLock: r.contingentTotal},
		Payments:           append([]FeePayment(nil), r.payments...),
		RoyaltyClaims:      append([]RoyaltyClaim(nil), r.royalties...),
	}
	owed := execCost
	if success {
		total, err := owed.Add(r.royaltyTotal)
		if err != nil {
			panic("fee settlement overflow")
		}
		owed = total
	} else {
		summary.TotalRoyaltyCost = DecimalZero
	}

	refunds := make(map[NodeID]Decimal)
	// Cover owed from locks in order: non-contingent first, then (success
	// only) contingent. Whatever is not consumed flows back to its vault.
	settle := func(p FeePayment) {
		refund := p.Amount
		if owed.IsPositive() {
			if p.Amount.Cmp(owed) <= 0 {
				var err error
				owed, err = owed.Sub(p.Amount)
				if err != nil {
					panic("fee settlement overflow")
				}
				refund = DecimalZero
			} else {
				var err error
				refund, err = p.Amount.Sub(owed)
				if err != nil {
					panic("fee settlement overflow")
				}
				owed = DecimalZero
			}
		}
		prev := refunds[p.Vault]
		sum, err := prev.Add(refund)
		if err != nil {
			panic("fee settlement overflow")
		}
		refunds[p.Vault] = sum
	}
	for _, p := range r.payments {
		if !p.Contingent {
			settle(p)
		}
	}
	for _, p := range r.payments {
		if p.Contingent {
			if success {
				settle(p)
			} else {
				prev := refunds[p.Vault]
				sum, err := prev.Add(p.Amount)
				if err != nil {
					panic("fee settlement overflow")
				}
				refunds[p.Vault] = sum
			}
		}
	}

	st := &FeeSettlement{Summary: summary, Refunds: refunds}
	if success {
		st.RoyaltyPayouts = append([]RoyaltyClaim(nil), r.royalties...)
	}
	return st
}
