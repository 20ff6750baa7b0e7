package core

// Transaction executor — the top-level orchestrator. Validates the envelope,
// builds the per-transaction track/fee-reserve/kernel, runs the interpreter,
// settles fees and produces a receipt the host ledger can commit or discard.

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// TransactionHeader carries the envelope-level parameters.
type TransactionHeader struct {
	Nonce         uint64 `json:"nonce"`
	StartEpoch    uint64 `json:"start_epoch"`
	EndEpoch      uint64 `json:"end_epoch"`
	TipPercentage uint16 `json:"tip_percentage"`
}

// Transaction is a signed manifest ready for execution.
type Transaction struct {
	Header       TransactionHeader `json:"header"`
	Instructions []Instruction     `json:"instructions"`
	Blobs        [][]byte          `json:"blobs,omitempty"`
	// Signatures are 65-byte [R||S||V] secp256k1 recoverable signatures
	// over the payload hash.
	Signatures [][]byte `json:"signatures,omitempty"`
}

// PayloadHash is the digest signatures commit to.
func (tx *Transaction) PayloadHash() Hash {
	body, err := json.Marshal(struct {
		Header       TransactionHeader `json:"header"`
		Instructions []Instruction     `json:"instructions"`
	}{tx.Header, tx.Instructions})
	if err != nil {
		panic(fmt.Sprintf("transaction hash: %v", err))
	}
	return sha256.Sum256(body)
}

// SignTransaction appends a recoverable signature using the given secp256k1
// private key bytes.
func SignTransaction(tx *Transaction, privKey []byte) error {
	key, err := ethcrypto.ToECDSA(privKey)
	if err != nil {
		return fmt.Errorf("parse private key: %w", err)
	}
	hash := tx.PayloadHash()
	sig, err := ethcrypto.Sign(hash[:], key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// PublicKeyHash is the badge-local-id digest of a compressed public key.
func PublicKeyHash(compressed []byte) []byte {
	sum := sha256.Sum256(compressed)
	return sum[:]
}

// recoverSigners validates every signature and returns the signer badges.
func (tx *Transaction) recoverSigners() ([]NonFungibleGlobalID, error) {
	hash := tx.PayloadHash()
	badges := make([]NonFungibleGlobalID, 0, len(tx.Signatures))
	for i, sig := range tx.Signatures {
		if len(sig) != 65 {
			return nil, fmt.Errorf("signature %d malformed", i)
		}
		pub, err := ethcrypto.SigToPub(hash[:], sig)
		if err != nil {
			return nil, fmt.Errorf("signature %d invalid: %w", i, err)
		}
		badges = append(badges, SignerBadge(PublicKeyHash(ethcrypto.CompressPubkey(pub))))
	}
	return badges, nil
}

// OutcomeKind is the receipt tier.
type OutcomeKind uint8

const (
	OutcomeCommitSuccess OutcomeKind = iota
	OutcomeCommitFailure
	OutcomeReject
	OutcomeAbort
)

func (o OutcomeKind) String() string {
	switch o {
	case OutcomeCommitSuccess:
		return "CommitSuccess"
	case OutcomeCommitFailure:
		return "CommitFailure"
	case OutcomeReject:
		return "Reject"
	case OutcomeAbort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// IsCommit reports whether state (at least the fee debit) persists.
func (o OutcomeKind) IsCommit() bool {
	return o == OutcomeCommitSuccess || o == OutcomeCommitFailure
}

// TransactionReceipt is the full execution result.
type TransactionReceipt struct {
	Outcome           OutcomeKind  `json:"outcome"`
	Error             string       `json:"error,omitempty"`
	InstructionIndex  int          `json:"instruction_index"`
	FeeSummary        FeeSummary   `json:"fee_summary"`
	StateUpdates      *Changeset   `json:"-"`
	NewGlobalEntities []NodeID     `json:"new_global_entities,omitempty"`
	Events            []Event      `json:"events,omitempty"`
	Logs              []LogEntry   `json:"logs,omitempty"`
	ExecutionTrace    []TraceEntry `json:"execution_trace,omitempty"`
}

// Executor runs transactions against one substate store.
type Executor struct {
	store SubstateStore
	wasm  WasmEngine
	cfg   FeeReserveConfig
	log   *logrus.Logger
}

// NewExecutor wires an executor; cfg zero-value fields fall back to the
// defaults.
func NewExecutor(store SubstateStore, wasm WasmEngine, cfg FeeReserveConfig, lg *logrus.Logger) *Executor {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	def := DefaultFeeReserveConfig()
	if cfg.CostUnitPrice.IsZero() {
		cfg.CostUnitPrice = def.CostUnitPrice
	}
	if cfg.MaxCostUnits == 0 {
		cfg.MaxCostUnits = def.MaxCostUnits
	}
	if cfg.SystemLoan == 0 {
		cfg.SystemLoan = def.SystemLoan
	}
	return &Executor{store: store, wasm: wasm, cfg: cfg, log: lg}
}

// Execute runs the transaction end to end and returns its receipt. The
// changeset is committed to the store for commit outcomes.
func (e *Executor) Execute(tx *Transaction) *TransactionReceipt {
	receipt := &TransactionReceipt{InstructionIndex: -1}
	txHash := tx.PayloadHash()

	// Envelope validation: signatures, then epoch window.
	badges, err := tx.recoverSigners()
	if err != nil {
		receipt.Outcome = OutcomeReject
		receipt.Error = err.Error()
		return receipt
	}
	epoch := CurrentEpoch(e.store)
	if epoch < tx.Header.StartEpoch || epoch >= tx.Header.EndEpoch {
		receipt.Outcome = OutcomeReject
		receipt.Error = fmt.Sprintf("epoch %d outside [%d, %d)", epoch, tx.Header.StartEpoch, tx.Header.EndEpoch)
		return receipt
	}

	cfg := e.cfg
	cfg.TipPercentage = tx.Header.TipPercentage
	fees := NewFeeReserve(cfg)
	track := NewTrack(e.store)
	kernel := NewKernel(track, fees, e.wasm, txHash)

	runErr := func() error {
		// Deferred transaction-level charges: applied at loan repayment.
		if err := fees.ConsumeDeferred(CostTxBase, 1); err != nil {
			return err
		}
		payloadSize := uint64(0)
		if body, err := json.Marshal(tx); err == nil {
			payloadSize = uint64(len(body))
		}
		if err := fees.ConsumeDeferred(CostTxPayloadByte, payloadSize); err != nil {
			return err
		}
		if err := fees.ConsumeDeferred(CostTxSignature, uint64(len(tx.Signatures))); err != nil {
			return err
		}
		for _, badge := range badges {
			if err := kernel.AddVirtualSignerBadge(badge); err != nil {
				return err
			}
		}
		interp, err := NewInterpreter(kernel)
		if err != nil {
			return err
		}
		idx, err := interp.Run(tx.Instructions)
		if err != nil {
			receipt.InstructionIndex = idx
			return err
		}
		// End-of-manifest: the worktop must have been consumed.
		empty, werr := kernel.worktopIsEmpty(interp.Worktop())
		if werr != nil {
			return werr
		}
		if !empty {
			return applicationError(&WorktopError{Kind: WorktopResourceLeak})
		}
		return nil
	}()

	// Drop the root frame: auth zone drains, transient nodes drop, leaks
	// surface.
	if dropErr := kernel.dropFrame(kernel.RootFrame()); dropErr != nil && runErr == nil {
		runErr = dropErr
	}
	if runErr == nil && kernel.Heap().Len() > 0 {
		runErr = applicationError(fmt.Errorf("%w: %d nodes alive at end of transaction", ErrResourceLeak, kernel.Heap().Len()))
	}
	for _, m := range kernel.modules {
		if ferr := m.OnExecutionFinish(kernel); ferr != nil && runErr == nil {
			runErr = ferr
		}
	}

	outcome := classifyOutcome(runErr, fees)
	success := outcome == OutcomeCommitSuccess

	receipt.Outcome = outcome
	if runErr != nil {
		receipt.Error = runErr.Error()
	}
	receipt.Events = kernel.Runtime().Events()
	receipt.Logs = kernel.Runtime().Logs()
	receipt.ExecutionTrace = kernel.Trace().Entries()

	settlement := fees.Finalize(success)
	receipt.FeeSummary = settlement.Summary

	if !outcome.IsCommit() {
		e.log.WithFields(logrus.Fields{
			"tx":      txHash.Hex()[:16],
			"outcome": outcome.String(),
			"error":   receipt.Error,
		}).Info("transaction not committed")
		return receipt
	}

	// Apply fee refunds and royalty payouts to vault balances. Refunds are
	// amended into both the normal and force-written images so the net
	// debit is exact on every commit path.
	for vault, refund := range settlement.Refunds {
		if refund.IsZero() {
			continue
		}
		e.amendVaultBalance(track, vault, refund)
	}
	for _, payout := range settlement.RoyaltyPayouts {
		e.amendVaultBalance(track, payout.Vault, payout.Amount)
	}

	receipt.StateUpdates = track.Finalize(success)
	receipt.NewGlobalEntities = newGlobalEntities(receipt.StateUpdates)
	if err := e.store.Commit(receipt.StateUpdates); err != nil {
		receipt.Outcome = OutcomeReject
		receipt.Error = fmt.Sprintf("store commit: %v", err)
		receipt.StateUpdates = nil
		return receipt
	}
	e.log.WithFields(logrus.Fields{
		"tx":         txHash.Hex()[:16],
		"outcome":    outcome.String(),
		"cost_units": receipt.FeeSummary.CostUnitsConsumed,
		"fee":        receipt.FeeSummary.TotalExecutionCost.String(),
	}).Info("transaction committed")
	return receipt
}

// amendVaultBalance credits amount onto a vault's liquid balance in both
// the dirty and force-written images.
func (e *Executor) amendVaultBalance(track *Track, vault NodeID, amount Decimal) {
	id := SubstateID{Node: vault, Module: ModuleMain, Offset: OffsetVaultLiquidFungible}
	track.AmendBoth(id, func(payload []byte) []byte {
		var liq LiquidFungibleSubstate
		if err := decodeSubstate(payload, &liq); err != nil {
			return payload
		}
		total, err := liq.Amount.Add(amount)
		if err != nil {
			return payload
		}
		liq.Amount = total
		return encodeSubstate(&liq)
	})
}

// classifyOutcome maps a run error and the fee phase onto a receipt tier.
func classifyOutcome(runErr error, fees *FeeReserve) OutcomeKind {
	if !fees.IsLoanRepaid() {
		// No fee payer was ever bound; nothing can be charged.
		return OutcomeReject
	}
	if runErr == nil {
		return OutcomeCommitSuccess
	}
	var feeErr *FeeReserveError
	if errors.As(runErr, &feeErr) {
		switch feeErr.Kind {
		case FeeMaxCostUnitsExceeded, FeeInsufficientFunds, FeeAbort:
			return OutcomeAbort
		}
	}
	return OutcomeCommitFailure
}

// newGlobalEntities extracts the addresses globalized by the changeset.
func newGlobalEntities(cs *Changeset) []NodeID {
	var out []NodeID
	for _, ch := range cs.Changes {
		if ch.Action != ChangeCreate || ch.ID.Module != ModuleTypeInfo || ch.ID.Offset != OffsetTypeInfo {
			continue
		}
		var info TypeInfoSubstate
		if err := decodeSubstate(ch.Payload, &info); err != nil {
			continue
		}
		if info.Global {
			out = append(out, ch.ID.Node)
		}
	}
	return out
}
