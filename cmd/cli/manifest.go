package cli

// Manifest assembly, rendering and submission shared by the command
// controllers. The --manifest flag short-circuits execution and emits the
// textual form instead; --trace prints the execution trace of a submitted
// transaction.

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"radiance-network/core"
	"radiance-network/pkg/utils"
)

const defaultEpochWindow = 100

// defaultAccount resolves the configured account address.
func defaultAccount() (core.NodeID, error) {
	if simCfg.DefaultAccount == "" {
		return core.NodeID{}, userErrf("no default account; run `resim new-account` first")
	}
	addr, err := core.ParseAddress(simCfg.DefaultAccount)
	if err != nil {
		return core.NodeID{}, userErr(err)
	}
	return addr, nil
}

// submit signs (when sign is set) and executes a manifest, handling the
// --manifest and --trace flags and the exit-code mapping.
func submit(instructions []core.Instruction, sign bool) (*core.TransactionReceipt, error) {
	if flagManifest != "" {
		text := renderManifest(instructions)
		if err := os.WriteFile(flagManifest, []byte(text), 0o644); err != nil {
			return nil, userErr(utils.Wrap(err, "write manifest"))
		}
		fmt.Printf("manifest written to %s\n", flagManifest)
		return nil, nil
	}

	epoch := core.CurrentEpoch(simStore)
	tx := &core.Transaction{
		Header: core.TransactionHeader{
			Nonce:      simCfg.Nonce,
			StartEpoch: epoch,
			EndEpoch:   epoch + defaultEpochWindow,
		},
		Instructions: instructions,
	}
	if sign {
		if simCfg.DefaultPrivateKey == "" {
			return nil, userErrf("no default key; run `resim new-account` first")
		}
		priv, err := hex.DecodeString(simCfg.DefaultPrivateKey)
		if err != nil {
			return nil, userErr(utils.Wrap(err, "decode private key"))
		}
		if err := core.SignTransaction(tx, priv); err != nil {
			return nil, userErr(err)
		}
	}
	simCfg.Nonce++
	if err := saveSimConfig(); err != nil {
		return nil, userErr(err)
	}

	receipt := simExec.Execute(tx)
	printReceipt(receipt)
	switch receipt.Outcome {
	case core.OutcomeCommitSuccess:
		return receipt, nil
	case core.OutcomeReject:
		return receipt, txRejected(fmt.Errorf("transaction rejected: %s", receipt.Error))
	default:
		return receipt, txFailure(fmt.Errorf("transaction failed (%s): %s", receipt.Outcome, receipt.Error))
	}
}

func printReceipt(r *core.TransactionReceipt) {
	fmt.Printf("outcome: %s\n", r.Outcome)
	if r.Error != "" {
		fmt.Printf("error: %s (instruction %d)\n", r.Error, r.InstructionIndex)
	}
	fmt.Printf("cost units: %d, execution fee: %s XRD, fee locks: {lock: %s, contingent: %s}\n",
		r.FeeSummary.CostUnitsConsumed,
		r.FeeSummary.TotalExecutionCost,
		r.FeeSummary.FeeLocks.Lock,
		r.FeeSummary.FeeLocks.ContingentLock)
	for _, addr := range r.NewGlobalEntities {
		fmt.Printf("new entity: %s\n", addr)
	}
	for _, log := range r.Logs {
		fmt.Printf("log [%s] %s\n", log.Level, log.Message)
	}
	if flagTrace {
		for _, e := range r.ExecutionTrace {
			fmt.Printf("trace #%d %-14s node=%s resource=%s amount=%s %s\n",
				e.Instruction, e.Op, e.Node, e.Resource, e.Amount, e.Detail)
		}
	}
}

// -----------------------------------------------------------------------------
// Manifest text rendering
// -----------------------------------------------------------------------------

func renderValue(v core.Value) string {
	switch v.Kind {
	case core.KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case core.KindString:
		return fmt.Sprintf("%q", v.Str)
	case core.KindDecimal:
		return fmt.Sprintf("Decimal(%q)", v.Decimal)
	case core.KindAddress:
		return fmt.Sprintf("Address(%q)", v.Address)
	case core.KindBucket:
		if v.Str != "" {
			return fmt.Sprintf("Bucket(%q)", v.Str)
		}
		return fmt.Sprintf("Bucket(%d)", v.LocalID)
	case core.KindProof:
		if v.Str != "" {
			return fmt.Sprintf("Proof(%q)", v.Str)
		}
		return fmt.Sprintf("Proof(%d)", v.LocalID)
	case core.KindExpression:
		if v.Expr == core.ExpressionEntireWorktop {
			return `Expression("ENTIRE_WORKTOP")`
		}
		return `Expression("ENTIRE_AUTH_ZONE")`
	case core.KindNonFungibleLocalID:
		return fmt.Sprintf("NonFungibleLocalId(%q)", v.NFID)
	case core.KindArray, core.KindTuple:
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = renderValue(f)
		}
		if v.Kind == core.KindTuple {
			return "Tuple(" + strings.Join(parts, ", ") + ")"
		}
		return "Array(" + strings.Join(parts, ", ") + ")"
	default:
		if v.Int != nil {
			return v.Int.String()
		}
		return "?"
	}
}

func renderArgs(args []core.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = renderValue(a)
	}
	return strings.Join(parts, " ")
}

// renderManifest emits the resim-style textual manifest.
func renderManifest(instructions []core.Instruction) string {
	var b strings.Builder
	for _, ins := range instructions {
		switch ins.Op {
		case core.OpLockFee:
			fmt.Fprintf(&b, "CALL_METHOD Address(%q) \"lock_fee\" Decimal(%q);\n", ins.Address, ins.Amount)
		case core.OpLockContingentFee:
			fmt.Fprintf(&b, "CALL_METHOD Address(%q) \"lock_contingent_fee\" Decimal(%q);\n", ins.Address, ins.Amount)
		case core.OpCallMethod:
			fmt.Fprintf(&b, "CALL_METHOD Address(%q) %q %s;\n", ins.Address, ins.Fn, renderArgs(ins.Args))
		case core.OpCallFunction:
			fmt.Fprintf(&b, "CALL_FUNCTION Address(%q) %q %q %s;\n", ins.Package, ins.Blueprint, ins.Fn, renderArgs(ins.Args))
		case core.OpTakeFromWorktop:
			switch {
			case ins.All:
				fmt.Fprintf(&b, "TAKE_ALL_FROM_WORKTOP Address(%q) Bucket(%q);\n", ins.Resource, ins.NewBucketName)
			case ins.Amount != nil:
				fmt.Fprintf(&b, "TAKE_FROM_WORKTOP Address(%q) Decimal(%q) Bucket(%q);\n", ins.Resource, ins.Amount, ins.NewBucketName)
			default:
				fmt.Fprintf(&b, "TAKE_NON_FUNGIBLES_FROM_WORKTOP Address(%q) Bucket(%q);\n", ins.Resource, ins.NewBucketName)
			}
		case core.OpReturnToWorktop:
			fmt.Fprintf(&b, "RETURN_TO_WORKTOP Bucket(%q);\n", ins.BucketName)
		case core.OpAssertWorktopContains:
			if ins.Amount != nil {
				fmt.Fprintf(&b, "ASSERT_WORKTOP_CONTAINS Address(%q) Decimal(%q);\n", ins.Resource, ins.Amount)
			} else {
				fmt.Fprintf(&b, "ASSERT_WORKTOP_CONTAINS_ANY Address(%q);\n", ins.Resource)
			}
		case core.OpPopFromAuthZone:
			fmt.Fprintf(&b, "POP_FROM_AUTH_ZONE Proof(%q);\n", ins.NewProofName)
		case core.OpPushToAuthZone:
			fmt.Fprintf(&b, "PUSH_TO_AUTH_ZONE Proof(%q);\n", ins.ProofName)
		case core.OpClearAuthZone:
			fmt.Fprintf(&b, "CLEAR_AUTH_ZONE;\n")
		case core.OpCreateProofFromAuthZone:
			fmt.Fprintf(&b, "CREATE_PROOF_FROM_AUTH_ZONE Address(%q) Proof(%q);\n", ins.Resource, ins.NewProofName)
		case core.OpCreateProofFromBucket:
			fmt.Fprintf(&b, "CREATE_PROOF_FROM_BUCKET Bucket(%q) Proof(%q);\n", ins.BucketName, ins.NewProofName)
		case core.OpDropProof:
			fmt.Fprintf(&b, "DROP_PROOF Proof(%q);\n", ins.ProofName)
		case core.OpDropAllProofs:
			fmt.Fprintf(&b, "DROP_ALL_PROOFS;\n")
		case core.OpPublishPackage:
			fmt.Fprintf(&b, "PUBLISH_PACKAGE Blob(%d bytes);\n", len(ins.Code))
		case core.OpCreateFungibleResource:
			fmt.Fprintf(&b, "CREATE_FUNGIBLE_RESOURCE %d %v;\n", ins.Divisibility, ins.InitialSupply)
		case core.OpCreateNonFungibleResource:
			fmt.Fprintf(&b, "CREATE_NON_FUNGIBLE_RESOURCE %d entries;\n", len(ins.InitialNFs))
		case core.OpMintFungible:
			fmt.Fprintf(&b, "MINT_FUNGIBLE Address(%q) Decimal(%q);\n", ins.Resource, ins.Amount)
		case core.OpMintNonFungible:
			fmt.Fprintf(&b, "MINT_NON_FUNGIBLE Address(%q) %d entries;\n", ins.Resource, len(ins.InitialNFs))
		case core.OpBurnResource:
			fmt.Fprintf(&b, "BURN_RESOURCE Bucket(%q);\n", ins.BucketName)
		case core.OpRecallResource:
			fmt.Fprintf(&b, "RECALL_RESOURCE Address(%q) Decimal(%q);\n", ins.Address, ins.Amount)
		case core.OpSetMetadata:
			fmt.Fprintf(&b, "SET_METADATA Address(%q) %q %q;\n", ins.Address, ins.Key, ins.Value)
		case core.OpSetRole:
			fmt.Fprintf(&b, "SET_ROLE Address(%q) %q;\n", ins.Address, ins.Role)
		case core.OpSetOwnerRole:
			fmt.Fprintf(&b, "SET_OWNER_ROLE Address(%q);\n", ins.Address)
		case core.OpAssertAccessRule:
			fmt.Fprintf(&b, "ASSERT_ACCESS_RULE;\n")
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// Argument parsing for call-function / call-method
// -----------------------------------------------------------------------------

// parseArgValue maps a CLI token onto a typed value: addresses, decimals
// (with a dot), unsigned integers, booleans, non-fungible ids in canonical
// form, everything else a string.
func parseArgValue(s string) core.Value {
	if addr, err := core.ParseAddress(s); err == nil {
		return core.AddressValue(addr)
	}
	if s == "true" || s == "false" {
		return core.BoolValue(s == "true")
	}
	if strings.ContainsAny(s, ".") {
		if d, err := core.DecimalFromString(s); err == nil {
			return core.DecimalValue(d)
		}
	}
	if n, ok := parseUint(s); ok {
		return core.U64Value(n)
	}
	if id, err := core.ParseNonFungibleLocalID(s); err == nil {
		return core.NFIDValue(id)
	}
	return core.StringValue(s)
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

// signerRule derives the default account's owner rule from its private key.
func signerRule(privHex string) (core.AccessRule, error) {
	priv, err := hex.DecodeString(privHex)
	if err != nil {
		return core.AccessRule{}, utils.Wrap(err, "decode private key")
	}
	key, err := ethcrypto.ToECDSA(priv)
	if err != nil {
		return core.AccessRule{}, utils.Wrap(err, "parse private key")
	}
	badge := core.SignerBadge(core.PublicKeyHash(ethcrypto.CompressPubkey(&key.PublicKey)))
	return core.RequireNonFungible(badge), nil
}
