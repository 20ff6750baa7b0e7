package cli

// Account lifecycle commands.

import (
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"radiance-network/core"
	"radiance-network/pkg/utils"
)

var newAccountCmd = &cobra.Command{
	Use:   "new-account",
	Short: "Create a key pair and a faucet-funded on-ledger account",
	RunE:  handleNewAccount,
}

func handleNewAccount(cmd *cobra.Command, _ []string) error {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return userErr(utils.Wrap(err, "generate key"))
	}
	privHex := hex.EncodeToString(ethcrypto.FromECDSA(key))
	badge := core.SignerBadge(core.PublicKeyHash(ethcrypto.CompressPubkey(&key.PublicKey)))
	ownerRule := core.RequireNonFungible(badge)

	fee := core.MustDecimal("5000")
	instructions := []core.Instruction{
		{Op: core.OpLockFee, Address: core.FaucetComponent, Amount: &fee},
		{Op: core.OpCallMethod, Address: core.FaucetComponent, Fn: "free"},
		{Op: core.OpTakeFromWorktop, Resource: core.XRDAddress, All: true, NewBucketName: "xrd"},
		{
			Op:        core.OpCallFunction,
			Package:   core.AccountPackage,
			Blueprint: "Account",
			Fn:        "create_with_bucket",
			Args: []core.Value{
				encodeRuleArg(ownerRule),
				{Kind: core.KindBucket, Str: "xrd"},
			},
		},
	}
	receipt, err := submit(instructions, false)
	if err != nil {
		return err
	}
	if receipt == nil {
		return nil // --manifest path
	}
	var account core.NodeID
	for _, addr := range receipt.NewGlobalEntities {
		if addr.EntityType() == core.EntityAccountComponent {
			account = addr
		}
	}
	if account.IsZero() {
		return txFailure(fmt.Errorf("no account address in receipt"))
	}
	fmt.Printf("account: %s\n", account)
	fmt.Printf("public key: %s\n", hex.EncodeToString(ethcrypto.CompressPubkey(&key.PublicKey)))

	if simCfg.DefaultAccount == "" {
		simCfg.DefaultAccount = account.String()
		simCfg.DefaultPrivateKey = privHex
		if err := saveSimConfig(); err != nil {
			return userErr(err)
		}
		fmt.Println("set as default account")
	} else {
		fmt.Printf("private key: %s\n", privHex)
	}
	return nil
}

// encodeRuleArg packs an access rule for the account natives.
func encodeRuleArg(rule core.AccessRule) core.Value {
	return core.EncodeRuleValue(rule)
}
