package cli

// Token and badge creation plus supply operations.

import (
	"fmt"

	"github.com/spf13/cobra"

	"radiance-network/core"
)

var tokenFee = core.MustDecimal("500")

func tokenMetadata(symbol, name string) map[string]string {
	md := map[string]string{"symbol": symbol}
	if name != "" {
		md["name"] = name
	}
	return md
}

// badgeProofInstructions pushes a proof of the default owner badge into the
// auth zone so badge-gated roles (minter, burner) are satisfied.
func badgeProofInstructions(account core.NodeID) []core.Instruction {
	if simCfg.DefaultOwnerBadge == "" {
		return nil
	}
	badge, err := core.ParseAddress(simCfg.DefaultOwnerBadge)
	if err != nil {
		return nil
	}
	return []core.Instruction{{
		Op:      core.OpCallMethod,
		Address: account,
		Fn:      "create_proof_of_amount",
		Args:    []core.Value{core.AddressValue(badge), core.DecimalValue(core.NewDecimal(1))},
	}}
}

// depositRest sends everything left on the worktop to the default account.
func depositRest(account core.NodeID) core.Instruction {
	return core.Instruction{
		Op:      core.OpCallMethod,
		Address: account,
		Fn:      "try_deposit_batch_or_abort",
		Args:    []core.Value{core.ExprValue(core.ExpressionEntireWorktop)},
	}
}

var tokenName string

var newTokenFixedCmd = &cobra.Command{
	Use:   "new-token-fixed <symbol> <supply>",
	Short: "Create a fixed-supply fungible token deposited to the default account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		supply, err := core.DecimalFromString(args[1])
		if err != nil {
			return userErr(err)
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{
				Op:            core.OpCreateFungibleResource,
				Divisibility:  core.DecimalScale,
				InitialSupply: &supply,
				Metadata:      tokenMetadata(args[0], tokenName),
				Roles:         core.RoleAssignmentSubstate{Owner: core.DenyAll()},
			},
			depositRest(account),
		}
		_, err = submit(instructions, true)
		return err
	},
}

var newTokenMutableCmd = &cobra.Command{
	Use:   "new-token-mutable <symbol> [badge-address]",
	Short: "Create a mintable/burnable token gated by a badge",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		badgeStr := simCfg.DefaultOwnerBadge
		if len(args) == 2 {
			badgeStr = args[1]
		}
		if badgeStr == "" {
			return userErrf("no badge address; run `resim new-badge-fixed` first or pass one")
		}
		badge, err := core.ParseAddress(badgeStr)
		if err != nil {
			return userErr(err)
		}
		gate := core.RequireResource(badge)
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{
				Op:           core.OpCreateFungibleResource,
				Divisibility: core.DecimalScale,
				Metadata:     tokenMetadata(args[0], tokenName),
				Roles: core.RoleAssignmentSubstate{
					Owner: gate,
					Roles: map[string]core.AccessRule{
						"minter": gate,
						"burner": gate,
					},
				},
			},
		}
		_, err = submit(instructions, true)
		return err
	},
}

var newBadgeFixedCmd = &cobra.Command{
	Use:   "new-badge-fixed <symbol> [supply]",
	Short: "Create a badge resource (divisibility 0) deposited to the default account",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		supply := core.NewDecimal(1)
		if len(args) == 2 {
			var perr error
			supply, perr = core.DecimalFromString(args[1])
			if perr != nil {
				return userErr(perr)
			}
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{
				Op:            core.OpCreateFungibleResource,
				Divisibility:  0,
				InitialSupply: &supply,
				Metadata:      tokenMetadata(args[0], tokenName),
				Roles:         core.RoleAssignmentSubstate{Owner: core.DenyAll()},
			},
			depositRest(account),
		}
		receipt, err := submit(instructions, true)
		if err != nil || receipt == nil {
			return err
		}
		if simCfg.DefaultOwnerBadge == "" {
			for _, addr := range receipt.NewGlobalEntities {
				if addr.EntityType() == core.EntityFungibleResource {
					simCfg.DefaultOwnerBadge = addr.String()
					if err := saveSimConfig(); err != nil {
						return userErr(err)
					}
					fmt.Printf("set default owner badge: %s\n", addr)
				}
			}
		}
		return nil
	},
}

var mintCmd = &cobra.Command{
	Use:   "mint <amount> <resource-address>",
	Short: "Mint a mutable token into the default account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		amount, err := core.DecimalFromString(args[0])
		if err != nil {
			return userErr(err)
		}
		resource, err := core.ParseAddress(args[1])
		if err != nil {
			return userErr(err)
		}
		instructions := []core.Instruction{{Op: core.OpLockFee, Address: account, Amount: &tokenFee}}
		instructions = append(instructions, badgeProofInstructions(account)...)
		instructions = append(instructions,
			core.Instruction{Op: core.OpMintFungible, Resource: resource, Amount: &amount},
			depositRest(account),
		)
		_, err = submit(instructions, true)
		return err
	},
}

var burnCmd = &cobra.Command{
	Use:   "burn <amount> <resource-address>",
	Short: "Burn tokens withdrawn from the default account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		amount, err := core.DecimalFromString(args[0])
		if err != nil {
			return userErr(err)
		}
		resource, err := core.ParseAddress(args[1])
		if err != nil {
			return userErr(err)
		}
		instructions := []core.Instruction{{Op: core.OpLockFee, Address: account, Amount: &tokenFee}}
		instructions = append(instructions, badgeProofInstructions(account)...)
		instructions = append(instructions,
			core.Instruction{Op: core.OpCallMethod, Address: account, Fn: "withdraw", Args: []core.Value{
				core.AddressValue(resource), core.DecimalValue(amount),
			}},
			core.Instruction{Op: core.OpTakeFromWorktop, Resource: resource, All: true, NewBucketName: "to_burn"},
			core.Instruction{Op: core.OpBurnResource, BucketName: "to_burn"},
		)
		_, err = submit(instructions, true)
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{newTokenFixedCmd, newTokenMutableCmd, newBadgeFixedCmd} {
		c.Flags().StringVar(&tokenName, "name", "", "token display name")
	}
}
