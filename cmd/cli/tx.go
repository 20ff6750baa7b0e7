package cli

// Transaction submission commands: publish, call-function, call-method and
// transfer.

import (
	"os"

	"github.com/spf13/cobra"

	"radiance-network/core"
	"radiance-network/pkg/utils"
)

var publishFee = core.MustDecimal("5000")

var publishCmd = &cobra.Command{
	Use:   "publish <wasm-file>",
	Short: "Publish a wasm package",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		code, err := os.ReadFile(args[0])
		if err != nil {
			return userErr(utils.Wrap(err, "read wasm"))
		}
		rule, err := signerRule(simCfg.DefaultPrivateKey)
		if err != nil {
			return userErr(err)
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &publishFee},
			{
				Op:    core.OpPublishPackage,
				Code:  code,
				Roles: core.RoleAssignmentSubstate{Owner: rule},
			},
		}
		_, err = submit(instructions, true)
		return err
	},
}

var callFunctionCmd = &cobra.Command{
	Use:   "call-function <package-address> <blueprint> <function> [args...]",
	Short: "Call a blueprint function",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		pkg, err := core.ParseAddress(args[0])
		if err != nil {
			return userErr(err)
		}
		callArgs := make([]core.Value, 0, len(args)-3)
		for _, a := range args[3:] {
			callArgs = append(callArgs, parseArgValue(a))
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{Op: core.OpCallFunction, Package: pkg, Blueprint: args[1], Fn: args[2], Args: callArgs},
			depositRest(account),
		}
		_, err = submit(instructions, true)
		return err
	},
}

var callMethodCmd = &cobra.Command{
	Use:   "call-method <component-address> <method> [args...]",
	Short: "Call a component method",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := defaultAccount()
		if err != nil {
			return err
		}
		component, err := core.ParseAddress(args[0])
		if err != nil {
			return userErr(err)
		}
		callArgs := make([]core.Value, 0, len(args)-2)
		for _, a := range args[2:] {
			callArgs = append(callArgs, parseArgValue(a))
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{Op: core.OpCallMethod, Address: component, Fn: args[1], Args: callArgs},
			depositRest(account),
		}
		_, err = submit(instructions, true)
		return err
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer <amount> <resource-address> <recipient-address>",
	Short: "Transfer resources from the default account",
	Args:  cobra.ExactArgs(3),
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
		recipient, err := core.ParseAddress(args[2])
		if err != nil {
			return userErr(err)
		}
		instructions := []core.Instruction{
			{Op: core.OpLockFee, Address: account, Amount: &tokenFee},
			{Op: core.OpCallMethod, Address: account, Fn: "withdraw", Args: []core.Value{
				core.AddressValue(resource), core.DecimalValue(amount),
			}},
			depositRest(recipient),
		}
		_, err = submit(instructions, true)
		return err
	},
}
