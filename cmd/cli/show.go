package cli

// Ledger inspection, epoch control and data-directory reset.

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"radiance-network/core"
	"radiance-network/pkg/utils"
)

var setEpochCmd = &cobra.Command{
	Use:   "set-current-epoch <epoch>",
	Short: "Set the system clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		epoch, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return userErr(utils.Wrap(err, "parse epoch"))
		}
		if err := core.SetCurrentEpoch(simStore, epoch); err != nil {
			return userErr(err)
		}
		fmt.Printf("current epoch: %d\n", epoch)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the data directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if simStore != nil {
			_ = simStore.Close()
			simStore = nil
		}
		if err := os.RemoveAll(dataDir); err != nil {
			return userErr(utils.Wrap(err, "remove data dir"))
		}
		fmt.Printf("data directory %s removed\n", dataDir)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [address]",
	Short: "Inspect a ledger entity, or the simulator defaults",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Printf("data dir:        %s\n", dataDir)
			fmt.Printf("current epoch:   %d\n", core.CurrentEpoch(simStore))
			fmt.Printf("nonce:           %d\n", simCfg.Nonce)
			fmt.Printf("default account: %s\n", simCfg.DefaultAccount)
			fmt.Printf("owner badge:     %s\n", simCfg.DefaultOwnerBadge)
			fmt.Printf("XRD:             %s\n", core.XRDAddress)
			fmt.Printf("faucet:          %s\n", core.FaucetComponent)
			fmt.Printf("account package: %s\n", core.AccountPackage)
			return nil
		}
		addr, err := core.ParseAddress(args[0])
		if err != nil {
			return userErr(err)
		}
		return showEntity(addr)
	},
}

func readSubstate(id core.SubstateID, out any) bool {
	payload, _, ok := simStore.Get(id)
	if !ok {
		return false
	}
	return json.Unmarshal(payload, out) == nil
}

func showEntity(addr core.NodeID) error {
	var info core.TypeInfoSubstate
	if !readSubstate(core.SubstateID{Node: addr, Module: core.ModuleTypeInfo, Offset: core.OffsetTypeInfo}, &info) {
		return userErrf("entity %s not found", addr)
	}
	fmt.Printf("address:   %s\n", addr)
	fmt.Printf("blueprint: %s (package %s)\n", info.BlueprintName, info.PackageAddress)

	for _, e := range simStore.Scan(addr, core.ModuleMetadata, core.OffsetMetadataEntry, 0) {
		var md core.MetadataEntrySubstate
		if json.Unmarshal(e.Payload, &md) == nil {
			fmt.Printf("metadata:  %s = %q\n", string(e.ID.SortKey), md.Value)
		}
	}

	switch info.BlueprintName {
	case "Account":
		var comp core.ComponentStateSubstate
		if !readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetComponentState}, &comp) {
			return nil
		}
		var st struct {
			Vaults map[core.NodeID]core.NodeID `json:"vaults"`
		}
		if json.Unmarshal(comp.State, &st) != nil {
			return nil
		}
		fmt.Println("resources:")
		for resource, vault := range st.Vaults {
			var liq core.LiquidFungibleSubstate
			if readSubstate(core.SubstateID{Node: vault, Module: core.ModuleMain, Offset: core.OffsetVaultLiquidFungible}, &liq) {
				fmt.Printf("  %s: %s\n", resource, liq.Amount)
				continue
			}
			var nf core.LiquidNonFungibleSubstate
			if readSubstate(core.SubstateID{Node: vault, Module: core.ModuleMain, Offset: core.OffsetVaultLiquidNonFungible}, &nf) {
				fmt.Printf("  %s: %d non-fungibles\n", resource, len(nf.IDs))
			}
		}
	case "FungibleResourceManager":
		var mgr core.FungibleResourceManagerSubstate
		if readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetResourceManager}, &mgr) {
			fmt.Printf("divisibility: %d\n", mgr.Divisibility)
		}
		var ts core.TotalSupplySubstate
		if readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetResourceManagerTotalSupply}, &ts) {
			fmt.Printf("total supply: %s\n", ts.Amount)
		}
	case "NonFungibleResourceManager":
		var ts core.TotalSupplySubstate
		if readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetResourceManagerTotalSupply}, &ts) {
			fmt.Printf("total supply: %s\n", ts.Amount)
		}
		entries := simStore.Scan(addr, core.ModuleMain, core.OffsetNonFungibleData, 20)
		for _, e := range entries {
			fmt.Printf("  id %s\n", string(e.ID.SortKey))
		}
	case "Package":
		var code core.PackageCodeSubstate
		if readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetPackageCode}, &code) {
			fmt.Printf("code: %d bytes\n", len(code.Code))
		}
		var pi core.PackageInfoSubstate
		if readSubstate(core.SubstateID{Node: addr, Module: core.ModuleMain, Offset: core.OffsetPackageInfo}, &pi) {
			for name, schema := range pi.Blueprints {
				fmt.Printf("blueprint %s: functions %v methods %v\n", name, schema.Functions, schema.Methods)
			}
		}
	}
	return nil
}
