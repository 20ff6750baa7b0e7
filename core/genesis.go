package core

// Genesis — bootstraps an empty substate store with the well-known entities:
// the XRD resource, the signer badge resources, the native packages, the
// faucet and the system clock. Node ids are content-derived (address.go), so
// every fresh ledger agrees without exchanging a bootstrap receipt.

import (
	"github.com/sirupsen/logrus"
)

// FaucetVault is the faucet component's XRD vault id.
var FaucetVault = NewNodeID(EntityFungibleVault, []byte("radiance:vault:faucet"))

// GenesisXRDSupply is minted into the faucet at bootstrap.
var GenesisXRDSupply = NewDecimal(1_000_000_000_000)

// IsBootstrapped reports whether the store already carries genesis state.
func IsBootstrapped(store SubstateStore) bool {
	_, _, ok := store.Get(SubstateID{Node: XRDAddress, Module: ModuleTypeInfo, Offset: OffsetTypeInfo})
	return ok
}

// Bootstrap writes the genesis substates. Idempotent: a bootstrapped store
// is left untouched.
func Bootstrap(store SubstateStore, lg *logrus.Logger) error {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if IsBootstrapped(store) {
		return nil
	}
	cs := &Changeset{}
	create := func(id SubstateID, payload []byte) {
		cs.Changes = append(cs.Changes, Change{Action: ChangeCreate, ID: id, Payload: payload})
	}

	globalEntity := func(node NodeID, pkg NodeID, blueprint string, roles RoleAssignmentSubstate, metadata map[string]string) {
		create(SubstateID{Node: node, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}, encodeSubstate(&TypeInfoSubstate{
			PackageAddress: pkg,
			BlueprintName:  blueprint,
			Global:         true,
		}))
		create(SubstateID{Node: node, Module: ModuleAccessRules, Offset: OffsetRoleAssignment}, encodeSubstate(&roles))
		for key, value := range metadata {
			create(SubstateID{Node: node, Module: ModuleMetadata, Offset: OffsetMetadataEntry, SortKey: []byte(key)},
				encodeSubstate(&MetadataEntrySubstate{Value: value}))
		}
	}

	nativePackage := func(node NodeID, name string, blueprints map[string]BlueprintSchema) {
		globalEntity(node, PackagePackage, "Package", RoleAssignmentSubstate{Owner: DenyAll()}, map[string]string{"name": name})
		create(SubstateID{Node: node, Module: ModuleMain, Offset: OffsetPackageInfo}, encodeSubstate(&PackageInfoSubstate{Blueprints: blueprints}))
		create(SubstateID{Node: node, Module: ModuleMain, Offset: OffsetPackageCode}, encodeSubstate(&PackageCodeSubstate{Code: append(nativeCodePrefix, []byte(name)...)}))
		create(SubstateID{Node: node, Module: ModuleRoyalty, Offset: OffsetPackageRoyaltyConfig}, encodeSubstate(&PackageRoyaltyConfigSubstate{}))
	}

	// Native packages.
	nativePackage(PackagePackage, "package", map[string]BlueprintSchema{
		"Package": {Functions: []string{"publish"}},
	})
	nativePackage(ResourcePackage, "resource", map[string]BlueprintSchema{
		"FungibleResourceManager":    {Functions: []string{"create", "create_with_initial_supply"}, Methods: []string{"mint", "burn", "recall", "freeze", "get_total_supply"}},
		"NonFungibleResourceManager": {Functions: []string{"create", "create_with_initial_supply"}, Methods: []string{"mint", "burn", "recall", "freeze", "get_total_supply", "update_non_fungible_data"}},
	})
	nativePackage(AccountPackage, "account", map[string]BlueprintSchema{
		"Account": {Functions: []string{"create_advanced", "create_with_bucket"}, Methods: []string{"deposit", "deposit_batch", "try_deposit_batch_or_abort", "withdraw", "withdraw_non_fungibles", "lock_fee", "lock_contingent_fee", "lock_fee_and_withdraw", "create_proof_of_amount", "balance", "securify"}},
	})
	nativePackage(FaucetPackage, "faucet", map[string]BlueprintSchema{
		"Faucet": {Methods: []string{"free", "lock_fee"}},
	})

	// XRD.
	globalEntity(XRDAddress, ResourcePackage, "FungibleResourceManager",
		RoleAssignmentSubstate{Owner: DenyAll()},
		map[string]string{"symbol": "XRD", "name": "Radiance"})
	create(SubstateID{Node: XRDAddress, Module: ModuleMain, Offset: OffsetResourceManager}, encodeSubstate(&FungibleResourceManagerSubstate{
		Divisibility:     DecimalScale,
		TrackTotalSupply: true,
	}))
	create(SubstateID{Node: XRDAddress, Module: ModuleMain, Offset: OffsetResourceManagerTotalSupply}, encodeSubstate(&TotalSupplySubstate{Amount: GenesisXRDSupply}))

	// Virtual signer badge resources.
	for _, badge := range []struct {
		node NodeID
		name string
	}{
		{EcdsaSecp256k1Badge, "ECDSA secp256k1 signature badge"},
		{SystemBadge, "System badge"},
	} {
		globalEntity(badge.node, ResourcePackage, "NonFungibleResourceManager",
			RoleAssignmentSubstate{Owner: DenyAll()},
			map[string]string{"name": badge.name})
		create(SubstateID{Node: badge.node, Module: ModuleMain, Offset: OffsetResourceManager}, encodeSubstate(&NonFungibleResourceManagerSubstate{
			IDKind: NFIDBytes,
		}))
	}

	// Faucet component plus its vault.
	globalEntity(FaucetComponent, FaucetPackage, "Faucet",
		RoleAssignmentSubstate{Owner: DenyAll()}, map[string]string{"name": "Faucet"})
	create(SubstateID{Node: FaucetComponent, Module: ModuleMain, Offset: OffsetComponentState}, encodeSubstate(&ComponentStateSubstate{
		State: encodeSubstate(&faucetState{Vault: FaucetVault}),
	}))
	create(SubstateID{Node: FaucetVault, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}, encodeSubstate(&TypeInfoSubstate{
		PackageAddress: ResourcePackage,
		BlueprintName:  "Vault",
		OuterObject:    XRDAddress,
	}))
	create(SubstateID{Node: FaucetVault, Module: ModuleMain, Offset: OffsetVaultInfo}, encodeSubstate(&VaultInfoSubstate{
		ResourceAddress: XRDAddress,
		ResourceType:    ResourceFungible,
	}))
	create(SubstateID{Node: FaucetVault, Module: ModuleMain, Offset: OffsetVaultLiquidFungible}, encodeSubstate(&LiquidFungibleSubstate{Amount: GenesisXRDSupply}))
	create(SubstateID{Node: FaucetVault, Module: ModuleMain, Offset: OffsetVaultLockedFungible}, encodeSubstate(&LockedFungibleSubstate{}))

	// System clock.
	globalEntity(SystemComponent, PackagePackage, "System",
		RoleAssignmentSubstate{Owner: RequireResource(SystemBadge)}, map[string]string{"name": "System"})
	create(SubstateID{Node: SystemComponent, Module: ModuleMain, Offset: OffsetCurrentEpoch}, encodeSubstate(&CurrentEpochSubstate{Epoch: 0}))

	if err := store.Commit(cs); err != nil {
		return err
	}
	lg.WithFields(logrus.Fields{"substates": len(cs.Changes)}).Info("genesis bootstrapped")
	return nil
}

// CurrentEpoch reads the system clock.
func CurrentEpoch(store SubstateStore) uint64 {
	payload, _, ok := store.Get(SubstateID{Node: SystemComponent, Module: ModuleMain, Offset: OffsetCurrentEpoch})
	if !ok {
		return 0
	}
	var epoch CurrentEpochSubstate
	if err := decodeSubstate(payload, &epoch); err != nil {
		return 0
	}
	return epoch.Epoch
}

// SetCurrentEpoch writes the system clock directly; simulator-only surface.
func SetCurrentEpoch(store SubstateStore, epoch uint64) error {
	return store.Commit(&Changeset{Changes: []Change{{
		Action:  ChangeUpdate,
		ID:      SubstateID{Node: SystemComponent, Module: ModuleMain, Offset: OffsetCurrentEpoch},
		Payload: encodeSubstate(&CurrentEpochSubstate{Epoch: epoch}),
	}}})
}

// SignerBadge derives the virtual badge id for a verified public key.
func SignerBadge(pubKeyHash []byte) NonFungibleGlobalID {
	return NonFungibleGlobalID{
		Resource: EcdsaSecp256k1Badge,
		Local:    BytesID(pubKeyHash),
	}
}
