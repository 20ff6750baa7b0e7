package core

// Native dispatch tables. Functions are keyed by package/blueprint/fn;
// methods by the receiver's blueprint (resolved from TypeInfo) and method
// name. Anything not found here falls through to the wasm engine.

func nativeKey(blueprint, fn string) string { return blueprint + ":" + fn }

var nativeFunctions = map[string]NativeFn{
	nativeKey("Account", "create_advanced"):    accountCreateAdvanced,
	nativeKey("Account", "create_with_bucket"): accountCreateWithBucket,
}

var nativeMethods = map[string]NativeFn{
	nativeKey("Account", "deposit"):                    accountDeposit,
	nativeKey("Account", "deposit_batch"):              accountDepositBatch,
	nativeKey("Account", "try_deposit_batch_or_abort"): accountDepositBatch,
	nativeKey("Account", "withdraw"):                   accountWithdraw,
	nativeKey("Account", "withdraw_non_fungibles"):     accountWithdrawNonFungibles,
	nativeKey("Account", "lock_fee"):                   accountLockFee,
	nativeKey("Account", "lock_contingent_fee"):        accountLockContingentFee,
	nativeKey("Account", "lock_fee_and_withdraw"):      accountLockFeeAndWithdraw,
	nativeKey("Account", "create_proof_of_amount"):     accountCreateProofOfAmount,
	nativeKey("Account", "balance"):                    accountBalance,
	nativeKey("Account", "securify"):                   accountSecurify,

	nativeKey("Faucet", "free"):     faucetFree,
	nativeKey("Faucet", "lock_fee"): faucetLockFee,

	nativeKey("FungibleResourceManager", "mint"):             resourceManagerMintFungible,
	nativeKey("FungibleResourceManager", "burn"):             resourceManagerBurn,
	nativeKey("FungibleResourceManager", "recall"):           resourceManagerRecall,
	nativeKey("FungibleResourceManager", "freeze"):           resourceManagerFreeze,
	nativeKey("FungibleResourceManager", "get_total_supply"): resourceManagerGetTotalSupply,

	nativeKey("NonFungibleResourceManager", "mint"):                     resourceManagerMintNonFungible,
	nativeKey("NonFungibleResourceManager", "burn"):                     resourceManagerBurn,
	nativeKey("NonFungibleResourceManager", "recall"):                   resourceManagerRecall,
	nativeKey("NonFungibleResourceManager", "freeze"):                   resourceManagerFreeze,
	nativeKey("NonFungibleResourceManager", "get_total_supply"):         resourceManagerGetTotalSupply,
	nativeKey("NonFungibleResourceManager", "update_non_fungible_data"): resourceManagerUpdateData,
}

// nativePackages are the genesis packages whose blueprints never hit wasm.
var nativePackages = map[NodeID]bool{}

func init() {
	nativePackages[PackagePackage] = true
	nativePackages[ResourcePackage] = true
	nativePackages[AccountPackage] = true
	nativePackages[FaucetPackage] = true
}

func lookupNativeFunction(pkg NodeID, blueprint, fn string) NativeFn {
	if !nativePackages[pkg] {
		return nil
	}
	return nativeFunctions[nativeKey(blueprint, fn)]
}

func lookupNativeMethod(k *Kernel, actor Actor) NativeFn {
	if !nativePackages[actor.Package] {
		return nil
	}
	return nativeMethods[nativeKey(actor.Blueprint, actor.Fn)]
}
