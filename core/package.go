package core

// Package publishing — immutable once created: code blob, blueprint schemas
// and royalty config. Native packages carry a marker blob instead of wasm.

import (
	"bytes"
	"fmt"
)

// nativeCodePrefix marks packages whose blueprints dispatch to built-in Go
// bodies instead of the wasm engine.
var nativeCodePrefix = []byte("native:")

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}

// isNativeCode reports whether a code blob is a native marker.
func isNativeCode(code []byte) bool { return bytes.HasPrefix(code, nativeCodePrefix) }

// PublishPackage creates and globalizes a package node. Wasm blobs must
// carry the module magic; anything else is refused before it can reach the
// engine.
func (k *Kernel) PublishPackage(code []byte, blueprints map[string]BlueprintSchema, royalty PackageRoyaltyConfigSubstate, metadata map[string]string, roles RoleAssignmentSubstate) (NodeID, error) {
	if len(code) == 0 {
		return NodeID{}, applicationError(fmt.Errorf("empty package code"))
	}
	if !isNativeCode(code) && !bytes.HasPrefix(code, wasmMagic) {
		return NodeID{}, applicationError(fmt.Errorf("package code is not a wasm module"))
	}
	if err := k.chargeExecution(CostPublishPackage, 1); err != nil {
		return NodeID{}, err
	}
	if err := k.chargeExecution(CostPublishByte, uint64(len(code))); err != nil {
		return NodeID{}, err
	}
	pkg, err := k.AllocateNodeID(EntityPackage)
	if err != nil {
		return NodeID{}, err
	}
	if len(royalty.Config) > 0 && royalty.Vault.IsZero() {
		vault, err := k.NewVault(XRDAddress, ResourceFungible)
		if err != nil {
			return NodeID{}, err
		}
		if frame := k.frameOwning(vault); frame != nil {
			_ = frame.releaseOwnership(vault)
		}
		if err := k.moveNodeToTrack(vault, false); err != nil {
			return NodeID{}, err
		}
		royalty.Vault = vault
	}
	substates := map[SubstateID][]byte{
		{Node: pkg, Module: ModuleTypeInfo, Offset: OffsetTypeInfo}: encodeSubstate(&TypeInfoSubstate{
			PackageAddress: PackagePackage,
			BlueprintName:  "Package",
		}),
		{Node: pkg, Module: ModuleMain, Offset: OffsetPackageInfo}: encodeSubstate(&PackageInfoSubstate{
			Blueprints: blueprints,
		}),
		{Node: pkg, Module: ModuleMain, Offset: OffsetPackageCode}: encodeSubstate(&PackageCodeSubstate{
			Code: code,
		}),
		{Node: pkg, Module: ModuleRoyalty, Offset: OffsetPackageRoyaltyConfig}: encodeSubstate(&royalty),
	}
	if err := k.CreateNode(pkg, substates); err != nil {
		return NodeID{}, err
	}
	if err := k.Globalize(pkg, roles, metadata); err != nil {
		return NodeID{}, err
	}
	k.log.WithField("package", pkg.String()).Info("package published")
	return pkg, nil
}

// PackageCode reads a published package's code blob.
func (k *Kernel) PackageCode(pkg NodeID) ([]byte, error) {
	var code PackageCodeSubstate
	if err := k.peekTyped(SubstateID{Node: pkg, Module: ModuleMain, Offset: OffsetPackageCode}, &code); err != nil {
		return nil, applicationError(err)
	}
	return code.Code, nil
}

// packageRoyaltyFor looks up the configured royalty and its accumulator
// vault for a function, if any.
func (k *Kernel) packageRoyaltyFor(pkg NodeID, blueprint, fn string) (Decimal, NodeID, bool) {
	var cfg PackageRoyaltyConfigSubstate
	if err := k.peekTyped(SubstateID{Node: pkg, Module: ModuleRoyalty, Offset: OffsetPackageRoyaltyConfig}, &cfg); err != nil {
		return DecimalZero, NodeID{}, false
	}
	fns, ok := cfg.Config[blueprint]
	if !ok {
		return DecimalZero, NodeID{}, false
	}
	amount, ok := fns[fn]
	if !ok || !amount.IsPositive() || cfg.Vault.IsZero() {
		return DecimalZero, NodeID{}, false
	}
	return amount, cfg.Vault, true
}

// chargeRoyalty accrues the publisher royalty for an invocation target.
func (k *Kernel) chargeRoyalty(actor Actor) error {
	if actor.Package.IsZero() || nativePackages[actor.Package] {
		return nil
	}
	amount, vault, ok := k.packageRoyaltyFor(actor.Package, actor.Blueprint, actor.Fn)
	if !ok {
		return nil
	}
	if err := k.fees.ConsumeRoyalty(actor.Package, vault, amount); err != nil {
		return moduleError(err)
	}
	return nil
}
