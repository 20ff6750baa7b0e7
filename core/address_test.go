package core

import (
	"strings"
	"testing"
)

func TestAddressTextRoundTrip(t *testing.T) {
	for _, id := range []NodeID{XRDAddress, AccountPackage, FaucetComponent, FaucetVault} {
		text := id.String()
		back, err := ParseAddress(text)
		if err != nil {
			t.Fatalf("parse %q: %v", text, err)
		}
		if back != id {
			t.Fatalf("round trip %q mismatch", text)
		}
	}
}

func TestAddressPrefixes(t *testing.T) {
	if !strings.HasPrefix(XRDAddress.String(), "resource_sim1") {
		t.Fatalf("XRD address %q missing resource prefix", XRDAddress)
	}
	if !strings.HasPrefix(AccountPackage.String(), "package_sim1") {
		t.Fatalf("package address %q missing package prefix", AccountPackage)
	}
	if !strings.HasPrefix(FaucetComponent.String(), "component_sim1")	{
		t.Fatalf("component address %q missing component prefix", FaucetComponent)
	}
}

func TestParseAddressRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "resource_sim1qqqq", "zz", "component_sim"} {
		if _, err := ParseAddress(s); err == nil {
			t.Fatalf("expected parse failure for %q", s)
		}
	}
}

func TestEntityClassification(t *testing.T) {
	if !XRDAddress.IsGlobalEntity() || XRDAddress.IsTransient() {
		t.Fatalf("XRD misclassified")
	}
	bucket := NewNodeID(EntityBucket, []byte("b"))
	if bucket.IsGlobalEntity() || !bucket.IsTransient() {
		t.Fatalf("bucket misclassified")
	}
	if !FaucetVault.IsVault() {
		t.Fatalf("vault misclassified")
	}
	if !XRDAddress.IsResourceManager() {
		t.Fatalf("resource manager misclassified")
	}
}
