package core

import "testing"

func TestRuleEvaluation(t *testing.T) {
	badgeRes := NewNodeID(EntityNonFungibleResource, []byte("test:badge"))
	tokenRes := NewNodeID(EntityFungibleResource, []byte("test:token"))
	proofs := []proofSnapshot{
		{Resource: badgeRes, Amount: DecimalOne, IDs: map[string]bool{IntegerID(7).String(): true}},
		{Resource: tokenRes, Amount: NewDecimal(50)},
	}

	cases := []struct {
		name string
		rule AccessRule
		want bool
	}{
		{"allow_all", AllowAll(), true},
		{"deny_all", DenyAll(), false},
		{"require_held", RequireResource(badgeRes), true},
		{"require_missing", RequireResource(NewNodeID(EntityFungibleResource, []byte("other"))), false},
		{"require_nf_held", RequireNonFungible(NonFungibleGlobalID{Resource: badgeRes, Local: IntegerID(7)}), true},
		{"require_nf_wrong_id", RequireNonFungible(NonFungibleGlobalID{Resource: badgeRes, Local: IntegerID(8)}), false},
		{"amount_met", RequireAmount(NewDecimal(50), tokenRes), true},
		{"amount_unmet", RequireAmount(NewDecimal(51), tokenRes), false},
		{"count", RequireCountOf(2, []NodeID{badgeRes, tokenRes}), true},
		{"count_unmet", RequireCountOf(3, []NodeID{badgeRes, tokenRes}), false},
		{"all_of", RequireAllOf(RequireResource(badgeRes), RequireResource(tokenRes)), true},
		{"all_of_partial", RequireAllOf(RequireResource(badgeRes), DenyAll()), false},
		{"any_of", RequireAnyOf(DenyAll(), RequireResource(tokenRes)), true},
		{"not", RequireNot(DenyAll()), true},
		{"not_held", RequireNot(RequireResource(badgeRes)), false},
	}
	for _, tc := range cases {
		if got := evaluateRule(tc.rule, proofs, nil); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestProtectedByResolvesRoles(t *testing.T) {
	badgeRes := NewNodeID(EntityNonFungibleResource, []byte("test:badge"))
	proofs := []proofSnapshot{{Resource: badgeRes, Amount: DecimalOne}}
	roles := &RoleAssignmentSubstate{
		Roles: map[string]AccessRule{"minter": RequireResource(badgeRes)},
	}
	if !evaluateRule(ProtectedBy("minter"), proofs, roles) {
		t.Fatalf("assigned role should pass")
	}
	if evaluateRule(ProtectedBy("burner"), proofs, roles) {
		t.Fatalf("unassigned role must deny")
	}
	if evaluateRule(ProtectedBy("minter"), proofs, nil) {
		t.Fatalf("missing role table must deny")
	}
}

func TestRuleRoundTripThroughValue(t *testing.T) {
	rule := RequireAllOf(
		RequireAmount(MustDecimal("2.5"), XRDAddress),
		RequireNot(DenyAll()),
		ProtectedBy("owner"),
	)
	v := EncodeRuleValue(rule)
	back, err := decodeRuleValue(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.String() != rule.String() {
		t.Fatalf("round trip: %s != %s", back, rule)
	}
}
