package core

// Access rules — the predicate trees evaluated against held proofs.
//
// A rule is AND/OR/NOT structure over proof predicates. The role-list form is
// authoritative: method templates name roles (ProtectedBy), resolved against
// the node's RoleAssignment substate at call time.

import (
	"fmt"
	"strings"
)

// RuleKind tags an AccessRule node.
type RuleKind uint8

const (
	RuleAllowAll RuleKind = iota
	RuleDenyAll
	RuleRequire          // possession of a resource or specific non-fungible
	RuleAmountOf         // at least Amount of Resource
	RuleCountOf          // at least Count distinct Resources held (any resource when Resources is empty)
	RuleAllOf            // conjunction
	RuleAnyOf            // disjunction
	RuleNot              // negation of Rules[0]
	RuleProtectedBy      // indirection through a role name
)

// AccessRule is one predicate tree node.
type AccessRule struct {
	Kind        RuleKind             `json:"kind"`
	Resource    NodeID               `json:"resource,omitempty"`
	NonFungible *NonFungibleGlobalID `json:"non_fungible,omitempty"`
	Amount      Decimal              `json:"amount,omitempty"`
	Count       uint8                `json:"count,omitempty"`
	Resources   []NodeID             `json:"resources,omitempty"`
	Rules       []AccessRule         `json:"rules,omitempty"`
	RoleName    string               `json:"role_name,omitempty"`
}

// Rule constructors.

func AllowAll() AccessRule { return AccessRule{Kind: RuleAllowAll} }
func DenyAll() AccessRule  { return AccessRule{Kind: RuleDenyAll} }

func RequireResource(resource NodeID) AccessRule {
	return AccessRule{Kind: RuleRequire, Resource: resource}
}

func RequireNonFungible(id NonFungibleGlobalID) AccessRule {
	return AccessRule{Kind: RuleRequire, NonFungible: &id}
}

func RequireAmount(amount Decimal, resource NodeID) AccessRule {
	return AccessRule{Kind: RuleAmountOf, Amount: amount, Resource: resource}
}

func RequireCountOf(count uint8, resources []NodeID) AccessRule {
	return AccessRule{Kind: RuleCountOf, Count: count, Resources: resources}
}

func RequireAllOf(rules ...AccessRule) AccessRule {
	return AccessRule{Kind: RuleAllOf, Rules: rules}
}

func RequireAnyOf(rules ...AccessRule) AccessRule {
	return AccessRule{Kind: RuleAnyOf, Rules: rules}
}

func RequireNot(rule AccessRule) AccessRule {
	return AccessRule{Kind: RuleNot, Rules: []AccessRule{rule}}
}

func ProtectedBy(role string) AccessRule {
	return AccessRule{Kind: RuleProtectedBy, RoleName: role}
}

func (r AccessRule) String() string {
	switch r.Kind {
	case RuleAllowAll:
		return "AllowAll"
	case RuleDenyAll:
		return "DenyAll"
	case RuleRequire:
		if r.NonFungible != nil {
			return fmt.Sprintf("Require(%s)", r.NonFungible)
		}
		return fmt.Sprintf("Require(%s)", r.Resource)
	case RuleAmountOf:
		return fmt.Sprintf("AmountOf(%s, %s)", r.Amount, r.Resource)
	case RuleCountOf:
		return fmt.Sprintf("CountOf(%d)", r.Count)
	case RuleAllOf, RuleAnyOf:
		parts := make([]string, len(r.Rules))
		for i, sub := range r.Rules {
			parts[i] = sub.String()
		}
		name := "AllOf"
		if r.Kind == RuleAnyOf {
			name = "AnyOf"
		}
		return name + "(" + strings.Join(parts, ", ") + ")"
	case RuleNot:
		if len(r.Rules) == 1 {
			return "Not(" + r.Rules[0].String() + ")"
		}
		return "Not(?)"
	case RuleProtectedBy:
		return fmt.Sprintf("ProtectedBy(%q)", r.RoleName)
	default:
		return "Unknown"
	}
}

// proofSnapshot is the evaluator's view of one held proof.
type proofSnapshot struct {
	Resource NodeID
	Amount   Decimal
	IDs      map[string]bool
}

// evaluateRule walks the rule tree against the proofs visible in the current
// and ancestor auth zones. roles resolves ProtectedBy names.
func evaluateRule(rule AccessRule, proofs []proofSnapshot, roles *RoleAssignmentSubstate) bool {
	switch rule.Kind {
	case RuleAllowAll:
		return true
	case RuleDenyAll:
		return false
	case RuleRequire:
		for _, p := range proofs {
			if rule.NonFungible != nil {
				if p.Resource == rule.NonFungible.Resource && p.IDs[rule.NonFungible.Local.String()] {
					return true
				}
				continue
			}
			if p.Resource == rule.Resource && p.Amount.IsPositive() {
				return true
			}
		}
		return false
	case RuleAmountOf:
		total := DecimalZero
		for _, p := range proofs {
			if p.Resource != rule.Resource {
				continue
			}
			sum, err := total.Add(p.Amount)
			if err != nil {
				return false
			}
			total = sum
		}
		return total.Cmp(rule.Amount) >= 0
	case RuleCountOf:
		matched := map[NodeID]bool{}
		for _, p := range proofs {
			if len(rule.Resources) == 0 {
				matched[p.Resource] = true
				continue
			}
			for _, res := range rule.Resources {
				if p.Resource == res {
					matched[res] = true
				}
			}
		}
		return len(matched) >= int(rule.Count)
	case RuleAllOf:
		for _, sub := range rule.Rules {
			if !evaluateRule(sub, proofs, roles) {
				return false
			}
		}
		return true
	case RuleAnyOf:
		for _, sub := range rule.Rules {
			if evaluateRule(sub, proofs, roles) {
				return true
			}
		}
		return false
	case RuleNot:
		if len(rule.Rules) != 1 {
			return false
		}
		return !evaluateRule(rule.Rules[0], proofs, roles)
	case RuleProtectedBy:
		if roles == nil {
			return false
		}
		resolved, ok := roles.Roles[rule.RoleName]
		if !ok {
			return false
		}
		return evaluateRule(resolved, proofs, roles)
	default:
		return false
	}
}
