// Package rule implements the rule compiler: parsing reflected rules from
// the fact store into a three-layered matching form (MustMap / TryMap /
// NoMap) plus an action form (Insert / Remove / Subtract). Rules are
// compiled once at runtime-init into an immutable record; the
// fact-encoded form is discarded after extraction, so rules never match
// against their own representation.
package rule

import "tsrule/internal/store"

// Role constants are the literal node names a rule's map-marker relates
// its nodes to via (M, N, K) facts.
const (
	RoleMustMap  store.Node = "/MUST_MAP"
	RoleTryMap   store.Node = "/TRY_MAP"
	RoleNoMap    store.Node = "/NO_MAP"
	RoleNoMap1   store.Node = "/NO_MAP1"
	RoleNoMap2   store.Node = "/NO_MAP2"
	RoleNoMap3   store.Node = "/NO_MAP3"
	RoleNoMap4   store.Node = "/NO_MAP4"
	RoleNoMap5   store.Node = "/NO_MAP5"
	RoleRemove   store.Node = "/REMOVE"
	RoleSubtract store.Node = "/SUBTRACT"
	RoleInsert   store.Node = "/INSERT"

	// RoleRuleAnchor marks the fact (M, RULE_NODE, /RULE) identifying
	// RULE_NODE as the rule a map-marker M belongs to.
	RoleRuleAnchor store.Node = "/RULE"

	// RoleEqual and RoleMaybeEqual mark (M, X, /=) / (M, X, /MAYBE=)
	// equality declarations: every X sharing the same M and role forms
	// one class.
	RoleEqual      store.Node = "/="
	RoleMaybeEqual store.Node = "/MAYBE="
)

// neverFamilies lists the indexed NO_MAP roles in family order: index 0
// is the general /NO_MAP, indices 1-5 are /NO_MAP1.../NO_MAP5.
var neverFamilies = [6]store.Node{RoleNoMap, RoleNoMap1, RoleNoMap2, RoleNoMap3, RoleNoMap4, RoleNoMap5}

func neverFamilyIndex(role store.Node) (int, bool) {
	for i, r := range neverFamilies {
		if r == role {
			return i, true
		}
	}
	return 0, false
}
