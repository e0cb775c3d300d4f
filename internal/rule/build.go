package rule

import "tsrule/internal/store"

// Builder is the reflective rule-construction macro: it writes into the
// store, before the runtime is constructed, the role/anchor/equivalence
// facts Compile expects, so rule authors and fixtures don't hand-write
// dozens of raw triplets per rule.
type Builder struct {
	st       *store.Store
	ruleNode store.Node
}

// NewBuilder creates the rule's anchor node (under the store's currently
// active scope) and returns a Builder for populating its role facts.
func NewBuilder(st *store.Store, ruleName string) *Builder {
	return &Builder{st: st, ruleNode: st.Node(ruleName)}
}

// Rule returns the node identifying this rule: the P of the (M, P,
// /RULE) anchor facts its role declarations produce.
func (b *Builder) Rule() store.Node {
	return b.ruleNode
}

// Role declares each of nodes as playing role (one of the Role*
// constants) in this rule: it creates a fresh map marker anchored to the
// rule via (marker, ruleNode, /RULE), then adds (marker, node, role) for
// each node. The role-constant nodes are created on first use; facts may
// only reference live nodes.
func (b *Builder) Role(role store.Node, nodes ...store.Node) {
	marker := b.st.Node(":RuleMap:??")
	anchor := b.st.Node(string(RoleRuleAnchor))
	roleNode := b.st.Node(string(role))
	b.st.AddFact(store.Fact{S: marker, P: b.ruleNode, O: anchor})
	for _, n := range nodes {
		b.st.AddFact(store.Fact{S: marker, P: n, O: roleNode})
	}
}

// Equal declares nodes as a mutual equality class: every node receives
// the same rule variable at compile time.
func (b *Builder) Equal(nodes ...store.Node) {
	b.equivalence(RoleEqual, nodes)
}

// MaybeEqual declares nodes as a mutual maybe-equal class: members are
// permitted, not required, to bind to the same store node.
func (b *Builder) MaybeEqual(nodes ...store.Node) {
	b.equivalence(RoleMaybeEqual, nodes)
}

func (b *Builder) equivalence(role store.Node, nodes []store.Node) {
	marker := b.st.Node(":Equivalence:??")
	anchor := b.st.Node(string(RoleRuleAnchor))
	roleNode := b.st.Node(string(role))
	b.st.AddFact(store.Fact{S: marker, P: b.ruleNode, O: anchor})
	for _, n := range nodes {
		b.st.AddFact(store.Fact{S: marker, P: n, O: roleNode})
	}
}
