// Package match implements the incremental matcher: it maintains the set
// of satisfying assignments for a rule under a live fact store by
// differential updates against the must-layer, recomputing try/no
// layers lazily.
package match

import (
	"fmt"
	"sort"
	"strings"

	"tsrule/internal/rule"
	"tsrule/internal/solver"
	"tsrule/internal/store"
)

// Assignment maps a rule node to the store node it was matched against,
// the form the executor consumes. Internally the matcher and solver work
// in variable space (solver.Assignment); Assignment is the node-space
// form produced at the matcher's boundary.
type Assignment map[store.Node]store.Node

// compose converts a variable-keyed solved assignment into node space by
// composing it with the rule's node->variable map. Deliberately iterates
// NodeToVar (many nodes can share one variable via an Equal declaration)
// rather than VarToNode (one representative node per variable), so every
// equal-declared node, not just the var's canonical representative,
// ends up bound. The executor's add-nodes step relies on this: an Insert
// node sharing a variable with an already-bound node must arrive already
// bound in the incoming assignment.
func compose(r *rule.Rule, bound solver.Assignment) Assignment {
	out := make(Assignment, len(bound))
	for node, v := range r.NodeToVar {
		if val, ok := bound[v]; ok {
			out[node] = val
		}
	}
	return out
}

// toVarAssignment converts a node-keyed partial assignment into the
// variable-keyed form the solver and rule patterns operate in, dropping
// any node that plays no role in the rule.
func toVarAssignment(r *rule.Rule, partial Assignment) solver.Assignment {
	out := make(solver.Assignment, len(partial))
	for node, val := range partial {
		if v, ok := r.NodeToVar[node]; ok {
			out[v] = val
		}
	}
	return out
}

func freezeKey(a solver.Assignment) string {
	vars := sortedVars(a)
	var b strings.Builder
	for _, v := range vars {
		fmt.Fprintf(&b, "%d=%s;", v, a[v])
	}
	return b.String()
}

func sortedVars(a solver.Assignment) []solver.Var {
	vars := make([]solver.Var, 0, len(a))
	for v := range a {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	return vars
}

// lessAssignment gives the deterministic "must-order"/"try-order" total
// order over assignments, so yield order is a function of sorted keys,
// never of insertion order.
func lessAssignment(a, b solver.Assignment) bool {
	av, bv := sortedVars(a), sortedVars(b)
	for i := 0; i < len(av) && i < len(bv); i++ {
		if av[i] != bv[i] {
			return av[i] < bv[i]
		}
		if na, nb := a[av[i]], b[bv[i]]; na != nb {
			return na < nb
		}
	}
	return len(av) < len(bv)
}

func mayShare(p *solver.Pattern, u, v solver.Var) bool {
	if u == v {
		return true
	}
	if cls, ok := p.MaybeEqual[u]; ok {
		return cls[v]
	}
	return false
}

// unify unifies one constraint against one fact, producing the partial
// assignment (seeded from base) that results, or false if the fact
// cannot satisfy the constraint at all. Constants must match literally,
// repeated or already-bound variables must agree, and two constraint
// slots bound to the same fact value must be in each other's maybe-equal
// class.
func unify(p *solver.Pattern, base solver.Assignment, c solver.Constraint, f store.Fact) (solver.Assignment, bool) {
	assignment := base.Clone()
	inverse := map[store.Node][]solver.Var{}
	terms := [3]solver.Term{c.S, c.P, c.O}
	vals := [3]store.Node{f.S, f.P, f.O}
	for i, t := range terms {
		arg := vals[i]
		if !t.IsVar {
			if t.Const != arg {
				return nil, false
			}
			continue
		}
		v := t.Var
		if existing, ok := assignment[v]; ok && existing != arg {
			return nil, false
		}
		for _, other := range inverse[arg] {
			if !mayShare(p, other, v) {
				return nil, false
			}
		}
		assignment[v] = arg
		inverse[arg] = append(inverse[arg], v)
	}
	return assignment, true
}

func factFor(c solver.Constraint, a solver.Assignment) store.Fact {
	term := func(t solver.Term) store.Node {
		if t.IsVar {
			return a[t.Var]
		}
		return t.Const
	}
	return store.Fact{S: term(c.S), P: term(c.P), O: term(c.O)}
}
