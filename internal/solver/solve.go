package solver

import (
	"iter"
	"sort"

	"tsrule/internal/store"
)

// varOrder computes the deterministic variable search order: at each
// step, prefer the constraint closest to fully bound (most constant/
// picked slots, short of all three: fully-ground constraints act as
// filters, not generators), tie-broken by the sum of its constant
// slots' name depth. The order is purely a function of the pattern and
// the partial map, never of store contents: after each variable is
// picked, every constraint mentioning it has its bound-count
// incremented, but the depth tie-break only ever reflects the
// constraint's own constant terms.
func (p *Pattern) varOrder(alreadyBound Assignment) []Var {
	picked := make(map[Var]bool, len(alreadyBound))
	for v := range alreadyBound {
		picked[v] = true
	}
	remaining := make(map[Var]bool, len(p.vars))
	for _, v := range p.vars {
		if !picked[v] {
			remaining[v] = true
		}
	}

	boundCountOf := func(c Constraint) int {
		n := 0
		for _, t := range [3]Term{c.S, c.P, c.O} {
			if !t.IsVar || picked[t.Var] {
				n++
			}
		}
		return n
	}
	firstUnpicked := func(c Constraint) (Var, bool) {
		for _, t := range [3]Term{c.S, c.P, c.O} {
			if t.IsVar && remaining[t.Var] {
				return t.Var, true
			}
		}
		return 0, false
	}

	var order []Var
	for len(remaining) > 0 {
		bestIdx := -1
		var bestNotFull bool
		var bestBoundCount int
		var bestDepth int
		for i, c := range p.Constraints {
			if _, ok := firstUnpicked(c); !ok {
				continue
			}
			bc := boundCountOf(c)
			notFull := bc != 3
			depth := nameDepthScore(c)
			better := bestIdx == -1
			if !better {
				if notFull != bestNotFull {
					better = notFull
				} else if bc != bestBoundCount {
					better = bc > bestBoundCount
				} else {
					better = depth > bestDepth
				}
			}
			if better {
				bestIdx = i
				bestNotFull = notFull
				bestBoundCount = bc
				bestDepth = depth
			}
		}
		if bestIdx == -1 {
			// Remaining variables appear in no constraint reachable from
			// an already-picked constraint chain; fall back to sorted
			// order for determinism.
			var rest []Var
			for v := range remaining {
				rest = append(rest, v)
			}
			sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
			order = append(order, rest...)
			break
		}
		v, _ := firstUnpicked(p.Constraints[bestIdx])
		order = append(order, v)
		delete(remaining, v)
		picked[v] = true
	}
	return order
}

// candidates returns, sorted for determinism, every node that could bind
// v without yet violating any constraint mentioning v, given the current
// bound map. Each constraint mentioning v contributes the set of values
// observed at v's slot among facts matching the constraint's other
// (currently bound) slots; the result is their intersection.
func (p *Pattern) candidates(st *store.Store, v Var, bound Assignment) []store.Node {
	var result map[store.Node]bool
	first := true
	for _, c := range p.Constraints {
		slot, ok := slotOf(c, v)
		if !ok {
			continue
		}
		terms := [3]Term{c.S, c.P, c.O}
		var ptrs [3]*store.Node
		for i, t := range terms {
			if i == slot {
				continue
			}
			if !t.IsVar {
				n := t.Const
				ptrs[i] = &n
			} else if n, ok := bound[t.Var]; ok {
				ptrs[i] = &n
			}
		}
		facts := st.LookupDirect(ptrs[0], ptrs[1], ptrs[2])
		set := make(map[store.Node]bool, len(facts))
		for _, f := range facts {
			set[valueAt(f, slot)] = true
		}
		if first {
			result = set
			first = false
		} else {
			for n := range result {
				if !set[n] {
					delete(result, n)
				}
			}
		}
	}
	out := make([]store.Node, 0, len(result))
	for n := range result {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func slotOf(c Constraint, v Var) (int, bool) {
	if c.S.IsVar && c.S.Var == v {
		return 0, true
	}
	if c.P.IsVar && c.P.Var == v {
		return 1, true
	}
	if c.O.IsVar && c.O.Var == v {
		return 2, true
	}
	return 0, false
}

func valueAt(f store.Fact, slot int) store.Node {
	switch slot {
	case 0:
		return f.S
	case 1:
		return f.P
	default:
		return f.O
	}
}

// verify checks every constraint against the store under a fully-bound
// assignment: the mandatory final pass guaranteeing soundness and
// completeness regardless of any imperfection in the ordering/candidate
// heuristics above.
func (p *Pattern) verify(st *store.Store, bound Assignment) bool {
	for _, c := range p.Constraints {
		g := groundConstraint(c, bound)
		if g.S.IsVar || g.P.IsVar || g.O.IsVar {
			return false
		}
		if !st.Contains(store.Fact{S: g.S.Const, P: g.P.Const, O: g.O.Const}) {
			return false
		}
	}
	return true
}

func maybeEqualOK(p *Pattern, bound Assignment, v Var, n store.Node) bool {
	for u, val := range bound {
		if u == v {
			continue
		}
		if val == n && !p.mayShareWith(u, v) {
			return false
		}
	}
	return true
}

// Solve enumerates assignments satisfying the pattern's constraints under
// its maybe-equal discipline, preserving any bindings given in partial
// verbatim. A nil partial with a nonempty pattern behaves normally; a
// pattern with zero constraints yields exactly partial when partial is
// non-nil, and nothing when partial is nil.
func (p *Pattern) Solve(st *store.Store, partial Assignment) iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		if len(p.Constraints) == 0 {
			if partial != nil {
				yield(partial.Clone())
			}
			return
		}

		order := p.varOrder(cloneOrEmpty(partial))
		var rec func(idx int, bound Assignment) bool
		rec = func(idx int, bound Assignment) bool {
			if idx == len(order) {
				if !p.verify(st, bound) {
					return true
				}
				return yield(bound.Clone())
			}
			v := order[idx]
			for _, n := range p.candidates(st, v, bound) {
				if !maybeEqualOK(p, bound, v, n) {
					continue
				}
				bound[v] = n
				cont := rec(idx+1, bound)
				delete(bound, v)
				if !cont {
					return false
				}
			}
			return true
		}
		rec(0, cloneOrEmpty(partial))
	}
}

func cloneOrEmpty(a Assignment) Assignment {
	if a == nil {
		return make(Assignment)
	}
	return a.Clone()
}
