package rule

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"tsrule/internal/logging"
	"tsrule/internal/solver"
	"tsrule/internal/store"
)

// CompileError reports a malformed reflected rule: a rule node classified
// under contradictory roles, most notably REMOVE combined with
// INSERT/MUST_MAP/TRY_MAP. Removal wins over any re-add, so a rule
// wanting to resurrect a node must use a fresh INSERT node; rejecting
// the overlap at compile time keeps that from becoming a silent runtime
// ambiguity.
type CompileError struct {
	Rule store.Node
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %s: %s", e.Rule, e.Msg)
}

// Rule is a compiled, immutable production rule: the three-layered
// matching form (Must/Try/Never[i]) plus the action classification
// (Insert/Remove/Subtract) and the compile-time fact snapshot the
// executor consumes after rule-support nodes are scrubbed from the store.
type Rule struct {
	Name store.Node

	AllNodes map[store.Node]bool

	MustMap  map[store.Node]bool
	TryMap   map[store.Node]bool
	Remove   map[store.Node]bool
	Subtract map[store.Node]bool
	Insert   map[store.Node]bool
	NoMap    [6]map[store.Node]bool // index 0 = /NO_MAP, 1..5 = /NO_MAP1../NO_MAP5

	Equal      map[store.Node]map[store.Node]bool
	MaybeEqual map[store.Node]map[store.Node]bool

	NodeToVar      map[store.Node]solver.Var
	VarToNode      map[solver.Var]store.Node
	MaybeEqualVars map[solver.Var]map[solver.Var]bool

	MustPattern   *solver.Pattern
	TryPattern    *solver.Pattern
	NeverPatterns map[int]*solver.Pattern

	// Facts is the flattened compile-time fact snapshot (order matches
	// IndexedFacts iterated over sorted AllNodes); IndexedFacts is the
	// same snapshot keyed by participating node, exactly as the Executor
	// needs it once rule-support nodes are gone from the live store.
	Facts        []store.Fact
	IndexedFacts map[store.Node][]store.Fact
}

// Compile parses the reflected rule rooted at ruleNode (identified by
// facts (M, ruleNode, /RULE) for each of its map markers M) into a Rule.
// Compilation reads the store once; the returned Rule is independent of
// further store mutation.
func Compile(st *store.Store, ruleNode store.Node, log *zap.Logger) *Rule {
	log = logging.NopIfNil(log)
	p := parseRule(st, ruleNode)
	nodeToVar, varToNode, maybeEqualVars := assignVariables(p)

	r := &Rule{
		Name:           ruleNode,
		AllNodes:       p.allNodes,
		MustMap:        setOf(p.nodesByType[RoleMustMap]),
		TryMap:         setOf(p.nodesByType[RoleTryMap]),
		Remove:         setOf(p.nodesByType[RoleRemove]),
		Subtract:       setOf(p.nodesByType[RoleSubtract]),
		Insert:         setOf(p.nodesByType[RoleInsert]),
		Equal:          p.equal,
		MaybeEqual:     p.maybeEqual,
		NodeToVar:      nodeToVar,
		VarToNode:      varToNode,
		MaybeEqualVars: maybeEqualVars,
	}
	for i := range p.neverByIndex {
		r.NoMap[i] = setOf(p.neverByIndex[i])
	}
	validateRoles(r)

	r.prepareConstraints(st, p)
	r.snapshotFacts(st)

	log.Debug("compiled rule",
		zap.String("rule", string(ruleNode)),
		zap.Int("must_constraints", len(r.MustPattern.Constraints)),
		zap.Int("try_constraints", len(r.TryPattern.Constraints)),
		zap.Int("never_patterns", len(r.NeverPatterns)),
	)
	return r
}

// validateRoles rejects a rule node classified as REMOVE together with
// any of INSERT/MUST_MAP/TRY_MAP, the only shapes that could attempt to
// re-add facts on a node the same application just deleted.
func validateRoles(r *Rule) {
	for n := range r.Remove {
		if r.Insert[n] {
			panic(&CompileError{Rule: r.Name, Msg: fmt.Sprintf("node %s is both REMOVE and INSERT", n)})
		}
		if r.MustMap[n] {
			panic(&CompileError{Rule: r.Name, Msg: fmt.Sprintf("node %s is both REMOVE and MUST_MAP", n)})
		}
		if r.TryMap[n] {
			panic(&CompileError{Rule: r.Name, Msg: fmt.Sprintf("node %s is both REMOVE and TRY_MAP", n)})
		}
	}
}

func setOf(nodes []store.Node) map[store.Node]bool {
	out := make(map[store.Node]bool, len(nodes))
	for _, n := range nodes {
		out[n] = true
	}
	return out
}

// parsedRule is the intermediate result of parseRule, before variable
// assignment.
type parsedRule struct {
	allNodes      map[store.Node]bool
	nodesByType   map[store.Node][]store.Node
	neverByIndex  [6][]store.Node
	mapNodes      []store.Node // nodes classified under a MAP_TYPE (MustMap/TryMap/NoMap family)
	equal         map[store.Node]map[store.Node]bool
	maybeEqual    map[store.Node]map[store.Node]bool
}

func refWildcard() *store.Node { return nil }

func ref(n store.Node) *store.Node { return &n }

// parseRule discovers every map marker M anchored to ruleNode via
// (M, ruleNode, /RULE), then classifies every fact (M, X, K) on that
// marker by the role constant K.
func parseRule(st *store.Store, ruleNode store.Node) *parsedRule {
	p := &parsedRule{
		allNodes:    map[store.Node]bool{ruleNode: true},
		nodesByType: make(map[store.Node][]store.Node),
		equal:       make(map[store.Node]map[store.Node]bool),
		maybeEqual:  make(map[store.Node]map[store.Node]bool),
	}

	markerSet := map[store.Node]bool{}
	for _, f := range st.LookupDirect(refWildcard(), ref(ruleNode), ref(RoleRuleAnchor)) {
		markerSet[f.S] = true
	}
	markers := make([]store.Node, 0, len(markerSet))
	for m := range markerSet {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i] < markers[j] })

	for _, m := range markers {
		p.allNodes[m] = true
		facts := st.LookupDirect(ref(m), refWildcard(), refWildcard())

		var equalNodes, maybeEqualNodes []store.Node
		for _, f := range facts {
			x, k := f.P, f.O
			p.allNodes[x] = true
			switch {
			case k == RoleEqual:
				equalNodes = append(equalNodes, x)
			case k == RoleMaybeEqual:
				maybeEqualNodes = append(maybeEqualNodes, x)
			case k == RoleMustMap, k == RoleTryMap:
				p.nodesByType[k] = append(p.nodesByType[k], x)
				p.mapNodes = append(p.mapNodes, x)
			case k == RoleRemove, k == RoleSubtract, k == RoleInsert:
				p.nodesByType[k] = append(p.nodesByType[k], x)
			default:
				if idx, ok := neverFamilyIndex(k); ok {
					p.neverByIndex[idx] = append(p.neverByIndex[idx], x)
					p.mapNodes = append(p.mapNodes, x)
				}
				// Any other key is not a recognized role fact;
				// ignore it.
			}
		}

		pairUp(p.equal, equalNodes)
		pairUp(p.maybeEqual, maybeEqualNodes)
	}

	return p
}

// pairUp records, for every ordered pair of distinct nodes sharing a map
// marker and role, that each is declared equal (or maybe-equal) to the
// other, so the classes are symmetrically closed by construction.
func pairUp(classes map[store.Node]map[store.Node]bool, nodes []store.Node) {
	for i, a := range nodes {
		for j, b := range nodes {
			if i == j {
				continue
			}
			if classes[a] == nil {
				classes[a] = make(map[store.Node]bool)
			}
			classes[a][b] = true
		}
	}
}

// assignVariables numbers nodes in sorted order, with declared-equal
// nodes collapsing onto the first already-numbered equivalent
// encountered.
func assignVariables(p *parsedRule) (map[store.Node]solver.Var, map[solver.Var]store.Node, map[solver.Var]map[solver.Var]bool) {
	nodeToVar := make(map[store.Node]solver.Var, len(p.allNodes))
	varToNode := make(map[solver.Var]store.Node, len(p.allNodes))
	maybeEqualVars := make(map[solver.Var]map[solver.Var]bool, len(p.allNodes))

	sorted := make([]store.Node, 0, len(p.allNodes))
	for n := range p.allNodes {
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	for _, node := range sorted {
		v := solver.Var(len(nodeToVar))
		if equivalents, ok := p.equal[node]; ok {
			sortedEq := make([]store.Node, 0, len(equivalents))
			for e := range equivalents {
				sortedEq = append(sortedEq, e)
			}
			sort.Slice(sortedEq, func(i, j int) bool { return sortedEq[i] < sortedEq[j] })
			for _, e := range sortedEq {
				if ev, ok := nodeToVar[e]; ok {
					v = ev
					break
				}
			}
		}
		nodeToVar[node] = v
		varToNode[v] = node
		if maybeEqualVars[v] == nil {
			maybeEqualVars[v] = map[solver.Var]bool{v: true}
		}
	}

	for node, others := range p.maybeEqual {
		v := nodeToVar[node]
		for other := range others {
			ov := nodeToVar[other]
			maybeEqualVars[v][ov] = true
		}
	}

	return nodeToVar, varToNode, maybeEqualVars
}

// prepareConstraints turns, for each node classified under a map role,
// every fact with that node as subject into a constraint in exactly one
// of Must/Try/Never[i], with Never > Try > (Insert-only, skipped) > Must
// precedence.
func (r *Rule) prepareConstraints(st *store.Store, p *parsedRule) {
	noMapIndex := make(map[store.Node]int)
	for i, nodes := range r.NoMap {
		for n := range nodes {
			noMapIndex[n] = i
		}
	}

	newPattern := func() *solver.Pattern {
		return solver.NewPattern(nil, r.MaybeEqualVars)
	}
	r.MustPattern = newPattern()
	r.TryPattern = newPattern()
	r.NeverPatterns = make(map[int]*solver.Pattern)

	seen := make(map[store.Node]bool, len(p.mapNodes))
	nodeToVarTranslate := func(n store.Node) solver.Term {
		if v, ok := r.NodeToVar[n]; ok {
			return solver.V(v)
		}
		return solver.Const(n)
	}

	for _, node := range p.mapNodes {
		if seen[node] {
			continue
		}
		seen[node] = true
		for _, f := range st.LookupDirect(ref(node), refWildcard(), refWildcard()) {
			constraint := solver.Constraint{
				S: nodeToVarTranslate(f.S),
				P: nodeToVarTranslate(f.P),
				O: nodeToVarTranslate(f.O),
			}
			switch {
			case anyIn(noMapIndex, f):
				idx := firstIndex(noMapIndex, f)
				if r.NeverPatterns[idx] == nil {
					r.NeverPatterns[idx] = newPattern()
				}
				r.NeverPatterns[idx].Constraints = append(r.NeverPatterns[idx].Constraints, constraint)
			case anyInSet(r.TryMap, f):
				r.TryPattern.Constraints = append(r.TryPattern.Constraints, constraint)
			case anyInSet(r.Insert, f):
				// Insert-only facts fire at action time, not match time.
			default:
				r.MustPattern.Constraints = append(r.MustPattern.Constraints, constraint)
			}
		}
	}
	// Re-derive vars/MaybeEqual bookkeeping now that constraints are
	// populated (NewPattern computed `vars` from an empty constraint
	// list above), going through the memoized pattern cache so
	// identical (constraints, maybe-equal) forms compile once per
	// process.
	r.MustPattern = solver.Compile(r.MustPattern.Constraints, r.MaybeEqualVars)
	r.TryPattern = solver.Compile(r.TryPattern.Constraints, r.MaybeEqualVars)
	for idx, pat := range r.NeverPatterns {
		r.NeverPatterns[idx] = solver.Compile(pat.Constraints, r.MaybeEqualVars)
	}
}

func anyIn(index map[store.Node]int, f store.Fact) bool {
	_, ok1 := index[f.S]
	_, ok2 := index[f.P]
	_, ok3 := index[f.O]
	return ok1 || ok2 || ok3
}

func firstIndex(index map[store.Node]int, f store.Fact) int {
	for _, n := range [3]store.Node{f.S, f.P, f.O} {
		if idx, ok := index[n]; ok {
			return idx
		}
	}
	return 0
}

func anyInSet(set map[store.Node]bool, f store.Fact) bool {
	return set[f.S] || set[f.P] || set[f.O]
}

// snapshotFacts captures, once at compile time, every fact where an
// all-nodes member is the subject, so the executor can still reference
// them after the runtime scrubs rule-support nodes from the live store.
func (r *Rule) snapshotFacts(st *store.Store) {
	sorted := make([]store.Node, 0, len(r.AllNodes))
	for n := range r.AllNodes {
		sorted = append(sorted, n)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	r.IndexedFacts = make(map[store.Node][]store.Fact, len(sorted))
	for _, n := range sorted {
		cp := st.Lookup(ref(n), refWildcard(), refWildcard())
		r.IndexedFacts[n] = cp
		r.Facts = append(r.Facts, cp...)
	}
}
