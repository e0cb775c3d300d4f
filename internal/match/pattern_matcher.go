package match

import (
	"sort"

	"tsrule/internal/solver"
	"tsrule/internal/store"
)

// patternMatcher tracks the assignments to a single Pattern (Must, Try,
// or one Never[i]) under a live store, with the fact<->assignment
// reverse indices differential updates need.
type patternMatcher struct {
	st      *store.Store
	pattern *solver.Pattern
	partial solver.Assignment

	assignments   map[string]solver.Assignment
	relyingOnFact map[store.Fact]map[string]bool
	factsUsedBy   map[string]map[store.Fact]bool
}

func newPatternMatcher(st *store.Store, pattern *solver.Pattern, partial solver.Assignment) *patternMatcher {
	pm := &patternMatcher{
		st:            st,
		pattern:       pattern,
		partial:       partial.Clone(),
		assignments:   map[string]solver.Assignment{},
		relyingOnFact: map[store.Fact]map[string]bool{},
		factsUsedBy:   map[string]map[store.Fact]bool{},
	}
	for a := range pattern.Solve(st, pm.partial) {
		pm.addAssignment(a)
	}
	return pm
}

func (pm *patternMatcher) addAssignment(a solver.Assignment) {
	key := freezeKey(a)
	if _, exists := pm.assignments[key]; exists {
		return
	}
	pm.assignments[key] = a
	facts := map[store.Fact]bool{}
	pm.factsUsedBy[key] = facts
	for _, c := range pm.pattern.Constraints {
		f := factFor(c, a)
		facts[f] = true
		if pm.relyingOnFact[f] == nil {
			pm.relyingOnFact[f] = map[string]bool{}
		}
		pm.relyingOnFact[f][key] = true
	}
}

func (pm *patternMatcher) removeAssignment(key string) {
	for f := range pm.factsUsedBy[key] {
		delete(pm.relyingOnFact[f], key)
		if len(pm.relyingOnFact[f]) == 0 {
			delete(pm.relyingOnFact, f)
		}
	}
	delete(pm.factsUsedBy, key)
	delete(pm.assignments, key)
}

// sync applies delta to this pattern's assignment set, returning the
// assignments removed and added this cycle (keyed by frozen key): drop
// everything relying on a removed fact, then unify every added fact
// against every constraint to find candidate partials and extend each
// via the solver. Each layer is monotonic in the fact set, so a new
// assignment must use at least one added fact.
func (pm *patternMatcher) sync(delta *store.Delta) (removed, added map[string]solver.Assignment) {
	removed = map[string]solver.Assignment{}
	added = map[string]solver.Assignment{}
	if len(pm.pattern.Constraints) == 0 {
		return removed, added
	}

	removedFacts := sortedFacts(delta.RemoveFacts)
	for _, f := range removedFacts {
		relying := pm.relyingOnFact[f]
		keys := make([]string, 0, len(relying))
		for k := range relying {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			a := pm.assignments[key]
			pm.removeAssignment(key)
			removed[key] = a
		}
		delete(pm.relyingOnFact, f)
	}

	baseKey := freezeKey(pm.partial)
	partials := map[string]solver.Assignment{}
	addedFacts := sortedFacts(delta.AddFacts)
	for _, f := range addedFacts {
		for _, c := range pm.pattern.Constraints {
			if a, ok := unify(pm.pattern, pm.partial, c, f); ok {
				partials[freezeKey(a)] = a
			}
		}
	}
	delete(partials, baseKey)

	pkeys := make([]string, 0, len(partials))
	for k := range partials {
		pkeys = append(pkeys, k)
	}
	sort.Strings(pkeys)
	for _, pk := range pkeys {
		partial := partials[pk]
		for full := range pm.pattern.Solve(pm.st, partial) {
			fk := freezeKey(full)
			if _, exists := pm.assignments[fk]; exists {
				continue
			}
			pm.addAssignment(full)
			added[fk] = full
		}
	}
	return removed, added
}

func sortedFacts(set map[store.Fact]bool) []store.Fact {
	out := make([]store.Fact, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// sortedAssignments returns this matcher's current assignments in the
// deterministic yield order.
func (pm *patternMatcher) sortedAssignments() []solver.Assignment {
	out := make([]solver.Assignment, 0, len(pm.assignments))
	for _, a := range pm.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return lessAssignment(out[i], out[j]) })
	return out
}
