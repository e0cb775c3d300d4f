package match

import (
	"iter"
	"sort"

	"tsrule/internal/rule"
	"tsrule/internal/solver"
	"tsrule/internal/store"
)

// Matcher is the interface shared by the one-off and persistent matcher
// implementations: sync, then stream assignments.
type Matcher interface {
	Sync()
	Assignments() iter.Seq[Assignment]
}

// OneOffMatcher is the stateless matcher: every call re-runs the solver
// against the must-pattern, drops candidates any never-pattern can
// extend, and extends survivors with try-pattern assignments (yielding
// the bare must when try is non-empty as a pattern but has no
// extensions, since try is optional extra specificity, not a
// requirement).
type OneOffMatcher struct {
	st      *store.Store
	rule    *rule.Rule
	partial solver.Assignment
}

// NewOneOff builds a OneOffMatcher for rule under partial (node-keyed;
// nodes outside the rule are ignored).
func NewOneOff(st *store.Store, r *rule.Rule, partial Assignment) *OneOffMatcher {
	return &OneOffMatcher{st: st, rule: r, partial: toVarAssignment(r, partial)}
}

// Sync is a no-op: the OneOffMatcher is always up to date.
func (m *OneOffMatcher) Sync() {}

// Rule returns the rule this matcher is bound to.
func (m *OneOffMatcher) Rule() *rule.Rule { return m.rule }

// Assignments solves for and yields valid rule assignments in
// deterministic must/try order.
func (m *OneOffMatcher) Assignments() iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		musts := collectSorted(m.rule.MustPattern.Solve(m.st, m.partial))
		for _, must := range musts {
			if invalid(m.st, m.rule, must) {
				continue
			}
			tries := collectSorted(m.rule.TryPattern.Solve(m.st, must))
			for _, try := range tries {
				if !yield(compose(m.rule, try)) {
					return
				}
			}
			if len(m.rule.TryPattern.Constraints) == 0 {
				continue
			}
			if len(tries) == 0 {
				if !yield(compose(m.rule, must)) {
					return
				}
			}
		}
	}
}

func invalid(st *store.Store, r *rule.Rule, must solver.Assignment) bool {
	for _, np := range r.NeverPatterns {
		for range np.Solve(st, must) {
			return true
		}
	}
	return false
}

func collectSorted(seq iter.Seq[solver.Assignment]) []solver.Assignment {
	var out []solver.Assignment
	for a := range seq {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return lessAssignment(out[i], out[j]) })
	return out
}
