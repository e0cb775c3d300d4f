// Package runtime ties the fact store, rule compiler, incremental
// matcher, and assignment executor together into the production-rule
// runtime: extract reflected rules once at construction, then propose
// rewrites by matching and applying rules against the live store.
package runtime

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tsrule/internal/exec"
	"tsrule/internal/logging"
	"tsrule/internal/match"
	"tsrule/internal/rule"
	"tsrule/internal/store"
)

// Runtime owns a store and the rules reflected out of it at
// construction time.
type Runtime struct {
	st          *store.Store
	rules       []*rule.Rule
	rulesByName map[store.Node]*rule.Rule
	matchers    map[string]*match.PersistentMatcher
	log         *zap.Logger
}

// New extracts every reflected rule out of st (facts of the shape
// (marker, ruleNode, /RULE)), scrubs the rule-support nodes from the
// store, and returns a Runtime ready to propose rewrites. A nil logger
// is replaced with a no-op logger.
func New(st *store.Store, log *zap.Logger) *Runtime {
	log = logging.NopIfNil(log)
	st.Commit(false)
	rt := &Runtime{
		st:          st,
		rulesByName: map[store.Node]*rule.Rule{},
		matchers:    map[string]*match.PersistentMatcher{},
		log:         log,
	}
	rt.extractRules()
	st.Commit(false)
	return rt
}

// extractRules discovers every rule node via its (marker, ruleNode,
// /RULE) anchor facts, compiles each, then removes every rule-support
// node (and, as a second pass, every remaining non-"/:"-prefixed node)
// from the store so rules never match against their own definitions.
func (rt *Runtime) extractRules() {
	anchor := rule.RoleRuleAnchor
	ruleNodeSet := map[store.Node]bool{}
	for _, f := range rt.st.LookupDirect(nil, nil, &anchor) {
		ruleNodeSet[f.P] = true
	}
	ruleNodes := make([]store.Node, 0, len(ruleNodeSet))
	for n := range ruleNodeSet {
		ruleNodes = append(ruleNodes, n)
	}
	sort.Slice(ruleNodes, func(i, j int) bool { return ruleNodes[i] < ruleNodes[j] })

	for _, rn := range ruleNodes {
		r := rule.Compile(rt.st, rn, rt.log)
		rt.rules = append(rt.rules, r)
		rt.rulesByName[r.Name] = r
	}

	avoid := map[store.Node]bool{}
	for _, r := range rt.rules {
		for n := range r.AllNodes {
			avoid[n] = true
		}
	}
	avoidSorted := make([]store.Node, 0, len(avoid))
	for n := range avoid {
		avoidSorted = append(avoidSorted, n)
	}
	sort.Slice(avoidSorted, func(i, j int) bool { return avoidSorted[i] < avoidSorted[j] })
	for _, n := range avoidSorted {
		rt.st.RemoveNodeWithFacts(n)
	}

	var remaining []store.Node
	for _, n := range rt.st.AllNodeNames() {
		if !strings.HasPrefix(string(n), "/:") {
			remaining = append(remaining, n)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })
	for _, n := range remaining {
		rt.st.RemoveNode(n)
	}

	rt.log.Debug("extracted rules", zap.Int("count", len(rt.rules)))
}

// GetRule returns the compiled rule named name, or nil if no such rule
// was extracted.
func (rt *Runtime) GetRule(name store.Node) *rule.Rule {
	return rt.rulesByName[name]
}

// GetMatcher returns a matcher tracking ruleName's applications under
// partial. One-off matchers are always fresh; persistent matchers are
// memoized per (rule, partial), so fixed-point drivers that re-request
// the same matcher get the one already tracking the store
// differentially. Callers must Sync() before reading assignments.
func (rt *Runtime) GetMatcher(ruleName store.Node, partial match.Assignment, oneOff bool) match.Matcher {
	r := rt.rulesByName[ruleName]
	if r == nil {
		panic(fmt.Sprintf("runtime: no such rule %q", ruleName))
	}
	if oneOff {
		return match.NewOneOff(rt.st, r, partial)
	}
	key := string(ruleName) + "|" + partialKey(partial)
	if m, ok := rt.matchers[key]; ok {
		return m
	}
	m := match.NewPersistent(rt.st, r, partial)
	rt.matchers[key] = m
	return m
}

func partialKey(partial match.Assignment) string {
	keys := make([]store.Node, 0, len(partial))
	for n := range partial {
		keys = append(keys, n)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var b strings.Builder
	for _, n := range keys {
		fmt.Fprintf(&b, "%s=%s;", n, partial[n])
	}
	return b.String()
}

// MatcherPropose drives any Matcher (one-off or persistent) through the
// commit/yield/rollback cycle: each assignment is applied and committed;
// non-empty deltas are yielded to the caller. If the caller stops the
// iteration (the range loop breaks, or the consumer returns false from a
// manual pull), the just-committed delta is left in place; this is how
// a caller "accepts" a proposal. Otherwise, once control returns to
// MatcherPropose, the delta is rolled back before the next assignment is
// tried, so proposals are explored against the same starting state.
// Callers must use at most one yielded result before re-syncing a
// persistent matcher.
func (rt *Runtime) MatcherPropose(m match.Matcher) iter.Seq2[match.Assignment, *store.Delta] {
	return func(yield func(match.Assignment, *store.Delta) bool) {
		if !rt.st.IsClean() {
			panic(&store.InvariantError{Op: "MatcherPropose", Msg: "store has an uncommitted buffer"})
		}
		for a := range m.Assignments() {
			applied := rt.applyFor(m, a)
			delta := rt.st.Commit(true)
			if !delta.IsEmpty() {
				if !yield(applied, delta) {
					return
				}
			}
			if rt.st.LastCommitted() == delta {
				rt.st.Rollback(-1)
			}
		}
	}
}

// applyFor resolves the rule a Matcher is bound to and applies the
// assignment through the Executor. Matcher implementations expose their
// bound rule via the matcherRule interface so MatcherPropose can stay
// generic over one-off and persistent matchers alike.
func (rt *Runtime) applyFor(m match.Matcher, a match.Assignment) match.Assignment {
	r, ok := m.(matcherRule)
	if !ok {
		panic(fmt.Sprintf("runtime: matcher %T does not expose its rule", m))
	}
	return exec.New(rt.st, r.Rule(), rt.log).Apply(a)
}

// matcherRule is satisfied by both match.OneOffMatcher and
// match.PersistentMatcher.
type matcherRule interface {
	Rule() *rule.Rule
}

// Propose proposes rewrites for the single named rule under partial.
// Equivalent to MatcherPropose over a fresh OneOffMatcher.
func (rt *Runtime) Propose(ruleName store.Node, partial match.Assignment) iter.Seq2[match.Assignment, *store.Delta] {
	r := rt.rulesByName[ruleName]
	if r == nil {
		panic(fmt.Sprintf("runtime: no such rule %q", ruleName))
	}
	m := match.NewOneOff(rt.st, r, partial)
	return rt.MatcherPropose(m)
}

// ProposeAll proposes rewrites for every rule named in ruleNames, in the
// given order, or for every extracted rule (in compile order) if
// ruleNames is empty.
func (rt *Runtime) ProposeAll(ruleNames ...store.Node) iter.Seq2[match.Assignment, *store.Delta] {
	names := ruleNames
	if len(names) == 0 {
		for _, r := range rt.rules {
			names = append(names, r.Name)
		}
	}
	return func(yield func(match.Assignment, *store.Delta) bool) {
		for _, name := range names {
			for a, d := range rt.Propose(name, nil) {
				if !yield(a, d) {
					return
				}
			}
		}
	}
}
