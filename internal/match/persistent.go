package match

import (
	"iter"
	"sort"

	"tsrule/internal/rule"
	"tsrule/internal/solver"
	"tsrule/internal/store"
)

// mustEntry is the bookkeeping the persistent Matcher keeps per live
// must-assignment: one sub-matcher per never-pattern, plus a try
// sub-matcher created lazily only once every never is empty.
type mustEntry struct {
	assignment solver.Assignment
	nevers     []*patternMatcher
	try        *patternMatcher
}

func (e *mustEntry) anyNeverNonEmpty() bool {
	for _, n := range e.nevers {
		if len(n.assignments) > 0 {
			return true
		}
	}
	return false
}

// PersistentMatcher maintains the live set of satisfying assignments for
// a rule under a mutating store via differential sync against the
// must-layer.
type PersistentMatcher struct {
	st      *store.Store
	rule    *rule.Rule
	partial solver.Assignment

	frame       *store.FreezeFrame
	mustMatcher *patternMatcher
	entries     map[string]*mustEntry
}

// NewPersistent builds a PersistentMatcher for rule under partial
// (node-keyed), taking an initial freeze-frame and computing the
// must-layer's starting assignment set.
func NewPersistent(st *store.Store, r *rule.Rule, partial Assignment) *PersistentMatcher {
	varPartial := toVarAssignment(r, partial)
	m := &PersistentMatcher{
		st:      st,
		rule:    r,
		partial: varPartial,
		frame:   st.FreezeFrame(),
		entries: map[string]*mustEntry{},
	}
	m.mustMatcher = newPatternMatcher(st, r.MustPattern, varPartial)
	for key, a := range m.mustMatcher.assignments {
		m.addMust(key, a)
	}
	return m
}

// Rule returns the rule this matcher is bound to.
func (m *PersistentMatcher) Rule() *rule.Rule { return m.rule }

func (m *PersistentMatcher) neverIndices() []int {
	idxs := make([]int, 0, len(m.rule.NeverPatterns))
	for i := range m.rule.NeverPatterns {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs
}

func (m *PersistentMatcher) addMust(key string, a solver.Assignment) {
	entry := &mustEntry{assignment: a}
	for _, idx := range m.neverIndices() {
		pm := newPatternMatcher(m.st, m.rule.NeverPatterns[idx], a)
		entry.nevers = append(entry.nevers, pm)
	}
	if !entry.anyNeverNonEmpty() {
		entry.try = newPatternMatcher(m.st, m.rule.TryPattern, a)
	}
	m.entries[key] = entry
}

// Sync computes the delta since the last sync, updates the must-layer
// differentially (dropping assignments that used a removed fact,
// extending with new assignments unified from added facts), then
// re-syncs each surviving must-assignment's never sub-matchers,
// invalidating the try sub-matcher whenever any never becomes non-empty
// and lazily (re)creating it otherwise.
func (m *PersistentMatcher) Sync() {
	current := m.st.FreezeFrame()
	delta := store.Diff(m.frame, current)
	m.frame = current

	removed, added := m.mustMatcher.sync(delta)
	for key := range removed {
		delete(m.entries, key)
	}

	for _, entry := range m.entries {
		for _, never := range entry.nevers {
			never.sync(delta)
		}
		if entry.anyNeverNonEmpty() {
			entry.try = nil
		} else if entry.try != nil {
			entry.try.sync(delta)
		} else {
			entry.try = newPatternMatcher(m.st, m.rule.TryPattern, entry.assignment)
		}
	}

	addedKeys := make([]string, 0, len(added))
	for key := range added {
		addedKeys = append(addedKeys, key)
	}
	sort.Strings(addedKeys)
	for _, key := range addedKeys {
		m.addMust(key, added[key])
	}
}

// MustUsesFact reports whether some live must-assignment relies on fact
// f, i.e. whether f appears in the must-layer's fact->assignment reverse
// index.
func (m *PersistentMatcher) MustUsesFact(f store.Fact) bool {
	return len(m.mustMatcher.relyingOnFact[f]) > 0
}

// Assignments yields assignments in sorted must-order; a try-extension
// yields a full assignment per extension, otherwise the bare must does,
// mirroring one-off behavior for uniformity across the two matchers.
func (m *PersistentMatcher) Assignments() iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		entries := make([]*mustEntry, 0, len(m.entries))
		for _, e := range m.entries {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool {
			return lessAssignment(entries[i].assignment, entries[j].assignment)
		})
		for _, entry := range entries {
			if entry.anyNeverNonEmpty() {
				continue
			}
			if entry.try != nil && len(entry.try.assignments) > 0 {
				for _, a := range entry.try.sortedAssignments() {
					if !yield(compose(m.rule, a)) {
						return
					}
				}
				continue
			}
			if !yield(compose(m.rule, entry.assignment)) {
				return
			}
		}
	}
}
