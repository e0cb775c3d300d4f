package solver

import (
	"sort"
	"strconv"
	"testing"

	"tsrule/internal/store"
)

func collect(p *Pattern, st *store.Store, partial Assignment) []Assignment {
	var out []Assignment
	for a := range p.Solve(st, partial) {
		out = append(out, a)
	}
	return out
}

func assignmentKey(a Assignment) string {
	keys := make([]Var, 0, len(a))
	for v := range a {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	s := ""
	for _, v := range keys {
		s += strconv.Itoa(int(v)) + "=" + string(a[v]) + ";"
	}
	return s
}

func assignmentSet(as []Assignment) map[string]bool {
	out := make(map[string]bool, len(as))
	for _, a := range as {
		out[assignmentKey(a)] = true
	}
	return out
}

func TestTrivialPattern(t *testing.T) {
	p := NewPattern(nil, nil)
	st := store.New()

	if got := collect(p, st, nil); got != nil {
		t.Fatalf("empty pattern, nil partial: got %v, want nothing", got)
	}
	partial := Assignment{0: "/A"}
	got := collect(p, st, partial)
	if len(got) != 1 || got[0][0] != "/A" {
		t.Fatalf("empty pattern, non-nil partial: got %v, want [%v]", got, partial)
	}
}

func TestSolverMaybeEqualScenario(t *testing.T) {
	st := store.New()
	a, b, c, x := st.Node("/A"), st.Node("/B"), st.Node("/C"), st.Node("/X")
	st.AddFact(store.Fact{S: a, P: b, O: c})
	st.AddFact(store.Fact{S: b, P: c, O: a})
	st.AddFact(store.Fact{S: b, P: c, O: x})

	const (
		v5 Var = 5
		v6 Var = 6
		v7 Var = 7
		v0 Var = 0
		v1 Var = 1
		v2 Var = 2
		v3 Var = 3
	)
	constraints := []Constraint{
		{S: V(v5), P: Const(b), O: V(v6)},
		{S: V(v7), P: V(v0), O: V(v1)},
		{S: V(v7), P: V(v2), O: V(v3)},
	}
	maybeEqual := map[Var]map[Var]bool{
		v5: {v5: true, v1: true},
		v1: {v5: true, v1: true},
		v6: {v6: true, v0: true, v2: true},
		v0: {v6: true, v0: true, v2: true},
		v2: {v6: true, v0: true, v2: true},
	}
	p := NewPattern(constraints, maybeEqual)

	got := collect(p, st, nil)
	if len(got) != 1 {
		t.Fatalf("expected exactly one assignment, got %d: %v", len(got), got)
	}
	want := Assignment{v5: a, v6: c, v7: b, v0: c, v1: a, v2: c, v3: x}
	for v, n := range want {
		if got[0][v] != n {
			t.Errorf("assignment[%d] = %v, want %v", v, got[0][v], n)
		}
	}
}

func TestSolverSoundnessAndCompleteness(t *testing.T) {
	st := store.New()
	a, b, c, d := st.Node("/A"), st.Node("/B"), st.Node("/C"), st.Node("/D")
	st.AddFact(store.Fact{S: a, P: b, O: c})
	st.AddFact(store.Fact{S: a, P: b, O: d})
	st.AddFact(store.Fact{S: d, P: b, O: c})

	p := NewPattern([]Constraint{
		{S: Const(a), P: Const(b), O: V(0)},
		{S: V(0), P: Const(b), O: Const(c)},
	}, nil)

	got := collect(p, st, nil)
	// soundness: every constraint holds for every yielded assignment.
	for _, asg := range got {
		for _, c := range p.Constraints {
			g := groundConstraint(c, asg)
			if g.S.IsVar || g.P.IsVar || g.O.IsVar {
				t.Fatalf("assignment %v left constraint %v unbound", asg, c)
			}
			if !st.Contains(store.Fact{S: g.S.Const, P: g.P.Const, O: g.O.Const}) {
				t.Fatalf("unsound: %v does not hold for assignment %v", c, asg)
			}
		}
	}
	// completeness: only /D satisfies (A,B,d) and (d,B,C); /C does not
	// since (C,B,C) is not a fact.
	want := map[string]bool{assignmentKey(Assignment{0: d}): true}
	if gotSet := assignmentSet(got); len(gotSet) != len(want) {
		t.Fatalf("completeness: got %v, want %v", gotSet, want)
	}
}

func TestSolverOrderIndependence(t *testing.T) {
	st := store.New()
	a, b, c := st.Node("/A"), st.Node("/B"), st.Node("/C")
	st.AddFact(store.Fact{S: a, P: b, O: c})
	st.AddFact(store.Fact{S: b, P: c, O: a})

	constraints := []Constraint{
		{S: V(0), P: V(1), O: V(2)},
		{S: V(2), P: V(3), O: V(0)},
	}
	reversed := []Constraint{constraints[1], constraints[0]}

	p1 := NewPattern(constraints, nil)
	p2 := NewPattern(reversed, nil)

	set1 := assignmentSet(collect(p1, st, nil))
	set2 := assignmentSet(collect(p2, st, nil))
	if len(set1) != len(set2) {
		t.Fatalf("order-independence: set sizes differ: %v vs %v", set1, set2)
	}
	for k := range set1 {
		if !set2[k] {
			t.Fatalf("order-independence: %q present in forward order but not reversed", k)
		}
	}
}

func TestSolverDeterminism(t *testing.T) {
	st := store.New()
	a, b, c := st.Node("/A"), st.Node("/B"), st.Node("/C")
	st.AddFact(store.Fact{S: a, P: b, O: c})
	st.AddFact(store.Fact{S: a, P: b, O: a})

	p := NewPattern([]Constraint{{S: Const(a), P: Const(b), O: V(0)}}, nil)
	first := collect(p, st, nil)
	second := collect(p, st, nil)
	if len(first) != len(second) {
		t.Fatalf("determinism: lengths differ")
	}
	for i := range first {
		if first[i][0] != second[i][0] {
			t.Fatalf("determinism: order differs at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestUnknownConstantYieldsNothing(t *testing.T) {
	st := store.New()
	a, b := st.Node("/A"), st.Node("/B")
	st.AddFact(store.Fact{S: a, P: b, O: a})

	p := NewPattern([]Constraint{{S: Const("/Unknown"), P: Const(b), O: V(0)}}, nil)
	got := collect(p, st, nil)
	if len(got) != 0 {
		t.Fatalf("pattern referring to unknown constant: got %v, want none", got)
	}
}
