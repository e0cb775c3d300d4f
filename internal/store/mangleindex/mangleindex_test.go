package mangleindex

import (
	"sort"
	"testing"

	"tsrule/internal/store"
)

func sortedFacts(facts []store.Fact) []store.Fact {
	out := append([]store.Fact(nil), facts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func TestShadowMirrorsStoreMutations(t *testing.T) {
	sh := New()
	s := store.New()
	s.SetShadow(sh)

	a, b, c, d := s.Node("/A"), s.Node("/B"), s.Node("/C"), s.Node("/D")
	s.AddFact(store.Fact{S: a, P: b, O: c})
	s.AddFact(store.Fact{S: a, P: b, O: d})
	s.AddFact(store.Fact{S: a, P: c, O: c})

	got, err := sh.Lookup(&a, &b, nil)
	if err != nil {
		t.Fatalf("Lookup(A,B,_): %v", err)
	}
	want := []store.Fact{{S: a, P: b, O: c}, {S: a, P: b, O: d}}
	if !factSetEqual(got, want) {
		t.Fatalf("Lookup(A,B,_) = %v, want %v", got, want)
	}

	s.RemoveFact(store.Fact{S: a, P: b, O: c})
	got, err = sh.Lookup(nil, nil, &c)
	if err != nil {
		t.Fatalf("Lookup(_,_,C): %v", err)
	}
	want = []store.Fact{{S: a, P: c, O: c}}
	if !factSetEqual(got, want) {
		t.Fatalf("Lookup(_,_,C) after removal = %v, want %v", got, want)
	}
}

func TestShadowContains(t *testing.T) {
	sh := New()
	s := store.New()
	s.SetShadow(sh)

	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	f := store.Fact{S: a, P: b, O: c}

	if ok, err := sh.Contains(f); err != nil || ok {
		t.Fatalf("Contains before add = (%v, %v), want (false, nil)", ok, err)
	}
	s.AddFact(f)
	if ok, err := sh.Contains(f); err != nil || !ok {
		t.Fatalf("Contains after add = (%v, %v), want (true, nil)", ok, err)
	}
	s.RemoveFact(f)
	if ok, err := sh.Contains(f); err != nil || ok {
		t.Fatalf("Contains after remove = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestShadowEstimateFactCount(t *testing.T) {
	sh := New()
	s := store.New()
	s.SetShadow(sh)

	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	s.AddFact(store.Fact{S: a, P: b, O: c})
	s.AddFact(store.Fact{S: b, P: c, O: a})

	if got := sh.EstimateFactCount(); got != 2 {
		t.Fatalf("EstimateFactCount() = %d, want 2", got)
	}
}

func factSetEqual(a, b []store.Fact) bool {
	sa, sb := sortedFacts(a), sortedFacts(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
