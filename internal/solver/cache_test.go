package solver

import "testing"

func TestCompileMemoizes(t *testing.T) {
	cs := []Constraint{{S: V(0), P: Const("/B"), O: V(1)}}
	me := map[Var]map[Var]bool{
		0: {0: true, 1: true},
		1: {0: true, 1: true},
	}

	p1 := Compile(cs, me)
	p2 := Compile(cs, me)
	if p1 != p2 {
		t.Fatalf("identical (constraints, maybe-equal) should share one compiled Pattern")
	}

	p3 := Compile(cs, nil)
	if p3 == p1 {
		t.Fatalf("a different maybe-equal partition must compile to a distinct Pattern")
	}
}
