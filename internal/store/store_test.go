package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFactIndexRoundTrip(t *testing.T) {
	s := New()
	a, b, c, d := s.Node("/A"), s.Node("/B"), s.Node("/C"), s.Node("/D")

	s.AddFact(Fact{a, b, c})
	s.AddFact(Fact{a, b, d})
	s.AddFact(Fact{a, c, c})

	got := s.Lookup(&a, &b, nil)
	want := []Fact{{a, b, c}, {a, b, d}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lookup(A,B,_) mismatch (-want +got):\n%s", diff)
	}

	s.RemoveFact(Fact{a, b, c})
	got = s.Lookup(nil, nil, &c)
	want = []Fact{{a, c, c}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lookup(_,_,C) after removal mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexCompleteness(t *testing.T) {
	s := New()
	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	f := Fact{a, b, c}
	s.AddFact(f)

	for _, tc := range []struct {
		name    string
		s, p, o *Node
	}{
		{"***", nil, nil, nil},
		{"s**", &a, nil, nil},
		{"*p*", nil, &b, nil},
		{"**o", nil, nil, &c},
		{"sp*", &a, &b, nil},
		{"s*o", &a, nil, &c},
		{"*po", nil, &b, &c},
		{"spo", &a, &b, &c},
	} {
		facts := s.Lookup(tc.s, tc.p, tc.o)
		if len(facts) != 1 || facts[0] != f {
			t.Fatalf("hole-pattern %s: got %v, want [%v]", tc.name, facts, f)
		}
	}
	for _, n := range []Node{a, b, c} {
		facts := s.FactsAbout(n)
		if len(facts) != 1 || facts[0] != f {
			t.Fatalf("FactsAbout(%v): got %v, want [%v]", n, facts, f)
		}
	}

	s.RemoveFact(f)
	for _, n := range []Node{a, b, c} {
		if len(s.FactsAbout(n)) != 0 {
			t.Fatalf("FactsAbout(%v) after removal: got %v, want empty", n, s.FactsAbout(n))
		}
	}
	if len(s.Lookup(&a, &b, &c)) != 0 {
		t.Fatalf("lookup(A,B,C) after removal: want empty")
	}
}

func TestAddThenRemoveCoalescesDelta(t *testing.T) {
	s := New()
	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	s.Commit(true) // clean baseline after node creation

	s.AddFact(Fact{a, b, c})
	s.RemoveFact(Fact{a, b, c})

	if !s.IsClean() {
		t.Fatalf("buffer not clean after add-then-remove of the same fact: %+v", s.buffer)
	}
}

func TestCommitRollbackZeroNoNetChange(t *testing.T) {
	s := New()
	a := s.Node("/A")
	start := s.FreezeFrame()

	b := s.Node("/B")
	s.AddFact(Fact{a, a, b})
	s.Commit(false)

	s.Rollback(0)
	end := s.FreezeFrame()

	if diff := cmp.Diff(start.Nodes, end.Nodes); diff != "" {
		t.Fatalf("nodes differ after rollback(0) (-start +end):\n%s", diff)
	}
	if diff := cmp.Diff(start.Facts, end.Facts); diff != "" {
		t.Fatalf("facts differ after rollback(0) (-start +end):\n%s", diff)
	}
}

func TestFreezeFrameDelta(t *testing.T) {
	s := New()
	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	s.AddFact(Fact{a, b, c})
	alpha := s.FreezeFrame()

	d := s.Node("/D")
	e := s.Node("/E")
	s.AddFact(Fact{d, e, b})
	s.RemoveNodeWithFacts(c)
	beta := s.FreezeFrame()

	delta := Diff(alpha, beta)
	if !delta.AddFacts[Fact{d, e, b}] || len(delta.AddFacts) != 1 {
		t.Fatalf("add_facts: got %v, want {(D,E,B)}", delta.AddFacts)
	}
	if !delta.RemoveFacts[Fact{a, b, c}] || len(delta.RemoveFacts) != 1 {
		t.Fatalf("remove_facts: got %v, want {(A,B,C)}", delta.RemoveFacts)
	}
	if !delta.AddNodes[d] || !delta.AddNodes[e] || len(delta.AddNodes) != 2 {
		t.Fatalf("add_nodes: got %v, want {D,E}", delta.AddNodes)
	}
	if len(delta.RemoveNodes) != 1 || !delta.RemoveNodes[c] {
		t.Fatalf("remove_nodes: got %v, want {C}", delta.RemoveNodes)
	}
}

func TestApplyDeltaReproducesFrame(t *testing.T) {
	s := New()
	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	s.AddFact(Fact{a, b, c})
	alpha := s.FreezeFrame()
	s.Commit(false)

	s.Node("/D")
	s.RemoveNodeWithFacts(c)
	beta := s.FreezeFrame()
	s.Commit(false)

	// Rewind to alpha, then apply (beta - alpha): the store must land on
	// exactly beta.
	s.Rollback(1)
	s.ApplyDelta(Diff(alpha, beta))
	end := s.FreezeFrame()
	if diff := cmp.Diff(beta.Nodes, end.Nodes); diff != "" {
		t.Fatalf("nodes differ after ApplyDelta (-beta +end):\n%s", diff)
	}
	if diff := cmp.Diff(beta.Facts, end.Facts); diff != "" {
		t.Fatalf("facts differ after ApplyDelta (-beta +end):\n%s", diff)
	}
}

func TestApplyDeltaOnDirtyBufferPanics(t *testing.T) {
	s := New()
	s.Node("/A")

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic applying a delta on a dirty buffer")
		} else if _, ok := r.(*InvariantError); !ok {
			t.Fatalf("expected *InvariantError, got %T", r)
		}
	}()
	s.ApplyDelta(NewDelta())
}

func TestRecordingReportsAndRewinds(t *testing.T) {
	s := New()
	a, b := s.Node("/A"), s.Node("/B")
	s.Commit(false)
	before := s.FreezeFrame()

	rec := s.StartRecording()
	s.AddFact(Fact{a, a, b})
	first := s.Commit(false)
	s.AddFact(Fact{b, a, a})
	second := s.Commit(false)

	got := rec.Deltas()
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("Deltas() = %v, want [first, second]", got)
	}
	merged := rec.Since()
	if len(merged.AddFacts) != 2 {
		t.Fatalf("Since().AddFacts = %v, want both committed facts", merged.AddFacts)
	}

	rec.Rewind()
	if len(rec.Deltas()) != 0 {
		t.Fatalf("Deltas() after Rewind should be empty")
	}
	end := s.FreezeFrame()
	if diff := cmp.Diff(before.Facts, end.Facts); diff != "" {
		t.Fatalf("facts differ after Rewind (-before +end):\n%s", diff)
	}
}

func TestRemoveNodeWithLiveFactsPanics(t *testing.T) {
	s := New()
	a, b, c := s.Node("/A"), s.Node("/B"), s.Node("/C")
	s.AddFact(Fact{a, b, c})

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic removing a node with live facts")
		} else if _, ok := r.(*InvariantError); !ok {
			t.Fatalf("expected *InvariantError, got %T", r)
		}
	}()
	s.RemoveNode(a)
}

func TestGensymScansDeterministically(t *testing.T) {
	s := New()
	s.Node("/:RuleMap:0")
	n := s.Node("/:RuleMap:??")
	if n != "/:RuleMap:1" {
		t.Fatalf("gensym: got %q, want /:RuleMap:1", n)
	}
}

func TestScopeNesting(t *testing.T) {
	s := New()
	var inner Node
	s.InScope("Outer", func(outer *Scope) {
		s.InScope("Inner", func(in *Scope) {
			inner = s.Node(":Leaf")
			if !in.Contains(inner) {
				t.Fatalf("inner scope does not contain %q", inner)
			}
		})
		if outer.Contains(inner) == false {
			t.Fatalf("outer scope should still contain %q after nested scope released", inner)
		}
	})
	if inner != "/:Outer:Inner:Leaf" {
		t.Fatalf("nested scope name: got %q, want /:Outer:Inner:Leaf", inner)
	}
}

func TestProtectedScopeDoesNotPush(t *testing.T) {
	s := New()
	s.Scope("Protected", true)
	n := s.Node(":X")
	if n != "/:X" {
		t.Fatalf("protected scope leaked into active prefix: got %q", n)
	}
}
