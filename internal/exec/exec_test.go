package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsrule/internal/match"
	"tsrule/internal/rule"
	"tsrule/internal/store"
)

func compileFixture(t *testing.T) (*rule.Rule, store.Node, store.Node, store.Node, store.Node, store.Node) {
	t.Helper()
	scratch := store.New()
	likes := scratch.Node("/:likes")
	knows := scratch.Node("/:knows")
	b := rule.NewBuilder(scratch, ":R")
	a := scratch.Node(":a")
	bn := scratch.Node(":b")
	n := scratch.Node(":n")
	b.Role(rule.RoleMustMap, a, bn)
	b.Role(rule.RoleInsert, n)
	scratch.AddFact(store.Fact{S: a, P: bn, O: likes})
	scratch.AddFact(store.Fact{S: a, P: n, O: knows})
	return rule.Compile(scratch, b.Rule(), nil), a, bn, n, likes, knows
}

func TestApplyInsertsNodeAndAddsFact(t *testing.T) {
	r, a, bn, n, _, knows := compileFixture(t)

	dom := store.New()
	A := dom.Node("/:A")
	B := dom.Node("/:B")
	domLikes := dom.Node("/:likes")
	dom.Node("/:knows")
	dom.AddFact(store.Fact{S: A, P: B, O: domLikes})

	running := New(dom, r, nil).Apply(match.Assignment{a: A, bn: B})

	require.Contains(t, running, n)
	created := running[n]
	assert.True(t, dom.Exists(created))
	assert.True(t, dom.Contains(store.Fact{S: A, P: created, O: knows}))

	// Deterministic: re-applying the same source assignment on a fresh
	// store produces the identical inserted node name.
	dom2 := store.New()
	A2 := dom2.Node("/:A")
	B2 := dom2.Node("/:B")
	dom2.Node("/:likes")
	dom2.Node("/:knows")
	dom2.AddFact(store.Fact{S: A2, P: B2, O: domLikes})
	running2 := New(dom2, r, nil).Apply(match.Assignment{a: A2, bn: B2})
	assert.Equal(t, created, running2[n])
}

func TestApplyRemovesRemoveNodeWithFacts(t *testing.T) {
	scratch := store.New()
	tag := scratch.Node("/:tag")
	b := rule.NewBuilder(scratch, ":R")
	x := scratch.Node(":x")
	y := scratch.Node(":y")
	b.Role(rule.RoleMustMap, x)
	b.Role(rule.RoleRemove, y)
	scratch.AddFact(store.Fact{S: x, P: y, O: tag})
	r := rule.Compile(scratch, b.Rule(), nil)

	dom := store.New()
	X := dom.Node("/:X")
	Y := dom.Node("/:Y")
	domTag := dom.Node("/:tag")
	dom.AddFact(store.Fact{S: X, P: Y, O: domTag})

	New(dom, r, nil).Apply(match.Assignment{x: X, y: Y})

	assert.False(t, dom.Exists(Y))
	assert.False(t, dom.Contains(store.Fact{S: X, P: Y, O: domTag}))
}

func TestApplySubtractYieldsToReinsert(t *testing.T) {
	// The subtracted node keeps the same store position ("remove the
	// current head position then put it back in the same spot"): an
	// INSERT-classified node equal to the SUBTRACT node means add-facts
	// re-adds the fact the subtract pass would otherwise remove, and add
	// wins.
	scratch := store.New()
	at := scratch.Node("/:at")
	b := rule.NewBuilder(scratch, ":R")
	head := scratch.Node(":head")
	oldPos := scratch.Node(":oldpos")
	newPos := scratch.Node(":newpos")
	b.Role(rule.RoleMustMap, head, oldPos)
	b.Role(rule.RoleSubtract, oldPos)
	b.Role(rule.RoleInsert, newPos)
	b.Equal(oldPos, newPos)
	scratch.AddFact(store.Fact{S: head, P: oldPos, O: at})
	// Records "put head back at newPos" as an add-fact: since newPos is
	// Insert-classified this fact is never part of any match pattern, only
	// the compile-time snapshot the Executor's add-facts step consults.
	scratch.AddFact(store.Fact{S: head, P: newPos, O: at})
	r := rule.Compile(scratch, b.Rule(), nil)

	dom := store.New()
	H := dom.Node("/:H")
	P := dom.Node("/:P")
	domAt := dom.Node("/:at")
	dom.AddFact(store.Fact{S: H, P: P, O: domAt})

	// A real match Assignment already binds newPos to the same store node
	// as oldPos (composed from the shared solver variable the Equal
	// declaration produces); addNodes leaves an already-bound Insert node
	// alone rather than minting it a fresh name.
	running := New(dom, r, nil).Apply(match.Assignment{head: H, oldPos: P, newPos: P})

	assert.Equal(t, P, running[newPos])
	assert.True(t, dom.Contains(store.Fact{S: H, P: P, O: domAt}))
	assert.True(t, dom.Exists(P))
}
