// Package mangleindex implements an accelerated-index Shadow backed by
// github.com/google/mangle's in-memory Datalog fact store. It is an
// accelerant, never a replacement for internal/store's authoritative
// multi-key index: the Store remains the source of truth, and this shadow
// exists to let an alternate query backend (here, Mangle's own fact
// matching) observe the same mutation stream in lock-step, keeping the
// interface symmetric so alternate solvers can be swapped in.
package mangleindex

import (
	"fmt"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/factstore"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tsrule/internal/logging"
	"tsrule/internal/store"
)

// tripletPredicate is the single fixed 3-ary predicate every store fact is
// represented under: triplet(S, P, O).
const tripletPredicate = "triplet"

// Shadow adapts a Mangle factstore.FactStoreWithRemove to store.Shadow.
// Every node name becomes a Mangle ast.Name constant ('/'-prefixed
// strings map directly to ast.Name), and every triplet becomes a
// triplet/3 atom.
type Shadow struct {
	base   factstore.FactStoreWithRemove
	log    *zap.Logger
	handle string // uuid bookkeeping handle, distinct from node-name synthesis
}

// Option configures a new Shadow.
type Option func(*Shadow)

// WithLogger injects a diagnostic logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(sh *Shadow) { sh.log = l }
}

// New returns a Shadow backed by a fresh Mangle in-memory store.
func New(opts ...Option) *Shadow {
	sh := &Shadow{
		base:   factstore.NewSimpleInMemoryStore(),
		handle: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(sh)
	}
	sh.log = logging.NopIfNil(sh.log)
	return sh
}

// Handle returns this shadow instance's bookkeeping identifier, useful when
// a runtime juggles more than one accelerated index across test cases.
func (sh *Shadow) Handle() string {
	return sh.handle
}

func nameTerm(n store.Node) (ast.Constant, error) {
	c, err := ast.Name(string(n))
	if err != nil {
		return ast.Constant{}, fmt.Errorf("mangleindex: node %q is not a valid Mangle name: %w", n, err)
	}
	return c, nil
}

func factAtom(f store.Fact) (ast.Atom, error) {
	s, err := nameTerm(f.S)
	if err != nil {
		return ast.Atom{}, err
	}
	p, err := nameTerm(f.P)
	if err != nil {
		return ast.Atom{}, err
	}
	o, err := nameTerm(f.O)
	if err != nil {
		return ast.Atom{}, err
	}
	return ast.NewAtom(tripletPredicate, s, p, o), nil
}

func atomToFact(atom ast.Atom) (store.Fact, error) {
	if len(atom.Args) != 3 {
		return store.Fact{}, fmt.Errorf("mangleindex: triplet atom with %d args, want 3", len(atom.Args))
	}
	nodes := make([]store.Node, 3)
	for i, arg := range atom.Args {
		c, ok := arg.(ast.Constant)
		if !ok {
			return store.Fact{}, fmt.Errorf("mangleindex: triplet atom arg %d is not bound", i)
		}
		nodes[i] = store.Node(c.Symbol)
	}
	return store.Fact{S: nodes[0], P: nodes[1], O: nodes[2]}, nil
}

// --- store.Shadow implementation ----------------------------------------

// AddNode is a no-op: nodes have no independent representation in the
// triplet/3 predicate, which carries only facts.
func (sh *Shadow) AddNode(store.Node) {}

// RemoveNode is a no-op for the same reason; a removed node's facts are
// independently retracted via RemoveFact.
func (sh *Shadow) RemoveNode(store.Node) {}

// AddFact asserts f into the Mangle store.
func (sh *Shadow) AddFact(f store.Fact) {
	atom, err := factAtom(f)
	if err != nil {
		sh.log.Warn("mangleindex: dropping fact the shadow cannot represent", zap.Error(err))
		return
	}
	sh.base.Add(atom)
}

// RemoveFact retracts f from the Mangle store via its native Remove
// primitive.
func (sh *Shadow) RemoveFact(f store.Fact) {
	atom, err := factAtom(f)
	if err != nil {
		sh.log.Warn("mangleindex: dropping fact the shadow cannot represent", zap.Error(err))
		return
	}
	sh.base.Remove(atom)
}

// Contains reports whether f currently holds in the shadow index.
func (sh *Shadow) Contains(f store.Fact) (bool, error) {
	atom, err := factAtom(f)
	if err != nil {
		return false, err
	}
	return sh.base.Contains(atom), nil
}

// Lookup mirrors store.Store.Lookup's (s?, p?, o?) template contract
// against the Mangle-backed index: a nil argument becomes a fresh Mangle
// query variable, letting Mangle's own unification stand in for the
// authoritative index's hole-pattern lookup.
func (sh *Shadow) Lookup(subj, pred, obj *store.Node) ([]store.Fact, error) {
	sTerm, err := wildcardOrConst(subj, "S")
	if err != nil {
		return nil, err
	}
	pTerm, err := wildcardOrConst(pred, "P")
	if err != nil {
		return nil, err
	}
	oTerm, err := wildcardOrConst(obj, "O")
	if err != nil {
		return nil, err
	}
	query := ast.NewAtom(tripletPredicate, sTerm, pTerm, oTerm)

	var out []store.Fact
	err = sh.base.GetFacts(query, func(atom ast.Atom) error {
		f, ferr := atomToFact(atom)
		if ferr != nil {
			return ferr
		}
		out = append(out, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mangleindex: lookup query failed: %w", err)
	}
	return out, nil
}

func wildcardOrConst(n *store.Node, varName string) (ast.BaseTerm, error) {
	if n == nil {
		return ast.Variable{Symbol: varName}, nil
	}
	return nameTerm(*n)
}

// EstimateFactCount reports the shadow's own fact count, for diagnostics
// only; it is never consulted for correctness.
func (sh *Shadow) EstimateFactCount() int {
	return sh.base.EstimateFactCount()
}
