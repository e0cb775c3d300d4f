package store

import (
	"sort"
	"strings"
)

// Scope is a name prefix over the node tree. An active scope installs
// itself as the store's default prefix for the duration of its
// acquisition (nestable, released on all exit paths via Release/InScope);
// a protected scope is a read-only handle used for membership tests,
// iteration, and name-stripping, and never mutates the store's active
// prefix.
type Scope struct {
	store     *Store
	prefix    string // "/" or "/:seg1:seg2..."
	protected bool
	pushed    []string // segments this scope pushed onto store's stack, if active
	released  bool
}

func segmentsOf(name string) []string {
	name = strings.TrimPrefix(name, ":")
	if name == "" {
		return nil
	}
	return strings.Split(name, ":")
}

func (s *Store) currentPrefix() string {
	if len(s.scopeStack) == 0 {
		return "/"
	}
	return "/:" + strings.Join(s.scopeStack, ":")
}

// Scope returns a Scope rooted at name (relative to the store's currently
// active prefix; name may contain multiple ':'-separated segments, e.g.
// "Sub:Deeper"). When protect is false the scope is active: its segments
// are pushed onto the store's prefix stack immediately, and the caller
// must call Release (directly or via InScope) to pop them. When protect
// is true the scope is a read-only handle and the store's active prefix
// is untouched.
func (s *Store) Scope(name string, protect bool) *Scope {
	segs := segmentsOf(name)
	parentPrefix := s.currentPrefix()
	var full string
	if parentPrefix == "/" {
		full = "/:" + strings.Join(segs, ":")
	} else {
		full = parentPrefix
		if len(segs) > 0 {
			full += ":" + strings.Join(segs, ":")
		}
	}
	if len(segs) == 0 {
		full = parentPrefix
	}
	sc := &Scope{store: s, prefix: full, protected: protect}
	if !protect {
		s.scopeStack = append(s.scopeStack, segs...)
		sc.pushed = segs
	}
	return sc
}

// Release pops this scope's segments from the store's active prefix
// stack. A no-op for protected scopes or scopes already released.
func (sc *Scope) Release() {
	if sc.protected || sc.released || len(sc.pushed) == 0 {
		sc.released = true
		return
	}
	n := len(sc.pushed)
	stack := sc.store.scopeStack
	sc.store.scopeStack = stack[:len(stack)-n]
	sc.released = true
}

// InScope pushes an active scope, runs fn, and guarantees release on every
// exit path, including panics.
func (s *Store) InScope(name string, fn func(sc *Scope)) {
	sc := s.Scope(name, false)
	defer sc.Release()
	fn(sc)
}

// Node resolves a name relative to this scope's prefix, independent of
// the store's currently active prefix stack. name must be either absolute
// ("/...") or relative (":..."). An active scope creates the node if
// absent; a protected scope only returns the resolved name and never
// creates a node.
func (sc *Scope) Node(name string) Node {
	if sc.protected {
		switch {
		case strings.HasPrefix(name, "/"):
			return Node(name)
		case strings.HasPrefix(name, ":"):
			return Node(sc.prefix + name)
		}
		invariant("Scope.Node", "node name %q must be absolute (/...) or relative (:...)", name)
	}
	return sc.store.resolveNode(sc.prefix, name)
}

// Contains reports whether n's name lies within this scope's prefix.
func (sc *Scope) Contains(n Node) bool {
	return strings.HasPrefix(string(n), sc.prefix+":") || string(n) == sc.prefix
}

// TrimPrefix strips this scope's prefix from n, returning the bare
// relative suffix.
func (sc *Scope) TrimPrefix(n Node) string {
	return strings.TrimPrefix(strings.TrimPrefix(string(n), sc.prefix), ":")
}

// Iter returns, in sorted order, every known node contained in this scope.
func (sc *Scope) Iter() []Node {
	var out []Node
	for n := range sc.store.nodes {
		if sc.Contains(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
