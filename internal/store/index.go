package store

// indexKey identifies one of the eight hole-patterns over a triplet: each
// position is either bound (hasX true, X holds the node) or a wildcard.
type indexKey struct {
	s, p, o          Node
	hasS, hasP, hasO bool
}

// index gives constant-time lookup for any template lookup(s?, p?, o?)
// and for "all facts mentioning node n": every stored fact appears under
// exactly the eight hole-pattern keys plus one key per distinct
// participating node.
type index struct {
	byPattern map[indexKey][]Fact
	byNode    map[Node][]Fact
}

func newIndex() *index {
	return &index{
		byPattern: make(map[indexKey][]Fact),
		byNode:    make(map[Node][]Fact),
	}
}

func (ix *index) holeKeys(f Fact) []indexKey {
	keys := make([]indexKey, 0, 8)
	for _, hasS := range [2]bool{false, true} {
		for _, hasP := range [2]bool{false, true} {
			for _, hasO := range [2]bool{false, true} {
				k := indexKey{hasS: hasS, hasP: hasP, hasO: hasO}
				if hasS {
					k.s = f.S
				}
				if hasP {
					k.p = f.P
				}
				if hasO {
					k.o = f.O
				}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

func (ix *index) distinctNodes(f Fact) []Node {
	nodes := make([]Node, 0, 3)
	seen := make(map[Node]bool, 3)
	for _, n := range [3]Node{f.S, f.P, f.O} {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// contains reports whether the fact is already indexed (the fully-bound
// key is sufficient since it is present iff the fact was added).
func (ix *index) contains(f Fact) bool {
	key := indexKey{s: f.S, p: f.P, o: f.O, hasS: true, hasP: true, hasO: true}
	facts, ok := ix.byPattern[key]
	if !ok {
		return false
	}
	for _, g := range facts {
		if g == f {
			return true
		}
	}
	return false
}

// add indexes a fact under its eight hole-pattern keys plus one key per
// distinct participating node (eleven keys when all three nodes differ,
// fewer when a node repeats). The caller must ensure the
// fact is not already present (add is not itself idempotent; the Store
// layer enforces the idempotent no-op semantics).
func (ix *index) add(f Fact) {
	for _, k := range ix.holeKeys(f) {
		ix.byPattern[k] = append(ix.byPattern[k], f)
	}
	for _, n := range ix.distinctNodes(f) {
		ix.byNode[n] = append(ix.byNode[n], f)
	}
}

// remove deindexes a fact under every key add used, preserving the relative
// order of the remaining facts. Reports whether the fact was present.
func (ix *index) remove(f Fact) bool {
	if !ix.contains(f) {
		return false
	}
	for _, k := range ix.holeKeys(f) {
		ix.byPattern[k] = removeOne(ix.byPattern[k], f)
		if len(ix.byPattern[k]) == 0 {
			delete(ix.byPattern, k)
		}
	}
	for _, n := range ix.distinctNodes(f) {
		ix.byNode[n] = removeOne(ix.byNode[n], f)
		if len(ix.byNode[n]) == 0 {
			delete(ix.byNode, n)
		}
	}
	return true
}

func removeOne(facts []Fact, f Fact) []Fact {
	out := facts[:0]
	removed := false
	for _, g := range facts {
		if !removed && g == f {
			removed = true
			continue
		}
		out = append(out, g)
	}
	return out
}

// lookup returns facts matching the template in insertion order. A nil
// argument is a wildcard for that position.
func (ix *index) lookup(s, p, o *Node) []Fact {
	key := indexKey{}
	if s != nil {
		key.s, key.hasS = *s, true
	}
	if p != nil {
		key.p, key.hasP = *p, true
	}
	if o != nil {
		key.o, key.hasO = *o, true
	}
	return ix.byPattern[key]
}

// factsAbout returns, in insertion order, every fact mentioning n in any
// position.
func (ix *index) factsAbout(n Node) []Fact {
	return ix.byNode[n]
}
