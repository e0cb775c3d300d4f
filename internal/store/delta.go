package store

// Delta is a coalesced, invertible record of node/fact additions and
// removals over a single store. Adding a previously-removed element
// cancels the removal rather than layering on top of it, and
// symmetrically for removing a previously-added element.
type Delta struct {
	AddNodes    map[Node]bool
	AddFacts    map[Fact]bool
	RemoveNodes map[Node]bool
	RemoveFacts map[Fact]bool
}

// NewDelta returns an empty Delta.
func NewDelta() *Delta {
	return &Delta{
		AddNodes:    make(map[Node]bool),
		AddFacts:    make(map[Fact]bool),
		RemoveNodes: make(map[Node]bool),
		RemoveFacts: make(map[Fact]bool),
	}
}

// IsEmpty reports whether the delta carries no net change.
func (d *Delta) IsEmpty() bool {
	return len(d.AddNodes) == 0 && len(d.AddFacts) == 0 &&
		len(d.RemoveNodes) == 0 && len(d.RemoveFacts) == 0
}

func (d *Delta) recordAddNode(n Node) {
	if d.RemoveNodes[n] {
		delete(d.RemoveNodes, n)
		return
	}
	d.AddNodes[n] = true
}

func (d *Delta) recordRemoveNode(n Node) {
	if d.AddNodes[n] {
		delete(d.AddNodes, n)
		return
	}
	d.RemoveNodes[n] = true
}

func (d *Delta) recordAddFact(f Fact) {
	if d.RemoveFacts[f] {
		delete(d.RemoveFacts, f)
		return
	}
	d.AddFacts[f] = true
}

func (d *Delta) recordRemoveFact(f Fact) {
	if d.AddFacts[f] {
		delete(d.AddFacts, f)
		return
	}
	d.RemoveFacts[f] = true
}

// Inverse returns the delta that undoes this one.
func (d *Delta) Inverse() *Delta {
	return &Delta{
		AddNodes:    copyNodeSet(d.RemoveNodes),
		AddFacts:    copyFactSet(d.RemoveFacts),
		RemoveNodes: copyNodeSet(d.AddNodes),
		RemoveFacts: copyFactSet(d.AddFacts),
	}
}

// Merge folds other on top of d as if other's mutations happened after
// d's, applying the same coalescing rules as the recording methods. Used
// to build the path delta spanning several committed deltas.
func (d *Delta) Merge(other *Delta) *Delta {
	out := &Delta{
		AddNodes:    copyNodeSet(d.AddNodes),
		AddFacts:    copyFactSet(d.AddFacts),
		RemoveNodes: copyNodeSet(d.RemoveNodes),
		RemoveFacts: copyFactSet(d.RemoveFacts),
	}
	for n := range other.AddNodes {
		out.recordAddNode(n)
	}
	for n := range other.RemoveNodes {
		out.recordRemoveNode(n)
	}
	for f := range other.AddFacts {
		out.recordAddFact(f)
	}
	for f := range other.RemoveFacts {
		out.recordRemoveFact(f)
	}
	return out
}

func copyNodeSet(s map[Node]bool) map[Node]bool {
	out := make(map[Node]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func copyFactSet(s map[Fact]bool) map[Fact]bool {
	out := make(map[Fact]bool, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
