package store

// FreezeFrame is an immutable snapshot of a store's node and fact sets.
type FreezeFrame struct {
	Nodes map[Node]bool
	Facts map[Fact]bool
}

// Diff returns the Delta that transforms a's state into b's state:
// additions are what b has that a lacks, removals are what a has that b
// lacks.
func Diff(a, b *FreezeFrame) *Delta {
	d := NewDelta()
	for n := range b.Nodes {
		if !a.Nodes[n] {
			d.AddNodes[n] = true
		}
	}
	for n := range a.Nodes {
		if !b.Nodes[n] {
			d.RemoveNodes[n] = true
		}
	}
	for f := range b.Facts {
		if !a.Facts[f] {
			d.AddFacts[f] = true
		}
	}
	for f := range a.Facts {
		if !b.Facts[f] {
			d.RemoveFacts[f] = true
		}
	}
	return d
}

// DeltaTo is sugar for Diff(a, b) called on the earlier frame a.
func (a *FreezeFrame) DeltaTo(b *FreezeFrame) *Delta {
	return Diff(a, b)
}
