package store

// Shadow is an optional observer receiving node/fact add/remove callbacks
// in order, used to keep an accelerated index in lock-step with the
// authoritative store. At most one shadow is installed per store; see
// internal/store/mangleindex for the google/mangle-backed implementation.
type Shadow interface {
	AddNode(n Node)
	RemoveNode(n Node)
	AddFact(f Fact)
	RemoveFact(f Fact)
}

func (s *Store) notifyAddNode(n Node) {
	if s.shadow != nil {
		s.shadow.AddNode(n)
	}
}

func (s *Store) notifyRemoveNode(n Node) {
	if s.shadow != nil {
		s.shadow.RemoveNode(n)
	}
}

func (s *Store) notifyAddFact(f Fact) {
	if s.shadow != nil {
		s.shadow.AddFact(f)
	}
}

func (s *Store) notifyRemoveFact(f Fact) {
	if s.shadow != nil {
		s.shadow.RemoveFact(f)
	}
}

// SetShadow installs (or, with nil, removes) the store's shadow observer.
func (s *Store) SetShadow(sh Shadow) {
	s.shadow = sh
}
