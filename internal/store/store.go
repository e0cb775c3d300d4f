package store

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tsrule/internal/logging"
)

type nodeInfo struct {
	DisplayName string
}

// Store is the fact store: the only mutable state in the engine. It owns
// the node/fact sets, the multi-key index, the active-scope prefix stack,
// the uncommitted buffer delta, the path of committed deltas, and at most
// one shadow observer.
//
// Path indexing. Conceptually the path carries a null sentinel at index
// 0: "time 0" is the state before any delta was committed. We represent
// that implicitly. Store.path holds only the real committed deltas, so
// len(path) == 0 already means "at time 0", and Rollback(0) rewinds
// every committed delta.
type Store struct {
	nodes      map[Node]*nodeInfo
	facts      map[Fact]bool
	idx        *index
	scopeStack []string
	buffer     *Delta
	path       []*Delta
	shadow     Shadow
	log        *zap.Logger
}

// Option configures a new Store.
type Option func(*Store)

// WithLogger injects a diagnostic logger; defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns an empty Store with a clean buffer and no committed history.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:  make(map[Node]*nodeInfo),
		facts:  make(map[Fact]bool),
		idx:    newIndex(),
		buffer: NewDelta(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.NopIfNil(s.log)
	return s
}

// --- node resolution -------------------------------------------------------

func (s *Store) resolveNode(prefix, name string) Node {
	var full string
	switch {
	case strings.HasPrefix(name, "/"):
		full = name
	case strings.HasPrefix(name, ":"):
		full = prefix + name
	default:
		invariant("resolveNode", "node name %q must be absolute (/...) or relative (:...)", name)
	}
	if strings.HasSuffix(full, "??") {
		full = s.gensym(full[:len(full)-2])
	}
	n := Node(full)
	s.ensureNode(n)
	return n
}

// gensym appends the smallest non-negative integer to base producing a
// name not already present in the store, scanned deterministically from
// zero.
func (s *Store) gensym(base string) string {
	for i := 0; ; i++ {
		candidate := base + strconv.Itoa(i)
		if _, exists := s.nodes[Node(candidate)]; !exists {
			return candidate
		}
	}
}

func (s *Store) ensureNode(n Node) {
	if _, exists := s.nodes[n]; exists {
		return
	}
	s.nodes[n] = &nodeInfo{DisplayName: string(n)}
	s.buffer.recordAddNode(n)
	s.notifyAddNode(n)
}

// Node creates (if absent) and returns the node named relative to the
// store's currently active scope prefix, or absolute if name starts with
// '/'. A trailing "??" segment is gensym'd to the smallest fresh integer.
func (s *Store) Node(name string) Node {
	return s.resolveNode(s.currentPrefix(), name)
}

// AddNodes creates each name (in the given order) under the current
// scope and returns the resulting nodes. Display names default to the
// canonical name; use SetDisplayName to customize per node.
func (s *Store) AddNodes(names ...string) []Node {
	out := make([]Node, len(names))
	for i, name := range names {
		out[i] = s.Node(name)
	}
	return out
}

// RemoveNodes removes each node in the given order. Every node must
// already participate in zero facts.
func (s *Store) RemoveNodes(nodes ...Node) {
	for _, n := range nodes {
		s.RemoveNode(n)
	}
}

// SetDisplayName sets n's mutable display name, used only for printing.
func (s *Store) SetDisplayName(n Node, display string) {
	if info, ok := s.nodes[n]; ok {
		info.DisplayName = display
	}
}

// DisplayName returns n's display name, defaulting to its canonical name.
func (s *Store) DisplayName(n Node) string {
	if info, ok := s.nodes[n]; ok {
		return info.DisplayName
	}
	return string(n)
}

// Exists reports whether n is a live node in the store.
func (s *Store) Exists(n Node) bool {
	_, ok := s.nodes[n]
	return ok
}

// AllNodeNames returns every live node, in no particular order; callers
// needing determinism should sort the result.
func (s *Store) AllNodeNames() []Node {
	out := make([]Node, 0, len(s.nodes))
	for n := range s.nodes {
		out = append(out, n)
	}
	return out
}

// RemoveNode removes a node that participates in zero facts. Violates an
// invariant (panics) if the node still has facts.
func (s *Store) RemoveNode(n Node) {
	if !s.Exists(n) {
		return
	}
	if len(s.idx.factsAbout(n)) != 0 {
		invariant("RemoveNode", "node %q still participates in facts", n)
	}
	delete(s.nodes, n)
	s.buffer.recordRemoveNode(n)
	s.notifyRemoveNode(n)
}

// RemoveNodeWithFacts removes n along with every fact that mentions it.
func (s *Store) RemoveNodeWithFacts(n Node) {
	if !s.Exists(n) {
		return
	}
	for _, f := range append([]Fact(nil), s.idx.factsAbout(n)...) {
		s.RemoveFact(f)
	}
	s.RemoveNode(n)
}

// --- facts -------------------------------------------------------------

// AddFact adds (s,p,o). All three nodes must exist; otherwise it
// violates an invariant (panics). Idempotent: adding an existing fact is
// a silent no-op.
func (s *Store) AddFact(f Fact) {
	if !s.Exists(f.S) || !s.Exists(f.P) || !s.Exists(f.O) {
		invariant("AddFact", "fact %v references a nonexistent node", f)
	}
	if s.facts[f] {
		return
	}
	s.facts[f] = true
	s.idx.add(f)
	s.buffer.recordAddFact(f)
	s.notifyAddFact(f)
}

// RemoveFact removes (s,p,o). Idempotent: removing an absent fact is a
// silent no-op.
func (s *Store) RemoveFact(f Fact) {
	if !s.facts[f] {
		return
	}
	delete(s.facts, f)
	s.idx.remove(f)
	s.buffer.recordRemoveFact(f)
	s.notifyRemoveFact(f)
}

// AddFacts adds each fact in the given order.
func (s *Store) AddFacts(facts ...Fact) {
	for _, f := range facts {
		s.AddFact(f)
	}
}

// RemoveFacts removes each fact in the given order.
func (s *Store) RemoveFacts(facts ...Fact) {
	for _, f := range facts {
		s.RemoveFact(f)
	}
}

// Contains reports whether f currently holds in the store.
func (s *Store) Contains(f Fact) bool {
	return s.facts[f]
}

// Lookup returns facts matching the (s?, p?, o?) template, in insertion
// order. A nil argument is a wildcard for that position. The returned
// slice is the caller's to keep.
func (s *Store) Lookup(subj, pred, obj *Node) []Fact {
	return append([]Fact(nil), s.idx.lookup(subj, pred, obj)...)
}

// LookupDirect is Lookup's read-direct mode: it returns the internal
// index list without copying. The caller must not mutate it, and the
// slice is invalidated by the next store mutation.
func (s *Store) LookupDirect(subj, pred, obj *Node) []Fact {
	return s.idx.lookup(subj, pred, obj)
}

// FactsAbout returns, in insertion order, every fact mentioning n. The
// returned slice is the caller's to keep.
func (s *Store) FactsAbout(n Node) []Fact {
	return append([]Fact(nil), s.idx.factsAbout(n)...)
}

// FactsAboutDirect is FactsAbout's read-direct mode; same caveats as
// LookupDirect.
func (s *Store) FactsAboutDirect(n Node) []Fact {
	return s.idx.factsAbout(n)
}

// --- node handle / map-style fact addition ------------------------------

// NodeHandle is a node bound to its store, supporting the map-style fact
// addition rule-building macros lean on: Map({value: role}) adds, for
// each pair sorted by value, the fact (handle, value, role).
type NodeHandle struct {
	store *Store
	Name  Node
}

// Handle wraps n for map-style fact addition.
func (s *Store) Handle(n Node) NodeHandle {
	return NodeHandle{store: s, Name: n}
}

// Map adds, for each (value, role) pair sorted by value, the fact
// (h.Name, value, role).
func (h NodeHandle) Map(pairs map[Node]Node) {
	values := make([]Node, 0, len(pairs))
	for v := range pairs {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for _, v := range values {
		h.store.AddFact(Fact{S: h.Name, P: v, O: pairs[v]})
	}
}

// --- transactions --------------------------------------------------------

// IsClean reports whether the uncommitted buffer is empty.
func (s *Store) IsClean() bool {
	return s.buffer.IsEmpty()
}

// Commit appends the buffer to the path and starts a fresh buffer,
// returning the delta just committed. Skipped (returning nil) when the
// buffer is empty unless commitIfClean is true.
func (s *Store) Commit(commitIfClean bool) *Delta {
	if s.buffer.IsEmpty() && !commitIfClean {
		return nil
	}
	committed := s.buffer
	s.path = append(s.path, committed)
	s.buffer = NewDelta()
	s.log.Debug("commit",
		zap.Int("add_nodes", len(committed.AddNodes)),
		zap.Int("add_facts", len(committed.AddFacts)),
		zap.Int("remove_nodes", len(committed.RemoveNodes)),
		zap.Int("remove_facts", len(committed.RemoveFacts)),
		zap.Int("path_len", len(s.path)),
	)
	return committed
}

// PathLen returns the number of committed deltas (time 0 is before any of
// them).
func (s *Store) PathLen() int {
	return len(s.path)
}

// LastCommitted returns the most recently committed delta, or nil if
// nothing has been committed yet.
func (s *Store) LastCommitted() *Delta {
	if len(s.path) == 0 {
		return nil
	}
	return s.path[len(s.path)-1]
}

func (s *Store) applyDeltaForward(d *Delta) {
	nodes := make([]Node, 0, len(d.AddNodes))
	for n := range d.AddNodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for _, n := range nodes {
		if _, exists := s.nodes[n]; exists {
			continue
		}
		s.nodes[n] = &nodeInfo{DisplayName: string(n)}
		s.notifyAddNode(n)
	}

	facts := make([]Fact, 0, len(d.AddFacts))
	for f := range d.AddFacts {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Less(facts[j]) })
	for _, f := range facts {
		if s.facts[f] {
			continue
		}
		s.facts[f] = true
		s.idx.add(f)
		s.notifyAddFact(f)
	}

	rmFacts := make([]Fact, 0, len(d.RemoveFacts))
	for f := range d.RemoveFacts {
		rmFacts = append(rmFacts, f)
	}
	sort.Slice(rmFacts, func(i, j int) bool { return rmFacts[i].Less(rmFacts[j]) })
	for _, f := range rmFacts {
		if s.facts[f] {
			delete(s.facts, f)
			s.idx.remove(f)
			s.notifyRemoveFact(f)
		}
	}

	rmNodes := make([]Node, 0, len(d.RemoveNodes))
	for n := range d.RemoveNodes {
		rmNodes = append(rmNodes, n)
	}
	sort.Slice(rmNodes, func(i, j int) bool { return rmNodes[i] < rmNodes[j] })
	for _, n := range rmNodes {
		delete(s.nodes, n)
		s.notifyRemoveNode(n)
	}
}

func (s *Store) applyDeltaInverse(d *Delta) {
	s.applyDeltaForward(d.Inverse())
}

// ApplyDelta applies d forward against the store and appends it to the
// committed path. Precondition (fatal): the buffer must be clean, since
// applying a delta on top of uncommitted mutations would make the path
// no longer invertible.
func (s *Store) ApplyDelta(d *Delta) {
	if !s.buffer.IsEmpty() {
		invariant("ApplyDelta", "buffer is dirty; commit or rollback first")
	}
	s.applyDeltaForward(d)
	s.path = append(s.path, d)
}

// Rollback rewinds the uncommitted buffer, then pops committed deltas
// until the path length equals to (or len(path)+to if to is negative),
// applying each popped delta's inverse in reverse order.
func (s *Store) Rollback(to int) {
	if !s.buffer.IsEmpty() {
		s.applyDeltaInverse(s.buffer)
		s.buffer = NewDelta()
	}
	target := to
	if target < 0 {
		target = len(s.path) + target
	}
	for len(s.path) > target {
		last := s.path[len(s.path)-1]
		s.path = s.path[:len(s.path)-1]
		s.applyDeltaInverse(last)
	}
	s.log.Debug("rollback", zap.Int("to", to), zap.Int("path_len", len(s.path)))
}

// FreezeFrame takes an immutable snapshot of the current node and fact
// sets.
func (s *Store) FreezeFrame() *FreezeFrame {
	nodes := make(map[Node]bool, len(s.nodes))
	for n := range s.nodes {
		nodes[n] = true
	}
	facts := make(map[Fact]bool, len(s.facts))
	for f := range s.facts {
		facts[f] = true
	}
	return &FreezeFrame{Nodes: nodes, Facts: facts}
}

// Recording captures the path length at creation time and later reports
// the deltas committed since, or rewinds to its checkpoint.
type Recording struct {
	store      *Store
	checkpoint int
}

// StartRecording begins a new recording at the current path length.
func (s *Store) StartRecording() *Recording {
	return &Recording{store: s, checkpoint: len(s.path)}
}

// Deltas returns the deltas committed since the recording's checkpoint,
// oldest first. The slice is freshly allocated; the deltas themselves
// are still owned by the store's path.
func (r *Recording) Deltas() []*Delta {
	return append([]*Delta(nil), r.store.path[r.checkpoint:]...)
}

// Since merges every committed delta since the recording's checkpoint
// into one Delta.
func (r *Recording) Since() *Delta {
	d := NewDelta()
	for _, committed := range r.store.path[r.checkpoint:] {
		d = d.Merge(committed)
	}
	return d
}

// Rewind rolls the store back to the recording's checkpoint.
func (r *Recording) Rewind() {
	r.store.Rollback(r.checkpoint)
}
