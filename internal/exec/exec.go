// Package exec implements the assignment executor: it applies one
// matched rule assignment to the store as a deterministic rewrite,
// creating INSERT nodes under reproducible names, adding the facts a
// complete assignment now supports, then removing REMOVE/SUBTRACT nodes
// and facts.
package exec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tsrule/internal/logging"
	"tsrule/internal/match"
	"tsrule/internal/rule"
	"tsrule/internal/store"
)

// Executor applies assignments for a single compiled rule against a
// store.
type Executor struct {
	st   *store.Store
	rule *rule.Rule
	log  *zap.Logger
}

// New returns an Executor for r over st. A nil logger is replaced with a
// no-op logger.
func New(st *store.Store, r *rule.Rule, log *zap.Logger) *Executor {
	return &Executor{st: st, rule: r, log: logging.NopIfNil(log)}
}

// Apply rewrites the store for one satisfying assignment and returns the
// running assignment extended with every node the INSERT step created.
// It does not commit or wrap the resulting buffer delta; the caller owns
// transaction boundaries and decides whether to keep or roll back the
// rewrite.
func (e *Executor) Apply(a match.Assignment) match.Assignment {
	running := make(match.Assignment, len(a))
	for k, v := range a {
		running[k] = v
	}

	baseHash := hashAssignment(running)
	e.addNodes(running, baseHash)
	added := e.addFacts(running)
	e.remove(running, added)

	e.log.Debug("applied rule assignment",
		zap.String("rule", string(e.rule.Name)),
		zap.Int("inserted_nodes", len(running)-len(a)),
		zap.Int("added_facts", len(added)),
	)
	return running
}

// nodeName deterministically names the store node created for rule-node
// node under this application's base hash: sha224-ish digest of
// base+node, so repeated calls against an identical source assignment
// always produce the same inserted node, regardless of when the match
// happened.
func nodeName(baseHash string, node store.Node) store.Node {
	return store.Node("/:" + digest(baseHash+string(node)))
}

func hashAssignment(a match.Assignment) string {
	keys := make([]store.Node, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s;", k, a[k])
	}
	return digest(b.String())
}

func digest(s string) string {
	sum := sha256.Sum224([]byte(s))
	return hex.EncodeToString(sum[:])
}

// addNodes creates a store node for every unassigned INSERT-classified
// rule node, in sorted order, and propagates the new node to every node
// declared equal to it so equality-linked INSERT nodes always collapse
// onto one created node.
func (e *Executor) addNodes(running match.Assignment, baseHash string) {
	for _, node := range sortedSet(e.rule.Insert) {
		if _, ok := running[node]; ok {
			continue
		}
		created := e.st.Node(string(nodeName(baseHash, node)))
		running[node] = created
		for equivalent := range e.rule.Equal[node] {
			running[equivalent] = created
		}
	}
}

// addFacts adds, in sorted-node order, every compile-time rule fact that
// mentions at least one INSERT node and whose rule-node participants are
// all assigned (excluding REMOVE nodes, which never take part in the
// rewritten structure). Returns the set of facts added, in store-node
// space, for the subtract step to consult.
func (e *Executor) addFacts(running match.Assignment) map[store.Fact]bool {
	ignore := e.rule.Remove
	mustInclude := e.rule.Insert

	relevant := make(map[store.Node]bool, len(running))
	for n := range running {
		if !ignore[n] {
			relevant[n] = true
		}
	}

	added := make(map[store.Fact]bool)
	for _, node := range sortedSet(relevant) {
		for _, f := range e.rule.IndexedFacts[node] {
			if !factTouches(f, mustInclude) {
				continue
			}
			if !ruleNodesWithin(f, e.rule.AllNodes, relevant) {
				continue
			}
			translated := translate(f, running)
			if added[translated] {
				continue
			}
			e.st.AddFact(translated)
			added[translated] = true
		}
	}
	return added
}

// remove performs the three-part removal pass: REMOVE nodes (with their
// facts) first, then SUBTRACT facts not also just re-added, then
// SUBTRACT nodes left with no remaining facts.
func (e *Executor) remove(running match.Assignment, added map[store.Fact]bool) {
	for _, node := range sortedSet(e.rule.Remove) {
		value, ok := running[node]
		if !ok {
			continue
		}
		e.st.RemoveNodeWithFacts(value)
	}

	subtract := e.rule.Subtract
	for _, f := range e.rule.Facts {
		if !factTouches(f, subtract) {
			continue
		}
		if !ruleFactFullyAssigned(f, e.rule.AllNodes, running) {
			continue
		}
		translated := translate(f, running)
		if added[translated] {
			continue
		}
		e.st.RemoveFact(translated)
	}

	for _, node := range sortedSet(e.rule.Subtract) {
		value, ok := running[node]
		if !ok {
			continue
		}
		if len(e.st.FactsAboutDirect(value)) == 0 {
			e.st.RemoveNode(value)
		}
	}
}

func translate(f store.Fact, running match.Assignment) store.Fact {
	tr := func(n store.Node) store.Node {
		if v, ok := running[n]; ok {
			return v
		}
		return n
	}
	return store.Fact{S: tr(f.S), P: tr(f.P), O: tr(f.O)}
}

func factTouches(f store.Fact, set map[store.Node]bool) bool {
	return set[f.S] || set[f.P] || set[f.O]
}

// ruleNodesWithin reports whether every element of f that is a rule node
// (a member of allNodes) is also present in relevant.
func ruleNodesWithin(f store.Fact, allNodes, relevant map[store.Node]bool) bool {
	for _, n := range [3]store.Node{f.S, f.P, f.O} {
		if allNodes[n] && !relevant[n] {
			return false
		}
	}
	return true
}

// ruleFactFullyAssigned reports whether every rule-node element of f has
// a binding in running.
func ruleFactFullyAssigned(f store.Fact, allNodes map[store.Node]bool, running match.Assignment) bool {
	for _, n := range [3]store.Node{f.S, f.P, f.O} {
		if allNodes[n] {
			if _, ok := running[n]; !ok {
				return false
			}
		}
	}
	return true
}

func sortedSet(set map[store.Node]bool) []store.Node {
	out := make([]store.Node, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

