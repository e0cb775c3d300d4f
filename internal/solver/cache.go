package solver

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Pattern preprocessing (variable normalization, constant resolution,
// maybe-equal translation) is deterministic and is memoized per
// (raw-constraints, maybe-equal) pair. singleflight collapses concurrent
// compiles of the same canonical form into one, since the cache is
// process-lifetime and shared across runtimes in the same binary.
var (
	patternCache sync.Map // canonical key -> *Pattern
	compileGroup singleflight.Group
)

func canonicalKey(constraints []Constraint, maybeEqual map[Var]map[Var]bool) string {
	var b strings.Builder
	for _, c := range constraints {
		b.WriteString(c.String())
		b.WriteByte(';')
	}
	b.WriteByte('|')
	keys := make([]Var, 0, len(maybeEqual))
	for v := range maybeEqual {
		keys = append(keys, v)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, v := range keys {
		cls := maybeEqual[v]
		members := make([]Var, 0, len(cls))
		for u := range cls {
			members = append(members, u)
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		b.WriteString(strconv.Itoa(int(v)))
		b.WriteByte(':')
		for _, u := range members {
			b.WriteString(strconv.Itoa(int(u)))
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Compile returns the Pattern for (constraints, maybeEqual), building and
// caching it at most once across the process lifetime.
func Compile(constraints []Constraint, maybeEqual map[Var]map[Var]bool) *Pattern {
	key := canonicalKey(constraints, maybeEqual)
	if cached, ok := patternCache.Load(key); ok {
		return cached.(*Pattern)
	}
	v, _, _ := compileGroup.Do(key, func() (any, error) {
		p := NewPattern(constraints, maybeEqual)
		patternCache.Store(key, p)
		return p, nil
	})
	return v.(*Pattern)
}
