package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"tsrule/internal/rule"
	"tsrule/internal/store"
)

// Scene is the devtool's YAML scene-file format: initial facts plus the
// reflected rule definitions that would otherwise take dozens of
// hand-written facts per rule to express.
type Scene struct {
	Facts [][]string `yaml:"facts"`
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec declares one reflected rule: a role-keyed map of node names
// (must_map, try_map, no_map, no_map1..no_map5, remove, subtract, insert)
// plus equality and maybe-equality groupings.
type RuleSpec struct {
	Name       string              `yaml:"name"`
	Roles      map[string][]string `yaml:"roles"`
	Equal      [][]string          `yaml:"equal"`
	MaybeEqual [][]string          `yaml:"maybe_equal"`
}

var roleByKey = map[string]store.Node{
	"must_map": rule.RoleMustMap,
	"try_map":  rule.RoleTryMap,
	"no_map":   rule.RoleNoMap,
	"no_map1":  rule.RoleNoMap1,
	"no_map2":  rule.RoleNoMap2,
	"no_map3":  rule.RoleNoMap3,
	"no_map4":  rule.RoleNoMap4,
	"no_map5":  rule.RoleNoMap5,
	"remove":   rule.RoleRemove,
	"subtract": rule.RoleSubtract,
	"insert":   rule.RoleInsert,
}

// readScene reads and parses path without touching any store.
func readScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	var sc Scene
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scene %s: %w", path, err)
	}
	return &sc, nil
}

// loadScene reads path and installs its facts and rule definitions into st.
func loadScene(path string, st *store.Store) (*Scene, error) {
	sc, err := readScene(path)
	if err != nil {
		return nil, err
	}
	if err := installScene(sc, st); err != nil {
		return nil, err
	}
	return sc, nil
}

func installScene(sc *Scene, st *store.Store) error {
	for i, f := range sc.Facts {
		if len(f) != 3 {
			return fmt.Errorf("fact %d: want [subject, predicate, object], got %d element(s)", i, len(f))
		}
		for _, name := range f {
			if err := validName(name); err != nil {
				return fmt.Errorf("fact %d: %w", i, err)
			}
		}
		s, p, o := st.Node(f[0]), st.Node(f[1]), st.Node(f[2])
		st.AddFact(store.Fact{S: s, P: p, O: o})
	}

	for _, rs := range sc.Rules {
		if rs.Name == "" {
			return fmt.Errorf("rule with empty name")
		}
		if err := validName(rs.Name); err != nil {
			return fmt.Errorf("rule %s: %w", rs.Name, err)
		}
		for key, names := range rs.Roles {
			for _, name := range names {
				if err := validName(name); err != nil {
					return fmt.Errorf("rule %s, role %s: %w", rs.Name, key, err)
				}
			}
		}
		for _, group := range append(append([][]string(nil), rs.Equal...), rs.MaybeEqual...) {
			for _, name := range group {
				if err := validName(name); err != nil {
					return fmt.Errorf("rule %s, equivalence: %w", rs.Name, err)
				}
			}
		}
		b := rule.NewBuilder(st, rs.Name)

		roleKeys := make([]string, 0, len(rs.Roles))
		for k := range rs.Roles {
			roleKeys = append(roleKeys, k)
		}
		sort.Strings(roleKeys)
		for _, key := range roleKeys {
			role, ok := roleByKey[key]
			if !ok {
				return fmt.Errorf("rule %s: unknown role %q", rs.Name, key)
			}
			b.Role(role, nodesOf(st, rs.Roles[key])...)
		}

		for _, group := range rs.Equal {
			b.Equal(nodesOf(st, group)...)
		}
		for _, group := range rs.MaybeEqual {
			b.MaybeEqual(nodesOf(st, group)...)
		}
	}
	return nil
}

func nodesOf(st *store.Store, names []string) []store.Node {
	out := make([]store.Node, len(names))
	for i, n := range names {
		out[i] = st.Node(n)
	}
	return out
}

// validName screens a scene-provided node name before it reaches
// Store.Node, whose malformed-name precondition is a panic rather than
// an error; scene files are user input, so we fail softly here.
func validName(name string) error {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, ":") {
		return nil
	}
	return fmt.Errorf("node name %q must be absolute (/...) or relative (:...)", name)
}

// ruleNodeName resolves a scene rule name the way installScene's Builder
// resolved it, at the store's root scope: absolute names pass through,
// relative names gain the root prefix.
func ruleNodeName(name string) store.Node {
	if strings.HasPrefix(name, "/") {
		return store.Node(name)
	}
	return store.Node("/" + name)
}
