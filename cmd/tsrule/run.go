package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"tsrule/internal/match"
	"tsrule/internal/runtime"
	"tsrule/internal/store"
)

var maxSteps int

var runCmd = &cobra.Command{
	Use:   "run <scene.yaml>",
	Short: "load a scene and apply proposals to a fixed point",
	Long: `run loads the given scene file, extracts its reflected rules, then
repeatedly takes the first available proposal across all extracted rules
(propose_all) and applies it, committing the resulting delta. It stops
when no rule yields a proposal that changes the store (a fixed point) or after
--max-steps applied rewrites, whichever comes first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "stop after this many applied rewrites (0 = run to a fixed point)")
}

func runRun(cmd *cobra.Command, args []string) error {
	st := store.New(store.WithLogger(logger))
	if _, err := loadScene(args[0], st); err != nil {
		return err
	}
	rt := runtime.New(st, logger)

	out := cmd.OutOrStdout()
	steps := 0
	for {
		applied := false
		for a, d := range rt.ProposeAll() {
			printStep(out, steps+1, a, d)
			applied = true
			break
		}
		if !applied {
			break
		}
		steps++
		if maxSteps > 0 && steps >= maxSteps {
			break
		}
	}

	state := "clean"
	if !st.IsClean() {
		state = "dirty"
	}
	fmt.Fprintf(out, "applied %d rewrite(s); store is %s\n", steps, state)
	return nil
}

func printStep(out io.Writer, step int, a match.Assignment, d *store.Delta) {
	fmt.Fprintf(out, "--- step %d ---\n", step)
	fmt.Fprintf(out, "assignment:\n")
	for _, n := range sortedAssignmentKeys(a) {
		fmt.Fprintf(out, "  %s -> %s\n", n, a[n])
	}
	printDelta(out, d)
}

func sortedAssignmentKeys(a match.Assignment) []store.Node {
	keys := make([]store.Node, 0, len(a))
	for n := range a {
		keys = append(keys, n)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func printDelta(out io.Writer, d *store.Delta) {
	printNodeSet(out, "+nodes", d.AddNodes)
	printNodeSet(out, "-nodes", d.RemoveNodes)
	printFactSet(out, "+facts", d.AddFacts)
	printFactSet(out, "-facts", d.RemoveFacts)
}

func printNodeSet(out io.Writer, label string, set map[store.Node]bool) {
	if len(set) == 0 {
		return
	}
	nodes := make([]store.Node, 0, len(set))
	for n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for _, n := range nodes {
		fmt.Fprintf(out, "  %s %s\n", label, n)
	}
}

func printFactSet(out io.Writer, label string, set map[store.Fact]bool) {
	if len(set) == 0 {
		return
	}
	facts := make([]store.Fact, 0, len(set))
	for f := range set {
		facts = append(facts, f)
	}
	sort.Slice(facts, func(i, j int) bool { return facts[i].Less(facts[j]) })
	for _, f := range facts {
		fmt.Fprintf(out, "  %s (%s, %s, %s)\n", label, f.S, f.P, f.O)
	}
}
