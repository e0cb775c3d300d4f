package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tsrule/internal/rule"
	"tsrule/internal/runtime"
	"tsrule/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check <scene.yaml>",
	Short: "compile a scene's rules and report, without applying anything",
	Long: `check loads the given scene file, compiles every reflected rule it
declares, and reports each rule's layer sizes (must/try/never pattern
constraint counts and action-role node counts). It never applies a
rewrite.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	st := store.New(store.WithLogger(logger))
	sc, err := loadScene(args[0], st)
	if err != nil {
		return err
	}
	rt := runtime.New(st, logger)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d rule(s) declared\n", len(sc.Rules))
	for _, rs := range sc.Rules {
		r := rt.GetRule(ruleNodeName(rs.Name))
		if r == nil {
			fmt.Fprintf(out, "  %s: NOT COMPILED (no anchor fact reached the runtime)\n", rs.Name)
			continue
		}
		printRuleSummary(out, r)
	}
	return nil
}

func printRuleSummary(out io.Writer, r *rule.Rule) {
	neverCount := 0
	neverConstraints := 0
	for _, p := range r.NeverPatterns {
		if p == nil {
			continue
		}
		neverCount++
		neverConstraints += len(p.Constraints)
	}
	fmt.Fprintf(out, "  %s:\n", r.Name)
	fmt.Fprintf(out, "    must=%d constraints, try=%d constraints, never=%d pattern(s)/%d constraints\n",
		len(r.MustPattern.Constraints), len(r.TryPattern.Constraints), neverCount, neverConstraints)
	fmt.Fprintf(out, "    roles: must_map=%d try_map=%d remove=%d subtract=%d insert=%d\n",
		len(r.MustMap), len(r.TryMap), len(r.Remove), len(r.Subtract), len(r.Insert))
}
