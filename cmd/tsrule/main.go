// Command tsrule is a small devtool for the triplet-structure production-
// rule engine: it loads a YAML scene (initial facts plus reflected rule
// definitions) into a fact store and drives the runtime's propose/apply
// loop against it, or just compiles and reports on the scene's rules.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tsrule/internal/logging"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tsrule",
	Short: "tsrule - triplet-structure production-rule engine devtool",
	Long: `tsrule is a devtool around the triplet fact-store-and-rule-engine
core: "run" loads a scene and applies proposals to a fixed point; "check"
compiles a scene's rules and reports without applying anything.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.AddCommand(runCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
