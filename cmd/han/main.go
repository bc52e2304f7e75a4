// ============================================================================
// METADATA
// ============================================================================
// han - hook orchestrator CLI entry point
//
// Purpose: thin cobra wiring around internal/orchestrator. main() builds
// the root command and hands off; no orchestration logic lives here,
// matching the teacher's named-entry-point pattern of main() calling a
// single orchestration function (hooks/tool/cmd-pre-use/pre-use.go).

package main

// ============================================================================
// SETUP
// ============================================================================
import (
	"os"

	"github.com/spf13/cobra"
)

// exitCode is set by a subcommand's RunE to the orchestrator-reported
// exit code (0/1/2), since cobra itself only distinguishes "errored" from
// "did not error".
var exitCode int

// ============================================================================
// BODY
// ============================================================================

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "han",
		Short:         "han runs plugin-defined validation hooks across a project",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newHookCommand())
	return root
}

func run() int {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		return 1
	}
	return exitCode
}

// main is the entry point for the hook orchestrator executable.
func main() {
	os.Exit(run())
}

// ============================================================================
// CLOSING
// ============================================================================
// No persistent resources - the process exits with the orchestrator's
// reported exit code on every path.
