// ============================================================================
// METADATA
// ============================================================================
// hook run <pluginName> <hookName> - the core subcommand
//
// Purpose: parse flags, build every orchestrator dependency (resolver,
// session index, validation store, coordinator) from resolved environment
// and settings, then hand off to orchestrator.RunConfiguredHook. This is
// the only place that turns process-level inputs (env, flags, cwd) into
// the explicit structs every internal package expects.

package main

// ============================================================================
// SETUP
// ============================================================================
import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheBushidoCollective/han/internal/coordinator"
	"github.com/TheBushidoCollective/han/internal/envconfig"
	"github.com/TheBushidoCollective/han/internal/hookconfig"
	"github.com/TheBushidoCollective/han/internal/obslog"
	"github.com/TheBushidoCollective/han/internal/orchestrator"
	"github.com/TheBushidoCollective/han/internal/pathutil"
	"github.com/TheBushidoCollective/han/internal/sessionindex"
	"github.com/TheBushidoCollective/han/internal/settings"
	"github.com/TheBushidoCollective/han/internal/validation"
)

// ============================================================================
// BODY
// ============================================================================

func newHookCommand() *cobra.Command {
	hook := &cobra.Command{Use: "hook", Short: "Hook execution commands"}
	hook.AddCommand(newHookRunCommand())
	return hook
}

func newHookRunCommand() *cobra.Command {
	var (
		flagFailFast   bool
		flagNoFailFast bool
		flagCached     bool
		flagOnly       string
		flagVerbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run <pluginName> <hookName>",
		Short: "Run a plugin's configured hook across its resolved directories",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exitCode = runHook(hookRunFlags{
				pluginName: args[0],
				hookName:   args[1],
				failFast:   flagFailFast,
				noFailFast: flagNoFailFast,
				cached:     flagCached,
				only:       flagOnly,
				verbose:    flagVerbose,
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagFailFast, "fail-fast", false, "stop and signal peers on the first failure")
	cmd.Flags().BoolVar(&flagNoFailFast, "no-fail-fast", false, "run every directory even after a failure")
	cmd.Flags().BoolVar(&flagCached, "cached", false, "skip directories already validated for this session")
	cmd.Flags().StringVar(&flagOnly, "only", "", "restrict to a single resolved directory")
	cmd.Flags().BoolVar(&flagVerbose, "verbose", false, "inherit child stdio instead of capturing it")

	return cmd
}

type hookRunFlags struct {
	pluginName string
	hookName   string
	failFast   bool
	noFailFast bool
	cached     bool
	only       string
	verbose    bool
}

// runHook resolves the environment, builds every orchestrator dependency,
// and returns the process exit code. This is the "named orchestration
// function" main.go's run() delegates to, kept separate from RunE so it
// stays callable and testable without cobra in the loop.
func runHook(flags hookRunFlags) int {
	env := envconfig.Load()

	configDir, err := userConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "han: cannot resolve config directory: %v\n", err)
		return orchestrator.ExitMisconfigured
	}

	if err := obslog.Configure(filepath.Join(configDir, "han", "logs")); err != nil {
		fmt.Fprintf(os.Stderr, "han: logging setup failed: %v\n", err)
	}

	cfg, err := settings.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "han: failed to load settings: %v\n", err)
		return orchestrator.ExitMisconfigured
	}

	failFast := cfg.FailFast
	if flags.failFast {
		failFast = true
	}
	if flags.noFailFast {
		failFast = false
	}
	if env.NoFailFast {
		failFast = false
	}

	cachingEnabled := flags.cached && !env.NoCache

	poolDir := filepath.Join(configDir, "han", "coordinator")
	if cfg.Coordinator.PoolKey == "hook" {
		poolDir = filepath.Join(poolDir, pathutil.SanitizeForFilename(flags.hookName))
	}
	coord, err := coordinator.New(poolDir, cfg.Coordinator.Capacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "han: failed to initialize slot coordinator: %v\n", err)
		return orchestrator.ExitMisconfigured
	}

	store, err := validation.Open(filepath.Join(configDir, "han", "validations.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "han: failed to open validation store: %v\n", err)
		return orchestrator.ExitMisconfigured
	}
	defer store.Close()

	activityStream := os.Getenv("CLAUDE_ACTIVITY_STREAM")
	if activityStream == "" {
		activityStream = filepath.Join(configDir, "han", "activity.jsonl")
	}

	sessionID := env.SessionID
	if sessionID == "" {
		sessionID = sessionindex.FallbackSessionID()
	}

	deps := orchestrator.Dependencies{
		Resolver:    hookconfig.New(pathutil.Canonicalize),
		Sessions:    sessionindex.New(activityStream),
		Validations: store,
		Coordinator: coord,
	}

	in := orchestrator.Input{
		ProjectRoot:     env.ProjectDir,
		PluginRoot:      env.PluginRoot,
		PluginName:      flags.pluginName,
		HookName:        flags.hookName,
		Only:            flags.only,
		SessionID:       sessionID,
		FailFast:        failFast,
		CachingEnabled:  cachingEnabled,
		Verbose:         flags.verbose,
		Debug:           env.Debug,
		EnvFile:         env.EnvFile,
		TempDir:         os.TempDir(),
		AbsoluteTimeout: time.Duration(env.AbsoluteTimeoutSeconds) * time.Second,
	}

	return orchestrator.RunConfiguredHook(context.Background(), deps, in, os.Stdout, os.Stderr)
}

// userConfigDir resolves the per-user configuration root the coordinator,
// validation store, and logs live under.
func userConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "claude"), nil
}

// ============================================================================
// CLOSING
// ============================================================================
// Owns the validation store's lifetime for one invocation (opened and
// closed within runHook); every other dependency is process-lifetime and
// released on process exit.
