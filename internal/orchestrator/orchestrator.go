// ============================================================================
// METADATA
// ============================================================================
// Orchestrator (C8) - the top-level two-phase algorithm
//
// Purpose: resolve a hook's configurations (C4), classify them against
// the validation store to drop already-validated or stale-but-foreign
// work (C3/C2), then run each remaining configuration under the slot
// coordinator and child supervisor (C6/C7), recording successes and
// reporting failures with precise re-run instructions. This is the
// orchestration Ladder's top rung - it calls every other component but
// contains no protocol logic of its own, matching the teacher's
// hooks/tool/cmd-pre-use entry-point style of a single named function
// wiring Ladders together.

package orchestrator

// ============================================================================
// SETUP
// ============================================================================
import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/TheBushidoCollective/han/internal/coordinator"
	"github.com/TheBushidoCollective/han/internal/hookconfig"
	"github.com/TheBushidoCollective/han/internal/metrics"
	"github.com/TheBushidoCollective/han/internal/obslog"
	"github.com/TheBushidoCollective/han/internal/pathutil"
	"github.com/TheBushidoCollective/han/internal/sessionindex"
	"github.com/TheBushidoCollective/han/internal/supervisor"
	"github.com/TheBushidoCollective/han/internal/templater"
	"github.com/TheBushidoCollective/han/internal/validation"
)

var log = obslog.New("orchestrator")

// toolName is the CLI binary name embedded in re-run instructions.
const toolName = "han"

// Exit codes, per the external interface contract.
const (
	ExitSuccess        = 0
	ExitMisconfigured  = 1
	ExitFailuresOrStop = 2
)

// Dependencies bundles every component RunConfiguredHook wires together.
// Built once per process in cmd/han and passed down explicitly - no
// package-level singletons, so tests can substitute temp-dir-backed
// instances freely.
type Dependencies struct {
	Resolver    *hookconfig.Resolver
	Sessions    *sessionindex.Index
	Validations *validation.Store
	Coordinator *coordinator.Coordinator
}

// Input is everything one invocation needs, already resolved from flags,
// environment, and settings by the caller.
type Input struct {
	ProjectRoot     string
	PluginRoot      string
	PluginName      string
	HookName        string
	Only            string
	SessionID       string
	FailFast        bool
	CachingEnabled  bool
	Verbose         bool
	Debug           bool
	SkipSlot        bool
	EnvFile         string
	TempDir         string
	AbsoluteTimeout time.Duration
}

type failureReport struct {
	RelDirectory string
	IdleTimedOut bool
	OutputPath   string
	DebugPath    string
}

// ============================================================================
// BODY
// ============================================================================

// RunConfiguredHook is the sole entry point: Phase 1 classifies cached
// configurations out of the run, Phase 2 executes what remains. It writes
// its own console contract to stdout/stderr and returns the process exit
// code; callers never need to re-derive it.
func RunConfiguredHook(ctx context.Context, deps Dependencies, in Input, stdout, stderr io.Writer) int {
	projectRoot, err := pathutil.Canonicalize(in.ProjectRoot)
	if err != nil {
		fmt.Fprintf(stderr, "han: cannot canonicalize project directory %q: %v\n", in.ProjectRoot, err)
		return ExitMisconfigured
	}

	if in.PluginRoot == "" {
		fmt.Fprintf(stderr, "han: CLAUDE_PLUGIN_ROOT is not set; cannot resolve plugin %q\n", in.PluginName)
		return ExitMisconfigured
	}
	if filepath.Base(filepath.Clean(in.PluginRoot)) != in.PluginName {
		fmt.Fprintf(stderr, "han: plugin root %q does not match requested plugin %q\n", in.PluginRoot, in.PluginName)
		return ExitMisconfigured
	}

	configs, err := deps.Resolver.Resolve(in.PluginRoot, in.HookName, projectRoot, in.Only)
	if err != nil {
		fmt.Fprintf(stderr, "han: %v\n", err)
		return ExitMisconfigured
	}

	var allModified []string
	if in.CachingEnabled && in.SessionID != "" {
		snap, err := deps.Sessions.Get(in.SessionID)
		if err != nil {
			log.Warn("session index lookup failed; proceeding without session filtering", "error", err.Error())
		} else {
			allModified = snap.AllModified
		}
	}

	configsToRun, disabled, skipped, staleSkipped := classify(ctx, deps, in, configs)

	if exitCode, done := trivialExit(stdout, configs, configsToRun, disabled, skipped, staleSkipped); done {
		writeMetrics(in, metrics.Snapshot{
			Plugin:       in.PluginName,
			Hook:         in.HookName,
			Skipped:      skipped,
			StaleSkipped: staleSkipped,
			Disabled:     disabled,
		})
		return exitCode
	}

	return execute(ctx, deps, in, projectRoot, configsToRun, allModified, disabled, skipped, staleSkipped, stdout, stderr)
}

// writeMetrics renders snap to the textfile collector path, logging and
// swallowing any failure - metrics are additive instrumentation and never
// change the exit status (spec.md §7: ValidationRecordFailed is the same
// contract applied here).
func writeMetrics(in Input, snap metrics.Snapshot) {
	if err := metrics.WriteTextfile(in.TempDir, snap); err != nil {
		log.Warn("metrics textfile write failed", "error", err.Error())
	}
}

// classify implements Phase 1: drop disabled configs and configs whose
// files are already validated (or validated by a foreign session) from
// configsToRun.
func classify(ctx context.Context, deps Dependencies, in Input, configs []hookconfig.ResolvedHookConfig) (configsToRun []hookconfig.ResolvedHookConfig, disabled, skipped, staleSkipped int) {
	for _, cfg := range configs {
		if !cfg.Enabled {
			disabled++
			continue
		}

		if !(in.CachingEnabled && len(cfg.IfChanged) > 0 && in.SessionID != "") {
			configsToRun = append(configsToRun, cfg)
			continue
		}

		candidates, err := pathutil.ExpandGlobs(cfg.Directory, cfg.IfChanged)
		if err != nil {
			log.Warn("glob expansion failed; running uncached", "directory", cfg.Directory, "error", err.Error())
			configsToRun = append(configsToRun, cfg)
			continue
		}

		commandHash := pathutil.HashCommand(cfg.Command)
		result, err := deps.Validations.CheckFilesNeedValidation(ctx, in.SessionID, in.PluginName, in.HookName, cfg.Directory, candidates, commandHash, pathutil.HashFile)
		if err != nil {
			log.Warn("validation check failed; running uncached", "directory", cfg.Directory, "error", err.Error())
			configsToRun = append(configsToRun, cfg)
			continue
		}

		switch {
		case !result.NeedsValidation && len(result.StaleFiles) == 0:
			skipped++
		case !result.NeedsValidation && len(result.StaleFiles) > 0:
			staleSkipped++
		default:
			configsToRun = append(configsToRun, cfg)
		}
	}
	return configsToRun, disabled, skipped, staleSkipped
}

// trivialExit applies the ordered trivial-exit rules of spec.md §4.6 step
// 5. Returns done=true when one of them fired.
func trivialExit(stdout io.Writer, configs, configsToRun []hookconfig.ResolvedHookConfig, disabled, skipped, staleSkipped int) (int, bool) {
	if len(configs) == 0 {
		fmt.Fprintln(stdout, "No directories configured for this hook.")
		return ExitSuccess, true
	}
	if disabled == len(configs) {
		fmt.Fprintln(stdout, "All configured directories are disabled.")
		return ExitSuccess, true
	}
	if len(configsToRun) == 0 && (skipped > 0 || staleSkipped > 0) {
		if skipped > 0 {
			fmt.Fprintf(stdout, "Skipped %d director%s (no changes detected)\n", skipped, plural(skipped))
		}
		if staleSkipped > 0 {
			fmt.Fprintf(stdout, "Skipped %d director%s (files modified by another session)\n", staleSkipped, plural(staleSkipped))
		}
		return ExitSuccess, true
	}
	return 0, false
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// execute implements Phase 2: sequential, slot-scoped execution of every
// remaining config, with fail-fast peer checks at each boundary and
// validation recording for everything that passed.
func execute(ctx context.Context, deps Dependencies, in Input, projectRoot string, configsToRun []hookconfig.ResolvedHookConfig, allModified []string, disabled, skipped, staleSkipped int, stdout, stderr io.Writer) int {
	if err := deps.Coordinator.ClearFailureSignal(); err != nil {
		log.Warn("failed to clear failure signal", "error", err.Error())
	}

	var successful []hookconfig.ResolvedHookConfig
	var failures []failureReport
	start := time.Now()

	for _, cfg := range configsToRun {
		relPath := pathutil.RelOrSelf(projectRoot, cfg.Directory)

		if in.FailFast {
			if sig, err := deps.Coordinator.CheckFailureSignal(); err == nil && sig != nil {
				fmt.Fprintf(stdout, "⏭️  Skipping %s/%s: Fix the %s/%s failure first, then re-run all hooks.\n", in.PluginName, in.HookName, sig.PluginName, sig.HookName)
				return ExitFailuresOrStop
			}
		}

		cmdToRun := cfg.Command
		if templater.UsesSessionFiles(cfg.Command) {
			var files []string
			if in.CachingEnabled && in.SessionID != "" {
				files = intersectSessionFiles(cfg, allModified)
			}
			cmdToRun = templater.BuildCommandWithFiles(cfg.Command, files)
		}

		req := supervisor.Request{
			Directory:       cfg.Directory,
			Command:         cmdToRun,
			Verbose:         in.Verbose,
			IdleTimeout:     time.Duration(cfg.IdleTimeout) * time.Second,
			AbsoluteTimeout: in.AbsoluteTimeout,
			HookName:        in.HookName,
			PluginName:      in.PluginName,
			PluginRoot:      in.PluginRoot,
			EnvFile:         in.EnvFile,
			TempDir:         in.TempDir,
			Debug:           in.Debug,
		}

		var result supervisor.Result
		err := deps.Coordinator.WithGlobalSlot(ctx, in.HookName, in.PluginName, in.SkipSlot, func(ctx context.Context) error {
			result = supervisor.RunCommand(ctx, req)
			return nil
		})
		if err != nil {
			log.Warn("slot acquisition failed", "directory", cfg.Directory, "error", err.Error())
			failures = append(failures, failureReport{RelDirectory: relPath})
			fmt.Fprintf(stdout, "  ✗ %s failed\n", relPath)
			continue
		}

		if result.Success() {
			successful = append(successful, cfg)
			fmt.Fprintf(stdout, "  ✓ %s passed\n", relPath)
			continue
		}

		failures = append(failures, failureReport{
			RelDirectory: relPath,
			IdleTimedOut: result.IdleTimedOut,
			OutputPath:   result.OutputPath,
			DebugPath:    result.DebugPath,
		})
		fmt.Fprintf(stdout, "  ✗ %s failed\n", relPath)

		if in.FailFast {
			if sigErr := deps.Coordinator.SignalFailure(coordinator.FailureSignal{
				PluginName: in.PluginName,
				HookName:   in.HookName,
				Directory:  relPath,
			}); sigErr != nil {
				log.Warn("failed to write failure signal", "error", sigErr.Error())
			}
			printCriticalBlock(stderr, in, relPath, result)
			writeMetrics(in, metrics.Snapshot{
				Plugin:        in.PluginName,
				Hook:          in.HookName,
				Passed:        len(successful),
				Failed:        len(failures),
				Skipped:       skipped,
				StaleSkipped:  staleSkipped,
				Disabled:      disabled,
				TotalDuration: time.Since(start),
			})
			return ExitFailuresOrStop
		}
	}

	recordSuccesses(ctx, deps, in, successful)

	writeMetrics(in, metrics.Snapshot{
		Plugin:        in.PluginName,
		Hook:          in.HookName,
		Passed:        len(successful),
		Failed:        len(failures),
		Skipped:       skipped,
		StaleSkipped:  staleSkipped,
		Disabled:      disabled,
		TotalDuration: time.Since(start),
	})

	if len(failures) > 0 {
		printGroupedFailureReport(stderr, in, failures)
		return ExitFailuresOrStop
	}

	fmt.Fprintf(stdout, "%d director%s passed.\n", len(successful), plural(len(successful)))
	return ExitSuccess
}

// intersectSessionFiles computes, for one config, the intersection of
// this session's modified files with the glob expansion of cfg.IfChanged
// under cfg.Directory - the exact set of files the command should be
// scoped to, directory-relative.
func intersectSessionFiles(cfg hookconfig.ResolvedHookConfig, allModified []string) []string {
	candidates, err := pathutil.ExpandGlobs(cfg.Directory, cfg.IfChanged)
	if err != nil {
		return nil
	}
	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = true
	}

	var out []string
	for _, m := range allModified {
		if !pathutil.Within(cfg.Directory, m) {
			continue
		}
		if !candidateSet[m] {
			continue
		}
		out = append(out, pathutil.RelOrSelf(cfg.Directory, m))
	}
	return out
}

// recordSuccesses persists validation facts for every file matched by a
// successful config's ifChanged patterns. Recording failures are logged
// but never change the exit status (spec.md §7: ValidationRecordFailed).
func recordSuccesses(ctx context.Context, deps Dependencies, in Input, successful []hookconfig.ResolvedHookConfig) {
	if !(in.CachingEnabled && in.SessionID != "") {
		return
	}
	for _, cfg := range successful {
		if len(cfg.IfChanged) == 0 {
			continue
		}
		files, err := pathutil.ExpandGlobs(cfg.Directory, cfg.IfChanged)
		if err != nil {
			log.Warn("failed to expand ifChanged for recording", "directory", cfg.Directory, "error", err.Error())
			continue
		}
		commandHash := pathutil.HashCommand(cfg.Command)
		for _, f := range files {
			hash, err := pathutil.HashFile(f)
			if err != nil {
				log.Warn("failed to hash file for recording", "file", f, "error", err.Error())
				continue
			}
			if err := deps.Validations.Record(ctx, in.SessionID, in.PluginName, in.HookName, cfg.Directory, f, hash, commandHash); err != nil {
				log.Warn("failed to record validation", "file", f, "error", err.Error())
			}
		}
	}
}

// rerunCommand renders the precise re-run instruction for one failed
// directory, per spec.md §6.
func rerunCommand(in Input, relPath string) string {
	cmd := fmt.Sprintf("%s hook run %s %s", toolName, in.PluginName, in.HookName)
	targeted := relPath != "."
	if targeted {
		cmd += fmt.Sprintf(" --only=%s", relPath)
	} else if in.CachingEnabled {
		cmd += " --cached"
	}
	return cmd
}

func printCriticalBlock(stderr io.Writer, in Input, relPath string, result supervisor.Result) {
	fmt.Fprintf(stderr, "\n**CRITICAL**: %s/%s failed in %s.\n", in.PluginName, in.HookName, relPath)
	fmt.Fprintln(stderr, "Spawn a subagent to read the output file below, fix the reported problem, then re-run with the exact command shown.")
	if result.OutputPath != "" {
		fmt.Fprintf(stderr, "Output: %s\n", result.OutputPath)
	}
	if result.DebugPath != "" {
		fmt.Fprintf(stderr, "Debug: %s\n", result.DebugPath)
	}
	fmt.Fprintf(stderr, "Re-run: %s\n", rerunCommand(in, relPath))
}

// printGroupedFailureReport renders the stderr failure block: idle-timeout
// failures separated from regular failures, each with its re-run command
// and artifact paths.
func printGroupedFailureReport(stderr io.Writer, in Input, failures []failureReport) {
	fmt.Fprintf(stderr, "❌ %d director%s failed.\n", len(failures), plural(len(failures)))

	var idle, regular []failureReport
	for _, f := range failures {
		if f.IdleTimedOut {
			idle = append(idle, f)
		} else {
			regular = append(regular, f)
		}
	}

	printFailureGroup(stderr, "", regular, in)
	if len(idle) > 0 {
		fmt.Fprintln(stderr, "\nIdle timeout (no output received):")
		printFailureGroup(stderr, "  ", idle, in)
	}
}

func printFailureGroup(stderr io.Writer, indent string, group []failureReport, in Input) {
	for _, f := range group {
		fmt.Fprintf(stderr, "%s• %s\n", indent, f.RelDirectory)
		fmt.Fprintf(stderr, "%sRe-run: %s\n", indent, rerunCommand(in, f.RelDirectory))
		if f.OutputPath != "" {
			fmt.Fprintf(stderr, "%sOutput: %s\n", indent, f.OutputPath)
		}
		if f.DebugPath != "" {
			fmt.Fprintf(stderr, "%sDebug: %s\n", indent, f.DebugPath)
		}
	}
}

// ============================================================================
// CLOSING
// ============================================================================
// No persistent state of its own - every durable side effect lives in the
// components it calls (validation store, coordinator directory, metrics
// textfile, output/debug artifacts).
