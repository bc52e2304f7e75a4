// ============================================================================
// METADATA
// ============================================================================
// Child Supervisor (C7) - spawns and times a single validation command
//
// Purpose: run one shell command under cwd=directory with two
// independent timers (idle and absolute), capture its combined
// stdout/stderr in quiet mode or inherit the terminal in verbose mode,
// and classify the result. Concurrent capture of the two output streams
// follows the teacher's monitoring package pattern of fanning work out
// and joining it, but draws on golang.org/x/sync/errgroup (the pack's
// standard structured-concurrency helper) instead of a raw sync.WaitGroup.
// The readers themselves do not watch the group's context: each one runs
// until its pipe closes, and a reader error only wakes the wait loop.

package supervisor

// ============================================================================
// SETUP
// ============================================================================
import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheBushidoCollective/han/internal/obslog"
	"github.com/TheBushidoCollective/han/internal/pathutil"
)

var log = obslog.New("supervisor")

// envFileSafe matches the strict safe-character set an env-file path
// must satisfy before it is sourced into the child's shell.
var envFileSafe = regexp.MustCompile(`^[A-Za-z0-9/_.\-~]+$`)

// State is the terminal classification of a supervised child.
type State int

const (
	Exited State = iota
	IdleKilled
	AbsoluteKilled
	SpawnError
)

func (s State) String() string {
	switch s {
	case Exited:
		return "Exited"
	case IdleKilled:
		return "IdleKilled"
	case AbsoluteKilled:
		return "AbsoluteKilled"
	case SpawnError:
		return "SpawnError"
	default:
		return "Unknown"
	}
}

// Request describes one command to run.
type Request struct {
	Directory       string
	Command         string
	Verbose         bool
	IdleTimeout     time.Duration // 0 means no idle cap
	AbsoluteTimeout time.Duration
	HookName        string
	PluginName      string
	PluginRoot      string
	EnvFile         string
	TempDir         string // root for output/debug files
	Debug           bool
}

// Result is the outcome of one RunCommand call.
type Result struct {
	State        State
	ExitCode     int
	Output       string
	Duration     time.Duration
	IdleTimedOut bool
	AbsTimedOut  bool
	OutputPath   string
	DebugPath    string
	SpawnErr     error
}

// Success reports whether the run should be treated as a passing
// validation: clean exit, no timer expired.
func (r Result) Success() bool {
	return r.State == Exited && r.ExitCode == 0 && !r.IdleTimedOut && !r.AbsTimedOut
}

// ============================================================================
// BODY
// ============================================================================

// RunCommand spawns req.Command under bash, enforces the idle and
// absolute timers, and returns a fully classified Result. ctx
// cancellation terminates the child and releases both timers.
func RunCommand(ctx context.Context, req Request) Result {
	start := time.Now()
	wrapped := wrapCommand(req.Command, req.EnvFile)

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", wrapped)
	cmd.Dir = req.Directory
	cmd.Env = os.Environ()
	if req.PluginRoot != "" {
		cmd.Env = append(cmd.Env, "CLAUDE_PLUGIN_ROOT="+req.PluginRoot)
	}

	var buf syncBuffer
	var idleKilled, absKilled bool
	var idleMu sync.Mutex

	if req.Verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		stdoutPipe, err := cmd.StdoutPipe()
		if err != nil {
			return spawnError(start, err)
		}
		stderrPipe, err := cmd.StderrPipe()
		if err != nil {
			return spawnError(start, err)
		}

		if err := cmd.Start(); err != nil {
			return spawnError(start, err)
		}

		idleTimer, idleC := newResettableTimer(req.IdleTimeout)
		defer idleTimer.Stop()

		resetIdle := func() {
			if idleC == nil {
				return
			}
			idleMu.Lock()
			idleTimer.Reset(req.IdleTimeout)
			idleMu.Unlock()
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return pump(stdoutPipe, &buf, resetIdle) })
		g.Go(func() error { return pump(stderrPipe, &buf, resetIdle) })

		absTimer := time.NewTimer(req.AbsoluteTimeout)
		defer absTimer.Stop()

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()

		var waitErr error
	waitLoop:
		for {
			select {
			case waitErr = <-done:
				break waitLoop
			case <-idleTimerFires(idleC):
				idleKilled = true
				killProcess(cmd)
				waitErr = <-done
				break waitLoop
			case <-absTimer.C:
				absKilled = true
				killProcess(cmd)
				waitErr = <-done
				break waitLoop
			case <-gctx.Done():
				// A pump reader failed; keep waiting for the real exit.
			}
		}
		_ = g.Wait()
		return classify(req, start, buf.String(), waitErr, idleKilled, absKilled)
	}

	// Verbose mode: no capture, just wait under the absolute timer. No idle
	// timer is armed here, since there are no captured chunks to reset it.
	if err := cmd.Start(); err != nil {
		return spawnError(start, err)
	}
	absTimer := time.NewTimer(req.AbsoluteTimeout)
	defer absTimer.Stop()
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	var waitErr error
	select {
	case waitErr = <-done:
	case <-absTimer.C:
		absKilled = true
		killProcess(cmd)
		waitErr = <-done
	}
	return classify(req, start, "", waitErr, false, absKilled)
}

// wrapCommand returns the shell text to execute: `source "<envFile>" &&
// <cmd>` when envFile is set and passes the safe-character check, else
// cmd unchanged. An unsafe path is refused and logged, not rejected
// outright - the bare command still runs.
func wrapCommand(cmd, envFile string) string {
	if envFile == "" {
		return cmd
	}
	if !envFileSafe.MatchString(envFile) {
		log.Warn("refusing to source env file with unsafe characters", "envFile", envFile)
		return cmd
	}
	return fmt.Sprintf("source %q && %s", envFile, cmd)
}

func idleTimerFires(c <-chan time.Time) <-chan time.Time {
	if c == nil {
		return nil
	}
	return c
}

// newResettableTimer returns a timer armed for d (or a stopped, never
// firing timer when d <= 0) plus the channel to select on.
func newResettableTimer(d time.Duration) (*time.Timer, <-chan time.Time) {
	if d <= 0 {
		t := time.NewTimer(time.Hour)
		t.Stop()
		return t, nil
	}
	t := time.NewTimer(d)
	return t, t.C
}

func killProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func pump(r io.Reader, buf *syncBuffer, onChunk func()) error {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			onChunk()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func classify(req Request, start time.Time, output string, waitErr error, idleKilled, absKilled bool) Result {
	dur := time.Since(start)

	if absKilled {
		output += fmt.Sprintf("\n[han] absolute timeout of %s exceeded; process killed\n", req.AbsoluteTimeout)
	}

	state := Exited
	switch {
	case idleKilled:
		state = IdleKilled
	case absKilled:
		state = AbsoluteKilled
	}

	exitCode := 0
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if waitErr != nil && !idleKilled && !absKilled {
		exitCode = -1
	}

	res := Result{
		State:        state,
		ExitCode:     exitCode,
		Output:       output,
		Duration:     dur,
		IdleTimedOut: idleKilled,
		AbsTimedOut:  absKilled,
	}

	writeOutput := req.Debug || !res.Success()
	if writeOutput && req.TempDir != "" {
		res.OutputPath, res.DebugPath = writeArtifacts(req, res)
	}
	return res
}

func spawnError(start time.Time, err error) Result {
	log.Error(err, "failed to spawn child command")
	return Result{
		State:    SpawnError,
		ExitCode: -1,
		Duration: time.Since(start),
		SpawnErr: err,
	}
}

// writeArtifacts writes the captured output and a key/value debug dump
// to <tempDir>/han-hook-output/<hookName>_<sanitizedDir>_<timestamp>.*.
func writeArtifacts(req Request, res Result) (outputPath, debugPath string) {
	outDir := filepath.Join(req.TempDir, "han-hook-output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Warn("failed to create hook output directory", "error", err.Error())
		return "", ""
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	base := fmt.Sprintf("%s_%s_%s", req.HookName, pathutil.SanitizeForFilename(req.Directory), stamp)

	outputPath = filepath.Join(outDir, base+".output.txt")
	if err := os.WriteFile(outputPath, []byte(res.Output), 0o644); err != nil {
		log.Warn("failed to write output file", "path", outputPath, "error", err.Error())
		outputPath = ""
	}

	var debug strings.Builder
	fmt.Fprintf(&debug, "directory=%s\n", req.Directory)
	fmt.Fprintf(&debug, "hookName=%s\n", req.HookName)
	fmt.Fprintf(&debug, "pluginName=%s\n", req.PluginName)
	fmt.Fprintf(&debug, "command=%s\n", req.Command)
	fmt.Fprintf(&debug, "state=%s\n", res.State)
	fmt.Fprintf(&debug, "exitCode=%d\n", res.ExitCode)
	fmt.Fprintf(&debug, "duration=%s\n", res.Duration)
	fmt.Fprintf(&debug, "idleTimeout=%s\n", req.IdleTimeout)
	fmt.Fprintf(&debug, "absoluteTimeout=%s\n", req.AbsoluteTimeout)
	fmt.Fprintf(&debug, "idleTimedOut=%t\n", res.IdleTimedOut)
	fmt.Fprintf(&debug, "absoluteTimedOut=%t\n", res.AbsTimedOut)
	fmt.Fprintf(&debug, "outputLength=%d\n", len(res.Output))

	debugPath = filepath.Join(outDir, base+".debug.txt")
	if err := os.WriteFile(debugPath, []byte(debug.String()), 0o644); err != nil {
		log.Warn("failed to write debug file", "path", debugPath, "error", err.Error())
		debugPath = ""
	}
	return outputPath, debugPath
}

// syncBuffer is a bytes.Buffer safe for concurrent writes from the two
// pump goroutines reading stdout and stderr into one ordered stream.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// ============================================================================
// CLOSING
// ============================================================================
// No persistent resources beyond the per-run output/debug files under
// TempDir; the child process and its timers are released on every exit
// path via defer and context cancellation.
