package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheBushidoCollective/han/internal/coordinator"
	"github.com/TheBushidoCollective/han/internal/hookconfig"
	"github.com/TheBushidoCollective/han/internal/pathutil"
	"github.com/TheBushidoCollective/han/internal/sessionindex"
	"github.com/TheBushidoCollective/han/internal/validation"
)

type testEnv struct {
	projectRoot string
	pluginRoot  string
	deps        Dependencies
	tempDir     string
}

func setupEnv(t *testing.T, manifestYAML string) testEnv {
	t.Helper()
	projectRoot := t.TempDir()
	pluginRoot := filepath.Join(projectRoot, ".claude-plugins", "lang")
	require.NoError(t, os.MkdirAll(pluginRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginRoot, "hooks.yaml"), []byte(manifestYAML), 0o644))

	store, err := validation.Open(filepath.Join(t.TempDir(), "validations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	coord, err := coordinator.New(filepath.Join(t.TempDir(), "coordinator"), 1)
	require.NoError(t, err)

	return testEnv{
		projectRoot: projectRoot,
		pluginRoot:  pluginRoot,
		tempDir:     t.TempDir(),
		deps: Dependencies{
			Resolver:    hookconfig.New(pathutil.Canonicalize),
			Sessions:    sessionindex.New(filepath.Join(t.TempDir(), "activity.jsonl")),
			Validations: store,
			Coordinator: coord,
		},
	}
}

func baseInput(env testEnv) Input {
	return Input{
		ProjectRoot:     env.projectRoot,
		PluginRoot:      env.pluginRoot,
		PluginName:      "lang",
		HookName:        "lint",
		SkipSlot:        true,
		TempDir:         env.tempDir,
		AbsoluteTimeout: 5 * time.Second,
	}
}

func TestRunConfiguredHookAllPass(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "."
        command: "true"
`
	env := setupEnv(t, manifest)
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, baseInput(env), &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "✓")
	assert.Contains(t, stdout.String(), "passed")
}

func TestRunConfiguredHookFailureReportsAndExits2(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "."
        command: "exit 1"
`
	env := setupEnv(t, manifest)
	in := baseInput(env)
	in.FailFast = false
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitFailuresOrStop, code)
	assert.Contains(t, stdout.String(), "✗")
	assert.Contains(t, stderr.String(), "failed")
	assert.Contains(t, stderr.String(), "Re-run:")
}

func TestRunConfiguredHookFailFastSignalsAndStopsPeer(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "a"
        command: "exit 1"
      - path: "b"
        command: "true"
`
	env := setupEnv(t, manifest)
	require.NoError(t, os.MkdirAll(filepath.Join(env.projectRoot, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(env.projectRoot, "b"), 0o755))

	in := baseInput(env)
	in.FailFast = true
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitFailuresOrStop, code)
	assert.Contains(t, stderr.String(), "CRITICAL")
	assert.NotContains(t, stdout.String(), "b")

	// A peer invocation for a different plugin/hook observes the signal
	// and stops before running anything.
	peerManifest := `
hooks:
  test:
    directories:
      - path: "."
        command: "true"
`
	peerPluginRoot := filepath.Join(env.projectRoot, ".claude-plugins", "other")
	require.NoError(t, os.MkdirAll(peerPluginRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(peerPluginRoot, "hooks.yaml"), []byte(peerManifest), 0o644))

	peerIn := in
	peerIn.PluginRoot = peerPluginRoot
	peerIn.PluginName = "other"
	peerIn.HookName = "test"

	var peerStdout, peerStderr bytes.Buffer
	peerCode := RunConfiguredHook(context.Background(), env.deps, peerIn, &peerStdout, &peerStderr)
	assert.Equal(t, ExitFailuresOrStop, peerCode)
	assert.Contains(t, peerStdout.String(), "Skipping")
}

func TestRunConfiguredHookNoDirectoriesConfigured(t *testing.T) {
	manifest := `
hooks:
  typecheck:
    directories: []
`
	env := setupEnv(t, manifest)
	in := baseInput(env)
	in.HookName = "typecheck"
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "No directories")
}

func TestRunConfiguredHookAllDisabled(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "."
        command: "true"
        enabled: false
`
	env := setupEnv(t, manifest)
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, baseInput(env), &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "disabled")

	data, err := os.ReadFile(filepath.Join(env.tempDir, "han-metrics", "lang_lint.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `outcome="disabled",plugin="lang"} 1`)
}

func TestRunConfiguredHookCachedSkipWritesMetrics(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "."
        command: "true"
        ifChanged: ["*.go"]
`
	env := setupEnv(t, manifest)
	filePath := filepath.Join(env.projectRoot, "main.go")
	require.NoError(t, os.WriteFile(filePath, []byte("package main"), 0o644))

	hash, err := pathutil.HashFile(filePath)
	require.NoError(t, err)
	cmdHash := pathutil.HashCommand("true")
	require.NoError(t, env.deps.Validations.Record(context.Background(), "S1", "lang", "lint", env.projectRoot, filePath, hash, cmdHash))

	in := baseInput(env)
	in.SessionID = "S1"
	in.CachingEnabled = true

	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)

	data, err := os.ReadFile(filepath.Join(env.tempDir, "han-metrics", "lang_lint.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `outcome="skipped",plugin="lang"} 1`)
}

func TestRunConfiguredHookPluginMismatch(t *testing.T) {
	env := setupEnv(t, "hooks:\n  lint:\n    directories: []\n")
	in := baseInput(env)
	in.PluginName = "wrong-name"
	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitMisconfigured, code)
	assert.Contains(t, stderr.String(), "does not match")
}

func TestRunConfiguredHookCachedSkipsValidatedDirectory(t *testing.T) {
	manifest := `
hooks:
  lint:
    directories:
      - path: "."
        command: "true"
        ifChanged: ["*.txt"]
`
	env := setupEnv(t, manifest)
	filePath := filepath.Join(env.projectRoot, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	hash, err := pathutil.HashFile(filePath)
	require.NoError(t, err)
	cmdHash := pathutil.HashCommand("true")
	require.NoError(t, env.deps.Validations.Record(context.Background(), "S1", "lang", "lint", env.projectRoot, filePath, hash, cmdHash))

	in := baseInput(env)
	in.SessionID = "S1"
	in.CachingEnabled = true

	var stdout, stderr bytes.Buffer
	code := RunConfiguredHook(context.Background(), env.deps, in, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "Skipped")
}

func TestRerunCommandTargetedDirectoryOmitsCached(t *testing.T) {
	in := Input{PluginName: "lang", HookName: "lint", CachingEnabled: true}
	cmd := rerunCommand(in, "packages/x")
	assert.Equal(t, "han hook run lang lint --only=packages/x", cmd)
}

func TestRerunCommandWholeProjectIncludesCachedFlag(t *testing.T) {
	in := Input{PluginName: "lang", HookName: "lint", CachingEnabled: true}
	cmd := rerunCommand(in, ".")
	assert.Equal(t, "han hook run lang lint --cached", cmd)
}

func TestRerunCommandWithoutCaching(t *testing.T) {
	in := Input{PluginName: "lang", HookName: "lint"}
	cmd := rerunCommand(in, ".")
	assert.Equal(t, "han hook run lang lint", cmd)
}
