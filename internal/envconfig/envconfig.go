// ============================================================================
// METADATA
// ============================================================================
// Environment Resolution - Collects every environment input the core reads
// into a single struct at process start.
//
// Per the Design Notes in spec.md ("Module-level environment reads"), no
// other component is allowed to call os.Getenv at operation time; they all
// take a *Resolved and read fields off it. Binding uses spf13/viper's
// AutomaticEnv, matching ipiton-alert-history-service's use of viper for
// environment-driven configuration.

package envconfig

// ============================================================================
// SETUP
// ============================================================================
import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const defaultAbsoluteTimeoutSeconds = 300

// Resolved is the single environment-derived input to one orchestrator
// invocation. Built once by Load, then threaded explicitly through every
// component that needs it.
type Resolved struct {
	ProjectDir             string // CLAUDE_PROJECT_DIR, defaults to cwd
	PluginRoot             string // CLAUDE_PLUGIN_ROOT
	EnvFile                string // CLAUDE_ENV_FILE
	SessionID              string // HAN_SESSION_ID or CLAUDE_SESSION_ID (first wins)
	NoFailFast             bool   // HAN_NO_FAIL_FAST
	NoCache                bool   // HAN_NO_CACHE
	AbsoluteTimeoutSeconds int    // HAN_HOOK_ABSOLUTE_TIMEOUT, default 300
	Debug                  bool   // HAN_DEBUG
}

// ============================================================================
// BODY
// ============================================================================

// Load resolves the Resolved struct once from the process environment. It
// is the only function in the orchestrator core allowed to read raw
// environment variables.
func Load() *Resolved {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	r := &Resolved{
		ProjectDir:             firstNonEmpty(v.GetString("CLAUDE_PROJECT_DIR")),
		PluginRoot:             v.GetString("CLAUDE_PLUGIN_ROOT"),
		EnvFile:                v.GetString("CLAUDE_ENV_FILE"),
		SessionID:              firstNonEmpty(v.GetString("HAN_SESSION_ID"), v.GetString("CLAUDE_SESSION_ID")),
		NoFailFast:             isTruthy(v.GetString("HAN_NO_FAIL_FAST")),
		NoCache:                isTruthy(v.GetString("HAN_NO_CACHE")),
		AbsoluteTimeoutSeconds: parsePositiveInt(v.GetString("HAN_HOOK_ABSOLUTE_TIMEOUT"), defaultAbsoluteTimeoutSeconds),
		Debug:                  isTruthy(v.GetString("HAN_DEBUG")),
	}

	if r.ProjectDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			r.ProjectDir = cwd
		}
	}
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "1" || s == "true"
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// ============================================================================
// CLOSING
// ============================================================================
// Struct-based library - no execution needed
