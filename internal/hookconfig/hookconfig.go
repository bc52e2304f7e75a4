// ============================================================================
// METADATA
// ============================================================================
// Config Resolver (C4) - plugin hook manifest -> ResolvedHookConfig[]
//
// Purpose: Given (pluginRoot, hookName, projectRoot, only), read the
// plugin's hooks.yaml manifest and yield one ResolvedHookConfig per
// directory the hook applies to, in stable lexicographic order. Parsing
// uses gopkg.in/yaml.v3 (the pack's dominant configuration format -
// ipiton-alert-history-service, the streamspace repos, and vjache-cie all
// parse YAML), following the teacher's system/lib/config layered-loading
// shape. Resolved lists are cached per (pluginRoot, hookName, projectRoot)
// for the life of one process via hashicorp/golang-lru, so resolving the
// same hook again in that process never re-reads the manifest.

package hookconfig

// ============================================================================
// SETUP
// ============================================================================
import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	"github.com/TheBushidoCollective/han/internal/obslog"
	"github.com/TheBushidoCollective/han/internal/pathutil"
)

var log = obslog.New("hookconfig")

// ErrNoMatchingDirectory is returned when `only` names a directory no
// resolved config carries.
var ErrNoMatchingDirectory = errors.New("hookconfig: no matching directory")

// ErrHookNotFound is returned when the manifest has no entry for hookName.
var ErrHookNotFound = errors.New("hookconfig: hook not found")

// ResolvedHookConfig is one directory's resolved configuration for a hook.
// Immutable once produced.
type ResolvedHookConfig struct {
	Directory   string   // absolute, canonical
	Command     string   // may contain ${HAN_FILES}
	IfChanged   []string // glob patterns rooted at Directory
	IdleTimeout int      // seconds, 0 means "no idle cap"
	Enabled     bool
}

// manifest mirrors one plugin's hooks.yaml.
type manifest struct {
	Hooks map[string]struct {
		Directories []struct {
			Path        string   `yaml:"path"`
			Command     string   `yaml:"command"`
			IfChanged   []string `yaml:"ifChanged"`
			IdleTimeout int      `yaml:"idleTimeout"`
			Enabled     *bool    `yaml:"enabled"`
		} `yaml:"directories"`
	} `yaml:"hooks"`
}

type cacheKey struct {
	pluginRoot string
	hookName   string
	projectRoot string
}

// Resolver caches parsed, resolved hook configs within one process.
type Resolver struct {
	canonicalize func(string) (string, error)
	cache        *lru.Cache[cacheKey, []ResolvedHookConfig]
}

// ============================================================================
// BODY
// ============================================================================

// New builds a Resolver. canonicalize resolves a path to its absolute,
// symlink-free form (pathutil.Canonicalize in production).
func New(canonicalize func(string) (string, error)) *Resolver {
	cache, _ := lru.New[cacheKey, []ResolvedHookConfig](64)
	return &Resolver{canonicalize: canonicalize, cache: cache}
}

// Resolve returns the ordered ResolvedHookConfig list for hookName. When
// only is non-empty (trailing slash tolerated), the result is filtered to
// the single matching directory, or ErrNoMatchingDirectory.
func (r *Resolver) Resolve(pluginRoot, hookName, projectRoot, only string) ([]ResolvedHookConfig, error) {
	key := cacheKey{pluginRoot: pluginRoot, hookName: hookName, projectRoot: projectRoot}

	configs, ok := r.cache.Get(key)
	if !ok {
		loaded, err := r.load(pluginRoot, hookName, projectRoot)
		if err != nil {
			return nil, err
		}
		configs = loaded
		r.cache.Add(key, configs)
	}

	if only == "" {
		return configs, nil
	}

	onlyCanon, err := r.canonicalize(only)
	if err != nil {
		return nil, fmt.Errorf("hookconfig: canonicalize --only %q: %w", only, err)
	}
	for _, cfg := range configs {
		if cfg.Directory == onlyCanon {
			return []ResolvedHookConfig{cfg}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatchingDirectory, only)
}

func (r *Resolver) load(pluginRoot, hookName, projectRoot string) ([]ResolvedHookConfig, error) {
	manifestPath := filepath.Join(pluginRoot, "hooks.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("hookconfig: read %q: %w", manifestPath, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("hookconfig: parse %q: %w", manifestPath, err)
	}

	hook, ok := m.Hooks[hookName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHookNotFound, hookName)
	}

	var out []ResolvedHookConfig
	for _, d := range hook.Directories {
		dirPath := d.Path
		if dirPath == "" {
			dirPath = "."
		}
		if !filepath.IsAbs(dirPath) {
			dirPath = filepath.Join(projectRoot, dirPath)
		}
		canon, err := r.canonicalize(dirPath)
		if err != nil {
			log.Warn("skipping directory that failed to canonicalize", "directory", dirPath, "error", err.Error())
			continue
		}
		canonProjectRoot, err := r.canonicalize(projectRoot)
		if err == nil && !pathutil.Within(canonProjectRoot, canon) {
			log.Warn("skipping directory outside project root", "directory", canon, "projectRoot", canonProjectRoot)
			continue
		}
		enabled := true
		if d.Enabled != nil {
			enabled = *d.Enabled
		}
		if d.Command == "" {
			return nil, fmt.Errorf("hookconfig: hook %q directory %q has empty command", hookName, dirPath)
		}
		out = append(out, ResolvedHookConfig{
			Directory:   canon,
			Command:     d.Command,
			IfChanged:   d.IfChanged,
			IdleTimeout: d.IdleTimeout,
			Enabled:     enabled,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Directory < out[j].Directory })
	return out, nil
}

// ============================================================================
// CLOSING
// ============================================================================
// Process-lifetime LRU cache - no explicit teardown needed
