// ============================================================================
// METADATA
// ============================================================================
// Path & Hash Utilities - Shared canonicalization and content-hashing library
// Provides the lowest rung primitives the orchestrator builds on: absolute
// path resolution, SHA-256 hashing of file content and command strings, and
// glob-pattern directory walking.
//
// Dependencies: None (stdlib only - Rails requirement for fs-level primitives,
// matching system/lib/fs and system/lib/git in the wider codebase)

package pathutil

// ============================================================================
// SETUP
// ============================================================================
import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ============================================================================
// BODY
// ============================================================================

// Canonicalize resolves path to its absolute, symlink-free form. Relative
// paths are resolved against the current working directory. A path that
// does not yet exist is still made absolute, but then no symlinks in it
// are resolved, not even in its existing ancestors.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("pathutil: abs %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Path may not exist yet (e.g. a directory about to be created);
		// fall back to the absolute form rather than failing outright.
		return abs, nil
	}
	return resolved, nil
}

// Within reports whether candidate is equal to or nested under root. Both
// paths must already be canonical (absolute, symlink-free) for the result
// to be meaningful.
func Within(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if root == candidate {
		return true
	}
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HashFile returns the lowercase hex SHA-256 digest of a file's content.
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("pathutil: read %q: %w", path, err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashCommand returns the lowercase hex SHA-256 digest of a command
// string, byte-for-byte (including whitespace) so that any change to the
// command — even a single extra space — invalidates cache entries that
// referenced the old hash.
func HashCommand(cmd string) string {
	return HashBytes([]byte(cmd))
}

// ExpandGlobs enumerates the files under root matching any of the given
// glob patterns (interpreted relative to root, may contain "**" for
// recursive descent). Results are absolute paths, deduplicated and
// returned in stable lexicographic order.
func ExpandGlobs(root string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A file vanishing mid-walk (e.g. deleted by a peer session)
			// is expected; skip it rather than aborting the whole walk.
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if matchGlob(pattern, rel) {
				if !seen[path] {
					seen[path] = true
					out = append(out, path)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pathutil: walk %q: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// matchGlob matches a "**"-aware glob pattern against a slash-separated
// relative path. "**" matches zero or more path segments; everything else
// is delegated to path.Match semantics segment-by-segment.
func matchGlob(pattern, rel string) bool {
	patParts := strings.Split(pattern, "/")
	relParts := strings.Split(rel, "/")
	return matchParts(patParts, relParts)
}

func matchParts(pat, rel []string) bool {
	if len(pat) == 0 {
		return len(rel) == 0
	}
	if pat[0] == "**" {
		if len(pat) == 1 {
			return true
		}
		for i := 0; i <= len(rel); i++ {
			if matchParts(pat[1:], rel[i:]) {
				return true
			}
		}
		return false
	}
	if len(rel) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], rel[0])
	if err != nil || !ok {
		return false
	}
	return matchParts(pat[1:], rel[1:])
}

// RelOrSelf returns path relative to root, or "." when path equals root.
// Used to render the "." fallback directory in console/report output.
func RelOrSelf(root, path string) string {
	if filepath.Clean(root) == filepath.Clean(path) {
		return "."
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// SanitizeForFilename makes dir safe to embed in an output/debug file
// name: path separators, spaces and colons become underscores, and
// leading/trailing underscores are trimmed.
func SanitizeForFilename(dir string) string {
	replacer := strings.NewReplacer(
		string(filepath.Separator), "_",
		"/", "_",
		" ", "_",
		":", "_",
	)
	s := replacer.Replace(dir)
	return strings.Trim(s, "_")
}

// ============================================================================
// CLOSING
// ============================================================================
// Function-based library - no execution needed
