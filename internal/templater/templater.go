// ============================================================================
// METADATA
// ============================================================================
// Command Templater (C5) - ${HAN_FILES} substitution
//
// Purpose: Detect the files-list placeholder and substitute it with a
// shell-quoted file list, or the literal "." fallback when no files are
// known. Stdlib only - ten lines of string manipulation with one
// well-known escaping rule, matching the teacher's smallest leaf
// libraries (system/lib/fs).

package templater

// ============================================================================
// SETUP
// ============================================================================
import "strings"

const placeholder = "${HAN_FILES}"

// ============================================================================
// BODY
// ============================================================================

// UsesSessionFiles reports whether cmd textually contains the files-list
// placeholder.
func UsesSessionFiles(cmd string) bool {
	return strings.Contains(cmd, placeholder)
}

// BuildCommandWithFiles substitutes the placeholder in cmd with files,
// each single-quoted and embedded-quote-escaped, space-separated. An
// empty files list substitutes the literal "." fallback token so hooks
// using the placeholder stay functional even without session-file
// information.
func BuildCommandWithFiles(cmd string, files []string) string {
	if len(files) == 0 {
		return strings.ReplaceAll(cmd, placeholder, ".")
	}
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = shellQuote(f)
	}
	return strings.ReplaceAll(cmd, placeholder, strings.Join(quoted, " "))
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// using the standard '\'' pattern.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ============================================================================
// CLOSING
// ============================================================================
// Function-based library - no execution needed
