// ============================================================================
// METADATA
// ============================================================================
// Validation Store (C3) - Per-file validation records and the staleness rule
//
// Purpose: Durable record of "this file, at this content hash, under this
// command hash, passed for this session" keyed by
// (sessionId, plugin, hook, directory, filePath). Backed by
// modernc.org/sqlite, a pure-Go (no cgo) sqlite driver, matching
// ipiton-alert-history-service's use of modernc.org/sqlite as an embedded
// persistence layer. Single-writer-per-key semantics are provided by
// sqlite's database-wide write lock plus an upsert (INSERT ... ON CONFLICT).

package validation

// ============================================================================
// SETUP
// ============================================================================
import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TheBushidoCollective/han/internal/obslog"
)

var log = obslog.New("validation")

// Record is one validated (session, plugin, hook, directory, file) fact.
type Record struct {
	SessionID   string
	FilePath    string
	FileHash    string
	CommandHash string
	ValidatedAt time.Time
}

// CheckResult is C3's answer to "does this config still need to run".
type CheckResult struct {
	NeedsValidation bool
	StaleFiles      []string
}

// Store wraps the sqlite-backed validation table.
type Store struct {
	db *sql.DB
}

// ============================================================================
// BODY
// ============================================================================

// Open opens (creating if necessary) the validation database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("validation: open %q: %w", path, err)
	}
	// The validation store is shared across sibling orchestrator
	// processes; sqlite's writer serialization is per-connection, so we
	// cap this process to one connection and let sqlite's own locking
	// handle cross-process contention.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("validation: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS validations (
	session_id   TEXT NOT NULL,
	plugin       TEXT NOT NULL,
	hook         TEXT NOT NULL,
	directory    TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	file_hash    TEXT NOT NULL,
	command_hash TEXT NOT NULL,
	validated_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, plugin, hook, directory, file_path)
);
CREATE INDEX IF NOT EXISTS validations_by_file
	ON validations (plugin, hook, directory, file_path);
`

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record upserts the validation fact for one file, scoped to sessionID.
func (s *Store) Record(ctx context.Context, sessionID, plugin, hook, directory, filePath, fileHash, commandHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (session_id, plugin, hook, directory, file_path, file_hash, command_hash, validated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, plugin, hook, directory, file_path) DO UPDATE SET
			file_hash = excluded.file_hash,
			command_hash = excluded.command_hash,
			validated_at = excluded.validated_at
	`, sessionID, plugin, hook, directory, filePath, fileHash, commandHash, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("validation: record %q: %w", filePath, err)
	}
	return nil
}

// mostRecent is the latest record across all sessions for one file.
type mostRecent struct {
	sessionID   string
	fileHash    string
	commandHash string
	found       bool
}

func (s *Store) latest(ctx context.Context, plugin, hook, directory, filePath string) (mostRecent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, file_hash, command_hash
		FROM validations
		WHERE plugin = ? AND hook = ? AND directory = ? AND file_path = ?
		ORDER BY validated_at DESC
		LIMIT 1
	`, plugin, hook, directory, filePath)

	var m mostRecent
	err := row.Scan(&m.sessionID, &m.fileHash, &m.commandHash)
	if err == sql.ErrNoRows {
		return mostRecent{}, nil
	}
	if err != nil {
		return mostRecent{}, err
	}
	m.found = true
	return m, nil
}

// HashFunc computes the current content hash of a file. Supplied by the
// caller (pathutil.HashFile in production, a stub in tests) so this
// package stays free of a direct filesystem dependency.
type HashFunc func(filePath string) (string, error)

// CheckFilesNeedValidation implements spec.md §4.3: classify candidateFiles
// into needs-validation / already-validated / stale, relative to sessionID
// and commandHash.
func (s *Store) CheckFilesNeedValidation(ctx context.Context, sessionID, plugin, hook, directory string, candidateFiles []string, commandHash string, hashFn HashFunc) (CheckResult, error) {
	result := CheckResult{}

	for _, file := range candidateFiles {
		currentHash, err := hashFn(file)
		if err != nil {
			// A file that vanished between glob expansion and hashing
			// (e.g. deleted mid-session) needs validation on the next
			// run that can see it; it cannot be "already validated" now.
			log.Warn("hash failed, treating as needs-validation", "file", file, "error", err.Error())
			result.NeedsValidation = true
			continue
		}

		rec, err := s.latest(ctx, plugin, hook, directory, file)
		if err != nil {
			return CheckResult{}, fmt.Errorf("validation: check %q: %w", file, err)
		}

		switch {
		case !rec.found:
			result.NeedsValidation = true
		case rec.commandHash != commandHash:
			result.NeedsValidation = true
		case rec.sessionID == sessionID:
			if rec.fileHash != currentHash {
				result.NeedsValidation = true
			}
			// else: already validated by this session, nothing to do
		case rec.fileHash == currentHash:
			// Another session claimed this validation at the same content.
			result.StaleFiles = append(result.StaleFiles, file)
		default:
			// Another session's record doesn't match current content;
			// this session still needs to validate it itself.
			result.NeedsValidation = true
		}
	}

	return result, nil
}

// ============================================================================
// CLOSING
// ============================================================================
// sqlite-backed library - callers own Open/Close lifecycle
