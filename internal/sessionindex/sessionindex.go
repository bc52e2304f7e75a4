// ============================================================================
// METADATA
// ============================================================================
// Session-File Index (C2) - Files a session has modified
//
// Purpose: For a session ID, expose the set of files that session has
// touched via Write/Edit/MultiEdit tool events. Grounded on
// hooks/lib/activity/logger.go's append-only JSONL activity stream (one
// JSON object per line, one shared file for all sessions, filtered here
// by session_id) and on
// hooks/lib/session/state.go's thin-delegation style. Lazily loaded, then
// cached for the lifetime of the process via Index.

package sessionindex

// ============================================================================
// SETUP
// ============================================================================
import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/TheBushidoCollective/han/internal/obslog"
)

var log = obslog.New("sessionindex")

// toolEvent mirrors one line of the activity JSONL stream.
type toolEvent struct {
	SessionID string `json:"session_id"`
	Tool      string `json:"tool"`
	FilePath  string `json:"file_path"`
}

// Snapshot is one session's recorded file-modification history.
type Snapshot struct {
	SessionID    string
	AllModified  []string // absolute paths, order of first appearance
}

// Index lazily loads and caches one Snapshot per session ID for the
// lifetime of the process (spec.md §3: "Created lazily; cached per
// request").
type Index struct {
	streamPath string

	mu    sync.Mutex
	cache map[string]*Snapshot
}

// ============================================================================
// BODY
// ============================================================================

// New builds an Index reading the activity stream at streamPath (a JSONL
// file of toolEvent records written by the surrounding editor/agent's
// other, out-of-scope hooks).
func New(streamPath string) *Index {
	return &Index{streamPath: streamPath, cache: make(map[string]*Snapshot)}
}

// FallbackSessionID generates a process-local session identifier when the
// environment supplies none (cmd/han/hook.go calls this whenever
// envconfig.Resolved.SessionID is empty), matching
// ipiton-alert-history-service's use of google/uuid for request-scoped
// identifiers.
func FallbackSessionID() string {
	return uuid.NewString()
}

// Get returns the Snapshot for sessionID, loading and caching it on first
// use. An empty or missing activity stream yields an empty Snapshot
// rather than an error — caching should degrade gracefully, not fail the
// whole hook run.
func (idx *Index) Get(sessionID string) (*Snapshot, error) {
	if sessionID == "" {
		return &Snapshot{}, nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if cached, ok := idx.cache[sessionID]; ok {
		return cached, nil
	}

	snap, err := idx.load(sessionID)
	if err != nil {
		return nil, err
	}
	idx.cache[sessionID] = snap
	return snap, nil
}

func (idx *Index) load(sessionID string) (*Snapshot, error) {
	snap := &Snapshot{SessionID: sessionID}

	f, err := os.Open(idx.streamPath)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionindex: open %q: %w", idx.streamPath, err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev toolEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// A malformed line from a peer process mid-write is expected;
			// skip it rather than failing the whole load.
			continue
		}
		if ev.SessionID != sessionID || ev.FilePath == "" {
			continue
		}
		switch ev.Tool {
		case "Write", "Edit", "MultiEdit":
		default:
			continue
		}
		abs := ev.FilePath
		if !filepath.IsAbs(abs) {
			continue
		}
		if !seen[abs] {
			seen[abs] = true
			snap.AllModified = append(snap.AllModified, abs)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("activity stream scan stopped early", "error", err.Error())
	}
	return snap, nil
}

// ============================================================================
// CLOSING
// ============================================================================
// Process-lifetime cache - no explicit teardown needed
