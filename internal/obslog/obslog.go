// ============================================================================
// METADATA
// ============================================================================
// Logging - Rails-pattern structured logger
//
// Purpose: Every component builds its own logger via New(component) and
// never receives one as a parameter (the teacher's Rails pattern in
// system/lib/logging: "components create own loggers, never pass as
// parameters"). The storage and formatting underneath is real third-party
// infrastructure rather than the teacher's hand-rolled JSON writer:
// github.com/rs/zerolog for structured output, rotated on disk with
// gopkg.in/natefinch/lumberjack.v2.

package obslog

// ============================================================================
// SETUP
// ============================================================================
import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// sharedSink holds the current io.Writer every Logger writes through. It's
// an atomic.Pointer rather than a field captured at New time because
// components build their loggers at package-init time - before main has
// had a chance to call Configure - so the sink has to be resolved on every
// write, not baked in at construction. atomic.Pointer (rather than
// atomic.Value) is needed because Configure stores different concrete
// io.Writer implementations (*os.File, then a multi-writer) across calls,
// which atomic.Value rejects.
var sharedSink atomic.Pointer[io.Writer]

func init() {
	var w io.Writer = os.Stderr
	sharedSink.Store(&w)
}

// Logger wraps a zerolog.Logger scoped to one component name. It reads the
// current sink on every event rather than holding one, so a later
// Configure call takes effect for loggers already constructed.
type Logger struct {
	component string
}

// ============================================================================
// BODY
// ============================================================================

// Configure points every Logger, including ones already constructed, at
// stderr plus a rotating log file under logDir (han.log). An empty logDir
// resets the sink to stderr only. Safe to call once at process start; if
// never called, loggers write to stderr only.
func Configure(logDir string) error {
	if logDir == "" {
		var w io.Writer = os.Stderr
		sharedSink.Store(&w)
		return nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	w := io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "han.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
	sharedSink.Store(&w)
	return nil
}

// New builds a Logger scoped to component. Each orchestrator package
// calls this once at package scope (var log = obslog.New("coordinator")),
// following the teacher's Rails pattern. Construction happens at Go
// init time, before Configure ever runs, so the logger only remembers
// its component name and resolves the sink lazily on every event.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) zlog() zerolog.Logger {
	var w io.Writer = os.Stderr
	if p := sharedSink.Load(); p != nil {
		w = *p
	}
	return zerolog.New(w).With().Timestamp().Str("component", l.component).Logger()
}

func (l *Logger) Debug(msg string, kv ...any) { l.event(l.zlog().Debug(), msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.event(l.zlog().Info(), msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.event(l.zlog().Warn(), msg, kv...) }
func (l *Logger) Error(err error, msg string, kv ...any) {
	l.event(l.zlog().Error().Err(err), msg, kv...)
}

// event applies alternating key/value pairs to a zerolog event and fires it.
// Expected: "every uncaught diagnostic is a typed event, not a silent catch."
func (l *Logger) event(ev *zerolog.Event, msg string, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}

// ============================================================================
// CLOSING
// ============================================================================
// Struct-based library - no execution needed
