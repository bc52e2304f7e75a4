// ============================================================================
// METADATA
// ============================================================================
// Metrics - Prometheus textfile export
//
// Purpose: Supplemented ambient reporting surface. After Phase 2 the
// orchestrator writes a Prometheus textfile with run counts (by outcome,
// including "skipped"/"stale_skipped") and durations, so a node_exporter
// textfile collector (or any local scrape) can see orchestration health
// across sessions. This never affects exit codes: a write failure is
// logged and swallowed, same as ValidationRecordFailed in spec.md §7.

package metrics

// ============================================================================
// SETUP
// ============================================================================
import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is the set of counters/gauges for one orchestrator invocation.
type Snapshot struct {
	Plugin        string
	Hook          string
	Passed        int
	Failed        int
	Skipped       int
	StaleSkipped  int
	Disabled      int
	TotalDuration time.Duration
}

// ============================================================================
// BODY
// ============================================================================

// WriteTextfile renders snap as a Prometheus exposition-format textfile
// under <tempDir>/han-metrics/<plugin>_<hook>.prom. The write-temp-then-
// rename pattern keeps a concurrently-scraping collector from ever
// observing a half-written file.
func WriteTextfile(tempDir string, snap Snapshot) error {
	dir := filepath.Join(tempDir, "han-metrics")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("metrics: mkdir: %w", err)
	}

	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook}

	runs := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "han_hook_runs_total",
	}, []string{"plugin", "hook", "outcome"})
	registry.MustRegister(runs)
	runs.With(prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook, "outcome": "passed"}).Set(float64(snap.Passed))
	runs.With(prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook, "outcome": "failed"}).Set(float64(snap.Failed))
	runs.With(prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook, "outcome": "skipped"}).Set(float64(snap.Skipped))
	runs.With(prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook, "outcome": "stale_skipped"}).Set(float64(snap.StaleSkipped))
	runs.With(prometheus.Labels{"plugin": snap.Plugin, "hook": snap.Hook, "outcome": "disabled"}).Set(float64(snap.Disabled))

	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "han_hook_duration_seconds",
		ConstLabels: labels,
	})
	registry.MustRegister(duration)
	duration.Set(snap.TotalDuration.Seconds())

	tmp := filepath.Join(dir, fmt.Sprintf(".%s_%s.prom.tmp", snap.Plugin, snap.Hook))
	final := filepath.Join(dir, fmt.Sprintf("%s_%s.prom", snap.Plugin, snap.Hook))

	if err := writeToTextfile(tmp, registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return os.Rename(tmp, final)
}

// writeToTextfile gathers registry and renders it in the node_exporter
// textfile-collector exposition format, the same wire format
// client_golang's own HTTP handler serves.
func writeToTextfile(path string, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
