package ping

import (
	"context"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/telemetry"
	"github.com/fystack/peermon/pkg/types"
)

// MonitorConfig tunes a Monitor. The callbacks are invoked from the
// monitor's goroutine (scheduled rounds) or the caller's (manual rounds)
// and must not block.
type MonitorConfig struct {
	// Interval between scheduled rounds. Zero means the configured
	// default.
	Interval time.Duration
	// Timeout per probe. Zero means the configured default.
	Timeout time.Duration
	// OnResult receives every per-peer outcome.
	OnResult func(result types.PingResult)
	// OnError receives round-level failures with an operation tag.
	OnError func(op string, err error)
}

// Monitor drives scheduled liveness rounds over a fixed peer set. A
// round probes all peers concurrently and rounds never overlap, a slow
// round simply delays the next tick's work.
//
// Start and Stop are idempotent. After Stop no callback fires again,
// including callbacks of a round that is still in flight.
type Monitor struct {
	sess     engine.Session
	peerKeys []string
	groupID  string
	cfg      MonitorConfig

	mu      sync.Mutex
	running bool
	cleaned bool
	gen     uint64
	stopCh  chan struct{}

	// roundMu serializes scheduled and manual rounds.
	roundMu sync.Mutex
}

// NewMonitor builds a monitor over the given peer set. Keys are
// normalized once here, results carry the normalized form.
func NewMonitor(sess engine.Session, peerKeys []string, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = config.MonitorInterval()
	}
	keys := make([]string, len(peerKeys))
	for i, key := range peerKeys {
		keys[i] = types.NormalizePeerKey(key)
	}
	groupID := ""
	if sess != nil {
		groupID = sess.GroupID()
	}
	return &Monitor{sess: sess, peerKeys: keys, groupID: groupID, cfg: cfg}
}

// Start launches the schedule: one round immediately, then one per
// interval. Starting a running or cleaned-up monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		logger.Warn("Monitor already cleaned up, ignoring start")
		return
	}
	if m.running {
		m.mu.Unlock()
		logger.Warn("Monitor already running, ignoring start")
		return
	}
	m.running = true
	m.gen++
	gen := m.gen
	stopCh := make(chan struct{})
	m.stopCh = stopCh
	m.mu.Unlock()

	logger.Info("Starting liveness monitor",
		"peers", len(m.peerKeys),
		"interval", m.cfg.Interval)
	go m.loop(gen, stopCh)
}

// Stop halts the schedule and suppresses every later delivery. Stopping
// an idle monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh := m.stopCh
	m.stopCh = nil
	m.mu.Unlock()

	close(stopCh)
	logger.Info("Stopped liveness monitor")
}

// IsRunning reports whether the schedule is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Ping runs one round immediately, outside the schedule. The results are
// returned and also flow through the callbacks so observers see manual
// rounds the same way as scheduled ones.
func (m *Monitor) Ping() []types.PingResult {
	m.mu.Lock()
	cleaned := m.cleaned
	m.mu.Unlock()
	if cleaned {
		logger.Warn("Monitor already cleaned up, ignoring ping")
		return []types.PingResult{}
	}

	results, err := m.round()
	if err != nil {
		m.deliverError("ping", err)
	}
	for _, result := range results {
		m.mu.Lock()
		cleaned = m.cleaned
		m.mu.Unlock()
		if cleaned {
			break
		}
		m.deliverResult(result)
	}
	return results
}

// Cleanup stops the monitor and retires it for good: no callback fires
// afterwards and Start becomes a no-op. Safe to call repeatedly.
func (m *Monitor) Cleanup() {
	m.Stop()
	m.mu.Lock()
	m.cleaned = true
	m.mu.Unlock()
}

func (m *Monitor) loop(gen uint64, stopCh chan struct{}) {
	m.runScheduledRound(gen)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.runScheduledRound(gen)
		}
	}
}

func (m *Monitor) runScheduledRound(gen uint64) {
	if !m.generationActive(gen) {
		return
	}

	results, err := m.round()
	telemetry.MonitorRounds.WithLabelValues(m.groupID).Inc()

	if err != nil && m.generationActive(gen) {
		m.deliverError("ping", err)
	}
	for _, result := range results {
		// Checked per result so a Stop during delivery cuts the stream.
		if !m.generationActive(gen) {
			return
		}
		m.deliverResult(result)
	}
}

func (m *Monitor) round() ([]types.PingResult, error) {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()
	return pingAll(context.Background(), m.sess, m.peerKeys, &Options{Timeout: m.cfg.Timeout})
}

// generationActive reports whether deliveries for the given start
// generation are still wanted.
func (m *Monitor) generationActive(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.gen == gen && !m.cleaned
}

func (m *Monitor) deliverResult(result types.PingResult) {
	if m.cfg.OnResult != nil {
		m.cfg.OnResult(result)
	}
}

func (m *Monitor) deliverError(op string, err error) {
	if m.cfg.OnError != nil {
		m.cfg.OnError(op, err)
	}
}
