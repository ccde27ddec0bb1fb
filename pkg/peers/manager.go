package peers

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/messaging"
	"github.com/fystack/peermon/pkg/ping"
	"github.com/fystack/peermon/pkg/telemetry"
	"github.com/fystack/peermon/pkg/types"
)

// Config tunes a Manager. Callbacks run on monitor or delivery
// goroutines and must not block.
type Config struct {
	// Interval between scheduled liveness rounds. Zero means the
	// configured default.
	Interval time.Duration
	// Timeout per probe. Zero means the configured default.
	Timeout time.Duration
	// AutoStart launches monitoring right after robust construction.
	AutoStart bool
	// SelfKey identifies the local member when no session can say.
	SelfKey string
	// OnStatusChange fires on status transitions only, never on a
	// probe that confirms the current status.
	OnStatusChange func(rec Record, previous types.PeerStatus)
	// OnError receives background failures with an operation tag.
	OnError func(op string, err error)
	// FallbackMode picks what NewManagerRobust does when the live
	// manager cannot be built. Empty means FallbackStatic.
	FallbackMode FallbackMode
}

// Manager is the status table of a signing group's peers.
type Manager interface {
	// InitializeFromList replaces the tracked peer set. Known peers
	// keep their state, new ones start unknown. The local member and
	// duplicates are dropped.
	InitializeFromList(peerKeys []string)

	// UpdateStatus records an externally observed status for a tracked
	// peer.
	UpdateStatus(peerKey string, status types.PeerStatus)

	// PingAll probes every tracked peer once, folds the outcomes into
	// the table and summarizes the sweep.
	PingAll(ctx context.Context) *PingSummary

	// PingOne probes a single tracked peer. Probing an untracked peer
	// is an error, a failed probe is not.
	PingOne(ctx context.Context, peerKey string) (types.PingResult, error)

	// StartMonitoring begins scheduled probing of the tracked peers.
	StartMonitoring() error
	// StopMonitoring halts scheduled probing and suppresses deliveries
	// of the round in flight.
	StopMonitoring()
	IsMonitoring() bool

	// UpdateConfig adjusts the probing cadence. Zero keeps the current
	// value. An active monitor restarts on the new settings.
	UpdateConfig(interval, timeout time.Duration)

	Peers() []Record
	OnlinePeers() []Record
	OfflinePeers() []Record
	Peer(peerKey string) (Record, bool)
	OnlineCount() int
	IsOnline(peerKey string) bool

	// Warnings lists degradations accumulated so far. A fully live
	// manager has none.
	Warnings() []string
	Mode() Mode

	// Cleanup stops monitoring and detaches from the session. The
	// manager is unusable afterwards. Safe to call repeatedly.
	Cleanup()
}

type liveManager struct {
	sess    engine.Session
	groupID string

	mu    sync.RWMutex
	cfg   Config
	table map[string]*Record
	order []string

	monitorMu sync.Mutex
	monitor   *ping.Monitor

	subs    []messaging.Subscription
	cleaned bool
}

// NewManager builds a live manager over the session's group. The table
// seeds from the session's peer list and the manager starts observing
// group traffic passively: any message or probe from a tracked peer
// marks it online.
func NewManager(sess engine.Session, cfg Config) (Manager, error) {
	if sess == nil {
		return nil, errors.NewWithCode(errors.CodeNotConnected, "peer manager needs a session")
	}

	m := &liveManager{
		sess:    sess,
		groupID: sess.GroupID(),
		cfg:     cfg,
		table:   make(map[string]*Record),
	}
	m.resetTable(sess.Peers())

	for _, event := range []string{engine.EventMessage, engine.EventPing} {
		sub, err := sess.Subscribe(event, m.observe)
		if err != nil {
			m.detach()
			return nil, errors.WrapWithCode(errors.CodeSubscription, err, "failed to observe group traffic")
		}
		m.subs = append(m.subs, sub)
	}

	logger.Info("Peer manager ready", "group", m.groupID, "peers", len(m.order))
	return m, nil
}

func (m *liveManager) InitializeFromList(peerKeys []string) {
	m.mu.Lock()
	m.resetTable(peerKeys)
	count := len(m.order)
	m.mu.Unlock()

	logger.Info("Peer list initialized", "group", m.groupID, "peers", count)
	m.updateGauge()

	// A running monitor probes a stale set otherwise.
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitor != nil && m.monitor.IsRunning() {
		m.restartMonitorLocked()
	}
}

// resetTable rebuilds the table for the given keys, carrying over the
// records of peers that stay. Callers hold m.mu (construction aside).
func (m *liveManager) resetTable(peerKeys []string) {
	selfKey := m.cfg.SelfKey
	if selfKey == "" {
		selfKey = m.sess.SelfKey()
	}

	keys := lo.Uniq(lo.FilterMap(peerKeys, func(key string, _ int) (string, bool) {
		normalized := types.NormalizePeerKey(key)
		return normalized, normalized != "" && !types.SamePeer(normalized, selfKey)
	}))

	table := make(map[string]*Record, len(keys))
	for _, key := range keys {
		if rec, known := m.table[key]; known {
			table[key] = rec
			continue
		}
		table[key] = &Record{
			PeerKey:      key,
			Status:       types.StatusUnknown,
			AllowSend:    true,
			AllowReceive: true,
		}
	}
	m.table = table
	m.order = keys
}

// observe handles passive traffic. Inbound activity proves a peer is
// online, silence proves nothing, so this only ever upgrades.
func (m *liveManager) observe(env *types.Envelope) {
	if env == nil || env.From == "" {
		return
	}

	m.mu.Lock()
	rec, known := m.table[types.NormalizePeerKey(env.From)]
	if !known || m.cleaned {
		m.mu.Unlock()
		return
	}
	previous := rec.Status
	rec.Status = types.StatusOnline
	rec.LastSeen = time.Now().UTC()
	snapshot := copyRecord(rec)
	callback := m.cfg.OnStatusChange
	m.mu.Unlock()

	if previous != types.StatusOnline {
		logger.Debug("Peer seen in group traffic",
			"peer", types.ShortKey(snapshot.PeerKey), "kind", env.Kind)
		if callback != nil {
			callback(snapshot, previous)
		}
		m.updateGauge()
	}
}

func (m *liveManager) UpdateStatus(peerKey string, status types.PeerStatus) {
	m.mu.Lock()
	rec, known := m.table[types.NormalizePeerKey(peerKey)]
	if !known {
		m.mu.Unlock()
		logger.Warn("Status update for untracked peer", "peer", types.ShortKey(peerKey))
		return
	}
	previous := rec.Status
	rec.Status = status
	if status == types.StatusOnline {
		rec.LastSeen = time.Now().UTC()
	}
	snapshot := copyRecord(rec)
	callback := m.cfg.OnStatusChange
	m.mu.Unlock()

	if previous != status && callback != nil {
		callback(snapshot, previous)
	}
	m.updateGauge()
}

// applyResult folds one probe outcome into the table. Shared by manual
// sweeps and the scheduled monitor.
func (m *liveManager) applyResult(result types.PingResult) {
	m.mu.Lock()
	rec, known := m.table[result.PeerKey]
	if !known || m.cleaned {
		m.mu.Unlock()
		return
	}
	previous := rec.Status
	next := types.StatusFromResult(result)
	rec.Status = next
	if result.Success {
		rec.LastSeen = result.Timestamp
		rec.LatencyMs = result.LatencyMs
		if result.Policy != nil {
			policy := *result.Policy
			rec.Policy = &policy
			rec.AllowSend = policy.Send
			rec.AllowReceive = policy.Recv
		}
	}
	snapshot := copyRecord(rec)
	callback := m.cfg.OnStatusChange
	m.mu.Unlock()

	if previous != next && callback != nil {
		callback(snapshot, previous)
	}
	m.updateGauge()
}

func (m *liveManager) PingAll(ctx context.Context) *PingSummary {
	m.mu.RLock()
	keys := append([]string(nil), m.order...)
	timeout := m.cfg.Timeout
	m.mu.RUnlock()

	results := ping.PingPeers(ctx, m.sess, keys, &ping.Options{Timeout: timeout})
	for _, result := range results {
		m.applyResult(result)
	}

	summary := summarize(results)
	summary.Peers = m.Peers()
	logger.Info("Peer sweep complete",
		"group", m.groupID,
		"online", summary.OnlineCount,
		"total", summary.TotalPeers)
	return summary
}

func summarize(results []types.PingResult) *PingSummary {
	summary := &PingSummary{
		TotalPeers:   len(results),
		OnlinePeers:  []string{},
		OfflinePeers: []string{},
		LastChecked:  time.Now().UTC(),
	}
	var latencies []float64
	for _, result := range results {
		if result.Success {
			summary.OnlinePeers = append(summary.OnlinePeers, result.PeerKey)
			latencies = append(latencies, result.LatencyMs)
			continue
		}
		summary.OfflinePeers = append(summary.OfflinePeers, result.PeerKey)
	}
	summary.OnlineCount = len(summary.OnlinePeers)
	if len(latencies) > 0 {
		summary.AverageLatencyMs = round2(lo.Sum(latencies) / float64(len(latencies)))
	}
	return summary
}

func (m *liveManager) PingOne(ctx context.Context, peerKey string) (types.PingResult, error) {
	key := types.NormalizePeerKey(peerKey)

	m.mu.RLock()
	_, known := m.table[key]
	timeout := m.cfg.Timeout
	m.mu.RUnlock()
	if !known {
		return types.PingResult{}, errors.NewWithCode(errors.CodePeerNotFound,
			"peer "+types.ShortKey(key)+" is not tracked")
	}

	result := ping.PingPeer(ctx, m.sess, key, &ping.Options{Timeout: timeout})
	m.applyResult(result)
	return result, nil
}

func (m *liveManager) StartMonitoring() error {
	m.mu.RLock()
	cleaned := m.cleaned
	m.mu.RUnlock()
	if cleaned {
		return errors.New("peer manager already cleaned up")
	}

	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitor != nil && m.monitor.IsRunning() {
		logger.Warn("Peer monitoring already active", "group", m.groupID)
		return nil
	}
	m.startMonitorLocked()
	return nil
}

// startMonitorLocked builds and starts a monitor over the current peer
// set. An empty table is a warned no-op. Callers hold m.monitorMu.
func (m *liveManager) startMonitorLocked() {
	m.mu.RLock()
	keys := append([]string(nil), m.order...)
	interval, timeout := m.cfg.Interval, m.cfg.Timeout
	m.mu.RUnlock()

	if len(keys) == 0 {
		logger.Warn("No peers to monitor", "group", m.groupID)
		return
	}

	m.monitor = ping.NewMonitor(m.sess, keys, ping.MonitorConfig{
		Interval: interval,
		Timeout:  timeout,
		OnResult: m.applyResult,
		OnError:  m.relayError,
	})
	m.monitor.Start()
}

// restartMonitorLocked swaps the running monitor for one over the
// current peers and settings. Callers hold m.monitorMu.
func (m *liveManager) restartMonitorLocked() {
	m.monitor.Cleanup()
	m.monitor = nil
	m.startMonitorLocked()
}

func (m *liveManager) StopMonitoring() {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitor == nil {
		return
	}
	m.monitor.Cleanup()
	m.monitor = nil
}

func (m *liveManager) IsMonitoring() bool {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	return m.monitor != nil && m.monitor.IsRunning()
}

func (m *liveManager) UpdateConfig(interval, timeout time.Duration) {
	m.mu.Lock()
	changed := false
	if interval > 0 && interval != m.cfg.Interval {
		m.cfg.Interval = interval
		changed = true
	}
	if timeout > 0 && timeout != m.cfg.Timeout {
		m.cfg.Timeout = timeout
		changed = true
	}
	m.mu.Unlock()
	if !changed {
		return
	}

	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitor != nil && m.monitor.IsRunning() {
		m.restartMonitorLocked()
	}
}

func (m *liveManager) Peers() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.order))
	for _, key := range m.order {
		records = append(records, copyRecord(m.table[key]))
	}
	return records
}

func (m *liveManager) OnlinePeers() []Record {
	return m.filter(func(rec Record) bool { return rec.Status == types.StatusOnline })
}

func (m *liveManager) OfflinePeers() []Record {
	return m.filter(func(rec Record) bool { return rec.Status == types.StatusOffline })
}

func (m *liveManager) filter(keep func(rec Record) bool) []Record {
	records := []Record{}
	for _, rec := range m.Peers() {
		if keep(rec) {
			records = append(records, rec)
		}
	}
	return records
}

func (m *liveManager) Peer(peerKey string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, known := m.table[types.NormalizePeerKey(peerKey)]
	if !known {
		return Record{}, false
	}
	return copyRecord(rec), true
}

func (m *liveManager) OnlineCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, rec := range m.table {
		if rec.Status == types.StatusOnline {
			count++
		}
	}
	return count
}

func (m *liveManager) IsOnline(peerKey string) bool {
	rec, known := m.Peer(peerKey)
	return known && rec.Status == types.StatusOnline
}

func (m *liveManager) Warnings() []string { return nil }

func (m *liveManager) Mode() Mode { return ModeFull }

func (m *liveManager) Cleanup() {
	m.mu.Lock()
	if m.cleaned {
		m.mu.Unlock()
		return
	}
	m.cleaned = true
	m.table = make(map[string]*Record)
	m.order = nil
	m.mu.Unlock()

	m.StopMonitoring()
	m.detach()
	telemetry.PeersOnline.WithLabelValues(m.groupID).Set(0)
	logger.Info("Peer manager cleaned up", "group", m.groupID)
}

func (m *liveManager) detach() {
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("Failed to detach traffic observer",
				"topic", sub.Topic(), "error", err.Error())
		}
	}
	m.subs = nil
}

func (m *liveManager) relayError(op string, err error) {
	m.mu.RLock()
	callback := m.cfg.OnError
	m.mu.RUnlock()
	if callback != nil {
		callback(op, err)
	}
}

func (m *liveManager) updateGauge() {
	telemetry.PeersOnline.WithLabelValues(m.groupID).Set(float64(m.OnlineCount()))
}
