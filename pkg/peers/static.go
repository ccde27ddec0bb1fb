package peers

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/types"
)

// staticManager carries the peer roster without a session behind it. It
// answers the whole Manager surface, the operations that would need the
// network log a warning, record it and do nothing.
type staticManager struct {
	mu       sync.RWMutex
	cfg      Config
	selfKey  string
	table    map[string]*Record
	order    []string
	warnings []string
	cleaned  bool
}

// NewStaticManager builds a manager over a fixed roster. Every peer
// starts unknown and no probing ever happens, the table only moves
// through UpdateStatus.
func NewStaticManager(peerKeys []string, selfKey string, warnings []string, cfg Config) Manager {
	m := &staticManager{
		cfg:      cfg,
		selfKey:  types.NormalizePeerKey(selfKey),
		table:    make(map[string]*Record),
		warnings: append([]string(nil), warnings...),
	}
	m.resetTable(peerKeys)
	logger.Info("Static peer manager ready", "peers", len(m.order))
	return m
}

func (m *staticManager) resetTable(peerKeys []string) {
	keys := lo.Uniq(lo.FilterMap(peerKeys, func(key string, _ int) (string, bool) {
		normalized := types.NormalizePeerKey(key)
		return normalized, normalized != "" && !types.SamePeer(normalized, m.selfKey)
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

func (m *staticManager) InitializeFromList(peerKeys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTable(peerKeys)
}

func (m *staticManager) UpdateStatus(peerKey string, status types.PeerStatus) {
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
}

func (m *staticManager) PingAll(_ context.Context) *PingSummary {
	m.warnOp("ping all", "no session to probe peers with")

	records := m.Peers()
	offline := make([]string, len(records))
	for i, rec := range records {
		offline[i] = rec.PeerKey
	}
	return &PingSummary{
		Peers:        records,
		TotalPeers:   len(records),
		OnlinePeers:  []string{},
		OfflinePeers: offline,
		LastChecked:  time.Now().UTC(),
	}
}

func (m *staticManager) PingOne(_ context.Context, peerKey string) (types.PingResult, error) {
	m.warnOp("ping", "no session to probe peers with")
	return types.PingResult{}, errors.NewWithCode(errors.CodeNotConnected,
		"static peer manager cannot probe "+types.ShortKey(peerKey))
}

func (m *staticManager) StartMonitoring() error {
	m.warnOp("start monitoring", "no session to probe peers with")
	return nil
}

func (m *staticManager) StopMonitoring() {}

func (m *staticManager) IsMonitoring() bool { return false }

func (m *staticManager) UpdateConfig(interval, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if interval > 0 {
		m.cfg.Interval = interval
	}
	if timeout > 0 {
		m.cfg.Timeout = timeout
	}
}

func (m *staticManager) Peers() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.order))
	for _, key := range m.order {
		records = append(records, copyRecord(m.table[key]))
	}
	return records
}

func (m *staticManager) OnlinePeers() []Record {
	records := []Record{}
	for _, rec := range m.Peers() {
		if rec.Status == types.StatusOnline {
			records = append(records, rec)
		}
	}
	return records
}

func (m *staticManager) OfflinePeers() []Record {
	records := []Record{}
	for _, rec := range m.Peers() {
		if rec.Status == types.StatusOffline {
			records = append(records, rec)
		}
	}
	return records
}

func (m *staticManager) Peer(peerKey string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, known := m.table[types.NormalizePeerKey(peerKey)]
	if !known {
		return Record{}, false
	}
	return copyRecord(rec), true
}

func (m *staticManager) OnlineCount() int {
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

func (m *staticManager) IsOnline(peerKey string) bool {
	rec, known := m.Peer(peerKey)
	return known && rec.Status == types.StatusOnline
}

func (m *staticManager) Warnings() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.warnings...)
}

func (m *staticManager) Mode() Mode { return ModeStatic }

func (m *staticManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = true
	m.table = make(map[string]*Record)
	m.order = nil
}

func (m *staticManager) warnOp(op, reason string) {
	logger.Warn("Operation unavailable in static mode", "op", op, "reason", reason)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, op+" unavailable: "+reason)
}
