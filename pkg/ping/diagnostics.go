package ping

import (
	"context"
	"math"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/fystack/peermon/pkg/telemetry"
	"github.com/fystack/peermon/pkg/types"
	"github.com/samber/lo"
)

// DiagnosticsOptions tunes a diagnostics run. Zero values use the
// configured defaults.
type DiagnosticsOptions struct {
	Rounds int
	// Interval is the pause between rounds.
	Interval time.Duration
	// Timeout bounds each probe.
	Timeout time.Duration
}

// PeerStats aggregates one peer's probes across all rounds. Latencies
// are rounded to two decimals. A peer with zero successes keeps zeroed
// latency fields and a zero success rate.
type PeerStats struct {
	Attempts           int     `json:"attempts"`
	Successes          int     `json:"successes"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	MinLatencyMs       float64 `json:"min_latency_ms"`
	MaxLatencyMs       float64 `json:"max_latency_ms"`
}

// Summary aggregates the whole run. FastestPeer and SlowestPeer are the
// peers with the lowest and highest average latency among those that
// answered at least once, empty when nobody answered.
type Summary struct {
	Rounds             int     `json:"rounds"`
	PeerCount          int     `json:"peer_count"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	FastestPeer        string  `json:"fastest_peer,omitempty"`
	SlowestPeer        string  `json:"slowest_peer,omitempty"`
}

// Report is the outcome of one diagnostics run.
type Report struct {
	Summary Summary              `json:"summary"`
	Rounds  [][]types.PingResult `json:"rounds"`
	PerPeer map[string]PeerStats `json:"per_peer"`
}

// RunDiagnostics probes the peer set over several rounds and aggregates
// the outcomes. Probe failures are data in the report, the returned
// error only covers cancellation between rounds.
func RunDiagnostics(ctx context.Context, sess engine.Session, peerKeys []string, opts *DiagnosticsOptions) (*Report, error) {
	rounds, interval, timeout := diagnosticsSettings(opts)

	keys := make([]string, len(peerKeys))
	for i, key := range peerKeys {
		keys[i] = types.NormalizePeerKey(key)
	}

	logger.Info("Running network diagnostics", "peers", len(keys), "rounds", rounds)

	allRounds := make([][]types.PingResult, 0, rounds)
	for i := 0; i < rounds; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "diagnostics cancelled")
			case <-time.After(interval):
			}
		}
		results := PingPeers(ctx, sess, keys, &Options{Timeout: timeout})
		allRounds = append(allRounds, results)
		logger.Debug("Diagnostics round complete", "round", i+1, "rounds", rounds)
	}

	report := buildReport(keys, allRounds)
	telemetry.DiagnosticsRuns.Inc()
	logger.Info("Diagnostics complete",
		"success_rate", report.Summary.SuccessRatePercent,
		"avg_latency_ms", report.Summary.AverageLatencyMs)
	return report, nil
}

func diagnosticsSettings(opts *DiagnosticsOptions) (rounds int, interval, timeout time.Duration) {
	rounds = config.DiagnosticsRounds()
	interval = config.DiagnosticsInterval()
	if opts != nil {
		if opts.Rounds > 0 {
			rounds = opts.Rounds
		}
		if opts.Interval > 0 {
			interval = opts.Interval
		}
		timeout = opts.Timeout
	}
	return rounds, interval, timeout
}

// buildReport folds raw rounds into per-peer and aggregate statistics.
// Peers are visited in input order, so ties on average latency go to the
// earlier peer.
func buildReport(peerKeys []string, rounds [][]types.PingResult) *Report {
	perPeer := make(map[string]PeerStats, len(peerKeys))
	var totalAttempts, totalSuccesses int
	var allLatencies []float64

	fastest, slowest := "", ""
	var fastestAvg, slowestAvg float64

	for _, key := range peerKeys {
		var stats PeerStats
		var latencies []float64
		for _, round := range rounds {
			for _, result := range round {
				if result.PeerKey != key {
					continue
				}
				stats.Attempts++
				if result.Success {
					stats.Successes++
					latencies = append(latencies, result.LatencyMs)
				}
			}
		}

		totalAttempts += stats.Attempts
		totalSuccesses += stats.Successes
		allLatencies = append(allLatencies, latencies...)

		if stats.Attempts > 0 {
			stats.SuccessRatePercent = round2(float64(stats.Successes) / float64(stats.Attempts) * 100)
		}
		if len(latencies) > 0 {
			avg := round2(lo.Sum(latencies) / float64(len(latencies)))
			stats.AverageLatencyMs = avg
			stats.MinLatencyMs = round2(lo.Min(latencies))
			stats.MaxLatencyMs = round2(lo.Max(latencies))

			if fastest == "" || avg < fastestAvg {
				fastest, fastestAvg = key, avg
			}
			if slowest == "" || avg > slowestAvg {
				slowest, slowestAvg = key, avg
			}
		}
		perPeer[key] = stats
	}

	summary := Summary{
		Rounds:      len(rounds),
		PeerCount:   len(peerKeys),
		FastestPeer: fastest,
		SlowestPeer: slowest,
	}
	if totalAttempts > 0 {
		summary.SuccessRatePercent = round2(float64(totalSuccesses) / float64(totalAttempts) * 100)
	}
	if len(allLatencies) > 0 {
		summary.AverageLatencyMs = round2(lo.Sum(allLatencies) / float64(len(allLatencies)))
	}

	return &Report{Summary: summary, Rounds: rounds, PerPeer: perPeer}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
