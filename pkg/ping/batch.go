package ping

import (
	"context"
	"sync"

	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/types"
)

// PingPeers probes every key concurrently. The result slice matches the
// input order, an empty input returns an empty slice without touching
// the session.
func PingPeers(ctx context.Context, sess engine.Session, peerKeys []string, opts *Options) []types.PingResult {
	results, _ := pingAll(ctx, sess, peerKeys, opts)
	return results
}

// pingAll is PingPeers plus the session-level error, for callers that
// report round failures separately from per-peer failures.
func pingAll(ctx context.Context, sess engine.Session, peerKeys []string, opts *Options) ([]types.PingResult, error) {
	if len(peerKeys) == 0 {
		return []types.PingResult{}, nil
	}

	if err := sessionReady(sess); err != nil {
		results := make([]types.PingResult, len(peerKeys))
		for i, key := range peerKeys {
			results[i] = types.FailureResult(key, err.Error())
		}
		return results, err
	}

	results := make([]types.PingResult, len(peerKeys))
	var wg sync.WaitGroup
	for i, key := range peerKeys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			results[i] = PingPeer(ctx, sess, key, opts)
		}(i, key)
	}
	wg.Wait()

	return results, nil
}
