package peers

import (
	"strings"

	"github.com/fystack/peermon/pkg/common/errors"
	"github.com/fystack/peermon/pkg/engine"
	"github.com/fystack/peermon/pkg/logger"
)

// Mode tells what kind of manager a robust construction produced.
type Mode string

const (
	// ModeFull is a live manager probing over a session.
	ModeFull Mode = "full"
	// ModeStatic is a roster-only manager, built when the live one
	// could not be.
	ModeStatic Mode = "static"
	// ModeFailed means construction produced no manager at all.
	ModeFailed Mode = "failed"
)

// FallbackMode picks what NewManagerRobust does when the live manager
// cannot be built.
type FallbackMode string

const (
	// FallbackStatic degrades to a static manager. The default.
	FallbackStatic FallbackMode = "static"
	// FallbackDisabled fails construction instead of degrading.
	FallbackDisabled FallbackMode = "disabled"
)

// RobustResult is the uniform outcome of NewManagerRobust. Success with
// ModeStatic means the caller got a manager, just not a probing one,
// the warnings say why.
type RobustResult struct {
	Success  bool     `json:"success"`
	Manager  Manager  `json:"-"`
	Mode     Mode     `json:"mode"`
	Warnings []string `json:"warnings,omitempty"`
	Err      error    `json:"-"`
}

// NewManagerRobust builds a live manager from credentials and never
// panics its caller into handling partial failures: bad credentials, a
// missing session or a construction failure degrade to a static manager
// (or to ModeFailed under FallbackDisabled), with the reasons collected
// in Warnings.
func NewManagerRobust(sess engine.Session, dec engine.Decoder, groupCredential, shareCredential string, cfg Config) RobustResult {
	peerKeys, selfKey, warnings := resolveRoster(dec, groupCredential, shareCredential, cfg.SelfKey)

	if len(warnings) == 0 {
		manager, err := buildLive(sess, peerKeys, cfg)
		if err == nil {
			logger.Info("Robust peer manager built", "mode", ModeFull, "peers", len(peerKeys))
			return RobustResult{Success: true, Manager: manager, Mode: ModeFull}
		}
		warnings = append(warnings, err.Error())
	}

	return fallbackResult(peerKeys, selfKey, warnings, cfg)
}

// resolveRoster decodes the credentials into the peer roster. A bad
// share credential still yields the group's roster as a best effort, a
// bad group credential yields none.
func resolveRoster(dec engine.Decoder, groupCredential, shareCredential, selfKey string) (peerKeys []string, self string, warnings []string) {
	if dec == nil {
		return nil, selfKey, []string{"no credential decoder configured"}
	}

	grp, err := dec.DecodeGroup(groupCredential)
	if err != nil {
		return nil, selfKey, []string{"invalid group credential: " + err.Error()}
	}

	share, err := dec.DecodeShare(shareCredential)
	if err != nil {
		return engine.PeersOf(grp, selfKey), selfKey,
			[]string{"invalid share credential: " + err.Error()}
	}

	return engine.PeersOf(grp, share.PubKey), share.PubKey, nil
}

func buildLive(sess engine.Session, peerKeys []string, cfg Config) (Manager, error) {
	manager, err := NewManager(sess, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "live peer manager unavailable")
	}

	manager.InitializeFromList(peerKeys)

	if cfg.AutoStart {
		if err := manager.StartMonitoring(); err != nil {
			manager.Cleanup()
			return nil, errors.Wrap(err, "monitoring failed to start")
		}
	}
	return manager, nil
}

func fallbackResult(peerKeys []string, selfKey string, warnings []string, cfg Config) RobustResult {
	cause := errors.New("peer manager construction degraded: " + strings.Join(warnings, "; "))

	if cfg.FallbackMode == FallbackDisabled {
		logger.Error("Peer manager construction failed", cause)
		return RobustResult{Mode: ModeFailed, Warnings: warnings, Err: cause}
	}

	warnings = append(warnings, "falling back to static peer manager")
	logger.Warn("Falling back to static peer manager", "reasons", strings.Join(warnings, "; "))
	return RobustResult{
		Success:  true,
		Manager:  NewStaticManager(peerKeys, selfKey, warnings, cfg),
		Mode:     ModeStatic,
		Warnings: warnings,
	}
}
