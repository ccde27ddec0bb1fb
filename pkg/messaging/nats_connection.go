package messaging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/fystack/peermon/pkg/config"
	"github.com/fystack/peermon/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	// Default certificate paths
	defaultCertsDir   = "certs"
	defaultClientCert = "client-cert.pem"
	defaultClientKey  = "client-key.pem"
	defaultCACert     = "rootCA.pem"

	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// GetNATSConnection creates a NATS connection with proper TLS configuration
func GetNATSConnection() (*nats.Conn, error) {
	cfg := config.GetConfig()
	environment := cfg.Environment

	url := cfg.NATs.URL
	opts := defaultOptions()

	if environment == config.Production {
		tlsOpts, err := buildTLSOptions(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tlsOpts...)
	}

	return connect(url, opts)
}

// ConnectToRelays dials an explicit relay set, comma-joined the way the
// NATS client expects a server list. Used when the relay URLs come from
// the caller instead of the loaded configuration.
func ConnectToRelays(relayURLs []string, extra ...nats.Option) (*nats.Conn, error) {
	if len(relayURLs) == 0 {
		return nil, fmt.Errorf("no relay urls provided")
	}
	opts := append(defaultOptions(), extra...)
	return connect(strings.Join(relayURLs, ","), opts)
}

// connect retries the initial dial a few times, after that the client's
// own reconnect loop takes over.
func connect(url string, opts []nats.Option) (*nats.Conn, error) {
	var nc *nats.Conn
	err := retry.Do(
		func() error {
			var dialErr error
			nc, dialErr = nats.Connect(url, opts...)
			return dialErr
		},
		retry.Attempts(connectAttempts),
		retry.Delay(connectDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying NATS connection", "attempt", n+1, "error", err.Error())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func defaultOptions() []nats.Option {
	return []nats.Option{
		nats.MaxReconnects(-1), // retry forever
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectHandler(func(nc *nats.Conn) {
			logger.Warn("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed!")
		}),
	}
}

// buildTLSOptions constructs TLS options for NATS connection
func buildTLSOptions(cfg *config.Config) ([]nats.Option, error) {
	certPaths := getCertificatePaths(cfg)

	// Validate certificate files exist
	if err := validateCertificateFiles(certPaths); err != nil {
		return nil, err
	}

	return []nats.Option{
		nats.ClientCert(certPaths.ClientCert, certPaths.ClientKey),
		nats.RootCAs(certPaths.CACert),
		nats.UserInfo(cfg.NATs.Username, cfg.NATs.Password),
	}, nil
}

// certificatePaths holds the paths to certificate files
type certificatePaths struct {
	ClientCert string
	ClientKey  string
	CACert     string
}

// getCertificatePaths returns certificate paths with fallback to defaults
func getCertificatePaths(cfg *config.Config) certificatePaths {
	paths := certificatePaths{}

	// Use configured paths if available
	if cfg.NATs.TLS != nil {
		paths.ClientCert = cfg.NATs.TLS.ClientCert
		paths.ClientKey = cfg.NATs.TLS.ClientKey
		paths.CACert = cfg.NATs.TLS.CACert
	}

	// Fallback to default paths if not configured
	if paths.ClientCert == "" {
		paths.ClientCert = filepath.Join(".", defaultCertsDir, defaultClientCert)
	}
	if paths.ClientKey == "" {
		paths.ClientKey = filepath.Join(".", defaultCertsDir, defaultClientKey)
	}
	if paths.CACert == "" {
		paths.CACert = filepath.Join(".", defaultCertsDir, defaultCACert)
	}

	return paths
}

// validateCertificateFiles checks if all required certificate files exist
func validateCertificateFiles(paths certificatePaths) error {
	requiredFiles := map[string]string{
		"client certificate": paths.ClientCert,
		"client key":         paths.ClientKey,
		"CA certificate":     paths.CACert,
	}

	for name, path := range requiredFiles {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("%s not found at %s", name, path)
		}
	}

	return nil
}
