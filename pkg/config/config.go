package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fystack/peermon/pkg/logger"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// Environment constants
	Production  = "production"
	Development = "development"

	// Ledger storage backends
	StorageTypeBadger   = "badger"
	StorageTypePostgres = "postgres"
	StorageTypeMemory   = "memory"

	defaultStorageType           = "badger"
	defaultBadgerDBPath          = "."
	defaultPingTimeoutMs         = 5000
	defaultMonitorIntervalMs     = 30000
	defaultDiagnosticsRounds     = 3
	defaultDiagnosticsIntervalMs = 1000
	defaultPostgresMaxOpenConns  = 10
	defaultPostgresMaxIdleConns  = 5

	EnvConfigFile = "PEERMON_CONFIG_FILE"
)

type Config struct {
	Consul *ConsulConfig `mapstructure:"consul"`
	NATs   *NATsConfig   `mapstructure:"nats"`

	Environment string `mapstructure:"environment"`

	// Storage configuration for the provisioning ledger
	StorageType             string        `mapstructure:"storage_type"`
	BadgerPassword          string        `mapstructure:"badger_password"`
	DBPath                  string        `mapstructure:"db_path"`
	PostgresDSN             string        `mapstructure:"postgres_dsn"`
	PostgresMaxOpenConns    int           `mapstructure:"postgres_max_open_conns"`
	PostgresMaxIdleConns    int           `mapstructure:"postgres_max_idle_conns"`
	PostgresConnMaxLifetime time.Duration `mapstructure:"postgres_conn_max_lifetime"`

	// Liveness tuning. All durations are millisecond counts so they read
	// the same from YAML and from environment variables.
	PingTimeoutMillis         int `mapstructure:"ping_timeout_ms"`
	MonitorIntervalMillis     int `mapstructure:"monitor_interval_ms"`
	DiagnosticsRounds         int `mapstructure:"diagnostics_rounds"`
	DiagnosticsIntervalMillis int `mapstructure:"diagnostics_interval_ms"`
}

type ConsulConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
}

type NATsConfig struct {
	URL      string     `mapstructure:"url"`
	Username string     `mapstructure:"username"`
	Password string     `mapstructure:"password"`
	TLS      *TLSConfig `mapstructure:"tls"`
}

type TLSConfig struct {
	ClientCert string `mapstructure:"client_cert"`
	ClientKey  string `mapstructure:"client_key"`
	CACert     string `mapstructure:"ca_cert"`
}

var (
	app *Config
	mu  sync.RWMutex
)

func initConfig() error {
	// env
	viper.SetEnvPrefix("PEERMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("environment", Development)
	viper.SetDefault("storage_type", defaultStorageType)
	viper.SetDefault("db_path", defaultBadgerDBPath)
	viper.SetDefault("ping_timeout_ms", defaultPingTimeoutMs)
	viper.SetDefault("monitor_interval_ms", defaultMonitorIntervalMs)
	viper.SetDefault("diagnostics_rounds", defaultDiagnosticsRounds)
	viper.SetDefault("diagnostics_interval_ms", defaultDiagnosticsIntervalMs)
	viper.SetDefault("postgres_max_open_conns", defaultPostgresMaxOpenConns)
	viper.SetDefault("postgres_max_idle_conns", defaultPostgresMaxIdleConns)

	// set env config file
	configFile := os.Getenv(EnvConfigFile)
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/peermon/")
		viper.AddConfigPath("$HOME/.peermon/")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("viper read config: %w", err)
	}

	return nil
}

func SetEnvConfigPath(configPath string) {
	if configPath != "" {
		os.Setenv(EnvConfigFile, configPath)
	}
}

func LoadConfig() (*Config, error) {
	var cfg Config
	decoderConfig := &mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateEnvironment(cfg.Environment); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	setConfig(&cfg)
	return &cfg, nil
}

func Load() (*Config, error) {
	if err := initConfig(); err != nil {
		return nil, err
	}
	return LoadConfig()
}

func validateEnvironment(environment string) error {
	validEnvironments := []string{Production, Development}

	if !slices.Contains(validEnvironments, environment) {
		return fmt.Errorf("invalid environment '%s'. Must be one of: %s", environment, strings.Join(validEnvironments, ", "))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = Development
	}
	if cfg.StorageType == "" {
		cfg.StorageType = defaultStorageType
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultBadgerDBPath
	}
	if cfg.PingTimeoutMillis == 0 {
		cfg.PingTimeoutMillis = defaultPingTimeoutMs
	}
	if cfg.MonitorIntervalMillis == 0 {
		cfg.MonitorIntervalMillis = defaultMonitorIntervalMs
	}
	if cfg.DiagnosticsRounds == 0 {
		cfg.DiagnosticsRounds = defaultDiagnosticsRounds
	}
	if cfg.DiagnosticsIntervalMillis == 0 {
		cfg.DiagnosticsIntervalMillis = defaultDiagnosticsIntervalMs
	}
	if cfg.PostgresMaxOpenConns == 0 {
		cfg.PostgresMaxOpenConns = defaultPostgresMaxOpenConns
	}
	if cfg.PostgresMaxIdleConns == 0 {
		cfg.PostgresMaxIdleConns = defaultPostgresMaxIdleConns
	}
}

func setConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	app = cfg
}

// These helper functions centralize access to runtime configuration data.

// GetConfig returns the in-memory application configuration.
// It terminates the process if the configuration has not been loaded yet.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if app == nil {
		logger.Fatal("configuration not loaded", nil)
	}
	return app
}

// Loaded reports whether Load has run, callers that can fall back to
// built-in defaults check this instead of forcing a config file.
func Loaded() bool {
	mu.RLock()
	defer mu.RUnlock()
	return app != nil
}

// Update applies the provided function while holding the configuration write lock.
// It panics if the configuration has not been loaded yet.
func Update(fn func(cfg *Config)) {
	mu.Lock()
	defer mu.Unlock()
	if app == nil {
		panic("configuration not loaded")
	}
	fn(app)
}

func BadgerPassword() string {
	return GetConfig().BadgerPassword
}

func SetBadgerPassword(password string) {
	Update(func(cfg *Config) {
		cfg.BadgerPassword = password
	})
}

func StorageType() string {
	return GetConfig().StorageType
}

func DBPath() string {
	return GetConfig().DBPath
}

func PostgresDSN() string {
	return GetConfig().PostgresDSN
}

// PingTimeout is the per-probe deadline. Callers that were not handed an
// explicit timeout fall back to this, and to the built-in default when no
// configuration was loaded at all.
func PingTimeout() time.Duration {
	if !Loaded() {
		return defaultPingTimeoutMs * time.Millisecond
	}
	return time.Duration(GetConfig().PingTimeoutMillis) * time.Millisecond
}

// MonitorInterval is the pause between scheduled liveness rounds.
func MonitorInterval() time.Duration {
	if !Loaded() {
		return defaultMonitorIntervalMs * time.Millisecond
	}
	return time.Duration(GetConfig().MonitorIntervalMillis) * time.Millisecond
}

// DiagnosticsRounds is the number of probe rounds a diagnostics run makes.
func DiagnosticsRounds() int {
	if !Loaded() {
		return defaultDiagnosticsRounds
	}
	return GetConfig().DiagnosticsRounds
}

// DiagnosticsInterval is the pause between diagnostics rounds.
func DiagnosticsInterval() time.Duration {
	if !Loaded() {
		return defaultDiagnosticsIntervalMs * time.Millisecond
	}
	return time.Duration(GetConfig().DiagnosticsIntervalMillis) * time.Millisecond
}

func NATs() *NATsConfig {
	return GetConfig().NATs
}

func Environment() string {
	return GetConfig().Environment
}

func IsProduction() bool {
	return strings.EqualFold(Environment(), Production)
}
