package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// GRPCAuthMode selects how gRPC spectators authenticate.
type GRPCAuthMode string

const (
	// GRPCAuthModeNone leaves the spectator service open.
	GRPCAuthModeNone GRPCAuthMode = "none"
	// GRPCAuthModeSharedSecret requires a shared secret in the request metadata.
	GRPCAuthModeSharedSecret GRPCAuthMode = "shared_secret"
	// GRPCAuthModeMTLS requires client certificates signed by the configured CA.
	GRPCAuthModeMTLS GRPCAuthMode = "mtls"
)

const (
	// DefaultAddr is the default TCP address the HTTP and websocket spectator server listens on.
	DefaultAddr = ":43127"
	// DefaultGRPCAddr is the default TCP address of the gRPC spectator service.
	DefaultGRPCAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for websocket spectators.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxClients bounds concurrent websocket spectators. Zero disables the limit.
	DefaultMaxClients = 64
	// DefaultTurnRate is how many turns per second the paced loop advances.
	DefaultTurnRate = 30.0

	// DefaultReplayMaxBundles limits how many replay bundles are retained on disk.
	DefaultReplayMaxBundles = 20
	// DefaultReplayMaxAge bounds how long replay bundles are kept.
	DefaultReplayMaxAge = 7 * 24 * time.Hour

	// DefaultLogLevel controls verbosity for arena logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "arena.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the arena server.
type Config struct {
	Address          string
	GRPCAddress      string
	GRPCAuthMode     GRPCAuthMode
	GRPCSharedSecret string
	GRPCServerCert   string
	GRPCServerKey    string
	GRPCClientCA     string
	WSAuthSecret     string
	AdminToken       string
	AllowedOrigins   []string
	PingInterval     time.Duration
	MaxClients       int
	TurnRate         float64
	Terminal         bool
	BattleFile       string
	ReplayDir        string
	ReplayMaxBundles int
	ReplayMaxAge     time.Duration
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Quiet stops mirroring log lines to stdout.
	Quiet      bool
}

// Load reads the arena configuration from environment variables, applying defaults
// and returning one error that lists every invalid override.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("ARENA_ADDR", DefaultAddr),
		GRPCAddress:      DefaultGRPCAddr,
		GRPCAuthMode:     GRPCAuthModeNone,
		GRPCSharedSecret: strings.TrimSpace(os.Getenv("ARENA_GRPC_SHARED_SECRET")),
		GRPCServerCert:   strings.TrimSpace(os.Getenv("ARENA_GRPC_TLS_CERT")),
		GRPCServerKey:    strings.TrimSpace(os.Getenv("ARENA_GRPC_TLS_KEY")),
		GRPCClientCA:     strings.TrimSpace(os.Getenv("ARENA_GRPC_CLIENT_CA")),
		WSAuthSecret:     strings.TrimSpace(os.Getenv("ARENA_WS_HMAC_SECRET")),
		AdminToken:       strings.TrimSpace(os.Getenv("ARENA_ADMIN_TOKEN")),
		AllowedOrigins:   parseList(os.Getenv("ARENA_ALLOWED_ORIGINS")),
		PingInterval:     DefaultPingInterval,
		MaxClients:       DefaultMaxClients,
		TurnRate:         DefaultTurnRate,
		BattleFile:       strings.TrimSpace(os.Getenv("ARENA_BATTLE_FILE")),
		ReplayDir:        strings.TrimSpace(os.Getenv("ARENA_REPLAY_DIR")),
		ReplayMaxBundles: DefaultReplayMaxBundles,
		ReplayMaxAge:     DefaultReplayMaxAge,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("ARENA_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("ARENA_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	//1.- An explicitly empty gRPC address disables the service.
	if raw, ok := os.LookupEnv("ARENA_GRPC_ADDR"); ok {
		cfg.GRPCAddress = strings.TrimSpace(raw)
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_GRPC_AUTH_MODE")); raw != "" {
		mode := GRPCAuthMode(strings.ToLower(raw))
		switch mode {
		case GRPCAuthModeNone, GRPCAuthModeSharedSecret, GRPCAuthModeMTLS:
			cfg.GRPCAuthMode = mode
		default:
			problems = append(problems, "ARENA_GRPC_AUTH_MODE must be none, shared_secret or mtls, got "+strconv.Quote(raw))
		}
	}
	switch cfg.GRPCAuthMode {
	case GRPCAuthModeSharedSecret:
		if cfg.GRPCSharedSecret == "" {
			problems = append(problems, "ARENA_GRPC_SHARED_SECRET is required for shared_secret auth")
		}
	case GRPCAuthModeMTLS:
		if cfg.GRPCServerCert == "" || cfg.GRPCServerKey == "" || cfg.GRPCClientCA == "" {
			problems = append(problems, "ARENA_GRPC_TLS_CERT, ARENA_GRPC_TLS_KEY and ARENA_GRPC_CLIENT_CA are required for mtls auth")
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, "ARENA_PING_INTERVAL must be a positive duration, got "+strconv.Quote(raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, "ARENA_MAX_CLIENTS must be a non-negative integer, got "+strconv.Quote(raw))
		} else {
			cfg.MaxClients = value
		}
	}

	//2.- A turn rate of zero runs the battle headless as fast as possible.
	if raw := strings.TrimSpace(os.Getenv("ARENA_TURN_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			problems = append(problems, "ARENA_TURN_RATE must be a non-negative number, got "+strconv.Quote(raw))
		} else {
			cfg.TurnRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_TERMINAL")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, "ARENA_TERMINAL must be a boolean value, got "+strconv.Quote(raw))
		} else {
			cfg.Terminal = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_REPLAY_MAX_BUNDLES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, "ARENA_REPLAY_MAX_BUNDLES must be a non-negative integer, got "+strconv.Quote(raw))
		} else {
			cfg.ReplayMaxBundles = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_REPLAY_MAX_AGE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, "ARENA_REPLAY_MAX_AGE must be a non-negative duration, got "+strconv.Quote(raw))
		} else {
			cfg.ReplayMaxAge = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, "ARENA_LOG_MAX_SIZE_MB must be a positive integer, got "+strconv.Quote(raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, "ARENA_LOG_MAX_BACKUPS must be a non-negative integer, got "+strconv.Quote(raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, "ARENA_LOG_MAX_AGE_DAYS must be a non-negative integer, got "+strconv.Quote(raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("ARENA_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, "ARENA_LOG_COMPRESS must be a boolean value, got "+strconv.Quote(raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.GRPCAddress != "" && cfg.GRPCAddress == cfg.Address {
		problems = append(problems, "ARENA_GRPC_ADDR must differ from ARENA_ADDR")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
