package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen  = ":8090"
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
)

// Config captures the runtime settings for the ledger daemon.
type Config struct {
	ListenAddress     string          `yaml:"listen"`
	GRPCListenAddress string          `yaml:"grpc_listen"`
	LedgerConfig      string          `yaml:"ledger_config"`
	TLS               TLSConfig       `yaml:"tls"`
	Auth              AuthConfig      `yaml:"auth"`
	Storage           StorageConfig   `yaml:"storage"`
	Archive           ArchiveConfig   `yaml:"archive"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	Stream            StreamConfig    `yaml:"stream"`
	Webhooks          []WebhookConfig `yaml:"webhooks"`
	Log               LogConfig       `yaml:"log"`
}

// TLSConfig describes the TLS material for the HTTP server.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	ClientCAPath  string `yaml:"client_ca"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// TokenConfig binds a static bearer token to the ledger address it acts as.
type TokenConfig struct {
	Token   string   `yaml:"token"`
	Address string   `yaml:"address"`
	Scopes  []string `yaml:"scopes"`
}

// JWTConfig accepts HS256 bearer tokens whose subject is the caller address.
type JWTConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scope_claim"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// AuthConfig lists the authenticators accepted by the service.
type AuthConfig struct {
	Tokens              []TokenConfig `yaml:"tokens"`
	JWT                 JWTConfig     `yaml:"jwt"`
	AllowAnonymousReads bool          `yaml:"allow_anonymous_reads"`
}

// StreamConfig restricts which browser origins may open the websocket event
// stream. Hosts follow path.Match patterns; an empty list admits only
// same-origin requests.
type StreamConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// ArchiveConfig enables the SQL event archive when Driver is set.
type ArchiveConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// WebhookConfig forwards committed events whose type matches Events to URL.
// An entry ending in "." matches a whole event family such as "rewards.".
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// RateLimitConfig throttles each client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.GRPCListenAddress = strings.TrimSpace(cfg.GRPCListenAddress)
	cfg.LedgerConfig = strings.TrimSpace(cfg.LedgerConfig)
	if cfg.LedgerConfig == "" {
		cfg.LedgerConfig = "ledger.toml"
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.TLS.ClientCAPath = strings.TrimSpace(cfg.TLS.ClientCAPath)
	cfg.Auth.normalize()
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageLevelDB
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Archive.Driver = strings.ToLower(strings.TrimSpace(cfg.Archive.Driver))
	cfg.Archive.DSN = strings.TrimSpace(cfg.Archive.DSN)
	origins := make([]string, 0, len(cfg.Stream.AllowedOrigins))
	for _, origin := range cfg.Stream.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.Stream.AllowedOrigins = origins
	if cfg.RateLimit.Burst <= 0 && cfg.RateLimit.RequestsPerMinute > 0 {
		cfg.RateLimit.Burst = 1
	}
}

func (cfg *AuthConfig) normalize() {
	tokens := make([]TokenConfig, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		token.Token = strings.TrimSpace(token.Token)
		token.Address = strings.TrimSpace(token.Address)
		if token.Token == "" {
			continue
		}
		scopes := make([]string, 0, len(token.Scopes))
		for _, scope := range token.Scopes {
			if trimmed := strings.TrimSpace(scope); trimmed != "" {
				scopes = append(scopes, trimmed)
			}
		}
		token.Scopes = scopes
		tokens = append(tokens, token)
	}
	cfg.Tokens = tokens
	cfg.JWT.HMACSecret = strings.TrimSpace(cfg.JWT.HMACSecret)
	if cfg.JWT.ScopeClaim == "" {
		cfg.JWT.ScopeClaim = "scope"
	}
	if cfg.JWT.ClockSkew <= 0 {
		cfg.JWT.ClockSkew = 2 * time.Minute
	}
}

func (cfg *Config) validate() error {
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	switch cfg.Storage.Backend {
	case StorageMemory:
	case StorageLevelDB:
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage: path required for leveldb backend")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.Storage.Backend)
	}
	switch cfg.Archive.Driver {
	case "":
	case "sqlite", "postgres":
		if cfg.Archive.DSN == "" {
			return fmt.Errorf("archive: dsn required for %s", cfg.Archive.Driver)
		}
	default:
		return fmt.Errorf("archive: unknown driver %q", cfg.Archive.Driver)
	}
	if cfg.GRPCListenAddress != "" && cfg.GRPCListenAddress == cfg.ListenAddress {
		return fmt.Errorf("grpc_listen must differ from listen")
	}
	for i, origin := range cfg.Stream.AllowedOrigins {
		if _, err := path.Match(origin, ""); err != nil {
			return fmt.Errorf("stream: allowed_origins[%d]: %w", i, err)
		}
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit: requests_per_minute must be non-negative")
	}
	for i, hook := range cfg.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d]: url required", i)
		}
		if strings.TrimSpace(hook.Secret) == "" {
			return fmt.Errorf("webhooks[%d]: secret required", i)
		}
	}
	return nil
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	if cfg.ClientCAPath != "" && !hasCert {
		return fmt.Errorf("client_ca requires a server certificate and key")
	}
	return nil
}

func (cfg AuthConfig) validate() error {
	if len(cfg.Tokens) == 0 && cfg.JWT.HMACSecret == "" {
		return fmt.Errorf("at least one api token or a jwt hmac_secret must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for i, token := range cfg.Tokens {
		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("tokens[%d]: invalid address %q", i, token.Address)
		}
		if _, dup := seen[token.Token]; dup {
			return fmt.Errorf("tokens[%d]: duplicate token", i)
		}
		seen[token.Token] = struct{}{}
	}
	return nil
}
