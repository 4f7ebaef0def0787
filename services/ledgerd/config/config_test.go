package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
tls:
  allow_insecure: true
auth:
  tokens:
    - token: " ops-token "
      address: "0x00000000000000000000000000000000000000a1"
      scopes: ["ledger:admin", " "]
storage:
  path: /var/lib/ledger
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != defaultListen {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.LedgerConfig != "ledger.toml" {
		t.Fatalf("unexpected ledger config %q", cfg.LedgerConfig)
	}
	if cfg.Storage.Backend != StorageLevelDB {
		t.Fatalf("unexpected backend %q", cfg.Storage.Backend)
	}
	if len(cfg.Auth.Tokens) != 1 || cfg.Auth.Tokens[0].Token != "ops-token" {
		t.Fatalf("unexpected tokens %+v", cfg.Auth.Tokens)
	}
	if got := cfg.Auth.Tokens[0].Scopes; len(got) != 1 || got[0] != "ledger:admin" {
		t.Fatalf("unexpected scopes %v", got)
	}
	if cfg.Auth.JWT.ScopeClaim != "scope" || cfg.Auth.JWT.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected jwt defaults %+v", cfg.Auth.JWT)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
grpc_listen: "127.0.0.1:9001"
ledger_config: /etc/ledger/ledger.toml
tls:
  cert: /etc/ledger/tls.crt
  key: /etc/ledger/tls.key
auth:
  jwt:
    hmac_secret: secret
    issuer: ledger-auth
    audience: ledgerd
    clock_skew: 30s
  allow_anonymous_reads: true
storage:
  backend: memory
archive:
  driver: postgres
  dsn: postgres://ledger@db/ledger
stream:
  allowed_origins: [" app.example.com ", "", "*.example.org"]
rate_limit:
  requests_per_minute: 120
log:
  level: debug
  file: /var/log/ledgerd.log
  max_size_mb: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.Storage.Backend != StorageMemory {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.GRPCListenAddress != "127.0.0.1:9001" {
		t.Fatalf("unexpected grpc listen %q", cfg.GRPCListenAddress)
	}
	if got := cfg.Stream.AllowedOrigins; len(got) != 2 || got[0] != "app.example.com" || got[1] != "*.example.org" {
		t.Fatalf("unexpected allowed origins %v", got)
	}
	if cfg.Auth.JWT.ClockSkew != 30*time.Second || !cfg.Auth.AllowAnonymousReads {
		t.Fatalf("unexpected auth %+v", cfg.Auth)
	}
	if cfg.RateLimit.Burst != 1 {
		t.Fatalf("expected burst default of 1, got %d", cfg.RateLimit.Burst)
	}
	if cfg.Archive.Driver != "postgres" || cfg.Log.MaxSizeMB != 50 {
		t.Fatalf("unexpected archive/log %+v %+v", cfg.Archive, cfg.Log)
	}
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	const auth = `
auth:
  tokens:
    - token: t
      address: "0x00000000000000000000000000000000000000a1"
`
	cases := map[string]struct {
		contents string
		want     string
	}{
		"tls required": {
			contents: auth + "storage:\n  backend: memory\n",
			want:     "cert and key are required",
		},
		"no authenticators": {
			contents: "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\n",
			want:     "at least one api token",
		},
		"bad token address": {
			contents: "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\nauth:\n  tokens:\n    - token: t\n      address: alice\n",
			want:     "invalid address",
		},
		"leveldb without path": {
			contents: auth + "tls:\n  allow_insecure: true\n",
			want:     "path required",
		},
		"unknown archive driver": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\narchive:\n  driver: mysql\n  dsn: x\n",
			want:     "unknown driver",
		},
		"archive without dsn": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\narchive:\n  driver: sqlite\n",
			want:     "dsn required",
		},
		"webhook without secret": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\nwebhooks:\n  - url: http://hooks\n",
			want:     "secret required",
		},
		"grpc shares http listener": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\nlisten: 127.0.0.1:9000\ngrpc_listen: 127.0.0.1:9000\n",
			want:     "grpc_listen must differ",
		},
		"malformed origin pattern": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\nstream:\n  allowed_origins: [\"[app\"]\n",
			want:     "allowed_origins[0]",
		},
		"unknown field": {
			contents: auth + "tls:\n  allow_insecure: true\nstorage:\n  backend: memory\ngrpc: true\n",
			want:     "field grpc not found",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
