package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"

	ledgerconfig "synthledger/config"
	"synthledger/core/events"
	"synthledger/integrations/eventlog"
	"synthledger/integrations/webhooks"
	"synthledger/native/ledger"
	"synthledger/native/oracle"
	"synthledger/observability/logging"
	"synthledger/observability/metrics"
	telemetry "synthledger/observability/otel"
	"synthledger/services/ledgerd/config"
	"synthledger/services/ledgerd/rpc"
	"synthledger/services/ledgerd/server"
	"synthledger/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ledgerd/config.yaml", "path to ledgerd config")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("ledgerd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("LEDGER_ENV"))
	logger, logCloser := logging.Setup("ledgerd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.FromEnv("ledgerd", env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	ledgerCfg, err := ledgerconfig.Load(cfg.LedgerConfig)
	if err != nil {
		return fmt.Errorf("load ledger config: %w", err)
	}
	params, err := ledgerCfg.Params()
	if err != nil {
		return fmt.Errorf("ledger params: %w", err)
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	prices := oracle.NewStatic(params.OracleMaxAge)
	pauses := ledgerCfg.Pauses.PauseSet()
	broker := events.NewBroker(256)
	httpMetrics := metrics.HTTP()

	emitters := events.MultiEmitter{broker}
	var archive *eventlog.Archive
	if cfg.Archive.Driver != "" {
		gormDB, err := eventlog.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			return fmt.Errorf("open event archive: %w", err)
		}
		if archive, err = eventlog.New(gormDB, logger); err != nil {
			return fmt.Errorf("init event archive: %w", err)
		}
		defer archive.Close()
		archive.SetMetrics(httpMetrics)
		emitters = append(emitters, archive)
	}

	for _, hook := range cfg.Webhooks {
		dispatcher, err := webhooks.NewDispatcher(hook.URL, []byte(hook.Secret),
			webhooks.WithTopics(hook.Events...),
			webhooks.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("webhook %s: %w", hook.URL, err)
		}
		defer dispatcher.Close()
		emitters = append(emitters, dispatcher)
	}

	engine := ledger.NewEngine(db)
	engine.SetOracle(prices)
	engine.SetPauses(pauses)
	engine.SetLogger(logger)
	engine.SetMetrics(metrics.Ledger())
	engine.SetEmitter(emitters)

	if err := ledgerconfig.Apply(context.Background(), ledgerCfg, engine, prices); err != nil {
		return fmt.Errorf("apply ledger config: %w", err)
	}

	auth, err := buildAuthenticator(cfg.Auth, logger)
	if err != nil {
		return err
	}

	tlsCfg, err := loadServerTLS(cfg.TLS)
	if err != nil {
		return fmt.Errorf("configure tls: %w", err)
	}
	listener, err := listen(cfg.ListenAddress, tlsCfg, env)
	if err != nil {
		return err
	}
	var grpcListener net.Listener
	if cfg.GRPCListenAddress != "" {
		if grpcListener, err = listen(cfg.GRPCListenAddress, tlsCfg, env); err != nil {
			_ = listener.Close()
			return err
		}
	}

	limiter := server.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, httpMetrics)
	api := server.New(server.Config{
		Engine:         engine,
		Oracle:         prices,
		Pauses:         pauses,
		Broker:         broker,
		Archive:        archive,
		Auth:           auth,
		RateLimiter:    limiter,
		Metrics:        httpMetrics,
		Logger:         logger,
		AllowedOrigins: cfg.Stream.AllowedOrigins,
	})
	httpServer := &http.Server{
		Handler:           api.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("ledgerd listening", slog.String("listen", cfg.ListenAddress), slog.Bool("tls", tlsCfg != nil))
		if tlsCfg != nil {
			serverErr <- httpServer.ServeTLS(listener, "", "")
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	var grpcServer *grpc.Server
	if grpcListener != nil {
		grpcServer = grpc.NewServer(rpc.ServerOptions(rpc.Config{
			TLS:         tlsCfg,
			Auth:        auth,
			RateLimiter: limiter,
			Logger:      logger,
		})...)
		rpc.Register(grpcServer, rpc.New(engine, broker, logger))
		go func() {
			logger.Info("ledgerd grpc listening", slog.String("listen", cfg.GRPCListenAddress))
			if err := grpcServer.Serve(grpcListener); err != nil {
				serverErr <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if grpcServer != nil {
			stopGRPC(shutdownCtx, grpcServer)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if grpcServer != nil {
			grpcServer.Stop()
		}
		_ = httpServer.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// listen opens a TCP listener. Plaintext listeners must be loopback unless
// LEDGER_ENV is dev.
func listen(addr string, tlsCfg *tls.Config, env string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if tlsCfg == nil {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return nil, errors.New("plaintext ledgerd mode is restricted to loopback listeners or dev environment")
		}
	}
	return listener, nil
}

func stopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
		}
		return db, nil
	}
}

func buildAuthenticator(cfg config.AuthConfig, logger *slog.Logger) (*server.Authenticator, error) {
	tokens := make([]server.StaticToken, 0, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		if !common.IsHexAddress(token.Address) {
			return nil, fmt.Errorf("auth: token address %q invalid", token.Address)
		}
		tokens = append(tokens, server.StaticToken{
			Token:   token.Token,
			Address: common.HexToAddress(token.Address),
			Scopes:  token.Scopes,
		})
	}
	return server.NewAuthenticator(server.AuthConfig{
		Tokens:              tokens,
		HMACSecret:          cfg.JWT.HMACSecret,
		Issuer:              cfg.JWT.Issuer,
		Audience:            cfg.JWT.Audience,
		ScopeClaim:          cfg.JWT.ScopeClaim,
		ClockSkew:           cfg.JWT.ClockSkew,
		AllowAnonymousReads: cfg.AllowAnonymousReads,
	}, logger), nil
}

func loadServerTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, fmt.Errorf("tls credentials are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read client ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse client ca: invalid pem data")
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}
