package rpc

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"synthledger/services/ledgerd/server"
)

// Config captures the settings required to construct gRPC server options.
type Config struct {
	TLS         *tls.Config
	Auth        *server.Authenticator
	RateLimiter *server.RateLimiter
	Logger      *slog.Logger
}

// ServerOptions builds TLS credentials and the interceptor chain. Tracing
// runs first and authentication last.
func ServerOptions(cfg Config) []grpc.ServerOption {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	unaryChain := []grpc.UnaryServerInterceptor{
		otelgrpc.UnaryServerInterceptor(),
		loggingUnaryInterceptor(logger),
		recoveryUnaryInterceptor(logger),
		rateLimitUnaryInterceptor(cfg.RateLimiter),
		authUnaryInterceptor(cfg.Auth),
	}
	streamChain := []grpc.StreamServerInterceptor{
		otelgrpc.StreamServerInterceptor(),
		loggingStreamInterceptor(logger),
		recoveryStreamInterceptor(logger),
		rateLimitStreamInterceptor(cfg.RateLimiter),
		authStreamInterceptor(cfg.Auth),
	}
	options := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unaryChain...),
		grpc.ChainStreamInterceptor(streamChain...),
	}
	if cfg.TLS != nil {
		options = append(options, grpc.Creds(credentials.NewTLS(cfg.TLS)))
	}
	return options
}

func authUnaryInterceptor(auth *server.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, auth, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func authStreamInterceptor(auth *server.Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), auth, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, auth *server.Authenticator, fullMethod string) (context.Context, error) {
	if auth == nil {
		return ctx, status.Error(codes.Internal, "authenticator unavailable")
	}
	token := bearerToken(ctx)
	if token == "" {
		if readOnlyMethods[fullMethod] && auth.AnonymousReads() {
			return ctx, nil
		}
		return ctx, status.Error(codes.Unauthenticated, "missing bearer token")
	}
	principal, err := auth.Authenticate(token)
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "invalid token")
	}
	return server.WithPrincipal(ctx, principal), nil
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, header := range md.Get("authorization") {
		scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
		if found && strings.EqualFold(scheme, "bearer") {
			if trimmed := strings.TrimSpace(token); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }

func rateLimitUnaryInterceptor(limiter *server.RateLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !limiter.Allow(peerID(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func rateLimitStreamInterceptor(limiter *server.RateLimiter) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !limiter.Allow(peerID(ss.Context())) {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(srv, ss)
	}
}

func peerID(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func loggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (_ any, err error) {
		start := time.Now()
		defer func() {
			logger.Debug("grpc unary", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		}()
		return handler(ctx, req)
	}
}

func loggingStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() {
			logger.Debug("grpc stream", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
		}()
		return handler(srv, ss)
	}
}

func recoveryUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (_ any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in unary handler", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStreamInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in stream handler", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}
