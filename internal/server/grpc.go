package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/ingestion"
	"github.com/TanmayDhobale/miniForesight/internal/observability"
	"github.com/TanmayDhobale/miniForesight/internal/query"
)

// Credential carriers. The identity header is honoured only when the
// verifier runs in dev mode.
const (
	AuthorizationHeader = "authorization"
	IdentityHeader      = "x-foresight-identity"
)

// GRPCServer wraps the gRPC server and the HTTP/JSON gateway.
type GRPCServer struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	gateway       http.Handler
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// ServerDeps holds all dependencies needed by the Foresight service.
type ServerDeps struct {
	Engine        ingestion.Engine
	QueryService  *query.QueryService
	Verifier      *auth.Verifier
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// NewGRPCServer creates the gRPC server with the Foresight, health and
// reflection services registered, plus the gateway serving the same
// implementation over HTTP.
func NewGRPCServer(grpcAddr, httpAddr string, deps *ServerDeps) (*GRPCServer, error) {
	svc := &foresightService{engine: deps.Engine, qs: deps.QueryService}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(deps.Logger),
			authInterceptor(deps.Verifier),
		),
	)
	RegisterForesightServer(grpcServer, svc)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	gateway, err := NewGateway(svc, deps.Verifier, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	return &GRPCServer{
		grpcServer:    grpcServer,
		gateway:       gateway,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		logger:        deps.Logger,
	}, nil
}

// StartGRPC listens on the configured address and serves until ctx is
// cancelled.
func (s *GRPCServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves gRPC on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// Handler returns the HTTP handler: gateway routes plus health endpoints.
func (s *GRPCServer) Handler() http.Handler {
	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	httpMux.Handle("/", s.gateway)
	return httpMux
}

// StartHTTPGateway serves the HTTP/JSON gateway until ctx is cancelled.
func (s *GRPCServer) StartHTTPGateway(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// Interceptors
// ============================================================================

// authInterceptor resolves the caller from request metadata. Requests
// without credentials proceed anonymously; operations that need a caller
// reject them.
func authInterceptor(v *auth.Verifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var token, claimed string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(AuthorizationHeader); len(vals) > 0 {
				token = auth.BearerToken(vals[0])
			}
			if vals := md.Get(IdentityHeader); len(vals) > 0 {
				claimed = vals[0]
			}
		}

		if token != "" || claimed != "" {
			identity, err := v.Identify(token, claimed)
			if errors.Is(err, auth.ErrMissingCredentials) {
				return nil, status.Error(codes.Unauthenticated, "bearer token required")
			} else if err != nil {
				return nil, status.Error(codes.Unauthenticated, "invalid token")
			}
			ctx = auth.WithIdentity(ctx, identity)
		}

		resp, err := handler(ctx, req)
		return resp, toStatus(err)
	}
}

func loggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		evt := logger.Debug()
		if code == codes.Internal || code == codes.Unknown {
			evt = logger.Error().Err(err)
		}
		evt.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("rpc")
		return resp, err
	}
}
