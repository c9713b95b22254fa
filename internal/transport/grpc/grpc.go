package grpctransport

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check name reported for the order core.
const ServiceName = "bingham.orders"

const defaultProbeInterval = 10 * time.Second

// probe reports whether a dependency is usable.
type probe func(ctx context.Context) error

// GRPCTransport serves the standard gRPC health protocol for the process.
type GRPCTransport struct {
	server   *grpc.Server
	listener net.Listener
	health   *health.Server
	probes   map[string]probe
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// option is a function that configures the GRPCTransport.
type option func(*GRPCTransport)

// WithProbe adds a dependency check; the service is NOT_SERVING while any
// probe fails.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProbe(name string, p func(ctx context.Context) error) option {
	return func(g *GRPCTransport) {
		g.probes[name] = p
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithProbeInterval(d time.Duration) option {
	return func(g *GRPCTransport) {
		if d > 0 {
			g.interval = d
		}
	}
}

//goland:noinspection GoExportedFuncWithUnexportedType
func WithListener(l net.Listener) option {
	return func(g *GRPCTransport) {
		g.listener = l
	}
}

// NewGRPCTransport creates a new GRPCTransport.
func NewGRPCTransport(opts ...option) *GRPCTransport {
	g := &GRPCTransport{
		server:   newGRPCServer(),
		health:   health.NewServer(),
		probes:   make(map[string]probe),
		interval: defaultProbeInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.listener == nil {
		listener, err := net.Listen("tcp", ":"+viper.GetString("server.grpc.port"))
		if err != nil {
			panic(err)
		}
		g.listener = listener
	}

	g.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return g
}

// Run starts the gRPC server.
func (g *GRPCTransport) Run() error {
	g.RegisterServices()

	g.wg.Add(1)
	go g.watch()

	slog.Info("Starting gRPC server", "address", g.listener.Addr().String())

	return g.server.Serve(g.listener)
}

// Shutdown reports NOT_SERVING and gracefully shuts down the gRPC server.
func (g *GRPCTransport) Shutdown(ctx context.Context) error {
	close(g.stopCh)
	g.wg.Wait()
	g.health.Shutdown()

	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()

		return ctx.Err()
	}
}

// RegisterServices registers the gRPC services.
func (g *GRPCTransport) RegisterServices() {
	healthpb.RegisterHealthServer(g.server, g.health)
	reflection.Register(g.server)
}

func (g *GRPCTransport) watch() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.check()
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.check()
		}
	}
}

// check runs every probe and publishes the combined status.
func (g *GRPCTransport) check() {
	ctx, cancel := context.WithTimeout(context.Background(), g.interval/2)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	for name, p := range g.probes {
		if err := p(ctx); err != nil {
			slog.Warn("Health probe failed", "probe", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	g.health.SetServingStatus(ServiceName, status)
	g.health.SetServingStatus("", status)
}

// newGRPCServer creates a new gRPC server with default settings.
func newGRPCServer() *grpc.Server {
	keepaliveParams := keepalive.ServerParameters{
		MaxConnectionIdle: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_idle"),
		) * time.Minute,
		MaxConnectionAge: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age"),
		) * time.Minute,
		MaxConnectionAgeGrace: time.Duration(
			viper.GetInt("server.grpc.keepalive.max_connection_age_grace"),
		) * time.Second,
		Time: time.Duration(
			viper.GetInt("server.grpc.keepalive.time"),
		) * time.Second,
		Timeout: time.Duration(
			viper.GetInt("server.grpc.keepalive.timeout"),
		) * time.Second,
	}

	keepalivePolicy := keepalive.EnforcementPolicy{
		MinTime: time.Duration(
			viper.GetInt("server.grpc.keepalive.min_time"),
		) * time.Second,
		PermitWithoutStream: viper.GetBool("server.grpc.keepalive.permit_without_stream"),
	}

	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepaliveParams),
		grpc.KeepaliveEnforcementPolicy(keepalivePolicy),
	}

	return grpc.NewServer(opts...)
}
