package handler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// InwardServiceName is the service name reported through grpc.health.v1.
const InwardServiceName = "jobcard.Inward"

// PingFunc checks one backing dependency.
type PingFunc func(ctx context.Context) error

// HealthReporter keeps the gRPC health status in line with store reachability.
type HealthReporter struct {
	server   *health.Server
	checks   map[string]PingFunc
	interval time.Duration
	log      logrus.FieldLogger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(checks map[string]PingFunc, interval time.Duration, log logrus.FieldLogger) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &HealthReporter{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		log:      log.WithField("module", "grpc_health"),
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}
}

// NewGRPCServer registers the health service and reflection.
func NewGRPCServer(reporter *HealthReporter, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, reporter.server)
	reflection.Register(s)
	return s
}

// Run probes every interval until ctx ends, then marks everything NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check probes every dependency once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, ping := range h.checks {
		pingCtx, cancel := context.WithTimeout(ctx, h.interval/2)
		err := ping(pingCtx)
		cancel()
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			h.log.WithError(err).WithField("dependency", name).Warn("health probe failed")
		}
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(InwardServiceName, status)

	h.mu.Lock()
	if status != h.last {
		h.log.WithField("status", status.String()).Info("serving status changed")
		h.last = status
	}
	h.mu.Unlock()

	return status
}
