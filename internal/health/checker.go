// Package health reports readiness of the bot's dependencies through the standard
// grpc.health.v1 service.
package health

import (
	"context"
	"fmt"
	"log"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the grpc.health.v1 service name reported for the bot itself.
const Service = "trialgate.Bot"

// Pinger is used to check database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker verifies the access policy engine can evaluate (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker periodically checks dependencies and publishes the result on a health server.
type Checker struct {
	pinger   Pinger
	policy   PolicyChecker
	server   *grpchealth.Server
	interval time.Duration
	timeout  time.Duration
}

// NewChecker returns a Checker publishing to server. pinger and policy may be nil, in which
// case that check is skipped.
func NewChecker(server *grpchealth.Server, pinger Pinger, policy PolicyChecker, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Checker{
		pinger:   pinger,
		policy:   policy,
		server:   server,
		interval: interval,
		timeout:  5 * time.Second,
	}
}

// Check runs every dependency check once and returns the first failure.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return fmt.Errorf("policy engine: %w", err)
		}
	}
	return nil
}

// Update runs the checks and sets the serving status of both the overall ("") and the bot service.
func (c *Checker) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := c.Check(ctx); err != nil {
		log.Printf("health: not serving: %v", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(Service, status)
	return status
}

// Run updates the status immediately and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.Update(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Update(ctx)
		}
	}
}
