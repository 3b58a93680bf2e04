package health

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func servingStatus(t *testing.T, srv *grpchealth.Server, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.GetStatus()
}

func TestUpdate(t *testing.T) {
	testCases := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		want    healthpb.HealthCheckResponse_ServingStatus
		errPart string
	}{
		{"no dependencies", nil, nil, healthpb.HealthCheckResponse_SERVING, ""},
		{"all healthy", &mockPinger{}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_SERVING, ""},
		{"database down", &mockPinger{pingErr: errors.New("connection refused")}, &mockPolicyChecker{}, healthpb.HealthCheckResponse_NOT_SERVING, "database"},
		{"policy broken", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("compile error")}, healthpb.HealthCheckResponse_NOT_SERVING, "policy engine"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := grpchealth.NewServer()
			c := NewChecker(srv, tc.pinger, tc.policy, 0)

			err := c.Check(context.Background())
			if tc.errPart == "" && err != nil {
				t.Fatalf("Check: %v", err)
			}
			if tc.errPart != "" && (err == nil || !strings.Contains(err.Error(), tc.errPart)) {
				t.Fatalf("Check err = %v, want mention of %q", err, tc.errPart)
			}

			if got := c.Update(context.Background()); got != tc.want {
				t.Errorf("Update = %v, want %v", got, tc.want)
			}
			for _, service := range []string{"", Service} {
				if got := servingStatus(t, srv, service); got != tc.want {
					t.Errorf("status(%q) = %v, want %v", service, got, tc.want)
				}
			}
		})
	}
}

func TestRun_PublishesStatus(t *testing.T) {
	srv := grpchealth.NewServer()
	pinger := &mockPinger{pingErr: errors.New("down")}
	c := NewChecker(srv, pinger, nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for servingStatus(t, srv, Service) != healthpb.HealthCheckResponse_NOT_SERVING && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := servingStatus(t, srv, Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", got)
	}
	cancel()
	<-done
}

func TestNewChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(grpchealth.NewServer(), nil, nil, -1)
	if c.interval != 15*time.Second {
		t.Errorf("interval = %v, want 15s", c.interval)
	}
}
