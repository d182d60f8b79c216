package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer serves on a loopback port and stops the server on cleanup.
func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(nil)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		assert.NoError(t, <-done)
	})
	return srv, lis.Addr().String()
}

func TestProbe_ServingTransitions(t *testing.T) {
	srv, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv.SetServing(ServiceDeadline, true)
	got, err := Probe(ctx, addr, ServiceDeadline)
	require.NoError(t, err)
	assert.Equal(t, StatusServing, got)

	srv.SetServing(ServiceDeadline, false)
	got, err = Probe(ctx, addr, ServiceDeadline)
	require.NoError(t, err)
	assert.Equal(t, StatusNotServing, got)
}

func TestProbe_UnknownService(t *testing.T) {
	_, addr := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := Probe(ctx, addr, "nobody.home")
	require.NoError(t, err)
	assert.Equal(t, StatusServiceUnknown, got)
}

func TestProbe_Unreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	got, err := Probe(ctx, addr, ServiceDeadline)
	assert.Error(t, err)
	assert.Equal(t, StatusUnknown, got)
}

type fakeHealth struct {
	healthpb.HealthClient
	resp *healthpb.HealthCheckResponse
	err  error
}

func (f fakeHealth) Check(context.Context, *healthpb.HealthCheckRequest, ...grpc.CallOption) (*healthpb.HealthCheckResponse, error) {
	return f.resp, f.err
}

func TestClientWithService(t *testing.T) {
	tests := []struct {
		name    string
		fake    fakeHealth
		want    Status
		wantErr bool
	}{
		{"serving", fakeHealth{resp: &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}}, StatusServing, false},
		{"not serving", fakeHealth{resp: &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}}, StatusNotServing, false},
		{"unknown enum", fakeHealth{resp: &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_UNKNOWN}}, StatusUnknown, false},
		{"transport error", fakeHealth{err: errors.New("broken pipe")}, StatusUnknown, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClientWithService(tc.fake)
			defer c.Close()
			got, err := c.Check(context.Background(), ServiceState)
			assert.Equal(t, tc.want, got)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
