package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/accountkeeper/internal/logging"
)

type fakePinger struct {
	failing atomic.Bool
}

func (p *fakePinger) PingContext(context.Context) error {
	if p.failing.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func startServer(t *testing.T, db Pinger) (healthpb.HealthClient, context.CancelFunc, <-chan error) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewGRPCServer("", logging.Nop{}, db)
	s.probeInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		cancel()
	})

	return healthpb.NewHealthClient(conn), cancel, done
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealth_Serving(t *testing.T) {
	c, _, _ := startServer(t, &fakePinger{})

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))
}

func TestHealth_TracksDatabase(t *testing.T) {
	db := &fakePinger{}
	c, _, _ := startServer(t, db)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceName))

	db.failing.Store(true)
	assert.Eventually(t, func() bool {
		return check(t, c, ServiceName) == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	db.failing.Store(false)
	assert.Eventually(t, func() bool {
		return check(t, c, ServiceName) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHealth_UnknownService(t *testing.T) {
	c, _, _ := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	c, cancel, done := startServer(t, nil)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	s := NewGRPCServer("bad-address", logging.Nop{}, nil)
	assert.Error(t, s.Run(context.Background()))
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	s := NewGRPCServer("", logging.Nop{}, nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	boom := status.Error(codes.Unavailable, "down")

	resp, err := s.loggingInterceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		assert.Equal(t, "req", req)
		return "resp", boom
	})

	assert.Equal(t, "resp", resp)
	assert.Equal(t, boom, err)
}
