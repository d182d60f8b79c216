package health

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// #region types

// Status is a probe outcome.
type Status string

const (
	StatusServing        Status = "SERVING"
	StatusNotServing     Status = "NOT_SERVING"
	StatusUnknown        Status = "UNKNOWN"
	StatusServiceUnknown Status = "SERVICE_UNKNOWN"
)

// #endregion types

// #region client-struct

// Client wraps a health connection to one address.
type Client struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
}

// #endregion client-struct

// #region constructor

// NewClient creates a lazy plaintext connection to addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, client: healthpb.NewHealthClient(conn)}, nil
}

// NewClientWithService wraps an existing health client. Used in tests.
func NewClientWithService(svc healthpb.HealthClient) *Client {
	return &Client{client: svc}
}

// Close shuts down the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

// #region check

// Check asks for service's status. An unregistered service is reported as
// StatusServiceUnknown rather than an error.
func (c *Client) Check(ctx context.Context, service string) (Status, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if status.Code(err) == codes.NotFound {
		return StatusServiceUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("health check %q: %w", service, err)
	}
	switch resp.GetStatus() {
	case healthpb.HealthCheckResponse_SERVING:
		return StatusServing, nil
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return StatusNotServing, nil
	case healthpb.HealthCheckResponse_SERVICE_UNKNOWN:
		return StatusServiceUnknown, nil
	default:
		return StatusUnknown, nil
	}
}

// Probe dials addr, checks service once and closes the connection.
func Probe(ctx context.Context, addr, service string) (Status, error) {
	c, err := NewClient(addr)
	if err != nil {
		return StatusUnknown, err
	}
	defer c.Close()
	return c.Check(ctx, service)
}

// #endregion check
