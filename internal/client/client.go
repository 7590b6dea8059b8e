// Package client talks to a running mailingestd over its Unix socket.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client wraps the gRPC connection to a run.
type Client struct {
	conn   *grpc.ClientConn
	Health healthpb.HealthClient
}

// New dials the run's Unix domain socket. The connection is established
// lazily on the first call.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}

	return &Client{
		conn:   conn,
		Health: healthpb.NewHealthClient(conn),
	}, nil
}

// Check returns the health of service ("" for the whole run).
func (c *Client) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	resp, err := c.Health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return resp, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
