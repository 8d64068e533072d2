package nsfw

import (
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config holds configuration for a detector client.
// Shared by the gRPC and HTTP clients.
type Config struct {
	Address string        // gRPC "host:port" or HTTP base URL
	Timeout time.Duration // Per-request timeout
}

// DefaultConfig returns a default config.
func DefaultConfig(addr string) Config {
	return Config{
		Address: addr,
		Timeout: 5 * time.Second,
	}
}

// Dial creates a new gRPC client connection from config.
// Caller is responsible for closing the connection.
func Dial(cfg Config) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("nsfw: failed to dial %s: %w", cfg.Address, err)
	}
	return conn, nil
}
