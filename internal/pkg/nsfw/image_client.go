package nsfw

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// ServiceName is the detector gRPC service, also used for health checks.
	ServiceName  = "nudenet.v1.Detector"
	detectMethod = "/" + ServiceName + "/Detect"
)

// ImageClient is a gRPC client for the body-part detector.
type ImageClient struct {
	config Config
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewImageClient creates a new gRPC detector client.
func NewImageClient(cfg Config) (*ImageClient, error) {
	conn, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	return &ImageClient{
		config: cfg,
		conn:   conn,
		health: healthpb.NewHealthClient(conn),
	}, nil
}

// Close closes the gRPC connection.
func (c *ImageClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Detect runs detection on raw image bytes.
func (c *ImageClient) Detect(ctx context.Context, imageData []byte, filename string) (*DetectResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp := new(DetectResponse)
	req := &DetectRequest{ImageData: imageData, Filename: filename}
	if err := c.conn.Invoke(ctx, detectMethod, req, resp); err != nil {
		return nil, fmt.Errorf("nsfw image Detect failed: %w", err)
	}
	return resp, nil
}

// DetectFile reads an image from disk and runs detection on it.
func (c *ImageClient) DetectFile(ctx context.Context, path string) (*DetectResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nsfw: read image: %w", err)
	}
	return c.Detect(ctx, data, filepath.Base(path))
}

// Ping checks if the detector service is serving.
func (c *ImageClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName},
		grpc.CallContentSubtype("proto"))
	if err != nil {
		return fmt.Errorf("nsfw image health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("nsfw image service unhealthy: %s", resp.GetStatus())
	}
	return nil
}
