package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/hope-map/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ResponseServiceName is the gRPC service that generates replies.
	ResponseServiceName = "hope.v1.ResponseService"
	generateMethod      = "/" + ResponseServiceName + "/Generate"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errNotServing               = errors.New("response service not serving")
)

// GrpcClient calls a response-generation service over gRPC. Requests and
// replies are google.protobuf.Struct values:
//
//	request:  {"messages": [{"role": "...", "content": "..."}]}
//	response: {"response": "..."}
type GrpcClient struct {
	conn   *grpc.ClientConn
	health grpc_health_v1.HealthClient
	addr   string
	logger *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	// DialOptions are appended to the defaults; tests use them to dial bufconn.
	DialOptions []grpc.DialOption
}

func (c *GrpcClientConfig) setDefaults() {
	if c.Address == "" {
		c.Address = "localhost:5002"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.KeepaliveTime <= 0 {
		c.KeepaliveTime = 2 * time.Minute
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 10 * time.Second
	}
}

// NewGrpcClient connects to the response service and waits until the
// connection is ready, so a bad address fails at startup.
func NewGrpcClient(ctx context.Context, cfg GrpcClientConfig, logger *slog.Logger) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.setDefaults()

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gRPC client for %s: %w", cfg.Address, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("response service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to response service", "address", cfg.Address)

	return &GrpcClient{
		conn:   conn,
		health: grpc_health_v1.NewHealthClient(conn),
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Health asks the standard gRPC health service whether the response service
// is serving.
func (c *GrpcClient) Health(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ResponseServiceName})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

// Generate sends the prompt and returns the service's reply text.
func (c *GrpcClient) Generate(ctx context.Context, messages []domain.ChatTurn) (string, error) {
	req, err := encodeMessages(messages)
	if err != nil {
		return "", err
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, generateMethod, req, resp); err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}

	text := resp.GetFields()["response"].GetStringValue()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func encodeMessages(turns []domain.ChatTurn) (*structpb.Struct, error) {
	list := make([]any, 0, len(turns))
	for _, t := range turns {
		list = append(list, map[string]any{
			"role":    openAIRole(t.Role),
			"content": t.Text,
		})
	}
	req, err := structpb.NewStruct(map[string]any{"messages": list})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	return req, nil
}
