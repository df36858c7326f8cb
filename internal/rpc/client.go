package rpc

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tiammomo/Shuai-Travel-Agent/internal/rpc/agentpb"
)

// Client wraps a dialed AgentService connection with a channel-based
// streaming API.
type Client struct {
	conn *grpc.ClientConn
	svc  agentpb.AgentServiceClient
}

// Dial connects to the agent service at addr. The connection is lazy; the
// first RPC establishes it.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(agentpb.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect agent service at %s: %w", addr, err)
	}
	return &Client{conn: conn, svc: agentpb.NewAgentServiceClient(conn)}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Process runs one turn and returns the buffered response.
func (c *Client) Process(ctx context.Context, req *agentpb.MessageRequest) (*agentpb.MessageResponse, error) {
	return c.svc.ProcessMessage(ctx, req)
}

// Health probes the agent service.
func (c *Client) Health(ctx context.Context) (*agentpb.HealthCheckResponse, error) {
	return c.svc.HealthCheck(ctx, &agentpb.HealthCheckRequest{})
}

// Stream starts a streaming turn and returns a channel of frames, closed when
// the server finishes. Transport errors surface as a final error frame so
// consumers handle one shape.
func (c *Client) Stream(ctx context.Context, req *agentpb.MessageRequest) (<-chan *agentpb.StreamChunk, error) {
	stream, err := c.svc.StreamMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start message stream: %w", err)
	}

	ch := make(chan *agentpb.StreamChunk, 32)
	go func() {
		defer close(ch)
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- &agentpb.StreamChunk{ChunkType: agentpb.ChunkError, Content: err.Error(), IsLast: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
