// ABOUTME: gRPC-backed agent-run capability streaming turns from the backend
// ABOUTME: Inference happens outside the relay; this is the wire contract to it

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/2389/coven-relay/internal/agent"
	pb "github.com/2389/coven-relay/proto/relay"
)

// GRPCRunner executes agent turns against an external backend over the
// AgentRunner service. Reply texts arrive as a server stream, so output
// callbacks fire while the run is still in flight. It satisfies
// agent.Runner's run capability.
type GRPCRunner struct {
	conn   *grpc.ClientConn
	client pb.AgentRunnerClient
}

// NewGRPCRunner creates a runner for the given backend address
// (host:port). The connection is lazy; dial failures surface on first Run.
func NewGRPCRunner(target string) (*GRPCRunner, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to agent backend: %w", err)
	}
	return &GRPCRunner{conn: conn, client: pb.NewAgentRunnerClient(conn)}, nil
}

// Close releases the backend connection.
func (r *GRPCRunner) Close() error {
	return r.conn.Close()
}

// Run executes one turn, forwarding each streamed text chunk to
// req.OnOutput as it arrives and collecting them into the result.
func (r *GRPCRunner) Run(ctx context.Context, req *agent.RunRequest) (*agent.RunResult, error) {
	env, err := pb.NewRunEnvelope(map[string]any{
		"agent_id":            req.AgentID,
		"session_id":          req.SessionID,
		"session_key":         req.SessionKey,
		"session_file":        req.SessionFile,
		"provider":            req.Provider,
		"model_provider":      req.ModelProvider,
		"model":               req.Model,
		"context_tokens":      req.ContextTokens,
		"prompt":              req.Prompt,
		"extra_system_prompt": req.ExtraSystemPrompt,
		"think_level":         req.ThinkLevel,
		"verbose_level":       req.VerboseLevel,
		"reasoning_level":     req.ReasoningLevel,
		"elevated_level":      req.ElevatedLevel,
		"auth_profile_id":     req.AuthProfileID,
		"workspace_dir":       req.WorkspaceDir,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding run request: %w", err)
	}

	stream, err := r.client.Run(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	var texts []string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("agent backend stream: %w", err)
		}
		switch pb.ChunkType(chunk) {
		case pb.ChunkTypeError:
			return nil, fmt.Errorf("agent backend: %s", pb.ChunkText(chunk))
		case pb.ChunkTypeText:
			text := pb.ChunkText(chunk)
			texts = append(texts, text)
			if req.OnOutput != nil {
				req.OnOutput(text)
			}
		}
	}
	return &agent.RunResult{Texts: texts}, nil
}

// postJSON is a small helper for webhook deliveries.
func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
