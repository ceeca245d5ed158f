// ABOUTME: Relay server - wires store, tracker, lanes, and orchestrator behind HTTP
// ABOUTME: POST /inbound admits one message; GET /health reports liveness

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-relay/internal/agent"
	"github.com/2389/coven-relay/internal/config"
	"github.com/2389/coven-relay/internal/lane"
	"github.com/2389/coven-relay/internal/media"
	"github.com/2389/coven-relay/internal/reply"
	"github.com/2389/coven-relay/internal/session"
)

// Server is the relay service: one HTTP surface in front of the turn
// orchestrator and its collaborators.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   session.Store
	runner  *GRPCRunner
	tracker *agent.Tracker
	lanes   *lane.Registry
	replier *reply.Replier
	client  *http.Client
}

// New wires up a relay server from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Agent.RunnerAddr == "" {
		return nil, fmt.Errorf("agent.runner_addr is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var store session.Store
	if cfg.Database.Path != "" {
		s, err := session.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		store = s
	} else {
		logger.Warn("no database path configured, sessions are in-memory only")
		store = session.NewMemoryStore()
	}

	srv := &Server{
		cfg:    cfg,
		logger: logger.With("component", "relay"),
		store:  store,
		client: &http.Client{},
	}

	runner, err := NewGRPCRunner(cfg.Agent.RunnerAddr)
	if err != nil {
		return nil, err
	}
	srv.runner = runner
	srv.tracker = agent.NewTracker(runner, logger)
	srv.lanes = lane.NewRegistry(srv.tracker, srv.deliverFollowup, logger)
	srv.replier = reply.NewReplier(reply.ReplierOptions{
		Config: cfg,
		Store:  store,
		Lanes:  srv.lanes,
		Logger: logger,
	})
	return srv, nil
}

// Run serves HTTP until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /inbound", s.handleInbound)
	mux.HandleFunc("POST /system-event", s.handleSystemEvent)
	mux.HandleFunc("GET /health", s.handleHealth)

	httpSrv := &http.Server{
		Addr:              s.cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("shutdown error", "error", err)
		}
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing session store", "error", err)
		}
		if err := s.runner.Close(); err != nil {
			s.logger.Warn("closing backend connection", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// inboundMessage is the wire form of one inbound chat message.
type inboundMessage struct {
	Provider       string   `json:"provider"`
	SenderName     string   `json:"sender_name,omitempty"`
	SenderUsername string   `json:"sender_username,omitempty"`
	SenderTag      string   `json:"sender_tag,omitempty"`
	SenderE164     string   `json:"sender_e164,omitempty"`
	From           string   `json:"from"`
	To             string   `json:"to,omitempty"`
	Body           string   `json:"body"`
	SessionKey     string   `json:"session_key,omitempty"`
	PeerID         string   `json:"peer_id,omitempty"`
	ChatType       string   `json:"chat_type,omitempty"`
	WasMentioned   bool     `json:"was_mentioned,omitempty"`
	Mentions       []string `json:"mentions,omitempty"`
	Authorized     *bool    `json:"authorized,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Heartbeat      bool     `json:"heartbeat,omitempty"`

	MediaPath string `json:"media_path,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	OriginatingChannel string `json:"originating_channel,omitempty"`
	OriginatingTo      string `json:"originating_to,omitempty"`
}

type inboundResponse struct {
	Payloads []replyPayload `json:"payloads"`
}

type replyPayload struct {
	Text string `json:"text"`
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var in inboundMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if in.Provider == "" {
		http.Error(w, "provider is required", http.StatusBadRequest)
		return
	}

	msg := &reply.MessageContext{
		Provider:           in.Provider,
		SenderName:         in.SenderName,
		SenderUsername:     in.SenderUsername,
		SenderTag:          in.SenderTag,
		SenderE164:         in.SenderE164,
		From:               in.From,
		To:                 in.To,
		Body:               in.Body,
		SessionKey:         in.SessionKey,
		PeerID:             in.PeerID,
		ChatType:           in.ChatType,
		WasMentioned:       in.WasMentioned,
		Mentions:           in.Mentions,
		CommandAuthorized:  in.Authorized,
		MessageID:          in.MessageID,
		OriginatingChannel: in.OriginatingChannel,
		OriginatingTo:      in.OriginatingTo,
		Media: media.Attachment{
			Path: in.MediaPath,
			URL:  in.MediaURL,
			Type: in.MediaType,
		},
	}

	payloads, err := s.replier.Resolve(r.Context(), msg, reply.Options{Heartbeat: in.Heartbeat})
	if err != nil {
		s.logger.Error("turn failed", "provider", in.Provider, "error", err)
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	out := inboundResponse{Payloads: make([]replyPayload, 0, len(payloads))}
	for _, p := range payloads {
		out.Payloads = append(out.Payloads, replyPayload{Text: p.Text})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

// systemEventRequest is the wire form of an out-of-band system notice.
// Without a session key the event goes to the agent's main session.
type systemEventRequest struct {
	SessionKey string `json:"session_key,omitempty"`
	Text       string `json:"text"`
}

func (s *Server) handleSystemEvent(w http.ResponseWriter, r *http.Request) {
	var in systemEventRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(in.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	key := in.SessionKey
	if key == "" {
		key = session.MainKey(s.cfg.Agent.ID, s.cfg.Session.MainKey)
	}
	s.replier.EnqueueSystemEvent(key, in.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

// followupReply is the webhook body for replies produced by deferred runs.
type followupReply struct {
	SessionKey         string   `json:"session_key"`
	OriginatingChannel string   `json:"originating_channel,omitempty"`
	OriginatingTo      string   `json:"originating_to,omitempty"`
	Texts              []string `json:"texts"`
}

// deliverFollowup routes the result of a queued run back out. Deferred
// replies go to the configured webhook; without one they are only logged.
func (s *Server) deliverFollowup(run *lane.FollowupRun, result *agent.RunResult, err error) {
	if err != nil {
		if errors.Is(err, agent.ErrAborted) {
			s.logger.Info("queued run aborted", "session", run.Request.SessionKey)
			return
		}
		s.logger.Error("queued run failed", "session", run.Request.SessionKey, "error", err)
		return
	}

	texts := make([]string, 0, len(result.Texts))
	for _, t := range result.Texts {
		if t != "" && t != reply.SilentReplyToken {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return
	}

	webhook := s.cfg.Routing.FollowupWebhook
	if webhook == "" {
		s.logger.Info("queued run finished, no followup webhook configured",
			"session", run.Request.SessionKey, "summary", run.Summary)
		return
	}
	payload := followupReply{
		SessionKey:         run.Request.SessionKey,
		OriginatingChannel: run.Request.OriginatingChannel,
		OriginatingTo:      run.Request.OriginatingTo,
		Texts:              texts,
	}
	if werr := postJSON(context.Background(), s.client, webhook, payload); werr != nil {
		s.logger.Error("followup webhook delivery failed",
			"session", run.Request.SessionKey, "error", werr)
	}
}
