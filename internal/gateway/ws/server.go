// Package ws implements the WebSocket server for terminal sessions. Each
// connection is an isolated session: its own rate limiter budget, its own
// command pipeline, and at most one command executing at a time.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/jkaninda/pyguard-terminal/internal/protocol"
	"github.com/jkaninda/pyguard-terminal/internal/ratelimit"
	"github.com/jkaninda/pyguard-terminal/internal/security"
	"github.com/jkaninda/pyguard-terminal/internal/storage"
	"github.com/jkaninda/pyguard-terminal/internal/terminal"
)

// wakeDelay is the pause between the waking and ready handshake messages.
const wakeDelay = 500 * time.Millisecond

// Gate is the admission capability the session pipeline needs.
type Gate interface {
	Check(raw string) security.Verdict
}

// Runner is the execution capability the session pipeline needs.
type Runner interface {
	Execute(ctx context.Context, command string) <-chan terminal.Event
}

// Metrics is the subset of collector state the server records. Nil-safe via
// the server's nil field checks.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	CommandObserved(verdict, outcome string)
	RateLimitRejected()
}

// Server manages terminal WebSocket sessions.
type Server struct {
	gate           Gate
	limiter        *ratelimit.Limiter
	runner         Runner
	history        storage.HistoryStore // nil = history disabled.
	metrics        Metrics              // nil = metrics disabled.
	allowedOrigins []string
	logger         *slog.Logger

	connMu sync.Mutex
	conns  map[string]struct{}
}

// NewServer creates a terminal WebSocket server. history and metrics may be
// nil to disable those features.
func NewServer(gate Gate, limiter *ratelimit.Limiter, runner Runner, history storage.HistoryStore, metrics Metrics, allowedOrigins []string, logger *slog.Logger) *Server {
	return &Server{
		gate:           gate,
		limiter:        limiter,
		runner:         runner,
		history:        history,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		logger:         logger,
		conns:          make(map[string]struct{}),
	}
}

// ActiveConnections returns the number of live sessions.
func (s *Server) ActiveConnections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.conns)
}

// Handler returns an http.Handler that upgrades connections to WebSocket.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		s.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	s.handleConnection(r.Context(), conn)
}

func (s *Server) handleConnection(ctx context.Context, conn *websocket.Conn) {
	clientID := uuid.NewString()

	s.connMu.Lock()
	s.conns[clientID] = struct{}{}
	s.connMu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}

	defer func() {
		s.connMu.Lock()
		delete(s.conns, clientID)
		s.connMu.Unlock()
		if s.metrics != nil {
			s.metrics.ConnectionClosed()
		}
		conn.Close(websocket.StatusNormalClosure, "connection closed")
	}()

	s.logger.Info("terminal session opened", slog.String("client_id", clientID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cold-start handshake: waking, a short pause, then ready.
	if err := s.write(ctx, conn, protocol.Waking()); err != nil {
		return
	}
	select {
	case <-time.After(wakeDelay):
	case <-ctx.Done():
		return
	}
	if err := s.write(ctx, conn, protocol.Ready()); err != nil {
		return
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.logger.Info("terminal session closed", slog.String("client_id", clientID))
			} else {
				s.logger.Info("terminal session disconnected",
					slog.String("client_id", clientID),
					slog.String("reason", err.Error()),
				)
			}
			return
		}

		var req protocol.CommandRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("invalid message from client",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
			_ = s.write(ctx, conn, protocol.Error("Invalid request"))
			continue
		}

		command := strings.TrimSpace(req.Command)
		if command == "" {
			continue
		}

		s.runCommand(ctx, cancel, conn, clientID, command)
	}
}

// runCommand drives one command through admission, rate limiting, and
// execution. A rejected or failed command never ends the session.
func (s *Server) runCommand(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, clientID, command string) {
	s.logger.Info("command received",
		slog.String("client_id", clientID),
		slog.String("command", command),
	)

	if v := s.gate.Check(command); !v.Allowed {
		_ = s.write(ctx, conn, protocol.Error(v.Reason))
		s.record(ctx, clientID, command, storage.VerdictDenied, v.Reason, "", 0)
		if s.metrics != nil {
			s.metrics.CommandObserved(storage.VerdictDenied, "")
		}
		return
	}

	if err := s.limiter.Allow(clientID); err != nil {
		_ = s.write(ctx, conn, protocol.Error("Rate limit exceeded. Wait 5 minutes."))
		s.record(ctx, clientID, command, storage.VerdictRateLimited, err.Error(), "", 0)
		if s.metrics != nil {
			s.metrics.RateLimitRejected()
			s.metrics.CommandObserved(storage.VerdictRateLimited, "")
		}
		return
	}

	start := time.Now()
	outcome := storage.OutcomeComplete
	disconnected := false

	// The event channel must be fully drained even when the client is gone,
	// so the engine can release the child process.
	for ev := range s.runner.Execute(ctx, command) {
		var msg protocol.Message
		switch ev.Kind {
		case terminal.EventStdout:
			msg = protocol.Stdout(ev.Line)
		case terminal.EventStderr:
			msg = protocol.Stderr(ev.Line)
		case terminal.EventClear:
			msg = protocol.Clear()
		case terminal.EventError:
			msg = protocol.Error(ev.Message)
			outcome = storage.OutcomeError
		case terminal.EventTimeout:
			msg = protocol.Error(ev.Message)
			outcome = storage.OutcomeTimeout
		case terminal.EventNotFound:
			msg = protocol.Error(ev.Message)
			outcome = storage.OutcomeNotFound
		case terminal.EventComplete:
			continue
		}

		if disconnected {
			continue
		}
		if err := s.write(ctx, conn, msg); err != nil {
			// Client gone mid-stream: terminate the child and drain.
			disconnected = true
			cancel()
		}
	}

	if ctx.Err() != nil && outcome == storage.OutcomeError {
		outcome = storage.OutcomeCanceled
	}

	if !disconnected {
		_ = s.write(ctx, conn, protocol.Complete())
	}

	duration := time.Since(start)
	s.record(ctx, clientID, command, storage.VerdictAllowed, "", outcome, duration)
	if s.metrics != nil {
		s.metrics.CommandObserved(storage.VerdictAllowed, outcome)
	}

	s.logger.Info("command finished",
		slog.String("client_id", clientID),
		slog.String("outcome", outcome),
		slog.Duration("duration", duration),
	)
}

func (s *Server) record(ctx context.Context, clientID, command, verdict, reason, outcome string, duration time.Duration) {
	if s.history == nil {
		return
	}
	// History writes use a detached context: a canceled session must not
	// lose its final record.
	recCtx, recCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer recCancel()

	err := s.history.Record(recCtx, &storage.CommandRecord{
		ClientID:   clientID,
		Command:    command,
		Verdict:    verdict,
		Reason:     reason,
		Outcome:    outcome,
		DurationMs: duration.Milliseconds(),
	})
	if err != nil {
		s.logger.Warn("recording command history failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Debug("websocket write failed", slog.String("error", err.Error()))
		}
		return err
	}
	return nil
}
