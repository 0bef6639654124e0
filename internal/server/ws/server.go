// Package ws carries relay frames over WebSocket text messages, one frame
// per message, and serves the metrics endpoint next to it.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophrelay/internal/common"
	"github.com/dmitrijs2005/gophrelay/internal/logging"
	"github.com/dmitrijs2005/gophrelay/internal/server/dispatcher"
	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

type Options struct {
	MaxFrameBytes          int64
	WriteTimeout           time.Duration
	UnauthenticatedTimeout time.Duration
}

type Server struct {
	address    string
	dispatcher *dispatcher.Dispatcher
	metrics    http.Handler
	opts       Options
	logger     logging.Logger
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	sessions map[*dispatcher.Session]struct{}
	stopping bool
	wg       sync.WaitGroup
}

// NewServer returns a server for d. A nil metrics handler disables /metrics.
func NewServer(address string, d *dispatcher.Dispatcher, metrics http.Handler, opts Options, l logging.Logger) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Server{
		address:    address,
		dispatcher: d,
		metrics:    metrics,
		opts:       opts,
		logger:     l.With("module", "ws_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are native applications, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[*dispatcher.Session]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then closes every
// live session and waits for their read loops to finish.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping WebSocket server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeAll(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting WebSocket server", "address", lis.Addr().String())

	err := srv.Serve(lis)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// No session is added once closeAll has run.
	<-stopped
	s.wg.Wait()
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	if s.opts.MaxFrameBytes > 0 {
		ws.SetReadLimit(s.opts.MaxFrameBytes)
	}

	c := newConn(ws, s.opts.WriteTimeout)

	// Sessions are opened under mu so that closeAll either sees them or
	// they see stopping.
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = c.Close()
		return
	}
	sess := s.dispatcher.Open(c, r.RemoteAddr)
	s.sessions[sess] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.readLoop(r.Context(), sess, ws)
}

func (s *Server) readLoop(ctx context.Context, sess *dispatcher.Session, ws *websocket.Conn) {
	defer s.dispatcher.Close(ctx, sess)

	if t := s.opts.UnauthenticatedTimeout; t > 0 {
		timer := time.AfterFunc(t, func() {
			if sess.State() == dispatcher.Unauthenticated {
				s.logger.Info(ctx, "closing unauthenticated session", "session_id", sess.ID)
				s.dispatcher.Close(ctx, sess)
			}
		})
		defer timer.Stop()
	}

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug(ctx, "read failed", "session_id", sess.ID, "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := s.dispatcher.Handle(ctx, sess, string(data)); errors.Is(err, common.ErrSessionClosed) {
			return
		}
	}
}

func (s *Server) closeAll(ctx context.Context) {
	s.mu.Lock()
	s.stopping = true
	live := make([]*dispatcher.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	s.mu.Unlock()

	for _, sess := range live {
		s.dispatcher.Close(ctx, sess)
	}
}
