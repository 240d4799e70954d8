// Package ipc is the loopback transport that exposes the session
// controller to external clients: every session.Event the controller
// emits is broadcast as a line-delimited JSON frame to every connected
// client, and a client can push a line-delimited JSON action frame back
// ("text_command", "set_muted", "reload_commands", "ping", "stop") to
// drive the controller as if it had been spoken.
//
// One goroutine per client connection reads inbound actions; outbound
// events are broadcast under a single lock in the order the controller
// calls Emit, so every connection observes the same relative event order
// the controller produced them in.
package ipc

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/agalue/jarvis-voice/internal/session"
	"golang.org/x/sync/errgroup"
)

// Dispatcher is the subset of *session.Controller the IPC server drives
// from inbound action frames. Declared locally, as the rest of this tree
// declares its dependencies, so this package does not import the full
// controller surface.
type Dispatcher interface {
	SubmitTextCommand(ctx context.Context, text string)
	SetMuted(muted bool)
	ReloadCommands()
	Stop()
}

// Server listens on a loopback address, broadcasting session events to
// every connected client and forwarding inbound action frames to a
// Dispatcher. It implements session.EventSink.
type Server struct {
	listener net.Listener
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	seq     uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the server's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New opens a TCP listener on addr. The server does not start accepting
// connections until Serve is called.
func New(addr string, opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", addr, err)
	}
	s := &Server{
		listener: ln,
		logger:   slog.Default(),
		clients:  make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Addr returns the listener's bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// client holds one connection's outbound write queue. A full queue drops
// the new frame rather than blocking the controller's single emitting
// goroutine on a slow reader.
type client struct {
	conn net.Conn
	out  chan []byte
}

// Serve accepts connections until ctx is cancelled or the listener
// errors, dispatching every accepted connection's inbound actions to
// dispatcher. It blocks; run it in its own goroutine.
func (s *Server) Serve(ctx context.Context, dispatcher Dispatcher) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-gctx.Done()
		return s.listener.Close()
	})

	group.Go(func() error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				default:
					return fmt.Errorf("ipc: accept: %w", err)
				}
			}
			go s.handleConn(gctx, conn, dispatcher)
		}
	})

	return group.Wait()
}

// Close closes the listener, unblocking Serve's accept loop.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, dispatcher Dispatcher) {
	c := &client{conn: conn, out: make(chan []byte, 64)}
	s.addClient(c)
	defer s.removeClient(c)
	defer conn.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range c.out {
			if _, err := conn.Write(append(frame, '\n')); err != nil {
				return
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		action, text, muted := decodeAction(scanner.Bytes())
		s.dispatch(ctx, dispatcher, c, action, text, muted)
	}

	close(c.out)
	<-writerDone
}

func (s *Server) dispatch(ctx context.Context, dispatcher Dispatcher, c *client, action, text string, muted bool) {
	switch action {
	case "text_command":
		if text == "" {
			s.logger.Warn("ipc: text_command frame with empty text")
			return
		}
		dispatcher.SubmitTextCommand(ctx, text)
	case "set_muted":
		dispatcher.SetMuted(muted)
	case "reload_commands":
		dispatcher.ReloadCommands()
	case "ping":
		// Answered by the server itself, directly to the asking client;
		// a pong is connection liveness, not a controller event.
		select {
		case c.out <- []byte(`{"kind":"pong"}`):
		default:
			s.logger.Warn("ipc: client write queue full, dropping pong")
		}
	case "stop":
		dispatcher.Stop()
	case "":
		// Blank line or frame with no "action" field; ignore.
	default:
		s.logger.Warn("ipc: unknown action", "action", action)
	}
}

// Emit implements session.EventSink. It is called from the controller's
// single pipeline goroutine, so broadcasting under s.mu here is what
// gives every client the same event order the controller produced.
func (s *Server) Emit(e session.Event) {
	s.mu.Lock()
	s.seq++
	frame, err := encodeEvent(e, s.seq)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("ipc: encode event", "err", err, "kind", e.Kind)
		return
	}
	for c := range s.clients {
		select {
		case c.out <- frame:
		default:
			s.logger.Warn("ipc: client write queue full, dropping frame", "kind", e.Kind)
		}
	}
	s.mu.Unlock()
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}
