// Package server exposes the dispatcher to clients: a WebSocket endpoint
// for the web UI and a raw TCP port for ESC/POS passthrough.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-print-bridge/job"
	"github.com/nixxel-company-limited/escpos-print-bridge/logging"
)

// DefaultIdleTimeout ends a raw job when the client stops sending without
// closing the connection.
const DefaultIdleTimeout = 2 * time.Second

// maxJobSize caps a single raw job.
const maxJobSize = 4 << 20

// RawSink accepts pre-encoded ESC/POS jobs.
type RawSink interface {
	PrintRaw(ctx context.Context, data []byte) job.Result
}

// Server is a TCP server that collects each client connection into one
// job and forwards it to the sink. It speaks the same protocol as the raw
// port of a network printer.
type Server struct {
	sink     RawSink
	listener net.Listener
	address  string
	mu       sync.Mutex
	running  bool
	wg       sync.WaitGroup
	logger   *slog.Logger
	idle     time.Duration
}

// New creates a new server instance
func New(sink RawSink, address string) *Server {
	return NewWithLogger(sink, address, nil)
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(sink RawSink, address string, logger *slog.Logger) *Server {
	return &Server{
		sink:    sink,
		address: address,
		logger:  logging.Or(logger).With("component", "raw"),
		idle:    DefaultIdleTimeout,
	}
}

// SetIdleTimeout changes how long a connection may stay silent before the
// bytes received so far are printed.
func (s *Server) SetIdleTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idle = d
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen(); err != nil {
		return err
	}
	s.logger.Debug("ready to accept connections")
	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen(); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections()
	}()
	return nil
}

func (s *Server) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("failed to start server", "address", s.address, "error", err)
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.address = listener.Addr().String()
	s.running = true
	s.logger.Info("server listening", "address", s.address)
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.IsRunning() {
				s.logger.Debug("server shutting down, stopping accept loop")
				return
			}
			s.logger.Warn("error accepting connection", "error", err)
			continue
		}

		s.logger.Debug("client connected", "remote", conn.RemoteAddr().String())
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection reads until the client closes or goes idle, then prints
// everything it sent as one job.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	var data bytes.Buffer
	buf := make([]byte, 4096)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			s.logger.Warn("setting read deadline", "remote", remote, "error", err)
			return
		}
		n, err := conn.Read(buf)
		if n > 0 {
			if data.Len()+n > maxJobSize {
				s.logger.Error("job too large, dropping connection", "remote", remote, "limit", maxJobSize)
				return
			}
			data.Write(buf[:n])
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
			s.logger.Warn("error reading from client", "remote", remote, "error", err)
			return
		}
		break
	}

	if data.Len() == 0 {
		return
	}

	s.logger.Debug("received job", "remote", remote, "bytes", data.Len())
	res := s.sink.PrintRaw(context.Background(), data.Bytes())
	if !res.Success {
		s.logger.Warn("raw job failed", "remote", remote, "error_kind", string(res.ErrorKind), "detail", res.Detail)
	}
}

// Stop stops the TCP server and waits for in-flight jobs.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.running = false
	listener := s.listener
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	s.wg.Wait()
	s.logger.Info("server stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the server address. After a successful start it is the
// bound address, which resolves ":0" to the chosen port.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}
