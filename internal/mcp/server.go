package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sheethub/sheethub/internal/core"
)

const maxLineBytes = 1024 * 1024

// StreamServer speaks newline-delimited JSON-RPC over TCP connections or a
// single reader/writer pair such as stdin/stdout.
type StreamServer struct {
	addr       string
	dispatcher *Dispatcher
	logger     *slog.Logger

	ln     net.Listener
	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStreamServer(addr string, dispatcher *Dispatcher, logger *slog.Logger) *StreamServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamServer{
		addr:       addr,
		dispatcher: dispatcher,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *StreamServer) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("mcp stream server starting", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			s.logger.Error("mcp accept error", "err", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			continue
		}
		go func() {
			defer s.untrack(conn)
			if err := s.Serve(s.ctx, conn, conn); err != nil && !s.isClosed() {
				s.logger.Warn("mcp connection closed with error", "remote", conn.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

func (s *StreamServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// track registers an accepted connection; it refuses once shut down.
func (s *StreamServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *StreamServer) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *StreamServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, cancels in-flight requests and closes every
// open connection.
func (s *StreamServer) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancel()
	for conn := range s.conns {
		conn.Close()
	}
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Serve handles requests line by line until r is exhausted or ctx is done.
// Notifications (no id) are processed but get no reply line.
func (s *StreamServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		reqCtx := core.WithTraceID(ctx, uuid.New().String())
		resp := s.dispatcher.Dispatch(reqCtx, line)
		if isNotification(line) && resp.Error == nil {
			continue
		}
		if err := writeLine(w, resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func isNotification(line []byte) bool {
	var head struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return false
	}
	return len(head.ID) == 0 && strings.HasPrefix(head.Method, "notifications/")
}

func writeLine(w io.Writer, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
