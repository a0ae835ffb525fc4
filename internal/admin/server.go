package admin

import (
	"context"
	"net"
	"os"
	"sync"

	"github.com/msgboxio/log"
)

// Server is the admin-socket listener side: one goroutine per accepted
// connection, each connection carrying exactly one Request/Response and
// then being closed, except for a `listen` connection, which is switched into the event
// broadcast group until it closes. This mirrors vici's split between a
// locked command transport and an always-open event transport, except
// here both roles are served over a single net.Conn instead of two,
// since the admin socket never interleaves a command and an event
// subscription on the same connection.
type Server struct {
	Dispatcher *Dispatcher

	mu        sync.Mutex
	listeners map[*frameConn]struct{}
}

func NewServer(d *Dispatcher) *Server {
	return &Server{Dispatcher: d, listeners: make(map[*frameConn]struct{})}
}

// ListenAndServe opens sockPath as a Unix socket (removing any stale
// socket file first) and serves admin connections until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, sockPath string) error {
	_ = os.Remove(sockPath)
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.serveConn(ctx, newFrameConn(conn))
	}
}

func (s *Server) serveConn(ctx context.Context, fc *frameConn) {
	defer fc.Close()
	req, err := fc.recvRequest()
	if err != nil {
		return
	}
	if req.Verb == VerbListen {
		s.serveListen(ctx, fc)
		return
	}
	resp := s.Dispatcher.Dispatch(req)
	if err := fc.sendResponse(resp); err != nil {
		log.Warningf("admin: sendResponse: %v", err)
	}
}

// serveListen parks fc in the broadcast group, forwarding every posted
// Event to it until either the connection closes or ctx is canceled.
func (s *Server) serveListen(ctx context.Context, fc *frameConn) {
	if err := fc.sendResponse(okf("listening")); err != nil {
		return
	}
	s.mu.Lock()
	s.listeners[fc] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, fc)
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The connection's only remaining duty is to be written to by
		// Broadcast; read here only to detect the peer closing it.
		var discard Request
		for {
			if err := readFrame(fc.Conn, &discard); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

// Broadcast posts ev to every connection currently parked in `listen`.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fc := range s.listeners {
		if err := fc.sendEvent(ev); err != nil {
			log.Warningf("admin: broadcast to listener: %v", err)
		}
	}
}
