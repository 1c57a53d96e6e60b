// Package session implements the per-connection NNTP state machine and
// command dispatch table of spec.md §4.I. Grounded on the teacher's
// internal/nntp package: NNTPServer/serve/handleConnection in
// nntp-server.go, and the ClientConnection/handleCommand dispatch shape
// in nntp-server-cliconns.go, generalized from the teacher's
// database-backed article model to newsd's store/auth/usage/filter/
// queue/control stack.
package session

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
	"github.com/nntpcore/newsd/internal/queue"
	"github.com/nntpcore/newsd/internal/store"
	"github.com/nntpcore/newsd/internal/usage"
)

// Server owns the listeners and the collaborators every Session needs.
type Server struct {
	Config *config.Cell
	Store  *store.Store
	Auth   *auth.Store
	Usage  *usage.Tracker
	Queue  *queue.Queue
	Stats  *Stats

	local430 *local430

	listener    net.Listener
	tlsListener net.Listener

	shutdown chan struct{}
	wg       *sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer builds a Server. wg is an externally owned waitgroup the
// caller uses to wait out every listener/connection goroutine on
// shutdown, matching the teacher's NewNNTPServer(mainWG) contract.
func NewServer(cfg *config.Cell, st *store.Store, as *auth.Store, tracker *usage.Tracker, q *queue.Queue, wg *sync.WaitGroup) *Server {
	cfg.Snapshot() // panic early on a nil cell rather than mid-accept
	return &Server{
		Config:   cfg,
		Store:    st,
		Auth:     as,
		Usage:    tracker,
		Queue:    q,
		Stats:    NewStats(),
		local430: newLocal430(10 * time.Minute),
		shutdown: make(chan struct{}),
		wg:       wg,
	}
}

// Start opens the configured plain and/or TLS listeners and begins
// accepting connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("session server already running")
	}
	cfg := s.Config.Snapshot()

	if cfg.Listen.Addr != "" {
		l, err := net.Listen("tcp", cfg.Listen.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Listen.Addr, err)
		}
		s.listener = l
		log.Printf("session: NNTP listening on %s", cfg.Listen.Addr)
		s.wg.Add(1)
		go s.serve(l, false)
	}

	if cfg.Listen.TLSAddr != "" && cfg.Listen.TLSCert != "" && cfg.Listen.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Listen.TLSCert, cfg.Listen.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS keypair: %w", err)
		}
		tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
		l, err := tls.Listen("tcp", cfg.Listen.TLSAddr, tlsCfg)
		if err != nil {
			return fmt.Errorf("listen TLS %s: %w", cfg.Listen.TLSAddr, err)
		}
		s.tlsListener = l
		log.Printf("session: NNTP TLS listening on %s", cfg.Listen.TLSAddr)
		s.wg.Add(1)
		go s.serve(l, true)
	}

	go s.local430.sweep(s.shutdown)

	s.running = true
	return nil
}

func (s *Server) serve(listener net.Listener, isTLS bool) {
	defer s.wg.Done()
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Printf("session: accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(conn, isTLS)
	}
}

func (s *Server) handleConnection(conn net.Conn, isTLS bool) {
	defer s.wg.Done()
	defer conn.Close()

	s.Stats.ConnectionStarted()
	defer s.Stats.ConnectionEnded()

	remote, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	if remote == "" {
		remote = conn.RemoteAddr().String()
	}

	sess := newSession(conn, s, isTLS)
	if err := sess.Handle(); err != nil {
		log.Printf("session: connection from %s ended: %v", remote, err)
	}
}

// Stop signals every goroutine to exit and closes the listeners. It
// does not itself wait on the external waitgroup, matching the
// teacher's Stop(): the caller owns that wait.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	s.running = false
	return nil
}

// Session is the per-connection state machine (spec.md §4.I
// ConnectionState).
type Session struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	server *Server

	isTLS                bool
	authenticated        bool
	username             string
	pendingUser          string
	streamingMode        bool
	allowPostingInsecure bool

	currentGroup   string
	currentArticle int64
	groupLow       int64
	groupHigh      int64

	idleTimeout time.Duration
}

func newSession(conn net.Conn, server *Server, isTLS bool) *Session {
	cfg := server.Config.Snapshot()
	return &Session{
		conn:                 conn,
		reader:               bufio.NewReader(conn),
		writer:               bufio.NewWriter(conn),
		server:               server,
		isTLS:                isTLS,
		allowPostingInsecure: cfg.AllowPostingInsecure,
		idleTimeout:          cfg.IdleTimeout,
	}
}
