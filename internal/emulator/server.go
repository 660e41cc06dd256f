package emulator

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// ServerOptions tunes the socket front end.
type ServerOptions struct {
	// AllowedCIDRs restricts client addresses; empty allows everyone.
	AllowedCIDRs []string
	// MaxConnections caps concurrent sessions; zero means 10.
	MaxConnections int
	// IdleTimeout disconnects sessions with no traffic; zero means 30s.
	IdleTimeout time.Duration
}

// Server exposes one Emulator on a raw TCP socket, one command or query per
// line — the same interaction model as the instrument's LAN port. Query
// lines get exactly one response line (possibly empty); write lines get
// none; lines outside the vocabulary get an "ERROR:" line so contract
// mismatches surface instead of hanging the client.
type Server struct {
	emu     *Emulator
	addr    string
	allowed []*net.IPNet
	maxConn int
	idle    time.Duration

	mu       sync.Mutex
	listener net.Listener
	active   int
	stopped  bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewServer creates a server for the given listen address.
func NewServer(emu *Emulator, addr string, opts ServerOptions) (*Server, error) {
	var allowed []*net.IPNet
	for _, cidr := range opts.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, network)
	}

	maxConn := opts.MaxConnections
	if maxConn <= 0 {
		maxConn = 10
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}

	return &Server{
		emu:      emu,
		addr:     addr,
		allowed:  allowed,
		maxConn:  maxConn,
		idle:     idle,
		stopChan: make(chan struct{}),
	}, nil
}

// ListenAndServe opens the emulator session and accepts connections until
// Close is called.
func (s *Server) ListenAndServe() error {
	if err := s.emu.Open(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("emulator listening on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			log.Printf("accept failed: %v", err)
			continue
		}

		if !s.isAllowed(conn) {
			log.Printf("rejected connection from %s (not in allowed CIDRs)", conn.RemoteAddr())
			conn.Close()
			continue
		}
		if !s.acquireSlot() {
			log.Printf("rejected connection from %s (connection limit)", conn.RemoteAddr())
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// Addr returns the bound listener address, for tests that listen on :0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleConnection runs one line-oriented session.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.releaseSlot()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
			return
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		resp, isQuery, err := s.emu.Execute(line)
		if err != nil {
			log.Printf("session %s: %v", conn.RemoteAddr(), err)
			if !isQuery {
				// Writes carry no response line. Answering here would desync
				// the client's strict command/response pairing, so the defect
				// is only logged.
				continue
			}
			resp = "ERROR: " + err.Error()
		}
		if isQuery {
			if _, err := fmt.Fprintf(conn, "%s\n", resp); err != nil {
				return
			}
		}
	}
}

// isAllowed checks the client address against the configured CIDRs.
func (s *Server) isAllowed(conn net.Conn) bool {
	if len(s.allowed) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range s.allowed {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) acquireSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active >= s.maxConn {
		return false
	}
	s.active++
	return true
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
}

// Close stops accepting connections and waits for active sessions to end.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	listener := s.listener
	s.mu.Unlock()

	close(s.stopChan)
	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	return err
}
