// Package control serves the daemon's control socket. Clients send one
// command per write on a Unix stream socket.
package control

import (
	"errors"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
	"golang.org/x/sys/unix"

	"github.com/bnkr/nerve/log"
)

// Commands understood on the socket.
const (
	// Bye closes the connection it arrives on.
	Bye = "BYE"
	// Shutdown stops the daemon.
	Shutdown = "MADAGASCAR"
)

const (
	// DefaultConnections is the number of clients served at once.
	DefaultConnections = 4
	maxCommand         = 512
)

// Option configures a server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithConnections caps the number of clients served at once. Further
// clients wait in the accept queue.
func WithConnections(n int) Option {
	return func(s *Server) {
		s.limit = n
	}
}

// Server accepts control connections.
type Server struct {
	path     string
	log      logrus.FieldLogger
	limit    int
	shutdown func()
	once     sync.Once

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	serial   int
	closed   bool
}

// New returns a server for the socket at path. shutdown is called once, the
// first time a client asks the daemon to stop.
func New(path string, shutdown func(), options ...Option) *Server {
	s := &Server{
		path:     path,
		log:      log.GetLogger(),
		limit:    DefaultConnections,
		shutdown: shutdown,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	s.log = s.log.WithField("socket", path)
	return s
}

// Listen creates the socket, readable by the owner only, and starts
// accepting connections.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	mask := unix.Umask(0o077)
	ln, err := net.Listen("unix", s.path)
	unix.Umask(mask)
	if err != nil {
		return err
	}
	if s.limit > 0 {
		ln = netutil.LimitListener(ln, s.limit)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.accept()
	}()
	s.log.Info("listening")
	return nil
}

// Close stops accepting, disconnects every client and removes the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			continue
		}
		id, ok := s.track(conn)
		if !ok {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serve(conn, s.log.WithField("conn", id))
		}()
	}
}

func (s *Server) track(c net.Conn) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	s.serial++
	s.conns[c] = struct{}{}
	return s.serial, true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

// serve handles one command per read until the client leaves.
func (s *Server) serve(conn net.Conn, l logrus.FieldLogger) {
	l.Debug("connected")
	defer l.Debug("disconnected")
	buf := make([]byte, maxCommand)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.WithError(err).Debug("read failed")
			}
			return
		}
		cmd := strings.TrimSpace(string(buf[:n]))
		switch cmd {
		case "":
		case Bye:
			return
		case Shutdown:
			l.Info("shutdown requested")
			s.once.Do(s.shutdown)
			return
		default:
			l.WithField("command", cmd).Warn("unknown command")
		}
	}
}
