package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by the Serve methods after a call to
// Shutdown or Close.
var ErrServerClosed = errors.New("gemini: Server closed")

// A Server defines parameters for running a Gemini server.
// The zero value for Server is a valid configuration once a handler and
// a certificate are provided.
type Server struct {
	// Addr is the TCP address to listen on, ":1965" if empty.
	Addr string

	// TLSConfig is cloned for every Serve call. Client certificates are
	// requested but not verified unless ClientAuth is set.
	TLSConfig *tls.Config

	// Handler to invoke. A nil handler answers every request with
	// "51 Not Found".
	Handler Handler

	Timeouts Timeouts

	// MaxConns limits the number of simultaneous connections; zero
	// means no limit.
	MaxConns int

	// AllowProxy passes requests for schemes other than gemini to the
	// handler. When false they are refused with status 53.
	AllowProxy bool

	// LogRequests logs one line per answered request.
	LogRequests bool

	// ErrorLog specifies an optional logger for errors accepting
	// connections and aborted connections.
	// If nil, logging is done via the log package's standard logger.
	ErrorLog *log.Logger

	inShutdown atomic.Bool

	mu         sync.Mutex
	listeners  map[*net.Listener]struct{}
	activeConn map[*conn]struct{}
	baseCtx    context.Context
	cancelCtx  context.CancelFunc
}

// ListenAndServe create a TCP server on the specified address and pass
// new connections to the given handler.
// Each request is handled in a separate goroutine.
func ListenAndServe(addr, certFile, keyFile string, handler Handler) error {
	if addr == "" {
		addr = "127.0.0.1:1965"
	}
	server := &Server{Addr: addr, Handler: handler}
	return server.ListenAndServeTLS(certFile, keyFile)
}

// ListenAndServeTLS listens on s.Addr and serves connections using the
// certificate and key loaded from the given files.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	if s.shuttingDown() {
		return ErrServerClosed
	}
	addr := s.Addr
	if addr == "" {
		addr = ":" + strconv.Itoa(DefaultPort)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %v", err)
	}
	return s.ServeTLS(ln, certFile, keyFile)
}

// ServeTLS is like Serve but first loads a certificate and key into the
// server's TLS configuration.
func (s *Server) ServeTLS(l net.Listener, certFile, keyFile string) error {
	cer, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		l.Close()
		return fmt.Errorf("failed to load certificates: %v", err)
	}
	s.mu.Lock()
	config := s.TLSConfig.Clone()
	if config == nil {
		config = new(tls.Config)
	}
	config.Certificates = append(config.Certificates, cer)
	s.TLSConfig = config
	s.mu.Unlock()
	return s.Serve(l)
}

// Serve accepts connections on l, which must not be a TLS listener: the
// server performs the handshake itself so that it is bounded by
// Timeouts.Request. Serve always returns a non-nil error and closes l.
func (s *Server) Serve(l net.Listener) error {
	config, err := s.tlsConfig()
	if err != nil {
		l.Close()
		return err
	}
	if s.MaxConns > 0 {
		l = netutil.LimitListener(l, s.MaxConns)
	}
	if !s.trackListener(&l, true) {
		l.Close()
		return ErrServerClosed
	}
	defer s.trackListener(&l, false)
	defer l.Close()

	ctx := s.context()
	var tempDelay time.Duration
	for {
		rw, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				s.logf("gemini: Accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("error accepting new client: %w", err)
		}
		tempDelay = 0
		c := s.newConn(rw, config)
		if !s.trackConn(c, true) {
			rw.Close()
			return ErrServerClosed
		}
		go c.serve(ctx)
	}
}

// Shutdown stops accepting connections and waits for the active ones
// to finish. If ctx expires first the remaining connections are closed
// and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	err := s.closeListenersLocked()
	s.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.numConns() == 0 {
			s.cancel()
			return err
		}
		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close immediately closes all listeners and connections. Response
// bodies of interrupted connections are released.
func (s *Server) Close() error {
	s.inShutdown.Store(true)
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeListenersLocked()
	for c := range s.activeConn {
		c.rwc.Close()
	}
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	return err
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	config := s.TLSConfig.Clone()
	if config == nil || (len(config.Certificates) == 0 && config.GetCertificate == nil && config.GetConfigForClient == nil) {
		return nil, errors.New("gemini: Server.TLSConfig has no certificate")
	}
	if config.ClientAuth == tls.NoClientCert {
		config.ClientAuth = tls.RequestClientCert
	}
	if config.MinVersion == 0 {
		config.MinVersion = tls.VersionTLS12
	}
	return config, nil
}

func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		s.baseCtx, s.cancelCtx = context.WithCancel(context.Background())
	}
	return s.baseCtx
}

func (s *Server) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[*net.Listener]struct{})
	}
	if add {
		if s.shuttingDown() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) closeListenersLocked() error {
	var err error
	for ln := range s.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Server) trackConn(c *conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeConn == nil {
		s.activeConn = make(map[*conn]struct{})
	}
	if add {
		if s.shuttingDown() {
			return false
		}
		s.activeConn[c] = struct{}{}
	} else {
		delete(s.activeConn, c)
	}
	return true
}

func (s *Server) numConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConn)
}

// dispatch produces the response for a parsed request. It never
// returns nil.
func (s *Server) dispatch(req *Request) *Response {
	if !s.AllowProxy && req.URL.Scheme != SchemaGemini {
		return NewResponse(ProxyRequestRefused())
	}
	switch h := s.Handler.(type) {
	case nil:
		return NotFoundResponse()
	case *Router:
		return h.Dispatch(req)
	default:
		return callHandler(h, req, "", s.logf)
	}
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.ErrorLog != nil {
		s.ErrorLog.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}
