package gemini

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// connState is the stage a connection has reached.
type connState int

const (
	stateAccepted connState = iota
	stateHandshaking
	stateParsingRequest
	stateDispatching
	stateWritingResponse
	stateClosed
	stateAborted
)

var stateName = map[connState]string{
	stateAccepted:        "accepted",
	stateHandshaking:     "handshaking",
	stateParsingRequest:  "parsing request",
	stateDispatching:     "dispatching",
	stateWritingResponse: "writing response",
	stateClosed:          "closed",
	stateAborted:         "aborted",
}

func (st connState) String() string {
	return stateName[st]
}

// A conn represents the server side of a Gemini connection.
type conn struct {
	server     *Server
	config     *tls.Config
	rwc        net.Conn
	tlsConn    *tls.Conn
	remoteAddr net.Addr
	state      connState

	// abortedIn is the state the connection was in when it was aborted.
	abortedIn connState

	// answered is set once a complete status line reached the peer, so
	// that closing sends close_notify.
	answered bool
}

func (s *Server) newConn(rwc net.Conn, config *tls.Config) *conn {
	return &conn{
		server:     s,
		config:     config,
		rwc:        rwc,
		remoteAddr: rwc.RemoteAddr(),
		state:      stateAccepted,
	}
}

// serve drives one connection from handshake to close. Every failure is
// contained here; none is returned to the accept loop.
func (c *conn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.close()

	t := c.server.Timeouts.withDefaults()

	c.setState(stateHandshaking)
	c.rwc.SetDeadline(deadline(time.Now(), t.Request))
	c.tlsConn = tls.Server(c.rwc, c.config)
	if err := c.tlsConn.HandshakeContext(ctx); err != nil {
		c.abort(fmt.Errorf("failed to establish TLS session: %w", err))
		return
	}

	c.setState(stateParsingRequest)
	req, err := ReadRequest(c.tlsConn)
	if err != nil {
		c.reject(err, t)
		return
	}
	req.ctx = ctx
	req.remoteAddr = c.remoteAddr
	if certs := c.tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
		req.cert = certs[0]
	}

	// The handler may take as long as it needs.
	c.setState(stateDispatching)
	c.rwc.SetDeadline(time.Time{})
	resp := c.server.dispatch(req)
	defer resp.Close()

	c.setState(stateWritingResponse)
	if err := c.writeResponse(resp, t); err != nil {
		c.abort(err)
		return
	}
	if c.server.LogRequests {
		c.server.logf("%v requested %v; responded with %v", c.remoteAddr, req.URL, resp.Header())
	}
}

// reject handles a request that could not be read. Only a malformed
// request line is answered; after a timeout, an I/O error or an
// oversized request the connection is dropped.
func (c *conn) reject(err error, t Timeouts) {
	if !errors.Is(err, ErrMalformedRequest) {
		c.abort(err)
		return
	}
	c.setState(stateWritingResponse)
	c.rwc.SetDeadline(deadline(time.Now(), t.Response))
	if _, werr := BadRequestLossy(err.Error()).WriteTo(c.tlsConn); werr != nil {
		err = fmt.Errorf("%v; failed to write bad request: %w", err, werr)
	} else {
		c.answered = true
	}
	c.abort(err)
}

// writeResponse writes the header and the body. Simple responses share
// a single deadline. Responses with a complex body type get a fresh,
// usually longer, deadline once the header is out.
//
// The deadline also bounds reading the body: a body whose Read stalls
// past it is closed together with the connection.
func (c *conn) writeResponse(resp *Response, t Timeouts) error {
	bodyTimeout, split := t.bodyTimeout(resp)
	end := deadline(time.Now(), t.Response)
	c.rwc.SetWriteDeadline(end)
	if _, err := resp.Header().WriteTo(c.tlsConn); err != nil {
		return fmt.Errorf("failed to write response header: %w", err)
	}
	body := resp.Body()
	if body == nil {
		c.answered = true
		return nil
	}
	if split {
		end = deadline(time.Now(), bodyTimeout)
		c.rwc.SetWriteDeadline(end)
	}
	if !end.IsZero() {
		timer := time.AfterFunc(time.Until(end), func() {
			resp.Close()
			c.rwc.Close()
		})
		defer timer.Stop()
	}
	if _, err := io.Copy(c.tlsConn, body); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}
	c.answered = true
	return nil
}

func (c *conn) setState(st connState) {
	c.state = st
}

// abort marks the connection as failed and logs why. Peers going away
// mid-way are routine and only logged.
func (c *conn) abort(err error) {
	c.abortedIn = c.state
	c.state = stateAborted
	reason := "error"
	if isTimeout(err) || errors.Is(err, ErrTimeout) {
		reason = "timeout"
	}
	c.server.logf("gemini: %v: aborted while %v (%s): %v", c.remoteAddr, c.abortedIn, reason, err)
}

func (c *conn) close() {
	if c.answered {
		// Sends close_notify, which marks the end of the body.
		c.tlsConn.Close()
	} else {
		c.rwc.Close()
	}
	if c.state != stateAborted {
		c.state = stateClosed
	}
	c.server.trackConn(c, false)
}
