package gemini

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"
)

type Client struct {
	// InsecureSkipVerify controls whether a client verifies the server's
	// certificate chain and host name. Gemini servers commonly use
	// self-signed certificates, so most clients pin them instead (TOFU).
	InsecureSkipVerify bool

	// Certificates are presented to servers that ask for a client
	// certificate.
	Certificates []tls.Certificate

	// Timeout bounds the whole exchange up to the response header. The
	// body is read without deadline. Zero means no timeout.
	Timeout time.Duration
}

// Fetch a resource from a Gemini server with the given URL.
//
// The returned response owns the connection when it carries a body; the
// caller must Close it.
func (c Client) Fetch(ctx context.Context, rawurl string) (*Response, error) {
	req, err := ParseRequest(rawurl)
	if err != nil {
		return nil, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	conn, err := c.connect(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if d, ok := ctx.Deadline(); ok {
		conn.SetDeadline(d)
	}
	if _, err := io.WriteString(conn, req.URL.String()+"\r\n"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	resp, err := getResponse(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return resp, nil
}

func (c Client) connect(ctx context.Context, u *url.URL) (*tls.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), strconv.Itoa(DefaultPort))
	}
	dialer := &tls.Dialer{Config: &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.InsecureSkipVerify,
		Certificates:       c.Certificates,
		ServerName:         u.Hostname(),
	}}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return conn.(*tls.Conn), nil
}

// bufferedConn reads through the buffer that already holds the start of
// the body and closes the underlying connection.
type bufferedConn struct {
	*bufio.Reader
	io.Closer
}

func getResponse(conn net.Conn) (*Response, error) {
	br := bufio.NewReader(conn)
	header, err := ReadResponseHeader(br)
	if err != nil {
		return nil, err
	}
	if header.Status().Class() != ClassSuccess {
		conn.Close()
		return NewResponse(header), nil
	}
	return &Response{header: header, body: bufferedConn{br, conn}}, nil
}
