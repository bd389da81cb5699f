package gemini

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// Request contains the data of the client request.
//
// A Request is created by the server for every connection and must be
// treated as read-only by handlers.
type Request struct {
	// URL is the absolute URL the client sent. Its Path is never empty.
	URL *url.URL

	ctx        context.Context
	host       string
	input      string
	hasInput   bool
	cert       *x509.Certificate
	remoteAddr net.Addr

	// set by the router
	params   map[string]string
	trailing []string
}

// Hostname returns the host of the URL, lower-cased and converted to
// its ASCII form, without port.
func (r *Request) Hostname() string {
	return r.host
}

// Input returns the percent-decoded query, which is how clients answer a
// status 10 or 11 prompt. ok is false when the URL carries no query.
func (r *Request) Input() (input string, ok bool) {
	return r.input, r.hasInput
}

// Segments returns the decoded segments of the cleaned path. The root
// path has no segments.
func (r *Request) Segments() []string {
	return splitPath(r.URL.Path)
}

// Param returns the value bound to a named ":param" route segment.
func (r *Request) Param(name string) string {
	return r.params[name]
}

// Params returns a copy of all bound route parameters.
func (r *Request) Params() map[string]string {
	params := make(map[string]string, len(r.params))
	for k, v := range r.params {
		params[k] = v
	}
	return params
}

// Trailing returns the path segments that follow the matched prefix
// route. For a handler bound to "/api/*", a request for "/api/v1/x"
// has trailing segments ["v1", "x"].
func (r *Request) Trailing() []string {
	return r.trailing
}

// RemoteAddr returns the network address of the client, if known.
func (r *Request) RemoteAddr() net.Addr {
	return r.remoteAddr
}

// Certificate returns the first certificate the client presented
// during the TLS handshake, or nil.
func (r *Request) Certificate() *x509.Certificate {
	return r.cert
}

// CertificateHash returns the hex SHA-256 fingerprint of the client
// certificate, or "" when none was presented.
func (r *Request) CertificateHash() string {
	if r.cert == nil {
		return ""
	}
	sum := sha256.Sum256(r.cert.Raw)
	return hex.EncodeToString(sum[:])
}

func dateToStr(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 36)
}

// UserName identifies the certificate owner by common name, serial
// number and validity window.
func (r *Request) UserName() []string {
	cert := r.Certificate()
	if cert == nil {
		return []string{""}
	}
	return []string{cert.Subject.CommonName, cert.SerialNumber.String(), dateToStr(cert.NotBefore), dateToStr(cert.NotAfter)}
}

// Context returns the request's context. To change the context, use
// WithContext.
//
// The returned context is always non-nil; it defaults to the
// background context.
//
// For incoming server requests, the context is canceled when the
// client's connection closes or the server shuts down.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of r with its context changed
// to ctx. The provided ctx must be non-nil.
func (r *Request) WithContext(ctx context.Context) *Request {
	if ctx == nil {
		panic("nil context")
	}
	r2 := r.clone()
	r2.ctx = ctx
	return r2
}

func (r *Request) clone() *Request {
	r2 := new(Request)
	*r2 = *r
	u := *r.URL
	r2.URL = &u
	return r2
}

// splitPath cleans p and returns its segments.
func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}
	return strings.Split(p[1:], "/")
}
