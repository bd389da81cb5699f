// Package gemini implements a server for the Gemini protocol.
//
// A client sends one absolute URI terminated by CRLF; the server answers
// with a status line and, for successful requests, a body, then closes
// the connection. Responses are built from constructors that only allow
// status/meta pairs the protocol permits, routed by a Router and written
// by a Server that bounds every network wait with a deadline.
package gemini

import (
	"fmt"
	"log"
	"runtime/debug"
)

// DefaultPort is the TCP port assigned to Gemini.
const DefaultPort = 1965

// Handler is the interface a struct need to implement to be able to
// handle Gemini requests.
//
// A returned error is not shown to the client: the dispatcher logs it
// and answers with a temporary failure.
type Handler interface {
	ServeGemini(*Request) (*Response, error)
}

type HandlerFunc func(*Request) (*Response, error)

// ServeGemini calls f(r).
func (f HandlerFunc) ServeGemini(r *Request) (*Response, error) {
	return f(r)
}

// HandlerError reports a failure raised inside a handler, including a
// recovered panic.
type HandlerError struct {
	Pattern string
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("handler failed: %v", e.Err)
	}
	return fmt.Sprintf("handler for %s failed: %v", e.Pattern, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TrapPanic turns a panic in next into an error so that the connection
// still receives a well-formed response.
func TrapPanic(next Handler) Handler {
	return HandlerFunc(func(req *Request) (resp *Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Trapped: %v\n%s", r, debug.Stack())
				resp, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()
		return next.ServeGemini(req)
	})
}

// callHandler runs h and converts every failure into a temporary
// failure response. It never returns nil.
func callHandler(h Handler, req *Request, pattern string, logf func(string, ...interface{})) *Response {
	resp, err := TrapPanic(h).ServeGemini(req)
	if err == nil && resp == nil {
		err = fmt.Errorf("nil response")
	}
	if err == nil && resp.header.IsZero() {
		err = fmt.Errorf("response without header")
	}
	if err != nil {
		if resp != nil {
			resp.Close()
		}
		logf("gemini: %v", &HandlerError{Pattern: pattern, Err: err})
		return NewResponse(TemporaryFailureLossy(StatusTemporaryFailure.Text()))
	}
	return resp
}
