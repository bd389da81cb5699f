package gemini

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrBodyNotAllowed is returned when a body is attached to a response
// whose status is not in the success class.
var ErrBodyNotAllowed = errors.New("gemini: only success responses may have a body")

// Response represents the response to a Gemini request.
//
// The body is read on demand while the response is written, so it may
// be arbitrarily long. The connection close marks its end.
type Response struct {
	header ResponseHeader

	// Body represents the response body. It is nil unless the header
	// belongs to the success class.
	body io.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewResponse returns a response without a body.
func NewResponse(header ResponseHeader) *Response {
	return &Response{header: header}
}

// SuccessWithBody returns a success response streaming body. If body is
// an io.Closer the response takes ownership of it and Close releases it.
func SuccessWithBody(mt MediaType, body io.Reader) *Response {
	return &Response{header: Success(mt), body: body}
}

// NotFoundResponse returns "51 Not Found" without a body.
func NotFoundResponse() *Response {
	return NewResponse(NotFound())
}

// Document returns a text/gemini response whose body is doc's text.
func Document(doc fmt.Stringer) *Response {
	return SuccessWithBody(MediaTypeGemini, strings.NewReader(doc.String()))
}

// WithBody sets the body of a success response.
func (r *Response) WithBody(body io.Reader) (*Response, error) {
	if r.header.status.Class() != ClassSuccess {
		return r, fmt.Errorf("%w: status %v", ErrBodyNotAllowed, r.header.status)
	}
	r.body = body
	return r, nil
}

func (r *Response) Header() ResponseHeader { return r.header }

// Body returns the body, nil when the response has none.
func (r *Response) Body() io.Reader { return r.body }

// Close releases the body if it holds a resource. It is safe to call
// more than once.
func (r *Response) Close() error {
	r.closeOnce.Do(func() {
		if c, ok := r.body.(io.Closer); ok {
			r.closeErr = c.Close()
		}
	})
	return r.closeErr
}

// WriteTo writes the status line followed by the raw body.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	n, err := r.header.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("failed to write response header: %w", err)
	}
	if r.body == nil {
		return n, nil
	}
	m, err := io.Copy(w, r.body)
	if err != nil {
		err = fmt.Errorf("failed to write response body: %w", err)
	}
	return n + m, err
}
