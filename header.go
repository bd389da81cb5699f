package gemini

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidStatus is returned for status codes the Gemini protocol does not define.
var ErrInvalidStatus = errors.New("invalid status code")

// ResponseHeader is the status line of a response. Values are only
// produced by the constructors below, each of which pins a status and
// checks the meta against the rules of its class.
type ResponseHeader struct {
	status Status
	meta   Meta
}

// NewResponseHeader validates an arbitrary status/meta pair. It is meant
// for values coming from outside the program, such as CGI output or a
// response read by a client.
func NewResponseHeader(status Status, meta string) (ResponseHeader, error) {
	switch status.Class() {
	case 0:
		return ResponseHeader{}, fmt.Errorf("%w: %d", ErrInvalidStatus, int(status))
	case ClassSuccess:
		mt, err := ParseMediaType(meta)
		if err != nil {
			return ResponseHeader{}, err
		}
		return ResponseHeader{status: status, meta: mt.meta}, nil
	case ClassRedirect:
		return redirect(status, meta)
	}
	if status == StatusSlowDown {
		if n, err := strconv.Atoi(meta); err != nil || n < 0 {
			return ResponseHeader{}, fmt.Errorf("%w: slow down wants a number of seconds, got %q", ErrMeta, meta)
		}
	}
	return textHeader(status, meta)
}

func textHeader(status Status, text string) (ResponseHeader, error) {
	m, err := NewMeta(text)
	if err != nil {
		return ResponseHeader{}, err
	}
	return ResponseHeader{status: status, meta: m}, nil
}

func textHeaderLossy(status Status, text string) ResponseHeader {
	return ResponseHeader{status: status, meta: NewMetaLossy(text)}
}

// Input asks the client to repeat the request with prompt's answer as query.
func Input(prompt string) (ResponseHeader, error) {
	return textHeader(StatusInput, prompt)
}

func InputLossy(prompt string) ResponseHeader {
	return textHeaderLossy(StatusInput, prompt)
}

// SensitiveInput is like Input but the client should not echo the answer.
func SensitiveInput(prompt string) (ResponseHeader, error) {
	return textHeader(StatusSensitiveInput, prompt)
}

func SensitiveInputLossy(prompt string) ResponseHeader {
	return textHeaderLossy(StatusSensitiveInput, prompt)
}

// Success announces a body of the given media type.
func Success(mt MediaType) ResponseHeader {
	if mt.IsZero() {
		mt = MediaTypeGemini
	}
	return ResponseHeader{status: StatusSuccess, meta: mt.meta}
}

func redirect(status Status, target string) (ResponseHeader, error) {
	if target == "" || strings.ContainsAny(target, " \t") {
		return ResponseHeader{}, fmt.Errorf("%w: invalid redirect target %q", ErrMeta, target)
	}
	if _, err := url.Parse(target); err != nil {
		return ResponseHeader{}, fmt.Errorf("%w: invalid redirect target: %v", ErrMeta, err)
	}
	return textHeader(status, target)
}

func redirectLossy(status Status, target string) ResponseHeader {
	h, err := redirect(status, target)
	if err != nil {
		return BadRequestLossy("Invalid redirect location")
	}
	return h
}

// RedirectTemporary sends the client to target, which may be relative.
func RedirectTemporary(target string) (ResponseHeader, error) {
	return redirect(StatusTemporaryRedirect, target)
}

// RedirectTemporaryLossy falls back to a bad request header when target
// is not a usable URI; a truncated URI would point somewhere else.
func RedirectTemporaryLossy(target string) ResponseHeader {
	return redirectLossy(StatusTemporaryRedirect, target)
}

func RedirectPermanent(target string) (ResponseHeader, error) {
	return redirect(StatusPermanentRedirect, target)
}

func RedirectPermanentLossy(target string) ResponseHeader {
	return redirectLossy(StatusPermanentRedirect, target)
}

// Failure builds a header for any failure status (4x, 5x or 6x).
func Failure(status Status, reason string) (ResponseHeader, error) {
	if !status.Class().IsFailure() {
		return ResponseHeader{}, fmt.Errorf("%w: %v is not a failure", ErrInvalidStatus, status)
	}
	if status == StatusSlowDown {
		return NewResponseHeader(status, reason)
	}
	return textHeader(status, reason)
}

// FailureLossy is like Failure but never fails: a status outside the
// failure classes becomes StatusTemporaryFailure.
func FailureLossy(status Status, reason string) ResponseHeader {
	if !status.Class().IsFailure() {
		status = StatusTemporaryFailure
	}
	if status == StatusSlowDown {
		if h, err := NewResponseHeader(status, reason); err == nil {
			return h
		}
		return SlowDown(0)
	}
	return textHeaderLossy(status, reason)
}

func TemporaryFailure(reason string) (ResponseHeader, error) {
	return textHeader(StatusTemporaryFailure, reason)
}

func TemporaryFailureLossy(reason string) ResponseHeader {
	return textHeaderLossy(StatusTemporaryFailure, reason)
}

func PermanentFailure(reason string) (ResponseHeader, error) {
	return textHeader(StatusPermanentFailure, reason)
}

func PermanentFailureLossy(reason string) ResponseHeader {
	return textHeaderLossy(StatusPermanentFailure, reason)
}

func BadRequest(reason string) (ResponseHeader, error) {
	return textHeader(StatusBadRequest, reason)
}

func BadRequestLossy(reason string) ResponseHeader {
	return textHeaderLossy(StatusBadRequest, reason)
}

func ClientCertificateRequired(reason string) (ResponseHeader, error) {
	return textHeader(StatusCertRequired, reason)
}

func ClientCertificateRequiredLossy(reason string) ResponseHeader {
	return textHeaderLossy(StatusCertRequired, reason)
}

// NotFound returns "51 Not Found".
func NotFound() ResponseHeader {
	return textHeaderLossy(StatusNotFound, StatusNotFound.Text())
}

func Gone() ResponseHeader {
	return textHeaderLossy(StatusGone, StatusGone.Text())
}

func ProxyRequestRefused() ResponseHeader {
	return textHeaderLossy(StatusProxyRefused, StatusProxyRefused.Text())
}

func ServerUnavailable() ResponseHeader {
	return textHeaderLossy(StatusServerUnavailable, StatusServerUnavailable.Text())
}

func CertificateNotAuthorized() ResponseHeader {
	return textHeaderLossy(StatusCertNotAuthorized, "Your certificate is not authorized to view this content")
}

func CertificateNotValid() ResponseHeader {
	return textHeaderLossy(StatusCertNotValid, StatusCertNotValid.Text())
}

// SlowDown asks the client to wait d before retrying, rounded up to
// whole seconds.
func SlowDown(d time.Duration) ResponseHeader {
	secs := int64(0)
	if d > 0 {
		secs = int64((d + time.Second - 1) / time.Second)
	}
	return ResponseHeader{status: StatusSlowDown, meta: Meta{s: strconv.FormatInt(secs, 10)}}
}

func (h ResponseHeader) Status() Status { return h.status }

func (h ResponseHeader) Meta() Meta { return h.meta }

// MediaType returns the media type of a success header.
func (h ResponseHeader) MediaType() (MediaType, bool) {
	if h.status.Class() != ClassSuccess {
		return MediaType{}, false
	}
	return MediaType{meta: h.meta}, true
}

// IsZero reports whether h was not built by a constructor.
func (h ResponseHeader) IsZero() bool { return h.status == 0 }

// String returns the status line without its CRLF.
func (h ResponseHeader) String() string {
	return strconv.Itoa(int(h.status)) + " " + h.meta.s
}

// WriteTo writes the status line followed by CRLF.
func (h ResponseHeader) WriteTo(w io.Writer) (int64, error) {
	if h.IsZero() {
		return 0, errors.New("gemini: zero ResponseHeader")
	}
	n, err := io.WriteString(w, h.String()+"\r\n")
	return int64(n), err
}

// ReadResponseHeader reads and validates one status line from r.
func ReadResponseHeader(r *bufio.Reader) (ResponseHeader, error) {
	raw, err := r.ReadSlice('\n')
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("failed to read header: %w", err)
	}
	line := string(raw)
	if len(line) > MetaMaxLen+5 {
		return ResponseHeader{}, fmt.Errorf("%w: header exceeds %d bytes", ErrMeta, MetaMaxLen+5)
	}
	if !strings.HasSuffix(line, "\r\n") {
		return ResponseHeader{}, errors.New("header is not terminated by CRLF")
	}
	line = strings.TrimSuffix(line, "\r\n")
	if len(line) < 3 || line[2] != ' ' {
		return ResponseHeader{}, fmt.Errorf("malformed header %q", line)
	}
	code, err := strconv.Atoi(line[:2])
	if err != nil {
		return ResponseHeader{}, fmt.Errorf("unexpected status value %q: %v", line[:2], err)
	}
	return NewResponseHeader(Status(code), line[3:])
}
