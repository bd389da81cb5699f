package gemini

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// MaxRequestURILen is the maximum length of a request URI in bytes,
// not counting the terminating CRLF.
const MaxRequestURILen = 1024

const maxRequestLine = MaxRequestURILen + len("\r\n")

// Lists Gemini related URI schemas.
const (
	SchemaGemini = "gemini"
)

var (
	// ErrRequestTooLong is returned when no CRLF follows the first
	// MaxRequestURILen bytes of a request.
	ErrRequestTooLong = errors.New("request exceeds 1024 length")

	// ErrMalformedRequest is wrapped by every error reporting a request
	// line that is not a CRLF terminated absolute URI.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrTimeout is returned when the client does not deliver its
	// request before the read deadline.
	ErrTimeout = errors.New("request timed out")
)

// ReadRequest reads a request line from r and parses it. It never reads
// more than MaxRequestURILen+2 bytes from r.
//
// If r has a read deadline that expires, the returned error wraps
// ErrTimeout.
func ReadRequest(r io.Reader) (*Request, error) {
	line, err := readRequestLine(r)
	if err != nil {
		return nil, err
	}
	return ParseRequest(line)
}

func readRequestLine(r io.Reader) (string, error) {
	br := bufio.NewReaderSize(io.LimitReader(r, int64(maxRequestLine)), maxRequestLine)
	line := make([]byte, 0, 128)
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			if len(line) > MaxRequestURILen {
				return "", ErrRequestTooLong
			}
			return "", fmt.Errorf("%w: request is not terminated with CRLF", ErrMalformedRequest)
		}
		if err != nil {
			if isTimeout(err) {
				return "", fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return "", fmt.Errorf("failed to read request: %w", err)
		}
		if b == '\n' {
			if len(line) == 0 || line[len(line)-1] != '\r' {
				return "", fmt.Errorf("%w: bare LF in request", ErrMalformedRequest)
			}
			return string(line[:len(line)-1]), nil
		}
		line = append(line, b)
		// The only byte allowed past the limit is the CR of the terminator.
		if len(line) > MaxRequestURILen && (len(line) > MaxRequestURILen+1 || b != '\r') {
			return "", ErrRequestTooLong
		}
	}
}

// ParseRequest validates rawurl as a request URI: absolute, with a host,
// without userinfo or fragment, UTF-8 once percent-decoded.
func ParseRequest(rawurl string) (*Request, error) {
	if len(rawurl) > MaxRequestURILen {
		return nil, ErrRequestTooLong
	}
	if !utf8.ValidString(rawurl) {
		return nil, fmt.Errorf("%w: request is not valid UTF-8", ErrMalformedRequest)
	}
	if strings.HasPrefix(rawurl, "\uFEFF") {
		return nil, fmt.Errorf("%w: request starts with a byte order mark", ErrMalformedRequest)
	}
	if i := strings.IndexFunc(rawurl, notURIChar); i >= 0 {
		return nil, fmt.Errorf("%w: character %q at offset %d is not allowed in a URI", ErrMalformedRequest, rawurl[i], i)
	}
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if port := u.Port(); port != "" {
		if n, err := strconv.Atoi(port); err != nil || n > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrMalformedRequest, port)
		}
	}
	switch {
	case !u.IsAbs():
		return nil, fmt.Errorf("%w: request is missing scheme: %v", ErrMalformedRequest, rawurl)
	case u.Opaque != "":
		return nil, fmt.Errorf("%w: request is not hierarchical: %v", ErrMalformedRequest, rawurl)
	case u.Host == "" || u.Hostname() == "":
		return nil, fmt.Errorf("%w: request is missing host: %v", ErrMalformedRequest, rawurl)
	case u.User != nil:
		return nil, fmt.Errorf("%w: request must not contain userinfo", ErrMalformedRequest)
	case u.Fragment != "" || strings.Contains(rawurl, "#"):
		return nil, fmt.Errorf("%w: request must not contain a fragment", ErrMalformedRequest)
	case !utf8.ValidString(u.Path):
		return nil, fmt.Errorf("%w: path is not valid UTF-8 once decoded", ErrMalformedRequest)
	}

	r := &Request{URL: u}
	r.host, err = normalizeHost(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("%w: invalid host %q: %v", ErrMalformedRequest, u.Hostname(), err)
	}
	if u.RawQuery != "" || u.ForceQuery {
		// PathUnescape leaves '+' alone, unlike QueryUnescape.
		r.input, err = url.PathUnescape(u.RawQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
		}
		if !utf8.ValidString(r.input) {
			return nil, fmt.Errorf("%w: query is not valid UTF-8 once decoded", ErrMalformedRequest)
		}
		r.hasInput = true
	}
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	return r, nil
}

// notURIChar reports runes that may not appear in a URI, which is
// limited to the unreserved and reserved sets plus '%'.
func notURIChar(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return false
	}
	return !strings.ContainsRune("-._~:/?#[]@!$&'()*+,;=%", r)
}

func normalizeHost(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	return strings.ToLower(ascii), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
