package gemini

import (
	"strings"
	"time"
)

// Default durations used for zero Timeouts fields.
const (
	DefaultTimeout            = time.Second
	DefaultComplexBodyTimeout = 30 * time.Second
)

// Timeouts bounds every stage of a connection in which the server waits
// on the client. A zero field takes its default; a negative Request or
// Response removes the bound.
type Timeouts struct {
	// Request bounds the TLS handshake and the delivery of the request
	// line. A client that misses it is disconnected without a response.
	Request time.Duration

	// Response bounds writing the whole response.
	Response time.Duration

	// ComplexBody replaces Response for the body of success responses
	// whose media type is not listed in SimpleTypes. Clients usually ask
	// their user what to do with such bodies in the middle of the
	// transfer. The header is still bounded by Response. Zero means
	// DefaultComplexBodyTimeout; negative disables the override.
	ComplexBody time.Duration

	// ComplexOverrides maps media type prefixes such as "image/" or
	// "audio/ogg" to a body timeout and takes precedence over
	// ComplexBody. The longest matching prefix wins. A value <= 0 leaves
	// the body unbounded, for open-ended streams.
	ComplexOverrides map[string]time.Duration

	// SimpleTypes lists the media types, without parameters, that every
	// client displays inline. Nil means text/gemini and text/plain.
	SimpleTypes []string
}

var defaultSimpleTypes = []string{"text/gemini", "text/plain"}

func (t Timeouts) withDefaults() Timeouts {
	if t.Request == 0 {
		t.Request = DefaultTimeout
	}
	if t.Response == 0 {
		t.Response = DefaultTimeout
	}
	if t.ComplexBody == 0 {
		t.ComplexBody = DefaultComplexBodyTimeout
	}
	if t.SimpleTypes == nil {
		t.SimpleTypes = defaultSimpleTypes
	}
	return t
}

// bodyTimeout reports whether the body of resp gets its own deadline
// and how long it is. A duration <= 0 means no deadline.
func (t Timeouts) bodyTimeout(resp *Response) (time.Duration, bool) {
	if resp.Body() == nil {
		return 0, false
	}
	mt, ok := resp.Header().MediaType()
	if !ok {
		return 0, false
	}
	essence := mt.Essence()
	for _, simple := range t.SimpleTypes {
		if strings.EqualFold(essence, simple) {
			return 0, false
		}
	}
	var (
		longest string
		d       time.Duration
		found   bool
	)
	for prefix, v := range t.ComplexOverrides {
		p := strings.ToLower(prefix)
		if strings.HasPrefix(essence, p) && (!found || len(p) > len(longest)) {
			longest, d, found = p, v, true
		}
	}
	if found {
		return d, true
	}
	if t.ComplexBody < 0 {
		return 0, false
	}
	return t.ComplexBody, true
}

// deadline turns a timeout into an absolute deadline; the zero time
// means none.
func deadline(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return now.Add(d)
}
