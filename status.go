package gemini

import "strconv"

// Status is a Gemini status code as defined in the Gemini protocol.
type Status int

// Provides status codes.
const (
	StatusInput             Status = 10
	StatusSensitiveInput    Status = 11
	StatusSuccess           Status = 20
	StatusTemporaryRedirect Status = 30
	StatusPermanentRedirect Status = 31
	StatusTemporaryFailure  Status = 40
	StatusServerUnavailable Status = 41
	StatusCGIError          Status = 42
	StatusProxyError        Status = 43
	StatusSlowDown          Status = 44
	StatusPermanentFailure  Status = 50
	StatusNotFound          Status = 51
	StatusGone              Status = 52
	StatusProxyRefused      Status = 53
	StatusBadRequest        Status = 59
	StatusCertRequired      Status = 60
	StatusCertNotAuthorized Status = 61
	StatusCertNotValid      Status = 62
)

var statusText = map[Status]string{
	StatusInput:             "Input",
	StatusSensitiveInput:    "Sensitive Input",
	StatusSuccess:           "Success",
	StatusTemporaryRedirect: "Temporary Redirect",
	StatusPermanentRedirect: "Permanent Redirect",
	StatusTemporaryFailure:  "Temporary Failure",
	StatusServerUnavailable: "Server Unavailable",
	StatusCGIError:          "CGI Error",
	StatusProxyError:        "Proxy Error",
	StatusSlowDown:          "Slow Down",
	StatusPermanentFailure:  "Permanent Failure",
	StatusNotFound:          "Not Found",
	StatusGone:              "Gone",
	StatusProxyRefused:      "Proxy Request Refused",
	StatusBadRequest:        "Bad Request",
	StatusCertRequired:      "Client Certificate Required",
	StatusCertNotAuthorized: "Certificate Not Authorized",
	StatusCertNotValid:      "Certificate Not Valid",
}

// StatusClass groups status codes by their first digit.
type StatusClass int

// The six status classes.
const (
	ClassInput StatusClass = iota + 1
	ClassSuccess
	ClassRedirect
	ClassTemporaryFailure
	ClassPermanentFailure
	ClassClientCertificateRequired
)

var classText = [...]string{
	ClassInput:                     "input",
	ClassSuccess:                   "success",
	ClassRedirect:                  "redirect",
	ClassTemporaryFailure:          "temporary failure",
	ClassPermanentFailure:          "permanent failure",
	ClassClientCertificateRequired: "client certificate required",
}

func (c StatusClass) String() string {
	if c < ClassInput || c > ClassClientCertificateRequired {
		return "StatusClass(" + strconv.Itoa(int(c)) + ")"
	}
	return classText[c]
}

// IsFailure reports whether the class is one of the failure classes,
// whose meta is a human readable reason.
func (c StatusClass) IsFailure() bool {
	return c == ClassTemporaryFailure || c == ClassPermanentFailure || c == ClassClientCertificateRequired
}

// Valid reports whether s is defined by the Gemini protocol.
func (s Status) Valid() bool {
	_, ok := statusText[s]
	return ok
}

// Class returns the class of a valid status, 0 otherwise.
func (s Status) Class() StatusClass {
	if !s.Valid() {
		return 0
	}
	return StatusClass(s / 10)
}

// Text returns the canonical description of the status.
func (s Status) Text() string {
	return statusText[s]
}

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return strconv.Itoa(int(s)) + " " + t
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// SimplifyStatus simplify the response status by omiting the detailed second digit of the status code.
func SimplifyStatus(status Status) Status {
	return (status / 10) * 10
}
