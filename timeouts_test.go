package gemini

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func bodyOf(mt string) *Response {
	return SuccessWithBody(MustParseMediaType(mt), strings.NewReader("x"))
}

func TestTimeoutsDefaults(t *testing.T) {
	got := Timeouts{}.withDefaults()
	require.Equal(t, DefaultTimeout, got.Request)
	require.Equal(t, DefaultTimeout, got.Response)
	require.Equal(t, DefaultComplexBodyTimeout, got.ComplexBody)
	require.Equal(t, []string{"text/gemini", "text/plain"}, got.SimpleTypes)

	got = Timeouts{Request: -1, Response: 5 * time.Second}.withDefaults()
	require.Equal(t, time.Duration(-1), got.Request)
	require.Equal(t, 5*time.Second, got.Response)
}

func TestBodyTimeout(t *testing.T) {
	tm := Timeouts{
		ComplexOverrides: map[string]time.Duration{
			"image/":     time.Minute,
			"image/gif":  2 * time.Minute,
			"audio/":     0,
			"video/mp4":  -1,
			"TEXT/HTML":  10 * time.Second,
			"text/plain": time.Hour,
		},
	}.withDefaults()

	for mt, want := range map[string]time.Duration{
		"image/png":                  time.Minute,
		"image/gif":                  2 * time.Minute,
		"audio/ogg":                  0,
		"video/mp4":                  -1,
		"text/html; charset=utf-8":   10 * time.Second,
		"application/pdf":            DefaultComplexBodyTimeout,
		"application/octet-stream":   DefaultComplexBodyTimeout,
		"text/markdown; lang=en":     DefaultComplexBodyTimeout,
		"application/x-unusual+json": DefaultComplexBodyTimeout,
	} {
		d, split := tm.bodyTimeout(bodyOf(mt))
		require.True(t, split, mt)
		require.Equal(t, want, d, mt)
	}

	for _, mt := range []string{"text/gemini", "text/gemini; lang=en", "text/plain; charset=utf-8", "Text/Plain"} {
		_, split := tm.bodyTimeout(bodyOf(mt))
		require.False(t, split, mt)
	}
}

func TestBodyTimeoutWithoutBody(t *testing.T) {
	tm := Timeouts{}.withDefaults()

	_, split := tm.bodyTimeout(NewResponse(Success(MustParseMediaType("image/png"))))
	require.False(t, split)
	_, split = tm.bodyTimeout(NotFoundResponse())
	require.False(t, split)
}

func TestBodyTimeoutDisabled(t *testing.T) {
	tm := Timeouts{ComplexBody: -1}.withDefaults()
	_, split := tm.bodyTimeout(bodyOf("image/png"))
	require.False(t, split)

	tm.ComplexOverrides = map[string]time.Duration{"image/": time.Second}
	d, split := tm.bodyTimeout(bodyOf("image/png"))
	require.True(t, split)
	require.Equal(t, time.Second, d)
}

func TestBodyTimeoutCustomSimpleTypes(t *testing.T) {
	tm := Timeouts{SimpleTypes: []string{"text/gemini"}}.withDefaults()
	d, split := tm.bodyTimeout(bodyOf("text/plain"))
	require.True(t, split)
	require.Equal(t, DefaultComplexBodyTimeout, d)
}

func TestDeadline(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, deadline(now, 0).IsZero())
	require.True(t, deadline(now, -time.Second).IsZero())
	require.Equal(t, now.Add(time.Second), deadline(now, time.Second))
}

func TestConnStateString(t *testing.T) {
	require.Equal(t, "handshaking", stateHandshaking.String())
	require.Equal(t, "writing response", stateWritingResponse.String())
	require.Equal(t, "aborted", stateAborted.String())
}
