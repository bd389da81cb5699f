package gemini_test

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	gemini "github.com/knowfox/geminid"
	"github.com/stretchr/testify/require"
)

// named answers with its name as text/plain body.
func named(name string) gemini.Handler {
	return gemini.HandlerFunc(func(r *gemini.Request) (*gemini.Response, error) {
		return gemini.SuccessWithBody(gemini.MediaTypePlain, strings.NewReader(name)), nil
	})
}

func dispatch(t *testing.T, rt *gemini.Router, rawurl string) (gemini.ResponseHeader, string) {
	t.Helper()
	req, err := gemini.ParseRequest(rawurl)
	require.NoError(t, err)
	resp := rt.Dispatch(req)
	require.NotNil(t, resp)
	defer resp.Close()
	if resp.Body() == nil {
		return resp.Header(), ""
	}
	body, err := io.ReadAll(resp.Body())
	require.NoError(t, err)
	return resp.Header(), string(body)
}

func quietRouter() *gemini.Router {
	rt := gemini.NewRouter()
	rt.ErrorLog = log.New(io.Discard, "", 0)
	return rt
}

func TestRouterExactBeatsPrefix(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/a", named("exact"))
	rt.Handle("/a/*", named("prefix"))

	_, body := dispatch(t, rt, "gemini://example.org/a")
	require.Equal(t, "exact", body)

	_, body = dispatch(t, rt, "gemini://example.org/a/b")
	require.Equal(t, "prefix", body)

	header, _ := dispatch(t, rt, "gemini://example.org/z")
	require.Equal(t, gemini.StatusNotFound, header.Status())
	require.Equal(t, "Not Found", header.Meta().String())
}

func TestRouterPrefixMatchesItsRoot(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/docs/*", named("docs"))

	_, body := dispatch(t, rt, "gemini://example.org/docs")
	require.Equal(t, "docs", body)
	_, body = dispatch(t, rt, "gemini://example.org/docs/")
	require.Equal(t, "docs", body)
	header, _ := dispatch(t, rt, "gemini://example.org/documents")
	require.Equal(t, gemini.StatusNotFound, header.Status())
}

func TestRouterRoot(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/", named("home"))

	_, body := dispatch(t, rt, "gemini://example.org")
	require.Equal(t, "home", body)
	_, body = dispatch(t, rt, "gemini://example.org/")
	require.Equal(t, "home", body)
	header, _ := dispatch(t, rt, "gemini://example.org/other")
	require.Equal(t, gemini.StatusNotFound, header.Status())
}

func TestRouterLongestPrefixWins(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/*", named("root"))
	rt.Handle("/api/*", named("api"))
	rt.Handle("/api/v1/*", named("v1"))

	for path, want := range map[string]string{
		"/":           "root",
		"/other":      "root",
		"/api":        "api",
		"/api/v2/x":   "api",
		"/api/v1":     "v1",
		"/api/v1/x/y": "v1",
	} {
		_, body := dispatch(t, rt, "gemini://example.org"+path)
		require.Equal(t, want, body, path)
	}
}

func TestRouterParamsAndTrailing(t *testing.T) {
	rt := quietRouter()
	var (
		params   map[string]string
		trailing []string
	)
	rt.HandleFunc("/users/:id/files/*", func(r *gemini.Request) (*gemini.Response, error) {
		params, trailing = r.Params(), r.Trailing()
		return gemini.NewResponse(gemini.NotFound()), nil
	})

	dispatch(t, rt, "gemini://example.org/users/42/files/a/b.txt")
	require.Equal(t, map[string]string{"id": "42"}, params)
	require.Equal(t, []string{"a", "b.txt"}, trailing)

	dispatch(t, rt, "gemini://example.org/users/7/files")
	require.Equal(t, "7", params["id"])
	require.Empty(t, trailing)
}

func TestRouterParamValues(t *testing.T) {
	rt := quietRouter()
	rt.HandleFunc("/greet/:name", func(r *gemini.Request) (*gemini.Response, error) {
		return gemini.SuccessWithBody(gemini.MediaTypePlain, strings.NewReader(r.Param("name"))), nil
	})

	_, body := dispatch(t, rt, "gemini://example.org/greet/caf%C3%A9")
	require.Equal(t, "café", body)

	header, _ := dispatch(t, rt, "gemini://example.org/greet")
	require.Equal(t, gemini.StatusNotFound, header.Status())
	header, _ = dispatch(t, rt, "gemini://example.org/greet/a/b")
	require.Equal(t, gemini.StatusNotFound, header.Status())
}

func TestRouterLiteralBeatsParam(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/users/:id", named("param"))
	rt.Handle("/users/me", named("literal"))
	rt.Handle("/:section/*", named("section"))

	_, body := dispatch(t, rt, "gemini://example.org/users/me")
	require.Equal(t, "literal", body)
	_, body = dispatch(t, rt, "gemini://example.org/users/42")
	require.Equal(t, "param", body)
	_, body = dispatch(t, rt, "gemini://example.org/users/42/more")
	require.Equal(t, "section", body)
}

func TestRouterPlainRequestHasNoParams(t *testing.T) {
	req, err := gemini.ParseRequest("gemini://example.org/a")
	require.NoError(t, err)
	require.Empty(t, req.Param("x"))
	require.NotNil(t, req.Params())
	require.Nil(t, req.Trailing())
}

func TestRouterHandlerFailures(t *testing.T) {
	var logs bytes.Buffer
	rt := gemini.NewRouter()
	rt.ErrorLog = log.New(&logs, "", 0)
	rt.HandleFunc("/error", func(r *gemini.Request) (*gemini.Response, error) {
		return nil, errors.New("database is down")
	})
	rt.HandleFunc("/panic", func(r *gemini.Request) (*gemini.Response, error) {
		panic("boom")
	})
	rt.HandleFunc("/nil", func(r *gemini.Request) (*gemini.Response, error) {
		return nil, nil
	})
	rt.HandleFunc("/zero", func(r *gemini.Request) (*gemini.Response, error) {
		return new(gemini.Response), nil
	})

	for _, path := range []string{"/error", "/panic", "/nil", "/zero"} {
		header, body := dispatch(t, rt, "gemini://example.org"+path)
		require.Equal(t, gemini.StatusTemporaryFailure, header.Status(), path)
		require.Empty(t, body)
	}
	require.Contains(t, logs.String(), "handler for /error failed: database is down")
}

func TestRouterRegisterErrors(t *testing.T) {
	rt := quietRouter()
	require.NoError(t, rt.Register("/a", named("a")))
	require.NoError(t, rt.Register("/a/*", named("a*")))
	require.NoError(t, rt.Register("/u/:id", named("u")))

	require.ErrorIs(t, rt.Register("/a", named("again")), gemini.ErrConflictingRoute)
	require.ErrorIs(t, rt.Register("/a/", named("again")), gemini.ErrConflictingRoute)
	require.ErrorIs(t, rt.Register("/a/*", named("again")), gemini.ErrConflictingRoute)
	require.ErrorIs(t, rt.Register("/u/:name", named("again")), gemini.ErrConflictingRoute)

	for _, pattern := range []string{"", "a", "/*/a", "/a/:", "/:x/:x"} {
		require.ErrorIs(t, rt.Register(pattern, named("bad")), gemini.ErrInvalidPattern, pattern)
	}
	require.ErrorIs(t, rt.Register("/b", nil), gemini.ErrInvalidPattern)
	require.Panics(t, func() { rt.Handle("/a", named("again")) })

	require.Equal(t, []string{"/a", "/a/*", "/u/:id"}, rt.Patterns())
}

func TestRouterFrozenAfterDispatch(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/a", named("a"))
	dispatch(t, rt, "gemini://example.org/a")

	require.ErrorIs(t, rt.Register("/b", named("b")), gemini.ErrRouterFrozen)
	header, _ := dispatch(t, rt, "gemini://example.org/b")
	require.Equal(t, gemini.StatusNotFound, header.Status())
}

func TestRouterConcurrentDispatch(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/a", named("a"))
	rt.Handle("/b/:x", named("b"))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := gemini.ParseRequest("gemini://example.org/b/" + strings.Repeat("x", i+1))
			resp := rt.Dispatch(req)
			defer resp.Close()
			if resp.Header().Status() != gemini.StatusSuccess {
				t.Errorf("unexpected status %v", resp.Header().Status())
			}
		}(i)
	}
	wg.Wait()
}

func TestRouterRegisterRacesFirstDispatch(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/", named("home"))

	var wg sync.WaitGroup
	registered := make([]bool, 64)
	for i := range registered {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := rt.Register("/p"+strings.Repeat("x", i+1)+"/:id", named("p"))
			if err != nil && !errors.Is(err, gemini.ErrRouterFrozen) {
				t.Errorf("unexpected error: %v", err)
			}
			registered[i] = err == nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := gemini.ParseRequest("gemini://example.org/pxx/1")
			rt.Dispatch(req).Close()
		}()
	}
	wg.Wait()

	require.ErrorIs(t, rt.Register("/late", named("late")), gemini.ErrRouterFrozen)
	header, _ := dispatch(t, rt, "gemini://example.org/pxx/1")
	if registered[1] {
		require.Equal(t, gemini.StatusSuccess, header.Status())
	} else {
		require.Equal(t, gemini.StatusNotFound, header.Status())
	}
}

func TestRouterDoesNotMutateRequest(t *testing.T) {
	rt := quietRouter()
	rt.Handle("/x/:id", named("x"))
	req, err := gemini.ParseRequest("gemini://example.org/x/1")
	require.NoError(t, err)
	rt.Dispatch(req).Close()
	require.Empty(t, req.Params())
}
