package gemini

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrConflictingRoute is returned when a pattern matches exactly the
	// same requests as an already registered one.
	ErrConflictingRoute = errors.New("route conflicts with an existing route")

	// ErrInvalidPattern is returned for patterns the router cannot parse.
	ErrInvalidPattern = errors.New("invalid route pattern")

	// ErrRouterFrozen is returned when a route is registered after the
	// router started dispatching.
	ErrRouterFrozen = errors.New("router is already dispatching")
)

// Router matches the path of a request against registered patterns and
// calls the handler of the best match.
//
// Patterns are made of "/" separated segments:
//
//	/about        exact path
//	/docs/*       /docs and every path below it
//	/users/:id    one segment bound to the parameter "id"
//	/users/:id/*  parameters can be combined with a prefix
//
// Exact patterns win over prefix patterns. Among prefix patterns the
// longest one wins. On equal length a literal segment wins over a
// parameter. Paths are cleaned first, so "/about/" is the same as
// "/about".
//
// All routes must be registered before the router serves its first
// request; from then on the route table is read-only and may be used
// by any number of connections at once.
type Router struct {
	// ErrorLog specifies an optional logger for handler failures.
	// If nil, logging is done via the log package's standard logger.
	ErrorLog *log.Logger

	mu       sync.Mutex
	root     routeNode
	patterns []string
	frozen   atomic.Bool
}

type route struct {
	pattern string
	params  []string
	handler Handler
}

type routeNode struct {
	literal map[string]*routeNode
	param   *routeNode
	exact   *route
	prefix  *route
}

var _ Handler = (*Router)(nil)

// NewRouter returns an empty router.
func NewRouter() *Router {
	return new(Router)
}

// Register adds a route for pattern.
func (rt *Router) Register(pattern string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrInvalidPattern, pattern)
	}
	segs, isPrefix, err := parsePattern(pattern)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.frozen.Load() {
		return fmt.Errorf("%w: cannot add %q", ErrRouterFrozen, pattern)
	}

	r := &route{pattern: pattern, handler: handler}
	node := &rt.root
	for _, seg := range segs {
		if strings.HasPrefix(seg, ":") {
			r.params = append(r.params, seg[1:])
			if node.param == nil {
				node.param = new(routeNode)
			}
			node = node.param
			continue
		}
		if node.literal == nil {
			node.literal = make(map[string]*routeNode)
		}
		child, ok := node.literal[seg]
		if !ok {
			child = new(routeNode)
			node.literal[seg] = child
		}
		node = child
	}

	slot := &node.exact
	if isPrefix {
		slot = &node.prefix
	}
	if *slot != nil {
		return fmt.Errorf("%w: %q and %q", ErrConflictingRoute, (*slot).pattern, pattern)
	}
	*slot = r
	rt.patterns = append(rt.patterns, pattern)
	return nil
}

// Handle registers handler for pattern and panics if that fails, like
// http.ServeMux. Use Register for patterns built at run time.
func (rt *Router) Handle(pattern string, handler Handler) {
	if err := rt.Register(pattern, handler); err != nil {
		panic(err)
	}
}

// HandleFunc registers a handler function for pattern.
func (rt *Router) HandleFunc(pattern string, fn func(*Request) (*Response, error)) {
	rt.Handle(pattern, HandlerFunc(fn))
}

// Patterns returns the registered patterns in sorted order.
func (rt *Router) Patterns() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	patterns := append([]string(nil), rt.patterns...)
	sort.Strings(patterns)
	return patterns
}

// Dispatch routes req to its handler. It always returns a response: a
// request no pattern matches gets "51 Not Found" and a failing handler
// gets a temporary failure.
func (rt *Router) Dispatch(req *Request) *Response {
	rt.freeze()

	segs := req.Segments()
	m := rt.root.match(segs)
	if m.route == nil {
		return NotFoundResponse()
	}
	routed := req.clone()
	routed.params = make(map[string]string, len(m.values))
	for i, name := range m.route.params {
		routed.params[name] = m.values[i]
	}
	routed.trailing = segs[m.depth:]
	return callHandler(m.route.handler, routed, m.route.pattern, rt.logf)
}

// freeze makes the route table read-only. The first call waits for a
// registration in progress so that no walk observes a half-built node.
func (rt *Router) freeze() {
	if rt.frozen.Load() {
		return
	}
	rt.mu.Lock()
	rt.frozen.Store(true)
	rt.mu.Unlock()
}

// ServeGemini lets a Router be used wherever a Handler is expected.
func (rt *Router) ServeGemini(req *Request) (*Response, error) {
	return rt.Dispatch(req), nil
}

func (rt *Router) logf(format string, args ...interface{}) {
	if rt.ErrorLog != nil {
		rt.ErrorLog.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

type routeMatch struct {
	route    *route
	values   []string
	depth    int
	literals int
	exact    bool
}

// better reports whether m should replace best.
func (m routeMatch) better(best routeMatch) bool {
	switch {
	case best.route == nil:
		return true
	case m.exact != best.exact:
		return m.exact
	case m.exact:
		return false
	case m.depth != best.depth:
		return m.depth > best.depth
	default:
		return m.literals > best.literals
	}
}

func (n *routeNode) match(segs []string) routeMatch {
	var best routeMatch
	n.walk(segs, 0, nil, 0, &best)
	return best
}

// walk visits literal children before parameter children, so the first
// exact match found has the most literal segments towards the front.
func (n *routeNode) walk(segs []string, i int, values []string, literals int, best *routeMatch) {
	if n.prefix != nil {
		m := routeMatch{route: n.prefix, values: values, depth: i, literals: literals}
		if m.better(*best) {
			*best = m
		}
	}
	if i == len(segs) {
		if n.exact != nil {
			m := routeMatch{route: n.exact, values: values, depth: i, literals: literals, exact: true}
			if m.better(*best) {
				*best = m
			}
		}
		return
	}
	if best.exact {
		return
	}
	if child, ok := n.literal[segs[i]]; ok {
		child.walk(segs, i+1, values, literals+1, best)
	}
	if n.param != nil && !best.exact {
		next := append(values[:len(values):len(values)], segs[i])
		n.param.walk(segs, i+1, next, literals, best)
	}
}

// parsePattern validates pattern and returns its segments without a
// trailing "*".
func parsePattern(pattern string) (segs []string, isPrefix bool, err error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, false, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}
	segs = splitPath(pattern)
	if n := len(segs); n > 0 && segs[n-1] == "*" {
		segs, isPrefix = segs[:n-1], true
	}
	seen := make(map[string]bool)
	for _, seg := range segs {
		switch {
		case seg == "*":
			return nil, false, fmt.Errorf("%w: %q has * before its last segment", ErrInvalidPattern, pattern)
		case seg == ":":
			return nil, false, fmt.Errorf("%w: %q has an unnamed parameter", ErrInvalidPattern, pattern)
		case strings.HasPrefix(seg, ":"):
			if seen[seg] {
				return nil, false, fmt.Errorf("%w: %q repeats parameter %s", ErrInvalidPattern, pattern, seg)
			}
			seen[seg] = true
		}
	}
	return segs, isPrefix, nil
}
