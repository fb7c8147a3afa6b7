package core

import (
	"fmt"
	"strings"
	"sync"

	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/uri"
)

// DefaultMaxDepth caps how many URIs one resolution may be resolving at once.
const DefaultMaxDepth = 16

// Outcome classifies a Resolution.
type Outcome int

const (
	// OutcomeNotFound means no resolver knew the URI.
	OutcomeNotFound Outcome = iota
	// OutcomeRedirect means resolution continues at Resolution.URI.
	OutcomeRedirect
	// OutcomePackage means Resolution.Package serves the URI.
	OutcomePackage
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRedirect:
		return "redirect"
	case OutcomePackage:
		return "package"
	}
	return "not found"
}

// Resolution is what a resolver produced for a URI: a package, a URI to
// continue at, or nothing.
type Resolution struct {
	Package Package
	URI     uri.URI
	Outcome Outcome
}

// NotFound returns the resolution for a URI no resolver knew.
func NotFound(u uri.URI) Resolution {
	return Resolution{URI: u}
}

// Redirect returns a resolution that continues at to. A redirect to the URI
// being resolved is still a redirect and ends in a cycle error.
func Redirect(to uri.URI) Resolution {
	return Resolution{URI: to, Outcome: OutcomeRedirect}
}

// Found returns a resolution that serves pkg for u.
func Found(u uri.URI, pkg Package) Resolution {
	return Resolution{URI: u, Package: pkg, Outcome: OutcomePackage}
}

func (r Resolution) IsPackage() bool  { return r.Outcome == OutcomePackage }
func (r Resolution) IsRedirect() bool { return r.Outcome == OutcomeRedirect }
func (r Resolution) IsNotFound() bool { return r.Outcome == OutcomeNotFound }

func (r Resolution) String() string {
	return r.Outcome.String() + " " + r.URI.String()
}

// Step records one resolver's answer.
type Step struct {
	Err         error
	Resolver    string
	Description string
	SubHistory  []Step
	Result      Resolution
	URI         uri.URI
}

// resolving is shared by a context and every sub-context created from it.
type resolving struct {
	set  map[string]int
	path []uri.URI
	mu   sync.Mutex
}

// ResolutionContext tracks one resolution: the URIs currently being resolved
// (shared with sub-contexts, for cycle detection) and the steps taken.
// Safe for concurrent use.
type ResolutionContext struct {
	shared   *resolving
	history  []Step
	maxDepth int
	mu       sync.Mutex
}

// NewResolutionContext creates a context. maxDepth <= 0 means DefaultMaxDepth.
func NewResolutionContext(maxDepth int) *ResolutionContext {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &ResolutionContext{
		shared:   &resolving{set: make(map[string]int)},
		maxDepth: maxDepth,
	}
}

// MaxDepth returns the depth cap.
func (rc *ResolutionContext) MaxDepth() int {
	return rc.maxDepth
}

// StartResolving marks u as being resolved. Revisiting a URI already in the
// chain, or exceeding the depth cap, fails with an infinite loop error.
func (rc *ResolutionContext) StartResolving(u uri.URI) error {
	s := rc.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set[u.Key()] > 0 {
		return errors.InfiniteLoop(u.String(), "cycle: "+formatPath(s.path, u))
	}
	if len(s.path) >= rc.maxDepth {
		return errors.InfiniteLoop(u.String(),
			fmt.Sprintf("resolution depth exceeded %d: %s", rc.maxDepth, formatPath(s.path, u)))
	}
	s.set[u.Key()]++
	s.path = append(s.path, u)
	return nil
}

// StopResolving removes u from the chain.
func (rc *ResolutionContext) StopResolving(u uri.URI) {
	s := rc.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	key := u.Key()
	if s.set[key] == 0 {
		return
	}
	s.set[key]--
	if s.set[key] == 0 {
		delete(s.set, key)
	}
	for i := len(s.path) - 1; i >= 0; i-- {
		if s.path[i].Equal(u) {
			s.path = append(s.path[:i], s.path[i+1:]...)
			break
		}
	}
}

// IsResolving reports whether u is in the chain.
func (rc *ResolutionContext) IsResolving(u uri.URI) bool {
	s := rc.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set[u.Key()] > 0
}

// Path returns the URIs being resolved, outermost first.
func (rc *ResolutionContext) Path() []uri.URI {
	s := rc.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uri.URI(nil), s.path...)
}

// TrackStep appends a step to the history.
func (rc *ResolutionContext) TrackStep(step Step) {
	rc.mu.Lock()
	rc.history = append(rc.history, step)
	rc.mu.Unlock()
}

// History returns the recorded steps.
func (rc *ResolutionContext) History() []Step {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Step(nil), rc.history...)
}

// SubContext returns a context with its own history that shares the chain
// of URIs being resolved, so cycles through nested resolutions are caught.
func (rc *ResolutionContext) SubContext() *ResolutionContext {
	return &ResolutionContext{shared: rc.shared, maxDepth: rc.maxDepth}
}

func formatPath(path []uri.URI, next uri.URI) string {
	parts := make([]string, 0, len(path)+1)
	for _, u := range path {
		parts = append(parts, u.String())
	}
	parts = append(parts, next.String())
	return strings.Join(parts, " => ")
}
