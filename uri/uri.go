// Package uri parses and normalizes wrapper URIs.
//
// Every URI has the canonical form wrap://{authority}/{path}. Inputs may omit
// the scheme, use the legacy w3:// scheme, or carry a leading slash; all of
// these normalize to the same value.
package uri

import (
	"strings"

	"github.com/wippyai/wrap-runtime/errors"
)

const (
	// Scheme is the canonical URI scheme.
	Scheme = "wrap"

	prefix       = Scheme + "://"
	legacyPrefix = "w3://"
)

// URI is an immutable, normalized wrapper URI.
type URI struct {
	authority string
	path      string
}

// New builds a URI from its parts, normalizing case and trailing slashes.
func New(authority, path string) (URI, error) {
	authority = strings.ToLower(strings.TrimSpace(authority))
	path = strings.TrimRight(strings.TrimSpace(path), "/")
	if authority == "" {
		return URI{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Detail("URI authority is empty").
			Build()
	}
	if path == "" {
		return URI{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Detail("URI path is empty").
			Build()
	}
	return URI{authority: authority, path: path}, nil
}

// Parse parses s into a URI.
func Parse(s string) (URI, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return URI{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Detail("URI is empty").
			Build()
	}

	raw = strings.TrimLeft(raw, "/")

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, prefix):
		raw = raw[len(prefix):]
	case strings.HasPrefix(lower, legacyPrefix):
		raw = raw[len(legacyPrefix):]
	case strings.Contains(lower, "://"):
		scheme := raw[:strings.Index(raw, "://")]
		return URI{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Value(s).
			Detail("unsupported URI scheme %q", scheme).
			Build()
	}

	authority, path, ok := strings.Cut(raw, "/")
	if !ok {
		return URI{}, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Value(s).
			Detail("URI %q has no path, expected wrap://authority/path", s).
			Build()
	}

	u, err := New(authority, path)
	if err != nil {
		var e *errors.Error
		if asError(err, &e) {
			e.Value = s
		}
		return URI{}, err
	}
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Authority returns the URI authority.
func (u URI) Authority() string { return u.authority }

// Path returns the URI path.
func (u URI) Path() string { return u.path }

// String returns the canonical wrap://{authority}/{path} form.
func (u URI) String() string {
	if u.IsZero() {
		return ""
	}
	return prefix + u.authority + "/" + u.path
}

// Key returns the normalized map key for u.
func (u URI) Key() string {
	return u.authority + "/" + u.path
}

// Equal reports whether two URIs name the same wrapper.
func (u URI) Equal(other URI) bool {
	return u.authority == other.authority && u.path == other.path
}

// IsZero reports whether u is the zero URI.
func (u URI) IsZero() bool {
	return u.authority == "" && u.path == ""
}

// MarshalText implements encoding.TextMarshaler.
func (u URI) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *URI) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}
