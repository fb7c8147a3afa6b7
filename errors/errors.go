package errors

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve Phase = "resolve" // URI resolution
	PhaseLoad    Phase = "load"    // package/manifest loading
	PhaseEncode  Phase = "encode"  // Go to wire
	PhaseDecode  Phase = "decode"  // wire to Go
	PhaseInvoke  Phase = "invoke"  // method invocation
	PhasePool    Phase = "pool"    // memory pool
	PhaseFile    Phase = "file"    // file access
	PhaseConfig  Phase = "config"  // configuration
	PhaseParse   Phase = "parse"   // URI/type expression parsing
)

// Kind categorizes the error
type Kind string

const (
	KindUriNotFound       Kind = "uri_not_found"
	KindInfiniteLoop      Kind = "infinite_loop"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindMethodNotFound    Kind = "method_not_found"
	KindModuleExecution   Kind = "module_execution"
	KindFileNotFound      Kind = "file_not_found"
	KindPoolTimeout       Kind = "pool_timeout"
	KindOverflow          Kind = "overflow"
	KindTypeMismatch      Kind = "type_mismatch"
	KindInvalidData       Kind = "invalid_data"
	KindFieldMissing      Kind = "field_missing"
	KindInvalidEnum       Kind = "invalid_enum"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindUnsupported       Kind = "unsupported"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInstantiation     Kind = "instantiation"
	KindValidation        Kind = "validation"
	KindResolverFailed    Kind = "resolver_failed"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	URI    string
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.URI != "" {
		b.WriteString(" (")
		b.WriteString(e.URI)
		b.WriteByte(')')
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches on Kind alone, which is how the Err* sentinels work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinels for errors.Is, matching any phase.
var (
	ErrUriNotFound       = &Error{Kind: KindUriNotFound}
	ErrInfiniteLoop      = &Error{Kind: KindInfiniteLoop}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrMethodNotFound    = &Error{Kind: KindMethodNotFound}
	ErrModuleExecution   = &Error{Kind: KindModuleExecution}
	ErrFileNotFound      = &Error{Kind: KindFileNotFound}
	ErrPoolTimeout       = &Error{Kind: KindPoolTimeout}
	ErrOverflow          = &Error{Kind: KindOverflow}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// URI sets the wrapper URI the error relates to
func (b *Builder) URI(uri string) *Builder {
	b.err.URI = uri
	return b
}

// Type sets the ABI type expression involved
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the runtime error taxonomy

// UriNotFound reports a URI no resolver could turn into a package.
func UriNotFound(uri string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUriNotFound,
		URI:    uri,
		Detail: "unable to find URI",
	}
}

// InfiniteLoop reports a redirect cycle or an exceeded resolution depth.
func InfiniteLoop(uri string, detail string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindInfiniteLoop,
		URI:    uri,
		Detail: detail,
	}
}

// UnsupportedFormat reports a manifest format outside the known set.
func UnsupportedFormat(format string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindUnsupportedFormat,
		Value:  format,
		Detail: fmt.Sprintf("unrecognized manifest format %q", format),
	}
}

// MethodNotFound reports a method missing from a wrapper's ABI.
func MethodNotFound(uri, method string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindMethodNotFound,
		URI:    uri,
		Detail: fmt.Sprintf("method %q not found", method),
	}
}

// ModuleExecution wraps a trap, abort or guest-reported failure.
func ModuleExecution(uri, message string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindModuleExecution,
		URI:    uri,
		Detail: message,
		Cause:  cause,
	}
}

// FileNotFound reports a path no file reader could serve.
func FileNotFound(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseFile,
		Kind:   KindFileNotFound,
		Path:   []string{path},
		Detail: fmt.Sprintf("file %q not found", path),
		Cause:  cause,
	}
}

// PoolTimeout reports that no pool slot became free within the wait budget.
func PoolTimeout(max int, cause error) *Error {
	return &Error{
		Phase:  PhasePool,
		Kind:   KindPoolTimeout,
		Detail: fmt.Sprintf("pool exhausted: %d regions in use", max),
		Cause:  cause,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, typ string, got any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   typ,
		Value:  got,
		Detail: fmt.Sprintf("unexpected %T", got),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Type:   targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// InvalidEnum creates an invalid enum value error
func InvalidEnum(phase Phase, path []string, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Path:   path,
		Type:   enumType,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Validation creates a validation error
func Validation(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindValidation,
		Path:   path,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(uri string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		URI:    uri,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Append combines errors in order, dropping nils.
func Append(left, right error) error {
	return multierr.Append(left, right)
}

// Combine combines errors in order, dropping nils.
func Combine(errs ...error) error {
	return multierr.Combine(errs...)
}

// List returns the ordered errors contained in err.
func List(err error) []error {
	return multierr.Errors(err)
}

// First returns the first error contained in err, or nil.
func First(err error) error {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}
