// Package files serves the files that make up a wrapper: its wrap.info
// manifest, its wrap.wasm module and anything else it ships.
//
// Readers are composable. Memory readers answer the two conventional paths
// from bytes held in the process, FS readers read from an afero filesystem,
// and Chain and Redirect combine them.
package files

import (
	"context"
	stderrors "errors"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/wippyai/wrap-runtime/errors"
)

// Conventional paths inside a wrapper package.
const (
	ManifestPath = "wrap.info"
	ModulePath   = "wrap.wasm"
)

// Reader reads a file of a wrapper package by relative path.
type Reader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// ReaderFunc adapts a function to Reader. It is also how a lazily computed
// file source is expressed.
type ReaderFunc func(ctx context.Context, path string) ([]byte, error)

func (f ReaderFunc) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Clean normalizes a package-relative path: leading slashes and "./" are
// dropped and "a/../b" is folded.
func Clean(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// ReadString reads path and decodes it from the named text encoding.
// An empty encoding means UTF-8.
func ReadString(ctx context.Context, r Reader, path, encoding string) (string, error) {
	data, err := r.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return Decode(data, encoding)
}

// Decode converts data in the named IANA encoding to a Go string.
func Decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return string(data), nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil {
		return "", errors.New(errors.PhaseFile, errors.KindUnsupported).
			Value(encoding).
			Cause(err).
			Detail("unknown text encoding %q", encoding).
			Build()
	}
	if enc == nil {
		return "", errors.Unsupported(errors.PhaseFile, "text encoding "+encoding)
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.New(errors.PhaseFile, errors.KindInvalidData).
			Cause(err).
			Detail("decode %s text", encoding).
			Build()
	}
	return string(out), nil
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	return stderrors.Is(err, errors.ErrFileNotFound) || stderrors.Is(err, os.ErrNotExist)
}

type memory struct {
	fallback Reader
	manifest []byte
	module   []byte
}

// NewMemory serves wrap.info and wrap.wasm from bytes. Other paths, and
// conventional paths whose bytes are nil, go to fallback when it is set.
func NewMemory(manifest, module []byte, fallback Reader) Reader {
	return &memory{manifest: manifest, module: module, fallback: fallback}
}

// FromManifest serves wrap.info from bytes and everything else from fallback.
func FromManifest(manifest []byte, fallback Reader) Reader {
	return NewMemory(manifest, nil, fallback)
}

// FromModule serves wrap.wasm from bytes and everything else from fallback.
func FromModule(module []byte, fallback Reader) Reader {
	return NewMemory(nil, module, fallback)
}

func (m *memory) ReadFile(ctx context.Context, p string) ([]byte, error) {
	switch Clean(p) {
	case ManifestPath:
		if m.manifest != nil {
			return m.manifest, nil
		}
	case ModulePath:
		if m.module != nil {
			return m.module, nil
		}
	}
	if m.fallback != nil {
		return m.fallback.ReadFile(ctx, p)
	}
	return nil, errors.FileNotFound(p, nil)
}

type mapReader map[string][]byte

// NewMap serves files from a map keyed by package-relative path.
func NewMap(files map[string][]byte) Reader {
	m := make(mapReader, len(files))
	for k, v := range files {
		m[Clean(k)] = v
	}
	return m
}

func (m mapReader) ReadFile(_ context.Context, p string) ([]byte, error) {
	data, ok := m[Clean(p)]
	if !ok {
		return nil, errors.FileNotFound(p, nil)
	}
	return data, nil
}

type fsReader struct {
	fs   afero.Fs
	root string
}

// NewFS serves files below root on fs.
func NewFS(fs afero.Fs, root string) Reader {
	return &fsReader{fs: fs, root: root}
}

// NewOS serves files below dir on the host filesystem.
func NewOS(dir string) Reader {
	return NewFS(afero.NewOsFs(), dir)
}

func (r *fsReader) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full := path.Join(r.root, Clean(p))
	data, err := afero.ReadFile(r.fs, full)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.FileNotFound(p, err)
		}
		return nil, errors.New(errors.PhaseFile, errors.KindInvalidInput).
			Path(p).
			Cause(err).
			Detail("read %s", full).
			Build()
	}
	return data, nil
}

type chain []Reader

// Chain tries readers in order and returns the first successful read.
// When every reader fails, failures other than "not found" are returned
// together, in order; if every reader missed, the error is file not found.
func Chain(readers ...Reader) Reader {
	return chain(readers)
}

func (c chain) ReadFile(ctx context.Context, p string) ([]byte, error) {
	var misses, failures error
	for _, r := range c {
		data, err := r.ReadFile(ctx, p)
		if err == nil {
			return data, nil
		}
		if IsNotFound(err) {
			misses = errors.Append(misses, err)
			continue
		}
		failures = errors.Append(failures, err)
	}
	if failures != nil {
		return nil, failures
	}
	return nil, errors.FileNotFound(p, misses)
}

type redirect struct {
	r       Reader
	aliases map[string]string
}

// Redirect serves aliased paths from their targets and everything else
// unchanged.
func Redirect(r Reader, aliases map[string]string) Reader {
	clean := make(map[string]string, len(aliases))
	for from, to := range aliases {
		clean[Clean(from)] = to
	}
	return &redirect{r: r, aliases: clean}
}

func (r *redirect) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if to, ok := r.aliases[Clean(p)]; ok {
		p = to
	}
	return r.r.ReadFile(ctx, p)
}
