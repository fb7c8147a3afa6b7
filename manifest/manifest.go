// Package manifest reads and writes wrap.info, the versioned interface
// description shipped with every wrapper.
//
// The format version is a closed set. Older versions are migrated to Latest
// on load; anything outside the set is rejected.
package manifest

import (
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/errors"
)

// Format is a wrap.info format version.
type Format string

const (
	V01 Format = "0.1"
	V02 Format = "0.2"

	// Latest is the format every manifest is migrated to on load.
	Latest = V02
)

// Formats lists the recognized formats, oldest first.
var Formats = []Format{V01, V02}

// ParseFormat returns s as a Format if it is recognized.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", errors.UnsupportedFormat(s)
}

// Type is the kind of wrapper a manifest describes.
type Type string

const (
	TypeWasm      Type = "wasm"
	TypePlugin    Type = "plugin"
	TypeInterface Type = "interface"
)

func (t Type) valid() bool {
	switch t {
	case TypeWasm, TypePlugin, TypeInterface:
		return true
	}
	return false
}

// Manifest is a deserialized wrap.info in the Latest format.
type Manifest struct {
	Format Format  `msgpack:"format" yaml:"format"`
	Type   Type    `msgpack:"type" yaml:"type"`
	Name   string  `msgpack:"name" yaml:"name"`
	ABI    abi.ABI `msgpack:"abi" yaml:"abi"`
}

// Options controls deserialization.
type Options struct {
	// NoValidate skips structural validation of the ABI.
	NoValidate bool
}

// Validate checks the manifest header and its ABI.
func (m *Manifest) Validate() error {
	if m.Format != Latest {
		return errors.UnsupportedFormat(string(m.Format))
	}
	var errs error
	if !m.Type.valid() {
		errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, []string{"type"},
			"unknown wrapper type "+string(m.Type)))
	}
	if m.Name == "" {
		errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, []string{"name"}, "name is empty"))
	}
	return errors.Append(errs, m.ABI.Validate())
}

// Serialize encodes m as MessagePack. An empty format is written as Latest.
func Serialize(m *Manifest) ([]byte, error) {
	out := *m
	if out.Format == "" {
		out.Format = Latest
	}
	if out.Format != Latest {
		return nil, errors.UnsupportedFormat(string(out.Format))
	}
	data, err := msgpack.Marshal(&out)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "serialize manifest")
	}
	return data, nil
}

// Deserialize decodes a MessagePack wrap.info, migrating it to Latest.
func Deserialize(data []byte, opts Options) (*Manifest, error) {
	return decode(func(v any) error { return msgpack.Unmarshal(data, v) }, opts)
}

// FromYAML decodes a YAML-authored manifest, migrating it to Latest.
func FromYAML(data []byte, opts Options) (*Manifest, error) {
	return decode(func(v any) error { return yaml.Unmarshal(data, v) }, opts)
}

type header struct {
	Format string `msgpack:"format" yaml:"format"`
}

func decode(unmarshal func(any) error, opts Options) (*Manifest, error) {
	var h header
	if err := unmarshal(&h); err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode manifest header")
	}
	format, err := ParseFormat(h.Format)
	if err != nil {
		return nil, err
	}

	var m *Manifest
	switch format {
	case V01:
		var old ManifestV01
		if err := unmarshal(&old); err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode manifest 0.1")
		}
		m = Migrate01To02(&old)
	case V02:
		m = &Manifest{}
		if err := unmarshal(m); err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode manifest 0.2")
		}
	}

	if !opts.NoValidate {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return m, nil
}
