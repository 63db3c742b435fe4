// Package metadata maps encryption records to and from the flat string property bag attached to remote store items.
//
// Only the closed set of Property values is ever read or written by this package.
// Absence of a property, rather than an empty value, is the signal that a field doesn't apply.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"maps"

	"github.com/saylorsolutions/drivelock/pkg/envelope"
)

var (
	ErrMalformed       = errors.New("malformed encryption metadata")
	ErrUnknownProperty = errors.New("unknown metadata property")
)

// Property is one of the metadata keys used to persist encryption state.
type Property int

const (
	EncryptionKey Property = iota
	EncryptionKeyIV
	AssetName
	AssetNameIV
	CipherText
	CipherTextIV
	ValidationText
	ValidationTextIV
	Salt
	numProperties
)

var propertyNames = [numProperties]string{
	EncryptionKey:    "encryption_key",
	EncryptionKeyIV:  "encryption_key_iv",
	AssetName:        "asset_name",
	AssetNameIV:      "asset_name_iv",
	CipherText:       "cipher_text",
	CipherTextIV:     "cipher_text_iv",
	ValidationText:   "validation_text",
	ValidationTextIV: "validation_text_iv",
	Salt:             "salt",
}

func (p Property) String() string {
	if p < 0 || p >= numProperties {
		return fmt.Sprintf("Property(%d)", int(p))
	}
	return propertyNames[p]
}

// Properties returns every Property in declaration order.
func Properties() []Property {
	props := make([]Property, numProperties)
	for i := range props {
		props[i] = Property(i)
	}
	return props
}

// ParseProperty returns the Property with the given key name.
func ParseProperty(name string) (Property, error) {
	for i, n := range propertyNames {
		if n == name {
			return Property(i), nil
		}
	}
	return 0, fmt.Errorf("%w: '%s'", ErrUnknownProperty, name)
}

// IsProperty reports whether the metadata key belongs to the encryption schema.
func IsProperty(name string) bool {
	_, err := ParseProperty(name)
	return err == nil
}

// Record holds the binary encryption fields of one stored item.
// A nil or empty field is treated as absent.
type Record struct {
	fields [numProperties][]byte
}

// Get returns the raw bytes stored for p, or nil if absent.
func (r Record) Get(p Property) []byte {
	if p < 0 || p >= numProperties {
		return nil
	}
	return r.fields[p]
}

// Set stores value for p. Setting an empty value removes the field.
func (r *Record) Set(p Property, value []byte) {
	if p < 0 || p >= numProperties {
		return
	}
	if len(value) == 0 {
		r.fields[p] = nil
		return
	}
	r.fields[p] = value
}

// Delete removes p from the Record.
func (r *Record) Delete(p Property) {
	r.Set(p, nil)
}

// Has reports whether p is present.
func (r Record) Has(p Property) bool {
	return len(r.Get(p)) > 0
}

// Envelope returns the ciphertext and IV pair stored under the two given properties.
func (r Record) Envelope(text, iv Property) envelope.Envelope {
	return envelope.Envelope{
		CipherText: r.Get(text),
		IV:         r.Get(iv),
	}
}

// SetEnvelope stores env under the two given properties.
func (r *Record) SetEnvelope(text, iv Property, env envelope.Envelope) {
	r.Set(text, env.CipherText)
	r.Set(iv, env.IV)
}

// Clone returns a deep copy of the Record.
func (r Record) Clone() Record {
	var out Record
	for i, f := range r.fields {
		if len(f) > 0 {
			out.fields[i] = bytes.Clone(f)
		}
	}
	return out
}

// Equal reports whether both records hold the same fields.
func (r Record) Equal(other Record) bool {
	for i := range r.fields {
		if !bytes.Equal(r.fields[i], other.fields[i]) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no field is present.
func (r Record) IsEmpty() bool {
	for _, f := range r.fields {
		if len(f) > 0 {
			return false
		}
	}
	return true
}

// Pack encodes every present field as URL-safe base64 under its Property name.
func Pack(r Record) map[string]string {
	meta := make(map[string]string)
	for i, f := range r.fields {
		if len(f) == 0 {
			continue
		}
		meta[propertyNames[i]] = envelope.EncodeString(f)
	}
	return meta
}

// Unpack decodes the encryption fields found in meta.
// Keys outside the schema are ignored, and empty values are treated as absent.
func Unpack(meta map[string]string) (Record, error) {
	var r Record
	for i, name := range propertyNames {
		value, ok := meta[name]
		if !ok || len(value) == 0 {
			continue
		}
		decoded, err := envelope.DecodeString(value)
		if err != nil {
			return Record{}, fmt.Errorf("%w: property '%s': %v", ErrMalformed, name, err)
		}
		r.fields[i] = decoded
	}
	return r, nil
}

// Extra returns a copy of the metadata entries that are not part of the encryption schema.
func Extra(meta map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range meta {
		if !IsProperty(k) {
			out[k] = v
		}
	}
	return out
}

// Strip returns a copy of meta with the given properties removed, or every encryption property if none are given.
func Strip(meta map[string]string, props ...Property) map[string]string {
	if len(props) == 0 {
		return Extra(meta)
	}
	out := maps.Clone(meta)
	if out == nil {
		out = make(map[string]string)
	}
	for _, p := range props {
		delete(out, p.String())
	}
	return out
}

// Merge copies every entry of srcs into a new map, with later maps overriding earlier ones.
func Merge(srcs ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, src := range srcs {
		maps.Copy(out, src)
	}
	return out
}
