// Package serialization converts job parameter values to and from the
// strings kept in storage.
//
// Two profiles exist. [User] serves values written by application code
// through job parameters and is plain JSON, so other tooling can read it.
// [Internal] is reserved for framework bookkeeping and is a prefixed,
// base64-encoded MessagePack frame. A payload written under one profile is
// rejected by the other.
package serialization

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Option selects a serialization profile.
type Option int

const (
	// User is the versioned profile for application-defined values.
	User Option = iota + 1
	// Internal is the profile for framework bookkeeping values.
	Internal
)

// internalPrefix marks payloads written by the Internal profile. The
// digit is the frame version.
const internalPrefix = "~i1:"

var (
	// ErrProfileMismatch is returned when a payload was written under a
	// different profile than the one reading it.
	ErrProfileMismatch = errors.New("serialization: payload written under another profile")
	// ErrUnknownOption is returned for an Option that is neither User nor Internal.
	ErrUnknownOption = errors.New("serialization: unknown option")
)

// String returns the profile name.
func (o Option) String() string {
	switch o {
	case User:
		return "user"
	case Internal:
		return "internal"
	default:
		return fmt.Sprintf("option(%d)", int(o))
	}
}

// Codec encodes values to bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Name() string                       { return "msgpack" }

// CodecFor returns the codec backing a profile.
func CodecFor(opt Option) (Codec, error) {
	switch opt {
	case User:
		return jsonCodec{}, nil
	case Internal:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOption, opt)
	}
}

// Serialize encodes v under the given profile. A nil value serializes to
// the empty string.
func Serialize(v any, opt Option) (string, error) {
	if v == nil {
		return "", nil
	}
	codec, err := CodecFor(opt)
	if err != nil {
		return "", err
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialization: %s marshal %T: %w", codec.Name(), v, err)
	}
	if opt == Internal {
		return internalPrefix + base64.StdEncoding.EncodeToString(data), nil
	}
	return string(data), nil
}

// Deserialize decodes s under the given profile into a T. The empty
// string yields the zero value of T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Deserialize[T any](s string, opt Option) (T, error) {
	var out T
	if err := DeserializeInto(s, opt, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// DeserializeInto decodes s under the given profile into the value
// pointed to by v. The empty string leaves v untouched.
func DeserializeInto(s string, opt Option, v any) error {
	if s == "" {
		return nil
	}
	codec, err := CodecFor(opt)
	if err != nil {
		return err
	}

	var data []byte
	switch opt {
	case Internal:
		payload, ok := strings.CutPrefix(s, internalPrefix)
		if !ok {
			return fmt.Errorf("%w: %s profile cannot read this payload", ErrProfileMismatch, opt)
		}
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("serialization: decode internal frame: %w", err)
		}
	default:
		if strings.HasPrefix(s, internalPrefix) {
			return fmt.Errorf("%w: %s profile cannot read this payload", ErrProfileMismatch, opt)
		}
		data = []byte(s)
	}

	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("serialization: %s unmarshal into %T: %w", codec.Name(), v, err)
	}
	return nil
}
