package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/codewandler/mailroom-go/core/reflector"
)

var (
	ErrEncode = errors.New("encode failed")
	ErrDecode = errors.New("decode failed")
)

// Codec converts values of T to and from payload bytes.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Error is returned by the codecs in this package. It matches ErrEncode or
// ErrDecode with errors.Is.
type Error struct {
	Op   string
	Type string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Type, e.Err)
}

func (e *Error) Unwrap() []error {
	switch e.Op {
	case "encode":
		return []error{ErrEncode, e.Err}
	case "decode":
		return []error{ErrDecode, e.Err}
	default:
		return []error{e.Err}
	}
}

func encodeError[T any](err error) error {
	return &Error{Op: "encode", Type: reflector.TypeName[T](), Err: err}
}

func decodeError[T any](err error) error {
	return &Error{Op: "decode", Type: reflector.TypeName[T](), Err: err}
}

type jsonCodec[T any] struct{}

// JSON encodes values with encoding/json.
func JSON[T any]() Codec[T] { return jsonCodec[T]{} }

func (jsonCodec[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, encodeError[T](err)
	}
	return b, nil
}

func (jsonCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		var zero T
		return zero, decodeError[T](err)
	}
	return v, nil
}

type protoCodec[T proto.Message] struct{}

// Proto encodes generated protobuf messages in their binary wire format.
// T is the pointer type, e.g. *wrapperspb.StringValue.
func Proto[T proto.Message]() Codec[T] { return protoCodec[T]{} }

func (protoCodec[T]) Encode(v T) ([]byte, error) {
	b, err := proto.Marshal(v)
	if err != nil {
		return nil, encodeError[T](err)
	}
	return b, nil
}

func (protoCodec[T]) Decode(b []byte) (T, error) {
	var zero T
	v, ok := zero.ProtoReflect().New().Interface().(T)
	if !ok {
		return zero, decodeError[T](fmt.Errorf("cannot instantiate %T", zero))
	}
	if err := proto.Unmarshal(b, v); err != nil {
		return zero, decodeError[T](err)
	}
	return v, nil
}

type rawCodec struct{}

// Raw passes byte payloads through unchanged.
func Raw() Codec[[]byte] { return rawCodec{} }

func (rawCodec) Encode(v []byte) ([]byte, error) { return v, nil }
func (rawCodec) Decode(b []byte) ([]byte, error) { return b, nil }
