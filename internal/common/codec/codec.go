// Package codec encodes cache payloads as deterministic CBOR, optionally
// zstd-compressed behind a one-byte tag.
package codec

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Tag identifies how a packed payload is stored.
type Tag uint8

const (
	TagRaw  Tag = 0
	TagZstd Tag = 1
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	errIncompressible = errors.New("data is incompressible")

	// ErrEmptyPayload is returned by Unpack on a zero-length input.
	ErrEmptyPayload = errors.New("codec: empty payload")
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding. Equal values
// always produce identical bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Pack marshals v and compresses the result when it is at least threshold
// bytes long and zstd actually shrinks it. A threshold <= 0 disables
// compression.
func Pack(v any, threshold int) ([]byte, error) {
	raw, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	if threshold > 0 && len(raw) >= threshold {
		if compressed, cerr := compress(raw); cerr == nil {
			return append([]byte{byte(TagZstd)}, compressed...), nil
		}
	}
	return append([]byte{byte(TagRaw)}, raw...), nil
}

// Unpack reverses Pack.
func Unpack(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	body := data[1:]
	switch Tag(data[0]) {
	case TagRaw:
	case TagZstd:
		decoded, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("codec: zstd decompress: %w", err)
		}
		body = decoded
	default:
		return fmt.Errorf("codec: unknown payload tag %d", data[0])
	}
	if err := Unmarshal(body, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}
