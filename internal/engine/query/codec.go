package query

import (
	"encoding/json"

	"go.trai.ch/quarry/internal/core/domain"
	"go.trai.ch/zerr"
)

// Codec converts query keys or values to and from bytes for the on-disk cache.
// Encodings must be deterministic: equal values encode to equal bytes.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// JSONCodec is the default codec. encoding/json sorts map keys, so its output is stable.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrEncodeFailed.Error())
	}
	return b, nil
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, zerr.Wrap(err, domain.ErrDecodeFailed.Error())
	}
	return v, nil
}
