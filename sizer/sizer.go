// Package sizer estimates the approximate in-memory footprint of cached
// values. Estimates drive eviction only; they are not exact accounting.
package sizer

import (
	"encoding/gob"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Func estimates the size of v in bytes. It must not mutate v and should be
// stable: estimating an unchanged value twice yields the same result.
type Func func(v any) (uint64, error)

// Sizer lets a value report its own approximate size, bypassing estimation.
type Sizer interface {
	ApproxSize() uint64
}

// ErrUnsized is returned when a value cannot be measured.
var ErrUnsized = errors.New("sizer: value cannot be sized")

// Default is the built-in estimator. In order of preference:
//   - values implementing Sizer report their own size;
//   - protobuf messages use proto.Size (wire size);
//   - strings and byte slices use their length;
//   - fixed-width scalars use their width;
//   - anything else is gob-encoded into a counting writer
//     (serialize-and-measure).
func Default(v any) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if n, ok := fast(v); ok {
		return n, nil
	}
	return Gob(v)
}

func fast(v any) (uint64, bool) {
	switch x := v.(type) {
	case Sizer:
		return x.ApproxSize(), true
	case proto.Message:
		return uint64(proto.Size(x)), true
	case string:
		return uint64(len(x)), true
	case []byte:
		return uint64(len(x)), true
	case *string:
		if x == nil {
			return 0, true
		}
		return uint64(len(*x)), true
	case bool, int8, uint8:
		return 1, true
	case int16, uint16:
		return 2, true
	case int32, uint32, float32:
		return 4, true
	case int, uint, int64, uint64, float64, uintptr:
		return 8, true
	case complex64:
		return 8, true
	case complex128:
		return 16, true
	}
	return 0, false
}

// Gob measures v by encoding it with encoding/gob and counting bytes.
// Values gob cannot encode (funcs, channels, types without exported
// fields) yield ErrUnsized.
func Gob(v any) (n uint64, err error) {
	defer func() {
		// gob panics on some unsupported shapes instead of returning errors.
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %T: %v", ErrUnsized, v, r)
		}
	}()
	var w countingWriter
	if err := gob.NewEncoder(&w).Encode(v); err != nil {
		return 0, fmt.Errorf("%w: %T: %v", ErrUnsized, v, err)
	}
	return w.n, nil
}

// Fixed returns an estimator that reports the same size for every value.
// Useful for homogeneous caches where measuring each value is wasted work.
func Fixed(size uint64) Func {
	return func(any) (uint64, error) { return size, nil }
}

type countingWriter struct{ n uint64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += uint64(len(p))
	return len(p), nil
}
