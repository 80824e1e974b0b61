// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package configreader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/cardinalhq/liveconfig/internal/record"
)

// GetValue returns the value stored under key, parsed under its declared
// type tag and converted to T.
//
// Errors: record.ErrValidation for a blank key, record.ErrKeyNotFound when no
// active record exists in either snapshot, record.ErrUnsupportedType and
// record.ErrFormat from parsing, record.ErrConversion when the parsed value
// cannot become a T.
func GetValue[T any](r *Reader, key string) (T, error) {
	var zero T
	if strings.TrimSpace(key) == "" {
		return zero, fmt.Errorf("%w: key is required", record.ErrValidation)
	}

	rec, ok := r.Lookup(key)
	if !ok {
		return zero, fmt.Errorf("%w: %s", record.ErrKeyNotFound, key)
	}

	v, err := record.Coerce(rec.Type, rec.Value)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", rec.Name, err)
	}

	out, err := convert[T](v)
	if err != nil {
		return zero, fmt.Errorf("%s (%s) as %T: %w", rec.Name, rec.Type, zero, err)
	}
	return out, nil
}

// GetValueOr is GetValue with a fallback for any error.
func GetValueOr[T any](r *Reader, key string, fallback T) T {
	v, err := GetValue[T](r, key)
	if err != nil {
		return fallback
	}
	return v
}

// convert turns a coerced string, int, float64 or bool into T.
func convert[T any](v any) (T, error) {
	var zero T
	var out any
	var err error

	switch any(zero).(type) {
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return convertInteger[T](v)
	case string:
		out, err = cast.ToStringE(v)
	case bool:
		out, err = cast.ToBoolE(v)
	case float64:
		out, err = cast.ToFloat64E(v)
	case float32:
		out, err = cast.ToFloat32E(v)
	case time.Duration:
		out, err = cast.ToDurationE(v)
	default:
		if t, ok := v.(T); ok {
			return t, nil
		}
		return zero, fmt.Errorf("%w: no conversion from %T", record.ErrConversion, v)
	}

	if err != nil {
		return zero, fmt.Errorf("%w: %v", record.ErrConversion, err)
	}
	return out.(T), nil
}

// convertInteger handles integer targets. The source is reduced to an int64,
// or a uint64 above math.MaxInt64, then checked against the target's range.
func convertInteger[T any](v any) (T, error) {
	var zero T
	w, err := wholeNumber(v)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", record.ErrConversion, err)
	}

	var out any
	switch any(zero).(type) {
	case int:
		out, err = signed[int](w, math.MinInt, math.MaxInt)
	case int64:
		out, err = signed[int64](w, math.MinInt64, math.MaxInt64)
	case int32:
		out, err = signed[int32](w, math.MinInt32, math.MaxInt32)
	case int16:
		out, err = signed[int16](w, math.MinInt16, math.MaxInt16)
	case int8:
		out, err = signed[int8](w, math.MinInt8, math.MaxInt8)
	case uint:
		out, err = unsigned[uint](w, math.MaxUint)
	case uint64:
		out, err = unsigned[uint64](w, math.MaxUint64)
	case uint32:
		out, err = unsigned[uint32](w, math.MaxUint32)
	case uint16:
		out, err = unsigned[uint16](w, math.MaxUint16)
	case uint8:
		out, err = unsigned[uint8](w, math.MaxUint8)
	}
	if err != nil {
		return zero, fmt.Errorf("%w: %v", record.ErrConversion, err)
	}
	return out.(T), nil
}

// wholeNumber reduces a coerced value to an int64 or uint64. Strings are
// read in base 10; floats are rounded half to even and range-checked.
func wholeNumber(v any) (any, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
		return nil, fmt.Errorf("%q is not a base 10 integer", x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%v is not a finite number", x)
		}
		r := math.RoundToEven(x)
		switch {
		case r >= -(1<<63) && r < 1<<63:
			return int64(r), nil
		case r >= 1<<63 && r < 1<<64:
			return uint64(r), nil
		}
		return nil, fmt.Errorf("%v overflows a 64-bit integer", x)
	default:
		return cast.ToInt64E(v)
	}
}

func signed[N int | int64 | int32 | int16 | int8](w any, lo, hi int64) (N, error) {
	n, ok := w.(int64)
	if !ok || n < lo || n > hi {
		return 0, fmt.Errorf("%v overflows %T", w, N(0))
	}
	return N(n), nil
}

func unsigned[N uint | uint64 | uint32 | uint16 | uint8](w any, hi uint64) (N, error) {
	var u uint64
	switch x := w.(type) {
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("%d is negative, %T is unsigned", x, N(0))
		}
		u = uint64(x)
	case uint64:
		u = x
	}
	if u > hi {
		return 0, fmt.Errorf("%d overflows %T", u, N(0))
	}
	return N(u), nil
}
