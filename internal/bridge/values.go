// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned for setting values that are not whole numbers
var ErrInvalidValue = errors.New("invalid setting value")

// IsEmptyValue reports whether a setting value counts as unset.
// Absent (nil), numeric zero, the empty string and false are empty; such
// settings are never written to the device. A string holding a zero integer
// ("0", " 00 ") is numeric zero, as typed on the command line.
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return isEmptyString(x)
	case int:
		return x == 0
	case int8:
		return x == 0
	case int16:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case uint:
		return x == 0
	case uint8:
		return x == 0
	case uint16:
		return x == 0
	case uint32:
		return x == 0
	case uint64:
		return x == 0
	case float32:
		return x == 0 || math.IsNaN(float64(x))
	case float64:
		return x == 0 || math.IsNaN(x)
	}
	return false
}

func isEmptyString(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n == 0
}

// settingInt converts a setting value to an integer.
// Floats must be whole; strings must parse as base-10 integers.
func settingInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return uintInt(uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return uintInt(x)
	case float32:
		return floatInt(float64(x))
	case float64:
		return floatInt(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, x)
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidValue, v)
}

func uintInt(x uint64) (int64, error) {
	if x > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d overflows", ErrInvalidValue, x)
	}
	return int64(x), nil
}

func floatInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not a whole number", ErrInvalidValue, f)
	}
	return int64(f), nil
}
