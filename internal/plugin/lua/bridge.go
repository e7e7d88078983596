package lua

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// Exact integer range of a Lua number (float64).
const (
	MaxInteger int64 = 1 << 53
	MinInteger int64 = -(1 << 53)
)

// Integer conversion errors.
var (
	// ErrIntegerRange is returned for integers a Lua number cannot hold exactly.
	ErrIntegerRange = errors.New("integer outside exact range")

	// ErrNotInteger is returned when a Lua value is not an integral number.
	ErrNotInteger = errors.New("value is not an integer")
)

// FromInteger converts a host integer to a Lua number.
func FromInteger(v int64) (lua.LValue, error) {
	if v < MinInteger || v > MaxInteger {
		return lua.LNil, fmt.Errorf("%w: %d not in [%d, %d]", ErrIntegerRange, v, MinInteger, MaxInteger)
	}
	return lua.LNumber(v), nil
}

// ToInteger coerces a Lua value returned by a script to a host integer.
// Only integral numbers within [MinInteger, MaxInteger] are accepted.
func ToInteger(lv lua.LValue) (int64, error) {
	n, ok := lv.(lua.LNumber)
	if !ok {
		if lv == nil {
			return 0, fmt.Errorf("%w: got nothing", ErrNotInteger)
		}
		return 0, fmt.Errorf("%w: got %s", ErrNotInteger, lv.Type())
	}

	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: got %v", ErrNotInteger, f)
	}
	if f < float64(MinInteger) || f > float64(MaxInteger) {
		return 0, fmt.Errorf("%w: %v not in [%d, %d]", ErrIntegerRange, f, MinInteger, MaxInteger)
	}
	return int64(f), nil
}
