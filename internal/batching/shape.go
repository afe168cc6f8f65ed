package batching

import (
	"fmt"
	"strings"
)

// DType is the element type of a tensor.
type DType string

const (
	Float32 DType = "float32"
	Float16 DType = "float16"
	Int32   DType = "int32"
	Int8    DType = "int8"
	Uint8   DType = "uint8"
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case Float32, Int32:
		return 4
	case Float16:
		return 2
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// ParseDType accepts the dtype names above, case-insensitively.
func ParseDType(s string) (DType, error) {
	d := DType(strings.ToLower(strings.TrimSpace(s)))
	if d.Size() == 0 {
		return "", fmt.Errorf("unknown dtype %q", s)
	}
	return d, nil
}

// Shape describes one sample (the batch dimension excluded).
type Shape struct {
	Dims  []int
	DType DType
}

// Elems is the number of elements per sample.
func (s Shape) Elems() int {
	n := 1
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Bytes is the size of one sample in bytes.
func (s Shape) Bytes() int { return s.Elems() * s.DType.Size() }

func (s Shape) validate() error {
	if s.DType.Size() == 0 {
		return fmt.Errorf("unknown dtype %q", s.DType)
	}
	if len(s.Dims) == 0 {
		return fmt.Errorf("shape has no dimensions")
	}
	for i, d := range s.Dims {
		if d <= 0 {
			return fmt.Errorf("dimension %d is %d, must be positive", i, d)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s[%s]", s.DType, strings.Join(parts, "x"))
}
