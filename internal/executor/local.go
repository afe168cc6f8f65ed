package executor

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"batchd/internal/batching"
)

// Echo returns every input unchanged.
type Echo struct{}

func (Echo) Run(ctx context.Context, in batching.Input) ([][]byte, error) {
	outs := make([][]byte, in.Count)
	for i := range outs {
		outs[i] = append([]byte(nil), in.Sample(i)...)
	}
	return outs, nil
}

// Scale applies y = Mul*x + Add to every float32 element. It is the reference
// executor for benches and tests.
type Scale struct {
	Mul float32
	Add float32
}

func (s Scale) Run(ctx context.Context, in batching.Input) ([][]byte, error) {
	if in.Shape.DType != batching.Float32 {
		return nil, fmt.Errorf("scale executor needs float32 input, got %s", in.Shape.DType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outs := make([][]byte, in.Count)
	for i := range outs {
		src := in.Sample(i)
		dst := make([]byte, len(src))
		for j := 0; j+4 <= len(src); j += 4 {
			x := math.Float32frombits(binary.LittleEndian.Uint32(src[j:]))
			binary.LittleEndian.PutUint32(dst[j:], math.Float32bits(s.Mul*x+s.Add))
		}
		outs[i] = dst
	}
	return outs, nil
}

// EncodeFloat32 packs values as little-endian float32 bytes.
func EncodeFloat32(vals []float32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

// DecodeFloat32 unpacks little-endian float32 bytes.
func DecodeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float32 values", len(b))
	}
	vals := make([]float32, len(b)/4)
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return vals, nil
}
