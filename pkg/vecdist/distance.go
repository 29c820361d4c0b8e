// Package vecdist provides optional built-in hnsw.DistanceFunc
// implementations for plain numeric vectors. The core hnsw package never
// imports this package: Item stays fully opaque there, and a caller storing
// []float32 or half-precision []uint16 vectors can pull in exactly the
// distance kernel it needs instead of the graph engine carrying a
// multi-precision switch of its own.
package vecdist

import (
	"log"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"
)

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) {
		log.Println("vecdist: AVX2 detected; gonum's pure-Go kernels still handle all distance computation in this build")
	}
}

// workspace holds reusable float64 scratch buffers so the float32 kernels
// below don't allocate a conversion buffer on every call.
type workspace struct {
	a, b []float64
}

var workspacePool = sync.Pool{New: func() any { return new(workspace) }}

func grow(buf []float64, n int) []float64 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}

func convertInto(dst []float64, src []float32) []float64 {
	dst = grow(dst, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// Float32SquaredEuclidean is an hnsw.DistanceFunc over []float32, built on
// gonum's floats package.
func Float32SquaredEuclidean(a, b []float32) float32 {
	ws := workspacePool.Get().(*workspace)
	defer workspacePool.Put(ws)
	ws.a = convertInto(ws.a, a)
	ws.b = convertInto(ws.b, b)
	d := floats.Distance(ws.a, ws.b, 2)
	return float32(d * d)
}

// Float32NegativeDot is an hnsw.DistanceFunc over []float32 for callers
// whose underlying similarity is inner-product or cosine (on pre-normalized
// vectors): smaller is closer, so the distance is the dot product negated.
func Float32NegativeDot(a, b []float32) float32 {
	ws := workspacePool.Get().(*workspace)
	defer workspacePool.Put(ws)
	ws.a = convertInto(ws.a, a)
	ws.b = convertInto(ws.b, b)
	return float32(-floats.Dot(ws.a, ws.b))
}

// Float16SquaredEuclidean is an hnsw.DistanceFunc over []uint16 holding
// IEEE754-2008 half-precision bit patterns; it decodes to float32 and
// delegates to Float32SquaredEuclidean.
func Float16SquaredEuclidean(a, b []uint16) float32 {
	return Float32SquaredEuclidean(decodeFloat16(a), decodeFloat16(b))
}

func decodeFloat16(bits []uint16) []float32 {
	out := make([]float32, len(bits))
	for i, b := range bits {
		out[i] = float16.Frombits(b).Float32()
	}
	return out
}
