// Package codec converts float embeddings into the compact representations
// used by the cheaper comparison paths: int8 linear quantization and
// sign-packed 1-bit binary codes.
package codec

import (
	"math"
	"math/bits"
)

// QuantizeInt8 maps each dimension to a signed byte: clamp to [-1, 1],
// multiply by 127, round. Any input yields a valid code.
func QuantizeInt8(embedding []float32) []byte {
	out := make([]byte, len(embedding))
	for i, f := range embedding {
		v := float64(f)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = byte(int8(math.Round(v * 127)))
	}
	return out
}

// QuantizeBinary packs the sign bits of an int8 code, 8 per byte, MSB-first.
// A dimension quantized to >= 0 becomes a 1 bit. The final byte is
// zero-padded when the dimensionality is not a multiple of 8.
func QuantizeBinary(int8Code []byte) []byte {
	out := make([]byte, (len(int8Code)+7)/8)
	for i, b := range int8Code {
		if int8(b) >= 0 {
			out[i/8] |= 1 << (7 - uint(i)%8)
		}
	}
	return out
}

// CosineFloat computes cosine similarity between two float vectors.
// Mismatched dimensions, empty inputs, and zero vectors all yield 0
// rather than NaN.
func CosineFloat(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// CosineInt8 computes cosine similarity over two int8 codes. Same failure
// semantics as CosineFloat: defined 0 for bad input, never NaN.
func CosineInt8(a, b []byte) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB int64
	for i := range a {
		x := int64(int8(a[i]))
		y := int64(int8(b[i]))
		dot += x * y
		normA += x * x
		normB += y * y
	}
	denom := math.Sqrt(float64(normA)) * math.Sqrt(float64(normB))
	if denom == 0 {
		return 0
	}
	return float64(dot) / denom
}

// HammingSimilarity computes 1 - hamming_distance/dims over two binary
// codes. dims is the original dimensionality, so padding bits in the final
// byte never count against the score. Used only as a prefilter.
func HammingSimilarity(a, b []byte, dims int) float64 {
	if len(a) != len(b) || len(a) == 0 || dims <= 0 {
		return 0
	}
	dist := 0
	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	if dist > dims {
		dist = dims
	}
	return 1 - float64(dist)/float64(dims)
}
