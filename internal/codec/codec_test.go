package codec

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sb converts a signed value to its byte representation; a constant
// conversion like byte(int8(-5)) does not compile.
func sb(v int8) byte { return byte(v) }

func TestQuantizeInt8_ClampAndRound(t *testing.T) {
	code := QuantizeInt8([]float32{0, 1, -1, 0.5, -0.5, 2.5, -3})

	assert.Equal(t, int8(0), int8(code[0]))
	assert.Equal(t, int8(127), int8(code[1]))
	assert.Equal(t, int8(-127), int8(code[2]))
	assert.Equal(t, int8(64), int8(code[3])) // round(0.5*127) = 64
	assert.Equal(t, int8(-64), int8(code[4]))
	assert.Equal(t, int8(127), int8(code[5])) // clamped
	assert.Equal(t, int8(-127), int8(code[6]))
}

func TestQuantizeBinary_MSBFirstPacking(t *testing.T) {
	// Signs: + - + + - - - +  => bits 10110001
	code := []byte{
		sb(5), sb(-5), sb(0), sb(127),
		sb(-1), sb(-127), sb(-64), sb(3),
	}
	bin := QuantizeBinary(code)
	require.Len(t, bin, 1)
	assert.Equal(t, byte(0b10110001), bin[0])
}

func TestQuantizeBinary_PadsFinalByte(t *testing.T) {
	// 10 dims -> 2 bytes, last 6 bits zero
	code := make([]byte, 10)
	for i := range code {
		code[i] = sb(1)
	}
	bin := QuantizeBinary(code)
	require.Len(t, bin, 2)
	assert.Equal(t, byte(0xFF), bin[0])
	assert.Equal(t, byte(0b11000000), bin[1])
}

func TestCosineInt8_SelfSimilarityIsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vec := make([]float32, 256)
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	code := QuantizeInt8(vec)
	assert.InDelta(t, 1.0, CosineInt8(code, code), 1e-9)
}

func TestCosineInt8_ApproximatesFloatCosine(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		a := make([]float32, 384)
		b := make([]float32, 384)
		for i := range a {
			a[i] = rng.Float32()*2 - 1
			b[i] = rng.Float32()*2 - 1
		}
		exact := CosineFloat(a, b)
		approx := CosineInt8(QuantizeInt8(a), QuantizeInt8(b))
		assert.InDelta(t, exact, approx, 0.02)
	}
}

func TestCosine_DefinedResultsForBadInput(t *testing.T) {
	assert.Equal(t, 0.0, CosineFloat(nil, nil))
	assert.Equal(t, 0.0, CosineFloat([]float32{1, 2}, []float32{1}))
	assert.Equal(t, 0.0, CosineFloat([]float32{0, 0}, []float32{1, 1})) // zero vector, no NaN
	assert.Equal(t, 0.0, CosineInt8([]byte{1, 2}, []byte{1}))
	assert.Equal(t, 0.0, CosineInt8([]byte{0, 0}, []byte{1, 1}))
}

func TestHammingSimilarity(t *testing.T) {
	a := QuantizeBinary([]byte{sb(1), sb(1), sb(1), sb(1)})
	b := QuantizeBinary([]byte{sb(1), sb(1), sb(-1), sb(-1)})

	assert.Equal(t, 1.0, HammingSimilarity(a, a, 4))
	assert.InDelta(t, 0.5, HammingSimilarity(a, b, 4), 1e-9)
	assert.Equal(t, 0.0, HammingSimilarity(a, []byte{1, 2}, 4)) // length mismatch
}

func TestHammingSimilarity_IgnoresPaddingBits(t *testing.T) {
	// 10 dims, identical signs: similarity exactly 1 despite 6 padding bits.
	code := make([]byte, 10)
	for i := range code {
		if i%2 == 0 {
			code[i] = sb(3)
		} else {
			code[i] = sb(-3)
		}
	}
	bin := QuantizeBinary(code)
	assert.Equal(t, 1.0, HammingSimilarity(bin, bin, 10))
}
