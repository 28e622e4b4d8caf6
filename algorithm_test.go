package wirecheck

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear(t *testing.T) {
	assert.Equal(t, "0 3 6 9 12", Linear(5, 3))
	assert.Equal(t, "0", Linear(1, 7))
	assert.Equal(t, "", Linear(0, 3))
	assert.Equal(t, "0 -2 -4", Linear(3, -2))
}

func TestQuadratic(t *testing.T) {
	assert.Equal(t, "0 9 36 81 144", Quadratic(5, 3))
	assert.Equal(t, "0 4 16", Quadratic(3, -2))
	assert.Equal(t, "", Quadratic(-1, 3))
}

func TestAlgorithms_Terms(t *testing.T) {
	for _, length := range []int{1, 2, 17, 1024} {
		for _, step := range []int{2, 13, 60} {
			linear := strings.Split(Linear(length, step), " ")
			quadratic := strings.Split(Quadratic(length, step), " ")
			require.Len(t, linear, length)
			require.Len(t, quadratic, length)

			for i := range linear {
				assert.Equal(t, strconv.Itoa(i*step), linear[i])
				assert.Equal(t, strconv.Itoa(i*step*i*step), quadratic[i])
			}
		}
	}
}

func TestLookupAlgorithm(t *testing.T) {
	for _, name := range AlgorithmNames() {
		f, err := LookupAlgorithm(name)
		require.NoError(t, err)
		assert.NotNil(t, f)
	}

	_, err := LookupAlgorithm("CUBIC")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	assert.ErrorIs(t, err, ErrProtocol)

	// Names are case sensitive.
	_, err = LookupAlgorithm("linear")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestValidateAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		algo    string
		claimed string
		want    bool
	}{
		{"linear match", AlgorithmLinear, "0 3 6 9 12", true},
		{"linear last term differs", AlgorithmLinear, "0 3 6 9 13", false},
		{"trailing space", AlgorithmLinear, "0 3 6 9 12 ", false},
		{"double space", AlgorithmLinear, "0 3  6 9 12", false},
		{"quadratic match", AlgorithmQuadratic, "0 9 36 81 144", true},
		{"quadratic given linear output", AlgorithmQuadratic, "0 3 6 9 12", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := ValidateAlgorithm(tt.algo, 5, 3, tt.claimed)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := ValidateAlgorithm("FIBONACCI", 5, 3, "0 1 1 2 3")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestValidateAlgorithm_HugeLength(t *testing.T) {
	// A peer-chosen length must not drive the work; the short claim fails fast.
	ok, err := ValidateAlgorithm(AlgorithmLinear, 2_000_000_000, 1, "x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ValidateAlgorithm(AlgorithmQuadratic, 2_000_000_000, 1, "0 1 4")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ValidateAlgorithm(AlgorithmLinear, 2_000_000_000, 1, "0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateAlgorithm_Prefixes(t *testing.T) {
	full := Linear(5, 3)
	for i := 0; i < len(full); i++ {
		ok, err := ValidateAlgorithm(AlgorithmLinear, 5, 3, full[:i])
		require.NoError(t, err)
		assert.False(t, ok, "prefix %q", full[:i])
	}

	ok, err := ValidateAlgorithm(AlgorithmLinear, 0, 3, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ValidateAlgorithm(AlgorithmLinear, 0, 3, "0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlgorithms_BeyondInt64(t *testing.T) {
	assert.Equal(t, "0 9223372036854775807 18446744073709551614", Linear(3, math.MaxInt64))
	assert.Equal(t, "0 -9223372036854775808 -18446744073709551616", Linear(3, math.MinInt64))

	// 4e9 squared does not fit in an int64.
	assert.Equal(t, "0 16000000000000000000 64000000000000000000", Quadratic(3, 4_000_000_000))
	assert.Equal(t, "0 9223372030926249001", Quadratic(2, 3037000499))
	assert.Equal(t, "0 9223372037000250000", Quadratic(2, 3037000500))

	ok, err := ValidateAlgorithm(AlgorithmQuadratic, 3, 4_000_000_000, "0 16000000000000000000 64000000000000000000")
	require.NoError(t, err)
	assert.True(t, ok)
}
