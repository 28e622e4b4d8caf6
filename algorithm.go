package wirecheck

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

// Algorithm names understood by both roles.
const (
	AlgorithmLinear    = "LINEAR"
	AlgorithmQuadratic = "QUADRATIC"
)

// AlgorithmFunc renders length terms of a sequence stepped by step,
// separated by single spaces.
type AlgorithmFunc func(length, step int) string

// termFunc appends the decimal form of term i to dst.
type termFunc func(dst []byte, i, step int64) []byte

// Linear renders 0, step, 2*step, ...
func Linear(length, step int) string {
	return render(length, step, linearTerm)
}

// Quadratic renders the squares of the progression Linear renders.
func Quadratic(length, step int) string {
	return render(length, step, quadraticTerm)
}

// sqrtMaxInt64 is the largest magnitude whose square fits in an int64.
const sqrtMaxInt64 = 3037000499

// Terms are exact at any size: products that leave int64 are redone with math/big.
func linearTerm(dst []byte, i, step int64) []byte {
	if v, ok := mul64(i, step); ok {
		return strconv.AppendInt(dst, v, 10)
	}
	v := new(big.Int).Mul(big.NewInt(i), big.NewInt(step))
	return v.Append(dst, 10)
}

func quadraticTerm(dst []byte, i, step int64) []byte {
	if v, ok := mul64(i, step); ok && v >= -sqrtMaxInt64 && v <= sqrtMaxInt64 {
		return strconv.AppendInt(dst, v*v, 10)
	}
	v := new(big.Int).Mul(big.NewInt(i), big.NewInt(step))
	return v.Mul(v, v).Append(dst, 10)
}

// mul64 returns i*step and whether it fit in an int64. i is never negative.
func mul64(i, step int64) (int64, bool) {
	if i == 0 {
		return 0, true
	}
	v := i * step
	return v, v/i == step
}

func render(length, step int, term termFunc) string {
	if length <= 0 {
		return ""
	}

	out := make([]byte, 0, min(length, 1<<16)*4)
	for i := 0; i < length; i++ {
		if i > 0 {
			out = append(out, ' ')
		}
		out = term(out, int64(i), int64(step))
	}
	return string(out)
}

// matches reports whether claimed is exactly the rendered sequence. Each
// term is compared as it is produced, so the work is bounded by len(claimed)
// rather than by length.
func matches(claimed string, length, step int, term termFunc) bool {
	if length <= 0 {
		return claimed == ""
	}

	var scratch []byte
	pos := 0
	for i := 0; i < length; i++ {
		if i > 0 {
			if pos >= len(claimed) || claimed[pos] != ' ' {
				return false
			}
			pos++
		}

		scratch = term(scratch[:0], int64(i), int64(step))
		end := pos + len(scratch)
		if end > len(claimed) || claimed[pos:end] != string(scratch) {
			return false
		}
		pos = end
	}
	return pos == len(claimed)
}

// AlgorithmNames lists the bound algorithm names.
func AlgorithmNames() []string {
	return []string{AlgorithmLinear, AlgorithmQuadratic}
}

func lookupTerm(name string) (termFunc, error) {
	switch name {
	case AlgorithmLinear:
		return linearTerm, nil
	case AlgorithmQuadratic:
		return quadraticTerm, nil
	}
	return nil, &ProtocolError{Op: "lookup algorithm", Err: errors.Wrapf(ErrUnknownAlgorithm, "%q", name)}
}

// LookupAlgorithm returns the function bound to name.
func LookupAlgorithm(name string) (AlgorithmFunc, error) {
	term, err := lookupTerm(name)
	if err != nil {
		return nil, err
	}
	return func(length, step int) string { return render(length, step, term) }, nil
}

// ValidateAlgorithm recomputes the named sequence and compares it to claimed
// byte for byte. An unknown name is an error, a mismatch is false.
// The sequence is never materialized, so a huge length with a short claim
// fails after a few terms.
func ValidateAlgorithm(name string, length, step int, claimed string) (bool, error) {
	term, err := lookupTerm(name)
	if err != nil {
		return false, err
	}
	return matches(claimed, length, step, term), nil
}
