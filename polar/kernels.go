package polar

// The decoder only carries combining functions for a small set of known
// kernel shapes; anything else is rejected at construction.

type kernelKind uint8

const (
	kernelUnknown kernelKind = iota
	// kernelArikan is the classical {{1,0},{1,1}} kernel.
	kernelArikan
	// kernelT3Full is {{1,1,1},{1,0,1},{0,1,1}}.
	kernelT3Full
	// kernelT3Lower is {{1,0,0},{1,1,0},{1,0,1}}.
	kernelT3Lower
)

var knownKernels = []struct {
	kind kernelKind
	m    Matrix
}{
	{kernelArikan, Matrix{{true, false}, {true, true}}},
	{kernelT3Full, Matrix{{true, true, true}, {true, false, true}, {false, true, true}}},
	{kernelT3Lower, Matrix{{true, false, false}, {true, true, false}, {true, false, true}}},
}

// T3FullMatrix returns the ternary kernel {{1,1,1},{1,0,1},{0,1,1}}.
func T3FullMatrix() Matrix {
	return Matrix{{true, true, true}, {true, false, true}, {false, true, true}}
}

// T3LowerMatrix returns the lower-triangular ternary kernel
// {{1,0,0},{1,1,0},{1,0,1}}.
func T3LowerMatrix() Matrix {
	return Matrix{{true, false, false}, {true, true, false}, {true, false, true}}
}

func classifyKernel(m Matrix) kernelKind {
	for _, k := range knownKernels {
		if m.equal(k.m) {
			return k.kind
		}
	}
	return kernelUnknown
}

// combineFn computes one child's LLR from the parent's sibling LLRs and
// the partial sums already decided for the preceding children.
type combineFn func(l []float32, s []int8) float32

func combiners(kind kernelKind) []combineFn {
	switch kind {
	case kernelArikan:
		return []combineFn{lambdaArikan0, lambdaArikan1}
	case kernelT3Full:
		return []combineFn{lambdaT3Full0, lambdaT3Full1, lambdaT3Full2}
	case kernelT3Lower:
		return []combineFn{lambdaT3Lower0, lambdaT3Lower1, lambdaT3Lower2}
	}
	return nil
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// minSum is the hardware-friendly approximation of the boxplus operator:
// the sign is the XOR of both signs, the magnitude the smaller one.
func minSum(a, b float32) float32 {
	m := minf(absf(a), absf(b))
	if (a < 0) != (b < 0) {
		return -m
	}
	return m
}

func neg(l float32, s int8) float32 {
	if s == 0 {
		return l
	}
	return -l
}

func lambdaArikan0(l []float32, _ []int8) float32 {
	return minSum(l[0], l[1])
}

func lambdaArikan1(l []float32, s []int8) float32 {
	return neg(l[0], s[0]) + l[1]
}

func lambdaT3Full0(l []float32, _ []int8) float32 {
	return minSum(l[0], minSum(l[1], l[2]))
}

func lambdaT3Full1(l []float32, s []int8) float32 {
	return neg(l[0], s[0]) + minSum(l[1], l[2])
}

func lambdaT3Full2(l []float32, s []int8) float32 {
	return neg(l[1], s[0]) + neg(l[2], s[0]^s[1])
}

func lambdaT3Lower0(l []float32, _ []int8) float32 {
	return minSum(l[0], minSum(l[1], l[2]))
}

func lambdaT3Lower1(l []float32, s []int8) float32 {
	return minSum(neg(l[0], s[0]), l[2]) + l[1]
}

func lambdaT3Lower2(l []float32, s []int8) float32 {
	return neg(l[0], s[0]^s[1]) + l[2]
}
