// Package polar provides generalized multi-kernel polar codes: a code
// descriptor built from small square kernel matrices, frozen-set
// construction, a matching encoder and a successive-cancellation decoder.
package polar

import (
	"fmt"

	"github.com/polarsim/wavekit/pipeline"
)

// Matrix is a small square boolean kernel matrix in row-major order, the
// basic recursive building block of a code.
type Matrix [][]bool

// Size returns the kernel dimension.
func (m Matrix) Size() int { return len(m) }

func (m Matrix) square() bool {
	for _, row := range m {
		if len(row) != len(m) {
			return false
		}
	}
	return true
}

func (m Matrix) equal(o Matrix) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		for j := range m[i] {
			if m[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

// ArikanMatrix returns the classical 2x2 kernel {{1,0},{1,1}}.
func ArikanMatrix() Matrix {
	return Matrix{{true, false}, {true, true}}
}

// Code describes a polar-style code: an ordered stage table selecting one
// kernel per recursion level (stage 0 is adjacent to the leaves) and the
// kernel matrices themselves. The codeword length is the product of the
// stage kernel sizes. A Code is immutable after construction.
type Code struct {
	n       int
	stages  []int
	kernels []Matrix
}

// NewCode builds and validates a code descriptor.
func NewCode(codewordSize int, stages []int, kernels []Matrix) (*Code, error) {
	if codewordSize <= 0 {
		return nil, fmt.Errorf("%w: codeword size has to be positive, got %d",
			pipeline.ErrConfig, codewordSize)
	}
	if len(kernels) == 0 {
		return nil, fmt.Errorf("%w: a code needs at least one kernel", pipeline.ErrConfig)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: a code needs at least one stage", pipeline.ErrConfig)
	}
	for i, k := range kernels {
		if !k.square() || k.Size() == 0 {
			return nil, fmt.Errorf("%w: kernel %d is not square", pipeline.ErrConfig, i)
		}
	}
	prod := 1
	for _, s := range stages {
		if s < 0 || s >= len(kernels) {
			return nil, fmt.Errorf("%w: stage refers to kernel %d, only %d defined",
				pipeline.ErrConfig, s, len(kernels))
		}
		prod *= kernels[s].Size()
	}
	if prod != codewordSize {
		return nil, fmt.Errorf("%w: stage kernel sizes multiply to %d, not the codeword size %d",
			pipeline.ErrConfig, prod, codewordSize)
	}
	c := &Code{
		n:       codewordSize,
		stages:  append([]int(nil), stages...),
		kernels: make([]Matrix, len(kernels)),
	}
	for i, k := range kernels {
		c.kernels[i] = make(Matrix, k.Size())
		for r := range k {
			c.kernels[i][r] = append([]bool(nil), k[r]...)
		}
	}
	return c, nil
}

// NewArikanCode builds the uniform 2x2 code of the given exponent,
// N = 2^exp.
func NewArikanCode(exp int) (*Code, error) {
	if exp <= 0 {
		return nil, fmt.Errorf("%w: exponent has to be positive, got %d", pipeline.ErrConfig, exp)
	}
	stages := make([]int, exp)
	return NewCode(1<<exp, stages, []Matrix{ArikanMatrix()})
}

// CodewordSize returns N.
func (c *Code) CodewordSize() int { return c.n }

// NStages returns the recursion depth.
func (c *Code) NStages() int { return len(c.stages) }

// Stages returns the per-stage kernel indices; the slice is read-only.
func (c *Code) Stages() []int { return c.stages }

// NKernels returns the number of distinct kernel matrices.
func (c *Code) NKernels() int { return len(c.kernels) }

// Kernel returns the i-th kernel matrix; it is read-only.
func (c *Code) Kernel(i int) Matrix { return c.kernels[i] }

// IsMonoKernel reports whether every stage uses the same kernel.
func (c *Code) IsMonoKernel() bool {
	for _, s := range c.stages {
		if s != c.stages[0] {
			return false
		}
	}
	return true
}

// BiggestKernelSize returns the largest kernel dimension in use.
func (c *Code) BiggestKernelSize() int {
	biggest := 0
	for _, s := range c.stages {
		if sz := c.kernels[s].Size(); sz > biggest {
			biggest = sz
		}
	}
	return biggest
}

// transposedKernels flattens each kernel's transpose into row-major 0/1
// bytes, the form consumed by the encode and re-encode transforms.
func transposedKernels(kernels []Matrix) [][]int8 {
	out := make([][]int8, len(kernels))
	for ke, m := range kernels {
		size := m.Size()
		flat := make([]int8, size*size)
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				if m[j][i] {
					flat[i*size+j] = 1
				}
			}
		}
		out[ke] = flat
	}
	return out
}
