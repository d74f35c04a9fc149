package polar

import (
	"fmt"

	"github.com/polarsim/wavekit/pipeline"
)

// Encoder maps K information bits to an N-bit polar codeword. Frozen
// positions carry zeros, information bits fill the non-frozen positions
// in index order, then the kernel stages are applied bottom-up with an
// in-place butterfly. Unlike the SC decoder the encoder accepts
// multi-kernel stage sequences.
type Encoder struct {
	pipeline.Module

	code    *Code
	frozen  []bool
	infoPos []int
	ke      [][]int8
	spans   []int
	u       []int8
}

// NewEncoder validates the configuration and sets up the encoder module
// with its "encode" task (input U_K, output X_N).
func NewEncoder(k, n int, code *Code, frozen []bool, nFrames int) (*Encoder, error) {
	if code == nil {
		return nil, fmt.Errorf("%w: the encoder needs a code descriptor", pipeline.ErrConfig)
	}
	if n != code.CodewordSize() {
		return nil, fmt.Errorf("%w: N=%d does not match the code's codeword size %d",
			pipeline.ErrConfig, n, code.CodewordSize())
	}
	if err := ValidateFrozen(frozen, n, k); err != nil {
		return nil, err
	}

	e := &Encoder{
		code:   code,
		frozen: append([]bool(nil), frozen...),
		ke:     transposedKernels(code.kernels),
		u:      make([]int8, code.BiggestKernelSize()),
	}
	e.rebuildInfoPos()
	stages := code.Stages()
	e.spans = make([]int, len(stages))
	span := 1
	for st, ki := range stages {
		span *= code.Kernel(ki).Size()
		e.spans[st] = span
	}

	if err := e.InitModule("Encoder_polar", nFrames); err != nil {
		return nil, err
	}
	t, err := e.NewTask("encode")
	if err != nil {
		return nil, err
	}
	sU, err := t.NewSocketIn("U_K", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	sX, err := t.NewSocketOut("X_N", pipeline.Int8, n)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		uK := pipeline.View[int8](sU)
		xN := pipeline.View[int8](sX)
		for f := 0; f < e.NFrames(); f++ {
			e.EncodeFrame(uK[f*k:(f+1)*k], xN[f*n:(f+1)*n])
		}
		return 0
	})
	return e, nil
}

// Code returns the code descriptor the encoder was built for.
func (e *Encoder) Code() *Code { return e.code }

// K returns the number of information bits per frame.
func (e *Encoder) K() int { return len(e.infoPos) }

// N returns the codeword size.
func (e *Encoder) N() int { return e.code.CodewordSize() }

// FrozenBits returns the active frozen vector; it is read-only.
func (e *Encoder) FrozenBits() []bool { return e.frozen }

// NotifyFrozenBits replaces the frozen vector. The number of information
// positions has to stay K.
func (e *Encoder) NotifyFrozenBits(frozen []bool) error {
	if err := ValidateFrozen(frozen, e.N(), e.K()); err != nil {
		return err
	}
	copy(e.frozen, frozen)
	e.rebuildInfoPos()
	return nil
}

func (e *Encoder) rebuildInfoPos() {
	e.infoPos = e.infoPos[:0]
	for i, f := range e.frozen {
		if !f {
			e.infoPos = append(e.infoPos, i)
		}
	}
}

// EncodeFrame encodes one frame: u holds K information bits, x receives
// the N-bit codeword. Only the lowest bit of each input element is used.
func (e *Encoder) EncodeFrame(u, x []int8) {
	n := e.N()
	for i := 0; i < n; i++ {
		x[i] = 0
	}
	for i, pos := range e.infoPos {
		x[pos] = u[i] & 1
	}
	e.transform(x)
}

// transform applies the kernel stages in place, leaf-adjacent stage
// first. Gathering each lane's inputs before writing keeps the butterfly
// in-place safe: for a fixed lane offset the read and write positions
// coincide.
func (e *Encoder) transform(x []int8) {
	stages := e.code.Stages()
	for st, ki := range stages {
		span := e.spans[st]
		arity := e.code.Kernel(ki).Size()
		sub := span / arity
		ke := e.ke[ki]
		for base := 0; base < len(x); base += span {
			for k2 := 0; k2 < sub; k2++ {
				for i := 0; i < arity; i++ {
					e.u[i] = x[base+sub*i+k2]
				}
				for i := 0; i < arity; i++ {
					var sum int8
					for j := 0; j < arity; j++ {
						sum += e.u[j] & ke[i*arity+j]
					}
					x[base+sub*i+k2] = sum & 1
				}
			}
		}
	}
}
