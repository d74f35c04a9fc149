package polar

import (
	"fmt"

	"github.com/polarsim/wavekit/internal/bitpack"
	"github.com/polarsim/wavekit/pipeline"
)

// scNode is one node of the static decode tree. Nodes live in a
// preorder arena; children are addressed arithmetically from the first
// child index and the per-stage subtree size, so the recursion never
// chases pointers. LLR and partial-sum buffers are overwritten on every
// decode call, everything else is fixed at construction.
type scNode struct {
	stage   int
	span    int
	child   int32
	leafPos int32
	frozen  bool
	l       []float32
	s       []int8
}

// DecoderSC is the generalized successive-cancellation decoder for
// mono-kernel polar codes. It descends a static kernel tree computing
// child LLRs with the kernel's combining functions, takes hard decisions
// at the leaves (frozen leaves decode to 0) and re-encodes partial sums
// on the way back up through the transposed kernel matrix.
//
// DecoderSC embeds the frame-batching Decoder base and serves as its own
// single-wave algorithm; Load, Decode and Store are the per-wave hooks
// and are usually driven through HardDecode or the "decode" task.
type DecoderSC struct {
	pipeline.Decoder

	code   *Code
	frozen []bool
	stages []int

	kind    kernelKind
	arity   int
	lambdas []combineFn
	ke      [][]int8

	nodes      []scNode
	subSize    []int
	leaves     []int32
	infoLeaves []int32

	sTmp, bitTmp []int8
	llrTmp       []float32
	uTmp         []int8
}

// NewDecoderSC validates the (k, n, code, frozen) configuration, builds
// the decode tree and sets up the decoder module for nFrames frames.
func NewDecoderSC(k, n int, code *Code, frozen []bool, nFrames int) (*DecoderSC, error) {
	if code == nil {
		return nil, fmt.Errorf("%w: the decoder needs a code descriptor", pipeline.ErrConfig)
	}
	if !code.IsMonoKernel() {
		return nil, fmt.Errorf("%w: the SC decoder supports only mono-kernel codes",
			pipeline.ErrConfig)
	}
	kernel := code.Kernel(code.Stages()[0])
	if kernel.Size() < 2 {
		return nil, fmt.Errorf("%w: the kernel dimension has to be at least 2, got %d",
			pipeline.ErrConfig, kernel.Size())
	}
	if n != code.CodewordSize() {
		return nil, fmt.Errorf("%w: N=%d does not match the code's codeword size %d",
			pipeline.ErrConfig, n, code.CodewordSize())
	}
	if err := ValidateFrozen(frozen, n, k); err != nil {
		return nil, err
	}
	kind := classifyKernel(kernel)
	if kind == kernelUnknown {
		return nil, fmt.Errorf("%w: unsupported polar kernel", pipeline.ErrConfig)
	}

	d := &DecoderSC{
		code:   code,
		frozen: append([]bool(nil), frozen...),
		stages: code.Stages(),
		kind:   kind,
		arity:  kernel.Size(),
		ke:     transposedKernels(code.kernels),
	}
	d.lambdas = combiners(kind)
	d.llrTmp = make([]float32, d.arity)
	d.sTmp = make([]int8, d.arity)
	d.uTmp = make([]int8, d.arity)
	d.bitTmp = make([]int8, k)
	d.buildTree()

	if err := d.InitDecoder("Decoder_polar_SC", k, n, 1, nFrames, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Code returns the code descriptor the decoder was built for.
func (d *DecoderSC) Code() *Code { return d.code }

// FrozenBits returns the active frozen vector; it is read-only.
func (d *DecoderSC) FrozenBits() []bool { return d.frozen }

// NotifyFrozenBits replaces the frozen vector and re-propagates the flags
// to the tree leaves without rebuilding the tree.
func (d *DecoderSC) NotifyFrozenBits(frozen []bool) error {
	if err := ValidateFrozen(frozen, d.N(), d.K()); err != nil {
		return err
	}
	copy(d.frozen, frozen)
	d.infoLeaves = d.infoLeaves[:0]
	for _, li := range d.leaves {
		leaf := &d.nodes[li]
		leaf.frozen = d.frozen[leaf.leafPos]
		if !leaf.frozen {
			d.infoLeaves = append(d.infoLeaves, li)
		}
	}
	return nil
}

func (d *DecoderSC) buildTree() {
	depth := len(d.stages)
	d.subSize = make([]int, depth+1)
	d.subSize[0] = 1
	for st := 0; st < depth; st++ {
		arity := d.code.Kernel(d.stages[st]).Size()
		d.subSize[st+1] = 1 + arity*d.subSize[st]
	}
	d.nodes = make([]scNode, 0, d.subSize[depth])
	d.allocateNode(depth-1, d.code.CodewordSize(), 0)
	for i := range d.nodes {
		nd := &d.nodes[i]
		if nd.child < 0 {
			d.leaves = append(d.leaves, int32(i))
			if !nd.frozen {
				d.infoLeaves = append(d.infoLeaves, int32(i))
			}
		}
	}
}

func (d *DecoderSC) allocateNode(stage, span, lane int) int32 {
	idx := int32(len(d.nodes))
	d.nodes = append(d.nodes, scNode{stage: stage, span: span, child: -1, leafPos: -1})
	if stage < 0 {
		d.nodes[idx].leafPos = int32(lane)
		d.nodes[idx].frozen = d.frozen[lane]
		d.nodes[idx].l = make([]float32, 1)
		d.nodes[idx].s = make([]int8, 1)
		return idx
	}
	arity := d.code.Kernel(d.stages[stage]).Size()
	sub := span / arity
	var first int32
	for c := 0; c < arity; c++ {
		ci := d.allocateNode(stage-1, sub, lane+c*sub)
		if c == 0 {
			first = ci
		}
	}
	d.nodes[idx].child = first
	d.nodes[idx].l = make([]float32, span)
	d.nodes[idx].s = make([]int8, span)
	return idx
}

// Load copies the received LLR vector into the root node.
func (d *DecoderSC) Load(yN []float32) {
	copy(d.nodes[0].l, yN[:d.N()])
}

// Decode runs one successive-cancellation pass over the tree.
func (d *DecoderSC) Decode() {
	d.recurseDecode(0)
}

func (d *DecoderSC) recurseDecode(ni int32) {
	node := &d.nodes[ni]
	if node.child < 0 {
		if !node.frozen && node.l[0] < 0 {
			node.s[0] = 1
		} else {
			node.s[0] = 0
		}
		return
	}
	sub := node.span / d.arity
	childSz := d.subSize[node.stage]
	for c := 0; c < d.arity; c++ {
		ci := node.child + int32(c*childSz)
		child := &d.nodes[ci]
		for i := 0; i < sub; i++ {
			for l := 0; l < d.arity; l++ {
				d.llrTmp[l] = node.l[l*sub+i]
			}
			for x := 0; x < c; x++ {
				d.sTmp[x] = d.nodes[node.child+int32(x*childSz)].s[i]
			}
			child.l[i] = d.lambdas[c](d.llrTmp, d.sTmp)
		}
		d.recurseDecode(ci)
	}
	// Re-encode the children's partial sums through the transposed
	// kernel; lane k2 of child i feeds output position sub*i + k2.
	ke := d.ke[d.stages[node.stage]]
	for k2 := 0; k2 < sub; k2++ {
		for i := 0; i < d.arity; i++ {
			d.uTmp[i] = d.nodes[node.child+int32(i*childSz)].s[k2]
		}
		for i := 0; i < d.arity; i++ {
			var sum int8
			for j := 0; j < d.arity; j++ {
				sum += d.uTmp[j] & ke[i*d.arity+j]
			}
			node.s[sub*i+k2] = sum & 1
		}
	}
}

// Store writes the decisions in the requested layout: the non-frozen leaf
// decisions in leaf traversal order, or the root's full re-encoded
// codeword.
func (d *DecoderSC) Store(v []int8, layout pipeline.Layout) {
	if layout == pipeline.LayoutCodeword {
		copy(v[:d.N()], d.nodes[0].s)
		return
	}
	for i, li := range d.infoLeaves {
		v[i] = d.nodes[li].s[0]
	}
}

// StoreFast writes the information bits packed eight per element into the
// output prefix; Unpack restores the standard one-bit-per-element format.
func (d *DecoderSC) StoreFast(v []int8) {
	for i, li := range d.infoLeaves {
		d.bitTmp[i] = d.nodes[li].s[0]
	}
	bitpack.PackInto(v, d.bitTmp)
}

// Unpack expands a fast-stored buffer in place.
func (d *DecoderSC) Unpack(v []int8) {
	bitpack.UnpackInPlace(v, d.K())
}
