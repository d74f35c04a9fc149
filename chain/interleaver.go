package chain

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/polarsim/wavekit/pipeline"
)

// Interleaver permutes codeword bits before the channel and restores LLR
// order afterwards. The forward table pi maps output position i to input
// position pi[i]; "interleave" applies it to bit frames, "deinterleave"
// applies the inverse to LLR frames.
type Interleaver struct {
	pipeline.Module
	n   int
	pi  []int32
	inv []int32
}

// NewInterleaverRandom draws a uniform permutation from a fixed seed.
func NewInterleaverRandom(n, nFrames int, seed int64) (*Interleaver, error) {
	rng := rand.New(rand.NewSource(seed))
	pi := make([]int32, n)
	for i, v := range rng.Perm(n) {
		pi[i] = int32(v)
	}
	return newInterleaver(n, nFrames, pi)
}

// NewInterleaverBlock builds the row/column block permutation: frames are
// written row by row into a cols-wide array and read column by column.
func NewInterleaverBlock(n, cols, nFrames int) (*Interleaver, error) {
	if cols <= 0 || n%cols != 0 {
		return nil, fmt.Errorf("%w: block interleaver needs cols dividing N, got N=%d cols=%d",
			pipeline.ErrConfig, n, cols)
	}
	rows := n / cols
	pi := make([]int32, n)
	for i := 0; i < n; i++ {
		pi[i] = int32((i%rows)*cols + i/rows)
	}
	return newInterleaver(n, nFrames, pi)
}

// NewInterleaverFromFile loads a permutation saved by SaveTable: JSON for
// .json paths, packed little-endian int32 otherwise.
func NewInterleaverFromFile(n, nFrames int, path string) (*Interleaver, error) {
	pi, err := loadTable(path, n)
	if err != nil {
		return nil, err
	}
	return newInterleaver(n, nFrames, pi)
}

func newInterleaver(n, nFrames int, pi []int32) (*Interleaver, error) {
	il := &Interleaver{n: n, pi: pi, inv: make([]int32, n)}
	seen := make([]bool, n)
	for i, p := range pi {
		if p < 0 || int(p) >= n || seen[p] {
			return nil, fmt.Errorf("%w: interleaver table is not a permutation of [0,%d)",
				pipeline.ErrConfig, n)
		}
		seen[p] = true
		il.inv[p] = int32(i)
	}
	if err := il.InitModule("Interleaver", nFrames); err != nil {
		return nil, err
	}

	ti, err := il.NewTask("interleave")
	if err != nil {
		return nil, err
	}
	sX1, err := ti.NewSocketIn("X_N1", pipeline.Int8, n)
	if err != nil {
		return nil, err
	}
	sX2, err := ti.NewSocketOut("X_N2", pipeline.Int8, n)
	if err != nil {
		return nil, err
	}
	ti.BindCodelet(func() int {
		x1 := pipeline.View[int8](sX1)
		x2 := pipeline.View[int8](sX2)
		for f := 0; f < il.NFrames(); f++ {
			il.InterleaveFrame(x1[f*n:(f+1)*n], x2[f*n:(f+1)*n])
		}
		return 0
	})

	td, err := il.NewTask("deinterleave")
	if err != nil {
		return nil, err
	}
	sY1, err := td.NewSocketIn("Y_N1", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	sY2, err := td.NewSocketOut("Y_N2", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	td.BindCodelet(func() int {
		y1 := pipeline.View[float32](sY1)
		y2 := pipeline.View[float32](sY2)
		for f := 0; f < il.NFrames(); f++ {
			il.DeinterleaveFrame(y1[f*n:(f+1)*n], y2[f*n:(f+1)*n])
		}
		return 0
	})
	return il, nil
}

// N returns the number of positions per frame.
func (il *Interleaver) N() int { return il.n }

// Table returns the forward permutation; it is read-only.
func (il *Interleaver) Table() []int32 { return il.pi }

// InterleaveFrame writes out[i] = in[pi[i]] for one frame.
func (il *Interleaver) InterleaveFrame(in, out []int8) {
	for i, p := range il.pi {
		out[i] = in[p]
	}
}

// DeinterleaveFrame restores the original order of one LLR frame.
func (il *Interleaver) DeinterleaveFrame(in, out []float32) {
	for i, p := range il.inv {
		out[i] = in[p]
	}
}

// SaveTable writes the permutation as JSON for .json paths or as packed
// little-endian int32 values otherwise.
func (il *Interleaver) SaveTable(path string) error {
	if strings.HasSuffix(path, ".json") {
		blob, err := json.Marshal(struct {
			N    int     `json:"N"`
			Perm []int32 `json:"perm"`
		}{il.n, il.pi})
		if err != nil {
			return err
		}
		return os.WriteFile(path, blob, 0o644)
	}
	buf := make([]byte, 4*len(il.pi))
	for i, v := range il.pi {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return os.WriteFile(path, buf, 0o644)
}

func loadTable(path string, n int) ([]int32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var jp struct {
		N    int     `json:"N"`
		Perm []int32 `json:"perm"`
	}
	if json.Unmarshal(b, &jp) == nil && jp.N > 0 && len(jp.Perm) == jp.N {
		if jp.N != n {
			return nil, fmt.Errorf("%w: table is for N=%d, the interleaver needs N=%d",
				pipeline.ErrSize, jp.N, n)
		}
		return jp.Perm, nil
	}
	if len(b)%4 != 0 || len(b)/4 != n {
		return nil, fmt.Errorf("%w: %s does not hold %d int32 entries", pipeline.ErrSize, path, n)
	}
	pi := make([]int32, n)
	for i := range pi {
		pi[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return pi, nil
}
