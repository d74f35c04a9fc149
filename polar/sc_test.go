package polar

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/polarsim/wavekit/pipeline"
)

func headFrozen(n, k int) []bool {
	frozen := make([]bool, n)
	for i := 0; i < n-k; i++ {
		frozen[i] = true
	}
	return frozen
}

// roundTrip encodes random frames, maps the codeword bits to unit LLRs
// and checks the decoder recovers every information bit.
func roundTrip(t *testing.T, k, n int, code *Code, frozen []bool, nFrames int, seed int64) {
	t.Helper()
	enc, err := NewEncoder(k, n, code, frozen, nFrames)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoderSC(k, n, code, frozen, nFrames)
	if err != nil {
		t.Fatalf("NewDecoderSC: %v", err)
	}

	rng := rand.New(rand.NewSource(seed))
	u := make([]int8, k*nFrames)
	x := make([]int8, n*nFrames)
	y := make([]float32, n*nFrames)
	for f := 0; f < nFrames; f++ {
		uf := u[f*k : (f+1)*k]
		for i := range uf {
			uf[i] = int8(rng.Intn(2))
		}
		enc.EncodeFrame(uf, x[f*n:(f+1)*n])
	}
	for i, b := range x {
		y[i] = 1 - 2*float32(b)
	}

	v := make([]int8, k*nFrames)
	if err := dec.HardDecode(y, v); err != nil {
		t.Fatalf("HardDecode: %v", err)
	}
	for i := range u {
		if v[i] != u[i] {
			t.Fatalf("frame bit %d decoded as %d, want %d", i, v[i], u[i])
		}
	}
}

func TestRoundTripArikan(t *testing.T) {
	code, err := NewArikanCode(3)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	frozen, err := FrozenFromBEC(8, 4, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	roundTrip(t, 4, 8, code, frozen, 1, 1)
	roundTrip(t, 4, 8, code, frozen, 5, 2)
}

func TestRoundTripArikanLarge(t *testing.T) {
	code, err := NewArikanCode(6)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	frozen, err := FrozenFromBEC(64, 32, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	roundTrip(t, 32, 64, code, frozen, 3, 3)
}

func TestRoundTripTernaryFull(t *testing.T) {
	code, err := NewCode(9, []int{0, 0}, []Matrix{T3FullMatrix()})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	roundTrip(t, 5, 9, code, headFrozen(9, 5), 1, 4)
	roundTrip(t, 5, 9, code, headFrozen(9, 5), 4, 5)
}

func TestRoundTripTernaryLower(t *testing.T) {
	code, err := NewCode(9, []int{0, 0}, []Matrix{T3LowerMatrix()})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	roundTrip(t, 6, 9, code, headFrozen(9, 6), 1, 6)

	small, err := NewCode(3, []int{0}, []Matrix{T3LowerMatrix()})
	if err != nil {
		t.Fatalf("NewCode: %v", err)
	}
	roundTrip(t, 2, 3, small, headFrozen(3, 2), 2, 7)
}

func TestNewDecoderSCValidation(t *testing.T) {
	k2 := ArikanMatrix()
	mixed, err := NewCode(6, []int{0, 1}, []Matrix{k2, T3FullMatrix()})
	if err != nil {
		t.Fatalf("NewCode mixed: %v", err)
	}
	if _, err := NewDecoderSC(3, 6, mixed, headFrozen(6, 3), 1); !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("mixed-kernel code: err = %v, want config error", err)
	}

	trivial, err := NewCode(1, []int{0}, []Matrix{{{true}}})
	if err != nil {
		t.Fatalf("NewCode trivial: %v", err)
	}
	if _, err := NewDecoderSC(1, 1, trivial, []bool{false}, 1); !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("size-1 kernel: err = %v, want config error", err)
	}

	arikan, err := NewArikanCode(3)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	if _, err := NewDecoderSC(2, 4, arikan, headFrozen(4, 2), 1); !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("N mismatch: err = %v, want config error", err)
	}
	if _, err := NewDecoderSC(4, 8, arikan, headFrozen(4, 2), 1); !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("short frozen vector: err = %v, want config error", err)
	}
	if _, err := NewDecoderSC(4, 8, arikan, headFrozen(8, 5), 1); !errors.Is(err, pipeline.ErrConfig) {
		t.Fatalf("frozen count mismatch: err = %v, want config error", err)
	}

	identity := Matrix{{true, false}, {false, true}}
	idCode, err := NewCode(4, []int{0, 0}, []Matrix{identity})
	if err != nil {
		t.Fatalf("NewCode identity: %v", err)
	}
	_, err = NewDecoderSC(2, 4, idCode, headFrozen(4, 2), 1)
	if !errors.Is(err, pipeline.ErrConfig) || !strings.Contains(err.Error(), "unsupported polar kernel") {
		t.Fatalf("identity kernel: err = %v, want unsupported kernel", err)
	}
}

func TestDecoderTreeShape(t *testing.T) {
	code, err := NewArikanCode(2)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	dec, err := NewDecoderSC(2, 4, code, headFrozen(4, 2), 1)
	if err != nil {
		t.Fatalf("NewDecoderSC: %v", err)
	}
	if len(dec.nodes) != 7 {
		t.Fatalf("arena holds %d nodes, want 7", len(dec.nodes))
	}
	if len(dec.leaves) != 4 {
		t.Fatalf("%d leaves, want 4", len(dec.leaves))
	}
	if len(dec.infoLeaves) != 2 {
		t.Fatalf("%d info leaves, want 2", len(dec.infoLeaves))
	}
	for i, li := range dec.leaves {
		if got := int(dec.nodes[li].leafPos); got != i {
			t.Fatalf("leaf %d has position %d, traversal order broken", i, got)
		}
	}
}

func TestCodewordLayoutRoundTrip(t *testing.T) {
	code, err := NewArikanCode(3)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	frozen, err := FrozenFromBEC(8, 4, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	enc, err := NewEncoder(4, 8, code, frozen, 2)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoderSC(4, 8, code, frozen, 2)
	if err != nil {
		t.Fatalf("NewDecoderSC: %v", err)
	}

	rng := rand.New(rand.NewSource(8))
	x := make([]int8, 16)
	y := make([]float32, 16)
	u := make([]int8, 4)
	for f := 0; f < 2; f++ {
		for i := range u {
			u[i] = int8(rng.Intn(2))
		}
		enc.EncodeFrame(u, x[f*8:(f+1)*8])
	}
	for i, b := range x {
		y[i] = 1 - 2*float32(b)
	}

	got := make([]int8, 16)
	opts := pipeline.DecodeOptions{Load: true, Store: true, Layout: pipeline.LayoutCodeword}
	if err := dec.HardDecodeOpt(y, got, opts); err != nil {
		t.Fatalf("HardDecodeOpt: %v", err)
	}
	for i := range x {
		if got[i] != x[i] {
			t.Fatalf("re-encoded codeword bit %d = %d, want %d", i, got[i], x[i])
		}
	}
}

func TestStoreFastMatchesStore(t *testing.T) {
	code, err := NewArikanCode(4)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	frozen, err := FrozenFromBEC(16, 10, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	enc, err := NewEncoder(10, 16, code, frozen, 3)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := NewDecoderSC(10, 16, code, frozen, 3)
	if err != nil {
		t.Fatalf("NewDecoderSC: %v", err)
	}

	rng := rand.New(rand.NewSource(9))
	u := make([]int8, 30)
	x := make([]int8, 48)
	y := make([]float32, 48)
	for f := 0; f < 3; f++ {
		uf := u[f*10 : (f+1)*10]
		for i := range uf {
			uf[i] = int8(rng.Intn(2))
		}
		enc.EncodeFrame(uf, x[f*16:(f+1)*16])
	}
	for i, b := range x {
		y[i] = 1 - 2*float32(b)
	}

	plain := make([]int8, 30)
	if err := dec.HardDecode(y, plain); err != nil {
		t.Fatalf("HardDecode: %v", err)
	}
	fast := make([]int8, 30)
	opts := pipeline.DecodeOptions{Load: true, Store: true, StoreFast: true, Unpack: true}
	if err := dec.HardDecodeOpt(y, fast, opts); err != nil {
		t.Fatalf("HardDecodeOpt: %v", err)
	}
	for i := range plain {
		if fast[i] != plain[i] {
			t.Fatalf("fast store bit %d = %d, plain store %d", i, fast[i], plain[i])
		}
	}
}

func TestNotifyFrozenBits(t *testing.T) {
	code, err := NewArikanCode(2)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	codec, err := NewCodec(2, 4, code, []bool{true, true, false, false}, 1)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	next := []bool{true, false, true, false}
	if err := codec.NotifyFrozenBits(next); err != nil {
		t.Fatalf("NotifyFrozenBits: %v", err)
	}

	u := []int8{1, 1}
	x := make([]int8, 4)
	codec.Encoder().EncodeFrame(u, x)
	y := make([]float32, 4)
	for i, b := range x {
		y[i] = 1 - 2*float32(b)
	}
	v := make([]int8, 2)
	if err := codec.Decoder().HardDecode(y, v); err != nil {
		t.Fatalf("HardDecode: %v", err)
	}
	if v[0] != 1 || v[1] != 1 {
		t.Fatalf("decoded %v after frozen update, want [1 1]", v)
	}

	if err := codec.NotifyFrozenBits([]bool{true, true, true, false}); err == nil {
		t.Fatal("frozen vector with wrong info count accepted")
	}
}

func TestBatchMatchesSingleFrame(t *testing.T) {
	code, err := NewArikanCode(3)
	if err != nil {
		t.Fatalf("NewArikanCode: %v", err)
	}
	frozen, err := FrozenFromBEC(8, 4, 0.5)
	if err != nil {
		t.Fatalf("FrozenFromBEC: %v", err)
	}
	batch, err := NewDecoderSC(4, 8, code, frozen, 5)
	if err != nil {
		t.Fatalf("NewDecoderSC batch: %v", err)
	}
	single, err := NewDecoderSC(4, 8, code, frozen, 1)
	if err != nil {
		t.Fatalf("NewDecoderSC single: %v", err)
	}

	rng := rand.New(rand.NewSource(10))
	y := make([]float32, 40)
	for i := range y {
		y[i] = float32(rng.NormFloat64())
	}

	got := make([]int8, 20)
	if err := batch.HardDecode(y, got); err != nil {
		t.Fatalf("batch HardDecode: %v", err)
	}
	want := make([]int8, 20)
	for f := 0; f < 5; f++ {
		if err := single.HardDecode(y[f*8:(f+1)*8], want[f*4:(f+1)*4]); err != nil {
			t.Fatalf("single HardDecode: %v", err)
		}
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("batch bit %d = %d, single-frame %d", i, got[i], want[i])
		}
	}
}
