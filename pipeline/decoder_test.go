package pipeline

import (
	"errors"
	"math/rand"
	"testing"
)

// thresholdAlg is a trivial single-wave algorithm used to exercise the
// batching logic: every negative LLR decodes to 1, and the first K
// positions of each frame are the information bits.
type thresholdAlg struct {
	k, n, simd int
	y          []float32
}

func newThresholdAlg(k, n, simd int) *thresholdAlg {
	return &thresholdAlg{k: k, n: n, simd: simd, y: make([]float32, simd*n)}
}

func (a *thresholdAlg) Load(yN []float32) { copy(a.y, yN[:a.simd*a.n]) }

func (a *thresholdAlg) Decode() {}

func (a *thresholdAlg) Store(v []int8, layout Layout) {
	per := a.k
	if layout == LayoutCodeword {
		per = a.n
	}
	for f := 0; f < a.simd; f++ {
		for i := 0; i < per; i++ {
			var b int8
			if a.y[f*a.n+i] < 0 {
				b = 1
			}
			v[f*per+i] = b
		}
	}
}

type fastAlg struct {
	thresholdAlg
}

// StoreFast packs each frame's K bits into the low bits of the first
// output element, leaving the rest untouched.
func (a *fastAlg) StoreFast(v []int8) {
	for f := 0; f < a.simd; f++ {
		var packed int8
		for i := 0; i < a.k; i++ {
			if a.y[f*a.n+i] < 0 {
				packed |= 1 << i
			}
		}
		v[f*a.k] = packed
	}
}

func (a *fastAlg) Unpack(v []int8) {
	for f := 0; f < a.simd; f++ {
		packed := v[f*a.k]
		for i := 0; i < a.k; i++ {
			v[f*a.k+i] = (packed >> i) & 1
		}
	}
}

type testDecoder struct {
	Decoder
}

func newTestDecoder(t *testing.T, k, n, simd, nFrames int, alg Algorithm) *testDecoder {
	t.Helper()
	d := &testDecoder{}
	if err := d.InitDecoder("Decoder", k, n, simd, nFrames, alg); err != nil {
		t.Fatalf("init decoder: %v", err)
	}
	return d
}

func TestDecoderValidation(t *testing.T) {
	cases := []struct {
		name       string
		k, n, simd int
	}{
		{"zero K", 0, 8, 1},
		{"negative K", -1, 8, 1},
		{"zero N", 4, 0, 1},
		{"zero SIMD", 4, 8, 0},
		{"K above N", 9, 8, 1},
	}
	for _, tc := range cases {
		d := &testDecoder{}
		err := d.InitDecoder("Decoder", tc.k, tc.n, tc.simd, 1, newThresholdAlg(4, 8, 1))
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: got %v, want ErrConfig", tc.name, err)
		}
	}
	if err := (&testDecoder{}).InitDecoder("Decoder", 4, 8, 1, 1, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("nil algorithm: got %v, want ErrConfig", err)
	}
}

func TestHardDecodeSizeChecks(t *testing.T) {
	d := newTestDecoder(t, 2, 4, 1, 3, newThresholdAlg(2, 4, 1))
	y := make([]float32, 4*3)
	if err := d.HardDecode(y[:10], make([]int8, 6)); !errors.Is(err, ErrSize) {
		t.Fatalf("short input: got %v, want ErrSize", err)
	}
	if err := d.HardDecode(y, make([]int8, 5)); !errors.Is(err, ErrSize) {
		t.Fatalf("short output: got %v, want ErrSize", err)
	}
	o := DefaultDecodeOptions()
	o.Layout = LayoutCodeword
	if err := d.HardDecodeOpt(y, make([]int8, 6), o); !errors.Is(err, ErrSize) {
		t.Fatalf("codeword layout with K-sized output: got %v, want ErrSize", err)
	}
	if err := d.HardDecodeOpt(y, make([]int8, 12), o); err != nil {
		t.Fatalf("codeword layout: %v", err)
	}
}

func TestWaveSplitting(t *testing.T) {
	const k, n = 3, 6
	rng := rand.New(rand.NewSource(7))
	for _, tc := range []struct{ nFrames, simd int }{
		{1, 1}, {2, 2}, {4, 2}, {5, 2}, {7, 3}, {8, 4},
	} {
		nf := tc.nFrames
		y := make([]float32, n*nf)
		for i := range y {
			y[i] = float32(rng.NormFloat64())
		}
		want := make([]int8, k*nf)
		for f := 0; f < nf; f++ {
			for i := 0; i < k; i++ {
				if y[f*n+i] < 0 {
					want[f*k+i] = 1
				}
			}
		}
		d := newTestDecoder(t, k, n, tc.simd, nf, newThresholdAlg(k, n, tc.simd))
		got := make([]int8, k*nf)
		if err := d.HardDecode(y, got); err != nil {
			t.Fatalf("nFrames=%d simd=%d: %v", nf, tc.simd, err)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("nFrames=%d simd=%d: bit %d is %d, want %d",
					nf, tc.simd, i, got[i], want[i])
			}
		}
	}
}

func TestCodewordLayout(t *testing.T) {
	const k, n, nf = 2, 4, 3
	y := []float32{1, -1, 1, -1, -1, -1, 1, 1, 1, 1, -1, -1}
	d := newTestDecoder(t, k, n, 1, nf, newThresholdAlg(k, n, 1))
	got := make([]int8, n*nf)
	o := DefaultDecodeOptions()
	o.Layout = LayoutCodeword
	if err := d.HardDecodeOpt(y, got, o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []int8{0, 1, 0, 1, 1, 1, 0, 0, 0, 0, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bit %d is %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStoreFastFallback(t *testing.T) {
	const k, n, nf = 3, 4, 2
	y := []float32{-1, 1, -1, 1, 1, -1, -1, 1}
	want := []int8{1, 0, 1, 0, 1, 1}

	// Without a fast path the standard store is used.
	d := newTestDecoder(t, k, n, 1, nf, newThresholdAlg(k, n, 1))
	got := make([]int8, k*nf)
	o := DefaultDecodeOptions()
	o.StoreFast = true
	if err := d.HardDecodeOpt(y, got, o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fallback: bit %d is %d, want %d", i, got[i], want[i])
		}
	}

	// With fast store and unpack the result matches the standard format.
	fa := &fastAlg{thresholdAlg: *newThresholdAlg(k, n, 1)}
	df := newTestDecoder(t, k, n, 1, nf, fa)
	o.Unpack = true
	got = make([]int8, k*nf)
	if err := df.HardDecodeOpt(y, got, o); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fast+unpack: bit %d is %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDecodeTaskTimers(t *testing.T) {
	const k, n, nf = 2, 4, 4
	d := newTestDecoder(t, k, n, 2, nf, newThresholdAlg(k, n, 2))
	task := d.DecodeTask()
	task.SetStats(true)
	y := make([]float32, n*nf)
	for i := range y {
		y[i] = 1 - 2*float32(i%2)
	}
	sY, err := task.Socket("Y_N")
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if err := BindSlice(sY, y); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := task.Exec(); err != nil {
		t.Fatalf("exec: %v", err)
	}
	for _, key := range []string{"load", "decode", "store"} {
		tm, err := task.TimerStats(key)
		if err != nil {
			t.Fatalf("timer %s: %v", key, err)
		}
		if tm.Calls != 1 {
			t.Fatalf("timer %s: got %d calls, want 1", key, tm.Calls)
		}
	}
	sV, _ := task.Socket("V_K")
	v := View[int8](sV)
	for i := 0; i < nf; i++ {
		if v[i*k] != 0 || v[i*k+1] != 1 {
			t.Fatalf("frame %d decoded to %v", i, v[i*k:i*k+2])
		}
	}
}

func TestSetNFramesResizesWaves(t *testing.T) {
	d := newTestDecoder(t, 2, 4, 2, 2, newThresholdAlg(2, 4, 2))
	if d.NWaves() != 1 {
		t.Fatalf("got %d waves, want 1", d.NWaves())
	}
	if err := d.SetNFrames(5); err != nil {
		t.Fatalf("set n frames: %v", err)
	}
	if d.NWaves() != 3 {
		t.Fatalf("got %d waves, want 3", d.NWaves())
	}
	y := make([]float32, 4*5)
	for i := range y {
		y[i] = -1
	}
	got := make([]int8, 2*5)
	if err := d.HardDecode(y, got); err != nil {
		t.Fatalf("decode after resize: %v", err)
	}
	for i, b := range got {
		if b != 1 {
			t.Fatalf("bit %d is %d, want 1", i, b)
		}
	}
}
