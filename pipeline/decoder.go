package pipeline

import (
	"fmt"
	"time"
)

// Layout selects the decoder output format. The choice is always explicit;
// it is never inferred from buffer capacity, which would be ambiguous for
// systematic codes where K equals N.
type Layout uint8

const (
	// LayoutInfo stores K information bits per frame.
	LayoutInfo Layout = iota
	// LayoutCodeword stores the full re-encoded N-bit codeword per frame.
	LayoutCodeword
)

// DecodeOptions controls one HardDecode call.
type DecodeOptions struct {
	// Load copies inputs into the wave buffers (and runs the algorithm's
	// Load step). Disable it to decode state loaded by an earlier call.
	Load bool
	// Store copies results out to the caller's buffer.
	Store bool
	// StoreFast selects the algorithm's fast store path, whose output may
	// not be in final bit format.
	StoreFast bool
	// Unpack normalizes a fast-stored buffer into standard bit format.
	Unpack bool
	// Layout picks the per-frame output size (K or N elements).
	Layout Layout
}

// DefaultDecodeOptions loads and stores with the information-bit layout.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Load: true, Store: true, Layout: LayoutInfo}
}

// Algorithm decodes exactly one wave of SIMD-level frames. Load fills the
// internal state from SIMDLevel*N LLRs, Decode runs the algorithm, Store
// writes SIMDLevel*K (or *N) hard bits in the requested layout.
type Algorithm interface {
	Load(yN []float32)
	Decode()
	Store(v []int8, layout Layout)
}

// FastStorer is implemented by algorithms with a fast, possibly packed
// store path. Algorithms without it fall back to the standard store.
type FastStorer interface {
	StoreFast(v []int8)
}

// Unpacker normalizes a fast-stored buffer in place. Without it, unpack
// is a no-op.
type Unpacker interface {
	Unpack(v []int8)
}

// Decoder adds frame-batching semantics around a single-wave decoding
// algorithm. Frames are grouped into waves of the algorithm's SIMD level
// so an implementation written for exactly L frames transparently serves
// arbitrary frame counts; the last wave may be partial. It is meant to be
// embedded in concrete decoders, which call InitDecoder.
type Decoder struct {
	Module
	k, n, simd   int
	nWaves, rest int
	alg          Algorithm

	yw [][]float32
	vw [][]int8

	dLoad, dDecode, dStore time.Duration

	tDecode *Task
}

// InitDecoder validates the decoder geometry, sets up the embedded module
// base with a "decode" task (IN Y_N of N float32 LLRs, OUT V_K of K int8
// bits, sub-phase timers "load"/"decode"/"store") and computes the wave
// split for nFrames frames batched simd at a time.
func (d *Decoder) InitDecoder(name string, k, n, simd, nFrames int, alg Algorithm) error {
	if k <= 0 {
		return fmt.Errorf("%w: decoder %q needs a positive K, got %d", ErrConfig, name, k)
	}
	if n <= 0 {
		return fmt.Errorf("%w: decoder %q needs a positive N, got %d", ErrConfig, name, n)
	}
	if simd <= 0 {
		return fmt.Errorf("%w: decoder %q needs a positive SIMD level, got %d", ErrConfig, name, simd)
	}
	if k > n {
		return fmt.Errorf("%w: decoder %q needs K <= N, got K=%d N=%d", ErrConfig, name, k, n)
	}
	if alg == nil {
		return fmt.Errorf("%w: decoder %q needs an algorithm", ErrConfig, name)
	}
	if err := d.InitModule(name, nFrames); err != nil {
		return err
	}
	d.k, d.n, d.simd = k, n, simd
	d.alg = alg
	d.resizeWaves(nFrames)
	d.OnResize(func(nf int) error {
		d.resizeWaves(nf)
		return nil
	})

	t, err := d.NewTask("decode")
	if err != nil {
		return err
	}
	sY, err := t.NewSocketIn("Y_N", Float32, n)
	if err != nil {
		return err
	}
	sV, err := t.NewSocketOut("V_K", Int8, k)
	if err != nil {
		return err
	}
	t.RegisterTimer("load")
	t.RegisterTimer("decode")
	t.RegisterTimer("store")
	t.BindCodelet(func() int {
		if err := d.HardDecode(View[float32](sY), View[int8](sV)); err != nil {
			// Socket geometry guarantees the size checks hold.
			panic(err)
		}
		t.UpdateTimer("load", d.dLoad)
		t.UpdateTimer("decode", d.dDecode)
		t.UpdateTimer("store", d.dStore)
		return 0
	})
	d.tDecode = t
	return nil
}

func (d *Decoder) resizeWaves(nFrames int) {
	d.nWaves = (nFrames + d.simd - 1) / d.simd
	d.rest = nFrames % d.simd
	d.yw = make([][]float32, d.nWaves)
	d.vw = make([][]int8, d.nWaves)
	for w := range d.yw {
		d.yw[w] = make([]float32, d.simd*d.n)
		d.vw[w] = make([]int8, d.simd*d.n)
	}
}

func (d *Decoder) K() int         { return d.k }
func (d *Decoder) N() int         { return d.n }
func (d *Decoder) SIMDLevel() int { return d.simd }
func (d *Decoder) NWaves() int    { return d.nWaves }

// DecodeTask returns the "decode" task.
func (d *Decoder) DecodeTask() *Task { return d.tDecode }

// LoadDuration returns the time spent loading during the last HardDecode,
// covering wave copy-in and the algorithm's Load step.
func (d *Decoder) LoadDuration() time.Duration { return d.dLoad }

// DecodeDuration returns the time spent in the algorithm's Decode step
// during the last HardDecode.
func (d *Decoder) DecodeDuration() time.Duration { return d.dDecode }

// StoreDuration returns the time spent storing during the last HardDecode,
// covering the algorithm's Store step and wave copy-out.
func (d *Decoder) StoreDuration() time.Duration { return d.dStore }

// HardDecode decodes N*nFrames LLRs into K*nFrames information bits.
func (d *Decoder) HardDecode(yN []float32, v []int8) error {
	return d.HardDecodeOpt(yN, v, DefaultDecodeOptions())
}

// HardDecodeOpt decodes with explicit options. The input must carry
// exactly N elements per frame; with Store enabled the output must carry
// exactly K (LayoutInfo) or N (LayoutCodeword) elements per frame.
func (d *Decoder) HardDecodeOpt(yN []float32, v []int8, o DecodeOptions) error {
	nf := d.NFrames()
	if len(yN) != d.n*nf {
		return fmt.Errorf("%w: decoder %q needs %d input LLRs, got %d",
			ErrSize, d.Name(), d.n*nf, len(yN))
	}
	perFrame := d.k
	if o.Layout == LayoutCodeword {
		perFrame = d.n
	}
	if o.Store && len(v) != perFrame*nf {
		return fmt.Errorf("%w: decoder %q needs %d output bits for this layout, got %d",
			ErrSize, d.Name(), perFrame*nf, len(v))
	}
	d.dLoad, d.dDecode, d.dStore = 0, 0, 0

	// One full wave decodes straight on the caller's buffers.
	if d.nWaves == 1 && d.rest == 0 {
		d.decodeWave(yN, v, o)
		return nil
	}
	for w := 0; w < d.nWaves; w++ {
		wf := d.simd
		if w == d.nWaves-1 && d.rest != 0 {
			wf = d.rest
		}
		if o.Load {
			start := time.Now()
			copy(d.yw[w][:wf*d.n], yN[w*d.simd*d.n:])
			d.dLoad += time.Since(start)
		}
		d.decodeWave(d.yw[w], d.vw[w], o)
		if o.Store {
			start := time.Now()
			copy(v[w*d.simd*perFrame:][:wf*perFrame], d.vw[w][:wf*perFrame])
			d.dStore += time.Since(start)
		}
	}
	return nil
}

func (d *Decoder) decodeWave(y []float32, v []int8, o DecodeOptions) {
	if o.Load {
		start := time.Now()
		d.alg.Load(y)
		d.dLoad += time.Since(start)
	}
	start := time.Now()
	d.alg.Decode()
	d.dDecode += time.Since(start)
	if !o.Store {
		return
	}
	start = time.Now()
	if o.StoreFast {
		if fs, ok := d.alg.(FastStorer); ok {
			fs.StoreFast(v)
			if o.Unpack {
				if u, ok := d.alg.(Unpacker); ok {
					u.Unpack(v)
				}
			}
		} else {
			d.alg.Store(v, o.Layout)
		}
	} else {
		d.alg.Store(v, o.Layout)
	}
	d.dStore += time.Since(start)
}
