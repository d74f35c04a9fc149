package sim

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polarsim/wavekit/chain"
	"github.com/polarsim/wavekit/pipeline"
	"github.com/polarsim/wavekit/polar"
	"github.com/polarsim/wavekit/trace"
)

// BFER sweeps the polar-coded BPSK chain across a range of Eb/N0 points
// and measures bit and frame error rates at each one. Every worker owns
// a private copy of the whole chain; only the stop counters are shared.
type BFER struct {
	p       Params
	log     *zap.Logger
	rec     *trace.Recorder
	onChain func(...*pipeline.Module)

	code   *polar.Code
	frozen []bool
	kc     int
	rate   float64
}

// NewBFER validates the sweep and constructs the polar code once, so
// every worker decodes the same frozen set.
func NewBFER(p Params, log *zap.Logger) (*BFER, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	crcSize := 0
	if p.CRCPoly != "" {
		poly, err := chain.PolynomialByName(p.CRCPoly)
		if err != nil {
			return nil, err
		}
		crcSize = poly.Size
	}
	kc := p.K + crcSize
	if kc > p.N {
		return nil, fmt.Errorf("%w: %d info bits plus %d CRC bits exceed N=%d",
			pipeline.ErrConfig, p.K, crcSize, p.N)
	}
	code, err := polar.NewArikanCode(bits.TrailingZeros(uint(p.N)))
	if err != nil {
		return nil, err
	}
	frozen, err := polar.FrozenFromBEC(p.N, kc, p.Eps)
	if err != nil {
		return nil, err
	}
	return &BFER{
		p:      p,
		log:    log,
		code:   code,
		frozen: frozen,
		kc:     kc,
		// The noise conversion uses the codec rate, CRC bits included.
		rate: float64(kc) / float64(p.N),
	}, nil
}

// SetRecorder attaches a runner-side execution trace. Pass nil to
// disable recording again.
func (b *BFER) SetRecorder(r *trace.Recorder) { b.rec = r }

// OnChain is invoked with the modules of every worker chain as it is
// built, so callers can register them for metrics or debugging.
func (b *BFER) OnChain(fn func(...*pipeline.Module)) { b.onChain = fn }

// CodecK returns the codec payload size, info bits plus CRC bits.
func (b *BFER) CodecK() int { return b.kc }

// FrozenBits exposes the BEC frozen set shared by all workers.
func (b *BFER) FrozenBits() []bool { return b.frozen }

// workerChain owns one private copy of every stage so workers never
// share mutable state. crc, il and quant are nil when disabled; exactly
// one of ch and rep is set, depending on the noise source.
type workerChain struct {
	src   *chain.Source
	crc   *chain.CRC
	codec *polar.Codec
	il    *chain.Interleaver
	modem *chain.ModemBPSK
	ch    *chain.ChannelAWGN
	rep   *chain.ChannelReplay
	quant *chain.Quantizer
	mon   *chain.Monitor

	order    []*pipeline.Task
	monTask  *pipeline.Task
	prevBits uint64
}

func (b *BFER) newChain(seed int64) (*workerChain, error) {
	p := b.p
	wc := &workerChain{}

	var err error
	if wc.src, err = chain.NewSourceRandom(p.K, p.NFrames, seed); err != nil {
		return nil, err
	}
	if p.CRCPoly != "" {
		if wc.crc, err = chain.NewCRC(p.K, p.CRCPoly, p.NFrames); err != nil {
			return nil, err
		}
	}
	if wc.codec, err = polar.NewCodec(b.kc, p.N, b.code, b.frozen, p.NFrames); err != nil {
		return nil, err
	}
	if p.Interleave {
		if wc.il, err = chain.NewInterleaverRandom(p.N, p.NFrames, seed+1); err != nil {
			return nil, err
		}
	}
	if wc.modem, err = chain.NewModemBPSK(p.N, p.NFrames); err != nil {
		return nil, err
	}
	if p.NoiseFile != "" {
		if wc.rep, err = chain.NewChannelReplayFromFile(p.N, p.NFrames, p.NoiseFile); err != nil {
			return nil, err
		}
	} else {
		if wc.ch, err = chain.NewChannelAWGN(p.N, p.NFrames, uint64(seed)+2); err != nil {
			return nil, err
		}
	}
	if p.QuantBits != 0 {
		if wc.quant, err = chain.NewQuantizer(p.N, p.QuantBits, p.QuantFrac, p.NFrames); err != nil {
			return nil, err
		}
	}
	if wc.mon, err = chain.NewMonitor(p.K, 0, p.NFrames); err != nil {
		return nil, err
	}
	if err := wc.wire(); err != nil {
		return nil, err
	}
	if b.onChain != nil {
		b.onChain(wc.modules()...)
	}
	return wc, nil
}

// channelModule returns whichever channel the chain was built with.
func (wc *workerChain) channelModule() *pipeline.Module {
	if wc.rep != nil {
		return &wc.rep.Module
	}
	return &wc.ch.Module
}

// modules lists the active stages of the chain in stream order.
func (wc *workerChain) modules() []*pipeline.Module {
	mods := []*pipeline.Module{&wc.src.Module}
	if wc.crc != nil {
		mods = append(mods, &wc.crc.Module)
	}
	mods = append(mods, &wc.codec.Encoder().Module)
	if wc.il != nil {
		mods = append(mods, &wc.il.Module)
	}
	mods = append(mods, &wc.modem.Module, wc.channelModule())
	if wc.quant != nil {
		mods = append(mods, &wc.quant.Module)
	}
	mods = append(mods, &wc.codec.Decoder().Module, &wc.mon.Module)
	return mods
}

// wire binds the stages in stream order and records the execution
// sequence. The optional stages drop out of the chain when nil.
func (wc *workerChain) wire() error {
	var err error

	step := func(m *pipeline.Module, task string) *pipeline.Task {
		if err != nil {
			return nil
		}
		var t *pipeline.Task
		if t, err = m.Task(task); err == nil {
			wc.order = append(wc.order, t)
		}
		return t
	}
	out := func(t *pipeline.Task, name string) *pipeline.Socket {
		if err != nil {
			return nil
		}
		var s *pipeline.Socket
		s, err = t.Socket(name)
		return s
	}
	bind := func(t *pipeline.Task, name string, from *pipeline.Socket) {
		if err != nil {
			return
		}
		var s *pipeline.Socket
		if s, err = t.Socket(name); err == nil {
			err = s.Bind(from)
		}
	}

	gen := step(&wc.src.Module, "generate")
	u := out(gen, "U_K")

	if wc.crc != nil {
		build := step(&wc.crc.Module, "build")
		bind(build, "U_K1", u)
		u = out(build, "U_K2")
	}

	enc := step(&wc.codec.Encoder().Module, "encode")
	bind(enc, "U_K", u)
	x := out(enc, "X_N")

	if wc.il != nil {
		ilv := step(&wc.il.Module, "interleave")
		bind(ilv, "X_N1", x)
		x = out(ilv, "X_N2")
	}

	mod := step(&wc.modem.Module, "modulate")
	bind(mod, "X_N1", x)

	noise := step(wc.channelModule(), "add_noise")
	bind(noise, "X_N", out(mod, "X_N2"))

	dem := step(&wc.modem.Module, "demodulate")
	bind(dem, "Y_N1", out(noise, "Y_N"))
	llr := out(dem, "Y_N2")

	if wc.il != nil {
		dil := step(&wc.il.Module, "deinterleave")
		bind(dil, "Y_N1", llr)
		llr = out(dil, "Y_N2")
	}
	if wc.quant != nil {
		qnt := step(&wc.quant.Module, "process")
		bind(qnt, "Y_N1", llr)
		llr = out(qnt, "Y_N2")
	}

	dec := wc.codec.Decoder().DecodeTask()
	if err == nil {
		wc.order = append(wc.order, dec)
	}
	bind(dec, "Y_N", llr)
	v := out(dec, "V_K")

	if wc.crc != nil {
		ext := step(&wc.crc.Module, "extract")
		bind(ext, "V_K2", v)
		v = out(ext, "V_K1")
	}

	// The monitor compares against the source bits, before any CRC.
	chk := step(&wc.mon.Module, "check_errors")
	bind(chk, "U", wc.src.Out())
	bind(chk, "V", v)
	wc.monTask = chk

	return err
}

// setPoint retargets the chain at a new noise level and clears the
// per-point counters. A replay channel restarts its recording instead
// of rescaling, so every point sees the same noise trace.
func (wc *workerChain) setPoint(sigma float64) error {
	if err := wc.modem.SetSigma(sigma); err != nil {
		return err
	}
	if wc.rep != nil {
		wc.rep.Rewind()
	} else if err := wc.ch.SetSigma(sigma); err != nil {
		return err
	}
	wc.mon.Reset()
	wc.prevBits = 0
	return nil
}

// runWave executes every task once and returns the frame and bit
// errors the monitor counted for this wave.
func (wc *workerChain) runWave(rec *trace.Recorder) (uint64, uint64, error) {
	var fe uint64
	for _, t := range wc.order {
		if !t.Autoexec() {
			continue
		}
		start := time.Now()
		status, err := t.Exec()
		if err != nil {
			return 0, 0, fmt.Errorf("%s.%s: %w", t.Module().Name(), t.Name(), err)
		}
		if rec != nil {
			if err := rec.Record(t.Module().Name(), t.Name(), status, time.Since(start)); err != nil {
				return 0, 0, err
			}
		}
		if t == wc.monTask {
			fe = uint64(status)
		}
	}
	be := wc.mon.BitErrors() - wc.prevBits
	wc.prevBits = wc.mon.BitErrors()
	return fe, be, nil
}

// Run executes the sweep point by point until each met its stop
// criterion. On cancellation the completed points are returned along
// with the context error.
func (b *BFER) Run(ctx context.Context) ([]PointResult, error) {
	workers := b.p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	chains := make([]*workerChain, workers)
	for w := range chains {
		wc, err := b.newChain(b.p.Seed + int64(w)*104729)
		if err != nil {
			return nil, err
		}
		chains[w] = wc
	}

	points := b.p.EbN0Points()
	b.log.Info("starting BFER sweep",
		zap.Int("k", b.p.K),
		zap.Int("n", b.p.N),
		zap.Int("codec_k", b.kc),
		zap.Float64("rate", b.rate),
		zap.Int("workers", workers),
		zap.Int("points", len(points)))

	var results []PointResult
	for _, ebn0 := range points {
		res, err := b.runPoint(ctx, chains, ebn0)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		b.log.Info("point done",
			zap.Float64("ebn0_db", ebn0),
			zap.Float64("sigma", res.Sigma),
			zap.Uint64("frames", res.Frames),
			zap.Uint64("fe", res.FrameErrors),
			zap.Float64("ber", res.BER()),
			zap.Float64("fer", res.FER()),
			zap.Duration("elapsed", res.Elapsed))
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

func (b *BFER) runPoint(ctx context.Context, chains []*workerChain, ebn0 float64) (PointResult, error) {
	sigma := EbN0ToSigma(ebn0, b.rate)
	for _, wc := range chains {
		if err := wc.setPoint(sigma); err != nil {
			return PointResult{}, err
		}
	}

	var frames, bitErrs, frameErrs atomic.Uint64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, wc := range chains {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if b.p.MaxFrames > 0 && frames.Load() >= b.p.MaxFrames {
					return nil
				}
				if b.p.MaxFrameErrors > 0 && frameErrs.Load() >= b.p.MaxFrameErrors {
					return nil
				}
				fe, be, err := wc.runWave(b.rec)
				if err != nil {
					return err
				}
				frames.Add(uint64(b.p.NFrames))
				bitErrs.Add(be)
				frameErrs.Add(fe)
			}
		})
	}
	if err := g.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return PointResult{}, err
	}

	return PointResult{
		EbN0:        ebn0,
		Sigma:       sigma,
		K:           b.p.K,
		Frames:      frames.Load(),
		BitErrors:   bitErrs.Load(),
		FrameErrors: frameErrs.Load(),
		Elapsed:     time.Since(start),
	}, nil
}
