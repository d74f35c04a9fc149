package sim

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polarsim/wavekit/chain"
	"github.com/polarsim/wavekit/fountain"
	"github.com/polarsim/wavekit/pipeline"
	"github.com/polarsim/wavekit/trace"
)

// FountainParams configures an erasure sweep of the RaptorQ stages.
// Each trial encodes one block, drops every symbol independently with
// probability p and tries to rebuild the payload from the survivors.
type FountainParams struct {
	// DataSize is the payload bytes per block.
	DataSize int
	// SymbolLen is the bytes per transmitted symbol.
	SymbolLen int
	// NSymbols is the symbols sent per block, source plus repair.
	NSymbols int

	// PList holds the erasure probabilities to sweep.
	PList []float64
	// Trials is the number of blocks decoded per point.
	Trials int
	// NFrames is the blocks each worker pushes through per wave.
	NFrames int

	// Workers sets the parallel chains; 0 picks GOMAXPROCS.
	Workers int
	// Seed derives every per-worker generator.
	Seed int64
}

// DefaultFountainParams mirrors a 1500-byte-symbol link with six
// repair symbols per generation.
func DefaultFountainParams() FountainParams {
	return FountainParams{
		DataSize:  26 * 1500,
		SymbolLen: 1500,
		NSymbols:  32,
		PList:     []float64{0, 0.001, 0.005, 0.01, 0.05, 0.10, 0.15},
		Trials:    1000,
		NFrames:   4,
		Seed:      1337,
	}
}

// Validate checks the sweep configuration. The block geometry itself
// is validated by the fountain stages.
func (p FountainParams) Validate() error {
	if len(p.PList) == 0 {
		return fmt.Errorf("%w: no erasure probabilities to sweep", pipeline.ErrConfig)
	}
	for _, v := range p.PList {
		if v < 0 || v >= 1 {
			return fmt.Errorf("%w: erasure probability has to be in [0,1), got %v",
				pipeline.ErrConfig, v)
		}
	}
	if p.Trials <= 0 {
		return fmt.Errorf("%w: trials has to be positive, got %d", pipeline.ErrConfig, p.Trials)
	}
	if p.NFrames <= 0 {
		return fmt.Errorf("%w: wave size has to be positive, got %d", pipeline.ErrConfig, p.NFrames)
	}
	return nil
}

// FountainResult aggregates one erasure probability of a sweep.
type FountainResult struct {
	P        float64
	Trials   uint64
	OK       uint64
	EncTotal time.Duration
	DecTotal time.Duration
}

// OKRate returns the fraction of blocks rebuilt at this point.
func (r FountainResult) OKRate() float64 {
	if r.Trials == 0 {
		return 0
	}
	return float64(r.OK) / float64(r.Trials)
}

// AvgEncode returns the mean symbol build time per block.
func (r FountainResult) AvgEncode() time.Duration {
	if r.Trials == 0 {
		return 0
	}
	return r.EncTotal / time.Duration(r.Trials)
}

// AvgDecode returns the mean rebuild time per block.
func (r FountainResult) AvgDecode() time.Duration {
	if r.Trials == 0 {
		return 0
	}
	return r.DecTotal / time.Duration(r.Trials)
}

// Fountain sweeps the RaptorQ encode and rebuild stages over a list of
// erasure probabilities.
type Fountain struct {
	p   FountainParams
	log *zap.Logger
	rec *trace.Recorder
}

// NewFountain validates the sweep configuration.
func NewFountain(p FountainParams, log *zap.Logger) (*Fountain, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fountain{p: p, log: log}, nil
}

// SetRecorder attaches a runner-side execution trace.
func (f *Fountain) SetRecorder(r *trace.Recorder) { f.rec = r }

// fountainChain owns one encoder, erasure channel and decoder triple,
// wired socket to socket.
type fountainChain struct {
	encTask   *pipeline.Task
	eraseTask *pipeline.Task
	decTask   *pipeline.Task
	ch        *chain.ChannelErasure
}

func (f *Fountain) newChain(seed int64) (*fountainChain, error) {
	p := f.p
	enc, err := fountain.NewEncoder(p.DataSize, p.SymbolLen, p.NSymbols, p.NFrames)
	if err != nil {
		return nil, err
	}
	ch, err := chain.NewChannelErasure(p.NSymbols, p.SymbolLen, p.NFrames, 0, uint64(seed)+1)
	if err != nil {
		return nil, err
	}
	dec, err := fountain.NewDecoder(p.DataSize, p.SymbolLen, p.NSymbols, p.NFrames)
	if err != nil {
		return nil, err
	}
	encTask, err := enc.Task("build_symbols")
	if err != nil {
		return nil, err
	}
	eraseTask, err := ch.Task("erase")
	if err != nil {
		return nil, err
	}
	decTask, err := dec.Task("rebuild")
	if err != nil {
		return nil, err
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

	// Fixed random payloads; only the loss patterns vary per trial.
	rng := rand.New(rand.NewSource(seed))
	payload := make([]int8, p.NFrames*p.DataSize)
	for i := range payload {
		payload[i] = int8(rng.Intn(256))
	}
	if sB := out(encTask, "B_K"); err == nil {
		err = pipeline.BindSlice(sB, payload)
	}
	bind(eraseTask, "X_N", out(encTask, "S_N"))
	bind(decTask, "S_N", out(eraseTask, "Y_N"))
	bind(decTask, "E_N", out(eraseTask, "E_N"))
	if err != nil {
		return nil, err
	}
	return &fountainChain{
		encTask:   encTask,
		eraseTask: eraseTask,
		decTask:   decTask,
		ch:        ch,
	}, nil
}

// runWave pushes one wave of blocks through the triple and returns how
// many were rebuilt.
func (fc *fountainChain) runWave(rec *trace.Recorder) (ok uint64, encD, decD time.Duration, err error) {
	t0 := time.Now()
	status, err := fc.encTask.Exec()
	encD = time.Since(t0)
	if err != nil {
		return 0, 0, 0, err
	}
	if status < 0 {
		return 0, 0, 0, fmt.Errorf("symbol build failed")
	}
	if rec != nil {
		if err := rec.Record(fc.encTask.Module().Name(), fc.encTask.Name(), status, encD); err != nil {
			return 0, 0, 0, err
		}
	}

	t1 := time.Now()
	status, err = fc.eraseTask.Exec()
	eraseD := time.Since(t1)
	if err != nil {
		return 0, 0, 0, err
	}
	if rec != nil {
		if err := rec.Record(fc.eraseTask.Module().Name(), fc.eraseTask.Name(), status, eraseD); err != nil {
			return 0, 0, 0, err
		}
	}

	t2 := time.Now()
	status, err = fc.decTask.Exec()
	decD = time.Since(t2)
	if err != nil {
		return 0, 0, 0, err
	}
	if rec != nil {
		if err := rec.Record(fc.decTask.Module().Name(), fc.decTask.Name(), status, decD); err != nil {
			return 0, 0, 0, err
		}
	}
	return uint64(status), encD, decD, nil
}

// Run sweeps every erasure probability in order. On cancellation the
// completed points are returned along with the context error.
func (f *Fountain) Run(ctx context.Context) ([]FountainResult, error) {
	workers := f.p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chains := make([]*fountainChain, workers)
	for w := range chains {
		fc, err := f.newChain(f.p.Seed + int64(w)*104729)
		if err != nil {
			return nil, err
		}
		chains[w] = fc
	}

	f.log.Info("starting fountain sweep",
		zap.Int("data_size", f.p.DataSize),
		zap.Int("symbol_len", f.p.SymbolLen),
		zap.Int("n_symbols", f.p.NSymbols),
		zap.Int("trials", f.p.Trials),
		zap.Int("workers", workers))

	var results []FountainResult
	for _, p := range f.p.PList {
		res, err := f.runPoint(ctx, chains, p)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		f.log.Info("point done",
			zap.Float64("p", p),
			zap.Uint64("trials", res.Trials),
			zap.Float64("ok_rate", res.OKRate()),
			zap.Duration("avg_encode", res.AvgEncode()),
			zap.Duration("avg_decode", res.AvgDecode()))
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}

func (f *Fountain) runPoint(ctx context.Context, chains []*fountainChain, p float64) (FountainResult, error) {
	var trials, ok atomic.Uint64
	var encNs, decNs atomic.Int64

	for _, fc := range chains {
		if err := fc.ch.SetP(p); err != nil {
			return FountainResult{}, err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, fc := range chains {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if trials.Load() >= uint64(f.p.Trials) {
					return nil
				}
				n, encD, decD, err := fc.runWave(f.rec)
				if err != nil {
					return err
				}
				trials.Add(uint64(f.p.NFrames))
				ok.Add(n)
				encNs.Add(encD.Nanoseconds())
				decNs.Add(decD.Nanoseconds())
			}
		})
	}
	if err := g.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return FountainResult{}, err
	}

	return FountainResult{
		P:        p,
		Trials:   trials.Load(),
		OK:       ok.Load(),
		EncTotal: time.Duration(encNs.Load()),
		DecTotal: time.Duration(decNs.Load()),
	}, nil
}

// WriteFountainCSV emits the sweep with a header row, one record per
// erasure probability.
func WriteFountainCSV(w io.Writer, results []FountainResult) error {
	cw := csv.NewWriter(w)
	header := []string{
		"p", "trials", "ok", "ok_rate",
		"sum_encode_ms", "avg_encode_ms", "sum_decode_ms", "avg_decode_ms",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			fmt.Sprintf("%.6f", r.P),
			fmt.Sprintf("%d", r.Trials),
			fmt.Sprintf("%d", r.OK),
			fmt.Sprintf("%.6f", r.OKRate()),
			fmt.Sprintf("%.3f", float64(r.EncTotal.Microseconds())/1000.0),
			fmt.Sprintf("%.6f", float64(r.AvgEncode().Microseconds())/1000.0),
			fmt.Sprintf("%.3f", float64(r.DecTotal.Microseconds())/1000.0),
			fmt.Sprintf("%.6f", float64(r.AvgDecode().Microseconds())/1000.0),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
