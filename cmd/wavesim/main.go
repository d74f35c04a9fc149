// wavesim sweeps a polar-coded BPSK transmission chain over a range of
// Eb/N0 points and reports the measured BER and FER per point.
//
// Process-level knobs (workers, logging, trace, metrics) come from the
// WAVEKIT_* environment; the sweep itself is configured with flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/polarsim/wavekit/metrics"
	"github.com/polarsim/wavekit/pipeline"
	"github.com/polarsim/wavekit/sim"
	"github.com/polarsim/wavekit/trace"
)

func main() {
	def := sim.DefaultParams()
	var (
		k        = flag.Int("K", def.K, "info bits per frame")
		n        = flag.Int("N", def.N, "codeword size, a power of two")
		crcPoly  = flag.String("crc", "", "CRC appended to the payload (32-GZIP, 24-LTEA, 16-CCITT, 16-IBM, 8-DVB-S2, 4-ITU); empty disables")
		itl      = flag.Bool("itl", false, "wrap the channel in a seeded random interleaver")
		qBits    = flag.Int("qbits", 0, "LLR quantizer bits, 0 keeps floats")
		qFrac    = flag.Int("qfrac", 0, "LLR quantizer fractional bits")
		eps      = flag.Float64("eps", def.Eps, "design erasure rate of the code construction")
		chnFile  = flag.String("chn", "", "replay recorded channel noise from this file instead of drawing AWGN")
		ebMin    = flag.Float64("min", def.EbN0Min, "first Eb/N0 point in dB")
		ebMax    = flag.Float64("max", def.EbN0Max, "last Eb/N0 point in dB")
		ebStep   = flag.Float64("step", def.EbN0Step, "Eb/N0 step in dB")
		frames   = flag.Int("frames", def.NFrames, "frames per wave")
		maxFE    = flag.Uint64("fe", def.MaxFrameErrors, "frame errors to collect per point, 0 disables")
		maxFra   = flag.Uint64("max-frames", def.MaxFrames, "frame cap per point, 0 disables")
		seed     = flag.Int64("seed", def.Seed, "base PRNG seed")
		debug    = flag.Bool("debug", false, "dump task sockets on every execution")
		csvPath  = flag.String("csv", "", "optional CSV output path")
		jsonPath = flag.String("json", "", "optional JSON-lines output path")
	)
	flag.Parse()

	env, err := sim.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := env.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	p := sim.Params{
		K:              *k,
		N:              *n,
		CRCPoly:        *crcPoly,
		Interleave:     *itl,
		QuantBits:      *qBits,
		QuantFrac:      *qFrac,
		Eps:            *eps,
		NoiseFile:      *chnFile,
		EbN0Min:        *ebMin,
		EbN0Max:        *ebMax,
		EbN0Step:       *ebStep,
		NFrames:        *frames,
		MaxFrameErrors: *maxFE,
		MaxFrames:      *maxFra,
		Workers:        env.Workers,
		Seed:           *seed,
	}
	b, err := sim.NewBFER(p, log)
	if err != nil {
		log.Fatal("invalid sweep", zap.Error(err))
	}

	if env.TracePath != "" {
		rec, err := trace.NewFileRecorder(env.TracePath)
		if err != nil {
			log.Fatal("cannot open trace", zap.Error(err))
		}
		defer func() { _ = rec.Close() }()
		b.SetRecorder(rec)
		log.Info("recording task trace", zap.String("path", env.TracePath))
	}

	col := metrics.NewCollector()
	b.OnChain(func(mods ...*pipeline.Module) {
		col.Register(mods...)
		if *debug {
			for _, m := range mods {
				for _, t := range m.Tasks() {
					t.SetDebug(true)
					t.SetDebugLimit(8)
				}
			}
		}
	})
	if env.MetricsAddr != "" {
		prometheus.MustRegister(col)
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("serving metrics", zap.String("addr", env.MetricsAddr))
			if err := http.ListenAndServe(env.MetricsAddr, nil); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := b.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("sweep failed", zap.Error(err))
	}
	if err != nil {
		log.Warn("sweep interrupted, reporting completed points")
	}

	if err := sim.WriteTable(os.Stdout, results); err != nil {
		log.Fatal("report", zap.Error(err))
	}
	if *csvPath != "" {
		writeFile(log, *csvPath, results, sim.WriteCSV)
	}
	if *jsonPath != "" {
		writeFile(log, *jsonPath, results, sim.WriteJSON)
	}
}

func writeFile(log *zap.Logger, path string, results []sim.PointResult,
	write func(io.Writer, []sim.PointResult) error) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatal("create output", zap.String("path", path), zap.Error(err))
	}
	if err := write(f, results); err != nil {
		_ = f.Close()
		log.Fatal("write output", zap.String("path", path), zap.Error(err))
	}
	if err := f.Close(); err != nil {
		log.Fatal("close output", zap.String("path", path), zap.Error(err))
	}
	log.Info("wrote results", zap.String("path", path))
}
