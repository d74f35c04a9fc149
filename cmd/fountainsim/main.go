// fountainsim sweeps RaptorQ generations over a list of symbol erasure
// probabilities and reports the rebuild rate plus encode and decode
// timings per point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/polarsim/wavekit/sim"
	"github.com/polarsim/wavekit/trace"
)

func main() {
	def := sim.DefaultFountainParams()
	var (
		dataSize  = flag.Int("data", def.DataSize, "payload bytes per block")
		symbolLen = flag.Int("L", def.SymbolLen, "bytes per symbol")
		nSymbols  = flag.Int("N", def.NSymbols, "symbols sent per block, source plus repair")
		pList     = flag.String("p", "0,0.001,0.005,0.01,0.05,0.10,0.15", "comma-separated erasure probabilities")
		trials    = flag.Int("trials", def.Trials, "blocks per point")
		frames    = flag.Int("frames", def.NFrames, "blocks per wave")
		seed      = flag.Int64("seed", def.Seed, "PRNG seed for payloads and loss patterns")
		csvPath   = flag.String("csv", "", "optional CSV output path")
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

	p := sim.FountainParams{
		DataSize:  *dataSize,
		SymbolLen: *symbolLen,
		NSymbols:  *nSymbols,
		PList:     parsePList(*pList),
		Trials:    *trials,
		NFrames:   *frames,
		Workers:   env.Workers,
		Seed:      *seed,
	}
	f, err := sim.NewFountain(p, log)
	if err != nil {
		log.Fatal("invalid sweep", zap.Error(err))
	}
	if env.TracePath != "" {
		rec, err := trace.NewFileRecorder(env.TracePath)
		if err != nil {
			log.Fatal("cannot open trace", zap.Error(err))
		}
		defer func() { _ = rec.Close() }()
		f.SetRecorder(rec)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := f.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("sweep failed", zap.Error(err))
	}

	for _, r := range results {
		fmt.Printf("p=%.4f trials=%d ok=%.4f enc(avg)=%v dec(avg)=%v\n",
			r.P, r.Trials, r.OKRate(), r.AvgEncode(), r.AvgDecode())
	}
	if *csvPath != "" {
		out, err := os.Create(*csvPath)
		if err != nil {
			log.Fatal("create output", zap.String("path", *csvPath), zap.Error(err))
		}
		if err := sim.WriteFountainCSV(out, results); err != nil {
			_ = out.Close()
			log.Fatal("write output", zap.String("path", *csvPath), zap.Error(err))
		}
		if err := out.Close(); err != nil {
			log.Fatal("close output", zap.String("path", *csvPath), zap.Error(err))
		}
		log.Info("wrote results", zap.String("path", *csvPath))
	}
}

func parsePList(s string) []float64 {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		var v float64
		if _, err := fmt.Sscanf(p, "%f", &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
