// Package chain provides the classical transmission-chain stages built on
// the pipeline substrate: bit sources, CRC, BPSK modulation, AWGN and
// erasure channels, quantization, interleaving and error monitoring.
// Every stage is a module with bound tasks, so chains can be driven task
// by task or through the simulation runners.
package chain

import (
	"math/rand"

	"github.com/polarsim/wavekit/pipeline"
)

// Source produces information bit frames. With a seed it draws uniform
// bits from its own generator, without one it emits the all-zero frame
// used for codeword-independent measurements.
type Source struct {
	pipeline.Module
	k   int
	rng *rand.Rand

	tGenerate *pipeline.Task
	sU        *pipeline.Socket
}

// NewSourceRandom builds a uniform random bit source.
func NewSourceRandom(k, nFrames int, seed int64) (*Source, error) {
	return newSource(k, nFrames, rand.New(rand.NewSource(seed)))
}

// NewSourceZero builds an all-zero source.
func NewSourceZero(k, nFrames int) (*Source, error) {
	return newSource(k, nFrames, nil)
}

func newSource(k, nFrames int, rng *rand.Rand) (*Source, error) {
	s := &Source{k: k, rng: rng}
	if err := s.InitModule("Source", nFrames); err != nil {
		return nil, err
	}
	t, err := s.NewTask("generate")
	if err != nil {
		return nil, err
	}
	sU, err := t.NewSocketOut("U_K", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		s.Generate(pipeline.View[int8](sU))
		return 0
	})
	s.tGenerate = t
	s.sU = sU
	return s, nil
}

// K returns the number of bits per frame.
func (s *Source) K() int { return s.k }

// Out returns the U_K output socket.
func (s *Source) Out() *pipeline.Socket { return s.sU }

// Generate fills u with source bits.
func (s *Source) Generate(u []int8) {
	if s.rng == nil {
		for i := range u {
			u[i] = 0
		}
		return
	}
	for i := range u {
		u[i] = int8(s.rng.Intn(2))
	}
}
