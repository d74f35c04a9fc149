package chain

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/polarsim/wavekit/pipeline"
)

// ChannelAWGN adds white Gaussian noise of a configurable standard
// deviation to each symbol. The "add_noise" task maps X_N to Y_N; the
// noise generator is private to the channel so parallel chains with their
// own channels stay reproducible under a fixed seed.
type ChannelAWGN struct {
	pipeline.Module
	n     int
	sigma float64
	noise distuv.Normal
}

// NewChannelAWGN builds an AWGN channel for n symbols per frame, seeded
// deterministically. The noise level defaults to sigma=1 until SetSigma
// is called.
func NewChannelAWGN(n, nFrames int, seed uint64) (*ChannelAWGN, error) {
	c := &ChannelAWGN{
		n:     n,
		sigma: 1,
		noise: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed+1)},
	}
	if err := c.InitModule("Channel_AWGN", nFrames); err != nil {
		return nil, err
	}
	t, err := c.NewTask("add_noise")
	if err != nil {
		return nil, err
	}
	sX, err := t.NewSocketIn("X_N", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	sY, err := t.NewSocketOut("Y_N", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		x := pipeline.View[float32](sX)
		y := pipeline.View[float32](sY)
		c.AddNoise(x, y)
		return 0
	})
	return c, nil
}

// N returns the number of symbols per frame.
func (c *ChannelAWGN) N() int { return c.n }

// Sigma returns the configured noise standard deviation.
func (c *ChannelAWGN) Sigma() float64 { return c.sigma }

// SetSigma updates the noise standard deviation.
func (c *ChannelAWGN) SetSigma(sigma float64) error {
	if sigma <= 0 {
		return fmt.Errorf("%w: channel %q needs a positive sigma, got %v",
			pipeline.ErrConfig, c.Name(), sigma)
	}
	c.sigma = sigma
	return nil
}

// AddNoise writes y = x + sigma*g with g drawn from the channel's
// standard normal generator.
func (c *ChannelAWGN) AddNoise(x, y []float32) {
	s := c.sigma
	for i, v := range x {
		y[i] = v + float32(s*c.noise.Rand())
	}
}

// ChannelReplay adds recorded noise samples instead of drawing them from
// a generator, so a run can be repeated against the exact noise of an
// earlier experiment or of an external tool. The "add_noise" task maps
// X_N to Y_N like the AWGN channel; successive calls consume successive
// samples and the sequence wraps around when exhausted.
type ChannelReplay struct {
	pipeline.Module
	n       int
	samples []float32
	pos     int
}

// NewChannelReplay builds a replay channel over an in-memory sample
// sequence.
func NewChannelReplay(n, nFrames int, samples []float32) (*ChannelReplay, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: replay channel needs at least one noise sample",
			pipeline.ErrConfig)
	}
	c := &ChannelReplay{
		n:       n,
		samples: append([]float32(nil), samples...),
	}
	if err := c.InitModule("Channel_user", nFrames); err != nil {
		return nil, err
	}
	t, err := c.NewTask("add_noise")
	if err != nil {
		return nil, err
	}
	sX, err := t.NewSocketIn("X_N", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	sY, err := t.NewSocketOut("Y_N", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		x := pipeline.View[float32](sX)
		y := pipeline.View[float32](sY)
		c.AddNoise(x, y)
		return 0
	})
	return c, nil
}

// NewChannelReplayFromFile loads a noise recording with LoadNoise and
// replays it.
func NewChannelReplayFromFile(n, nFrames int, path string) (*ChannelReplay, error) {
	samples, err := LoadNoise(path)
	if err != nil {
		return nil, err
	}
	return NewChannelReplay(n, nFrames, samples)
}

// N returns the number of symbols per frame.
func (c *ChannelReplay) N() int { return c.n }

// Samples returns the number of recorded noise samples.
func (c *ChannelReplay) Samples() int { return len(c.samples) }

// Rewind restarts the replay at the first sample.
func (c *ChannelReplay) Rewind() { c.pos = 0 }

// AddNoise writes y = x + r for consecutive recorded samples r, wrapping
// at the end of the recording.
func (c *ChannelReplay) AddNoise(x, y []float32) {
	for i, v := range x {
		y[i] = v + c.samples[c.pos]
		c.pos++
		if c.pos == len(c.samples) {
			c.pos = 0
		}
	}
}

// LoadNoise reads a noise recording: one value per line, blank lines and
// lines starting with '#' skipped.
func LoadNoise(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []float32
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		samples = append(samples, float32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: noise recording %s holds no samples", pipeline.ErrConfig, path)
	}
	return samples, nil
}

// ChannelErasure drops whole symbols independently with a configurable
// probability, the block-erasure counterpart of the AWGN channel used on
// the fountain path. The "erase" task copies the symbol stream X_N to
// Y_N, zeroes every lost symbol and reports the loss pattern on the
// per-symbol mask socket E_N (1 marks an erased symbol).
type ChannelErasure struct {
	pipeline.Module
	nSyms  int
	symLen int
	bern   distuv.Bernoulli
}

// NewChannelErasure builds an erasure channel for nSyms symbols of symLen
// bytes per frame with per-symbol loss probability p.
func NewChannelErasure(nSyms, symLen, nFrames int, p float64, seed uint64) (*ChannelErasure, error) {
	if nSyms <= 0 || symLen <= 0 {
		return nil, fmt.Errorf("%w: erasure channel needs a positive symbol geometry, got %dx%d",
			pipeline.ErrConfig, nSyms, symLen)
	}
	if err := checkErasureP(p); err != nil {
		return nil, err
	}
	c := &ChannelErasure{
		nSyms:  nSyms,
		symLen: symLen,
		bern:   distuv.Bernoulli{P: p, Src: rand.NewPCG(seed, seed+1)},
	}
	if err := c.InitModule("Channel_erasure", nFrames); err != nil {
		return nil, err
	}
	t, err := c.NewTask("erase")
	if err != nil {
		return nil, err
	}
	sX, err := t.NewSocketIn("X_N", pipeline.Int8, nSyms*symLen)
	if err != nil {
		return nil, err
	}
	sY, err := t.NewSocketOut("Y_N", pipeline.Int8, nSyms*symLen)
	if err != nil {
		return nil, err
	}
	sE, err := t.NewSocketOut("E_N", pipeline.Int8, nSyms)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		x := pipeline.View[int8](sX)
		y := pipeline.View[int8](sY)
		e := pipeline.View[int8](sE)
		c.Erase(x, y, e)
		return 0
	})
	return c, nil
}

func checkErasureP(p float64) error {
	if p < 0 || p >= 1 {
		return fmt.Errorf("%w: erasure probability has to be in [0,1), got %v",
			pipeline.ErrConfig, p)
	}
	return nil
}

// NSymbols returns the symbols per frame.
func (c *ChannelErasure) NSymbols() int { return c.nSyms }

// SymbolLen returns the bytes per symbol.
func (c *ChannelErasure) SymbolLen() int { return c.symLen }

// P returns the erasure probability.
func (c *ChannelErasure) P() float64 { return c.bern.P }

// SetP updates the erasure probability.
func (c *ChannelErasure) SetP(p float64) error {
	if err := checkErasureP(p); err != nil {
		return err
	}
	c.bern.P = p
	return nil
}

// Erase copies x to y symbol by symbol, zeroing lost symbols, and marks
// each loss in e; e needs one element per symbol.
func (c *ChannelErasure) Erase(x, y, e []int8) {
	for s := range e {
		base := s * c.symLen
		if c.bern.Rand() != 0 {
			for j := 0; j < c.symLen; j++ {
				y[base+j] = 0
			}
			e[s] = 1
		} else {
			copy(y[base:base+c.symLen], x[base:base+c.symLen])
			e[s] = 0
		}
	}
}
