package chain

import (
	"fmt"
	"math"

	"github.com/polarsim/wavekit/pipeline"
)

// Quantizer models fixed-point LLR representations. The "process" task
// rounds each value to a grid of 2^-frac steps and saturates it to the
// symmetric range of a bits-wide signed word; the result stays in float32
// so the rest of the chain is unaffected. A quantizer built without a
// grid passes values through unchanged.
type Quantizer struct {
	pipeline.Module
	n        int
	bits     int
	frac     int
	identity bool
	factor   float64
	saturate float64
}

// NewQuantizerIdentity builds a pass-through quantizer.
func NewQuantizerIdentity(n, nFrames int) (*Quantizer, error) {
	q := &Quantizer{n: n, identity: true}
	return q, q.initTask(nFrames)
}

// NewQuantizer builds a pow2 quantizer with the given total word width
// and fractional bits.
func NewQuantizer(n, bits, frac, nFrames int) (*Quantizer, error) {
	if bits < 2 || bits > 32 {
		return nil, fmt.Errorf("%w: quantizer word width has to be in [2,32], got %d",
			pipeline.ErrConfig, bits)
	}
	if frac < 0 || frac >= bits {
		return nil, fmt.Errorf("%w: quantizer needs 0 <= frac < bits, got frac=%d bits=%d",
			pipeline.ErrConfig, frac, bits)
	}
	q := &Quantizer{
		n:        n,
		bits:     bits,
		frac:     frac,
		factor:   math.Pow(2, float64(frac)),
		saturate: math.Pow(2, float64(bits-1)) - 1,
	}
	return q, q.initTask(nFrames)
}

func (q *Quantizer) initTask(nFrames int) error {
	if err := q.InitModule("Quantizer", nFrames); err != nil {
		return err
	}
	t, err := q.NewTask("process")
	if err != nil {
		return err
	}
	sY1, err := t.NewSocketIn("Y_N1", pipeline.Float32, q.n)
	if err != nil {
		return err
	}
	sY2, err := t.NewSocketOut("Y_N2", pipeline.Float32, q.n)
	if err != nil {
		return err
	}
	t.BindCodelet(func() int {
		q.Process(pipeline.View[float32](sY1), pipeline.View[float32](sY2))
		return 0
	})
	return nil
}

// N returns the number of values per frame.
func (q *Quantizer) N() int { return q.n }

// Process quantizes x into y.
func (q *Quantizer) Process(x, y []float32) {
	if q.identity {
		copy(y, x)
		return
	}
	for i, v := range x {
		level := math.Round(float64(v) * q.factor)
		if level > q.saturate {
			level = q.saturate
		} else if level < -q.saturate {
			level = -q.saturate
		}
		y[i] = float32(level / q.factor)
	}
}
