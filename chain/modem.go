package chain

import (
	"fmt"

	"github.com/polarsim/wavekit/pipeline"
)

// ModemBPSK maps bits to antipodal symbols and computes channel LLRs from
// noisy symbols. The "modulate" task sends bit b to symbol 1-2b; the
// "demodulate" task scales received symbols by 2/sigma^2, the exact LLR
// of BPSK over AWGN.
type ModemBPSK struct {
	pipeline.Module
	n     int
	sigma float32
}

// NewModemBPSK builds a BPSK modem for n symbols per frame. The noise
// level defaults to sigma=1 until SetSigma is called.
func NewModemBPSK(n, nFrames int) (*ModemBPSK, error) {
	m := &ModemBPSK{n: n, sigma: 1}
	if err := m.InitModule("Modem_BPSK", nFrames); err != nil {
		return nil, err
	}

	tm, err := m.NewTask("modulate")
	if err != nil {
		return nil, err
	}
	sX1, err := tm.NewSocketIn("X_N1", pipeline.Int8, n)
	if err != nil {
		return nil, err
	}
	sX2, err := tm.NewSocketOut("X_N2", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	tm.BindCodelet(func() int {
		x1 := pipeline.View[int8](sX1)
		x2 := pipeline.View[float32](sX2)
		for i, b := range x1 {
			x2[i] = 1 - 2*float32(b&1)
		}
		return 0
	})

	td, err := m.NewTask("demodulate")
	if err != nil {
		return nil, err
	}
	sY1, err := td.NewSocketIn("Y_N1", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	sY2, err := td.NewSocketOut("Y_N2", pipeline.Float32, n)
	if err != nil {
		return nil, err
	}
	td.BindCodelet(func() int {
		y1 := pipeline.View[float32](sY1)
		y2 := pipeline.View[float32](sY2)
		scale := 2 / (m.sigma * m.sigma)
		for i, y := range y1 {
			y2[i] = scale * y
		}
		return 0
	})
	return m, nil
}

// N returns the number of symbols per frame.
func (m *ModemBPSK) N() int { return m.n }

// Sigma returns the configured noise standard deviation.
func (m *ModemBPSK) Sigma() float64 { return float64(m.sigma) }

// SetSigma updates the noise standard deviation used for demodulation.
func (m *ModemBPSK) SetSigma(sigma float64) error {
	if sigma <= 0 {
		return fmt.Errorf("%w: modem %q needs a positive sigma, got %v",
			pipeline.ErrConfig, m.Name(), sigma)
	}
	m.sigma = float32(sigma)
	return nil
}
