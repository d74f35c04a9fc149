package chain

import (
	"fmt"

	"github.com/polarsim/wavekit/pipeline"
)

// Monitor compares source bits with decoded bits and accumulates bit and
// frame error counts. The "check_errors" task processes one wave and
// returns the number of erroneous frames it saw; the frame-error limit
// gives simulations their stop criterion.
type Monitor struct {
	pipeline.Module
	k       int
	feLimit uint64

	bitErrors   uint64
	frameErrors uint64
	frames      uint64
}

// NewMonitor builds a monitor for k bits per frame stopping analysis once
// feLimit frame errors were seen; feLimit 0 means no limit.
func NewMonitor(k int, feLimit uint64, nFrames int) (*Monitor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: monitor needs a positive K, got %d", pipeline.ErrConfig, k)
	}
	m := &Monitor{k: k, feLimit: feLimit}
	if err := m.InitModule("Monitor", nFrames); err != nil {
		return nil, err
	}
	t, err := m.NewTask("check_errors")
	if err != nil {
		return nil, err
	}
	sU, err := t.NewSocketIn("U", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	sV, err := t.NewSocketIn("V", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		u := pipeline.View[int8](sU)
		v := pipeline.View[int8](sV)
		bad := 0
		for f := 0; f < m.NFrames(); f++ {
			if m.CheckFrame(u[f*k:(f+1)*k], v[f*k:(f+1)*k]) > 0 {
				bad++
			}
		}
		return bad
	})
	return m, nil
}

// K returns the number of compared bits per frame.
func (m *Monitor) K() int { return m.k }

// CheckFrame counts the bit errors of one frame and folds them into the
// running totals. It returns the frame's bit error count.
func (m *Monitor) CheckFrame(u, v []int8) int {
	errs := 0
	for i := range u {
		if u[i]&1 != v[i]&1 {
			errs++
		}
	}
	m.frames++
	m.bitErrors += uint64(errs)
	if errs > 0 {
		m.frameErrors++
	}
	return errs
}

// BitErrors returns the accumulated bit error count.
func (m *Monitor) BitErrors() uint64 { return m.bitErrors }

// FrameErrors returns the accumulated frame error count.
func (m *Monitor) FrameErrors() uint64 { return m.frameErrors }

// FramesAnalyzed returns the number of frames compared so far.
func (m *Monitor) FramesAnalyzed() uint64 { return m.frames }

// BER returns the bit error rate over everything analyzed so far.
func (m *Monitor) BER() float64 {
	if m.frames == 0 {
		return 0
	}
	return float64(m.bitErrors) / float64(m.frames*uint64(m.k))
}

// FER returns the frame error rate over everything analyzed so far.
func (m *Monitor) FER() float64 {
	if m.frames == 0 {
		return 0
	}
	return float64(m.frameErrors) / float64(m.frames)
}

// FeLimitAchieved reports whether the configured frame-error budget has
// been spent.
func (m *Monitor) FeLimitAchieved() bool {
	return m.feLimit > 0 && m.frameErrors >= m.feLimit
}

// FeLimit returns the configured frame-error budget.
func (m *Monitor) FeLimit() uint64 { return m.feLimit }

// Reset clears the accumulated counters.
func (m *Monitor) Reset() {
	m.bitErrors, m.frameErrors, m.frames = 0, 0, 0
}
