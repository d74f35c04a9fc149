package sim

import (
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/polarsim/wavekit/pipeline"
)

// Params configures one BFER sweep of the polar-coded BPSK chain.
type Params struct {
	// K is the number of information bits per frame, before any CRC.
	K int
	// N is the codeword size; the polar construction needs a power of two.
	N int
	// CRCPoly names the appended CRC generator; empty disables the CRC.
	CRCPoly string
	// Interleave inserts a seeded random interleaver around the channel.
	Interleave bool
	// QuantBits/QuantFrac configure the LLR quantizer; QuantBits 0
	// disables quantization.
	QuantBits int
	QuantFrac int
	// Eps is the design erasure rate of the BEC code construction.
	Eps float64
	// NoiseFile replays a recorded noise trace through the channel
	// instead of drawing AWGN; empty keeps the random channel.
	NoiseFile string

	// EbN0Min/Max/Step span the sweep in dB.
	EbN0Min  float64
	EbN0Max  float64
	EbN0Step float64

	// NFrames is the wave size each worker decodes at once.
	NFrames int
	// MaxFrameErrors stops a point once this many frame errors were seen;
	// 0 disables the criterion.
	MaxFrameErrors uint64
	// MaxFrames caps the frames simulated per point; 0 means no cap, in
	// which case MaxFrameErrors must be set.
	MaxFrames uint64

	// Workers sets the parallel chains; 0 picks GOMAXPROCS.
	Workers int
	// Seed derives every per-worker generator.
	Seed int64
}

// DefaultParams returns a small but representative sweep.
func DefaultParams() Params {
	return Params{
		K:              32,
		N:              64,
		Eps:            0.5,
		EbN0Min:        0,
		EbN0Max:        4,
		EbN0Step:       1,
		NFrames:        16,
		MaxFrameErrors: 100,
		MaxFrames:      1 << 20,
		Seed:           42,
	}
}

// Validate checks the sweep configuration.
func (p Params) Validate() error {
	if p.K <= 0 || p.N <= 0 || p.K > p.N {
		return fmt.Errorf("%w: need 0 < K <= N, got K=%d N=%d", pipeline.ErrConfig, p.K, p.N)
	}
	if bits.OnesCount(uint(p.N)) != 1 {
		return fmt.Errorf("%w: the BEC construction needs a power-of-two N, got %d",
			pipeline.ErrConfig, p.N)
	}
	if p.Eps <= 0 || p.Eps >= 1 {
		return fmt.Errorf("%w: design erasure rate has to be in (0,1), got %v",
			pipeline.ErrConfig, p.Eps)
	}
	if p.EbN0Step <= 0 {
		return fmt.Errorf("%w: Eb/N0 step has to be positive, got %v",
			pipeline.ErrConfig, p.EbN0Step)
	}
	if p.EbN0Max < p.EbN0Min {
		return fmt.Errorf("%w: empty Eb/N0 range [%v, %v]",
			pipeline.ErrConfig, p.EbN0Min, p.EbN0Max)
	}
	if p.NFrames <= 0 {
		return fmt.Errorf("%w: wave size has to be positive, got %d",
			pipeline.ErrConfig, p.NFrames)
	}
	if p.MaxFrames == 0 && p.MaxFrameErrors == 0 {
		return fmt.Errorf("%w: neither a frame cap nor a frame-error target is set",
			pipeline.ErrConfig)
	}
	if p.QuantBits != 0 {
		if p.QuantBits < 2 || p.QuantBits > 32 || p.QuantFrac < 0 || p.QuantFrac >= p.QuantBits {
			return fmt.Errorf("%w: bad quantizer geometry bits=%d frac=%d",
				pipeline.ErrConfig, p.QuantBits, p.QuantFrac)
		}
	}
	return nil
}

// CodeRate returns the rate K/N of the outer payload, ignoring the CRC
// overhead inside K.
func (p Params) CodeRate() float64 {
	return float64(p.K) / float64(p.N)
}

// EbN0Points expands the sweep range into concrete points.
func (p Params) EbN0Points() []float64 {
	var pts []float64
	for v := p.EbN0Min; v <= p.EbN0Max+1e-9; v += p.EbN0Step {
		pts = append(pts, v)
	}
	return pts
}

// EbN0ToSigma converts an information-bit SNR in dB to the AWGN noise
// standard deviation of unit-energy BPSK at code rate r.
func EbN0ToSigma(ebn0, r float64) float64 {
	esn0 := r * math.Pow(10, ebn0/10)
	return 1 / math.Sqrt(2*esn0)
}

// PointResult aggregates one Eb/N0 point of a sweep. K is the number of
// information bits compared per frame.
type PointResult struct {
	EbN0        float64
	Sigma       float64
	K           int
	Frames      uint64
	BitErrors   uint64
	FrameErrors uint64
	Elapsed     time.Duration
}

// BER returns the measured bit error rate of the point.
func (r PointResult) BER() float64 {
	if r.Frames == 0 || r.K == 0 {
		return 0
	}
	return float64(r.BitErrors) / float64(r.Frames*uint64(r.K))
}

// FER returns the measured frame error rate of the point.
func (r PointResult) FER() float64 {
	if r.Frames == 0 {
		return 0
	}
	return float64(r.FrameErrors) / float64(r.Frames)
}

// EsN0 returns the symbol SNR in dB, recovered from the noise level.
func (r PointResult) EsN0() float64 {
	if r.Sigma <= 0 {
		return 0
	}
	return 10 * math.Log10(1/(2*r.Sigma*r.Sigma))
}

// Throughput returns the simulated information bits per second.
func (r PointResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames) * float64(r.K) / r.Elapsed.Seconds()
}
