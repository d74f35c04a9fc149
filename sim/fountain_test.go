package sim

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func smallFountainParams() FountainParams {
	return FountainParams{
		DataSize:  48,
		SymbolLen: 8,
		NSymbols:  8,
		PList:     []float64{0},
		Trials:    8,
		NFrames:   4,
		Workers:   1,
		Seed:      11,
	}
}

func TestFountainParamsValidate(t *testing.T) {
	require.NoError(t, DefaultFountainParams().Validate())

	p := smallFountainParams()
	p.PList = nil
	require.Error(t, p.Validate())

	p = smallFountainParams()
	p.PList = []float64{1}
	require.Error(t, p.Validate())

	p = smallFountainParams()
	p.Trials = 0
	require.Error(t, p.Validate())

	p = smallFountainParams()
	p.NFrames = 0
	require.Error(t, p.Validate())
}

func TestFountainNoLoss(t *testing.T) {
	f, err := NewFountain(smallFountainParams(), nil)
	require.NoError(t, err)

	results, err := f.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	require.Zero(t, r.P)
	require.EqualValues(t, 8, r.Trials)
	require.EqualValues(t, 8, r.OK)
	require.InDelta(t, 1.0, r.OKRate(), 1e-12)
}

func TestFountainSweepShape(t *testing.T) {
	p := smallFountainParams()
	p.PList = []float64{0, 0.05}

	f, err := NewFountain(p, nil)
	require.NoError(t, err)
	results, err := f.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, 0.05, results[1].P)
	for _, r := range results {
		require.GreaterOrEqual(t, r.Trials, uint64(8))
		require.LessOrEqual(t, r.OK, r.Trials)
	}
	// Without losses every block has to come back.
	require.Equal(t, results[0].Trials, results[0].OK)
}

func TestFountainBadGeometry(t *testing.T) {
	p := smallFountainParams()
	// 100 bytes need seven 16-byte symbols, more than are sent.
	p.DataSize, p.SymbolLen, p.NSymbols = 100, 16, 6

	f, err := NewFountain(p, nil)
	require.NoError(t, err)
	_, err = f.Run(context.Background())
	require.Error(t, err)
}

func TestWriteFountainCSV(t *testing.T) {
	results := []FountainResult{
		{P: 0.01, Trials: 100, OK: 97},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteFountainCSV(&buf, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "ok_rate")
	require.Contains(t, lines[1], "0.970000")
}
