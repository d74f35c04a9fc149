package polar

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math/bits"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/polarsim/wavekit/pipeline"
)

// CountInfo returns the number of non-frozen (information) positions.
func CountInfo(frozen []bool) int {
	k := 0
	for _, f := range frozen {
		if !f {
			k++
		}
	}
	return k
}

// BECReliability returns the Bhattacharyya Z-parameter of each of the n
// synthesized channels of the 2x2 kernel under a binary erasure channel
// with erasure rate eps. Lower Z means more reliable. n must be a power
// of two.
func BECReliability(n int, eps float64) ([]float64, error) {
	if n <= 0 || bits.OnesCount(uint(n)) != 1 {
		return nil, fmt.Errorf("%w: BEC construction needs a power-of-two length, got %d",
			pipeline.ErrConfig, n)
	}
	if eps <= 0 || eps >= 1 {
		return nil, fmt.Errorf("%w: erasure rate has to be in (0,1), got %v",
			pipeline.ErrConfig, eps)
	}
	z := []float64{eps}
	for len(z) < n {
		next := make([]float64, 0, len(z)*2)
		for _, v := range z {
			next = append(next, 2*v-v*v, v*v)
		}
		z = next
	}
	return z, nil
}

// FrozenFromBEC builds the frozen vector of an (n, k) code by keeping the
// k channels with the smallest BEC Z-parameter as information positions.
func FrozenFromBEC(n, k int, eps float64) ([]bool, error) {
	if k <= 0 || k > n {
		return nil, fmt.Errorf("%w: need 0 < K <= N, got K=%d N=%d", pipeline.ErrConfig, k, n)
	}
	z, err := BECReliability(n, eps)
	if err != nil {
		return nil, err
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return z[idx[a]] < z[idx[b]] })
	frozen := make([]bool, n)
	for _, i := range idx[k:] {
		frozen[i] = true
	}
	return frozen, nil
}

// FrozenFromReliability builds the frozen vector from a reliability
// order: order[0] is the most reliable channel index. The order must
// cover at least n positions below n; indices >= n are skipped so a
// longer master sequence can serve shorter codes.
func FrozenFromReliability(order []int, n, k int) ([]bool, error) {
	if k <= 0 || k > n {
		return nil, fmt.Errorf("%w: need 0 < K <= N, got K=%d N=%d", pipeline.ErrConfig, k, n)
	}
	frozen := make([]bool, n)
	for i := range frozen {
		frozen[i] = true
	}
	info := 0
	for _, pos := range order {
		if pos < 0 || pos >= n {
			continue
		}
		if frozen[pos] {
			frozen[pos] = false
			info++
			if info == k {
				return frozen, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: reliability order covers only %d of %d information positions",
		pipeline.ErrConfig, info, k)
}

// ValidateFrozen checks the construction invariant of an (n, k) code.
func ValidateFrozen(frozen []bool, n, k int) error {
	if len(frozen) != n {
		return fmt.Errorf("%w: frozen vector has %d entries, the codeword size is %d",
			pipeline.ErrConfig, len(frozen), n)
	}
	if got := CountInfo(frozen); got != k {
		return fmt.Errorf("%w: frozen vector leaves %d information positions, want %d",
			pipeline.ErrConfig, got, k)
	}
	return nil
}

// LoadReliabilityText reads a reliability order from a text file: one
// channel index per line, most reliable first. Blank lines and lines
// starting with '#' are skipped.
func LoadReliabilityText(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var order []int
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		order = append(order, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

// LoadReliabilityBinary reads a reliability order stored as little-endian
// int64 values, most reliable first.
func LoadReliabilityBinary(path string) ([]int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("%w: %s is not a sequence of int64 values", pipeline.ErrSize, path)
	}
	order := make([]int, len(b)/8)
	for i := range order {
		order[i] = int(int64(binary.LittleEndian.Uint64(b[i*8:])))
	}
	return order, nil
}

// SaveReliabilityBinary writes a reliability order in the binary format
// read by LoadReliabilityBinary.
func SaveReliabilityBinary(path string, order []int) error {
	buf := make([]byte, 8*len(order))
	for i, v := range order {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(int64(v)))
	}
	return os.WriteFile(path, buf, 0o644)
}
