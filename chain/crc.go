package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/polarsim/wavekit/pipeline"
)

// Polynomial is a named CRC generator. Value holds the coefficients below
// the implicit leading term, most significant first; Size is the degree
// and the number of appended check bits.
type Polynomial struct {
	Name  string
	Value uint64
	Size  int
}

var polynomials = map[string]Polynomial{
	"32-GZIP":  {"32-GZIP", 0x04C11DB7, 32},
	"24-LTEA":  {"24-LTEA", 0x864CFB, 24},
	"16-CCITT": {"16-CCITT", 0x1021, 16},
	"16-IBM":   {"16-IBM", 0x8005, 16},
	"8-DVB-S2": {"8-DVB-S2", 0xD5, 8},
	"4-ITU":    {"4-ITU", 0x3, 4},
}

// PolynomialByName resolves one of the built-in CRC generators.
func PolynomialByName(name string) (Polynomial, error) {
	p, ok := polynomials[name]
	if !ok {
		known := make([]string, 0, len(polynomials))
		for n := range polynomials {
			known = append(known, n)
		}
		sort.Strings(known)
		return Polynomial{}, fmt.Errorf("%w: unknown CRC polynomial %q, known: %s",
			pipeline.ErrConfig, name, strings.Join(known, ", "))
	}
	return p, nil
}

// CRC appends and verifies cyclic redundancy checks over bit frames. The
// "build" task maps K information bits to K+Size bits, "extract" strips
// the check bits again and "check" reports how many frames of the wave
// verify.
type CRC struct {
	pipeline.Module
	k    int
	poly Polynomial
	gen  []int8
	buf  []int8
}

// NewCRC builds a CRC stage for k information bits per frame using the
// named generator polynomial.
func NewCRC(k int, polyName string, nFrames int) (*CRC, error) {
	poly, err := PolynomialByName(polyName)
	if err != nil {
		return nil, err
	}
	return NewCRCWithPoly(k, poly, nFrames)
}

// NewCRCWithPoly builds a CRC stage over an explicit generator, for
// polynomials outside the built-in table.
func NewCRCWithPoly(k int, poly Polynomial, nFrames int) (*CRC, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: CRC needs a positive K, got %d", pipeline.ErrConfig, k)
	}
	if poly.Size <= 0 || poly.Size > 64 {
		return nil, fmt.Errorf("%w: CRC generator needs a degree in [1,64], got %d",
			pipeline.ErrConfig, poly.Size)
	}
	c := &CRC{k: k, poly: poly}
	c.gen = make([]int8, poly.Size+1)
	c.gen[0] = 1
	for j := 1; j <= poly.Size; j++ {
		c.gen[j] = int8((poly.Value >> (poly.Size - j)) & 1)
	}
	c.buf = make([]int8, k+poly.Size)

	if err := c.InitModule("CRC", nFrames); err != nil {
		return nil, err
	}

	tb, err := c.NewTask("build")
	if err != nil {
		return nil, err
	}
	sU1, err := tb.NewSocketIn("U_K1", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	sU2, err := tb.NewSocketOut("U_K2", pipeline.Int8, k+poly.Size)
	if err != nil {
		return nil, err
	}
	tb.BindCodelet(func() int {
		u1 := pipeline.View[int8](sU1)
		u2 := pipeline.View[int8](sU2)
		kc := k + poly.Size
		for f := 0; f < c.NFrames(); f++ {
			c.BuildFrame(u1[f*k:(f+1)*k], u2[f*kc:(f+1)*kc])
		}
		return 0
	})

	te, err := c.NewTask("extract")
	if err != nil {
		return nil, err
	}
	sV2, err := te.NewSocketIn("V_K2", pipeline.Int8, k+poly.Size)
	if err != nil {
		return nil, err
	}
	sV1, err := te.NewSocketOut("V_K1", pipeline.Int8, k)
	if err != nil {
		return nil, err
	}
	te.BindCodelet(func() int {
		v2 := pipeline.View[int8](sV2)
		v1 := pipeline.View[int8](sV1)
		kc := k + poly.Size
		for f := 0; f < c.NFrames(); f++ {
			copy(v1[f*k:(f+1)*k], v2[f*kc:f*kc+k])
		}
		return 0
	})

	tc, err := c.NewTask("check")
	if err != nil {
		return nil, err
	}
	sV, err := tc.NewSocketIn("V_K", pipeline.Int8, k+poly.Size)
	if err != nil {
		return nil, err
	}
	tc.BindCodelet(func() int {
		v := pipeline.View[int8](sV)
		kc := k + poly.Size
		ok := 0
		for f := 0; f < c.NFrames(); f++ {
			if c.CheckFrame(v[f*kc : (f+1)*kc]) {
				ok++
			}
		}
		return ok
	})
	return c, nil
}

// K returns the number of information bits per frame.
func (c *CRC) K() int { return c.k }

// Size returns the number of check bits appended per frame.
func (c *CRC) Size() int { return c.poly.Size }

// Poly returns the generator in use.
func (c *CRC) Poly() Polynomial { return c.poly }

// BuildFrame copies the K information bits of u into v and appends the
// check bits; v needs K+Size elements.
func (c *CRC) BuildFrame(u, v []int8) {
	copy(v[:c.k], u[:c.k])
	c.remainder(u, v[c.k:c.k+c.poly.Size])
}

// CheckFrame recomputes the check bits over the first K elements of v and
// compares them with the trailing Size elements.
func (c *CRC) CheckFrame(v []int8) bool {
	rem := c.buf[:c.poly.Size]
	c.remainder(v, rem)
	for j, r := range rem {
		if v[c.k+j]&1 != r {
			return false
		}
	}
	return true
}

// remainder long-divides the K message bits (extended with Size zeros) by
// the generator and writes the Size remainder bits.
func (c *CRC) remainder(u, rem []int8) {
	buf := c.buf
	for i := 0; i < c.k; i++ {
		buf[i] = u[i] & 1
	}
	for i := c.k; i < len(buf); i++ {
		buf[i] = 0
	}
	for i := 0; i < c.k; i++ {
		if buf[i] == 0 {
			continue
		}
		for j, g := range c.gen {
			buf[i+j] ^= g
		}
	}
	copy(rem, buf[c.k:])
}
