// Package fountain adapts systematic RaptorQ coding to the pipeline
// substrate for erasure-channel experiments: an encoder expanding payload
// frames into source plus repair symbols and a decoder rebuilding
// payloads from the symbols that survived.
package fountain

import (
	"fmt"

	rqq "github.com/xssnick/raptorq"

	"github.com/polarsim/wavekit/pipeline"
)

// Encoder expands a payload of DataSize bytes into NSymbols symbols of
// SymbolLen bytes each; symbol ids below the source count carry the
// payload itself, higher ids carry repair data. The "build_symbols" task
// maps B_K payload bytes to the concatenated S_N symbol bytes.
type Encoder struct {
	pipeline.Module
	dataSize  int
	symbolLen int
	nSymbols  int
	buf       []byte
}

// NewEncoder builds a RaptorQ encoder stage. nSymbols must cover the
// source symbols of dataSize bytes split into symbolLen chunks.
func NewEncoder(dataSize, symbolLen, nSymbols, nFrames int) (*Encoder, error) {
	if err := checkGeometry(dataSize, symbolLen, nSymbols); err != nil {
		return nil, err
	}
	e := &Encoder{
		dataSize:  dataSize,
		symbolLen: symbolLen,
		nSymbols:  nSymbols,
		buf:       make([]byte, dataSize),
	}
	if err := e.InitModule("Fountain_RaptorQ_enc", nFrames); err != nil {
		return nil, err
	}
	t, err := e.NewTask("build_symbols")
	if err != nil {
		return nil, err
	}
	sB, err := t.NewSocketIn("B_K", pipeline.Int8, dataSize)
	if err != nil {
		return nil, err
	}
	sS, err := t.NewSocketOut("S_N", pipeline.Int8, nSymbols*symbolLen)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		in := pipeline.View[int8](sB)
		out := pipeline.View[int8](sS)
		perOut := e.nSymbols * e.symbolLen
		for f := 0; f < e.NFrames(); f++ {
			if err := e.encodeFrame(in[f*e.dataSize:(f+1)*e.dataSize], out[f*perOut:(f+1)*perOut]); err != nil {
				return -1
			}
		}
		return 0
	})
	return e, nil
}

func checkGeometry(dataSize, symbolLen, nSymbols int) error {
	if dataSize <= 0 || symbolLen <= 0 {
		return fmt.Errorf("%w: fountain stage needs positive data and symbol sizes, got %d and %d",
			pipeline.ErrConfig, dataSize, symbolLen)
	}
	src := sourceSymbols(dataSize, symbolLen)
	if nSymbols < src {
		return fmt.Errorf("%w: %d symbols cannot carry %d source symbols",
			pipeline.ErrConfig, nSymbols, src)
	}
	return nil
}

func sourceSymbols(dataSize, symbolLen int) int {
	return (dataSize + symbolLen - 1) / symbolLen
}

// DataSize returns the payload bytes per frame.
func (e *Encoder) DataSize() int { return e.dataSize }

// SymbolLen returns the bytes per symbol.
func (e *Encoder) SymbolLen() int { return e.symbolLen }

// NSymbols returns the total symbols emitted per frame.
func (e *Encoder) NSymbols() int { return e.nSymbols }

// NSourceSymbols returns the number of systematic symbols per frame.
func (e *Encoder) NSourceSymbols() int { return sourceSymbols(e.dataSize, e.symbolLen) }

func (e *Encoder) encodeFrame(in, out []int8) error {
	for i, v := range in {
		e.buf[i] = byte(v)
	}
	symbols, err := e.EncodeBlock(e.buf)
	if err != nil {
		return err
	}
	for s, sym := range symbols {
		base := s * e.symbolLen
		for j, b := range sym {
			out[base+j] = int8(b)
		}
	}
	return nil
}

// EncodeBlock generates the NSymbols symbol payloads for one data block.
// Short blocks are padded by the library; long ones are rejected.
func (e *Encoder) EncodeBlock(data []byte) ([][]byte, error) {
	if len(data) > e.dataSize {
		return nil, fmt.Errorf("%w: block holds %d bytes, the stage is sized for %d",
			pipeline.ErrSize, len(data), e.dataSize)
	}
	rq := rqq.NewRaptorQ(uint32(e.symbolLen))
	enc, err := rq.CreateEncoder(data)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, e.nSymbols)
	for i := range out {
		out[i] = enc.GenSymbol(uint32(i))
	}
	return out, nil
}

// Decoder rebuilds payload frames from surviving symbols. The "rebuild"
// task reads the concatenated S_N symbol bytes and the per-symbol erasure
// mask E_N (1 marks a lost symbol), writes the recovered payload to B_K
// and returns the number of frames it managed to rebuild; frames beyond
// repair come out zeroed and are counted as failures.
type Decoder struct {
	pipeline.Module
	dataSize  int
	symbolLen int
	nSymbols  int
	failures  uint64
}

// NewDecoder builds the RaptorQ decoder stage matching NewEncoder.
func NewDecoder(dataSize, symbolLen, nSymbols, nFrames int) (*Decoder, error) {
	if err := checkGeometry(dataSize, symbolLen, nSymbols); err != nil {
		return nil, err
	}
	d := &Decoder{
		dataSize:  dataSize,
		symbolLen: symbolLen,
		nSymbols:  nSymbols,
	}
	if err := d.InitModule("Fountain_RaptorQ_dec", nFrames); err != nil {
		return nil, err
	}
	t, err := d.NewTask("rebuild")
	if err != nil {
		return nil, err
	}
	sS, err := t.NewSocketIn("S_N", pipeline.Int8, nSymbols*symbolLen)
	if err != nil {
		return nil, err
	}
	sE, err := t.NewSocketIn("E_N", pipeline.Int8, nSymbols)
	if err != nil {
		return nil, err
	}
	sB, err := t.NewSocketOut("B_K", pipeline.Int8, dataSize)
	if err != nil {
		return nil, err
	}
	t.BindCodelet(func() int {
		in := pipeline.View[int8](sS)
		mask := pipeline.View[int8](sE)
		out := pipeline.View[int8](sB)
		perIn := d.nSymbols * d.symbolLen
		rebuilt := 0
		for f := 0; f < d.NFrames(); f++ {
			if d.rebuildFrame(in[f*perIn:(f+1)*perIn], mask[f*d.nSymbols:(f+1)*d.nSymbols],
				out[f*d.dataSize:(f+1)*d.dataSize]) {
				rebuilt++
			}
		}
		return rebuilt
	})
	return d, nil
}

// DataSize returns the payload bytes per frame.
func (d *Decoder) DataSize() int { return d.dataSize }

// NSymbols returns the symbols expected per frame.
func (d *Decoder) NSymbols() int { return d.nSymbols }

// Failures returns the number of frames that could not be rebuilt.
func (d *Decoder) Failures() uint64 { return d.failures }

// ResetFailures clears the failure counter.
func (d *Decoder) ResetFailures() { d.failures = 0 }

func (d *Decoder) rebuildFrame(in, mask, out []int8) bool {
	symbols := make([][]byte, d.nSymbols)
	present := make([]bool, d.nSymbols)
	for s := 0; s < d.nSymbols; s++ {
		if mask[s] != 0 {
			continue
		}
		sym := make([]byte, d.symbolLen)
		base := s * d.symbolLen
		for j := range sym {
			sym[j] = byte(in[base+j])
		}
		symbols[s] = sym
		present[s] = true
	}
	data, ok := d.DecodeBlock(symbols, present)
	if !ok {
		for i := range out {
			out[i] = 0
		}
		return false
	}
	for i, b := range data {
		out[i] = int8(b)
	}
	return true
}

// DecodeBlock rebuilds one data block from the present symbols. A nil
// entry or a false present flag marks a lost symbol.
func (d *Decoder) DecodeBlock(symbols [][]byte, present []bool) ([]byte, bool) {
	rq := rqq.NewRaptorQ(uint32(d.symbolLen))
	dec, err := rq.CreateDecoder(uint32(d.dataSize))
	if err != nil {
		d.failures++
		return nil, false
	}
	for s, sym := range symbols {
		if sym == nil || (present != nil && !present[s]) {
			continue
		}
		if _, err := dec.AddSymbol(uint32(s), sym); err != nil {
			// A rejected symbol is no worse than a lost one.
			continue
		}
	}
	ok, data, err := dec.Decode()
	if err != nil || !ok {
		d.failures++
		return nil, false
	}
	return data, true
}
