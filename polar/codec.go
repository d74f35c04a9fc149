package polar

// Codec bundles an encoder/decoder pair built on one code descriptor and
// one shared frozen vector, so simulation chains configure both ends in a
// single place.
type Codec struct {
	code   *Code
	frozen []bool
	enc    *Encoder
	dec    *DecoderSC
}

// NewCodec builds the encoder and the SC decoder for (k, n, code, frozen)
// over nFrames frames.
func NewCodec(k, n int, code *Code, frozen []bool, nFrames int) (*Codec, error) {
	enc, err := NewEncoder(k, n, code, frozen, nFrames)
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoderSC(k, n, code, frozen, nFrames)
	if err != nil {
		return nil, err
	}
	return &Codec{
		code:   code,
		frozen: append([]bool(nil), frozen...),
		enc:    enc,
		dec:    dec,
	}, nil
}

func (c *Codec) Code() *Code         { return c.code }
func (c *Codec) Encoder() *Encoder   { return c.enc }
func (c *Codec) Decoder() *DecoderSC { return c.dec }

func (c *Codec) K() int { return c.dec.K() }
func (c *Codec) N() int { return c.dec.N() }

// Rate returns K/N.
func (c *Codec) Rate() float64 {
	return float64(c.K()) / float64(c.N())
}

// FrozenBits returns the active frozen vector; it is read-only.
func (c *Codec) FrozenBits() []bool { return c.frozen }

// NotifyFrozenBits pushes a new frozen vector to both sides.
func (c *Codec) NotifyFrozenBits(frozen []bool) error {
	if err := c.enc.NotifyFrozenBits(frozen); err != nil {
		return err
	}
	if err := c.dec.NotifyFrozenBits(frozen); err != nil {
		return err
	}
	copy(c.frozen, frozen)
	return nil
}

// SetNFrames resizes both modules to nFrames frames.
func (c *Codec) SetNFrames(nFrames int) error {
	if err := c.enc.SetNFrames(nFrames); err != nil {
		return err
	}
	return c.dec.SetNFrames(nFrames)
}
