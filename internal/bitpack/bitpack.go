// Package bitpack packs hard-decision bits eight per byte and restores
// them, used by fast decoder store paths that emit packed output.
package bitpack

// PackInto writes ceil(len(bits)/8) packed bytes into the prefix of dst,
// least significant bit first. dst may alias bits.
func PackInto(dst []int8, bits []int8) {
	nb := (len(bits) + 7) / 8
	for b := 0; b < nb; b++ {
		var packed int8
		base := b * 8
		for i := 0; i < 8 && base+i < len(bits); i++ {
			packed |= (bits[base+i] & 1) << i
		}
		dst[b] = packed
	}
}

// UnpackInPlace expands n packed bits from the prefix of v into one bit
// per element, in place. Walking from the highest index down keeps every
// packed byte intact until its bits have been read.
func UnpackInPlace(v []int8, n int) {
	for i := n - 1; i >= 0; i-- {
		v[i] = (v[i/8] >> (i % 8)) & 1
	}
}

// Pack returns a fresh packed copy of bits.
func Pack(bits []int8) []int8 {
	out := make([]int8, (len(bits)+7)/8)
	PackInto(out, bits)
	return out
}

// Unpack expands n bits from packed into a fresh slice.
func Unpack(packed []int8, n int) []int8 {
	out := make([]int8, n)
	for i := range out {
		out[i] = (packed[i/8] >> (i % 8)) & 1
	}
	return out
}
