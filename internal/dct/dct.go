// Package dct implements the fixed-point 8x8 forward DCT used to turn
// one varblock of XYB samples into frequency-domain coefficients:
// two successive separable 1D transforms (rows, then columns) driven by
// a fixed integer cosine LUT, with the second pass writing its result
// back transposed.
//
// Grounded on forward_dct/cosine_lut in
// original_source/libhydrium/encoder.c; the LUT values and the >>18 /
// >>3 shift amounts are copied verbatim since decoder bit-exactness
// depends on them.
package dct

// CosineLUT holds round(cos((k+1)(2n+1)pi/16) * (2^16-1) * sqrt(1/2))
// for k in [0,7) (AC rows 1..7) and n in [0,8).
var CosineLUT = [7][8]int32{
	{45450, 38531, 25745, 9040, -9040, -25745, -38531, -45450},
	{42813, 17733, -17733, -42813, -42813, -17733, 17733, 42813},
	{38531, -9040, -45450, -25745, 25745, 45450, 9040, -38531},
	{32767, -32767, -32767, 32767, 32767, -32767, -32767, 32767},
	{25745, -45450, 9040, 38531, -38531, -9040, 45450, -25745},
	{17733, -42813, 42813, -17733, -17733, 42813, -42813, 17733},
	{9040, -25745, 38531, -45450, 45450, -38531, 25745, -9040},
}

// Block is one 8x8 varblock's samples (or, after Forward, its
// coefficients), addressed [row][col].
type Block [8][8]int32

// transform1D computes one separable pass over eight integer inputs,
// writing the DC (arithmetic mean) to out[0] and AC terms k=1..7 as the
// LUT dot product shifted right by 18, matching forward_dct's row and
// column passes exactly.
func transform1D(in [8]int32, out *[8]int32) {
	sum := in[0]
	for n := 1; n < 8; n++ {
		sum += in[n]
	}
	out[0] = sum >> 3

	for k := 1; k < 8; k++ {
		var acc int32
		lut := CosineLUT[k-1]
		for n := 0; n < 8; n++ {
			acc += in[n] * lut[n]
		}
		out[k] = acc >> 18
	}
}

// Forward applies the two-pass separable DCT to block in place: first
// every row, then every column of the row-transformed result, with the
// final write-back transposed so frequency index (kx,ky) lands at
// block-relative position (ky,kx) -- the scan order in internal/coeff
// depends on this transposition.
func Forward(block *Block) {
	var rows [8][8]int32
	for y := 0; y < 8; y++ {
		transform1D(block[y], &rows[y])
	}

	var cols [8][8]int32
	for x := 0; x < 8; x++ {
		var col [8]int32
		for y := 0; y < 8; y++ {
			col[y] = rows[y][x]
		}
		var out [8]int32
		transform1D(col, &out)
		for k := 0; k < 8; k++ {
			cols[k][x] = out[k]
		}
	}

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			block[y][x] = cols[x][y]
		}
	}
}
