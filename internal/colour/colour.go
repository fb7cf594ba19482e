// Package colour converts caller-supplied sRGB or linear-light pixel
// planes into the XYB opponent-colour space the DCT pipeline quantizes
// in. It mirrors the "forward transform over planar buffers in place"
// shape of the teacher's internal/mct package (ForwardICT/ForwardRCT),
// adapted from JPEG 2000's RGB<->YCbCr matrices to JPEG XL's XYB
// mixing-plus-cube-root transform.
//
// Colour conversion is explicitly an external collaborator of the core
// DCT/entropy pipeline (spec Section 1): nothing here needs to be
// bit-exact against a decoder, only to produce a plausible, invertible
// opponent-colour signal for the quantizer to work on.
package colour

import "math"

// opsinAbsorbanceBias is the fixed additive bias folded into the LMS
// mix before the cube root, and opsinAbsorbanceBiasCbrt its cube root,
// subtracted back out afterwards so a zero signal maps to zero.
const opsinAbsorbanceBias = 0.00379307325527544933

var opsinAbsorbanceBiasCbrt = math.Cbrt(opsinAbsorbanceBias)

// kMix is the forward LMS mixing matrix applied to linear RGB before the
// per-channel cube root, in the same row-major layout as libjxl's
// kOpsinAbsorbanceMatrix.
var kMix = [3][3]float64{
	{0.3, 0.622, 0.078},
	{0.23, 0.692, 0.078},
	{0.24342268924547819, 0.20476744424496821, 0.54153836623765755},
}

// Scale maps the small-magnitude float XYB values (cube roots of
// fractional LMS mixes, typically within +/-0.5) into the signed 16-bit
// plane range the tile state and DCT engine operate on. Chosen so the
// HF quantization weight tables (tuned for this fixed-point scale)
// produce a useful nonzero/zero split rather than quantizing everything
// to zero or overflowing int16.
const Scale = 1 << 13

// srgbToLinear converts an 8-bit sRGB sample to linear light in [0,1]
// using the standard piecewise sRGB EOTF.
func srgbToLinear(v float64) float64 {
	v /= 255
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func cbrtSigned(v float64) float64 {
	if v < 0 {
		v = 0
	}
	return math.Cbrt(v+opsinAbsorbanceBias) - opsinAbsorbanceBiasCbrt
}

// ToXYB converts one linear-light RGB triple (each in [0,1]) to an XYB
// triple in the same [0,1]-ish domain, before Scale is applied.
func ToXYB(r, g, b float64) (x, y, bOut float64) {
	lmsR := kMix[0][0]*r + kMix[0][1]*g + kMix[0][2]*b
	lmsG := kMix[1][0]*r + kMix[1][1]*g + kMix[1][2]*b
	lmsS := kMix[2][0]*r + kMix[2][1]*g + kMix[2][2]*b

	l := cbrtSigned(lmsR)
	m := cbrtSigned(lmsG)
	s := cbrtSigned(lmsS)

	x = (l - m) / 2
	y = (l + m) / 2
	bOut = s
	return
}

// PopulateTile16 fills dst (indexed [channel][row][col], channel order
// X=0, Y=1, B=2 matching the tile state's plane layout) from three
// uint16 sample planes, converting each pixel to XYB and scaling to the
// plane's signed 16-bit fixed-point domain. planes[i] holds (width *
// height) samples at the given strides, full-scale white = 0xFFFF.
// linearLight skips the sRGB EOTF when the caller's samples are already
// linear, mirroring HYDImageMetadata.linear_light.
func PopulateTile16(dst *[3][256][256]int16, planes [3][]uint16, width, height int, rowStride, pixelStride int, linearLight bool) {
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			idx := row*rowStride + col*pixelStride
			r := float64(planes[0][idx]) / 65535
			g := float64(planes[1][idx]) / 65535
			b := float64(planes[2][idx]) / 65535
			if !linearLight {
				r = srgbToLinear(r * 255)
				g = srgbToLinear(g * 255)
				b = srgbToLinear(b * 255)
			}
			x, y, bo := ToXYB(r, g, b)
			dst[0][row][col] = clampInt16(x * Scale)
			dst[1][row][col] = clampInt16(y * Scale)
			dst[2][row][col] = clampInt16(bo * Scale)
		}
	}
}

// PopulateTile8 is PopulateTile16's 8-bit analogue, mirroring
// hyd_populate_xyb_buffer8's distinct entry point for uint8 samples.
func PopulateTile8(dst *[3][256][256]int16, planes [3][]uint8, width, height int, rowStride, pixelStride int, linearLight bool) {
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			idx := row*rowStride + col*pixelStride
			r := float64(planes[0][idx]) / 255
			g := float64(planes[1][idx]) / 255
			b := float64(planes[2][idx]) / 255
			if !linearLight {
				r = srgbToLinear(r * 255)
				g = srgbToLinear(g * 255)
				b = srgbToLinear(b * 255)
			}
			x, y, bo := ToXYB(r, g, b)
			dst[0][row][col] = clampInt16(x * Scale)
			dst[1][row][col] = clampInt16(y * Scale)
			dst[2][row][col] = clampInt16(bo * Scale)
		}
	}
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(math.Round(v))
}
