package colour

import "testing"

func TestSrgbToLinearEndpoints(t *testing.T) {
	if v := srgbToLinear(0); v != 0 {
		t.Errorf("srgbToLinear(0) = %v, want 0", v)
	}
	if v := srgbToLinear(255); v < 0.99 || v > 1.0 {
		t.Errorf("srgbToLinear(255) = %v, want ~1.0", v)
	}
}

func TestToXYBZeroIsZero(t *testing.T) {
	x, y, b := ToXYB(0, 0, 0)
	if x != 0 || y != 0 || b != 0 {
		t.Errorf("ToXYB(0,0,0) = (%v,%v,%v), want all zero", x, y, b)
	}
}

func TestToXYBGrayIsChromaFree(t *testing.T) {
	// Equal R=G=B should produce X (the L-M difference) at or very near
	// zero: the opponent-colour axis carries no signal for achromatic
	// input.
	x, _, _ := ToXYB(0.5, 0.5, 0.5)
	if x < -1e-9 || x > 1e-9 {
		t.Errorf("ToXYB(0.5,0.5,0.5) X channel = %v, want ~0", x)
	}
}

func TestPopulateTile8MatchesPopulateTile16(t *testing.T) {
	const w, h = 4, 4
	planes8 := [3][]uint8{
		make([]uint8, w*h), make([]uint8, w*h), make([]uint8, w*h),
	}
	planes16 := [3][]uint16{
		make([]uint16, w*h), make([]uint16, w*h), make([]uint16, w*h),
	}
	for i := 0; i < w*h; i++ {
		v8 := uint8(i * 16)
		planes8[0][i], planes8[1][i], planes8[2][i] = v8, v8/2, v8/3
		planes16[0][i] = uint16(v8) * 257
		planes16[1][i] = uint16(v8/2) * 257
		planes16[2][i] = uint16(v8/3) * 257
	}

	var dst8, dst16 [3][256][256]int16
	PopulateTile8(&dst8, planes8, w, h, w, 1, false)
	PopulateTile16(&dst16, planes16, w, h, w, 1, false)

	for c := 0; c < 3; c++ {
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				d8 := dst8[c][row][col]
				d16 := dst16[c][row][col]
				diff := int(d8) - int(d16)
				if diff < -2 || diff > 2 {
					t.Errorf("channel %d (%d,%d): 8-bit path = %d, 16-bit path = %d", c, row, col, d8, d16)
				}
			}
		}
	}
}

func TestClampInt16Bounds(t *testing.T) {
	if v := clampInt16(1e9); v != 32767 {
		t.Errorf("clampInt16(huge) = %d, want 32767", v)
	}
	if v := clampInt16(-1e9); v != -32768 {
		t.Errorf("clampInt16(-huge) = %d, want -32768", v)
	}
	if v := clampInt16(100.4); v != 100 {
		t.Errorf("clampInt16(100.4) = %d, want 100", v)
	}
}
