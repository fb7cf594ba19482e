// Package coeff implements the DC and HF coefficient coders: the
// clamped-gradient DC predictor, HF quantization against fixed
// per-position weight tables, nonzero-count prediction, and the context
// formulas that select a distribution for every coded coefficient.
//
// Grounded on write_lf_group's DC loop and write_hf_coeffs in
// original_source/libhydrium/encoder.c; every table here (NaturalOrder,
// the quant weight rows, the two context LUTs, HFBlockClusterMap) is
// copied verbatim from that file since the decoder's context formula
// depends on the exact values.
package coeff

import "github.com/hydrium-go/jxlenc/internal/mathx"

// Pos is one (x,y) coordinate within an 8x8 block.
type Pos struct{ X, Y int }

// NaturalOrder is the zig-zag-like scan order write_hf_coeffs walks,
// indexed by scan position 0..63 (position 0 is the DC term, skipped by
// the HF coder since DC is coded separately).
var NaturalOrder = [64]Pos{
	{0, 0}, {1, 0}, {0, 1}, {0, 2}, {1, 1}, {2, 0}, {3, 0}, {2, 1},
	{1, 2}, {0, 3}, {0, 4}, {1, 3}, {2, 2}, {3, 1}, {4, 0}, {5, 0},
	{4, 1}, {3, 2}, {2, 3}, {1, 4}, {0, 5}, {0, 6}, {1, 5}, {2, 4},
	{3, 3}, {4, 2}, {5, 1}, {6, 0}, {7, 0}, {6, 1}, {5, 2}, {4, 3},
	{3, 4}, {2, 5}, {1, 6}, {0, 7}, {1, 7}, {2, 6}, {3, 5}, {4, 4},
	{5, 3}, {6, 2}, {7, 1}, {7, 2}, {6, 3}, {5, 4}, {4, 5}, {3, 6},
	{2, 7}, {3, 7}, {4, 6}, {5, 5}, {6, 4}, {7, 3}, {7, 4}, {6, 5},
	{5, 6}, {4, 7}, {5, 7}, {6, 6}, {7, 5}, {7, 6}, {6, 7}, {7, 7},
}

// FreqContext maps a 0-based AC scan position (0..62, i.e. NaturalOrder
// index 1..63) to its frequency-context bucket.
var FreqContext = [64]int{
	0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14,
	15, 15, 16, 16, 17, 17, 18, 18, 19, 19, 20, 20, 21, 21, 22, 22,
	23, 23, 23, 23, 24, 24, 24, 24, 25, 25, 25, 25, 26, 26, 26, 26,
	27, 27, 27, 27, 28, 28, 28, 28, 29, 29, 29, 29, 30, 30, 30, 30,
}

// NumNonZeroContext maps a block's total nonzero count (0..63) to its
// nonzero-count context bucket.
var NumNonZeroContext = [64]int{
	0, 0, 31, 62, 62, 93, 93, 93, 93, 123, 123, 123, 123, 152,
	152, 152, 152, 152, 152, 152, 152, 180, 180, 180, 180, 180, 180, 180,
	180, 180, 180, 180, 180, 206, 206, 206, 206, 206, 206, 206, 206, 206,
	206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206,
	206, 206, 206, 206, 206, 206, 206, 206,
}

// HFBlockClusterMap is the default HF block-context map's raw entries;
// the encoder only ever reads index 13*i for channel loop index i in
// {0,1,2}, per the newer encoder's literal indexing (spec Section 9's
// resolved Open Question).
var HFBlockClusterMap = [39]int{
	0, 1, 2, 2, 3, 3, 4, 5, 6, 6, 6, 6, 6,
	7, 8, 9, 9, 10, 11, 12, 13, 14, 14, 14, 14, 14,
	7, 8, 9, 9, 10, 11, 12, 13, 14, 14, 14, 14, 14,
}

// HFQuantWeights holds the per-position quantization weight for each of
// the three channels, indexed by tile plane (0=X, 1=Y, 2=B, the order the
// quantization pass in write_hf_coeffs walks the planes), across all 64
// scan positions (position 0 is unused since DC is never HF-quantized).
var HFQuantWeights = [3][64]int32{
	{
		1968, 1968, 1968, 1962, 1968, 1962, 1655, 1884, 1884, 1655, 1396, 1610, 1704, 1610, 1396, 1178,
		1367, 1493, 1493, 1367, 1178, 994, 1158, 1288, 1340, 1288, 1158, 994, 838, 980, 1103, 1178,
		1178, 1103, 980, 838, 828, 940, 1023, 1053, 1023, 940, 828, 799, 881, 928, 928, 881,
		799, 755, 809, 828, 809, 755, 662, 730, 730, 662, 491, 524, 491, 348, 348, 239,
	},
	{
		279, 279, 279, 279, 279, 279, 244, 270, 270, 244, 214, 239, 250, 239, 214, 187,
		210, 225, 225, 210, 187, 164, 185, 201, 207, 201, 185, 164, 143, 162, 178, 187,
		187, 178, 162, 143, 142, 157, 168, 172, 168, 157, 142, 138, 149, 155, 155, 149,
		138, 132, 139, 142, 139, 132, 125, 129, 129, 125, 116, 118, 116, 107, 107, 98,
	},
	{
		256, 146, 146, 84, 116, 84, 59, 78, 78, 59, 42, 56, 63, 56, 42, 42,
		42, 48, 48, 42, 42, 41, 42, 42, 42, 42, 42, 41, 29, 40, 42, 42,
		42, 42, 40, 29, 28, 37, 42, 42, 42, 37, 28, 26, 32, 36, 36, 32,
		26, 23, 27, 28, 27, 23, 19, 22, 22, 19, 14, 15, 14, 10, 10, 7,
	},
}

// HFMult is the fixed HF quantization multiplier this encoder uses
// (no rate control/psychovisual tuning, per spec's Non-goals).
const HFMult int16 = 8

// DCShift is the per-channel DC scale applied before prediction: a
// left-shift for Y, identity for X, right-shift for B, indexed in
// channel-loop order (0=Y,1=X,2=B).
var DCShift = [3]int{3, 0, -1}

// ChannelLoopOrder returns the plane index for channel loop position i
// (0,1,2), matching "c = i<2 ? 1-i : i": Y at i=0 reads plane 1, X at
// i=1 reads plane 0, B at i=2 reads plane 2.
func ChannelLoopOrder(i int) int {
	if i < 2 {
		return 1 - i
	}
	return i
}

// HFQuant quantizes one AC coefficient, preserving sign:
// round_toward_zero(value * weight * HFMult / 2^14).
func HFQuant(value int32, weight int32) int32 {
	if value < 0 {
		return -HFQuant(-value, weight)
	}
	return (value * weight * int32(HFMult)) >> 14
}

// PredictDC applies the clamped-gradient planar predictor to one 8x8-
// strided DC neighbourhood: v = clamp(w+n-nw, min(w,n), max(w,n)), with
// replication at the top-left edge (w=0 at origin; n=w on the top row;
// nw=w on the left column).
func PredictDC(w, n, nw int32) int32 {
	v := w + n - nw
	lo, hi := w, n
	if lo > hi {
		lo, hi = hi, lo
	}
	return mathx.Clamp(v, lo, hi)
}

// PredictedNonZeroes estimates a block's nonzero AC count from its
// top and left neighbours in a 32x32 varblock grid: 32 at the origin,
// the single neighbour on an edge, otherwise the round-up average.
func PredictedNonZeroes(nz *[32][32]uint8, y, x int) int {
	switch {
	case x == 0 && y == 0:
		return 32
	case x == 0:
		return int(nz[y-1][x])
	case y == 0:
		return int(nz[y][x-1])
	default:
		return (int(nz[y-1][x]) + int(nz[y][x-1]) + 1) >> 1
	}
}

// NonZeroContext combines a predicted nonzero count with a block's
// context-map entry into the distribution index for that block's
// nonzero-count symbol.
func NonZeroContext(predicted, blockContext int) int {
	if predicted < 8 {
		return blockContext + 15*predicted
	}
	if predicted > 64 {
		predicted = 64
	}
	return blockContext + 15*(4+predicted/2)
}

// HistContext is the base context offset for a channel's AC coefficient
// distributions, keyed off its block-context-map entry.
func HistContext(blockContext int) int {
	return 458*blockContext + 37*15
}

// CoeffContext selects the distribution for the AC coefficient at scan
// position k (0-based among the 63 AC terms), given prev: whether the
// previous scanned coefficient was nonzero, or, for k==0, whether the
// block has at most 4 nonzero coefficients.
func CoeffContext(histContext int, prev bool, nzCount int, k int) int {
	p := 0
	if prev {
		p = 1
	}
	return histContext + p + 2*(NumNonZeroContext[nzCount]+FreqContext[k])
}
