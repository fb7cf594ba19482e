// Package frame orchestrates one codestream: the image header (written
// once) followed by a sequence of per-tile frames, each holding a frame
// header, an LF-global section, an LF-group section (DC coding plus the
// fixed "trivial tree" headers the encoder always emits), an HF-global
// section, and the HF coefficient stream, framed by a length-prefixed
// TOC entry.
//
// Grounded on write_header/write_frame_header/write_lf_global/
// write_lf_group/encode_xyb_buffer in
// original_source/libhydrium/encoder.c, and on spec Section 6's bit
// layout for the exact field widths and constants.
package frame

import (
	"errors"

	"github.com/hydrium-go/jxlenc/internal/bitio"
	"github.com/hydrium-go/jxlenc/internal/coeff"
	"github.com/hydrium-go/jxlenc/internal/container"
	"github.com/hydrium-go/jxlenc/internal/dct"
	"github.com/hydrium-go/jxlenc/internal/entropy"
	"github.com/hydrium-go/jxlenc/internal/mathx"
)

// ErrAPIMisuse signals a tile coordinate outside the image's tile grid.
var ErrAPIMisuse = errors.New("frame: tile coordinate out of range")

// workingBufferSize is the internal scratch buffer's fixed size, matching
// HYDEncoder's working_buffer[262144] in the original implementation.
const workingBufferSize = 256 * 1024

// Metadata mirrors HYDImageMetadata plus the level10 container toggle
// read by write_header.
type Metadata struct {
	Width, Height uint32
	LinearLight   bool
	Level10       bool
}

// Tile holds one 256x256 tile's XYB samples, channel order X=0, Y=1,
// B=2, matching HYDEncoder's xyb[3][256][256] and internal/colour's
// PopulateTile output layout. DCT and coefficient coding mutate it in
// place; callers must not reuse a Tile's contents after SendTile.
type Tile struct {
	XYB [3][256][256]int16
}

// Writer drives one codestream's worth of output into a caller-owned
// bit writer. It is not safe for concurrent use: tiles must be sent
// serially, mirroring the single-threaded, synchronous model of
// spec Section 5.
type Writer struct {
	bw       *bitio.Writer
	metadata Metadata

	wroteHeader      bool
	wroteFrameHeader bool

	groupX, groupY          uint32
	groupWidth, groupHeight uint32
	varblockWidth           uint32
	varblockHeight          uint32

	workBuf [workingBufferSize]byte
}

// NewWriter creates a Writer that appends to bw.
func NewWriter(bw *bitio.Writer, metadata Metadata) *Writer {
	return &Writer{bw: bw, metadata: metadata}
}

// SendTile encodes one 256x256-origin tile at grid position (tileX,
// tileY) -- tiles at the right/bottom edge of a non-256-aligned image
// may hold fewer live pixels than a full tile; callers are expected to
// have zero-filled the remainder of Tile.XYB before converting pixels
// into it.
func (w *Writer) SendTile(tile *Tile, tileX, tileY uint32) error {
	tilesX := (w.metadata.Width + 255) / 256
	tilesY := (w.metadata.Height + 255) / 256
	if tileX >= tilesX || tileY >= tilesY {
		return ErrAPIMisuse
	}
	if err := w.bw.Err(); err != nil {
		return err
	}

	w.groupX, w.groupY = tileX, tileY

	if !w.wroteHeader {
		if err := w.writeImageHeader(); err != nil {
			return err
		}
	}
	if !w.wroteFrameHeader {
		if err := w.writeFrameHeader(); err != nil {
			return err
		}
	}

	return w.encodeXYBBuffer(tile)
}

// Flush reports any sticky output-overflow status; there is no buffered
// state beyond what SendTile already wrote, since every tile finishes
// its own frame before returning (spec Section 5's "no suspension
// points").
func (w *Writer) Flush() error {
	return w.bw.Err()
}

func (w *Writer) writeImageHeader() error {
	if w.metadata.Level10 {
		for _, b := range container.Level10Preamble() {
			if err := w.bw.Write(uint64(b), 8); err != nil {
				return err
			}
		}
	}

	if err := w.bw.Write(0x0AFF, 17); err != nil {
		return err
	}
	u32c := [4]uint32{1, 1, 1, 1}
	u32u := [4]uint32{9, 13, 18, 30}
	if err := w.bw.WriteU32(u32c, u32u, w.metadata.Height); err != nil {
		return err
	}
	if err := w.bw.Write(0, 3); err != nil {
		return err
	}
	if err := w.bw.WriteU32(u32c, u32u, w.metadata.Width); err != nil {
		return err
	}
	if err := w.bw.Write(0x3, 2); err != nil {
		return err
	}
	w.wroteHeader = true
	return nil
}

func (w *Writer) writeFrameHeader() error {
	bw := w.bw
	if err := bw.ZeroPadToByte(); err != nil {
		return err
	}

	if (w.groupX+1)<<8 > w.metadata.Width {
		w.groupWidth = w.metadata.Width - (w.groupX << 8)
	} else {
		w.groupWidth = 256
	}
	if (w.groupY+1)<<8 > w.metadata.Height {
		w.groupHeight = w.metadata.Height - (w.groupY << 8)
	} else {
		w.groupHeight = 256
	}
	w.varblockWidth = (w.groupWidth + 7) >> 3
	w.varblockHeight = (w.groupHeight + 7) >> 3

	if err := bw.Write(0, 4); err != nil { // all_default, frame_type, encoding
		return err
	}
	if err := bw.WriteU64(0x80); err != nil { // flags = SkipAdaptiveLFSmoothing
		return err
	}
	if err := bw.Write(0x4C, 10); err != nil { // upsampling, x/b_qm_scale, num_passes
		return err
	}

	isLast := (w.groupX+1)<<8 >= w.metadata.Width && (w.groupY+1)<<8 >= w.metadata.Height
	haveCrop := !isLast || w.groupX != 0 || w.groupY != 0

	if err := bw.WriteBool(haveCrop); err != nil {
		return err
	}
	if haveCrop {
		cpos := [4]uint32{0, 256, 2304, 18688}
		upos := [4]uint32{8, 11, 14, 30}
		if err := bw.WriteU32(cpos, upos, w.groupX<<9); err != nil {
			return err
		}
		if err := bw.WriteU32(cpos, upos, w.groupY<<9); err != nil {
			return err
		}
		if err := bw.WriteU32(cpos, upos, w.groupWidth); err != nil {
			return err
		}
		if err := bw.WriteU32(cpos, upos, w.groupHeight); err != nil {
			return err
		}
	}

	if err := bw.Write(0, 2); err != nil { // blending_info.mode = kReplace
		return err
	}
	if haveCrop {
		if err := bw.Write(0, 2); err != nil { // blending_info.source
			return err
		}
	}
	if err := bw.WriteBool(isLast); err != nil {
		return err
	}
	if !isLast {
		if err := bw.Write(0, 2); err != nil { // save_as_reference
			return err
		}
	}
	if err := bw.Write(0, 2); err != nil { // name_len
		return err
	}

	if err := bw.WriteBool(false); err != nil { // loop filter all_default
		return err
	}
	if err := bw.WriteBool(false); err != nil { // gab
		return err
	}
	if err := bw.Write(0, 2); err != nil { // epf_iters
		return err
	}
	if err := bw.Write(0, 2); err != nil { // loop filter extensions
		return err
	}
	if err := bw.Write(0, 3); err != nil { // frame extensions(2) + permuted_toc(1)
		return err
	}

	if err := bw.ZeroPadToByte(); err != nil {
		return err
	}
	w.wroteFrameHeader = true
	return nil
}

// fiveSymbolTreeValues is the constant sequence of five send-symbol
// values write_lf_group emits twice: once for the "trivial" global
// modular tree (property=-1, predictor=5, offset=0, mul_log=0,
// mul_bits=0) and once, byte for byte identical, as the HF-multiplier
// tree header -- the original encoder re-emits the same fixed header in
// both places rather than sharing a helper.
var fiveSymbolTreeValues = [5]uint32{0, 5, 0, 0, 0}

func writeFiveSymbolTree(bw *bitio.Writer) error {
	stream, err := entropy.NewStream(bw, []int{0, 0, 0, 0, 0, 0}, 6, 0)
	if err != nil {
		return err
	}
	for dist, v := range fiveSymbolTreeValues {
		if err := stream.SendSymbol(dist+1, v); err != nil {
			return err
		}
	}
	return stream.FinalizeANS()
}

func writeLFGlobal(bw *bitio.Writer) error {
	if err := bw.WriteBool(true); err != nil { // LF channel quantization all_default
		return err
	}
	if err := bw.WriteU32([4]uint32{1, 2049, 4097, 8193}, [4]uint32{11, 11, 12, 16}, 32768); err != nil {
		return err
	}
	if err := bw.WriteU32([4]uint32{16, 1, 1, 1}, [4]uint32{0, 5, 8, 16}, 64); err != nil {
		return err
	}
	if err := bw.WriteBool(true); err != nil { // HF block context all_default
		return err
	}
	if err := bw.WriteBool(true); err != nil { // LF channel correlation all_default
		return err
	}
	return bw.WriteBool(false) // GlobalModular have_global_tree
}

func (w *Writer) writeLFGroup(bw *bitio.Writer, tile *Tile) error {
	if err := bw.Write(0, 2); err != nil { // extra precision
		return err
	}
	if err := bw.WriteBool(false); err != nil { // use global tree
		return err
	}
	if err := bw.WriteBool(true); err != nil { // wp_params all_default
		return err
	}
	if err := bw.Write(0, 2); err != nil { // nb_transforms
		return err
	}

	if err := writeFiveSymbolTree(bw); err != nil {
		return err
	}

	nbBlocks := w.varblockWidth * w.varblockHeight
	dcStream, err := entropy.NewStream(bw, []int{0}, 1, 0)
	if err != nil {
		return err
	}

	for i := 0; i < 3; i++ {
		c := coeff.ChannelLoopOrder(i)
		shift := coeff.DCShift[i]
		for y := uint32(0); y < w.varblockHeight; y++ {
			for x := uint32(0); x < w.varblockWidth; x++ {
				xv, yv := x<<3, y<<3
				val := int32(tile.XYB[c][yv][xv])
				if shift >= 0 {
					val <<= uint(shift)
				} else {
					val >>= uint(-shift)
				}
				tile.XYB[c][yv][xv] = int16(val)

				var wv, n, nw int32
				if xv > 0 {
					wv = int32(tile.XYB[c][yv][xv-8])
				} else if y > 0 {
					wv = int32(tile.XYB[c][yv-8][xv])
				}
				if yv > 0 {
					n = int32(tile.XYB[c][yv-8][xv])
				} else {
					n = wv
				}
				if xv > 0 && yv > 0 {
					nw = int32(tile.XYB[c][yv-8][xv-8])
				} else {
					nw = wv
				}

				pred := coeff.PredictDC(wv, n, nw)
				diff := val - pred
				if err := dcStream.SendSymbol(0, mathx.PackSigned(diff)); err != nil {
					return err
				}
			}
		}
	}
	if err := dcStream.FinalizeANS(); err != nil {
		return err
	}

	if err := bw.Write(uint64(nbBlocks-1), uint(mathx.CeilLog2(uint64(nbBlocks)))); err != nil {
		return err
	}
	if err := bw.WriteBool(false); err != nil {
		return err
	}
	if err := bw.WriteBool(true); err != nil {
		return err
	}
	if err := bw.Write(0, 2); err != nil {
		return err
	}

	if err := writeFiveSymbolTree(bw); err != nil {
		return err
	}

	cflWidth := (w.varblockWidth + 7) >> 3
	cflHeight := (w.varblockHeight + 7) >> 3
	numZPre := 2*cflWidth*cflHeight + nbBlocks
	numZeroes := numZPre + 2*nbBlocks

	zStream, err := entropy.NewStream(bw, []int{0}, 1, 0)
	if err != nil {
		return err
	}
	for i := uint32(0); i < numZPre; i++ {
		if err := zStream.SendSymbol(0, 0); err != nil {
			return err
		}
	}
	if err := zStream.SendSymbol(0, uint32(coeff.HFMult-1)<<1); err != nil {
		return err
	}
	for i := uint32(1); i < numZeroes-numZPre; i++ {
		if err := zStream.SendSymbol(0, 0); err != nil {
			return err
		}
	}
	return zStream.FinalizeANS()
}

func (w *Writer) forwardDCT(tile *Tile) {
	for c := 0; c < 3; c++ {
		for by := uint32(0); by < w.varblockHeight; by++ {
			vy := by << 3
			for bx := uint32(0); bx < w.varblockWidth; bx++ {
				vx := bx << 3
				var block dct.Block
				for y := 0; y < 8; y++ {
					for x := 0; x < 8; x++ {
						block[y][x] = int32(tile.XYB[c][vy+uint32(y)][vx+uint32(x)])
					}
				}
				dct.Forward(&block)
				for y := 0; y < 8; y++ {
					for x := 0; x < 8; x++ {
						tile.XYB[c][vy+uint32(y)][vx+uint32(x)] = int16(block[y][x])
					}
				}
			}
		}
	}
}

func (w *Writer) writeHFCoeffs(bw *bitio.Writer, tile *Tile) error {
	clusterMap := make([]int, 7425)
	stream, err := entropy.NewStream(bw, clusterMap, 7425, 0)
	if err != nil {
		return err
	}

	var nonZeroes [3][32][32]uint8

	for by := uint32(0); by < w.varblockHeight; by++ {
		vy := by << 3
		for bx := uint32(0); bx < w.varblockWidth; bx++ {
			vx := bx << 3
			for i := 0; i < 3; i++ {
				for j := 1; j < 64; j++ {
					pos := coeff.NaturalOrder[j]
					py, px := vy+uint32(pos.Y), vx+uint32(pos.X)
					q := coeff.HFQuant(int32(tile.XYB[i][py][px]), coeff.HFQuantWeights[i][j])
					tile.XYB[i][py][px] = int16(q)
					if q != 0 {
						nonZeroes[i][by][bx]++
					}
				}
			}
		}
	}

	for by := uint32(0); by < w.varblockHeight; by++ {
		vy := by << 3
		for bx := uint32(0); bx < w.varblockWidth; bx++ {
			vx := bx << 3
			for i := 0; i < 3; i++ {
				c := coeff.ChannelLoopOrder(i)
				predicted := coeff.PredictedNonZeroes(&nonZeroes[c], int(by), int(bx))
				blockContext := coeff.HFBlockClusterMap[13*i]
				nzCtx := coeff.NonZeroContext(predicted, blockContext)
				nzCount := int(nonZeroes[c][by][bx])
				if err := stream.SendSymbol(nzCtx, uint32(nzCount)); err != nil {
					return err
				}
				if nzCount == 0 {
					continue
				}
				histContext := coeff.HistContext(blockContext)
				remaining := nzCount
				for k := 0; k < 63; k++ {
					pos := coeff.NaturalOrder[k+1]
					py, px := vy+uint32(pos.Y), vx+uint32(pos.X)
					var prev bool
					if k > 0 {
						prevPos := coeff.NaturalOrder[k]
						ppy, ppx := vy+uint32(prevPos.Y), vx+uint32(prevPos.X)
						prev = tile.XYB[c][ppy][ppx] != 0
					} else {
						prev = nonZeroes[c][by][bx] <= 4
					}
					ctx := coeff.CoeffContext(histContext, prev, remaining, k)
					value := int32(tile.XYB[c][py][px])
					if err := stream.SendSymbol(ctx, mathx.PackSigned(value)); err != nil {
						return err
					}
					if value != 0 {
						remaining--
						if remaining == 0 {
							break
						}
					}
				}
			}
		}
	}

	return stream.FinalizeANS()
}

func (w *Writer) encodeXYBBuffer(tile *Tile) error {
	workBW := bitio.NewWriter(w.workBuf[:])

	w.forwardDCT(tile)

	if err := writeLFGlobal(workBW); err != nil {
		return err
	}
	if err := w.writeLFGroup(workBW, tile); err != nil {
		return err
	}
	if err := workBW.WriteBool(true); err != nil { // HF global all_default
		return err
	}
	if err := workBW.Write(2, 2); err != nil { // HF pass order
		return err
	}
	if err := w.writeHFCoeffs(workBW, tile); err != nil {
		return err
	}
	if err := workBW.ZeroPadToByte(); err != nil {
		return err
	}

	payloadLen := uint32(workBW.Len())

	if err := w.bw.ZeroPadToByte(); err != nil {
		return err
	}
	if err := w.bw.WriteU32([4]uint32{0, 1024, 17408, 4211712}, [4]uint32{10, 14, 22, 30}, payloadLen); err != nil {
		return err
	}
	if err := w.bw.ZeroPadToByte(); err != nil {
		return err
	}
	for _, b := range workBW.Bytes() {
		if err := w.bw.Write(uint64(b), 8); err != nil {
			return err
		}
	}

	w.wroteFrameHeader = false
	return w.bw.Err()
}
