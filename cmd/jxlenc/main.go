// Command jxlenc converts a PNG (or any image format registered with the
// standard image package) into a JPEG XL bitstream using the jxlenc
// package, tiling the source image into 256x256-origin tiles the same way
// a caller of the Encoder API is expected to.
package main

import (
	"flag"
	"image"
	_ "image/png"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hydrium-go/jxlenc"
)

// Logging related constants, matching the pack's cmd/looper convention of
// a rotated file log plus a fixed verbosity and suppress-duplicates flag.
const (
	logPath      = "jxlenc.log"
	logMaxSize   = 10 // MB
	logMaxBackup = 3
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

func main() {
	var (
		outPath     = flag.String("o", "out.jxl", "output file path")
		level10     = flag.Bool("level10", true, "wrap the codestream in the ISO-BMFF level-10 container")
		linearLight = flag.Bool("linear", false, "treat input samples as linear light instead of sRGB")
	)
	flag.Parse()

	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	l := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	if flag.NArg() != 1 {
		l.Fatal("usage: jxlenc [flags] input.png")
	}

	if err := run(l, flag.Arg(0), *outPath, *level10, *linearLight); err != nil {
		l.Fatal("encoding failed", "error", err)
	}
}

func run(l logging.Logger, inPath, outPath string, level10, linearLight bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return err
	}

	l.Info("encoding image", "path", inPath, "width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "out", outPath)

	opts := jxlenc.DefaultOptions()
	opts.Level10 = level10

	enc := jxlenc.New(opts)
	width, height := uint32(img.Bounds().Dx()), uint32(img.Bounds().Dy())
	if err := enc.SetMetadata(width, height, linearLight); err != nil {
		return err
	}

	buf := make([]byte, 1<<24)
	if err := enc.ProvideOutputBuffer(buf); err != nil {
		return err
	}

	tilesX := (width + 255) / 256
	tilesY := (height + 255) / 256
	for ty := uint32(0); ty < tilesY; ty++ {
		for tx := uint32(0); tx < tilesX; tx++ {
			tileW := tileDim(width, tx)
			tileH := tileDim(height, ty)
			r, g, b := extractTile(img, tx, ty, tileW, tileH)
			if err := enc.SendTile([3][]uint16{r, g, b}, int(tileW), int(tileH), int(tileW), 1, tx, ty); err != nil {
				l.Error("tile send failed", "tx", tx, "ty", ty, "error", err)
				return err
			}
		}
	}

	if err := enc.Flush(); err != nil {
		return err
	}
	n, err := enc.ReleaseOutputBuffer()
	if err != nil {
		return err
	}

	l.Info("wrote output", "bytes", n, "path", outPath)
	return os.WriteFile(outPath, buf[:n], 0o644)
}

func tileDim(total, index uint32) uint32 {
	start := index * 256
	if start+256 > total {
		return total - start
	}
	return 256
}

// extractTile pulls one tileW x tileH block of 16-bit RGB samples out of
// img at the given tile grid position, row-major with unit pixel stride.
func extractTile(img image.Image, tx, ty, tileW, tileH uint32) (r, g, b []uint16) {
	r = make([]uint16, tileW*tileH)
	g = make([]uint16, tileW*tileH)
	b = make([]uint16, tileW*tileH)
	bounds := img.Bounds()
	ox, oy := int(tx*256), int(ty*256)
	for row := uint32(0); row < tileH; row++ {
		for col := uint32(0); col < tileW; col++ {
			x := bounds.Min.X + ox + int(col)
			y := bounds.Min.Y + oy + int(row)
			cr, cg, cb, _ := img.At(x, y).RGBA()
			idx := row*tileW + col
			r[idx], g[idx], b[idx] = uint16(cr), uint16(cg), uint16(cb)
		}
	}
	return
}
