// Package jxlenc provides a pure Go implementation of a JPEG XL still-image
// encoder core: colour conversion to the XYB opponent space, an 8x8 integer
// DCT, a clamped-gradient/HF-weighted coefficient coder, and a hybrid-
// integer/ANS/prefix entropy engine feeding an LSB-first bit writer.
//
// Basic usage, one tile at a time:
//
//	enc := jxlenc.New(jxlenc.DefaultOptions())
//	if err := enc.SetMetadata(256, 256, false); err != nil {
//	    log.Fatal(err)
//	}
//	buf := make([]byte, 1<<20)
//	if err := enc.ProvideOutputBuffer(buf); err != nil {
//	    log.Fatal(err)
//	}
//	if err := enc.SendTile(planes, 256, 256, 256, 1, 0, 0); err != nil {
//	    log.Fatal(err)
//	}
//	if err := enc.Flush(); err != nil {
//	    log.Fatal(err)
//	}
//	n, err := enc.ReleaseOutputBuffer()
package jxlenc

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/hydrium-go/jxlenc/internal/bitio"
	"github.com/hydrium-go/jxlenc/internal/colour"
	"github.com/hydrium-go/jxlenc/internal/frame"
)

// StatusCode mirrors the original library's numeric status enum, for
// callers that want parity with the C API's return codes rather than a Go
// error value.
type StatusCode int

// Status codes, matching HYDStatusCode.
const (
	StatusOK             StatusCode = 0
	StatusDefault        StatusCode = -1
	StatusErrorStart     StatusCode = -10
	StatusNeedMoreOutput StatusCode = -11
	StatusNeedMoreInput  StatusCode = -12
	StatusNoMem          StatusCode = -13
	StatusAPIError       StatusCode = -14
	StatusInternalError  StatusCode = -15
)

// Sentinel errors for misuse detected at this boundary. Internal packages
// return their own bare sentinel errors; every error leaving this package
// is wrapped with pkg/errors to attach a stack trace.
var (
	ErrAPIMisuse      = errors.New("jxlenc: api misuse")
	ErrNoOutputBuffer = errors.New("jxlenc: no output buffer provided")
	ErrNoMetadata     = errors.New("jxlenc: metadata not set")
)

// statusError pairs a wrapped error with the numeric status code a C-API
// caller would have received.
type statusError struct {
	code StatusCode
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func wrapStatus(code StatusCode, err error) error {
	if err == nil {
		return nil
	}
	return &statusError{code: code, err: pkgerrors.Wrap(err, "jxlenc")}
}

// StatusCodeOf recovers the numeric status code from an error returned by
// this package, or StatusOK/StatusInternalError for nil/unrecognized
// errors respectively.
func StatusCodeOf(err error) StatusCode {
	if err == nil {
		return StatusOK
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return StatusInternalError
}

// Options holds construction-time encoder settings: the level10 container
// toggle read by the container writer and an output-buffer size hint.
// Image dimensions and the linear-light flag are set with SetMetadata.
type Options struct {
	// Level10 wraps the codestream in the ISO-BMFF "level 10" container
	// (signature box, ftyp, jxll, jxlc) instead of emitting a bare
	// codestream.
	Level10 bool

	// OutputBufferHint sizes the buffer a caller should allocate before
	// calling ProvideOutputBuffer; purely advisory.
	OutputBufferHint int
}

// DefaultOptions returns the default encoder options: container mode on,
// a one-megabyte buffer hint.
func DefaultOptions() *Options {
	return &Options{
		Level10:          true,
		OutputBufferHint: 1 << 20,
	}
}

// Encoder drives one codestream's worth of output. It is not safe for
// concurrent use.
type Encoder struct {
	opts Options

	width, height uint32
	linearLight   bool
	metadataSet   bool
	sentTile      bool

	bw *bitio.Writer
	fw *frame.Writer
}

// New creates an Encoder. Pass nil to use DefaultOptions.
func New(opts *Options) *Encoder {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Encoder{opts: *opts}
}

// SetMetadata records the image dimensions and light encoding, mirroring
// hyd_set_metadata. It must be called exactly once, before the first
// ProvideOutputBuffer or SendTile call.
func (e *Encoder) SetMetadata(width, height uint32, linearLight bool) error {
	if e.metadataSet || e.sentTile {
		return wrapStatus(StatusAPIError, ErrAPIMisuse)
	}
	e.width, e.height, e.linearLight = width, height, linearLight
	e.metadataSet = true
	return nil
}

// ProvideOutputBuffer hands the encoder a fresh output buffer, mirroring
// hyd_provide_output_buffer. It may be called again after a
// StatusNeedMoreOutput error to resume emission where it left off.
func (e *Encoder) ProvideOutputBuffer(buf []byte) error {
	if !e.metadataSet {
		return wrapStatus(StatusAPIError, ErrNoMetadata)
	}
	if e.bw == nil {
		e.bw = bitio.NewWriter(buf)
		e.fw = frame.NewWriter(e.bw, frame.Metadata{
			Width:       e.width,
			Height:      e.height,
			LinearLight: e.linearLight,
			Level10:     e.opts.Level10,
		})
		return nil
	}
	e.bw.Reset(buf)
	return nil
}

// ReleaseOutputBuffer reports how many bytes were written into the buffer
// supplied by the most recent ProvideOutputBuffer call, mirroring
// hyd_release_output_buffer.
func (e *Encoder) ReleaseOutputBuffer() (int, error) {
	if e.bw == nil {
		return 0, wrapStatus(StatusAPIError, ErrNoOutputBuffer)
	}
	return e.bw.Len(), nil
}

func (e *Encoder) statusFor(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bitio.ErrNeedMoreOutput):
		return wrapStatus(StatusNeedMoreOutput, err)
	case errors.Is(err, frame.ErrAPIMisuse):
		return wrapStatus(StatusAPIError, err)
	default:
		return wrapStatus(StatusInternalError, err)
	}
}

// SendTile converts one 256x256-origin tile of uint16 sRGB (or linear, per
// SetMetadata) samples to XYB and encodes it, mirroring hyd_send_tile.
// planes holds row-major R, G, B samples at the given strides.
func (e *Encoder) SendTile(planes [3][]uint16, width, height, rowStride, pixelStride int, tileX, tileY uint32) error {
	if !e.metadataSet {
		return wrapStatus(StatusAPIError, ErrNoMetadata)
	}
	if e.fw == nil {
		return wrapStatus(StatusAPIError, ErrNoOutputBuffer)
	}
	var tile frame.Tile
	colour.PopulateTile16(&tile.XYB, planes, width, height, rowStride, pixelStride, e.linearLight)
	e.sentTile = true
	return e.statusFor(e.fw.SendTile(&tile, tileX, tileY))
}

// SendTile8 is SendTile's 8-bit analogue, mirroring hyd_send_tile8.
func (e *Encoder) SendTile8(planes [3][]uint8, width, height, rowStride, pixelStride int, tileX, tileY uint32) error {
	if !e.metadataSet {
		return wrapStatus(StatusAPIError, ErrNoMetadata)
	}
	if e.fw == nil {
		return wrapStatus(StatusAPIError, ErrNoOutputBuffer)
	}
	var tile frame.Tile
	colour.PopulateTile8(&tile.XYB, planes, width, height, rowStride, pixelStride, e.linearLight)
	e.sentTile = true
	return e.statusFor(e.fw.SendTile(&tile, tileX, tileY))
}

// Flush drains any buffered-but-unwritten frame state, mirroring
// hyd_flush. Call once after the last SendTile/SendTile8.
func (e *Encoder) Flush() error {
	if e.fw == nil {
		return wrapStatus(StatusAPIError, ErrNoOutputBuffer)
	}
	return e.statusFor(e.fw.Flush())
}
