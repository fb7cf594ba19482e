// Package container implements the ISO-BMFF box framing used by JPEG XL's
// "container" (level 10) mode: a signature box, a file-type box, a
// codestream-level box, and an open-ended box that holds the codestream
// itself.
//
// This adapts the teacher's internal/box package (JP2's Box/Type/Header
// idiom) to JXL's much smaller box vocabulary -- four box types instead
// of JP2's full palette/channel-definition/resolution/UUID set, which
// JXL's level-10 mode never uses.
package container

import "encoding/binary"

// Type is a 4-byte box type code, big-endian like JP2's.
type Type uint32

// String returns the 4-character type code.
func (t Type) String() string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(t))
	return string(b)
}

// The box types JPEG XL's level-10 container uses.
const (
	TypeSignature  Type = 0x4A584C20 // "JXL "
	TypeFileType   Type = 0x66747970 // "ftyp"
	TypeJXLLevel   Type = 0x6A786C6C // "jxll"
	TypeCodestream Type = 0x6A786C63 // "jxlc"
)

// signatureMagic is the fixed byte sequence identifying a JPEG XL
// container, chosen (per the ISO-BMFF base spec) to be unambiguous
// against both a bare JPEG XL codestream and common image formats.
var signatureMagic = [4]byte{0x0D, 0x0A, 0x87, 0x0A}

// Box is one ISO-BMFF box: a 4-byte length (header-inclusive), a 4-byte
// type, and the raw contents. JXL's level-10 boxes are all small enough
// that the 64-bit extended-length form never applies here.
type Box struct {
	Type     Type
	Contents []byte
}

// Bytes returns the complete box (header + contents), matching the
// teacher's Box.Bytes shape.
func (b Box) Bytes() []byte {
	out := make([]byte, 8+len(b.Contents))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(b.Contents)))
	binary.BigEndian.PutUint32(out[4:8], uint32(b.Type))
	copy(out[8:], b.Contents)
	return out
}

// openBox returns a box header whose length field is 0, meaning (per
// ISO-BMFF) "extends to the end of the file" -- used for the jxlc box,
// which is immediately followed by the codestream bytes with no box
// wrapper of their own.
func openBox(t Type) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint32(out[4:8], uint32(t))
	return out
}

// Level10Preamble returns the fixed 49-byte container preamble: the
// signature box, an ftyp box naming "jxl " as both major brand and sole
// compatible brand, a jxll box carrying the single profile-level byte
// 0x0A, and an open jxlc box header. Codestream bytes are appended by
// the caller immediately after.
func Level10Preamble() []byte {
	sig := Box{Type: TypeSignature, Contents: signatureMagic[:]}.Bytes()

	ftypContents := make([]byte, 12)
	binary.BigEndian.PutUint32(ftypContents[0:4], uint32(TypeJXLLevel0Brand))
	// minor version left at 0
	binary.BigEndian.PutUint32(ftypContents[8:12], uint32(TypeJXLLevel0Brand))
	ftyp := Box{Type: TypeFileType, Contents: ftypContents}.Bytes()

	jxll := Box{Type: TypeJXLLevel, Contents: []byte{0x0A}}.Bytes()

	jxlc := openBox(TypeCodestream)

	out := make([]byte, 0, len(sig)+len(ftyp)+len(jxll)+len(jxlc))
	out = append(out, sig...)
	out = append(out, ftyp...)
	out = append(out, jxll...)
	out = append(out, jxlc...)
	return out
}

// TypeJXLLevel0Brand is the "jxl " brand code used as both ftyp's major
// brand and its sole compatible brand.
const TypeJXLLevel0Brand Type = 0x6A786C20 // "jxl "
