package ans

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hydrium-go/jxlenc/internal/bitio"
)

// bitReader is the same minimal LSB-first reference reader used by the
// bitio tests, duplicated here so this package's tests stay self-contained.
type bitReader struct {
	buf   []byte
	pos   int
	acc   uint64
	nbits uint
}

func (r *bitReader) fill() {
	for r.nbits <= 56 && r.pos < len(r.buf) {
		r.acc |= uint64(r.buf[r.pos]) << r.nbits
		r.pos++
		r.nbits += 8
	}
}

func (r *bitReader) read(n uint) uint64 {
	if n == 0 {
		return 0
	}
	r.fill()
	v := r.acc & ((uint64(1) << n) - 1)
	r.acc >>= n
	r.nbits -= n
	return v
}

func TestNormalizeFrequenciesSumsToTableSize(t *testing.T) {
	cases := [][]uint32{
		{5, 3, 0, 1},
		{1},
		{0, 0, 7},
		{1000, 1000, 1000, 1000, 1},
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
	}
	for _, freqs := range cases {
		in := append([]uint32(nil), freqs...)
		NormalizeFrequencies(freqs)
		var total uint32
		for k, f := range freqs {
			total += f
			if in[k] != 0 && f == 0 {
				t.Errorf("case %v: originally-nonzero bucket %d became zero", in, k)
			}
		}
		if total != TableSize {
			t.Errorf("case %v: normalized sum = %d, want %d", in, total, TableSize)
		}
	}
}

func TestNormalizeFrequenciesAllZero(t *testing.T) {
	freqs := []uint32{0, 0, 0}
	NormalizeFrequencies(freqs)
	var total uint32
	for _, f := range freqs {
		total += f
	}
	if total != TableSize {
		t.Fatalf("all-zero input: sum = %d, want %d", total, TableSize)
	}
	if freqs[0] != TableSize {
		t.Fatalf("all-zero input should pile onto index 0, got %v", freqs)
	}
}

// slotInfo is one entry of a physical-slot-indexed decode table: the
// symbol that slot decodes to and its position within that symbol's
// virtual [0,freq) range.
type slotInfo struct {
	symbol        uint32
	virtualOffset uint32
}

// buildFullDecodeTable inverts a token-indexed alias table (as returned by
// BuildAliasTable and consumed by lookup during encoding) into a
// physical-slot-indexed decode table covering every one of the 2^12
// states exactly once. It re-exercises the package's own lookup
// function, the hot loop spec Section 4.4 calls out as needing to be
// correct for every degenerate case.
func buildFullDecodeTable(table []AliasEntry, freqs []uint32, logAlphabetSize int) []slotInfo {
	logBucketSize := uint(12 - logAlphabetSize)
	posMask := (uint32(1) << logBucketSize) - 1
	decode := make([]slotInfo, 1<<12)
	for sym := range table {
		freq := freqs[sym]
		entry := &table[sym]
		for offset := uint32(0); offset < freq; offset++ {
			i, pos, err := lookup(entry, offset, posMask)
			if err != nil {
				panic(err)
			}
			slot := i<<logBucketSize | pos
			decode[slot] = slotInfo{symbol: uint32(sym), virtualOffset: offset}
		}
	}
	return decode
}

func TestAliasTableCoverage(t *testing.T) {
	cases := []struct {
		name  string
		freqs []uint32
	}{
		{"uniform", []uint32{1024, 1024, 1024, 1024}},
		{"skewed", []uint32{4090, 2, 2, 2}},
		{"single", []uint32{4096, 0, 0, 0}},
		{"two", []uint32{2048, 2048, 0, 0}},
		{"many", []uint32{4096 - 31, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
	}
	for _, c := range cases {
		freqs := append([]uint32(nil), c.freqs...)
		logAlphabetSize := 5
		if len(freqs) > 1<<5 {
			logAlphabetSize = 6
		}
		uniq := freqs[0] == TableSize
		table, err := BuildAliasTable(freqs, len(freqs), logAlphabetSize, uniq)
		if err != nil {
			t.Fatalf("%s: BuildAliasTable: %v", c.name, err)
		}

		decode := buildFullDecodeTable(table, freqs, logAlphabetSize)
		counts := make([]uint32, len(freqs))
		seen := make([][]bool, len(freqs))
		for k, f := range freqs {
			seen[k] = make([]bool, f)
		}
		for slot := 0; slot < len(decode); slot++ {
			d := decode[slot]
			counts[d.symbol]++
			if d.virtualOffset >= uint32(len(seen[d.symbol])) || seen[d.symbol][d.virtualOffset] {
				t.Fatalf("%s: slot %d duplicate/out-of-range virtual offset %d for symbol %d", c.name, slot, d.virtualOffset, d.symbol)
			}
			seen[d.symbol][d.virtualOffset] = true
		}
		for k, want := range c.freqs {
			if counts[k] != want {
				t.Errorf("%s: symbol %d covered by %d states, want %d", c.name, k, counts[k], want)
			}
		}
	}
}

// ansDecoder is a reference ANS reader matching the forward-pass bitstream
// WriteSymbols produces: drain any due state flushes, read num symbols in
// forward order by inverting the (state, freq) -> next-state update.
type ansDecoder struct {
	r     *bitReader
	state uint32
}

func newANSDecoder(buf []byte) *ansDecoder {
	r := &bitReader{buf: buf}
	// The initial state is read as one LSB-first 32-bit value, so its low
	// half comes first in the stream.
	lo := r.read(16)
	hi := r.read(16)
	return &ansDecoder{r: r, state: uint32(hi)<<16 | uint32(lo)}
}

func (d *ansDecoder) readSymbol(decode []slotInfo, freqs []uint32) uint32 {
	idx := d.state & ((1 << 12) - 1)
	info := decode[idx]
	freq := freqs[info.symbol]
	d.state = freq*(d.state>>12) + info.virtualOffset
	if d.state < (1 << 16) {
		d.state = d.state<<16 | uint32(d.r.read(16))
	}
	return info.symbol
}

func TestANSRoundTrip(t *testing.T) {
	symbols := []Symbol{
		{ClusterIndex: 0, Token: 0},
		{ClusterIndex: 0, Token: 2},
		{ClusterIndex: 0, Token: 1},
		{ClusterIndex: 0, Token: 0},
		{ClusterIndex: 0, Token: 3},
		{ClusterIndex: 0, Token: 0},
		{ClusterIndex: 0, Token: 0},
		{ClusterIndex: 0, Token: 1},
	}
	alphabetSize := 4
	freqs := make([]uint32, alphabetSize)
	for _, s := range symbols {
		freqs[s.Token]++
	}
	NormalizeFrequencies(freqs)

	logAlphabetSize := 5
	uniq := freqs[0] == TableSize
	table, err := BuildAliasTable(freqs, alphabetSize, logAlphabetSize, uniq)
	if err != nil {
		t.Fatalf("BuildAliasTable: %v", err)
	}

	buf := make([]byte, 256)
	bw := bitio.NewWriter(buf)
	if err := WriteSymbols(bw, symbols, [][]uint32{freqs}, [][]AliasEntry{table}, alphabetSize); err != nil {
		t.Fatalf("WriteSymbols: %v", err)
	}

	decode := buildFullDecodeTable(table, freqs, logAlphabetSize)
	dec := newANSDecoder(bw.Bytes())
	for i, want := range symbols {
		got := dec.readSymbol(decode, freqs)
		if got != want.Token {
			t.Fatalf("symbol %d: decoded token %d, want %d", i, got, want.Token)
		}
	}
}

func TestWriteFrequenciesSimpleSingle(t *testing.T) {
	buf := make([]byte, 16)
	bw := bitio.NewWriter(buf)
	freqs := []uint32{10, 0, 0}
	uniq, err := WriteFrequencies(bw, freqs)
	if err != nil {
		t.Fatalf("WriteFrequencies: %v", err)
	}
	if !uniq {
		t.Fatalf("expected single-symbol collapse to report uniqueSymbolZero")
	}
	if err := bw.ZeroPadToByte(); err != nil {
		t.Fatalf("ZeroPadToByte: %v", err)
	}
	r := &bitReader{buf: bw.Bytes()}
	if got := r.read(2); got != 0x1 {
		t.Fatalf("leading selector = %#x, want 0x1", got)
	}
}

// TestWriteAnsU8LeadingBitIsRaw pins down the ambiguity spec.md Section 9
// calls out: the older libhydrium writes `!!b` (a boolean nonzero flag) as
// the leading bit, the newer one writes the raw low bit of b. For b <= 1
// and for odd b both agree, but for even b >= 2 they diverge (e.g. b=2 is
// "10": the raw low bit is 0, the boolean flag is 1). This encoder must
// match the newer behavior since WriteFrequencies feeds it arbitrary
// alphabet-size-derived values, not just 0/1.
func TestWriteAnsU8LeadingBitIsRaw(t *testing.T) {
	for _, b := range []uint8{0, 1, 2, 3, 4, 5} {
		buf := make([]byte, 8)
		bw := bitio.NewWriter(buf)
		if err := writeAnsU8(bw, b); err != nil {
			t.Fatalf("b=%d: writeAnsU8: %v", b, err)
		}
		if err := bw.ZeroPadToByte(); err != nil {
			t.Fatalf("b=%d: ZeroPadToByte: %v", b, err)
		}
		r := &bitReader{buf: bw.Bytes()}
		want := uint64(b & 1)
		if got := r.read(1); got != want {
			t.Errorf("b=%d: leading bit = %d, want raw low bit %d", b, got, want)
		}
	}
}

// TestBuildAliasTableEvenSplitStructural checks the exact Vose-table
// shape for a trivial even two-symbol split against a hand-built
// expectation, via cmp.Diff rather than a manual field-by-field walk.
func TestBuildAliasTableEvenSplitStructural(t *testing.T) {
	freqs := []uint32{2048, 2048}
	table, err := BuildAliasTable(freqs, 2, 1, false)
	if err != nil {
		t.Fatalf("BuildAliasTable: %v", err)
	}
	want := []AliasEntry{
		{Cutoffs: []int32{0, 0}, Offsets: []uint32{0, 0}, Original: []uint32{0, 0}},
		{Cutoffs: []int32{0, 0}, Offsets: []uint32{0, 0}, Original: []uint32{1, 1}},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("alias table mismatch (-want +got):\n%s", diff)
	}
}

// TestBuildAliasTableDeterministic rebuilds the same skewed distribution
// twice and asserts the resulting tables are structurally identical,
// again via cmp.Diff instead of a manual comparison loop.
func TestBuildAliasTableDeterministic(t *testing.T) {
	freqs := []uint32{4090, 2, 2, 2}
	a, err := BuildAliasTable(append([]uint32(nil), freqs...), len(freqs), 5, false)
	if err != nil {
		t.Fatalf("BuildAliasTable (a): %v", err)
	}
	b, err := BuildAliasTable(append([]uint32(nil), freqs...), len(freqs), 5, false)
	if err != nil {
		t.Fatalf("BuildAliasTable (b): %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two builds of the same distribution diverged (-first +second):\n%s", diff)
	}
}

func TestWriteFrequenciesSimpleDualPeak(t *testing.T) {
	buf := make([]byte, 16)
	bw := bitio.NewWriter(buf)
	freqs := []uint32{5, 5, 0, 0}
	uniq, err := WriteFrequencies(bw, freqs)
	if err != nil {
		t.Fatalf("WriteFrequencies: %v", err)
	}
	if uniq {
		t.Fatalf("dual-peak distribution should not report uniqueSymbolZero")
	}
	r := &bitReader{buf: bw.Bytes()}
	if got := r.read(2); got != 0x3 {
		t.Fatalf("leading selector = %#x, want 0x3", got)
	}
}
