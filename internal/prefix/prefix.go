// Package prefix builds depth-bounded canonical Huffman tables and writes
// them in the JPEG XL two-level meta-Huffman format.
//
// The tree builder operates on a flat arena of frequency entries rather
// than a heap of owning pointers: every merge step picks two entries from
// a contiguous live window and swaps them into the next two arena slots,
// so parent/child links are always arena-local array indices with a
// lifetime equal to the arena itself (see DESIGN.md, "cyclic structures").
package prefix

import (
	"errors"
	"sort"

	"github.com/hydrium-go/jxlenc/internal/bitio"
	"github.com/hydrium-go/jxlenc/internal/mathx"
)

// ErrInternal signals a broken invariant: the frequency table had no two
// eligible entries to merge, or a canonical assignment did not consume
// exactly the full code space.
var ErrInternal = errors.New("prefix: internal invariant violated")

// entry is one arena slot: a leaf (token != 0) or an internal node.
type entry struct {
	token     int32 // 1+index for leaves, 0 for internal nodes
	frequency uint32
	depth     int32
	maxDepth  int32
	left      int32 // arena index+1, 0 = none
	right     int32
}

func compare(a, b *entry) int {
	if a.frequency != b.frequency {
		if b.frequency == 0 {
			return -1
		}
		if a.frequency == 0 {
			return 1
		}
		if a.frequency < b.frequency {
			return -1
		}
		return 1
	}
	if b.token == 0 {
		return -1
	}
	if a.token == 0 {
		return 1
	}
	return int(a.token - b.token)
}

func collect(arena []entry, idx int32) int32 {
	if idx == 0 {
		return 0
	}
	e := &arena[idx-1]
	e.depth++
	left := collect(arena, e.left)
	right := collect(arena, e.right)
	e.maxDepth = int32(mathx.Max(int(e.depth), mathx.Max(int(left), int(right))))
	return e.maxDepth
}

// BuildTree computes a canonical code-length array for the given
// frequency histogram, bounding every leaf's depth to maxDepth (pass < 0
// to use ceil(log2(alphabetSize))).
func BuildTree(frequencies []uint32, maxDepth int32) ([]uint32, error) {
	alphabetSize := uint32(len(frequencies))
	lengths := make([]uint32, alphabetSize)
	if alphabetSize == 0 {
		return lengths, nil
	}
	if alphabetSize == 1 {
		lengths[0] = 0
		return lengths, nil
	}

	arena := make([]entry, 2*alphabetSize-1)
	for token := uint32(0); token < alphabetSize; token++ {
		arena[token].frequency = frequencies[token]
		arena[token].token = int32(1 + token)
	}

	if maxDepth < 0 {
		maxDepth = int32(mathx.CeilLog2(uint64(alphabetSize)))
	}

	for k := uint32(0); k < alphabetSize-1; k++ {
		var nz int32
		for j := 2 * k; j < alphabetSize+k; j++ {
			if arena[j].frequency != 0 {
				nz++
			}
		}
		target := maxDepth
		if nz > 1 {
			target = maxDepth - int32(mathx.CeilLog2(uint64(nz-1)))
		}

		var smallest, second *entry
		for j := 2 * k; j < alphabetSize+k; j++ {
			e := &arena[j]
			if e.maxDepth >= target {
				continue
			}
			if smallest == nil || compare(e, smallest) < 0 {
				second = smallest
				smallest = e
			} else if second == nil || compare(e, second) < 0 {
				second = e
			}
		}
		if smallest == nil || second == nil {
			return nil, ErrInternal
		}
		if second.frequency == 0 {
			break
		}

		arena[2*k], *smallest = *smallest, arena[2*k]
		smallest = &arena[2*k]
		arena[2*k+1], *second = *second, arena[2*k+1]
		second = &arena[2*k+1]

		parent := &arena[alphabetSize+k]
		parent.frequency = smallest.frequency + second.frequency
		parent.left = int32(2*k) + 1
		parent.right = int32(2*k+1) + 1
		collect(arena, int32(alphabetSize+k)+1)
	}

	for j := uint32(0); j < 2*alphabetSize-1; j++ {
		if arena[j].token != 0 {
			lengths[arena[j].token-1] = uint32(arena[j].depth)
		}
	}

	return lengths, nil
}

// Element is one entry of a canonical prefix table: the LSB-first emitted
// bit pattern (Symbol) and its bit length.
type Element struct {
	Symbol uint32
	Length uint32
}

// BuildTable assigns canonical LSB-first codes from a code-length array.
// Zero-length (unused) symbols get a zero Element and are skipped.
func BuildTable(lengths []uint32) ([]Element, error) {
	alphabetSize := len(lengths)
	pre := make([]Element, alphabetSize)
	for j, l := range lengths {
		pre[j] = Element{Symbol: uint32(j), Length: l}
	}
	sort.SliceStable(pre, func(i, j int) bool {
		li, lj := pre[i].Length, pre[j].Length
		if li != lj {
			if lj == 0 {
				return true
			}
			if li == 0 {
				return false
			}
			return li < lj
		}
		return pre[i].Symbol < pre[j].Symbol
	})

	table := make([]Element, alphabetSize)
	var code uint64
	for _, p := range pre {
		if p.Length == 0 {
			continue
		}
		table[p.Symbol] = Element{
			Symbol: mathx.BitReverse32(uint32(code)),
			Length: p.Length,
		}
		code += uint64(1) << (32 - p.Length)
	}

	if code != 0 && code != (uint64(1)<<32) {
		return nil, ErrInternal
	}
	return table, nil
}

// Write emits a single (symbol, residue) pair using elem for the symbol
// code and residueBits raw bits for residue.
func Write(bw *bitio.Writer, elem Element, residue uint32, residueBits uint32) error {
	if err := bw.Write(uint64(elem.Symbol), uint(elem.Length)); err != nil {
		return err
	}
	return bw.Write(uint64(residue), uint(residueBits))
}

var prefixZigZag = [18]uint32{1, 2, 3, 4, 0, 5, 17, 6, 16, 7, 8, 9, 10, 11, 12, 13, 14, 15}

var level0Table = [6]Element{
	{Symbol: 0, Length: 2}, {Symbol: 7, Length: 4}, {Symbol: 3, Length: 3},
	{Symbol: 2, Length: 2}, {Symbol: 1, Length: 2}, {Symbol: 15, Length: 4},
}

func flushZeroes(bw *bitio.Writer, level1 []Element, numZeroes uint32) error {
	if numZeroes >= 3 {
		var residues [8]uint32
		k := 0
		for numZeroes > 10 {
			next := (numZeroes + 13) / 8
			residues[k] = numZeroes - 8*next + 16
			k++
			numZeroes = next
		}
		residues[k] = numZeroes
		k++
		for l := k - 1; l >= 0; l-- {
			if err := Write(bw, level1[17], residues[l]-3, 3); err != nil {
				return err
			}
		}
	} else {
		for i := uint32(0); i < numZeroes; i++ {
			if err := Write(bw, level1[0], 0, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteComplexLengths writes a per-symbol code-length array through the
// two-level meta-Huffman format (hskip=0): a depth-5 Huffman tree over the
// 18-symbol length alphabet (lengths 0..15 plus the repeat-17 marker),
// followed by the length sequence with runs of zeros collapsed.
func WriteComplexLengths(bw *bitio.Writer, lengths []uint32) error {
	if err := bw.Write(0, 2); err != nil { // hskip = 0
		return err
	}

	var level1Freqs [18]uint32
	var numZeroes uint32
	for _, code := range lengths {
		if code == 0 {
			numZeroes++
			continue
		}
		if numZeroes >= 3 {
			for numZeroes > 10 {
				level1Freqs[17]++
				numZeroes = (numZeroes + 13) / 8
			}
			level1Freqs[17]++
		} else {
			level1Freqs[0] += numZeroes
		}
		numZeroes = 0
		level1Freqs[code]++
	}

	level1Lengths, err := BuildTree(level1Freqs[:], 5)
	if err != nil {
		return err
	}

	var totalCode uint32
	for _, sym := range prefixZigZag {
		code := level1Lengths[sym]
		e := level0Table[code]
		if err := bw.Write(uint64(e.Symbol), uint(e.Length)); err != nil {
			return err
		}
		if code != 0 {
			totalCode += 32 >> code
		}
		if totalCode >= 32 {
			break
		}
	}
	if totalCode != 0 && totalCode != 32 {
		return ErrInternal
	}

	level1Table, err := BuildTable(level1Lengths)
	if err != nil {
		return err
	}

	totalCode = 0
	numZeroes = 0
	for _, code := range lengths {
		if code == 0 {
			numZeroes++
			continue
		}
		if err := flushZeroes(bw, level1Table, numZeroes); err != nil {
			return err
		}
		numZeroes = 0
		if err := Write(bw, level1Table[code], 0, 0); err != nil {
			return err
		}
		totalCode += 32768 >> code
		if totalCode == 32768 {
			break
		}
	}
	return flushZeroes(bw, level1Table, numZeroes)
}
