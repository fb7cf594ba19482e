// Package ans implements the asymmetric-numeral-system entropy coder: the
// frequency normalizer, the Vose-style alias-table builder, and the
// reverse-order state machine that produces the final forward-order
// bitstream.
package ans

import (
	"errors"

	"github.com/hydrium-go/jxlenc/internal/bitio"
	"github.com/hydrium-go/jxlenc/internal/mathx"
)

// TableSize is the fixed ANS denominator: every normalized frequency row
// sums to exactly this many "slots".
const TableSize = 1 << 12

// ErrInternal signals a broken invariant in the ANS engine: an alias
// lookup found no covering bucket, which cannot happen for a correctly
// normalized distribution.
var ErrInternal = errors.New("ans: internal invariant violated")

// ansDistPrefixLengths is the fixed 14-entry log-count prefix table used
// by the "flat shape" frequency-row header.
var ansDistPrefixLengths = [14]struct {
	symbol uint32
	length uint32
}{
	{17, 5}, {11, 4}, {15, 4}, {3, 4}, {9, 4}, {7, 4}, {4, 3},
	{2, 3}, {5, 3}, {6, 3}, {0, 3}, {33, 6}, {1, 7}, {65, 7},
}

func writeAnsU8(bw *bitio.Writer, b uint8) error {
	if err := bw.Write(uint64(b&1), 1); err != nil {
		return err
	}
	if b == 0 {
		return nil
	}
	l := mathx.FloorLog2(uint64(b))
	if err := bw.Write(uint64(l), 3); err != nil {
		return err
	}
	return bw.Write(uint64(b), uint(l))
}

// NormalizeFrequencies scales an arbitrary non-negative frequency row in
// place so it sums to exactly TableSize, promoting every originally
// nonzero bucket to at least 1 and shrinking from the top down when the
// scaled total overshoots.
func NormalizeFrequencies(frequencies []uint32) {
	var total uint64
	for _, f := range frequencies {
		total += uint64(f)
	}
	if total == 0 {
		total = 1
	}

	var newTotal uint64
	for k, f := range frequencies {
		scaled := uint32((uint64(f) << 12) / total & 0xFFFF)
		if scaled == 0 && f != 0 {
			scaled = 1
		}
		frequencies[k] = scaled
		newTotal += uint64(scaled)
	}

	j := len(frequencies) - 1
	for newTotal > TableSize {
		diff := newTotal - TableSize
		if diff < uint64(frequencies[j]) {
			frequencies[j] -= uint32(diff)
			newTotal -= diff
			break
		} else if frequencies[j] > 1 {
			newTotal -= uint64(frequencies[j] - 1)
			frequencies[j] = 1
		}
		j--
	}

	frequencies[0] += uint32(TableSize - newTotal)
}

// WriteFrequencies normalizes frequencies in place and writes the
// corresponding ANS frequency-row header (simple single-symbol, simple
// dual-peak, or flat-shape with per-bucket log-count codes). It reports
// whether the row collapsed to a single symbol at index 0, the only case
// the alias-table builder needs to special-case.
func WriteFrequencies(bw *bitio.Writer, frequencies []uint32) (uniqueSymbolZero bool, err error) {
	NormalizeFrequencies(frequencies)

	if frequencies[0] == TableSize {
		if err := bw.Write(0x1, 2); err != nil {
			return false, err
		}
		if err := writeAnsU8(bw, 0); err != nil {
			return false, err
		}
		return true, nil
	}

	if len(frequencies) > 1 && frequencies[0]+frequencies[1] == TableSize {
		if err := bw.Write(0x3, 2); err != nil {
			return false, err
		}
		if err := writeAnsU8(bw, 0); err != nil {
			return false, err
		}
		if err := writeAnsU8(bw, 1); err != nil {
			return false, err
		}
		if err := bw.Write(uint64(frequencies[0]), 12); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := bw.Write(0, 2); err != nil {
		return false, err
	}
	if err := bw.Write(0x7, 3); err != nil {
		return false, err
	}
	if err := bw.Write(0x6, 3); err != nil {
		return false, err
	}
	if err := writeAnsU8(bw, uint8(len(frequencies)-3)); err != nil {
		return false, err
	}

	logCounts := make([]int, len(frequencies))
	omitPos, omitLog := 0, 0
	for k, f := range frequencies {
		if f != 0 {
			logCounts[k] = 1 + mathx.FloorLog2(uint64(f))
		}
		e := ansDistPrefixLengths[logCounts[k]]
		if err := bw.Write(uint64(e.symbol), uint(e.length)); err != nil {
			return false, err
		}
		if logCounts[k] > omitLog {
			omitLog = logCounts[k]
			omitPos = k
		}
	}
	for k, f := range frequencies {
		if k == omitPos || logCounts[k] <= 1 {
			continue
		}
		if err := bw.Write(uint64(f), uint(logCounts[k]-1)); err != nil {
			return false, err
		}
	}

	return false, nil
}

// AliasEntry is the per-token list of alias buckets: Cutoffs[i] >= 0 marks
// a filled slot (the DESIGN.md-documented three-array layout in place of
// the original's packed, sentinel-delimited single allocation).
type AliasEntry struct {
	Cutoffs  []int32
	Offsets  []uint32
	Original []uint32
}

// BuildAliasTable constructs the Vose-style alias mapping for a
// normalized frequency row of maxAlphabetSize real symbols, spread across
// 2^logAlphabetSize buckets. uniqueSymbolZero must match the value
// WriteFrequencies returned for this row.
func BuildAliasTable(frequencies []uint32, maxAlphabetSize int, logAlphabetSize int, uniqueSymbolZero bool) ([]AliasEntry, error) {
	logBucketSize := 12 - logAlphabetSize
	bucketSize := uint32(1) << uint(logBucketSize)
	tableSize := uint32(1) << uint(logAlphabetSize)

	symbols := make([]uint32, tableSize)
	cutoffs := make([]int32, tableSize)
	offsets := make([]uint32, tableSize)
	counts := make([]int, maxAlphabetSize)

	if uniqueSymbolZero {
		for i := uint32(0); i < tableSize; i++ {
			symbols[i] = 0
			offsets[i] = i * bucketSize
		}
		counts[0] = int(tableSize)
	} else {
		underfull := make([]uint32, 0, tableSize)
		overfull := make([]uint32, 0, tableSize)
		for pos := 0; pos < maxAlphabetSize; pos++ {
			cutoffs[pos] = int32(frequencies[pos])
			switch {
			case uint32(cutoffs[pos]) < bucketSize:
				underfull = append(underfull, uint32(pos))
			case uint32(cutoffs[pos]) > bucketSize:
				overfull = append(overfull, uint32(pos))
			}
		}
		for i := uint32(maxAlphabetSize); i < tableSize; i++ {
			underfull = append(underfull, i)
		}

		for len(overfull) > 0 {
			if len(underfull) == 0 {
				return nil, ErrInternal
			}
			u := underfull[len(underfull)-1]
			underfull = underfull[:len(underfull)-1]
			o := overfull[len(overfull)-1]
			overfull = overfull[:len(overfull)-1]

			by := int32(bucketSize) - cutoffs[u]
			cutoffs[o] -= by
			offsets[u] = uint32(cutoffs[o])
			symbols[u] = o

			switch {
			case uint32(cutoffs[o]) < bucketSize:
				underfull = append(underfull, o)
			case uint32(cutoffs[o]) > bucketSize:
				overfull = append(overfull, o)
			}
		}

		for sym := uint32(0); sym < tableSize; sym++ {
			if uint32(cutoffs[sym]) == bucketSize {
				symbols[sym] = sym
				cutoffs[sym] = 0
				offsets[sym] = 0
			} else {
				offsets[sym] -= uint32(cutoffs[sym])
			}
			counts[symbols[sym]]++
		}
	}

	table := make([]AliasEntry, maxAlphabetSize)
	for sym := 0; sym < maxAlphabetSize; sym++ {
		n := counts[sym] + 1
		e := AliasEntry{
			Cutoffs:  make([]int32, n),
			Offsets:  make([]uint32, n),
			Original: make([]uint32, n),
		}
		for i := 1; i < n; i++ {
			e.Cutoffs[i] = -1
		}
		e.Cutoffs[0] = cutoffs[sym]
		e.Offsets[0] = 0
		e.Original[0] = uint32(sym)
		table[sym] = e
	}

	for i := uint32(0); i < tableSize; i++ {
		s := symbols[i]
		entry := &table[s]
		j := 1
		for entry.Cutoffs[j] >= 0 {
			j++
		}
		entry.Cutoffs[j] = cutoffs[i]
		entry.Offsets[j] = offsets[i]
		entry.Original[j] = i
	}

	return table, nil
}

func lookup(entry *AliasEntry, offset uint32, posMask uint32) (uint32, uint32, error) {
	for j := 0; j < len(entry.Cutoffs); j++ {
		pos := offset - entry.Offsets[j]
		k := int32(pos - uint32(entry.Cutoffs[j]))
		if pos <= posMask {
			if (j > 0 && k >= 0) || (j == 0 && k < 0) {
				return entry.Original[j], pos, nil
			}
		}
	}
	return 0, 0, ErrInternal
}

// Symbol is one hybrid-coded entry scheduled for ANS emission: a token
// (indexing both the frequency row and the alias table for its cluster)
// plus a raw residue tail.
type Symbol struct {
	ClusterIndex int
	Token        uint32
	Residue      uint32
	ResidueBits  uint32
}

// stateFlush is a scheduled 16-bit state emission, recorded at the symbol
// index it must be written no later than.
type stateFlush struct {
	symbolIndex int
	value       uint16
}

// WriteSymbols drives the ANS reverse-order state machine over symbols
// (processed last-to-first) and then emits the forward-order bitstream:
// each symbol's residue interleaved with the state flushes the reverse
// pass scheduled for it.
//
// frequencies and aliasTables are indexed [clusterIndex][token].
func WriteSymbols(bw *bitio.Writer, symbols []Symbol, frequencies [][]uint32, aliasTables [][]AliasEntry, maxAlphabetSize int) error {
	logAlphabetSize := mathx.CeilLog2(uint64(maxAlphabetSize))
	if logAlphabetSize < 5 {
		logAlphabetSize = 5
	}
	logBucketSize := uint(12 - logAlphabetSize)
	posMask := (uint32(1) << logBucketSize) - 1

	flushes := make([]stateFlush, 0, len(symbols)+2)

	state := uint32(0x130000)
	for p := len(symbols) - 1; p >= 0; p-- {
		sym := symbols[p]
		freqRow := frequencies[sym.ClusterIndex]
		freq := freqRow[sym.Token]

		if (state >> 20) >= freq {
			flushes = append(flushes, stateFlush{p, uint16(state & 0xFFFF)})
			state >>= 16
		}

		offset := state % freq
		entry := &aliasTables[sym.ClusterIndex][sym.Token]
		i, pos, err := lookup(entry, offset, posMask)
		if err != nil {
			return err
		}
		state = ((state / freq) << 12) | (i << logBucketSize) | pos
	}
	flushes = append(flushes, stateFlush{0, uint16((state >> 16) & 0xFFFF)})
	flushes = append(flushes, stateFlush{0, uint16(state & 0xFFFF)})

	// flushes was built in reverse chronological order (last token first);
	// reverse it once so draining in forward order pops the earliest-due
	// flush first.
	for i, j := 0, len(flushes)-1; i < j; i, j = i+1, j-1 {
		flushes[i], flushes[j] = flushes[j], flushes[i]
	}

	fi := 0
	for p := range symbols {
		for fi < len(flushes) && flushes[fi].symbolIndex <= p {
			if err := bw.Write(uint64(flushes[fi].value), 16); err != nil {
				return err
			}
			fi++
		}
		s := symbols[p]
		if err := bw.Write(uint64(s.Residue), uint(s.ResidueBits)); err != nil {
			return err
		}
	}
	return nil
}
