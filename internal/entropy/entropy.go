// Package entropy implements the JPEG XL entropy stream: symbol
// collection (with optional LZ77 run elision), the cluster-map header,
// and the two finalization paths -- ANS and canonical prefix -- that
// both sections of the codestream use interchangeably.
package entropy

import (
	"errors"

	"github.com/hydrium-go/jxlenc/internal/ans"
	"github.com/hydrium-go/jxlenc/internal/bitio"
	"github.com/hydrium-go/jxlenc/internal/hybrid"
	"github.com/hydrium-go/jxlenc/internal/mathx"
	"github.com/hydrium-go/jxlenc/internal/prefix"
)

// ErrInternal covers broken invariants: zero distributions, a cluster
// index past the declared cluster count, or a finalize call with no
// symbols sent.
var ErrInternal = errors.New("entropy: internal invariant violated")

var lz77LenConfig = hybrid.Config{SplitExponent: 7, MsbInToken: 0, LsbInToken: 0}

// symbol is one hybridized value pending emission, tagged with the
// cluster (not raw distribution) it belongs to.
type symbol struct {
	cluster     int
	token       uint32
	residue     uint32
	residueBits uint32
}

// Stream collects symbols sent against a fixed set of distributions,
// grouped into clusters, and finalizes them into either an ANS or a
// prefix-coded section. A Stream is used once: construct, send, finalize.
type Stream struct {
	bw *bitio.Writer

	numDists    int
	clusterMap  []int
	numClusters int
	configs     []hybrid.Config

	lz77MinSymbol uint32
	lz77MinLength uint32
	lastSymbol    uint32 // 0 = no pending run; otherwise value+1
	rleCount      uint32

	symbols []symbol

	maxAlphabetSize int
	alphabetSizes   []int
	wroteHeader     bool
}

// NewStream creates an entropy stream over numDists distributions mapped
// to clusters (dense from 0) by clusterMap. If lz77MinSymbol is nonzero,
// an extra cluster is appended to carry LZ77 run-length tokens. Every
// cluster starts with the default hybrid-uint config (4,1,1), or (4,0,0)
// for the LZ77 cluster; override with SetHybridConfig before sending.
func NewStream(bw *bitio.Writer, clusterMap []int, numDists int, lz77MinSymbol uint32) (*Stream, error) {
	if numDists <= 0 {
		return nil, ErrInternal
	}
	s := &Stream{bw: bw, numDists: numDists}
	if lz77MinSymbol != 0 {
		s.lz77MinSymbol = lz77MinSymbol
		s.lz77MinLength = 3
		s.numDists++
	}
	s.clusterMap = make([]int, s.numDists)
	copy(s.clusterMap, clusterMap)
	for _, c := range s.clusterMap[:numDists] {
		if c+1 > s.numClusters {
			s.numClusters = c + 1
		}
	}
	if s.numClusters > s.numDists {
		return nil, ErrInternal
	}
	if lz77MinSymbol != 0 {
		s.clusterMap[s.numDists-1] = s.numClusters
		s.numClusters++
	}

	s.configs = make([]hybrid.Config, s.numClusters)
	s.alphabetSizes = make([]int, s.numClusters)

	lz77Cluster := s.numClusters
	if lz77MinSymbol != 0 {
		lz77Cluster--
	}
	for i := 0; i < lz77Cluster; i++ {
		s.configs[i] = hybrid.Config{SplitExponent: 4, MsbInToken: 1, LsbInToken: 1}
	}
	if lz77MinSymbol != 0 {
		s.configs[s.numClusters-1] = hybrid.Config{SplitExponent: 4, MsbInToken: 0, LsbInToken: 0}
	}

	return s, nil
}

// SetHybridConfig overrides the hybrid-uint config for clusters
// [fromCluster, toCluster); toCluster == 0 means "through the end".
func (s *Stream) SetHybridConfig(fromCluster, toCluster int, cfg hybrid.Config) error {
	if toCluster != 0 && fromCluster >= toCluster {
		return ErrInternal
	}
	for j := fromCluster; (toCluster == 0 || j < toCluster) && j < s.numClusters; j++ {
		s.configs[j] = cfg
	}
	return nil
}

func hybridize(value uint32, cfg hybrid.Config) symbol {
	sym := hybrid.Hybridize(value, cfg)
	return symbol{token: sym.Token, residue: sym.Residue, residueBits: sym.ResidueBits}
}

func (s *Stream) sendHybridized(sym symbol) {
	s.symbols = append(s.symbols, sym)
	if !s.wroteHeader {
		if int(sym.token)+1 > s.maxAlphabetSize {
			s.maxAlphabetSize = int(sym.token) + 1
		}
		if int(sym.token)+1 > s.alphabetSizes[sym.cluster] {
			s.alphabetSizes[sym.cluster] = int(sym.token) + 1
		}
	}
}

func (s *Stream) sendEntropySymbol0(dist int, value uint32, extra *hybrid.Config) error {
	if dist < 0 || dist >= len(s.clusterMap) {
		return ErrInternal
	}
	cluster := s.clusterMap[dist]
	cfg := s.configs[cluster]
	if extra != nil {
		cfg = *extra
	}
	sym := hybridize(value, cfg)
	sym.cluster = cluster
	s.sendHybridized(sym)
	return nil
}

func (s *Stream) flushLZ77(dist int) error {
	lastSymbol := s.lastSymbol - 1

	if s.rleCount > s.lz77MinLength {
		repeatCount := s.rleCount - s.lz77MinLength
		sym := hybridize(repeatCount, lz77LenConfig)
		sym.cluster = s.clusterMap[dist]
		sym.token += s.lz77MinSymbol
		s.sendHybridized(sym)
		if err := s.sendEntropySymbol0(s.numClusters-1, 0, nil); err != nil {
			return err
		}
	} else if s.lastSymbol != 0 {
		for k := uint32(0); k < s.rleCount; k++ {
			if err := s.sendEntropySymbol0(dist, lastSymbol, nil); err != nil {
				return err
			}
		}
	}

	s.rleCount = 0
	return nil
}

// SendSymbol hybridizes value under dist's cluster config and appends it
// to the stream, applying LZ77 run-length elision first if enabled.
func (s *Stream) SendSymbol(dist int, value uint32) error {
	if s.lz77MinSymbol == 0 {
		return s.sendEntropySymbol0(dist, value, nil)
	}

	if s.lastSymbol == value+1 {
		s.rleCount++
		if s.rleCount < 128 {
			return nil
		}
		s.rleCount--
	}

	if err := s.flushLZ77(dist); err != nil {
		return err
	}
	s.lastSymbol = value + 1
	return s.sendEntropySymbol0(dist, value, nil)
}

func writeHybridUintConfig(bw *bitio.Writer, cfg hybrid.Config, logAlphabetSize int) error {
	if err := bw.Write(uint64(cfg.SplitExponent), uint(mathx.CeilLog2(uint64(1+logAlphabetSize)))); err != nil {
		return err
	}
	if int(cfg.SplitExponent) == logAlphabetSize {
		return nil
	}
	if err := bw.Write(uint64(cfg.MsbInToken), uint(mathx.CeilLog2(uint64(1+cfg.SplitExponent)))); err != nil {
		return err
	}
	return bw.Write(uint64(cfg.LsbInToken), uint(mathx.CeilLog2(uint64(1+cfg.SplitExponent-cfg.MsbInToken))))
}

func (s *Stream) writeClusterMap() error {
	if s.numDists == 1 {
		return nil
	}

	nbits := mathx.CeilLog2(uint64(s.numClusters))

	if nbits <= 3 && s.numDists*nbits <= 32 {
		if err := s.bw.WriteBool(true); err != nil {
			return err
		}
		if err := s.bw.Write(uint64(nbits), 2); err != nil {
			return err
		}
		for i := 0; i < s.numDists; i++ {
			if err := s.bw.Write(uint64(s.clusterMap[i]), uint(nbits)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := s.bw.WriteBool(false); err != nil {
		return err
	}
	if err := s.bw.WriteBool(true); err != nil { // use_mtf = true
		return err
	}

	nested, err := NewStream(s.bw, []int{0}, 1, 0)
	if err != nil {
		return err
	}
	if err := nested.SetHybridConfig(0, 0, hybrid.Config{SplitExponent: 4, MsbInToken: 1, LsbInToken: 0}); err != nil {
		return err
	}

	var mtf [256]uint8
	for i := range mtf {
		mtf[i] = uint8(i)
	}
	for j := 0; j < s.numDists; j++ {
		var index uint8
		for k := 0; k < 256; k++ {
			if mtf[k] == uint8(s.clusterMap[j]) {
				index = uint8(k)
				break
			}
		}
		if err := nested.SendSymbol(0, uint32(index)); err != nil {
			return err
		}
		if index != 0 {
			value := mtf[index]
			copy(mtf[1:1+index], mtf[:index])
			mtf[0] = value
		}
	}

	return nested.FinalizePrefix()
}

// headerCommon writes the shared preamble both backends emit: LZ77
// params, the cluster map, the "prefix codes?" bit, and every cluster's
// hybrid-uint config, then populates the frequency table from the
// symbols collected so far.
func (s *Stream) headerCommon(prefixCodes bool) (logAlphabetSize int, frequencies [][]uint32, err error) {
	logAlphabetSize = mathx.CeilLog2(uint64(s.maxAlphabetSize))
	if logAlphabetSize < 5 {
		logAlphabetSize = 5
	}

	if err = s.bw.WriteBool(s.lz77MinSymbol != 0); err != nil {
		return
	}
	if s.lz77MinSymbol != 0 {
		if err = s.flushLZ77(0); err != nil {
			return
		}
		if err = s.bw.WriteU32([4]uint32{224, 512, 4096, 8}, [4]uint32{0, 0, 0, 15}, s.lz77MinSymbol); err != nil {
			return
		}
		if err = s.bw.WriteU32([4]uint32{3, 4, 5, 9}, [4]uint32{0, 0, 2, 8}, s.lz77MinLength); err != nil {
			return
		}
		if err = writeHybridUintConfig(s.bw, lz77LenConfig, 8); err != nil {
			return
		}
	}

	if err = s.writeClusterMap(); err != nil {
		return
	}

	if err = s.bw.WriteBool(prefixCodes); err != nil {
		return
	}
	if !prefixCodes {
		if err = s.bw.Write(uint64(logAlphabetSize-5), 2); err != nil {
			return
		}
	}

	for i := 0; i < s.numClusters; i++ {
		cfgAlphabet := logAlphabetSize
		if prefixCodes {
			cfgAlphabet = 15
		}
		if err = writeHybridUintConfig(s.bw, s.configs[i], cfgAlphabet); err != nil {
			return
		}
	}

	frequencies = make([][]uint32, s.numClusters)
	for i := range frequencies {
		frequencies[i] = make([]uint32, s.maxAlphabetSize)
	}
	for _, sym := range s.symbols {
		frequencies[sym.cluster][sym.token]++
	}

	return logAlphabetSize, frequencies, nil
}

// FinalizeANS writes the stream using the ANS backend: per-cluster
// normalized frequencies and alias tables, then the reverse-order state
// machine's forward-order bitstream.
func (s *Stream) FinalizeANS() error {
	if len(s.symbols) == 0 {
		return ErrInternal
	}

	maxToken := 0
	for _, cfg := range s.configs {
		token := int(hybrid.MaxToken(cfg))
		if token > maxToken {
			maxToken = token
		}
	}
	if maxToken+1 > s.maxAlphabetSize {
		s.maxAlphabetSize = maxToken + 1
	}

	_, frequencies, err := s.headerCommon(false)
	if err != nil {
		return err
	}

	logAlphabetSize := mathx.CeilLog2(uint64(s.maxAlphabetSize))
	if logAlphabetSize < 5 {
		logAlphabetSize = 5
	}

	aliasTables := make([][]ans.AliasEntry, s.numClusters)
	for i := 0; i < s.numClusters; i++ {
		uniq, err := ans.WriteFrequencies(s.bw, frequencies[i])
		if err != nil {
			return err
		}
		table, err := ans.BuildAliasTable(frequencies[i], s.maxAlphabetSize, logAlphabetSize, uniq)
		if err != nil {
			return err
		}
		aliasTables[i] = table
	}

	s.wroteHeader = true

	ansSymbols := make([]ans.Symbol, len(s.symbols))
	for i, sym := range s.symbols {
		ansSymbols[i] = ans.Symbol{
			ClusterIndex: sym.cluster,
			Token:        sym.token,
			Residue:      sym.residue,
			ResidueBits:  sym.residueBits,
		}
	}
	return ans.WriteSymbols(s.bw, ansSymbols, frequencies, aliasTables, s.maxAlphabetSize)
}

// FinalizePrefix writes the stream using the canonical-prefix backend.
func (s *Stream) FinalizePrefix() error {
	if len(s.symbols) == 0 {
		return ErrInternal
	}

	_, frequencies, err := s.headerCommon(true)
	if err != nil {
		return err
	}

	for i := 0; i < s.numClusters; i++ {
		if s.alphabetSizes[i] <= 1 {
			if err := s.bw.WriteBool(false); err != nil {
				return err
			}
			continue
		}
		if err := s.bw.WriteBool(true); err != nil {
			return err
		}
		n := mathx.FloorLog2(uint64(s.alphabetSizes[i] - 1))
		if err := s.bw.Write(uint64(n), 4); err != nil {
			return err
		}
		if err := s.bw.Write(uint64(s.alphabetSizes[i]-1), uint(n)); err != nil {
			return err
		}
	}

	vlcTables := make([][]prefix.Element, s.numClusters)
	for i := 0; i < s.numClusters; i++ {
		if s.alphabetSizes[i] <= 1 {
			continue
		}
		lengths, err := prefix.BuildTree(frequencies[i][:s.alphabetSizes[i]], 15)
		if err != nil {
			return err
		}

		var tokens [4]prefix.Element
		nsym := 0
		for j, l := range lengths {
			if l != 0 {
				if nsym < 4 {
					tokens[nsym] = prefix.Element{Symbol: uint32(j), Length: l}
				}
				nsym++
			}
		}

		if nsym > 4 {
			if err := prefix.WriteComplexLengths(s.bw, lengths); err != nil {
				return err
			}
		} else {
			if nsym == 0 {
				nsym = 1
				tokens[0] = prefix.Element{Symbol: uint32(s.alphabetSizes[i] - 1)}
			}
			if err := s.bw.Write(1, 2); err != nil { // hskip = 1
				return err
			}
			if err := s.bw.Write(uint64(nsym-1), 2); err != nil {
				return err
			}
			logAlphabet := mathx.CeilLog2(uint64(s.alphabetSizes[i]))
			used := tokens[:nsym]
			if nsym > 1 {
				sortTokensBySymbol(tokens[:4])
				used = tokens[:4][:nsym]
			}
			for _, t := range used {
				if err := s.bw.Write(uint64(t.Symbol), uint(logAlphabet)); err != nil {
					return err
				}
			}
			if nsym == 4 {
				if err := s.bw.WriteBool(tokens[3].Length == 3); err != nil {
					return err
				}
			}
		}

		table, err := prefix.BuildTable(lengths)
		if err != nil {
			return err
		}
		vlcTables[i] = table
	}

	s.wroteHeader = true

	for _, sym := range s.symbols {
		elem := vlcTables[sym.cluster][sym.token]
		if err := prefix.Write(s.bw, elem, sym.residue, sym.residueBits); err != nil {
			return err
		}
	}

	return nil
}

func sortTokensBySymbol(tokens []prefix.Element) {
	// Called with exactly 4 slots; only the first nsym carry a real
	// length, the rest are zero-value padding that sorts to the tail.
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && compareElementsBySymbol(tokens[j], tokens[j-1]) < 0; j-- {
			tokens[j], tokens[j-1] = tokens[j-1], tokens[j]
		}
	}
}

func compareElementsBySymbol(a, b prefix.Element) int {
	if a.Length == 0 && b.Length == 0 {
		if a.Symbol < b.Symbol {
			return -1
		}
		if a.Symbol > b.Symbol {
			return 1
		}
		return 0
	}
	if b.Length == 0 {
		return -1
	}
	if a.Length == 0 {
		return 1
	}
	if a.Symbol < b.Symbol {
		return -1
	}
	if a.Symbol > b.Symbol {
		return 1
	}
	return 0
}
