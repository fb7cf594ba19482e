package entropy

import (
	"testing"

	"github.com/hydrium-go/jxlenc/internal/bitio"
)

// TestSendSymbolThenFinalizeANS exercises the common path used throughout
// frame framing: a single-distribution stream of small values, finalized
// through the ANS backend. It only checks that finalization completes
// without an internal-invariant error and without overflowing a
// generously sized buffer -- the ANS and prefix packages carry their own
// round-trip tests for bit-exactness.
func TestSendSymbolThenFinalizeANS(t *testing.T) {
	buf := make([]byte, 4096)
	bw := bitio.NewWriter(buf)
	stream, err := NewStream(bw, []int{0}, 1, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	values := []uint32{0, 1, 2, 0, 0, 3, 5, 0, 1, 1, 2}
	for _, v := range values {
		if err := stream.SendSymbol(0, v); err != nil {
			t.Fatalf("SendSymbol(%d): %v", v, err)
		}
	}
	if err := stream.FinalizeANS(); err != nil {
		t.Fatalf("FinalizeANS: %v", err)
	}
	if bw.Err() != nil {
		t.Fatalf("unexpected overflow: %v", bw.Err())
	}
}

func TestSendSymbolThenFinalizePrefix(t *testing.T) {
	buf := make([]byte, 4096)
	bw := bitio.NewWriter(buf)
	stream, err := NewStream(bw, []int{0}, 1, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	values := []uint32{0, 1, 2, 0, 0, 3, 5, 0, 1, 1, 2}
	for _, v := range values {
		if err := stream.SendSymbol(0, v); err != nil {
			t.Fatalf("SendSymbol(%d): %v", v, err)
		}
	}
	if err := stream.FinalizePrefix(); err != nil {
		t.Fatalf("FinalizePrefix: %v", err)
	}
	if bw.Err() != nil {
		t.Fatalf("unexpected overflow: %v", bw.Err())
	}
}

// TestLZ77RunElision checks that a long run of identical values does not
// grow the symbol buffer linearly -- send_symbol must fold the run into a
// single length token once it exceeds the minimum match length, per
// spec Section 4.7.
func TestLZ77RunElision(t *testing.T) {
	buf := make([]byte, 4096)
	bw := bitio.NewWriter(buf)
	stream, err := NewStream(bw, []int{0}, 1, 512)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := stream.SendSymbol(0, 7); err != nil {
			t.Fatalf("SendSymbol: %v", err)
		}
	}
	if err := stream.FinalizeANS(); err != nil {
		t.Fatalf("FinalizeANS: %v", err)
	}
	// A 50-long run of the same value plus LZ77 run elision should collapse
	// to far fewer than 50 raw symbols in the internal buffer.
	if len(stream.symbols) >= 50 {
		t.Errorf("LZ77 run of 50 produced %d raw symbols, expected elision", len(stream.symbols))
	}
}

// TestClusterMapSimplePath exercises the <=8-cluster "simple" cluster-map
// encoding (spec Section 4.8) via a multi-distribution stream.
func TestClusterMapSimplePath(t *testing.T) {
	buf := make([]byte, 4096)
	bw := bitio.NewWriter(buf)
	clusterMap := []int{0, 1, 2, 0, 1}
	stream, err := NewStream(bw, clusterMap, 5, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	for dist := 0; dist < 5; dist++ {
		if err := stream.SendSymbol(dist, uint32(dist)); err != nil {
			t.Fatalf("SendSymbol: %v", err)
		}
	}
	if err := stream.FinalizeANS(); err != nil {
		t.Fatalf("FinalizeANS: %v", err)
	}
	if bw.Err() != nil {
		t.Fatalf("unexpected overflow: %v", bw.Err())
	}
}

// TestClusterMapMTFPath forces the non-simple MTF cluster-map path (more
// than 8 clusters) and checks it finalizes cleanly through the nested
// prefix stream.
func TestClusterMapMTFPath(t *testing.T) {
	buf := make([]byte, 4096)
	bw := bitio.NewWriter(buf)
	numDists := 10
	clusterMap := make([]int, numDists)
	for i := range clusterMap {
		clusterMap[i] = i // 10 distinct clusters, forces non-simple + MTF
	}
	stream, err := NewStream(bw, clusterMap, numDists, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	for dist := 0; dist < numDists; dist++ {
		if err := stream.SendSymbol(dist, uint32(dist%3)); err != nil {
			t.Fatalf("SendSymbol: %v", err)
		}
	}
	if err := stream.FinalizeANS(); err != nil {
		t.Fatalf("FinalizeANS: %v", err)
	}
	if bw.Err() != nil {
		t.Fatalf("unexpected overflow: %v", bw.Err())
	}
}

func TestFinalizeWithNoSymbolsIsInternalError(t *testing.T) {
	buf := make([]byte, 64)
	bw := bitio.NewWriter(buf)
	stream, err := NewStream(bw, []int{0}, 1, 0)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := stream.FinalizeANS(); err != ErrInternal {
		t.Fatalf("FinalizeANS with no symbols = %v, want ErrInternal", err)
	}
}
