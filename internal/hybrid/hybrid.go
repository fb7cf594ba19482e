// Package hybrid implements the hybrid-integer codec: splitting a 32-bit
// symbol into a small-alphabet "token" plus a raw-bit "residue" tail, per
// a (split_exponent, msb_in_token, lsb_in_token) configuration triple
// shared by a whole distribution cluster.
package hybrid

import "github.com/hydrium-go/jxlenc/internal/mathx"

// Config is the per-cluster hybrid-integer configuration.
type Config struct {
	SplitExponent uint32
	MsbInToken    uint32
	LsbInToken    uint32
}

// Symbol is the result of hybridizing a value: the distribution-coded
// token, and a residue of ResidueBits raw bits (ResidueBits may be 0).
type Symbol struct {
	Token       uint32
	Residue     uint32
	ResidueBits uint32
}

// Hybridize splits symbol according to cfg. For symbol < 2^SplitExponent
// the token is the symbol itself and the residue is empty.
func Hybridize(symbol uint32, cfg Config) Symbol {
	split := uint32(1) << cfg.SplitExponent
	if symbol < split {
		return Symbol{Token: symbol}
	}
	n := uint32(mathx.FloorLog2(uint64(symbol))) - cfg.LsbInToken - cfg.MsbInToken

	low := symbol & (mask(cfg.LsbInToken))
	symbol >>= cfg.LsbInToken

	residue := symbol & mask(n)
	symbol >>= n

	high := symbol & mask(cfg.MsbInToken)

	token := split + (low | (high << cfg.LsbInToken) |
		((n - cfg.SplitExponent + cfg.LsbInToken + cfg.MsbInToken) << (cfg.MsbInToken + cfg.LsbInToken)))

	return Symbol{Token: token, Residue: residue, ResidueBits: n}
}

// MaxToken returns the largest possible token value cfg can ever produce
// for a 32-bit input symbol -- used to size the alphabet of a cluster
// before any value has actually been observed.
func MaxToken(cfg Config) uint32 {
	// The worst case is symbol = 0xFFFFFFFF; floor(log2) = 31.
	n := uint32(31) - cfg.LsbInToken - cfg.MsbInToken
	split := uint32(1) << cfg.SplitExponent
	low := mask(cfg.LsbInToken)
	high := mask(cfg.MsbInToken)
	return split + (low | (high << cfg.LsbInToken) |
		((n - cfg.SplitExponent + cfg.LsbInToken + cfg.MsbInToken) << (cfg.MsbInToken + cfg.LsbInToken)))
}

func mask(bits uint32) uint32 {
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << bits) - 1
}
