// Package address normalizes and validates wallet addresses per chain family.
package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/sha3"
)

// Family groups chains that share an address format.
type Family string

const (
	FamilyEVM     Family = "evm"
	FamilyBitcoin Family = "bitcoin"
	FamilySolana  Family = "solana"
	FamilyOther   Family = "other"
)

var ErrInvalidAddress = errors.New("invalid address")

var evmChains = map[string]bool{
	"ethereum":  true,
	"polygon":   true,
	"bsc":       true,
	"arbitrum":  true,
	"optimism":  true,
	"base":      true,
	"avalanche": true,
}

// FamilyOf maps a chain name to its address family.
func FamilyOf(chain string) Family {
	c := strings.ToLower(strings.TrimSpace(chain))
	switch {
	case evmChains[c]:
		return FamilyEVM
	case c == "bitcoin" || c == "btc":
		return FamilyBitcoin
	case c == "solana" || c == "sol":
		return FamilySolana
	default:
		return FamilyOther
	}
}

// Normalizer canonicalizes addresses so that ledger comparisons are exact.
type Normalizer struct {
	btcParams *chaincfg.Params
}

// NewNormalizer builds a Normalizer. network selects the bitcoin params:
// mainnet (default), testnet, regtest or signet.
func NewNormalizer(network string) *Normalizer {
	params := &chaincfg.MainNetParams
	switch strings.ToLower(network) {
	case "testnet", "testnet3":
		params = &chaincfg.TestNet3Params
	case "regtest":
		params = &chaincfg.RegressionNetParams
	case "signet":
		params = &chaincfg.SigNetParams
	}
	return &Normalizer{btcParams: params}
}

// Normalize returns the canonical form of addr for chain. EVM addresses are
// lower-cased hex, bitcoin addresses are re-encoded, solana and unknown
// chains are trimmed and otherwise preserved (base58 is case sensitive).
func (n *Normalizer) Normalize(chain, addr string) (string, error) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch FamilyOf(chain) {
	case FamilyEVM:
		return normalizeEVM(a)
	case FamilyBitcoin:
		decoded, err := btcutil.DecodeAddress(a, n.btcParams)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return decoded.EncodeAddress(), nil
	case FamilySolana:
		if len(base58.Decode(a)) != 32 {
			return "", fmt.Errorf("%w: solana address must decode to 32 bytes", ErrInvalidAddress)
		}
		return a, nil
	default:
		return a, nil
	}
}

func normalizeEVM(a string) (string, error) {
	lower := strings.ToLower(a)
	if !strings.HasPrefix(lower, "0x") || len(lower) != 42 {
		return "", fmt.Errorf("%w: expected 0x-prefixed 20-byte hex", ErrInvalidAddress)
	}
	if _, err := hex.DecodeString(lower[2:]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return lower, nil
}

// Checksum renders an EVM address in EIP-55 mixed case.
func Checksum(addr string) (string, error) {
	lower, err := normalizeEVM(addr)
	if err != nil {
		return "", err
	}
	hexPart := lower[2:]

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexPart))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(hexPart)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 32
		}
	}
	return "0x" + string(out), nil
}

// Equal compares two addresses in their canonical form for chain.
func (n *Normalizer) Equal(chain, a, b string) bool {
	na, errA := n.Normalize(chain, a)
	nb, errB := n.Normalize(chain, b)
	return errA == nil && errB == nil && na == nb
}
