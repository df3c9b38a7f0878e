package identifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Kind is the classification of a user-supplied block identifier. The
// classifier is pure: it never touches the network, it only drives
// validation and targeted guidance messages.
type Kind string

const (
	Kind_BlockNumber       Kind = "block_number"
	Kind_HexBlockNumber    Kind = "hex_block_number"
	Kind_BlockTag          Kind = "block_tag"
	Kind_BlockHashOrTxHash Kind = "block_hash_or_tx_hash"
	Kind_ContractAddress   Kind = "contract_address"
	Kind_Invalid           Kind = "invalid"
)

var blockTags = map[string]bool{
	"latest":    true,
	"pending":   true,
	"earliest":  true,
	"safe":      true,
	"finalized": true,
}

var (
	decimalPattern = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	hashPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Classify buckets an identifier by shape. Priority order matters: the
// 42- and 66-character hex forms are matched before the generic hex
// number so an address or hash is never mistaken for a block number.
func Classify(identifier any) Kind {
	switch v := identifier.(type) {
	case int:
		return Kind_BlockNumber
	case int64:
		return Kind_BlockNumber
	case uint64:
		return Kind_BlockNumber
	case string:
		return classifyString(v)
	default:
		return Kind_Invalid
	}
}

func classifyString(s string) Kind {
	s = strings.TrimSpace(s)
	if s == "" {
		return Kind_Invalid
	}
	if blockTags[strings.ToLower(s)] {
		return Kind_BlockTag
	}
	if addressPattern.MatchString(s) {
		return Kind_ContractAddress
	}
	if hashPattern.MatchString(s) {
		return Kind_BlockHashOrTxHash
	}
	if decimalPattern.MatchString(s) || strings.HasPrefix(s, "-") && decimalPattern.MatchString(s[1:]) {
		return Kind_BlockNumber
	}
	if hexPattern.MatchString(s) {
		return Kind_HexBlockNumber
	}
	return Kind_Invalid
}

// IsNegative reports whether a numeric identifier is negative. Negative
// numbers classify as block_number but fail validation downstream.
func IsNegative(identifier any) bool {
	switch v := identifier.(type) {
	case int:
		return v < 0
	case int64:
		return v < 0
	case string:
		return strings.HasPrefix(strings.TrimSpace(v), "-")
	default:
		return false
	}
}

// Normalize converts an identifier into the hex-number-or-tag wire form
// used by eth_getBlockByNumber and debug_traceBlockByNumber. Hashes are
// not valid here; they go through the by-hash call path instead.
func Normalize(identifier any) (string, error) {
	switch v := identifier.(type) {
	case int:
		if v < 0 {
			return "", fmt.Errorf("block number cannot be negative: %d", v)
		}
		return hexutil.EncodeUint64(uint64(v)), nil
	case int64:
		if v < 0 {
			return "", fmt.Errorf("block number cannot be negative: %d", v)
		}
		return hexutil.EncodeUint64(uint64(v)), nil
	case uint64:
		return hexutil.EncodeUint64(v), nil
	case string:
		return normalizeString(v)
	default:
		return "", fmt.Errorf("unsupported identifier type %T", identifier)
	}
}

func normalizeString(s string) (string, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if blockTags[lower] {
		return lower, nil
	}
	if strings.HasPrefix(s, "-") {
		return "", fmt.Errorf("block number cannot be negative: %s", s)
	}
	if decimalPattern.MatchString(s) {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return "", fmt.Errorf("failed to parse block number %q: %w", s, err)
		}
		return hexutil.EncodeUint64(n), nil
	}
	if hexPattern.MatchString(s) && !addressPattern.MatchString(s) && !hashPattern.MatchString(s) {
		n, err := hexutil.DecodeUint64(lower)
		if err != nil {
			return "", fmt.Errorf("failed to parse hex block number %q: %w", s, err)
		}
		return hexutil.EncodeUint64(n), nil
	}
	return "", fmt.Errorf("cannot normalize identifier %q to a block number or tag", s)
}

// Guidance returns the targeted hint surfaced with validation errors for
// each misclassified identifier shape.
func Guidance(kind Kind) string {
	switch kind {
	case Kind_ContractAddress:
		return "This looks like a contract address. Provide a block number, block hash, or tag instead."
	case Kind_BlockHashOrTxHash:
		return "This is a 32-byte hash. If it is a transaction hash, trace the containing block instead."
	case Kind_Invalid:
		return "Provide a block number (decimal or 0x hex), a 32-byte block hash, or a tag such as 'latest'."
	default:
		return ""
	}
}
