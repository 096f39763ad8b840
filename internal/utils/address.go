package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NormalizeAddress validates a 0x-prefixed wallet address and returns its EIP-55 checksum form
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return "", fmt.Errorf("address %q must start with 0x", raw)
	}
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("address %q is not a 20-byte hex string", raw)
	}
	return common.HexToAddress(raw).Hex(), nil
}

// ValidTxHash reports whether raw is a 0x-prefixed 32-byte hex hash
func ValidTxHash(raw string) bool {
	b, err := hexutil.Decode(raw)
	return err == nil && len(b) == common.HashLength
}
