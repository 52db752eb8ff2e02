package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ParseAddress converts a string address into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ParseAmount converts a decimal string into a uint256 amount.
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, err := uint256.FromDecimal(input)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	return value, nil
}

// ParseOptAmount is ParseAmount for optional fields: empty input yields nil.
func ParseOptAmount(input string) (*uint256.Int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	return ParseAmount(input)
}

// ParseProof converts proof links from decimal strings.
func ParseProof(inputs []string) ([]*uint256.Int, error) {
	proof := make([]*uint256.Int, 0, len(inputs))
	for _, input := range inputs {
		link, err := ParseAmount(input)
		if err != nil {
			return nil, fmt.Errorf("invalid proof link: %w", err)
		}
		proof = append(proof, link)
	}
	return proof, nil
}
