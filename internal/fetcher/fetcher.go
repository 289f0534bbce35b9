package fetcher

import (
	"fmt"
	"strings"
)

// ContractType selects which option-contract category is fetched for an underlying.
type ContractType string

const (
	ContractCall ContractType = "call"
	ContractPut  ContractType = "put"
	// ContractBoth runs a call pass followed by a put pass.
	ContractBoth ContractType = "both"
)

// ParseContractType accepts call, put or both, case-insensitively.
func ParseContractType(s string) (ContractType, error) {
	ct := ContractType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ContractCall, ContractPut, ContractBoth:
		return ct, nil
	}
	return "", &ConfigError{Field: "contract", Message: fmt.Sprintf("unknown contract type %q (want call, put or both)", s)}
}

// Passes returns the single-category passes for a mode, in execution order.
// Calls always precede puts.
func (c ContractType) Passes() []ContractType {
	if c == ContractBoth {
		return []ContractType{ContractCall, ContractPut}
	}
	return []ContractType{c}
}

func (c ContractType) String() string {
	return string(c)
}
