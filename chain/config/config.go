package config

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
)

// TestChainConfig represents the chain configuration.
type TestChainConfig struct {
	// CodeSizeCheckDisabled indicates whether code size checks should be disabled in the EVM. This allows for code
	// size to be disabled without disabling the entire EIP it was introduced.
	CodeSizeCheckDisabled bool `json:"codeSizeCheckDisabled" yaml:"codeSizeCheckDisabled"`

	// ContractAddressOverrides describes contracts that are going to be deployed at deterministic addresses
	ContractAddressOverrides map[common.Hash]common.Address `json:"contractAddressOverrides,omitempty" yaml:"contractAddressOverrides,omitempty"`
}

// GetVMConfigExtensions derives a vm.ConfigExtensions from the provided TestChainConfig.
func (t *TestChainConfig) GetVMConfigExtensions() *vm.ConfigExtensions {
	// Create a copy of the contract address overrides that can be ephemerally updated by medusa-geth
	contractAddressOverrides := make(map[common.Hash]common.Address)
	for hash, addr := range t.ContractAddressOverrides {
		contractAddressOverrides[hash] = addr
	}

	// Obtain our vm config extensions data structure
	return &vm.ConfigExtensions{
		OverrideCodeSizeCheck:    t.CodeSizeCheckDisabled,
		AdditionalPrecompiles:    make(map[common.Address]vm.PrecompiledContract),
		ContractAddressOverrides: contractAddressOverrides,
	}
}
