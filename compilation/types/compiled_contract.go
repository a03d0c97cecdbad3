package types

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// CompiledContract represents a single contract unit from a smart contract compilation.
type CompiledContract struct {
	// Name is the name of the contract as declared in source.
	Name string

	// SourcePath is the path of the source unit which declared the contract, if known.
	SourcePath string

	// Abi describes a contract's application binary interface, a structure used to describe information needed
	// to interact with the contract such as constructor and function definitions with input/output variable
	// information, event declarations, and fallback and receive methods.
	Abi abi.ABI

	// InitBytecode describes the bytecode used to deploy a contract.
	InitBytecode []byte

	// RuntimeBytecode represents the rudimentary bytecode to be expected once the contract has been successfully
	// deployed. This may differ at runtime based on constructor arguments, immutables, linked libraries, etc.
	RuntimeBytecode []byte
}

// IsMatch returns a boolean indicating whether provided contract bytecode is a match to this compiled contract
// definition.
func (c *CompiledContract) IsMatch(initBytecode []byte, runtimeBytecode []byte) bool {
	// Check if we can compare init and runtime bytecode
	canCompareInit := len(initBytecode) > 0 && len(c.InitBytecode) > 0
	canCompareRuntime := len(runtimeBytecode) > 0 && len(c.RuntimeBytecode) > 0

	// First try matching runtime bytecode contract metadata. Init bytecode can have matching metadata hashes for
	// different contracts, so runtime bytecode is used.
	if canCompareRuntime {
		deploymentMetadata := ExtractContractMetadata(runtimeBytecode)
		definitionMetadata := ExtractContractMetadata(c.RuntimeBytecode)
		if deploymentMetadata != nil && definitionMetadata != nil {
			deploymentBytecodeHash := deploymentMetadata.ExtractBytecodeHash()
			definitionBytecodeHash := definitionMetadata.ExtractBytecodeHash()
			if deploymentBytecodeHash != nil && definitionBytecodeHash != nil {
				return bytes.Equal(deploymentBytecodeHash, definitionBytecodeHash)
			}
		}
	}

	// Next, match on init bytecode, cut down to the definition's size to strip constructor arguments.
	if canCompareInit && len(c.InitBytecode) <= len(initBytecode) {
		if bytes.Equal(initBytecode[:len(c.InitBytecode)], c.InitBytecode) {
			return true
		}
	}

	// As a final fallback, compare the whole runtime bytecode.
	return canCompareRuntime && bytes.Equal(runtimeBytecode, c.RuntimeBytecode)
}

// GetDeploymentMessageData is a helper method used create contract deployment message data for the given contract.
// This data can be set in transaction/message structs "data" field to indicate the packed init bytecode and constructor
// argument data to use.
func (c *CompiledContract) GetDeploymentMessageData(args []any) ([]byte, error) {
	// ABI encode constructor arguments and append them to the end of the bytecode
	initBytecodeWithArgs := slices.Clone(c.InitBytecode)
	if len(c.Abi.Constructor.Inputs) > 0 || len(args) > 0 {
		data, err := c.Abi.Pack("", args...)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode constructor arguments for contract %s", c.Name)
		}
		initBytecodeWithArgs = append(initBytecodeWithArgs, data...)
	}
	return initBytecodeWithArgs, nil
}

// ParseABIFromInterface parses a generic object into an abi.ABI and returns it, or an error if one occurs.
func ParseABIFromInterface(i any) (*abi.ABI, error) {
	var (
		result abi.ABI
		err    error
	)

	// If it's a string, just parse it. Otherwise, we assume it's an interface and serialize it into a string.
	if s, ok := i.(string); ok {
		result, err = abi.JSON(strings.NewReader(s))
		if err != nil {
			return nil, errors.WithStack(err)
		}
	} else {
		var b []byte
		b, err = json.Marshal(i)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result, err = abi.JSON(bytes.NewReader(b))
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return &result, nil
}
