package chain

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/tracing"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// precompileCodeStub is the code placed at addresses served by a pre-compile. Contracts compiled with newer solidity
// versions perform code size checks prior to external calls, so the address must hold some code.
var precompileCodeStub = []byte{0xFF}

// StateManager provides direct read/write access to the current world state of a TestChain, outside any
// transaction. Changes are written to the chain's current state and are committed with the next block.
type StateManager struct {
	// chain is the TestChain whose state is managed.
	chain *TestChain
}

// GetContractCode returns the code stored at the provided address.
func (m *StateManager) GetContractCode(address common.Address) []byte {
	return m.chain.state.GetCode(address)
}

// PutContractCode replaces the code stored at the provided address.
func (m *StateManager) PutContractCode(address common.Address, code []byte) {
	m.chain.state.SetCode(address, code)
}

// GetContractStorage returns the value of a storage slot at the provided address.
func (m *StateManager) GetContractStorage(address common.Address, key common.Hash) common.Hash {
	return m.chain.state.GetState(address, key)
}

// PutContractStorage sets the value of a storage slot at the provided address.
func (m *StateManager) PutContractStorage(address common.Address, key common.Hash, value common.Hash) {
	m.chain.state.SetState(address, key, value)
}

// GetBalance returns the balance of the provided address.
func (m *StateManager) GetBalance(address common.Address) *big.Int {
	return m.chain.state.GetBalance(address).ToBig()
}

// SetBalance sets the balance of the provided address.
// Returns an error if the balance does not fit in 256 bits.
func (m *StateManager) SetBalance(address common.Address, balance *big.Int) error {
	value, overflow := uint256.FromBig(balance)
	if overflow {
		return errors.Errorf("could not set balance of %s, value exceeds 256 bits", address.String())
	}
	m.chain.state.SetBalance(address, value, tracing.BalanceChangeUnspecified)
	return nil
}

// GetNonce returns the nonce of the provided address.
func (m *StateManager) GetNonce(address common.Address) uint64 {
	return m.chain.state.GetNonce(address)
}

// HasCode indicates whether the provided address holds code or is served by a pre-compile.
func (m *StateManager) HasCode(address common.Address) bool {
	if _, ok := m.chain.vmConfigExtensions.AdditionalPrecompiles[address]; ok {
		return true
	}
	return m.chain.state.GetCodeSize(address) > 0
}

// InstallPrecompile serves the provided address with the pre-compile from now on, for both transactions and calls.
// A code stub is stored at the address so that code size checks performed by callers pass.
// Returns an error if the address already holds code or a pre-compile.
func (m *StateManager) InstallPrecompile(address common.Address, contract vm.PrecompiledContract) error {
	if contract == nil {
		return errors.New("could not install pre-compile, nil contract provided")
	}
	if m.HasCode(address) {
		return errors.Errorf("could not install pre-compile at %s, the address already holds code", address.String())
	}

	m.chain.vmConfigExtensions.AdditionalPrecompiles[address] = contract
	m.chain.state.SetCode(address, precompileCodeStub)
	return nil
}

// UninstallPrecompile removes a pre-compile previously installed with InstallPrecompile, along with its code stub.
// Returns an error if no pre-compile is installed at the address.
func (m *StateManager) UninstallPrecompile(address common.Address) error {
	if _, ok := m.chain.vmConfigExtensions.AdditionalPrecompiles[address]; !ok {
		return errors.Errorf("could not uninstall pre-compile at %s, none is installed", address.String())
	}

	delete(m.chain.vmConfigExtensions.AdditionalPrecompiles, address)
	m.chain.state.SetCode(address, nil)
	return nil
}
