package contracts

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/compilation/types"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/pkg/errors"
)

// MockContract is a deployed contract whose functions execute their real code unless an answer was programmed.
type MockContract struct {
	programmedContract

	// implementation is the address the real code was relocated to.
	implementation common.Address

	// deployment is the result of the transaction which deployed the contract.
	deployment *node.TransactionResult
}

// Implementation returns the address the mock's real code executes from.
func (m *MockContract) Implementation() common.Address {
	return m.implementation
}

// Deployment returns the result of the transaction which deployed the mock.
func (m *MockContract) Deployment() *node.TransactionResult {
	return m.deployment
}

// MockContractFactory deploys mocks of a compiled contract.
type MockContractFactory struct {
	// dispatcher installs deployed mocks.
	dispatcher *logic.Dispatcher

	// node is the node mocks are deployed on.
	node *node.Node

	// contract is the compiled contract being mocked.
	contract *types.CompiledContract

	// from is the account mocks are deployed from.
	from common.Address
}

// NewMockContractFactory creates a MockContractFactory deploying the provided compiled contract from the provided
// account.
func NewMockContractFactory(dispatcher *logic.Dispatcher, n *node.Node, contract *types.CompiledContract, from common.Address) *MockContractFactory {
	return &MockContractFactory{
		dispatcher: dispatcher,
		node:       n,
		contract:   contract,
		from:       from,
	}
}

// Contract returns the compiled contract the factory deploys.
func (f *MockContractFactory) Contract() *types.CompiledContract {
	return f.contract
}

// Deploy deploys the contract with the provided constructor arguments and turns the deployment into a mock.
// Returns the MockContract, or an error if the deployment failed.
func (f *MockContractFactory) Deploy(args ...any) (*MockContract, error) {
	address, result, err := f.node.DeployCompiledContract(f.from, f.contract, args...)
	if err != nil {
		return nil, err
	}

	program := f.dispatcher.NewProgram(logic.ContractKindMock, f.contract.Name, address, f.contract.Abi)
	implementation, err := f.dispatcher.InstallMock(program)
	if err != nil {
		return nil, errors.Wrapf(err, "could not turn the deployment of %s into a mock", f.contract.Name)
	}
	return &MockContract{
		programmedContract: newProgrammedContract(program, f.node),
		implementation:     implementation,
		deployment:         result,
	}, nil
}
