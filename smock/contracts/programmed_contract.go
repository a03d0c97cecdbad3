package contracts

import (
	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/pkg/errors"
)

// programmedContract is the programmable surface shared by fakes and mocks.
type programmedContract struct {
	// program holds the answers and recorded calls of every function.
	program *logic.ContractProgram

	// node is the node the contract is installed on.
	node *node.Node

	// functions maps an ABI method key to its programmable function.
	functions map[string]*ProgrammableFunction

	// fallback programs invocations which select no function of the ABI.
	fallback *ProgrammableFunction
}

// newProgrammedContract wraps every function of the provided program.
func newProgrammedContract(program *logic.ContractProgram, n *node.Node) programmedContract {
	contract := programmedContract{
		program:   program,
		node:      n,
		functions: make(map[string]*ProgrammableFunction),
		fallback:  newProgrammableFunction(program.Fallback()),
	}
	for _, name := range program.Functions() {
		// The names come from the program itself, so the lookup cannot fail.
		functionLogic, _ := program.Function(name)
		contract.functions[name] = newProgrammableFunction(functionLogic)
	}
	return contract
}

// Address returns the address the contract is installed at.
func (c *programmedContract) Address() common.Address {
	return c.program.Address()
}

// Name returns the readable name of the contract.
func (c *programmedContract) Name() string {
	return c.program.Name()
}

// Abi returns the ABI of the contract.
func (c *programmedContract) Abi() abi.ABI {
	return c.program.Abi()
}

// Function returns the programmable function with the provided ABI method key.
// Returns an error if the ABI has no such function.
func (c *programmedContract) Function(name string) (*ProgrammableFunction, error) {
	function, ok := c.functions[name]
	if !ok {
		return nil, errors.Errorf("could not find function %s in %s", name, c.program.Name())
	}
	return function, nil
}

// Fallback returns the programmable function answering invocations which select no function of the ABI.
func (c *programmedContract) Fallback() *ProgrammableFunction {
	return c.fallback
}

// Reset clears the answers and recorded calls of every function.
func (c *programmedContract) Reset() {
	c.program.Reset()
}

// Wallet returns a signer sending transactions from the contract's address, impersonating it on the node.
func (c *programmedContract) Wallet() (*node.Signer, error) {
	c.node.ImpersonateAccount(c.program.Address())
	return c.node.GetSigner(c.program.Address())
}

// FakeContract is a contract stand-in with no code of its own. Every function answers with its programmed behavior,
// or the zero values of its outputs when none was programmed.
type FakeContract struct {
	programmedContract
}

// CreateFakeContract installs a fake implementing the provided ABI at the provided address.
// Returns the FakeContract, or an error if the address already holds code.
func CreateFakeContract(dispatcher *logic.Dispatcher, n *node.Node, name string, contractAbi abi.ABI, address common.Address) (*FakeContract, error) {
	program := dispatcher.NewProgram(logic.ContractKindFake, name, address, contractAbi)
	if err := dispatcher.InstallFake(program); err != nil {
		return nil, err
	}
	return &FakeContract{programmedContract: newProgrammedContract(program, n)}, nil
}
