package logic

import (
	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ContractKind describes how a ContractProgram answers invocations nothing was programmed for.
type ContractKind int

const (
	// ContractKindFake answers unprogrammed functions with the zero values of their outputs.
	ContractKindFake ContractKind = iota

	// ContractKindMock lets unprogrammed functions execute the real contract code.
	ContractKindMock
)

// String returns a readable name for the ContractKind.
func (k ContractKind) String() string {
	if k == ContractKindMock {
		return "mock"
	}
	return "fake"
}

// ContractProgram holds the programmable functions of a single fake or mock installed at an address.
type ContractProgram struct {
	// kind describes whether the program backs a fake or a mock.
	kind ContractKind

	// name is a readable name for the contract, used in logs.
	name string

	// address is the address the contract is installed at.
	address common.Address

	// contractAbi describes the functions of the contract.
	contractAbi abi.ABI

	// functions maps an ABI method key to its programmable function.
	functions map[string]*ProgrammableFunctionLogic

	// selectors maps a function selector to its programmable function.
	selectors map[[4]byte]*ProgrammableFunctionLogic

	// fallback answers invocations which select no function of the ABI.
	fallback *ProgrammableFunctionLogic
}

// NewContractProgram creates a ContractProgram with a programmable function for every method of the provided ABI.
func NewContractProgram(kind ContractKind, name string, address common.Address, contractAbi abi.ABI, recordCalls bool) *ContractProgram {
	program := &ContractProgram{
		kind:        kind,
		name:        name,
		address:     address,
		contractAbi: contractAbi,
		functions:   make(map[string]*ProgrammableFunctionLogic),
		selectors:   make(map[[4]byte]*ProgrammableFunctionLogic),
		fallback:    newProgrammableFunctionLogic("fallback", nil, recordCalls),
	}
	for key, method := range contractAbi.Methods {
		method := method
		function := newProgrammableFunctionLogic(key, &method, recordCalls)
		program.functions[key] = function
		program.selectors[[4]byte(method.ID)] = function
	}
	return program
}

// Kind returns the kind of contract the program backs.
func (p *ContractProgram) Kind() ContractKind {
	return p.kind
}

// Name returns the readable name of the contract.
func (p *ContractProgram) Name() string {
	return p.name
}

// Address returns the address the contract is installed at.
func (p *ContractProgram) Address() common.Address {
	return p.address
}

// Abi returns the ABI the program was created from.
func (p *ContractProgram) Abi() abi.ABI {
	return p.contractAbi
}

// Function returns the programmable function with the provided name. Overloaded functions are keyed the way the ABI
// keys them, by name and then by name suffixed with an index.
// Returns an error if the ABI has no such function.
func (p *ContractProgram) Function(name string) (*ProgrammableFunctionLogic, error) {
	function, ok := p.functions[name]
	if !ok {
		return nil, errors.Errorf("could not find function %s in %s %s", name, p.kind.String(), p.name)
	}
	return function, nil
}

// Fallback returns the programmable function answering invocations which select no function of the ABI.
func (p *ContractProgram) Fallback() *ProgrammableFunctionLogic {
	return p.fallback
}

// Functions returns the sorted names of every programmable function except the fallback.
func (p *ContractProgram) Functions() []string {
	names := make([]string, 0, len(p.functions))
	for name := range p.functions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reset clears the programmed answers and recorded calls of every function.
func (p *ContractProgram) Reset() {
	for _, function := range p.functions {
		function.Reset()
	}
	p.fallback.Reset()
}

// functionFor returns the programmable function the provided calldata selects.
func (p *ContractProgram) functionFor(data []byte) *ProgrammableFunctionLogic {
	if len(data) >= 4 {
		if function, ok := p.selectors[[4]byte(data[:4])]; ok {
			return function
		}
	}
	return p.fallback
}

// record counts and records an invocation of the contract.
func (p *ContractProgram) record(message *types.MessageEvent, sequence uint64) *ProgrammableFunctionLogic {
	function := p.functionFor(message.Data)
	function.record(message, sequence)
	return function
}

// Resolve returns the answer to an invocation with the provided calldata. Unprogrammed invocations of a fake are
// answered with zero values, while those of a mock are left unanswered.
// Returns the answer and whether the invocation was answered, or an error if zero values could not be encoded.
func (p *ContractProgram) Resolve(data []byte) (*Answer, bool, error) {
	function := p.functionFor(data)
	if answer := function.resolve(data); answer != nil {
		return answer, true, nil
	}
	if p.kind == ContractKindMock {
		return nil, false, nil
	}

	returnData, err := function.zeroReturnData()
	if err != nil {
		return nil, false, err
	}
	return &Answer{Data: returnData}, true, nil
}
