package logic

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/compilation/bytecode"
)

// NewForwardingStub returns the runtime code installed at a mock's address. Every invocation consults the dispatcher
// pre-compile first, and executes the implementation's code with DELEGATECALL when no answer was programmed.
func NewForwardingStub(dispatcher common.Address, implementation common.Address) ([]byte, error) {
	return bytecode.DispatchingForwarderRuntime(dispatcher, implementation)
}
