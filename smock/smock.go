// Package smock creates fakes and mocks of contracts running on a self-hosted test runtime. The session attached to
// a host's node is created on first use.
package smock

import (
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/contracts"
	"github.com/crytic/medusa-smock/smock/sandbox"
	"golang.org/x/net/context"
)

// Fake installs a fake implementing the interface the provided spec describes on the host's node.
// Returns the FakeContract, or an error if the host cannot host a session or the fake could not be installed.
func Fake(ctx context.Context, host node.Host, spec contracts.FakeContractSpec, opts contracts.FakeContractOptions) (*contracts.FakeContract, error) {
	session, err := sandbox.Create(ctx, host)
	if err != nil {
		return nil, err
	}
	return session.Fake(spec, opts)
}

// Mock returns a factory deploying mocks of the named compiled contract on the host's node.
// Returns the MockContractFactory, or an error if the host cannot host a session or the contract is unknown.
func Mock(ctx context.Context, host node.Host, contractName string, opts contracts.MockOptions) (*contracts.MockContractFactory, error) {
	session, err := sandbox.Create(ctx, host)
	if err != nil {
		return nil, err
	}
	return session.Mock(contractName, opts)
}
