package node

import (
	"sync"

	"github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-smock/chain"
	"github.com/crytic/medusa-smock/utils"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// Provider owns the Node of a Runtime. The Node is created on the first call to Init.
type Provider struct {
	// runtime is the Runtime the provider belongs to.
	runtime *Runtime

	// node is the initialized Node, or nil if Init was not called yet.
	node *Node

	// nodeLock guards node.
	nodeLock sync.Mutex
}

// Node returns the provider's Node, or nil if Init was not called yet.
func (p *Provider) Node() *Node {
	p.nodeLock.Lock()
	defer p.nodeLock.Unlock()
	return p.node
}

// Init creates the provider's Node if it was not created yet, funding every configured account at genesis.
// Repeated calls return the existing Node.
// Returns the Node, or an error if one occurred.
func (p *Provider) Init(ctx context.Context) (*Node, error) {
	p.nodeLock.Lock()
	defer p.nodeLock.Unlock()

	if p.node != nil {
		return p.node, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "could not initialize the node")
	}

	cfg := p.runtime.config
	accounts, err := utils.HexStringsToAddresses(cfg.Accounts)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse the configured accounts")
	}
	balance, err := utils.ParseEther(cfg.AccountBalance)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse the configured account balance %q", cfg.AccountBalance)
	}

	// Fund all of our accounts in the genesis block
	genesisAlloc := make(types.GenesisAlloc)
	for _, account := range accounts {
		genesisAlloc[account] = types.Account{
			Balance: balance,
		}
	}

	testChainConfig := cfg.TestChain
	testChain, err := chain.NewTestChain(genesisAlloc, &testChainConfig)
	if err != nil {
		return nil, errors.Wrap(err, "could not create the test chain")
	}
	testChain.BlockGasLimit = cfg.BlockGasLimit

	p.node = newNode(p.runtime, testChain, accounts)
	p.runtime.logger.Info("Initialized node on network ", cfg.NetworkName, " with ", len(accounts), " accounts holding ", utils.FormatWei(balance), " each")
	return p.node, nil
}
