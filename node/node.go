package node

import (
	"math/big"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	gethTypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-smock/chain"
	"github.com/crytic/medusa-smock/compilation/types"
	"github.com/crytic/medusa-smock/logging"
	"github.com/crytic/medusa-smock/utils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrUnknownAccount is returned when a transaction is sent from an account the Node neither owns nor impersonates.
var ErrUnknownAccount = errors.New("unknown account")

// TransactionRequest describes a transaction or call to execute on a Node.
type TransactionRequest struct {
	// From is the sender.
	From common.Address

	// To is the target, or nil for a contract creation.
	To *common.Address

	// Data is the calldata, or the init code with constructor arguments for a contract creation.
	Data []byte

	// Value is the amount of wei sent. A nil value sends nothing.
	Value *big.Int

	// GasLimit is the gas limit. A zero value uses the configured transaction gas limit.
	GasLimit uint64
}

// TransactionResult describes a transaction mined by a Node.
type TransactionResult struct {
	// Hash is the hash of the transaction.
	Hash common.Hash

	// BlockNumber is the number of the block the transaction was mined in.
	BlockNumber uint64

	// ContractAddress is the address of the created contract, if the transaction was a successful contract creation.
	ContractAddress *common.Address

	// Result describes the outcome of the execution.
	Result *ExecutionResult
}

// Node executes transactions and calls against a chain.TestChain, mining one block per transaction.
type Node struct {
	// runtime is the Runtime which owns the node.
	runtime *Runtime

	// chain is the chain transactions are executed on.
	chain *chain.TestChain

	// accounts are the accounts owned by the node.
	accounts []common.Address

	// impersonated are accounts which the node may send transactions from without owning them.
	impersonated map[common.Address]struct{}

	// errorManager converts failed executions into errors.
	errorManager ErrorManager

	// lock serializes executions and guards the node's fields.
	lock sync.Mutex

	// logger describes the Node's log object that can be used to log important events
	logger *logging.Logger
}

// newNode creates a Node over the provided chain, owning the provided accounts.
func newNode(runtime *Runtime, testChain *chain.TestChain, accounts []common.Address) *Node {
	n := &Node{
		runtime:      runtime,
		chain:        testChain,
		accounts:     accounts,
		impersonated: make(map[common.Address]struct{}),
		errorManager: DefaultErrorManager,
		logger:       runtime.logger,
	}

	// Log every mined block at trace level
	testChain.Events.PendingBlockCommitted.Subscribe(func(event chain.PendingBlockCommittedEvent) error {
		n.logger.Trace("Mined block ", event.Block.Header.Number.Uint64(), " with ", len(event.Block.Messages), " transaction(s)")
		return nil
	})
	return n
}

// Chain returns the chain the Node executes on.
func (n *Node) Chain() *chain.TestChain {
	return n.chain
}

// Accounts returns the accounts owned by the Node.
func (n *Node) Accounts() []common.Address {
	return slices.Clone(n.accounts)
}

// Labels returns the labels assigned to addresses, such as the names of deployed contracts.
func (n *Node) Labels() map[common.Address]string {
	n.lock.Lock()
	defer n.lock.Unlock()

	labels := make(map[common.Address]string, len(n.chain.Labels))
	for address, label := range n.chain.Labels {
		labels[address] = label
	}
	return labels
}

// ErrorManager returns the ErrorManager failed executions are currently converted with.
func (n *Node) ErrorManager() ErrorManager {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.errorManager
}

// SetErrorManager replaces the ErrorManager failed executions are converted with.
func (n *Node) SetErrorManager(errorManager ErrorManager) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.errorManager = errorManager
}

// ImpersonateAccount allows transactions to be sent from the provided account without owning it.
func (n *Node) ImpersonateAccount(address common.Address) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.impersonated[address] = struct{}{}
}

// StopImpersonatingAccount revokes a previous ImpersonateAccount.
func (n *Node) StopImpersonatingAccount(address common.Address) {
	n.lock.Lock()
	defer n.lock.Unlock()
	delete(n.impersonated, address)
}

// canSend indicates whether transactions may be sent from the provided account. The node lock must be held.
func (n *Node) canSend(address common.Address) bool {
	if _, ok := n.impersonated[address]; ok {
		return true
	}
	return slices.Contains(n.accounts, address)
}

// GetSigner returns a Signer sending from the provided account.
// Returns ErrUnknownAccount if the account is neither owned nor impersonated.
func (n *Node) GetSigner(address common.Address) (*Signer, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if !n.canSend(address) {
		return nil, errors.Wrapf(ErrUnknownAccount, "could not obtain a signer for %s", address.String())
	}
	return &Signer{node: n, address: address}, nil
}

// newMessage creates the message executing the provided request. The node lock must be held.
func (n *Node) newMessage(tx TransactionRequest) *core.Message {
	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit = n.runtime.config.TransactionGasLimit
	}
	value := new(big.Int)
	if tx.Value != nil {
		value.Set(tx.Value)
	}

	return &core.Message{
		To:        tx.To,
		From:      tx.From,
		Nonce:     n.chain.State().GetNonce(tx.From),
		Value:     value,
		GasLimit:  gasLimit,
		GasPrice:  big.NewInt(0),
		GasFeeCap: big.NewInt(0),
		GasTipCap: big.NewInt(0),
		Data:      slices.Clone(tx.Data),
	}
}

// shelveSenderCode removes any code held by the sender so the EVM accepts it as a transaction origin, returning a
// function restoring it. Impersonated accounts such as fakes hold code. The node lock must be held.
func (n *Node) shelveSenderCode(sender common.Address) func() {
	manager := n.chain.StateManager()
	code := manager.GetContractCode(sender)
	if len(code) == 0 {
		return func() {}
	}
	manager.PutContractCode(sender, nil)
	return func() {
		manager.PutContractCode(sender, code)
	}
}

// SendTransaction executes the provided transaction and mines it in its own block. Transactions which fail during
// execution are still mined, and the error produced by the ErrorManager is returned alongside the result.
// Returns the TransactionResult, or an error if the transaction could not be mined or failed.
func (n *Node) SendTransaction(tx TransactionRequest) (*TransactionResult, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if !n.canSend(tx.From) {
		return nil, errors.Wrapf(ErrUnknownAccount, "could not send transaction from %s", tx.From.String())
	}

	restoreSenderCode := n.shelveSenderCode(tx.From)
	defer restoreSenderCode()

	// Mine the transaction in its own block, discarding the block if the transaction could not be included.
	block, err := n.chain.PendingBlockCreate()
	if err != nil {
		return nil, errors.Wrap(err, "could not create a block for the transaction")
	}
	err = n.chain.PendingBlockAddTx(n.newMessage(tx))
	if err != nil {
		if discardErr := n.chain.PendingBlockDiscard(); discardErr != nil {
			return nil, errors.Wrap(discardErr, "could not discard the block of a rejected transaction")
		}
		return nil, errors.Wrap(err, "could not include the transaction in a block")
	}
	err = n.chain.PendingBlockCommit()
	if err != nil {
		return nil, errors.Wrap(err, "could not commit the transaction's block")
	}

	messageResults := block.MessageResults[len(block.MessageResults)-1]
	result := &TransactionResult{
		Hash:        messageResults.Receipt.TxHash,
		BlockNumber: block.Header.Number.Uint64(),
		Result:      newExecutionResult(messageResults.ExecutionResult),
	}
	if tx.To == nil && messageResults.Receipt.Status == gethTypes.ReceiptStatusSuccessful {
		contractAddress := messageResults.Receipt.ContractAddress
		result.ContractAddress = &contractAddress
		n.labelDeployment(contractAddress, tx.Data)
	}

	if result.Result.Failed() {
		n.logger.Debug("Transaction ", result.Hash.String(), " failed with exit kind ", result.Result.ExitKind.String())
		return result, n.errorManager(result.Result)
	}
	return result, nil
}

// Call executes the provided request against the current state without persisting any changes.
// Returns the ExecutionResult, along with the error produced by the ErrorManager if the call failed.
func (n *Node) Call(tx TransactionRequest) (*ExecutionResult, error) {
	n.lock.Lock()
	defer n.lock.Unlock()

	restoreSenderCode := n.shelveSenderCode(tx.From)
	defer restoreSenderCode()

	coreResult, err := n.chain.CallContract(n.newMessage(tx), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not execute call")
	}

	result := newExecutionResult(coreResult)
	if result.Failed() {
		return result, n.errorManager(result)
	}
	return result, nil
}

// DeployContract deploys the provided init code from the provided account.
// Returns the address of the deployed contract along with the TransactionResult, or an error if one occurred.
func (n *Node) DeployContract(from common.Address, initCode []byte, value *big.Int) (common.Address, *TransactionResult, error) {
	result, err := n.SendTransaction(TransactionRequest{
		From:  from,
		Data:  initCode,
		Value: value,
	})
	if err != nil {
		return common.Address{}, result, err
	}
	return *result.ContractAddress, result, nil
}

// DeployCompiledContract deploys a compiled contract with the provided constructor arguments.
// Returns the address of the deployed contract along with the TransactionResult, or an error if one occurred.
func (n *Node) DeployCompiledContract(from common.Address, contract *types.CompiledContract, args ...any) (common.Address, *TransactionResult, error) {
	initCode, err := contract.GetDeploymentMessageData(args)
	if err != nil {
		return common.Address{}, nil, err
	}
	address, result, err := n.DeployContract(from, initCode, nil)
	if err != nil {
		return address, result, errors.Wrapf(err, "could not deploy contract %s", contract.Name)
	}
	return address, result, nil
}

// labelDeployment labels a deployed contract with the name of the compiled contract matching its code, if any. The
// node lock must be held.
func (n *Node) labelDeployment(address common.Address, initCode []byte) {
	runtimeCode := n.chain.StateManager().GetContractCode(address)
	for _, contract := range n.runtime.artifactsSnapshot() {
		if contract.IsMatch(initCode, runtimeCode) {
			n.chain.Labels[address] = contract.Name
			n.logger.Debug("Deployed contract ", contract.Name, " at ", address.String())
			return
		}
	}
	n.logger.Debug("Deployed unknown contract at ", address.String())
}

// Balance returns the balance of the provided account formatted in ether, for logging and diagnostics.
func (n *Node) Balance(address common.Address) string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return utils.FormatWei(n.chain.StateManager().GetBalance(address))
}
