package chain

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	gethmath "github.com/crytic/medusa-geth/common/math"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/rawdb"
	gethState "github.com/crytic/medusa-geth/core/state"
	"github.com/crytic/medusa-geth/core/tracing"
	gethTypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/ethdb"
	"github.com/crytic/medusa-geth/params"
	"github.com/crytic/medusa-geth/triedb"
	"github.com/crytic/medusa-geth/triedb/hashdb"
	"github.com/crytic/medusa-smock/chain/config"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/chain/vendored"
	"github.com/crytic/medusa-smock/utils"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
)

// TestChain represents a simulated Ethereum chain used for testing. It maintains blocks in-memory and strips away
// typical consensus/chain objects to allow for more specialized testing closer to the EVM.
type TestChain struct {
	// blocks represents the blocks created on the current chain.
	blocks []*types.Block

	// pendingBlock is a block currently under construction by the chain which has not yet been committed.
	pendingBlock *types.Block

	// BlockGasLimit defines the maximum amount of gas that can be consumed by transactions in a block.
	// Transactions which push the block gas usage beyond this limit will not be added to a block without error.
	BlockGasLimit uint64

	// testChainConfig represents the configuration used by this TestChain.
	testChainConfig *config.TestChainConfig

	// chainConfig represents the configuration used to instantiate and manage this chain's underlying go-ethereum
	// components.
	chainConfig *params.ChainConfig

	// vmConfigExtensions defines EVM extensions to use with each chain call or transaction. Pre-compiles installed
	// through the StateManager live here.
	vmConfigExtensions *vm.ConfigExtensions

	// state represents the current Ethereum world state. It is the subject of state changes when executing new
	// transactions, and tracks accounts, balances, code, storage, etc.
	state *gethState.StateDB

	// stateDatabase refers to the database object which state uses to store data. It is constructed over db.
	stateDatabase gethState.Database

	// db represents the in-memory database used by the TestChain and its underlying chain to store state changes.
	db ethdb.Database

	// Labels maps an address to its label if one exists. This is useful for execution tracing.
	Labels map[common.Address]string

	// callTracerRouter forwards tracers.Tracer and TestChainTracer calls to any instances added to it. This
	// router is used for non-state changing calls.
	callTracerRouter *TestChainTracerRouter

	// transactionTracerRouter forwards tracers.Tracer and TestChainTracer calls to any instances added to it. This
	// router is used for transaction execution when constructing blocks.
	transactionTracerRouter *TestChainTracerRouter

	// messageEvents is the native emitter publishing an event before and after every invocation.
	messageEvents *messageEventEmitter

	// stateManager provides direct access to the chain's current state.
	stateManager *StateManager

	// Events defines the event system for the TestChain.
	Events TestChainEvents

	// closeHooks are run in registration order when the chain is closed.
	closeHooks []func()
}

// NewTestChain creates a simulated Ethereum backend used for testing, or returns an error if one occurred.
// This creates a test chain with a test chain configuration and the provided genesis allocation and config.
// If a nil config is provided, a default one is used.
func NewTestChain(genesisAlloc gethTypes.GenesisAlloc, testChainConfig *config.TestChainConfig) (*TestChain, error) {
	// Use a default config if we were not provided one
	var err error
	if testChainConfig == nil {
		testChainConfig, err = config.DefaultTestChainConfig()
		if err != nil {
			return nil, err
		}
	}

	// Copy our chain config, so it is not shared across chains.
	chainConfig, err := utils.CopyChainConfig(params.TestChainConfig)
	if err != nil {
		return nil, err
	}

	// go-ethereum's test chain config does not schedule the latest forks, so we enable them from genesis.
	forkTime := uint64(0)
	chainConfig.ShanghaiTime = &forkTime
	chainConfig.CancunTime = &forkTime
	chainConfig.PragueTime = &forkTime
	chainConfig.BlobScheduleConfig = params.DefaultBlobSchedule

	// Create our genesis definition with our default chain config.
	genesisDefinition := &core.Genesis{
		Config:    chainConfig,
		Nonce:     0,
		Timestamp: 0,
		ExtraData: []byte{
			0x73, 0x6D, 0x6F, 0x63, 0x6B,
		},
		GasLimit:   0,
		Difficulty: common.Big0,
		Mixhash:    common.Hash{},
		Coinbase:   common.Address{},
		Alloc:      maps.Clone(genesisAlloc),
		Number:     0,
		GasUsed:    0,
		ParentHash: common.Hash{},
		BaseFee:    big.NewInt(0),
	}
	if genesisDefinition.Alloc == nil {
		genesisDefinition.Alloc = make(gethTypes.GenesisAlloc)
	}

	// Create an in-memory database
	db := rawdb.NewMemoryDatabase()
	trieDB := triedb.NewDatabase(db, &triedb.Config{
		HashDB: hashdb.Defaults,
	})

	// Commit our genesis definition to get a genesis block.
	genesisBlock := genesisDefinition.MustCommit(db, trieDB)

	// Create our state database over-top our database.
	stateDatabase := gethState.NewDatabase(trieDB, nil)

	// Create our instance
	chain := &TestChain{
		BlockGasLimit:           genesisBlock.Header().GasLimit,
		blocks:                  []*types.Block{types.NewBlock(genesisBlock.Header())},
		pendingBlock:            nil,
		db:                      db,
		stateDatabase:           stateDatabase,
		Labels:                  make(map[common.Address]string),
		transactionTracerRouter: NewTestChainTracerRouter(),
		callTracerRouter:        NewTestChainTracerRouter(),
		testChainConfig:         testChainConfig,
		chainConfig:             genesisDefinition.Config,
		vmConfigExtensions:      testChainConfig.GetVMConfigExtensions(),
		messageEvents:           newMessageEventEmitter(),
	}
	chain.stateManager = &StateManager{chain: chain}

	// Every invocation, whether part of a transaction or a call, is published on the native message emitter.
	chain.AddTracer(newMessageEventTracer(chain.messageEvents).NativeTracer(), true, true)

	// Obtain the state for the genesis block and set it as the chain's current state.
	chain.state, err = chain.StateAfterBlockNumber(0)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// Close will release any objects from the TestChain that must be _explicitly_ released: anything registered through
// OnClose, then the stateDB trie's underlying cache.
func (t *TestChain) Close() {
	hooks := t.closeHooks
	t.closeHooks = nil
	for _, hook := range hooks {
		hook()
	}
	t.stateDatabase.TrieDB().Close()
}

// OnClose registers a hook run when the chain is closed, so objects tied to the chain's lifetime can be released.
func (t *TestChain) OnClose(hook func()) {
	t.closeHooks = append(t.closeHooks, hook)
}

// AddTracer adds a given TestChainTracer to the TestChain. If directed, the tracer will be attached
// for transactions and/or non-state changing calls made via CallContract.
func (t *TestChain) AddTracer(tracer *TestChainTracer, txs bool, calls bool) {
	if txs {
		t.transactionTracerRouter.AddTracer(tracer)
	}
	if calls {
		t.callTracerRouter.AddTracer(tracer)
	}
}

// MessageEvents returns the native emitter which publishes types.BeforeMessageEventName and
// types.AfterMessageEventName events for every invocation executed on this chain.
func (t *TestChain) MessageEvents() MessageEmitter {
	return t.messageEvents
}

// StateManager returns the StateManager providing direct access to the chain's current state.
func (t *TestChain) StateManager() *StateManager {
	return t.stateManager
}

// ChainConfig returns the go-ethereum chain configuration used by this chain.
func (t *TestChain) ChainConfig() *params.ChainConfig {
	return t.chainConfig
}

// State returns the current state.StateDB of the chain.
func (t *TestChain) State() *gethState.StateDB {
	return t.state
}

// CommittedBlocks returns the real blocks which were committed to the chain.
func (t *TestChain) CommittedBlocks() []*types.Block {
	return t.blocks
}

// Head returns the head of the chain (the latest block).
func (t *TestChain) Head() *types.Block {
	return t.blocks[len(t.blocks)-1]
}

// HeadBlockNumber returns the test chain head's block number, where zero is the genesis block.
func (t *TestChain) HeadBlockNumber() uint64 {
	return t.Head().Header.Number.Uint64()
}

// BlockFromNumber obtains the block with the provided block number from the current chain. If the block is not found,
// we return an error. Thus, the block must be committed to the chain to be retrieved.
func (t *TestChain) BlockFromNumber(blockNumber uint64) (*types.Block, error) {
	for _, block := range t.blocks {
		if block.Header.Number.Uint64() == blockNumber {
			return block, nil
		}
	}
	return nil, fmt.Errorf("could not find block with block number %v", blockNumber)
}

// BlockHashFromNumber returns a block hash for a given block number. If the block doesn't exist, because it wasn't
// committed, we return an error with an empty hash.
func (t *TestChain) BlockHashFromNumber(blockNumber uint64) (common.Hash, error) {
	block, err := t.BlockFromNumber(blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	return block.Hash, nil
}

// StateFromRoot obtains a state from a given state root hash.
// Returns the state, or an error if one occurred.
func (t *TestChain) StateFromRoot(root common.Hash) (*gethState.StateDB, error) {
	return gethState.New(root, t.stateDatabase)
}

// StateRootAfterBlockNumber obtains the Ethereum world state root hash after processing all transactions in the
// provided block number. If the block doesn't exist, because it wasn't committed, we return an error.
func (t *TestChain) StateRootAfterBlockNumber(blockNumber uint64) (common.Hash, error) {
	block, err := t.BlockFromNumber(blockNumber)
	if err != nil {
		return common.Hash{}, err
	}
	return block.Header.Root, nil
}

// StateAfterBlockNumber obtains the Ethereum world state after processing all transactions in the provided block
// number. If the block doesn't exist, because it wasn't committed, we return an error.
func (t *TestChain) StateAfterBlockNumber(blockNumber uint64) (*gethState.StateDB, error) {
	root, err := t.StateRootAfterBlockNumber(blockNumber)
	if err != nil {
		return nil, err
	}
	return t.StateFromRoot(root)
}

// CallContract performs a message call over the current test chain state and obtains a core.ExecutionResult.
// This is similar to the CallContract method provided by Ethereum for use in calling pure/view functions, as it
// executes a transaction without committing any changes, instead discarding them.
// It takes an optional state argument, which is the state to execute the message over. If not provided, the
// current state will be used instead.
func (t *TestChain) CallContract(msg *core.Message, state *gethState.StateDB, additionalTracers ...*TestChainTracer) (*core.ExecutionResult, error) {
	// If our provided state is nil, use our current chain state.
	if state == nil {
		state = t.state
	}

	// Obtain our state snapshot to revert any changes after our call
	snapshot := state.Snapshot()

	// Set infinite balance to the fake caller account
	state.SetBalance(msg.From, uint256.MustFromBig(gethmath.MaxBig256), tracing.BalanceChangeUnspecified)

	// Create our block context for the vm
	var blockContext vm.BlockContext
	if t.pendingBlock != nil {
		blockContext = newTestChainBlockContext(t, t.pendingBlock.Header)
	} else {
		blockContext = newTestChainBlockContext(t, t.Head().Header)
	}

	// Create a new call tracer router that incorporates any additional tracers provided just for this call, while
	// still calling our internal tracers.
	extendedTracerRouter := NewTestChainTracerRouter()
	extendedTracerRouter.AddTracer(t.callTracerRouter.NativeTracer())
	extendedTracerRouter.AddTracers(additionalTracers...)

	// Create our EVM instance.
	evm := vm.NewEVM(blockContext, state, t.chainConfig, vm.Config{
		Tracer:           extendedTracerRouter.NativeTracer().Tracer.Hooks,
		NoBaseFee:        true,
		ConfigExtensions: t.vmConfigExtensions,
	})

	// Create a tx from our msg, for hashing/receipt purposes
	tx := utils.MessageToTransaction(msg)

	// Need to explicitly call OnTxStart hook
	if evm.Config.Tracer != nil && evm.Config.Tracer.OnTxStart != nil {
		evm.Config.Tracer.OnTxStart(evm.GetVMContext(), tx, msg.From)
	}

	// Fund the gas pool, so it can execute endlessly (no block gas limit).
	gasPool := new(core.GasPool).AddGas(math.MaxUint64)

	// Perform our state transition to obtain the result.
	msgResult, err := core.ApplyMessage(evm, msg, gasPool)

	// Revert to our state snapshot to undo any changes.
	state.RevertToSnapshot(snapshot)

	// Gather receipt for OnTxEnd
	receipt := &gethTypes.Receipt{Type: tx.Type(), TxHash: tx.Hash()}
	if err == nil {
		if msgResult.Failed() {
			receipt.Status = gethTypes.ReceiptStatusFailed
		} else {
			receipt.Status = gethTypes.ReceiptStatusSuccessful
		}
		receipt.GasUsed = msgResult.UsedGas
	}

	// Need to explicitly call OnTxEnd
	if evm.Config.Tracer != nil && evm.Config.Tracer.OnTxEnd != nil {
		evm.Config.Tracer.OnTxEnd(receipt, err)
	}
	return msgResult, err
}

// PendingBlock describes the current pending block which is being constructed and awaiting commitment to the chain.
// This may be nil if no pending block was created.
func (t *TestChain) PendingBlock() *types.Block {
	return t.pendingBlock
}

// PendingBlockCreate constructs an empty block which is pending addition to the chain. The block produced by this
// method will have a block number and timestamp that is greater than the current chain head by 1.
// Returns the constructed block, or an error if one occurred.
func (t *TestChain) PendingBlockCreate() (*types.Block, error) {
	blockNumber := t.HeadBlockNumber() + 1
	timestamp := t.Head().Header.Time + 1
	return t.PendingBlockCreateWithParameters(blockNumber, timestamp, nil)
}

// PendingBlockCreateWithParameters constructs an empty block which is pending addition to the chain, using the block
// number and timestamp provided. Returns the constructed block, or an error if one occurred.
func (t *TestChain) PendingBlockCreateWithParameters(blockNumber uint64, blockTime uint64, blockGasLimit *uint64) (*types.Block, error) {
	// All values that are not the block number and timestamp are taken from the current head block.
	baseBlockContext := types.NewBaseBlockContext(
		blockNumber,
		blockTime,
		t.Head().Header.BaseFee,
		t.Head().Header.Coinbase,
	)
	return t.PendingBlockCreateWithBaseBlockContext(baseBlockContext, blockGasLimit)
}

// PendingBlockCreateWithBaseBlockContext constructs an empty block which is pending addition to the chain, using the
// provided base block context. The base block context holds information such as the block number, timestamp, and base
// fee that should be used to initialize the block.
func (t *TestChain) PendingBlockCreateWithBaseBlockContext(baseBlockContext *types.BaseBlockContext, blockGasLimit *uint64) (*types.Block, error) {
	// If we already have a pending block, return an error.
	if t.pendingBlock != nil {
		return nil, fmt.Errorf("could not create a new pending block for chain, as a block is already pending")
	}

	// If our block gas limit is not specified, use the default defined by this chain.
	if blockGasLimit == nil {
		blockGasLimit = &t.BlockGasLimit
	}

	// Block numbers and timestamps must strictly increase.
	if baseBlockContext.Number.Uint64() <= t.HeadBlockNumber() {
		return nil, fmt.Errorf("could not create a new pending block with block number %v, it must exceed the head block number %v", baseBlockContext.Number, t.HeadBlockNumber())
	}
	if baseBlockContext.Time <= t.Head().Header.Time {
		return nil, fmt.Errorf("could not create a new pending block with timestamp %v, it must exceed the head block timestamp %v", baseBlockContext.Time, t.Head().Header.Time)
	}

	// Obtain our parent block hash to reference in our new block.
	parentBlockHash := t.Head().Hash

	// Create a block header for this block:
	// - State root hash reflects the state after applying block updates (no transactions, so unchanged from last block)
	// - Bloom is aggregated for each transaction in the block (for now empty).
	// - GasUsed is aggregated for each transaction in the block (for now zero).
	header := &gethTypes.Header{
		ParentHash:  parentBlockHash,
		UncleHash:   gethTypes.EmptyUncleHash,
		Root:        t.Head().Header.Root,
		TxHash:      gethTypes.EmptyRootHash,
		ReceiptHash: gethTypes.EmptyRootHash,
		Bloom:       gethTypes.Bloom{},
		GasLimit:    *blockGasLimit,
		GasUsed:     0,
		Extra:       []byte{},
		Nonce:       gethTypes.BlockNonce{},
		Coinbase:    baseBlockContext.Coinbase,
		Difficulty:  common.Big0,
		Number:      new(big.Int).Set(baseBlockContext.Number),
		Time:        baseBlockContext.Time,
		MixDigest:   parentBlockHash,
		BaseFee:     new(big.Int).Set(baseBlockContext.BaseFee),
	}

	// Create a new block for our test chain
	t.pendingBlock = types.NewBlock(header)

	// Emit our event for the pending block being created
	err := t.Events.PendingBlockCreated.Publish(PendingBlockCreatedEvent{
		Chain: t,
		Block: t.pendingBlock,
	})
	if err != nil {
		return nil, err
	}
	return t.pendingBlock, nil
}

// PendingBlockAddTx takes a message (internal txs) and adds it to the current pending block, updating the header
// with relevant execution information. If a pending block was not created, an error is returned.
// Returns an error if one occurred.
func (t *TestChain) PendingBlockAddTx(message *core.Message, additionalTracers ...*TestChainTracer) error {
	// If we don't have a pending block, return an error
	if t.pendingBlock == nil {
		return errors.New("could not add tx to the chain's pending block because no pending block was created")
	}

	// Create a gas pool indicating how much gas can be spent executing the transaction.
	gasPool := new(core.GasPool).AddGas(t.pendingBlock.Header.GasLimit - t.pendingBlock.Header.GasUsed)

	// Create a tx from our msg, for hashing/receipt purposes
	tx := utils.MessageToTransaction(message)

	// Create a new context to be used in the EVM environment
	blockContext := newTestChainBlockContext(t, t.pendingBlock.Header)

	// Figure out whether we need to attach any more tracers
	var extendedTracerRouter *TestChainTracerRouter
	if len(additionalTracers) > 0 {
		extendedTracerRouter = NewTestChainTracerRouter()
		extendedTracerRouter.AddTracer(t.transactionTracerRouter.NativeTracer())
		extendedTracerRouter.AddTracers(additionalTracers...)
	} else {
		extendedTracerRouter = t.transactionTracerRouter
	}

	// Create our VM config
	vmConfig := vm.Config{
		Tracer:           extendedTracerRouter.NativeTracer().Tracer.Hooks,
		NoBaseFee:        true,
		ConfigExtensions: t.vmConfigExtensions,
	}

	// Set tx context
	t.state.SetTxContext(tx.Hash(), len(t.pendingBlock.Messages))

	// Create our EVM instance.
	evm := vm.NewEVM(blockContext, t.state, t.chainConfig, vmConfig)

	// Apply our transaction
	var usedGas uint64
	receipt, executionResult, err := vendored.EVMApplyTransaction(message, t.chainConfig, t.testChainConfig, &t.pendingBlock.Header.Coinbase, gasPool, t.state, t.pendingBlock.Header.Number, t.pendingBlock.Hash, tx, &usedGas, evm)
	if err != nil {
		return fmt.Errorf("test chain state write error when adding tx to pending block: %w", err)
	}

	// Create our message result
	messageResult := &types.MessageResults{
		PostStateRoot:     common.BytesToHash(receipt.PostState),
		ExecutionResult:   executionResult,
		Receipt:           receipt,
		AdditionalResults: make(map[string]any, 0),
	}

	// For every tracer we have, we call upon them to set their results for this transaction now.
	extendedTracerRouter.CaptureTxEndSetAdditionalResults(messageResult)

	// Update our gas used in the block header
	t.pendingBlock.Header.GasUsed += receipt.GasUsed
	// Update our block's bloom filter
	t.pendingBlock.Header.Bloom.Add(receipt.Bloom.Bytes())
	// Update our block's transactions and results.
	t.pendingBlock.Messages = append(t.pendingBlock.Messages, message)
	t.pendingBlock.MessageResults = append(t.pendingBlock.MessageResults, messageResult)

	// Emit our event for having added a new transaction to the pending block.
	return t.Events.PendingBlockAddedTx.Publish(PendingBlockAddedTxEvent{
		Chain:            t,
		Block:            t.pendingBlock,
		TransactionIndex: len(t.pendingBlock.Messages) - 1,
	})
}

// PendingBlockCommit commits a pending block to the chain, so it is set as the new head. The pending block is set
// to nil after doing so. If there is no pending block when calling this function, an error is returned.
func (t *TestChain) PendingBlockCommit() error {
	// If we have no pending block, we cannot commit it.
	if t.pendingBlock == nil {
		return fmt.Errorf("could not commit chain's pending block, as no pending block was created")
	}

	// Perform a state commit to obtain the root hash for our block.
	root, err := t.state.Commit(t.pendingBlock.Header.Number.Uint64(), true, true)
	if err != nil {
		return err
	}
	t.pendingBlock.Header.Root = root

	// Committing the state invalidates the cached tries and we need to reload the state.
	t.state, err = t.StateFromRoot(root)
	if err != nil {
		return err
	}

	// Append our new block to our chain, updating the block hash now that the header is final.
	t.pendingBlock.Hash = t.pendingBlock.Header.Hash()
	t.blocks = append(t.blocks, t.pendingBlock)

	// Clear our pending block, but keep a copy of it to emit our event
	pendingBlock := t.pendingBlock
	t.pendingBlock = nil

	// Emit our event for committing a new block as the chain head
	return t.Events.PendingBlockCommitted.Publish(PendingBlockCommittedEvent{
		Chain: t,
		Block: pendingBlock,
	})
}

// PendingBlockDiscard discards a pending block, allowing a different one to be created.
func (t *TestChain) PendingBlockDiscard() error {
	// If we have no pending block, there is nothing to do.
	if t.pendingBlock == nil {
		return nil
	}

	// Clear our pending block, but keep a copy of it to emit our event
	pendingBlock := t.pendingBlock
	t.pendingBlock = nil

	// Reload our state from our database if transactions were applied. An empty pending block left the state untouched,
	// so changes made through the StateManager since the last commit are kept.
	if len(pendingBlock.Messages) > 0 {
		var err error
		t.state, err = t.StateAfterBlockNumber(t.HeadBlockNumber())
		if err != nil {
			return err
		}
	}

	// Emit our pending block discarded event
	return t.Events.PendingBlockDiscarded.Publish(PendingBlockDiscardedEvent{
		Chain: t,
		Block: pendingBlock,
	})
}
