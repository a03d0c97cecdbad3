package observable

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	gethTypes "github.com/crytic/medusa-geth/core/types"
	"github.com/crytic/medusa-smock/chain"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/compilation/bytecode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSender is the funded account used to send transactions in these tests.
var testSender = common.HexToAddress("0x10000")

// createTestChain creates a chain with a funded sender.
func createTestChain(t *testing.T) *chain.TestChain {
	genesisAlloc := gethTypes.GenesisAlloc{
		testSender: {Balance: big.NewInt(1_000_000)},
	}
	testChain, err := chain.NewTestChain(genesisAlloc, nil)
	require.NoError(t, err)
	testChain.BlockGasLimit = 30_000_000
	t.Cleanup(testChain.Close)
	return testChain
}

// sendMessage mines a single transaction from testSender.
func sendMessage(t *testing.T, testChain *chain.TestChain, to *common.Address, data []byte) *gethTypes.Receipt {
	msg := &core.Message{
		To:        to,
		From:      testSender,
		Nonce:     testChain.State().GetNonce(testSender),
		Value:     big.NewInt(0),
		GasLimit:  5_000_000,
		GasPrice:  big.NewInt(0),
		GasFeeCap: big.NewInt(0),
		GasTipCap: big.NewInt(0),
		Data:      data,
	}
	block, err := testChain.PendingBlockCreate()
	require.NoError(t, err)
	require.NoError(t, testChain.PendingBlockAddTx(msg))
	require.NoError(t, testChain.PendingBlockCommit())
	return block.MessageResults[0].Receipt
}

// TestNewRequiresVM checks a VM must be provided.
func TestNewRequiresVM(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

// TestNativeListenerRegisteredOnce checks repeated construction over one VM reuses its native listeners.
func TestNativeListenerRegisteredOnce(t *testing.T) {
	testChain := createTestChain(t)

	first, err := New(testChain)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New(testChain)
		require.NoError(t, err)
		assert.Same(t, first, again)
	}
	assert.EqualValues(t, 1, testChain.MessageEvents().ListenerCount(types.BeforeMessageEventName))
	assert.EqualValues(t, 1, testChain.MessageEvents().ListenerCount(types.AfterMessageEventName))
	assert.Same(t, testChain.StateManager(), first.Manager())

	// A different VM gets its own bridge.
	other, err := New(createTestChain(t))
	require.NoError(t, err)
	assert.NotSame(t, first, other)
}

// TestInvocationStreams checks every subscriber sees each invocation once, in order, and creations are filtered from
// the pre-invocation stream only.
func TestInvocationStreams(t *testing.T) {
	testChain := createTestChain(t)
	observableVM, err := New(testChain)
	require.NoError(t, err)

	var firstSeen, secondSeen []*types.MessageEvent
	var results []*types.MessageResult
	observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		firstSeen = append(firstSeen, message)
		return nil
	})
	observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		secondSeen = append(secondSeen, message)
		return nil
	})
	observableVM.PostInvocations().Subscribe(func(result *types.MessageResult) error {
		results = append(results, result)
		return nil
	})

	// A creation is only visible on the post-invocation stream.
	targetRuntime, err := bytecode.ReturnWordRuntime(5)
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(targetRuntime)
	require.NoError(t, err)
	target := sendMessage(t, testChain, nil, initCode).ContractAddress
	assert.Len(t, firstSeen, 0)
	assert.Len(t, secondSeen, 0)
	assert.Len(t, results, 1)

	forwarderRuntime, err := bytecode.CallForwardingRuntime(target)
	require.NoError(t, err)
	initCode, err = bytecode.DeploymentBytecode(forwarderRuntime)
	require.NoError(t, err)
	forwarder := sendMessage(t, testChain, nil, initCode).ContractAddress
	results = nil

	// Calls are delivered in emission order, outermost first.
	sendMessage(t, testChain, &forwarder, []byte{0x01})
	for _, seen := range [][]*types.MessageEvent{firstSeen, secondSeen} {
		require.Len(t, seen, 2)
		assert.EqualValues(t, forwarder, *seen[0].To)
		assert.EqualValues(t, target, *seen[1].To)
	}
	assert.Len(t, results, 2)
}

// TestSubscriberIsolation checks a failing or departing subscriber does not affect the others.
func TestSubscriberIsolation(t *testing.T) {
	testChain := createTestChain(t)
	observableVM, err := New(testChain)
	require.NoError(t, err)

	failing := observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		return errors.New("subscriber failure")
	})
	seen := 0
	observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		seen++
		return nil
	})
	departing := observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		return nil
	})
	departing.Unsubscribe()

	receiver := common.HexToAddress("0x20000")
	receipt := sendMessage(t, testChain, &receiver, nil)
	assert.EqualValues(t, gethTypes.ReceiptStatusSuccessful, receipt.Status)
	assert.EqualValues(t, 1, seen)

	failing.Unsubscribe()
	sendMessage(t, testChain, &receiver, nil)
	assert.EqualValues(t, 2, seen)
}

// TestSelfDestructIsNotAnInvocation checks the balance transfer of a SELFDESTRUCT reaches neither stream, while the
// invocation which self-destructed is delivered as usual.
func TestSelfDestructIsNotAnInvocation(t *testing.T) {
	testChain := createTestChain(t)
	observableVM, err := New(testChain)
	require.NoError(t, err)

	beneficiary := common.HexToAddress("0xbeef")
	runtimeCode, err := bytecode.SelfDestructRuntime(beneficiary)
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	destructible := sendMessage(t, testChain, nil, initCode).ContractAddress

	var seen []*types.MessageEvent
	var results []*types.MessageResult
	observableVM.PreInvocations().Subscribe(func(message *types.MessageEvent) error {
		seen = append(seen, message)
		return nil
	})
	observableVM.PostInvocations().Subscribe(func(result *types.MessageResult) error {
		results = append(results, result)
		return nil
	})

	// Self-destruct twice, so a withheld exit would unbalance the second transaction's events.
	for i := 0; i < 2; i++ {
		sendMessage(t, testChain, &destructible, nil)
	}
	require.Len(t, seen, 2)
	require.Len(t, results, 2)
	for i := range seen {
		assert.EqualValues(t, destructible, *seen[i].To)
		assert.EqualValues(t, 0, seen[i].Depth)
		assert.EqualValues(t, 0, results[i].Depth)
		assert.True(t, results[i].Success)
	}
}

// TestVMForgottenOnClose checks a closed VM is dropped from the registry, so it is not kept alive.
func TestVMForgottenOnClose(t *testing.T) {
	testChain, err := chain.NewTestChain(gethTypes.GenesisAlloc{}, nil)
	require.NoError(t, err)
	observableVM, err := New(testChain)
	require.NoError(t, err)

	observedVMsLock.Lock()
	assert.Same(t, observableVM, observedVMs[testChain])
	observedVMsLock.Unlock()

	testChain.Close()
	observedVMsLock.Lock()
	_, ok := observedVMs[testChain]
	observedVMsLock.Unlock()
	assert.False(t, ok)
}
