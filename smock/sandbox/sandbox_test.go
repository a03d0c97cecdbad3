package sandbox

import (
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/compilation/abiutils"
	"github.com/crytic/medusa-smock/compilation/bytecode"
	compilationTypes "github.com/crytic/medusa-smock/compilation/types"
	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/contracts"
	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

// tokenAbiJSON describes a minimal token used to create fakes in tests.
const tokenAbiJSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
		"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// testHost is a node.Runtime reporting a chosen network and version.
type testHost struct {
	*node.Runtime
	network string
	version *semver.Version
}

// Network returns the chosen network.
func (h *testHost) Network() node.Network {
	return node.Network{Name: h.network}
}

// Version returns the chosen version.
func (h *testHost) Version() *semver.Version {
	return h.version
}

// newTestHost creates a host over a fresh runtime reporting the provided network and version.
func newTestHost(t *testing.T, network string, version string) *testHost {
	runtime, err := node.NewRuntime(nil)
	require.NoError(t, err)
	hostVersion, err := semver.NewVersion(version)
	require.NoError(t, err)
	return &testHost{Runtime: runtime, network: network, version: hostVersion}
}

// newTestSandbox creates a session on a fresh runtime with the default configuration.
func newTestSandbox(t *testing.T) (*node.Runtime, *Sandbox) {
	runtime, err := node.NewRuntime(nil)
	require.NoError(t, err)
	sandbox, err := Create(context.Background(), runtime)
	require.NoError(t, err)
	t.Cleanup(sandbox.Node().Chain().Close)
	return runtime, sandbox
}

// deployForwarder deploys a contract forwarding any call to the target.
func deployForwarder(t *testing.T, n *node.Node, target common.Address) common.Address {
	runtimeCode, err := bytecode.CallForwardingRuntime(target)
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	address, _, err := n.DeployContract(n.Accounts()[0], initCode, nil)
	require.NoError(t, err)
	return address
}

// TestCreateRequiresSelfHostedNetwork checks sessions are refused on other networks before touching the node.
func TestCreateRequiresSelfHostedNetwork(t *testing.T) {
	host := newTestHost(t, "mainnet", "0.2.0")
	_, err := Create(context.Background(), host)
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
	assert.Nil(t, host.Provider().Node())

	_, err = Create(context.Background(), nil)
	assert.Error(t, err)
}

// TestCreateIsIdempotent checks repeated session creation for a node reuses the session, its listeners and its
// patched classifier.
func TestCreateIsIdempotent(t *testing.T) {
	runtime, err := node.NewRuntime(nil)
	require.NoError(t, err)
	assert.Nil(t, runtime.Provider().Node())

	sandbox, err := Create(context.Background(), runtime)
	require.NoError(t, err)
	t.Cleanup(sandbox.Node().Chain().Close)
	assert.Same(t, runtime.Provider().Node(), sandbox.Node())
	assert.NotEmpty(t, sandbox.ID())
	errorManager := reflect.ValueOf(sandbox.Node().ErrorManager()).Pointer()

	for i := 0; i < 3; i++ {
		again, err := CreateWithConfig(context.Background(), runtime, &config.SmockConfig{DefaultFakeGasCost: 1})
		require.NoError(t, err)
		assert.Same(t, sandbox, again)
		assert.Same(t, sandbox.Dispatcher(), again.Dispatcher())
	}

	emitter := sandbox.Node().Chain().MessageEvents()
	assert.EqualValues(t, 1, emitter.ListenerCount(types.BeforeMessageEventName))
	assert.EqualValues(t, 1, emitter.ListenerCount(types.AfterMessageEventName))
	assert.EqualValues(t, errorManager, reflect.ValueOf(sandbox.Node().ErrorManager()).Pointer())

	// A different node gets its own session.
	_, other := newTestSandbox(t)
	assert.NotSame(t, sandbox, other)
	assert.NotEqualValues(t, sandbox.ID(), other.ID())
}

// TestFakeRejectionEndToEnd checks a fake's programmed failure is reported by the host with its reason, both when the
// fake is called directly and through another contract.
func TestFakeRejectionEndToEnd(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	fake, err := sandbox.Fake(contracts.FromABIJSON(tokenAbiJSON), contracts.FakeContractOptions{})
	require.NoError(t, err)
	transfer, err := fake.Function("transfer")
	require.NoError(t, err)
	transfer.RevertsWith("not allowed")

	var postInvocations []*types.MessageResult
	subscription := sandbox.Bridge().PostInvocations().Subscribe(func(result *types.MessageResult) error {
		postInvocations = append(postInvocations, result)
		return nil
	})

	n := sandbox.Node()
	calldata, err := fake.Abi().Pack("transfer", n.Accounts()[1], big.NewInt(1))
	require.NoError(t, err)
	fakeAddress := fake.Address()
	_, err = n.SendTransaction(node.TransactionRequest{From: n.Accounts()[0], To: &fakeAddress, Data: calldata})
	require.Error(t, err)
	assert.Len(t, postInvocations, 1)
	subscription.Unsubscribe()

	var executionError *node.TransactionExecutionError
	require.True(t, errors.As(err, &executionError))
	assert.EqualValues(t, "not allowed", executionError.Reason)
	assert.EqualValues(t, "VM Exception while processing transaction: revert not allowed", executionError.Error())
	assert.EqualValues(t, len(logic.SmockMarker), executionError.ReasonOffset)
	assert.EqualValues(t, node.ExitKindRevert, executionError.ExitKind)
	assert.Greater(t, executionError.GasUsed, uint64(0))

	// The reason survives being bubbled up by a caller.
	forwarder := deployForwarder(t, n, fakeAddress)
	_, err = n.SendTransaction(node.TransactionRequest{From: n.Accounts()[0], To: &forwarder, Data: calldata})
	require.True(t, errors.As(err, &executionError))
	assert.EqualValues(t, "not allowed", executionError.Reason)
	assert.Contains(t, executionError.Error(), "not allowed")
	assert.EqualValues(t, 2, transfer.CallCount())
}

// TestPatchedClassifierNonInterference checks failures without the marker are classified exactly like the original
// classifier does.
func TestPatchedClassifierNonInterference(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	classify := sandbox.Node().ErrorManager()

	results := []*node.ExecutionResult{
		{ExitKind: node.ExitKindRevert, ReturnData: abiutils.EncodeSolidityRevertError("not allowed"), Err: vm.ErrExecutionReverted},
		{ExitKind: node.ExitKindRevert, ReturnData: abiutils.EncodeSolidityPanic(abiutils.PanicCodeAssertFailed), Err: vm.ErrExecutionReverted},
		{ExitKind: node.ExitKindRevert, ReturnData: logic.SmockMarker[:4], Err: vm.ErrExecutionReverted},
		{ExitKind: node.ExitKindRevert, Err: vm.ErrExecutionReverted},
		{ExitKind: node.ExitKindOutOfGas, Err: vm.ErrOutOfGas},
		{ExitKind: node.ExitKindInvalidOpcode, Err: &vm.ErrInvalidOpCode{}},
		// A marked payload only matters for reverts.
		{ExitKind: node.ExitKindError, ReturnData: logic.EncodeRejection("not allowed"), Err: vm.ErrDepth},
	}
	for _, result := range results {
		assert.EqualValues(t, node.DefaultErrorManager(result), classify(result))
	}

	// Real reverts are untouched end to end.
	n := sandbox.Node()
	runtimeCode, err := bytecode.EchoRevertRuntime()
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	reverter, _, err := n.DeployContract(n.Accounts()[0], initCode, nil)
	require.NoError(t, err)

	payload := abiutils.EncodeSolidityRevertError("real failure")
	result, err := n.SendTransaction(node.TransactionRequest{From: n.Accounts()[0], To: &reverter, Data: payload})
	require.Error(t, err)
	assert.EqualValues(t, node.DefaultErrorManager(result.Result), err)
}

// TestGetNextNonce checks session nonces are strictly increasing.
func TestGetNextNonce(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	previous := sandbox.GetNextNonce()
	for i := 0; i < 1000; i++ {
		nonce := sandbox.GetNextNonce()
		assert.Greater(t, nonce, previous)
		previous = nonce
	}
}

// TestHostAdapterSelection checks adapters are selected by host version.
func TestHostAdapterSelection(t *testing.T) {
	legacyHost := newTestHost(t, config.SelfHostedNetworkName, "0.1.5")
	legacy, err := Create(context.Background(), legacyHost)
	require.NoError(t, err)
	t.Cleanup(legacy.Node().Chain().Close)
	assert.EqualValues(t, "legacy", legacy.HostAdapter())

	_, current := newTestSandbox(t)
	assert.EqualValues(t, "exit-kind", current.HostAdapter())

	// Pre-releases satisfy no adapter constraint.
	unsupportedHost := newTestHost(t, config.SelfHostedNetworkName, "0.2.0-rc.1")
	_, err = Create(context.Background(), unsupportedHost)
	assert.ErrorIs(t, err, ErrNoHostAdapter)
	t.Cleanup(unsupportedHost.Provider().Node().Chain().Close)

	// The legacy adapter recognizes reverts by their error only.
	marked := &node.ExecutionResult{ExitKind: node.ExitKindRevert, ReturnData: logic.EncodeRejection("not allowed")}
	assert.EqualValues(t, node.DefaultErrorManager(marked), legacy.Node().ErrorManager()(marked))
	marked.Err = vm.ErrExecutionReverted
	var executionError *node.TransactionExecutionError
	require.True(t, errors.As(legacy.Node().ErrorManager()(marked), &executionError))
	assert.EqualValues(t, "not allowed", executionError.Reason)

	// End to end, the legacy adapter reports rejections with their reason too.
	fake, err := legacy.Fake(contracts.FromABIJSON(tokenAbiJSON), contracts.FakeContractOptions{})
	require.NoError(t, err)
	transfer, err := fake.Function("transfer")
	require.NoError(t, err)
	transfer.RevertsWith("legacy rejection")
	n := legacy.Node()
	calldata, err := fake.Abi().Pack("transfer", n.Accounts()[1], big.NewInt(1))
	require.NoError(t, err)
	fakeAddress := fake.Address()
	_, err = n.Call(node.TransactionRequest{From: n.Accounts()[0], To: &fakeAddress, Data: calldata})
	require.True(t, errors.As(err, &executionError))
	assert.EqualValues(t, "legacy rejection", executionError.Reason)
}

// TestSandboxFakeAddresses checks fakes are installed at the requested address, or a random one.
func TestSandboxFakeAddresses(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	contractAbi, err := abi.JSON(strings.NewReader(tokenAbiJSON))
	require.NoError(t, err)

	requested := common.HexToAddress("0x1234")
	fake, err := sandbox.Fake(contracts.FromABI(&contractAbi), contracts.FakeContractOptions{Address: &requested})
	require.NoError(t, err)
	assert.EqualValues(t, requested, fake.Address())

	random, err := sandbox.Fake(contracts.FromABI(&contractAbi), contracts.FakeContractOptions{})
	require.NoError(t, err)
	assert.NotEqualValues(t, requested, random.Address())

	// Occupied addresses and unknown artifacts are refused.
	_, err = sandbox.Fake(contracts.FromABI(&contractAbi), contracts.FakeContractOptions{Address: &requested})
	assert.Error(t, err)
	_, err = sandbox.Fake(contracts.FromArtifact("Missing"), contracts.FakeContractOptions{})
	assert.ErrorIs(t, err, node.ErrArtifactNotFound)
}

// TestSandboxMock checks mocks of host artifacts report programmed failures with their reason.
func TestSandboxMock(t *testing.T) {
	runtime, sandbox := newTestSandbox(t)
	contractAbi, err := abi.JSON(strings.NewReader(`[
		{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`))
	require.NoError(t, err)
	runtimeCode, err := bytecode.CounterRuntime()
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	require.NoError(t, runtime.RegisterArtifact(&compilationTypes.CompiledContract{
		Name:            "Counter",
		Abi:             contractAbi,
		InitBytecode:    initCode,
		RuntimeBytecode: runtimeCode,
	}))

	_, err = sandbox.Mock("Missing", contracts.MockOptions{})
	assert.ErrorIs(t, err, node.ErrArtifactNotFound)

	from := sandbox.Node().Accounts()[2]
	factory, err := sandbox.Mock("Counter", contracts.MockOptions{From: &from})
	require.NoError(t, err)
	mock, err := factory.Deploy()
	require.NoError(t, err)
	assert.EqualValues(t, "Counter", sandbox.Node().Labels()[mock.Address()])

	increment, err := mock.Function("increment")
	require.NoError(t, err)
	increment.RevertsWith("mocked failure")

	signer, err := sandbox.Node().GetSigner(from)
	require.NoError(t, err)
	_, err = signer.SendTransaction(mock.Address(), contractAbi.Methods["increment"].ID, nil)
	var executionError *node.TransactionExecutionError
	require.True(t, errors.As(err, &executionError))
	assert.EqualValues(t, "mocked failure", executionError.Reason)
}

// TestSelfDestructToFakeIsNotACall checks a fake named as the beneficiary of a SELFDESTRUCT records no invocation.
func TestSelfDestructToFakeIsNotACall(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	fake, err := sandbox.Fake(contracts.FromABIJSON(tokenAbiJSON), contracts.FakeContractOptions{})
	require.NoError(t, err)

	runtimeCode, err := bytecode.SelfDestructRuntime(fake.Address())
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	n := sandbox.Node()
	destructible, _, err := n.DeployContract(n.Accounts()[0], initCode, nil)
	require.NoError(t, err)

	signer, err := n.GetSigner(n.Accounts()[0])
	require.NoError(t, err)
	_, err = signer.SendTransaction(destructible, nil, big.NewInt(1))
	require.NoError(t, err)

	assert.EqualValues(t, 0, fake.Fallback().CallCount())
	assert.False(t, fake.Fallback().Called())
	assert.Empty(t, fake.Fallback().Calls())
	transfer, err := fake.Function("transfer")
	require.NoError(t, err)
	assert.EqualValues(t, 0, transfer.CallCount())

	// The transferred value still reached the fake.
	assert.EqualValues(t, 1, n.Chain().StateManager().GetBalance(fake.Address()).Int64())
}

// TestFakeRefusesAccountsInUse checks fakes cannot be installed over accounts which hold a balance or sent
// transactions.
func TestFakeRefusesAccountsInUse(t *testing.T) {
	_, sandbox := newTestSandbox(t)
	n := sandbox.Node()

	funded := n.Accounts()[1]
	_, err := sandbox.Fake(contracts.FromABIJSON(tokenAbiJSON), contracts.FakeContractOptions{Address: &funded})
	assert.Error(t, err)
	assert.False(t, n.Chain().StateManager().HasCode(funded))

	// An account which spent its whole balance is still refused through its nonce.
	sender := n.Accounts()[0]
	deployForwarder(t, n, common.HexToAddress("0x1234"))
	manager := n.Chain().StateManager()
	require.NoError(t, manager.SetBalance(sender, big.NewInt(0)))
	require.NotZero(t, manager.GetNonce(sender))
	_, err = sandbox.Fake(contracts.FromABIJSON(tokenAbiJSON), contracts.FakeContractOptions{Address: &sender})
	assert.Error(t, err)
}

// TestSessionReleasedOnChainClose checks a session is forgotten once its node's chain is closed.
func TestSessionReleasedOnChainClose(t *testing.T) {
	runtime, err := node.NewRuntime(nil)
	require.NoError(t, err)
	sandbox, err := Create(context.Background(), runtime)
	require.NoError(t, err)
	hostNode := sandbox.Node()

	sandboxesLock.Lock()
	assert.Same(t, sandbox, sandboxes[hostNode])
	sandboxesLock.Unlock()

	hostNode.Chain().Close()
	sandboxesLock.Lock()
	_, ok := sandboxes[hostNode]
	sandboxesLock.Unlock()
	assert.False(t, ok)
}
