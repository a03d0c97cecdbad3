package contracts

import (
	"math/big"
	"strings"
	"testing"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/compilation/bytecode"
	"github.com/crytic/medusa-smock/compilation/types"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/crytic/medusa-smock/smock/observable"
	"github.com/crytic/medusa-smock/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"
)

// tokenAbiJSON describes a minimal token used to create fakes in tests.
const tokenAbiJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
		"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// counterAbiJSON describes bytecode.CounterRuntime, along with a constructor its init code ignores.
const counterAbiJSON = `[
	{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"start","type":"uint256"}]},
	{"type":"function","name":"increment","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// testEnvironment is a Dispatcher over a freshly initialized node.
type testEnvironment struct {
	runtime    *node.Runtime
	node       *node.Node
	dispatcher *logic.Dispatcher
	sequence   uint64
}

// newTestEnvironment initializes a node with the default runtime configuration and attaches a Dispatcher to it.
func newTestEnvironment(t *testing.T) *testEnvironment {
	runtime, err := node.NewRuntime(nil)
	require.NoError(t, err)
	testNode, err := runtime.Provider().Init(context.Background())
	require.NoError(t, err)
	t.Cleanup(testNode.Chain().Close)

	bridge, err := observable.New(testNode.Chain())
	require.NoError(t, err)
	env := &testEnvironment{runtime: runtime, node: testNode}
	env.dispatcher, err = logic.NewDispatcher(bridge, func() uint64 {
		env.sequence++
		return env.sequence
	}, nil)
	require.NoError(t, err)
	t.Cleanup(env.dispatcher.Close)
	return env
}

// call executes a call from the node's first account and returns the return data.
func (e *testEnvironment) call(t *testing.T, to common.Address, data []byte) ([]byte, error) {
	result, err := e.node.Call(node.TransactionRequest{From: e.node.Accounts()[0], To: &to, Data: data})
	require.NotNil(t, result)
	return result.ReturnData, err
}

// newFakeToken installs a fake token at a random address.
func (e *testEnvironment) newFakeToken(t *testing.T) (*FakeContract, abi.ABI) {
	contractAbi, _, err := FromABIJSON(tokenAbiJSON).Resolve(nil)
	require.NoError(t, err)
	fake, err := CreateFakeContract(e.dispatcher, e.node, "Token", *contractAbi, utils.MakeRandomAddress())
	require.NoError(t, err)
	return fake, *contractAbi
}

// newCounterContract returns a compiled contract of bytecode.CounterRuntime.
func newCounterContract(t *testing.T) *types.CompiledContract {
	contractAbi, err := abi.JSON(strings.NewReader(counterAbiJSON))
	require.NoError(t, err)
	runtimeCode, err := bytecode.CounterRuntime()
	require.NoError(t, err)
	initCode, err := bytecode.DeploymentBytecode(runtimeCode)
	require.NoError(t, err)
	return &types.CompiledContract{
		Name:            "Counter",
		Abi:             contractAbi,
		InitBytecode:    initCode,
		RuntimeBytecode: runtimeCode,
	}
}

// word returns the 32 byte encoding of the provided integer.
func word(value int64) []byte {
	return common.LeftPadBytes(big.NewInt(value).Bytes(), 32)
}

// TestFakeContractSpecResolve checks every kind of spec resolves to an ABI.
func TestFakeContractSpecResolve(t *testing.T) {
	env := newTestEnvironment(t)
	counter := newCounterContract(t)
	require.NoError(t, env.runtime.RegisterArtifact(counter))

	fromJSON, name, err := FromABIJSON(tokenAbiJSON).Resolve(env.runtime)
	require.NoError(t, err)
	assert.EqualValues(t, defaultFakeName, name)
	assert.Contains(t, fromJSON.Methods, "balanceOf")

	fromAbi, _, err := FromABI(fromJSON).Resolve(env.runtime)
	require.NoError(t, err)
	assert.Same(t, fromJSON, fromAbi)

	fromArtifact, name, err := FromArtifact("Counter").Resolve(env.runtime)
	require.NoError(t, err)
	assert.EqualValues(t, "Counter", name)
	assert.Contains(t, fromArtifact.Methods, "increment")

	_, _, err = FromArtifact("Missing").Resolve(env.runtime)
	assert.ErrorIs(t, err, node.ErrArtifactNotFound)
	_, _, err = FromArtifact("Counter").Resolve(nil)
	assert.Error(t, err)
	_, _, err = FromABIJSON("not json").Resolve(nil)
	assert.Error(t, err)
	_, _, err = FakeContractSpec{}.Resolve(nil)
	assert.Error(t, err)
}

// TestFakeContractProgramming checks answers programmed through the public surface are served by the VM.
func TestFakeContractProgramming(t *testing.T) {
	env := newTestEnvironment(t)
	fake, contractAbi := env.newFakeToken(t)
	balanceOf, err := fake.Function("balanceOf")
	require.NoError(t, err)
	_, err = fake.Function("mint")
	assert.Error(t, err)

	owner := common.HexToAddress("0xaa")
	ownerCall, err := contractAbi.Pack("balanceOf", owner)
	require.NoError(t, err)
	otherCall, err := contractAbi.Pack("balanceOf", common.HexToAddress("0xbb"))
	require.NoError(t, err)

	require.NoError(t, balanceOf.Returns(big.NewInt(10)))
	conditional, err := balanceOf.WhenCalledWith(owner)
	require.NoError(t, err)
	require.NoError(t, conditional.Returns(big.NewInt(20)))
	require.NoError(t, balanceOf.ReturnsAtCall(3, big.NewInt(30)))
	assert.Error(t, balanceOf.Returns("not a number"))
	_, err = balanceOf.WhenCalledWith()
	assert.Error(t, err)

	expected := [][]byte{word(10), word(20), word(10), word(30)}
	for i, calldata := range [][]byte{otherCall, ownerCall, otherCall, ownerCall} {
		returnData, err := env.call(t, fake.Address(), calldata)
		require.NoError(t, err)
		assert.EqualValues(t, expected[i], returnData, "call %d", i)
	}

	// Programmed failures are reported with their reason.
	balanceOf.RevertsWith("not allowed")
	returnData, err := env.call(t, fake.Address(), otherCall)
	assert.Error(t, err)
	assert.EqualValues(t, logic.EncodeRejection("not allowed"), returnData)

	balanceOf.RevertsWithData([]byte{0x01, 0x02, 0x03, 0x04})
	returnData, err = env.call(t, fake.Address(), otherCall)
	assert.Error(t, err)
	assert.EqualValues(t, []byte{0x01, 0x02, 0x03, 0x04}, returnData)

	// Raw answers and the fallback.
	balanceOf.ReturnsRaw(word(7))
	returnData, err = env.call(t, fake.Address(), otherCall)
	require.NoError(t, err)
	assert.EqualValues(t, word(7), returnData)

	fake.Fallback().ReturnsRaw([]byte{0xca, 0xfe})
	returnData, err = env.call(t, fake.Address(), []byte{0xff})
	require.NoError(t, err)
	assert.EqualValues(t, []byte{0xca, 0xfe}, returnData)
	assert.True(t, fake.Fallback().CalledOnce())
}

// TestFakeContractInspection checks recorded calls can be inspected through the public surface.
func TestFakeContractInspection(t *testing.T) {
	env := newTestEnvironment(t)
	fake, contractAbi := env.newFakeToken(t)
	balanceOf, err := fake.Function("balanceOf")
	require.NoError(t, err)
	transfer, err := fake.Function("transfer")
	require.NoError(t, err)
	assert.False(t, balanceOf.Called())
	assert.False(t, balanceOf.CalledBefore(transfer))

	owner := common.HexToAddress("0xaa")
	calldata, err := contractAbi.Pack("balanceOf", owner)
	require.NoError(t, err)
	_, err = env.call(t, fake.Address(), calldata)
	require.NoError(t, err)
	calldata, err = contractAbi.Pack("transfer", owner, big.NewInt(5))
	require.NoError(t, err)
	_, err = env.call(t, fake.Address(), calldata)
	require.NoError(t, err)

	assert.True(t, balanceOf.Called())
	assert.True(t, balanceOf.CalledOnce())
	assert.EqualValues(t, 1, transfer.CallCount())
	assert.True(t, balanceOf.CalledBefore(transfer))
	assert.False(t, transfer.CalledBefore(balanceOf))

	calledWith, err := transfer.CalledWith(owner, big.NewInt(5))
	require.NoError(t, err)
	assert.True(t, calledWith)
	calledWith, err = transfer.CalledWith(owner, big.NewInt(6))
	require.NoError(t, err)
	assert.False(t, calledWith)
	_, err = transfer.CalledWith(owner)
	assert.Error(t, err)

	call, err := transfer.GetCall(0)
	require.NoError(t, err)
	assert.EqualValues(t, env.node.Accounts()[0], call.From)
	assert.EqualValues(t, fake.Address(), call.To)
	_, err = transfer.GetCall(1)
	assert.Error(t, err)
	assert.Len(t, transfer.Calls(), 1)

	fake.Reset()
	assert.False(t, balanceOf.Called())
	assert.Empty(t, transfer.Calls())
}

// TestFakeContractWallet checks transactions can be sent from a fake's address, and the fake keeps answering.
func TestFakeContractWallet(t *testing.T) {
	env := newTestEnvironment(t)
	fake, contractAbi := env.newFakeToken(t)

	counter := newCounterContract(t)
	counterAddress, _, err := env.node.DeployCompiledContract(env.node.Accounts()[0], counter, big.NewInt(0))
	require.NoError(t, err)

	wallet, err := fake.Wallet()
	require.NoError(t, err)
	assert.EqualValues(t, fake.Address(), wallet.Address())
	result, err := wallet.SendTransaction(counterAddress, counter.Abi.Methods["increment"].ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, word(1), result.Result.ReturnData)

	calldata, err := contractAbi.Pack("balanceOf", common.HexToAddress("0xaa"))
	require.NoError(t, err)
	returnData, err := env.call(t, fake.Address(), calldata)
	require.NoError(t, err)
	assert.EqualValues(t, word(0), returnData)
}

// TestMockContractFactory checks deployed mocks run their real code until programmed otherwise.
func TestMockContractFactory(t *testing.T) {
	env := newTestEnvironment(t)
	counter := newCounterContract(t)
	factory := NewMockContractFactory(env.dispatcher, env.node, counter, env.node.Accounts()[0])
	assert.Same(t, counter, factory.Contract())

	// Constructor arguments must match the constructor.
	_, err := factory.Deploy()
	assert.Error(t, err)

	mock, err := factory.Deploy(big.NewInt(0))
	require.NoError(t, err)
	require.NotNil(t, mock.Deployment())
	assert.EqualValues(t, mock.Address(), *mock.Deployment().ContractAddress)
	assert.EqualValues(t, "Counter", mock.Name())
	assert.EqualValues(t, counter.RuntimeBytecode, env.node.Chain().StateManager().GetContractCode(mock.Implementation()))

	increment, err := mock.Function("increment")
	require.NoError(t, err)
	calldata := mock.Abi().Methods["increment"].ID

	result, err := env.node.SendTransaction(node.TransactionRequest{From: env.node.Accounts()[0], To: ptr(mock.Address()), Data: calldata})
	require.NoError(t, err)
	assert.EqualValues(t, word(1), result.Result.ReturnData)

	require.NoError(t, increment.Returns(big.NewInt(42)))
	returnData, err := env.call(t, mock.Address(), calldata)
	require.NoError(t, err)
	assert.EqualValues(t, word(42), returnData)

	increment.RevertsWith("paused")
	_, err = env.call(t, mock.Address(), calldata)
	assert.Error(t, err)

	mock.Reset()
	returnData, err = env.call(t, mock.Address(), calldata)
	require.NoError(t, err)
	assert.EqualValues(t, word(2), returnData)
	assert.EqualValues(t, 1, increment.CallCount())
}

// ptr returns a pointer to a copy of the provided address.
func ptr(address common.Address) *common.Address {
	return &address
}
