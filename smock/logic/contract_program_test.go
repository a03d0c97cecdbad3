package logic

import (
	"math/big"
	"strings"
	"testing"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenAbiJSON describes a minimal token used to program fakes in tests.
const tokenAbiJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
		"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

// parseTestAbi parses the provided ABI definition.
func parseTestAbi(t *testing.T, definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	require.NoError(t, err)
	return parsed
}

// word returns the 32 byte encoding of the provided integer.
func word(value int64) []byte {
	return common.LeftPadBytes(big.NewInt(value).Bytes(), 32)
}

// invoke counts an invocation of the program with the provided calldata and resolves its answer.
func invoke(t *testing.T, program *ContractProgram, data []byte) (*Answer, bool) {
	to := program.Address()
	program.record(&types.MessageEvent{
		CallType: vm.CALL,
		From:     common.HexToAddress("0x10000"),
		To:       &to,
		Data:     data,
		Value:    new(big.Int),
	}, 0)
	answer, answered, err := program.Resolve(data)
	require.NoError(t, err)
	return answer, answered
}

// TestFakeZeroValueAnswers checks unprogrammed fake functions answer with the zero values of their outputs.
func TestFakeZeroValueAnswers(t *testing.T) {
	contractAbi := parseTestAbi(t, tokenAbiJSON)
	program := NewContractProgram(ContractKindFake, "Token", common.HexToAddress("0x1234"), contractAbi, true)
	assert.EqualValues(t, []string{"balanceOf", "pause", "transfer"}, program.Functions())

	calldata, err := contractAbi.Pack("balanceOf", common.HexToAddress("0x01"))
	require.NoError(t, err)
	answer, answered := invoke(t, program, calldata)
	assert.True(t, answered)
	assert.False(t, answer.Reverts)
	assert.EqualValues(t, word(0), answer.Data)

	// Functions without outputs and unknown selectors answer with no data.
	answer, answered = invoke(t, program, contractAbi.Methods["pause"].ID)
	assert.True(t, answered)
	assert.Empty(t, answer.Data)
	answer, answered = invoke(t, program, []byte{0xde, 0xad, 0xbe, 0xef})
	assert.True(t, answered)
	assert.Empty(t, answer.Data)
	assert.EqualValues(t, 1, program.Fallback().CallCount())
}

// TestMockUnprogrammedAnswers checks unprogrammed mock functions are left to the real code.
func TestMockUnprogrammedAnswers(t *testing.T) {
	contractAbi := parseTestAbi(t, tokenAbiJSON)
	program := NewContractProgram(ContractKindMock, "Token", common.HexToAddress("0x1234"), contractAbi, true)

	calldata, err := contractAbi.Pack("balanceOf", common.HexToAddress("0x01"))
	require.NoError(t, err)
	_, answered := invoke(t, program, calldata)
	assert.False(t, answered)

	balanceOf, err := program.Function("balanceOf")
	require.NoError(t, err)
	returnData, err := balanceOf.PackReturnValues(big.NewInt(9))
	require.NoError(t, err)
	balanceOf.SetAnswer(&Answer{Data: returnData})

	answer, answered := invoke(t, program, calldata)
	assert.True(t, answered)
	assert.EqualValues(t, word(9), answer.Data)
}

// TestAnswerPrecedence checks call index answers take precedence over argument answers, which take precedence over
// the default answer.
func TestAnswerPrecedence(t *testing.T) {
	contractAbi := parseTestAbi(t, tokenAbiJSON)
	program := NewContractProgram(ContractKindFake, "Token", common.HexToAddress("0x1234"), contractAbi, true)
	balanceOf, err := program.Function("balanceOf")
	require.NoError(t, err)

	owner := common.HexToAddress("0xaa")
	other := common.HexToAddress("0xbb")
	ownerArgs, err := balanceOf.PackArgs(owner)
	require.NoError(t, err)

	balanceOf.SetAnswer(&Answer{Data: word(1)})
	balanceOf.SetAnswerForArgs(ownerArgs, &Answer{Data: word(2)})
	balanceOf.SetAnswerAtCall(2, &Answer{Data: word(3)})

	ownerCall, err := contractAbi.Pack("balanceOf", owner)
	require.NoError(t, err)
	otherCall, err := contractAbi.Pack("balanceOf", other)
	require.NoError(t, err)

	expected := [][]byte{word(1), word(2), word(3), word(2)}
	for i, calldata := range [][]byte{otherCall, ownerCall, ownerCall, ownerCall} {
		answer, answered := invoke(t, program, calldata)
		assert.True(t, answered)
		assert.EqualValues(t, expected[i], answer.Data, "invocation %d", i)
	}

	// Programming the same arguments again replaces the previous answer.
	balanceOf.SetAnswerForArgs(ownerArgs, &Answer{Data: word(4)})
	answer, _ := invoke(t, program, ownerCall)
	assert.EqualValues(t, word(4), answer.Data)
	assert.EqualValues(t, 5, balanceOf.CallCount())

	// A reset forgets every answer and restarts call indexes.
	program.Reset()
	assert.EqualValues(t, 0, balanceOf.CallCount())
	assert.Empty(t, balanceOf.Calls())
	answer, _ = invoke(t, program, ownerCall)
	assert.EqualValues(t, word(0), answer.Data)
}

// TestCallRecording checks invocations are recorded with their decoded arguments, and only when enabled.
func TestCallRecording(t *testing.T) {
	contractAbi := parseTestAbi(t, tokenAbiJSON)
	program := NewContractProgram(ContractKindFake, "Token", common.HexToAddress("0x1234"), contractAbi, true)
	transfer, err := program.Function("transfer")
	require.NoError(t, err)

	recipient := common.HexToAddress("0xcc")
	calldata, err := contractAbi.Pack("transfer", recipient, big.NewInt(77))
	require.NoError(t, err)
	invoke(t, program, calldata)

	calls := transfer.Calls()
	require.Len(t, calls, 1)
	assert.EqualValues(t, "transfer", calls[0].Function)
	assert.EqualValues(t, program.Address(), calls[0].To)
	assert.EqualValues(t, calldata, calls[0].Data)
	require.Len(t, calls[0].Args, 2)
	assert.EqualValues(t, recipient, calls[0].Args[0])
	assert.EqualValues(t, 0, big.NewInt(77).Cmp(calls[0].Args[1].(*big.Int)))

	// Undecodable arguments are recorded without arguments.
	invoke(t, program, calldata[:10])
	calls = transfer.Calls()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[1].Args)

	// Without recording, invocations are only counted.
	unrecorded := NewContractProgram(ContractKindFake, "Token", common.HexToAddress("0x1234"), contractAbi, false)
	invoke(t, unrecorded, calldata)
	unrecordedTransfer, err := unrecorded.Function("transfer")
	require.NoError(t, err)
	assert.EqualValues(t, 1, unrecordedTransfer.CallCount())
	assert.Empty(t, unrecordedTransfer.Calls())
}

// TestProgramErrors checks unknown functions and invalid values are rejected.
func TestProgramErrors(t *testing.T) {
	program := NewContractProgram(ContractKindFake, "Token", common.HexToAddress("0x1234"), parseTestAbi(t, tokenAbiJSON), true)

	_, err := program.Function("mint")
	assert.Error(t, err)

	balanceOf, err := program.Function("balanceOf")
	require.NoError(t, err)
	_, err = balanceOf.PackReturnValues("not a number")
	assert.Error(t, err)
	_, err = balanceOf.PackArgs()
	assert.Error(t, err)

	_, err = program.Fallback().PackReturnValues(big.NewInt(1))
	assert.Error(t, err)
	_, err = program.Fallback().PackArgs()
	assert.Error(t, err)
}
