package cmd

import (
	"math/big"

	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/contracts"
	"github.com/crytic/medusa-smock/smock/sandbox"
	"github.com/pkg/errors"
)

// selfTestAbi describes the interface faked by the self-test.
const selfTestAbi = `[{"type":"function","name":"value","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"}]`

// selfTestReason is the reason the self-test fake rejects with.
const selfTestReason = "medusa-smock self-test"

// runSelfTest fakes a small interface on the provided session, then verifies that a programmed value is returned
// and a programmed rejection is reported with its reason.
// Returns an error describing the first check which failed.
func runSelfTest(session *sandbox.Sandbox) error {
	fake, err := session.Fake(contracts.FromABIJSON(selfTestAbi), contracts.FakeContractOptions{})
	if err != nil {
		return err
	}
	function, err := fake.Function("value")
	if err != nil {
		return err
	}

	accounts := session.Node().Accounts()
	if len(accounts) == 0 {
		return errors.New("the node has no accounts to call the fake from")
	}
	signer, err := session.Node().GetSigner(accounts[0])
	if err != nil {
		return err
	}
	method := fake.Abi().Methods["value"]

	// A programmed value must be returned as is
	expected := big.NewInt(42)
	err = function.Returns(expected)
	if err != nil {
		return err
	}
	result, err := signer.Call(fake.Address(), method.ID)
	if err != nil {
		return errors.Wrap(err, "calling the programmed fake failed")
	}
	values, err := method.Outputs.Unpack(result.ReturnData)
	if err != nil {
		return errors.Wrap(err, "could not decode the answer of the fake")
	}
	if value, ok := values[0].(*big.Int); !ok || value.Cmp(expected) != 0 {
		return errors.Errorf("the fake answered %v, expected %v", values[0], expected)
	}
	cmdLogger.Info("Fake ", fake.Address().String(), " answered the programmed value ", expected.String())

	// A programmed rejection must be reported as a revert carrying its reason
	function.RevertsWith(selfTestReason)
	_, err = signer.Call(fake.Address(), method.ID)
	if err == nil {
		return errors.New("the fake was programmed to reject but its invocation succeeded")
	}
	var executionError *node.TransactionExecutionError
	if !errors.As(err, &executionError) {
		return errors.Wrap(err, "the rejection was not reported as an execution error")
	}
	if executionError.Reason != selfTestReason {
		return errors.Errorf("the rejection was reported with reason %q, expected %q", executionError.Reason, selfTestReason)
	}
	cmdLogger.Info("Fake ", fake.Address().String(), " rejected with: ", executionError.Message)
	return nil
}
