package contracts

import (
	"strings"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/compilation/types"
	"github.com/pkg/errors"
)

// defaultFakeName is the name given to fakes created from an ABI rather than a named artifact.
const defaultFakeName = "FakeContract"

// ArtifactSource resolves compiled contracts by name. node.Runtime implements it.
type ArtifactSource interface {
	// Artifact returns the compiled contract with the provided name.
	Artifact(name string) (*types.CompiledContract, error)
}

// FakeContractSpec describes the interface a fake implements. Exactly one of its sources is set, use FromABIJSON,
// FromABI or FromArtifact to create one.
type FakeContractSpec struct {
	// abiJSON is a JSON ABI definition.
	abiJSON string

	// contractAbi is a parsed ABI.
	contractAbi *abi.ABI

	// artifactName is the name of a compiled contract whose ABI is used.
	artifactName string
}

// FromABIJSON creates a FakeContractSpec from a JSON ABI definition.
func FromABIJSON(definition string) FakeContractSpec {
	return FakeContractSpec{abiJSON: definition}
}

// FromABI creates a FakeContractSpec from a parsed ABI.
func FromABI(contractAbi *abi.ABI) FakeContractSpec {
	return FakeContractSpec{contractAbi: contractAbi}
}

// FromArtifact creates a FakeContractSpec from the ABI of the named compiled contract.
func FromArtifact(name string) FakeContractSpec {
	return FakeContractSpec{artifactName: name}
}

// Resolve obtains the ABI the spec describes, looking up artifacts in the provided source.
// Returns the ABI and a readable name for the fake, or an error if the ABI could not be obtained.
func (s FakeContractSpec) Resolve(artifacts ArtifactSource) (*abi.ABI, string, error) {
	switch {
	case s.contractAbi != nil:
		return s.contractAbi, defaultFakeName, nil
	case s.abiJSON != "":
		contractAbi, err := abi.JSON(strings.NewReader(s.abiJSON))
		if err != nil {
			return nil, "", errors.Wrap(err, "could not parse the ABI definition of the fake")
		}
		return &contractAbi, defaultFakeName, nil
	case s.artifactName != "":
		if artifacts == nil {
			return nil, "", errors.Errorf("could not resolve artifact %s, no artifact source was provided", s.artifactName)
		}
		contract, err := artifacts.Artifact(s.artifactName)
		if err != nil {
			return nil, "", err
		}
		return &contract.Abi, contract.Name, nil
	default:
		return nil, "", errors.New("could not resolve the fake's ABI, the spec is empty")
	}
}

// FakeContractOptions describes the options used to create a fake.
type FakeContractOptions struct {
	// Address is the address the fake is installed at. If nil, a random address is used.
	Address *common.Address
}

// MockOptions describes the options used to create a mock factory.
type MockOptions struct {
	// From is the account mocks are deployed from. If nil, the node's first account is used.
	From *common.Address
}
