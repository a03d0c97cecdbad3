package sandbox

import (
	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/node"
	"github.com/pkg/errors"
)

// ErrNoHostAdapter is returned when no host adapter supports the version of a host.
var ErrNoHostAdapter = errors.New("no host adapter supports the host version")

// hostAdapter describes how a range of host versions reports the outcome of an execution.
type hostAdapter struct {
	// name is a readable name for the adapter.
	name string

	// constraint is the semantic version constraint the host version must satisfy.
	constraint string

	// isRevert indicates whether a failed execution ended with an explicit REVERT.
	isRevert func(result *node.ExecutionResult) bool
}

// hostAdapters are the known host adapters, in order of preference.
var hostAdapters = []*hostAdapter{
	{
		// Hosts before 0.2.0 only report the raw EVM error of an execution.
		name:       "legacy",
		constraint: "<0.2.0",
		isRevert: func(result *node.ExecutionResult) bool {
			return errors.Is(result.Err, vm.ErrExecutionReverted)
		},
	},
	{
		name:       "exit-kind",
		constraint: ">=0.2.0",
		isRevert: func(result *node.ExecutionResult) bool {
			return result.ExitKind == node.ExitKindRevert
		},
	},
}

// selectHostAdapter returns the first host adapter whose constraint the provided version satisfies.
// Returns ErrNoHostAdapter if no adapter supports the version.
func selectHostAdapter(version *semver.Version) (*hostAdapter, error) {
	for _, adapter := range hostAdapters {
		constraint, err := semver.NewConstraint(adapter.constraint)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse the constraint of host adapter %s", adapter.name)
		}
		if constraint.Check(version) {
			return adapter, nil
		}
	}
	return nil, errors.Wrapf(ErrNoHostAdapter, "host version %s", version.String())
}
