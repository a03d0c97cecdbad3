package node

import (
	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-smock/compilation/types"
)

// Network describes the network a Host is connected to.
type Network struct {
	// Name is the name of the network.
	Name string
}

// Host describes a test runtime which sessions attach to. Runtime is the in-process implementation.
type Host interface {
	// Network returns the network the host is connected to.
	Network() Network

	// Provider returns the provider which owns the host's Node.
	Provider() *Provider

	// Version returns the semantic version of the host.
	Version() *semver.Version

	// Artifact returns the compiled contract with the provided name.
	Artifact(name string) (*types.CompiledContract, error)
}
