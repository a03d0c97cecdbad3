package node

import (
	"sync"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-smock/compilation/types"
	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/logging"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ErrArtifactNotFound is returned when a requested compiled contract is not known to the Runtime.
var ErrArtifactNotFound = errors.New("artifact not found")

// Runtime is the in-process test runtime. It owns a lazily initialized Node through its Provider and the compiled
// contracts tests deploy.
type Runtime struct {
	// config describes the configuration the runtime was created with.
	config config.RuntimeConfig

	// version is the parsed config.RuntimeConfig.HostVersion.
	version *semver.Version

	// provider owns the runtime's Node.
	provider *Provider

	// artifacts maps a contract name to its compiled contract.
	artifacts map[string]*types.CompiledContract

	// artifactsLock guards artifacts.
	artifactsLock sync.Mutex

	// logger describes the Runtime's log object that can be used to log important events
	logger *logging.Logger
}

// NewRuntime creates a Runtime from the provided configuration, loading any artifacts from the configured artifacts
// directory. The Node is not created until Provider.Init is called.
// Returns the Runtime, or an error if one occurred.
func NewRuntime(cfg *config.RuntimeConfig) (*Runtime, error) {
	if cfg == nil {
		cfg = &config.GetDefaultProjectConfig().Runtime
	}

	hostVersion, err := semver.NewVersion(cfg.HostVersion)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse host version %q", cfg.HostVersion)
	}

	runtime := &Runtime{
		config:    *cfg,
		version:   hostVersion,
		artifacts: make(map[string]*types.CompiledContract),
		logger:    logging.GlobalLogger.NewSubLogger("module", logging.NODE_SERVICE),
	}
	runtime.provider = &Provider{runtime: runtime}

	if cfg.ArtifactsDirectory != "" {
		artifacts, err := types.LoadArtifactsFromDirectory(cfg.ArtifactsDirectory)
		if err != nil {
			return nil, errors.Wrapf(err, "could not load artifacts from %s", cfg.ArtifactsDirectory)
		}
		runtime.artifacts = artifacts
		runtime.logger.Info("Loaded ", len(artifacts), " artifacts from ", cfg.ArtifactsDirectory)
	}
	return runtime, nil
}

// Config returns the configuration the Runtime was created with.
func (r *Runtime) Config() config.RuntimeConfig {
	return r.config
}

// Network returns the network the Runtime reports as active.
func (r *Runtime) Network() Network {
	return Network{Name: r.config.NetworkName}
}

// Provider returns the Provider which owns the Runtime's Node.
func (r *Runtime) Provider() *Provider {
	return r.provider
}

// Version returns the semantic version the Runtime reports.
func (r *Runtime) Version() *semver.Version {
	return r.version
}

// Artifact returns the compiled contract with the provided name.
// Returns ErrArtifactNotFound if no such contract is known.
func (r *Runtime) Artifact(name string) (*types.CompiledContract, error) {
	r.artifactsLock.Lock()
	defer r.artifactsLock.Unlock()

	contract, ok := r.artifacts[name]
	if !ok {
		return nil, errors.Wrapf(ErrArtifactNotFound, "could not resolve contract %q", name)
	}
	return contract, nil
}

// Artifacts returns the sorted names of all compiled contracts known to the Runtime.
func (r *Runtime) Artifacts() []string {
	r.artifactsLock.Lock()
	defer r.artifactsLock.Unlock()

	names := make([]string, 0, len(r.artifacts))
	for name := range r.artifacts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RegisterArtifact adds a compiled contract to the Runtime, replacing any contract with the same name.
func (r *Runtime) RegisterArtifact(contract *types.CompiledContract) error {
	if contract == nil || contract.Name == "" {
		return errors.New("could not register artifact, a named contract must be provided")
	}

	r.artifactsLock.Lock()
	defer r.artifactsLock.Unlock()
	r.artifacts[contract.Name] = contract
	return nil
}

// artifactsSnapshot returns a copy of the compiled contracts known to the Runtime.
func (r *Runtime) artifactsSnapshot() []*types.CompiledContract {
	r.artifactsLock.Lock()
	defer r.artifactsLock.Unlock()
	contracts := make([]*types.CompiledContract, 0, len(r.artifacts))
	for _, contract := range r.artifacts {
		contracts = append(contracts, contract)
	}
	return contracts
}
