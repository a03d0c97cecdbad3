package sandbox

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-smock/compilation/abiutils"
	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/logging"
	"github.com/crytic/medusa-smock/logging/colors"
	"github.com/crytic/medusa-smock/node"
	"github.com/crytic/medusa-smock/smock/contracts"
	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/crytic/medusa-smock/smock/observable"
	"github.com/crytic/medusa-smock/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// ErrUnsupportedNetwork is returned when a session is requested on a host whose active network is not the
// self-hosted network.
var ErrUnsupportedNetwork = errors.New("smock is only compatible with the self-hosted network")

// rejectionMessagePrefix prefixes the message of every error describing a synthetic rejection.
const rejectionMessagePrefix = "VM Exception while processing transaction: revert "

// Sandbox is a smock session attached to the node of a host. It owns the dispatcher answering for every fake and mock
// created through it, and patches the node's error classifier so synthetic rejections are reported with their reason.
type Sandbox struct {
	// id uniquely identifies the session in logs.
	id uuid.UUID

	// host is the host the session is attached to.
	host node.Host

	// node is the host's node.
	node *node.Node

	// adapter describes how the host reports execution outcomes.
	adapter *hostAdapter

	// bridge is the event bridge over the node's VM.
	bridge *observable.ObservableVM

	// dispatcher answers for the session's fakes and mocks.
	dispatcher *logic.Dispatcher

	// nonce is the next value returned by GetNextNonce.
	nonce uint64

	// nonceLock guards nonce.
	nonceLock sync.Mutex

	// logger describes the Sandbox's log object that can be used to log important events
	logger *logging.Logger
}

var (
	// sandboxes maps a node to the session attached to it.
	sandboxes = make(map[*node.Node]*Sandbox)

	// sandboxesLock guards sandboxes.
	sandboxesLock sync.Mutex
)

// Create returns the session attached to the provided host's node, creating it with the default smock configuration
// if needed. See CreateWithConfig.
func Create(ctx context.Context, host node.Host) (*Sandbox, error) {
	return CreateWithConfig(ctx, host, nil)
}

// CreateWithConfig returns the session attached to the provided host's node, creating it if needed. The host must be
// on the self-hosted network, and its node is initialized if it was not yet. A new session installs the dispatcher
// and patches the node's error classifier, an existing session is returned as is and the provided configuration is
// ignored. A nil config uses the default smock configuration.
// Returns the Sandbox, or an error if the host cannot host a session.
func CreateWithConfig(ctx context.Context, host node.Host, cfg *config.SmockConfig) (*Sandbox, error) {
	if host == nil {
		return nil, errors.New("could not create smock session, no host was provided")
	}

	network := host.Network()
	if network.Name != config.SelfHostedNetworkName {
		return nil, errors.Wrapf(ErrUnsupportedNetwork, "got network %q, expected %q", network.Name, config.SelfHostedNetworkName)
	}

	// Initialize the node in case it hasn't been already
	hostNode := host.Provider().Node()
	if hostNode == nil {
		var err error
		hostNode, err = host.Provider().Init(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "could not initialize the host's node")
		}
	}

	sandboxesLock.Lock()
	defer sandboxesLock.Unlock()

	if sandbox, ok := sandboxes[hostNode]; ok {
		return sandbox, nil
	}

	adapter, err := selectHostAdapter(host.Version())
	if err != nil {
		return nil, err
	}
	bridge, err := observable.New(hostNode.Chain())
	if err != nil {
		return nil, errors.Wrap(err, "could not observe the host's VM")
	}

	sandbox := &Sandbox{
		id:      uuid.New(),
		host:    host,
		node:    hostNode,
		adapter: adapter,
		bridge:  bridge,
		logger:  logging.GlobalLogger.NewSubLogger("module", logging.SMOCK_SERVICE),
	}
	sandbox.dispatcher, err = logic.NewDispatcher(bridge, sandbox.GetNextNonce, cfg)
	if err != nil {
		return nil, err
	}
	sandbox.patchErrorManager()
	sandboxes[hostNode] = sandbox
	hostNode.Chain().OnClose(sandbox.release)

	sandbox.logger.Info("Created smock session ", colors.Bold, sandbox.id.String(), colors.Reset,
		" on network ", network.Name, " (host version ", host.Version().String(), ", ", adapter.name, " adapter)")
	return sandbox, nil
}

// release forgets the session and stops its dispatcher once its node's chain is closed.
func (s *Sandbox) release() {
	sandboxesLock.Lock()
	defer sandboxesLock.Unlock()
	if sandboxes[s.node] == s {
		delete(sandboxes, s.node)
	}
	s.dispatcher.Close()
	s.logger.Debug("Released smock session ", s.id.String())
}

// patchErrorManager wraps the node's error classifier so marked failure payloads are reported as reverts with their
// embedded reason. Any other failure is classified by the original classifier.
func (s *Sandbox) patchErrorManager() {
	original := s.node.ErrorManager()
	isRevert := s.adapter.isRevert
	s.node.SetErrorManager(func(result *node.ExecutionResult) error {
		if isRevert(result) {
			if payload, ok := logic.SplitMarker(result.ReturnData); ok {
				reason := abiutils.DecodeRevertReason(payload)
				return &node.TransactionExecutionError{
					Message:      rejectionMessagePrefix + reason,
					Reason:       reason,
					ReasonOffset: len(logic.SmockMarker),
					ExitKind:     result.ExitKind,
					GasUsed:      result.GasUsed,
					ReturnData:   result.ReturnData,
					Err:          result.Err,
				}
			}
		}
		return original(result)
	})
	s.logger.Debug("Patched the error classifier of session ", s.id.String())
}

// ID returns the unique identifier of the session.
func (s *Sandbox) ID() string {
	return s.id.String()
}

// Node returns the node the session is attached to.
func (s *Sandbox) Node() *node.Node {
	return s.node
}

// Bridge returns the event bridge over the node's VM.
func (s *Sandbox) Bridge() *observable.ObservableVM {
	return s.bridge
}

// Dispatcher returns the dispatcher answering for the session's fakes and mocks.
func (s *Sandbox) Dispatcher() *logic.Dispatcher {
	return s.dispatcher
}

// HostAdapter returns the name of the host adapter the session uses.
func (s *Sandbox) HostAdapter() string {
	return s.adapter.name
}

// GetNextNonce returns the session's nonce and increments it. Successive values are strictly increasing.
func (s *Sandbox) GetNextNonce() uint64 {
	s.nonceLock.Lock()
	defer s.nonceLock.Unlock()
	nonce := s.nonce
	s.nonce++
	return nonce
}

// Fake installs a fake implementing the interface the provided spec describes. The fake is installed at the address
// provided in the options, or at a random address.
// Returns the FakeContract, or an error if the spec could not be resolved, or the address already holds code or is
// an account in use.
func (s *Sandbox) Fake(spec contracts.FakeContractSpec, opts contracts.FakeContractOptions) (*contracts.FakeContract, error) {
	contractAbi, name, err := spec.Resolve(s.host)
	if err != nil {
		return nil, err
	}

	address := utils.MakeRandomAddress()
	if opts.Address != nil {
		address = *opts.Address
		if err := s.checkUnusedAccount(address); err != nil {
			return nil, err
		}
	}

	fake, err := contracts.CreateFakeContract(s.dispatcher, s.node, name, *contractAbi, address)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Created fake ", colors.Bold, name, colors.Reset, " at ", address.String())
	return fake, nil
}

// checkUnusedAccount returns an error if the provided address is an account already in use, one which has sent
// transactions or holds a balance. Installing a fake there would shadow the account.
func (s *Sandbox) checkUnusedAccount(address common.Address) error {
	manager := s.node.Chain().StateManager()
	if manager.GetNonce(address) != 0 || manager.GetBalance(address).Sign() != 0 {
		return errors.Errorf("could not install fake at %s, the address is an account in use", address.String())
	}
	return nil
}

// Mock returns a factory deploying mocks of the named compiled contract. Mocks are deployed from the account provided
// in the options, or from the node's first account.
// Returns the MockContractFactory, or an error if the contract is unknown to the host.
func (s *Sandbox) Mock(contractName string, opts contracts.MockOptions) (*contracts.MockContractFactory, error) {
	contract, err := s.host.Artifact(contractName)
	if err != nil {
		return nil, err
	}

	var from common.Address
	if opts.From != nil {
		from = *opts.From
	} else {
		accounts := s.node.Accounts()
		if len(accounts) == 0 {
			return nil, errors.Errorf("could not create mock factory for %s, the node has no accounts to deploy from", contractName)
		}
		from = accounts[0]
	}

	s.logger.Info("Created mock factory for ", colors.Bold, contractName, colors.Reset, " deploying from ", from.String())
	return contracts.NewMockContractFactory(s.dispatcher, s.node, contract, from), nil
}
