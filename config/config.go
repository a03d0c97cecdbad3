package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/crytic/medusa-smock/chain/config"
	"github.com/crytic/medusa-smock/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ProjectConfig describes the configuration of a runtime hosting smock sessions.
type ProjectConfig struct {
	// Runtime describes the configuration of the self-hosted test runtime.
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`

	// Smock describes the configuration used by fakes and mocks.
	Smock SmockConfig `json:"smock" yaml:"smock"`

	// Logging describes the configuration used for logging
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// RuntimeConfig describes the configuration options used by node.Runtime.
type RuntimeConfig struct {
	// NetworkName describes the name of the network the runtime reports as active. Sessions may only be created on
	// the self-hosted network.
	NetworkName string `json:"networkName" yaml:"networkName"`

	// HostVersion describes the semantic version the runtime reports to the sessions it hosts. It decides which
	// host adapter a session uses.
	HostVersion string `json:"hostVersion" yaml:"hostVersion"`

	// Accounts describe the addresses of the accounts owned by the node. They are funded at genesis.
	Accounts []string `json:"accounts" yaml:"accounts"`

	// AccountBalance describes the balance in ether each account is funded with, e.g. "10000" or "0.5".
	AccountBalance string `json:"accountBalance" yaml:"accountBalance"`

	// BlockGasLimit describes the maximum amount of gas that can be used in a block by transactions.
	BlockGasLimit uint64 `json:"blockGasLimit" yaml:"blockGasLimit"`

	// TransactionGasLimit describes the gas limit used by transactions which do not provide one.
	TransactionGasLimit uint64 `json:"transactionGasLimit" yaml:"transactionGasLimit"`

	// ArtifactsDirectory describes a directory of compilation artifacts the runtime loads. If empty, no artifacts
	// are loaded.
	ArtifactsDirectory string `json:"artifactsDirectory" yaml:"artifactsDirectory"`

	// TestChain represents the chain.TestChain config to use when initializing a chain.
	TestChain config.TestChainConfig `json:"chainConfig" yaml:"chainConfig"`
}

// SmockConfig describes the configuration options used by fakes and mocks.
type SmockConfig struct {
	// DefaultFakeGasCost describes the gas charged for every invocation answered by a fake.
	DefaultFakeGasCost uint64 `json:"defaultFakeGasCost" yaml:"defaultFakeGasCost"`

	// RecordCalls describes whether invocations of fakes and mocks are recorded for later inspection.
	RecordCalls bool `json:"recordCalls" yaml:"recordCalls"`
}

// LoggingConfig describes the configuration options used for logging
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels (eg info, warning, etc.) will be emitted or discarded.
	// Increasing level values represent more severe logs
	Level zerolog.Level `json:"level" yaml:"level"`

	// EnableConsoleLogging describes whether console logging is enabled
	EnableConsoleLogging bool `json:"enableConsoleLogging" yaml:"enableConsoleLogging"`

	// LogDirectory describes the directory where structured log _files_ will be outputted. If the string is empty, then
	// no log files are kept
	LogDirectory string `json:"logDirectory" yaml:"logDirectory"`

	// NoColor describes whether console output is left without ANSI color codes
	NoColor bool `json:"noColor" yaml:"noColor"`
}

// isYamlPath indicates whether the provided path should be serialized as YAML rather than JSON.
func isYamlPath(path string) bool {
	extension := strings.ToLower(filepath.Ext(path))
	return extension == ".yaml" || extension == ".yml"
}

// ReadProjectConfigFromFile reads a JSON or YAML-serialized ProjectConfig from a provided file path. The format is
// selected by the file extension. Values missing from the file keep their defaults.
// Returns the ProjectConfig if it succeeds, or an error if one occurs.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	// Read our project configuration file data
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Parse the project configuration over our defaults
	projectConfig := GetDefaultProjectConfig()
	if isYamlPath(path) {
		err = yaml.Unmarshal(b, projectConfig)
	} else {
		err = json.Unmarshal(b, projectConfig)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse project config %s", path)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in a JSON or YAML-serialized format, selected by the
// file extension.
// Returns an error if one occurs.
func (p *ProjectConfig) WriteToFile(path string) error {
	// Serialize the configuration
	var (
		b   []byte
		err error
	)
	if isYamlPath(path) {
		b, err = yaml.Marshal(p)
	} else {
		b, err = json.MarshalIndent(p, "", "\t")
	}
	if err != nil {
		return errors.WithStack(err)
	}

	// Save it to the provided output path and return the result
	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// Validate validates that the ProjectConfig meets certain requirements.
// Returns an error if one occurs.
func (p *ProjectConfig) Validate() error {
	// Verify the network and host version are set
	if p.Runtime.NetworkName == "" {
		return errors.Errorf("network name cannot be empty")
	}
	if _, err := semver.NewVersion(p.Runtime.HostVersion); err != nil {
		return errors.Wrapf(err, "host version %q is not a semantic version", p.Runtime.HostVersion)
	}

	// Verify gas limits are appropriate
	if p.Runtime.BlockGasLimit < p.Runtime.TransactionGasLimit {
		return errors.Errorf("block gas limit cannot be less than transaction gas limit")
	}
	if p.Runtime.BlockGasLimit == 0 || p.Runtime.TransactionGasLimit == 0 {
		return errors.Errorf("block and transaction gas limit cannot be zero")
	}

	// Verify that accounts are well-formed addresses
	if len(p.Runtime.Accounts) == 0 {
		return errors.Errorf("at least one account must be configured")
	}
	if _, err := utils.HexStringsToAddresses(p.Runtime.Accounts); err != nil {
		return errors.Errorf("malformed account address(es)")
	}

	// Verify the account balance is a non-negative amount of ether
	balance, err := utils.ParseEther(p.Runtime.AccountBalance)
	if err != nil {
		return errors.Wrapf(err, "malformed account balance %q", p.Runtime.AccountBalance)
	}
	if balance.Sign() < 0 {
		return errors.Errorf("account balance cannot be negative")
	}

	// Verify fakes are charged something, a zero cost precompile would make gas accounting meaningless
	if p.Smock.DefaultFakeGasCost == 0 {
		return errors.Errorf("default fake gas cost cannot be zero")
	}
	return nil
}
