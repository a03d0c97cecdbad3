package config

import (
	"github.com/crytic/medusa-smock/chain/config"
	"github.com/crytic/medusa-smock/version"
	"github.com/rs/zerolog"
)

// SelfHostedNetworkName is the name of the network hosted in process by node.Runtime.
const SelfHostedNetworkName = "medusa"

// GetDefaultProjectConfig obtains a default configuration for a project.
func GetDefaultProjectConfig() *ProjectConfig {
	// Obtain a default test chain config. This cannot fail, the default does not parse anything.
	testChainConfig, _ := config.DefaultTestChainConfig()

	// Create a project configuration
	projectConfig := &ProjectConfig{
		Runtime: RuntimeConfig{
			NetworkName: SelfHostedNetworkName,
			HostVersion: version.Version,
			Accounts: []string{
				"0x10000",
				"0x20000",
				"0x30000",
			},
			AccountBalance:      "10000",
			BlockGasLimit:       125_000_000,
			TransactionGasLimit: 12_500_000,
			ArtifactsDirectory:  "",
			TestChain:           *testChainConfig,
		},
		Smock: SmockConfig{
			DefaultFakeGasCost: 100,
			RecordCalls:        true,
		},
		Logging: LoggingConfig{
			Level:                zerolog.InfoLevel,
			EnableConsoleLogging: true,
			LogDirectory:         "",
			NoColor:              false,
		},
	}

	// Return the project configuration
	return projectConfig
}
