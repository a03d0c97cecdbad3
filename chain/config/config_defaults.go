package config

// DefaultTestChainConfig obtains a default configuration for a chain.TestChain.
// Returns a TestChainConfig populated with default values.
func DefaultTestChainConfig() (*TestChainConfig, error) {
	config := &TestChainConfig{
		CodeSizeCheckDisabled: true,
	}
	return config, nil
}
