package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultProjectConfigIsValid checks that the default configuration passes validation.
func TestDefaultProjectConfigIsValid(t *testing.T) {
	projectConfig := GetDefaultProjectConfig()
	require.NoError(t, projectConfig.Validate())
	assert.EqualValues(t, SelfHostedNetworkName, projectConfig.Runtime.NetworkName)
	assert.Len(t, projectConfig.Runtime.Accounts, 3)
}

// TestProjectConfigFileFormats writes and reads back the configuration as JSON and YAML.
func TestProjectConfigFileFormats(t *testing.T) {
	for _, fileName := range []string{"smock.json", "smock.yaml", "smock.yml"} {
		t.Run(fileName, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), fileName)

			projectConfig := GetDefaultProjectConfig()
			projectConfig.Runtime.HostVersion = "0.1.5"
			projectConfig.Runtime.ArtifactsDirectory = "artifacts"
			projectConfig.Logging.Level = zerolog.DebugLevel
			projectConfig.Smock.DefaultFakeGasCost = 2500
			require.NoError(t, projectConfig.WriteToFile(path))

			readConfig, err := ReadProjectConfigFromFile(path)
			require.NoError(t, err)
			assert.EqualValues(t, projectConfig, readConfig)
		})
	}
}

// TestReadPartialProjectConfig checks that values missing from a file keep their defaults.
func TestReadPartialProjectConfig(t *testing.T) {
	directory := t.TempDir()

	yamlPath := filepath.Join(directory, "partial.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("runtime:\n  networkName: hardhat\nlogging:\n  level: warn\n"), 0644))
	projectConfig, err := ReadProjectConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.EqualValues(t, "hardhat", projectConfig.Runtime.NetworkName)
	assert.EqualValues(t, zerolog.WarnLevel, projectConfig.Logging.Level)
	assert.EqualValues(t, GetDefaultProjectConfig().Runtime.BlockGasLimit, projectConfig.Runtime.BlockGasLimit)

	jsonPath := filepath.Join(directory, "partial.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"smock": {"recordCalls": false}}`), 0644))
	projectConfig, err = ReadProjectConfigFromFile(jsonPath)
	require.NoError(t, err)
	assert.False(t, projectConfig.Smock.RecordCalls)
	assert.EqualValues(t, 100, projectConfig.Smock.DefaultFakeGasCost)

	// Malformed and missing files are reported.
	badPath := filepath.Join(directory, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte(`{"runtime": `), 0644))
	_, err = ReadProjectConfigFromFile(badPath)
	assert.Error(t, err)
	_, err = ReadProjectConfigFromFile(filepath.Join(directory, "missing.json"))
	assert.Error(t, err)
}

// TestProjectConfigValidate checks each validation rule rejects a bad value.
func TestProjectConfigValidate(t *testing.T) {
	testCases := map[string]func(p *ProjectConfig){
		"empty network":         func(p *ProjectConfig) { p.Runtime.NetworkName = "" },
		"bad host version":      func(p *ProjectConfig) { p.Runtime.HostVersion = "latest" },
		"tx gas over block gas": func(p *ProjectConfig) { p.Runtime.TransactionGasLimit = p.Runtime.BlockGasLimit + 1 },
		"zero gas limits": func(p *ProjectConfig) {
			p.Runtime.BlockGasLimit = 0
			p.Runtime.TransactionGasLimit = 0
		},
		"no accounts":        func(p *ProjectConfig) { p.Runtime.Accounts = nil },
		"malformed account":  func(p *ProjectConfig) { p.Runtime.Accounts = []string{"0xnothex"} },
		"malformed balance":  func(p *ProjectConfig) { p.Runtime.AccountBalance = "lots" },
		"negative balance":   func(p *ProjectConfig) { p.Runtime.AccountBalance = "-1" },
		"zero fake gas cost": func(p *ProjectConfig) { p.Smock.DefaultFakeGasCost = 0 },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			projectConfig := GetDefaultProjectConfig()
			mutate(projectConfig)
			assert.Error(t, projectConfig.Validate())
		})
	}
}
