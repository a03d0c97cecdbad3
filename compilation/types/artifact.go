package types

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/crytic/medusa-geth/common/hexutil"
	"github.com/pkg/errors"
)

// artifactJson describes the subset of a Hardhat-style compilation artifact which is parsed into a CompiledContract.
type artifactJson struct {
	ContractName     string `json:"contractName"`
	SourceName       string `json:"sourceName"`
	Abi              any    `json:"abi"`
	Bytecode         string `json:"bytecode"`
	DeployedBytecode string `json:"deployedBytecode"`
}

// ParseArtifact parses a Hardhat-style compilation artifact into a CompiledContract.
func ParseArtifact(data []byte) (*CompiledContract, error) {
	var artifact artifactJson
	err := json.Unmarshal(data, &artifact)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if artifact.ContractName == "" {
		return nil, errors.New("artifact does not declare a contract name")
	}

	contractAbi, err := ParseABIFromInterface(artifact.Abi)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse the ABI of contract %s", artifact.ContractName)
	}
	initBytecode, err := decodeArtifactBytecode(artifact.Bytecode)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode the init bytecode of contract %s", artifact.ContractName)
	}
	runtimeBytecode, err := decodeArtifactBytecode(artifact.DeployedBytecode)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode the runtime bytecode of contract %s", artifact.ContractName)
	}

	return &CompiledContract{
		Name:            artifact.ContractName,
		SourcePath:      artifact.SourceName,
		Abi:             *contractAbi,
		InitBytecode:    initBytecode,
		RuntimeBytecode: runtimeBytecode,
	}, nil
}

// decodeArtifactBytecode decodes a hex string with or without its 0x prefix. Empty strings decode to empty bytecode.
func decodeArtifactBytecode(code string) ([]byte, error) {
	if code == "" || code == "0x" {
		return []byte{}, nil
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	if strings.Contains(code, "__") {
		return nil, errors.New("bytecode contains unlinked library placeholders")
	}
	return hexutil.Decode(code)
}

// LoadArtifact reads and parses the Hardhat-style compilation artifact at the provided path.
func LoadArtifact(path string) (*CompiledContract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	contract, err := ParseArtifact(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load artifact %s", path)
	}
	return contract, nil
}

// LoadArtifactsFromDirectory walks the provided directory and loads every compilation artifact found, keyed by
// contract name. Debug artifacts (*.dbg.json) and build info files are skipped.
// Returns an error if two artifacts declare the same contract name.
func LoadArtifactsFromDirectory(directory string) (map[string]*CompiledContract, error) {
	contracts := make(map[string]*CompiledContract)
	err := filepath.WalkDir(directory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || strings.HasSuffix(path, ".dbg.json") {
			return nil
		}

		contract, err := LoadArtifact(path)
		if err != nil {
			return err
		}
		if existing, ok := contracts[contract.Name]; ok {
			return errors.Errorf("contract %s is declared by both %s and %s", contract.Name, existing.SourcePath, contract.SourcePath)
		}
		contracts[contract.Name] = contract
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return contracts, nil
}
