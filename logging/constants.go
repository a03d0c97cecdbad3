package logging

// These constants are used to identify the various services that may do some logging
const (
	// CHAIN_SERVICE is the constant used to identify the chain package
	CHAIN_SERVICE = "chain"
	// NODE_SERVICE is the constant used to identify the node package
	NODE_SERVICE = "node"
	// SMOCK_SERVICE is the constant used to identify the smock packages
	SMOCK_SERVICE = "smock"
	// CLI_SERVICE is the constant used to identify the cmd package
	CLI_SERVICE = "cli"
)
