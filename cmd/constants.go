package cmd

// DefaultProjectConfigFilename describes the default config filename for a given project folder.
const DefaultProjectConfigFilename = "medusa-smock.json"

// DefaultConfigFormat describes the serialization format used by init when none is provided.
const DefaultConfigFormat = "json"

// supportedConfigFormats maps a serialization format accepted by init to the file extension it is written with.
var supportedConfigFormats = map[string]string{
	"json": ".json",
	"yaml": ".yaml",
}
