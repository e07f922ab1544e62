package core

// EnvPrefix is prepended to every environment variable the CLI reads.
const EnvPrefix = "DOTAPPLY_"

// Flags are the global flags shared by every command.
type Flags struct {
	LogLevel       string
	ConfigFilePath string
	Shell          string
	IdentityFile   string
}
