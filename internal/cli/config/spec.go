package config

// DefaultServer is the address of a local geoattend-server.
const DefaultServer = "localhost:5080"

// CLIConfig is the configuration for geoattend-cli.
type CLIConfig struct {
	// CurrentProfile names the profile used when --profile is not given.
	CurrentProfile string `yaml:"current_profile,omitempty"`

	// Output is the default output format (table, json, yaml).
	Output string `yaml:"output,omitempty"`

	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile stores the details needed to reach one server.
type Profile struct {
	Server   string `yaml:"server"`
	APIKeyID string `yaml:"api_key_id,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`

	// TenantID is used by commands that take --tenant when it is omitted.
	TenantID string `yaml:"tenant_id,omitempty"`

	CAFile   string `yaml:"ca_file,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Output:   "table",
		Profiles: make(map[string]Profile),
	}
}
