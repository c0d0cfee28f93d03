// Package config provides configuration management for the jdb-mcp server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control launch, attach, modify, and invoke operations
//   - The target snapshot: java binary, runtime classpath, extra VM arguments
//   - Project sources: explicit source files plus roots scanned for sources
//   - Named launch profiles: reusable main-class/argument combinations
//
// Configuration can be loaded from a JSON file or use sensible defaults.
// The readonly mode exposes only inspection tools, while full mode enables
// all debugging capabilities including execution control.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctagard/jdb-mcp/internal/errors"
)

// CapabilityMode defines the level of debugging capabilities exposed.
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // inspection tools only
	ModeFull     CapabilityMode = "full"     // all tools enabled
)

// Profile is a named launch configuration.
type Profile struct {
	MainClass string   `json:"mainClass"`
	Args      []string `json:"args,omitempty"`
	Classpath []string `json:"classpath,omitempty"` // overrides Config.Classpath when set
	VMArgs    []string `json:"vmArgs,omitempty"`    // appended to Config.VMArgs
}

// Config holds the server configuration. The target fields form the
// immutable snapshot handed to the debug controller at construction.
type Config struct {
	// Capability levels
	Mode        CapabilityMode `json:"mode"`
	AllowLaunch bool           `json:"allowLaunch"`
	AllowAttach bool           `json:"allowAttach"`
	AllowModify bool           `json:"allowModify"`
	AllowInvoke bool           `json:"allowInvoke"`

	// Target snapshot
	JavaPath  string   `json:"javaPath"`
	Classpath []string `json:"classpath"`
	VMArgs    []string `json:"vmArgs"`

	// Project sources
	SourceFiles []string `json:"sourceFiles"`
	SourceRoots []string `json:"sourceRoots"`

	// Named launch profiles
	Profiles map[string]Profile `json:"profiles"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mode:        ModeFull,
		AllowLaunch: true,
		AllowAttach: true,
		AllowModify: true,
		AllowInvoke: true,
		JavaPath:    "java",
	}
}

// LoadConfig loads configuration from a JSON file. An empty path yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid,
			fmt.Sprintf("could not read configuration file %s", path),
			"Check that the path exists and is readable.", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigInvalid(err.Error()).WithCause(err)
	}

	return cfg, nil
}

// Profile resolves a named launch profile into a full command line plus the
// effective classpath and VM arguments.
func (c *Config) Profile(name string) (command, classpath, vmArgs []string, err error) {
	p, ok := c.Profiles[name]
	if !ok {
		return nil, nil, nil, fmt.Errorf("launch profile %q not found", name)
	}
	command = append([]string{p.MainClass}, p.Args...)
	classpath = c.Classpath
	if len(p.Classpath) > 0 {
		classpath = p.Classpath
	}
	vmArgs = append(append([]string{}, c.VMArgs...), p.VMArgs...)
	return command, classpath, vmArgs, nil
}

// CanUseControlTools returns true if control tools are enabled.
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanLaunch returns true if launching target VMs is allowed.
func (c *Config) CanLaunch() bool {
	return c.AllowLaunch
}

// CanAttach returns true if attaching to running VMs is allowed.
func (c *Config) CanAttach() bool {
	return c.AllowAttach
}

// CanModifyValues returns true if value writes are allowed.
func (c *Config) CanModifyValues() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanInvoke returns true if target method invocation (toString rendering)
// is allowed.
func (c *Config) CanInvoke() bool {
	return c.AllowInvoke
}
