// Package launch starts external services from descriptors, priority names
// first, and probes their health afterwards.
package launch

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// #region descriptor

// Descriptor names one executable with its arguments and environment
// overrides. HealthAddr, when set, is probed by Validate.
type Descriptor struct {
	Command       string            `yaml:"command" json:"command"`
	Args          []string          `yaml:"args" json:"args"`
	Env           map[string]string `yaml:"env" json:"env"`
	HealthAddr    string            `yaml:"health_addr" json:"health_addr,omitempty"`
	HealthService string            `yaml:"health_service" json:"health_service,omitempty"`
}

type descriptorFile struct {
	Servers map[string]Descriptor `yaml:"mcpServers"`
}

// LoadDescriptors reads the mcpServers map from a YAML or JSON file.
func LoadDescriptors(path string) (map[string]Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}
	var f descriptorFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse descriptors %s: %w", path, err)
	}
	if len(f.Servers) == 0 {
		return nil, errors.New("descriptors: no mcpServers entries")
	}
	for name, d := range f.Servers {
		if d.Command == "" {
			return nil, fmt.Errorf("descriptor %q: command is required", name)
		}
	}
	return f.Servers, nil
}

// envPairs renders overrides as KEY=VALUE in key order.
func envPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// #endregion descriptor
