package apply

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicy reads a stage→field→value YAML document of default payload
// values. Record payload fields win over policy defaults.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	raw := make(map[string]map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	out := make(Policy, len(raw))
	for name, fields := range raw {
		out[Stage(name)] = fields
	}
	return out, nil
}
