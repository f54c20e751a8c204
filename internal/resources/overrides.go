package resources

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// overridesFile is the YAML layout of PULSE_RESOURCES_FILE:
//
//	resources:
//	  health:
//	    path: /v2/customers/{id}/health
//	    ttl: 45s
type overridesFile struct {
	Resources map[string]overrideProps `yaml:"resources"`
}

type overrideProps struct {
	Path string `yaml:"path,omitempty"`
	TTL  string `yaml:"ttl,omitempty"`
}

// LoadRegistry returns the default table with the overrides found in path
// applied. An empty path yields the defaults.
func LoadRegistry(path string) (*Registry, error) {
	descriptors := Defaults()
	if path == "" {
		return NewRegistry(descriptors), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources file: %w", err)
	}

	if err := applyOverrides(descriptors, data); err != nil {
		return nil, err
	}
	return NewRegistry(descriptors), nil
}

func applyOverrides(descriptors map[Kind]Descriptor, data []byte) error {
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse resources yaml: %w", err)
	}

	for name, props := range file.Resources {
		kind := Kind(name)
		d, ok := descriptors[kind]
		if !ok {
			return fmt.Errorf("unknown resource kind %q", name)
		}

		if props.Path != "" {
			d.Path = props.Path
		}
		if props.TTL != "" {
			ttl, err := time.ParseDuration(props.TTL)
			if err != nil {
				return fmt.Errorf("invalid ttl for %s: %w", name, err)
			}
			if !d.Cacheable && ttl > 0 {
				return fmt.Errorf("resource %s is not cacheable, ttl must stay 0", name)
			}
			d.TTL = ttl
		}
		descriptors[kind] = d
	}
	return nil
}
