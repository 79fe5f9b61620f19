package config

import (
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// yamlOverlay is the optional config.yaml/config.yml shape §A.2 names:
// expert seed path, project registry, and a per-model LLM timeout table.
// Grounded on the teacher's loadSpecialists (internal/config/loader.go) —
// same optional-file, env-wins-then-yaml-fills-gaps layering, generalized
// from its specialist-roster shape to this spec's narrower fields.
type yamlOverlay struct {
	ExpertSeedPath   string         `yaml:"expertSeedPath"`
	ProjectRegistry  []string       `yaml:"projectRegistry"`
	ModelTimeoutsSec map[string]int `yaml:"modelTimeoutsSec"`
}

// loadYAMLOverlay reads CONFIG_YAML_PATH, or failing that config.yaml /
// config.yml in the working directory, and fills cfg fields the
// environment left at their default. Absence of the file is not an error —
// the overlay is optional.
func loadYAMLOverlay(cfg *Config, expertSeedFromEnv, projectRegistryFromEnv bool) error {
	var candidates []string
	if p := strings.TrimSpace(os.Getenv("CONFIG_YAML_PATH")); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, "config.yaml", "config.yml")

	var data []byte
	for _, p := range candidates {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
	}
	if len(data) == 0 {
		return nil
	}

	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}

	if !expertSeedFromEnv && strings.TrimSpace(overlay.ExpertSeedPath) != "" {
		cfg.ExpertSeedPath = overlay.ExpertSeedPath
	}
	if !projectRegistryFromEnv && len(overlay.ProjectRegistry) > 0 {
		cfg.ProjectRegistry = overlay.ProjectRegistry
	}
	if len(overlay.ModelTimeoutsSec) > 0 {
		cfg.Router.ModelTimeouts = make(map[string]time.Duration, len(overlay.ModelTimeoutsSec))
		for model, sec := range overlay.ModelTimeoutsSec {
			cfg.Router.ModelTimeouts[model] = time.Duration(sec) * time.Second
		}
	}
	return nil
}
