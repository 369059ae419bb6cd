package engine

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// WorkflowConfig configures one workflow entry.
type WorkflowConfig struct {
	Engine       string `yaml:"engine"`
	Level        Level  `yaml:"level"`
	Scheduler    string `yaml:"scheduler"`
	Command      string `yaml:"command"`
	AnalysisRoot string `yaml:"analysis_root"`
}

// Config is the on-disk workflow configuration.
type Config struct {
	Workflows map[string]WorkflowConfig `yaml:"workflows"`
}

// LoadConfig reads and validates the workflow configuration file.
// A missing or empty mapping is a fatal configuration error.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read workflow config %v", path)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse workflow config %v", path)
	}

	if len(cfg.Workflows) == 0 {
		return nil, errors.Errorf("workflow config %v defines no workflows", path)
	}

	for name, wcfg := range cfg.Workflows {
		switch wcfg.Level {
		case LevelSample, LevelSeqrun:
		default:
			return nil, errors.Errorf(
				"workflow %v has invalid level %q", name, wcfg.Level,
			)
		}
		if wcfg.Engine == "" {
			return nil, errors.Errorf("workflow %v is missing an engine", name)
		}
		if wcfg.Scheduler == "" {
			return nil, errors.Errorf("workflow %v is missing a scheduler", name)
		}
	}

	return cfg, nil
}
