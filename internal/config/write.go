package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var sectionComments = map[string]string{
	"log":        "# Logging: level is debug|info|warn|error, format is json|console.",
	"regions":    "# Area codes to sweep. Every region is swept for every category.",
	"categories": "# Job category codes. The name is stored in the JobCat column.",
	"search":     "# Search API endpoints and fixed list query parameters.",
	"http":       "# HTTP session: timeouts, headers, transport retries and backoff.",
	"pacing":     "# Random pauses after each list page and between tasks.",
	"storage":    "# Persistence backend: postgres, mysql or sqlite.\n# Override the DSN with HARVESTER_STORAGE_DSN.",
	"harvest":    "# Number of tasks swept in parallel.",
	"notify":     "# Redis notifier; leave redis_addr empty to disable.",
}

// Marshal renders cfg as YAML with a comment above each section.
func Marshal(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if c, ok := sectionComments[key.Value]; ok {
			key.HeadComment = c
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

// WriteDefault writes the default configuration to path. An existing file
// is kept unless force is set, in which case it is moved to path.bak.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists", path)
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	return saveAtomic(path, data)
}

func saveAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	bak := path + ".bak"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	_ = os.Remove(bak)
	_ = os.Rename(path, bak)
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
