package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands ${VAR} and ${VAR:-default}
// references against the environment, and parses the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, err := expandEnv(string(raw))
	if err != nil {
		return nil, fmt.Errorf("config: expanding variables in %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} expressions. Variables
// without a value and without a default are collected into a single error
// so the operator sees all of them at once.
func expandEnv(raw string) (string, error) {
	var missing []error

	out := envPattern.ReplaceAllStringFunc(raw, func(match string) string {
		subs := envPattern.FindStringSubmatch(match)
		name := subs[1]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		// A ":-" inside the expression means a default is present, even
		// an empty one. Variable names cannot contain a colon.
		if strings.Contains(match, ":-") {
			return subs[2]
		}

		missing = append(missing, fmt.Errorf("unresolved variable: %s", name))
		return match
	})

	return out, errors.Join(missing...)
}
