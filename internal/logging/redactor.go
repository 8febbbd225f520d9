// Package logging scrubs secrets from log output. Approval commands and
// runtime envelopes can carry tokens verbatim, so every record passes
// through a redactor before it reaches a sink.
package logging

import (
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Placeholder replaces redacted secret values.
const Placeholder = "***REDACTED***"

// secretKeyPattern matches config keys whose values must never be logged.
var secretKeyPattern = regexp.MustCompile(`(?i)(token|secret|pass|credential|api_key)`)

// Redactor replaces secret values in strings with Placeholder. It matches
// both known token formats and literal values registered at startup.
// Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with patterns for common token
// formats (OpenAI, Anthropic, GitHub, AWS, bearer credentials).
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
			regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/\-]{16,}`),
		},
	}
}

// AddLiteral registers a literal secret value to redact on sight.
// Empty strings are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with all known secret patterns and literals replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, Placeholder)
		}
	}
	return s
}

// ConfigSecrets walks module configuration and collects scalar values
// stored under secret-looking keys (token, password, ...). The result is
// fed to AddLiteral so configured credentials never appear in logs, no
// matter which module logs them.
func ConfigSecrets(modules map[string]yaml.Node) []string {
	var secrets []string
	for _, node := range modules {
		n := node
		secrets = collectSecrets(&n, false, secrets)
	}
	return secrets
}

func collectSecrets(node *yaml.Node, underSecretKey bool, acc []string) []string {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			acc = collectSecrets(child, underSecretKey, acc)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			acc = collectSecrets(value, secretKeyPattern.MatchString(key.Value), acc)
		}
	case yaml.SequenceNode:
		for _, child := range node.Content {
			acc = collectSecrets(child, underSecretKey, acc)
		}
	case yaml.ScalarNode:
		if underSecretKey && node.Value != "" {
			acc = append(acc, node.Value)
		}
	}
	return acc
}
