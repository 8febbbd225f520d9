package config

import (
	"maps"
	"slices"
)

// Resolve returns the configured module IDs in sorted order. The order is
// deterministic and doubles as the load and start order.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
