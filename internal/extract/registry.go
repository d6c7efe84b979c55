package extract

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Strategy names accepted in configuration.
const (
	StrategyTable          = "table"
	StrategyDefinitionList = "definition_list"
)

var strategies = map[string]Extractor{
	StrategyTable:          TableExtractor{},
	StrategyDefinitionList: DefinitionListExtractor{},
}

// Registry picks an Extractor by source host.
type Registry struct {
	fallback Extractor
	byHost   map[string]Extractor
}

// NewRegistry returns a registry that uses fallback for unknown hosts.
func NewRegistry(fallback Extractor) *Registry {
	if fallback == nil {
		fallback = TableExtractor{}
	}
	return &Registry{fallback: fallback, byHost: map[string]Extractor{}}
}

// NewRegistryFromConfig builds a registry from a host to strategy-name map.
func NewRegistryFromConfig(sources map[string]string) (*Registry, error) {
	r := NewRegistry(nil)
	for host, name := range sources {
		ex, ok := strategies[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown extraction strategy %q for host %q (known: %s)",
				name, host, strings.Join(StrategyNames(), ", "))
		}
		r.Register(host, ex)
	}
	return r, nil
}

// Register binds a host (case-insensitive, without port) to an Extractor.
func (r *Registry) Register(host string, ex Extractor) {
	r.byHost[strings.ToLower(strings.TrimSpace(host))] = ex
}

// For returns the Extractor for rawURL's host, or the fallback.
func (r *Registry) For(rawURL string) Extractor {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.fallback
	}
	if ex, ok := r.byHost[strings.ToLower(u.Hostname())]; ok {
		return ex
	}
	return r.fallback
}

// StrategyNames lists the built-in strategies.
func StrategyNames() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
