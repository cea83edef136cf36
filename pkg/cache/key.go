package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached data-source response.
type Key struct {
	// Source is the data-source name (e.g. "census_acs").
	Source string

	// Endpoint is the logical endpoint or dataset path within the source.
	Endpoint string

	// Params are the request parameters (e.g. {"state": "06", "year": "2023"}).
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: datacore:source:endpoint:param1=val1:param2=val2
//
// Example:
//
//	datacore:census_acs:acs/acs5:state=06:year=2023
func (k Key) String() string {
	parts := []string{"datacore"}

	if k.Source != "" {
		parts = append(parts, k.Source)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Params sorted for determinism.
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}
