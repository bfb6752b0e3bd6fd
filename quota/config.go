package quota

import (
	"fmt"
	"sort"

	"github.com/adjutant-go/adjutant/services"
)

// AllRegions is the Services key used for regions without their own list.
const AllRegions = "*"

// Config describes the quota size table and which services take part in
// reconciliation.
type Config struct {
	// Sizes maps a size name to the per-service limits it grants.
	Sizes map[string]map[services.Service]services.Quota `yaml:"sizes" json:"sizes"`

	// SizesAscending orders sizes from smallest to largest. It is only used to
	// judge whether a change is a small step and never gates application.
	SizesAscending []string `yaml:"sizes_ascending" json:"sizes_ascending"`

	// Services lists the participating services per region, AllRegions being
	// the fallback.
	Services map[string][]services.Service `yaml:"services" json:"services"`

	// RegionOverrides take precedence over the size table for their region.
	RegionOverrides map[string]map[services.Service]services.Quota `yaml:"region_overrides" json:"region_overrides"`
}

// ServicesFor returns the services reconciled in the region.
func (c *Config) ServicesFor(region string) []services.Service {
	if s, ok := c.Services[region]; ok {
		return s
	}

	return c.Services[AllRegions]
}

// Validate checks the table is internally consistent.
func (c *Config) Validate() error {
	if len(c.Sizes) == 0 {
		return fmt.Errorf("quota: no sizes configured")
	}

	if len(c.ServicesFor(AllRegions)) == 0 && len(c.Services) == 0 {
		return fmt.Errorf("quota: no services configured")
	}

	seen := map[string]bool{}
	for _, s := range c.SizesAscending {
		if seen[s] {
			return fmt.Errorf("quota: size %q listed twice in sizes_ascending", s)
		}
		seen[s] = true
	}

	return nil
}

// SizeNames returns the configured sizes in a stable order.
func (c *Config) SizeNames() []string {
	names := make([]string, 0, len(c.Sizes))
	for n := range c.Sizes {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}
