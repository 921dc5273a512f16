package job

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Station is one end of the shuttle route.
type Station struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Slots   []string `yaml:"slots"`
}

// Catalogue lists the two stations and the departure slots per origin.
type Catalogue struct {
	MaxPassengers int       `yaml:"max_passengers"`
	Stations      []Station `yaml:"stations"`
}

// ParseCatalogue decodes a YAML catalogue and checks its shape.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	if len(c.Stations) != 2 {
		return nil, fmt.Errorf("catalogue must list exactly 2 stations, got %d", len(c.Stations))
	}
	if c.MaxPassengers < 1 {
		return nil, fmt.Errorf("catalogue max_passengers must be >= 1")
	}
	for _, st := range c.Stations {
		if st.Name == "" {
			return nil, fmt.Errorf("catalogue station without name")
		}
		if len(st.Slots) == 0 {
			return nil, fmt.Errorf("station %s has no slots", st.Name)
		}
		for _, slot := range st.Slots {
			if _, err := SlotKey(slot); err != nil {
				return nil, fmt.Errorf("station %s: %w", st.Name, err)
			}
		}
	}
	return &c, nil
}

// DefaultCatalogue returns the embedded Shuttle Tebrau catalogue.
func DefaultCatalogue() *Catalogue {
	c, err := ParseCatalogue(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("embedded catalogue is invalid: %v", err))
	}
	return c
}

// Station resolves a station by name or alias, case-insensitively.
func (c *Catalogue) Station(nameOrAlias string) (Station, bool) {
	key := strings.ToLower(strings.TrimSpace(nameOrAlias))
	for _, st := range c.Stations {
		if strings.ToLower(st.Name) == key || slices.Contains(st.Aliases, key) {
			return st, true
		}
	}
	return Station{}, false
}

// Destination returns the station opposite to origin.
func (c *Catalogue) Destination(origin string) (Station, bool) {
	for i, st := range c.Stations {
		if st.Name == origin {
			return c.Stations[1-i], true
		}
	}
	return Station{}, false
}

// HasSlot reports whether slot departs from the named origin.
func (c *Catalogue) HasSlot(origin, slot string) bool {
	for _, st := range c.Stations {
		if st.Name == origin {
			return slices.Contains(st.Slots, slot)
		}
	}
	return false
}
