// Package travel provides the built-in travel toolset: city search,
// attraction lookup, budget estimation and city details, backed by a
// YAML city catalog.
package travel

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed cities.yaml
var defaultCitiesYAML []byte

// Attraction is one sight within a city.
type Attraction struct {
	Name        string `yaml:"name" json:"name"`
	Ticket      int    `yaml:"ticket" json:"ticket"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// City is one entry of the city catalog.
type City struct {
	Name            string       `yaml:"name" json:"name"`
	Region          string       `yaml:"region" json:"region"`
	Tags            []string     `yaml:"tags" json:"tags"`
	AvgBudgetPerDay int          `yaml:"avg_budget_per_day" json:"avg_budget_per_day"`
	BestSeason      []string     `yaml:"best_season" json:"best_season"`
	RecommendedDays int          `yaml:"recommended_days" json:"recommended_days"`
	Attractions     []Attraction `yaml:"attractions" json:"attractions"`
}

type cityFile struct {
	Cities []City `yaml:"cities"`
}

// Index holds the loaded city catalog. It is immutable after construction.
type Index struct {
	byName map[string]City
	order  []string
}

// LoadIndex reads the catalog at path, or the embedded default when path is
// empty.
func LoadIndex(path string) (*Index, error) {
	data := defaultCitiesYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read city catalog: %w", err)
		}
		data = b
	}

	var file cityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse city catalog: %w", err)
	}
	if len(file.Cities) == 0 {
		return nil, fmt.Errorf("city catalog has no entries")
	}

	idx := &Index{byName: make(map[string]City, len(file.Cities))}
	for _, c := range file.Cities {
		if c.Name == "" {
			continue
		}
		if _, dup := idx.byName[c.Name]; dup {
			continue
		}
		if c.RecommendedDays <= 0 {
			c.RecommendedDays = 3
		}
		idx.byName[c.Name] = c
		idx.order = append(idx.order, c.Name)
	}
	return idx, nil
}

// Get returns the city by exact name.
func (i *Index) Get(name string) (City, bool) {
	c, ok := i.byName[name]
	return c, ok
}

// All returns city names in catalog order.
func (i *Index) All() []string {
	return append([]string(nil), i.order...)
}

// ByRegion returns the cities whose region matches, in catalog order.
func (i *Index) ByRegion(region string) []City {
	var out []City
	for _, name := range i.order {
		if c := i.byName[name]; c.Region == region {
			out = append(out, c)
		}
	}
	return out
}
