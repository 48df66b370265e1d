package types

import "fmt"

// DimensionSet is one axis combination of a test case's matrix. Each field is a
// sequence of identifiers; the expander takes the cross-product of the four.
type DimensionSet struct {
	Regions    []string `yaml:"regions"`
	Instances  []string `yaml:"instances"`
	Oss        []string `yaml:"oss"`
	Schedulers []string `yaml:"schedulers"`
}

// Validate checks that every dimension resolves to a non-empty sequence.
func (d DimensionSet) Validate() error {
	for _, dim := range []struct {
		name   string
		values []string
	}{
		{"regions", d.Regions},
		{"instances", d.Instances},
		{"oss", d.Oss},
		{"schedulers", d.Schedulers},
	} {
		if len(dim.values) == 0 {
			return fmt.Errorf("dimension %q must be a non-empty sequence", dim.name)
		}
		for i, v := range dim.values {
			if v == "" {
				return fmt.Errorf("dimension %q has an empty value at index %d", dim.name, i)
			}
		}
	}
	return nil
}

// Size returns the number of invocations this set expands to.
func (d DimensionSet) Size() int {
	return len(d.Regions) * len(d.Instances) * len(d.Oss) * len(d.Schedulers)
}
