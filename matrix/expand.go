// Package matrix expands configured test cases into concrete invocations.
// Each dimension set contributes the cross-product of its four axes; sets are
// expanded in config order and duplicates across sets collapse to the first
// occurrence, so the result is deterministic for a given document.
package matrix

import (
	"github.com/hpc-infra/cluster-acceptor/types"
)

// Filter restricts expansion to matching coordinates. Empty fields match
// everything.
type Filter struct {
	Suite     string
	Region    string
	Instance  string
	OS        string
	Scheduler string
}

func (f Filter) matches(inv types.TestInvocation) bool {
	if f.Suite != "" && inv.Suite != f.Suite {
		return false
	}
	if f.Region != "" && inv.Region != f.Region {
		return false
	}
	if f.Instance != "" && inv.Instance != f.Instance {
		return false
	}
	if f.OS != "" && inv.OS != f.OS {
		return false
	}
	if f.Scheduler != "" && inv.Scheduler != f.Scheduler {
		return false
	}
	return true
}

// IsZero reports whether the filter matches every invocation.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Expand expands all cases without restriction.
func Expand(cases []types.CaseMetadata) []types.TestInvocation {
	return ExpandWithFilter(cases, Filter{})
}

// ExpandWithFilter expands all cases, keeping only invocations the filter
// accepts.
func ExpandWithFilter(cases []types.CaseMetadata, filter Filter) []types.TestInvocation {
	var invocations []types.TestInvocation
	seen := make(map[string]bool)

	for _, c := range cases {
		for _, inv := range expandCase(c) {
			if !filter.matches(inv) {
				continue
			}
			key := c.Suite + "|" + inv.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			invocations = append(invocations, inv)
		}
	}

	return invocations
}

// expandCase takes the cross-product of each dimension set of one case.
func expandCase(c types.CaseMetadata) []types.TestInvocation {
	var invocations []types.TestInvocation

	for _, ds := range c.Dimensions {
		for _, region := range ds.Regions {
			for _, instance := range ds.Instances {
				for _, os := range ds.Oss {
					for _, scheduler := range ds.Schedulers {
						invocations = append(invocations, types.TestInvocation{
							Suite:     c.Suite,
							ID:        c.ID,
							Region:    region,
							Instance:  instance,
							OS:        os,
							Scheduler: scheduler,
							Timeout:   c.Timeout,
						})
					}
				}
			}
		}
	}

	return invocations
}

// Size returns the total invocation count the cases would expand to, before
// deduplication.
func Size(cases []types.CaseMetadata) int {
	total := 0
	for _, c := range cases {
		for _, ds := range c.Dimensions {
			total += ds.Size()
		}
	}
	return total
}
