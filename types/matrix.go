// Package types contains shared types used across the cluster-acceptor harness.
package types

import (
	"fmt"
	"time"
)

// MatrixConfig represents the complete rendered test-matrix document.
type MatrixConfig struct {
	TestSuites map[string]SuiteConfig `yaml:"test-suites"`
	Metadata   struct {
		Timeouts map[string]time.Duration `yaml:"timeouts"`
	} `yaml:"metadata,omitempty"`
}

// SuiteConfig represents a named grouping of related integration test cases.
// Keys of Tests are test identifiers of the form "<file>::<function>".
type SuiteConfig struct {
	Description string                    `yaml:"description,omitempty"`
	Inherits    []string                  `yaml:"inherits,omitempty"`
	Tests       map[string]TestCaseConfig `yaml:"tests"`
}

// TestCaseConfig holds the dimension matrix of a single test case.
type TestCaseConfig struct {
	Dimensions []DimensionSet `yaml:"dimensions"`
	Timeout    *time.Duration `yaml:"timeout,omitempty"`
}

// ResolveInherited merges test cases from parent suites into this suite.
//
// A suite can inherit cases from other suites named in its 'inherits' field.
// Inheritance is recursive: if suite C inherits from B and B from A, C gets
// the cases of both. Rules:
// - Cases are merged with deduplication by test identifier
// - The child suite's own cases take precedence over inherited ones
// - More distant ancestors are resolved first (depth-first)
func (s *SuiteConfig) ResolveInherited(suites map[string]SuiteConfig) error {
	processed := make(map[string]bool)
	return s.resolveInheritedRecursive(suites, processed)
}

func (s *SuiteConfig) resolveInheritedRecursive(suites map[string]SuiteConfig, processed map[string]bool) error {
	if len(s.Inherits) == 0 {
		return nil
	}

	merged := make(map[string]TestCaseConfig, len(s.Tests))
	for id, tc := range s.Tests {
		merged[id] = tc
	}

	for _, inheritFrom := range s.Inherits {
		if processed[inheritFrom] {
			return fmt.Errorf("circular inheritance detected for suite %q", inheritFrom)
		}

		parent, ok := suites[inheritFrom]
		if !ok {
			return fmt.Errorf("suite inherits from non-existent suite %q", inheritFrom)
		}

		processed[inheritFrom] = true

		if err := parent.resolveInheritedRecursive(suites, processed); err != nil {
			return fmt.Errorf("resolving inheritance for parent suite %q: %w", inheritFrom, err)
		}

		for id, tc := range parent.Tests {
			if _, exists := merged[id]; !exists {
				merged[id] = tc
			}
		}

		processed[inheritFrom] = false
	}

	s.Tests = merged
	return nil
}
