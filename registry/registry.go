// Package registry loads the rendered test-matrix document and exposes the
// configured test cases to the rest of the harness.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hpc-infra/cluster-acceptor/template"
	"github.com/hpc-infra/cluster-acceptor/testlist"
	"github.com/hpc-infra/cluster-acceptor/types"
)

// Registry manages the test-matrix configuration and its flattened cases.
type Registry struct {
	config Config
	cases  []types.CaseMetadata
	mu     sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log              *zap.SugaredLogger
	MatrixConfigFile string
	ConstantsFile    string
	Vars             map[string]string
	// TestDir, when set, makes loading verify that every configured test id
	// resolves to a function defined in the test tree.
	TestDir        string
	DefaultTimeout time.Duration
}

// NewRegistry renders, parses and validates the matrix config.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.MatrixConfigFile == "" {
		return nil, fmt.Errorf("matrix config file is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop().Sugar()
	}

	r := &Registry{
		config: cfg,
	}

	if err := r.loadMatrix(); err != nil {
		return nil, fmt.Errorf("failed to load matrix config: %w", err)
	}

	cfg.Log.Debugw("Registry loaded", "len(cases)", len(r.cases))

	return r, nil
}

func (r *Registry) loadMatrix() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	renderer, err := template.NewRenderer(template.Config{
		Log:           r.config.Log,
		ConstantsFile: r.config.ConstantsFile,
		Vars:          r.config.Vars,
	})
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	rendered, err := renderer.RenderFile(r.config.MatrixConfigFile)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	var matrixConfig types.MatrixConfig
	if err := yaml.Unmarshal(rendered, &matrixConfig); err != nil {
		return fmt.Errorf("parsing rendered config: %w", err)
	}

	if err := r.validateSuiteInheritance(&matrixConfig); err != nil {
		return fmt.Errorf("failed to resolve suite inheritance: %w", err)
	}

	cases, err := r.discoverCases(&matrixConfig)
	if err != nil {
		return fmt.Errorf("failed to discover cases: %w", err)
	}

	r.cases = cases

	return nil
}

// validateSuiteInheritance checks suite inheritance resolution.
func (r *Registry) validateSuiteInheritance(config *types.MatrixConfig) error {
	if config.TestSuites == nil {
		return nil
	}

	for name, suite := range config.TestSuites {
		if err := r.checkCircularInheritance(name, suite.Inherits, config.TestSuites, make(map[string]bool)); err != nil {
			return fmt.Errorf("circular inheritance detected: %w", err)
		}
	}

	for name, suite := range config.TestSuites {
		if err := suite.ResolveInherited(config.TestSuites); err != nil {
			return fmt.Errorf("invalid inheritance for suite %q: %w", name, err)
		}
		config.TestSuites[name] = suite
	}

	return nil
}

// checkCircularInheritance detects circular dependencies between suites.
func (r *Registry) checkCircularInheritance(current string, inherits []string, suites map[string]types.SuiteConfig, visited map[string]bool) error {
	if visited[current] {
		return fmt.Errorf("circular inheritance detected at suite %s", current)
	}

	visited[current] = true
	defer delete(visited, current)

	for _, inherited := range inherits {
		parent, exists := suites[inherited]
		if !exists {
			return fmt.Errorf("suite %s inherits from non-existent suite %s", current, inherited)
		}

		if err := r.checkCircularInheritance(inherited, parent.Inherits, suites, visited); err != nil {
			return err
		}
	}

	return nil
}

// discoverCases flattens the suite mapping into case metadata, validating
// each test identifier and dimension set along the way.
func (r *Registry) discoverCases(config *types.MatrixConfig) ([]types.CaseMetadata, error) {
	if len(config.TestSuites) == 0 {
		return nil, fmt.Errorf("config defines no test suites")
	}

	suiteNames := make([]string, 0, len(config.TestSuites))
	for name := range config.TestSuites {
		suiteNames = append(suiteNames, name)
	}
	sort.Strings(suiteNames)

	var cases []types.CaseMetadata
	for _, suiteName := range suiteNames {
		suite := config.TestSuites[suiteName]

		ids := make([]string, 0, len(suite.Tests))
		for id := range suite.Tests {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, rawID := range ids {
			tc := suite.Tests[rawID]

			id, err := types.ParseTestID(rawID)
			if err != nil {
				return nil, fmt.Errorf("suite %q: %w", suiteName, err)
			}

			if len(tc.Dimensions) == 0 {
				return nil, fmt.Errorf("suite %q test %q has no dimension sets", suiteName, rawID)
			}
			for i, ds := range tc.Dimensions {
				if err := ds.Validate(); err != nil {
					return nil, fmt.Errorf("suite %q test %q dimension set %d: %w", suiteName, rawID, i, err)
				}
			}

			if r.config.TestDir != "" {
				ok, err := testlist.HasTestFunction(r.config.TestDir, id)
				if err != nil {
					return nil, fmt.Errorf("suite %q test %q: %w", suiteName, rawID, err)
				}
				if !ok {
					return nil, fmt.Errorf("suite %q test %q: function %s not found in %s",
						suiteName, rawID, id.Function, id.File)
				}
			}

			// Timeout precedence: per-test setting, then the document's
			// metadata table, then the configured default
			timeout := r.config.DefaultTimeout
			if mt, ok := config.Metadata.Timeouts[rawID]; ok {
				timeout = mt
			}
			if tc.Timeout != nil {
				timeout = *tc.Timeout
			}

			cases = append(cases, types.CaseMetadata{
				ID:         id,
				Suite:      suiteName,
				Dimensions: tc.Dimensions,
				Timeout:    timeout,
			})
		}
	}

	return cases, nil
}

// GetCases returns all discovered cases.
func (r *Registry) GetCases() []types.CaseMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cases
}

// GetCasesBySuite returns the cases of a specific suite.
func (r *Registry) GetCasesBySuite(suite string) []types.CaseMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cases []types.CaseMetadata
	for _, c := range r.cases {
		if c.Suite == suite {
			cases = append(cases, c)
		}
	}
	return cases
}

// GetConfig returns the registry configuration.
func (r *Registry) GetConfig() Config {
	return r.config
}
