// Package testlist discovers test functions inside a test directory so the
// registry can verify that configured test identifiers actually exist.
package testlist

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// Test functions follow the pytest convention: a module-level def whose name
// starts with "test_".
var testDefPattern = regexp.MustCompile(`(?m)^def\s+(test_\w+)\s*\(`)

// FindTestFunctions takes a test module path relative to the test directory
// and returns the names of the test functions it defines.
func FindTestFunctions(testDir, file string) ([]string, error) {
	path := filepath.Join(testDir, filepath.FromSlash(file))
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test module %s: %w", file, err)
	}

	var functions []string
	for _, match := range testDefPattern.FindAllSubmatch(content, -1) {
		functions = append(functions, string(match[1]))
	}

	return functions, nil
}

// HasTestFunction reports whether the test identifier resolves to a function
// defined in its module.
func HasTestFunction(testDir string, id types.TestID) (bool, error) {
	functions, err := FindTestFunctions(testDir, id.File)
	if err != nil {
		return false, err
	}

	for _, fn := range functions {
		if fn == id.Function {
			return true, nil
		}
	}
	return false, nil
}
