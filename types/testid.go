package types

import (
	"fmt"
	"path"
	"strings"
)

// TestIDSeparator splits the file part of a test identifier from the function part.
const TestIDSeparator = "::"

// TestID is the parsed form of a "<file>::<function>" test identifier.
type TestID struct {
	File     string
	Function string
}

// ParseTestID parses and validates a test identifier.
// The file part must be a "test_*.py" module path; the function part
// must be a non-empty name without further "::" nesting.
func ParseTestID(id string) (TestID, error) {
	parts := strings.Split(id, TestIDSeparator)
	if len(parts) != 2 {
		return TestID{}, fmt.Errorf("test id %q must have the form <file>::<function>", id)
	}

	file, fn := parts[0], parts[1]
	if file == "" {
		return TestID{}, fmt.Errorf("test id %q has an empty file part", id)
	}
	if !strings.HasSuffix(file, ".py") {
		return TestID{}, fmt.Errorf("test id %q file part must end in .py", id)
	}
	if !strings.HasPrefix(path.Base(file), "test_") {
		return TestID{}, fmt.Errorf("test id %q file part must be a test_*.py module", id)
	}
	if fn == "" {
		return TestID{}, fmt.Errorf("test id %q has an empty function part", id)
	}
	if strings.ContainsAny(fn, "/ ") {
		return TestID{}, fmt.Errorf("test id %q function part contains invalid characters", id)
	}

	return TestID{File: file, Function: fn}, nil
}

// String reassembles the canonical identifier.
func (t TestID) String() string {
	return t.File + TestIDSeparator + t.Function
}

// DisplayName returns a short name for reporting: the function name, falling
// back to the file's basename for ids that somehow lack one.
func (t TestID) DisplayName() string {
	if t.Function != "" {
		return t.Function
	}
	parts := strings.Split(t.File, "/")
	return parts[len(parts)-1]
}
