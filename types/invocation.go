package types

import (
	"fmt"
	"time"
)

// CaseMetadata is the registry's flat view of one configured test case.
type CaseMetadata struct {
	ID         TestID
	Suite      string
	Dimensions []DimensionSet
	Timeout    time.Duration
}

// Name returns a name for the case usable as a result key.
func (c CaseMetadata) Name() string {
	return c.ID.String()
}

// TestInvocation is one concrete expanded point of a case's dimension matrix.
type TestInvocation struct {
	Suite     string
	ID        TestID
	Region    string
	Instance  string
	OS        string
	Scheduler string
	Timeout   time.Duration
}

// Key returns a stable identifier unique across the whole expanded matrix.
func (i TestInvocation) Key() string {
	return fmt.Sprintf("%s[%s/%s/%s/%s]", i.ID, i.Region, i.Instance, i.OS, i.Scheduler)
}

// DimensionLabel returns just the dimension coordinates, for log and table rows.
func (i TestInvocation) DimensionLabel() string {
	return fmt.Sprintf("%s/%s/%s/%s", i.Region, i.Instance, i.OS, i.Scheduler)
}
