package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-infra/cluster-acceptor/types"
)

func mustID(t *testing.T, s string) types.TestID {
	t.Helper()
	id, err := types.ParseTestID(s)
	require.NoError(t, err)
	return id
}

func TestExpand_CrossProduct(t *testing.T) {
	cases := []types.CaseMetadata{{
		ID:    mustID(t, "test_scaling.py::test_scale_up"),
		Suite: "scaling",
		Dimensions: []types.DimensionSet{{
			Regions:    []string{"us-east-1", "eu-west-1"},
			Instances:  []string{"c5.xlarge"},
			Oss:        []string{"alinux2", "centos7", "ubuntu1804"},
			Schedulers: []string{"slurm", "sge"},
		}},
		Timeout: 30 * time.Minute,
	}}

	invocations := Expand(cases)
	assert.Len(t, invocations, 2*1*3*2)
	assert.Equal(t, Size(cases), len(invocations))

	// Deterministic order: regions vary slowest, schedulers fastest.
	assert.Equal(t, "us-east-1", invocations[0].Region)
	assert.Equal(t, "slurm", invocations[0].Scheduler)
	assert.Equal(t, "sge", invocations[1].Scheduler)
	assert.Equal(t, "eu-west-1", invocations[6].Region)

	for _, inv := range invocations {
		assert.Equal(t, "scaling", inv.Suite)
		assert.Equal(t, 30*time.Minute, inv.Timeout)
	}
}

func TestExpand_MultipleSetsConcatenate(t *testing.T) {
	cases := []types.CaseMetadata{{
		ID:    mustID(t, "test_efa.py::test_efa"),
		Suite: "efa",
		Dimensions: []types.DimensionSet{
			{
				Regions:    []string{"us-east-1"},
				Instances:  []string{"c5n.18xlarge"},
				Oss:        []string{"alinux2"},
				Schedulers: []string{"slurm"},
			},
			{
				Regions:    []string{"eu-west-1"},
				Instances:  []string{"c5n.18xlarge"},
				Oss:        []string{"centos7"},
				Schedulers: []string{"slurm"},
			},
		},
	}}

	invocations := Expand(cases)
	require.Len(t, invocations, 2)
	assert.Equal(t, "us-east-1", invocations[0].Region)
	assert.Equal(t, "eu-west-1", invocations[1].Region)
}

func TestExpand_DeduplicatesAcrossSets(t *testing.T) {
	ds := types.DimensionSet{
		Regions:    []string{"us-east-1"},
		Instances:  []string{"t2.micro"},
		Oss:        []string{"alinux2"},
		Schedulers: []string{"slurm"},
	}
	cases := []types.CaseMetadata{{
		ID:         mustID(t, "test_dns.py::test_hostnames"),
		Suite:      "dns",
		Dimensions: []types.DimensionSet{ds, ds},
	}}

	invocations := Expand(cases)
	assert.Len(t, invocations, 1)
	assert.Equal(t, 2, Size(cases))
}

func TestExpand_SameIDInTwoSuites(t *testing.T) {
	ds := types.DimensionSet{
		Regions:    []string{"us-east-1"},
		Instances:  []string{"t2.micro"},
		Oss:        []string{"alinux2"},
		Schedulers: []string{"slurm"},
	}
	id := mustID(t, "test_dns.py::test_hostnames")
	cases := []types.CaseMetadata{
		{ID: id, Suite: "smoke", Dimensions: []types.DimensionSet{ds}},
		{ID: id, Suite: "full", Dimensions: []types.DimensionSet{ds}},
	}

	// The same identifier under two suites is two distinct cases.
	invocations := Expand(cases)
	assert.Len(t, invocations, 2)
}

func TestExpandWithFilter(t *testing.T) {
	cases := []types.CaseMetadata{{
		ID:    mustID(t, "test_scaling.py::test_scale_up"),
		Suite: "scaling",
		Dimensions: []types.DimensionSet{{
			Regions:    []string{"us-east-1", "eu-west-1"},
			Instances:  []string{"c5.xlarge", "t2.micro"},
			Oss:        []string{"alinux2"},
			Schedulers: []string{"slurm", "sge"},
		}},
	}}

	invocations := ExpandWithFilter(cases, Filter{Region: "eu-west-1", Scheduler: "slurm"})
	require.Len(t, invocations, 2)
	for _, inv := range invocations {
		assert.Equal(t, "eu-west-1", inv.Region)
		assert.Equal(t, "slurm", inv.Scheduler)
	}

	assert.Empty(t, ExpandWithFilter(cases, Filter{Suite: "nope"}))
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Region: "us-east-1"}.IsZero())
}
