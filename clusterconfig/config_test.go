package clusterconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpc-infra/cluster-acceptor/types"
)

func TestNewDefaultIsValid(t *testing.T) {
	c := NewDefault()
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultInstanceType, c.MasterInstanceType)
	assert.Equal(t, DefaultInstanceType, c.ComputeInstanceType)
	assert.Equal(t, DefaultMaxQueueSize, c.MaxQueueSize)
}

func TestGenerateOverlaysDimensions(t *testing.T) {
	inv := types.TestInvocation{
		Suite:     "core",
		ID:        types.TestID{File: "test_scaling.py", Function: "test_scaling"},
		Region:    "eu-west-1",
		Instance:  "c5.xlarge",
		OS:        "centos7",
		Scheduler: "slurm",
	}
	c := Generate(inv)
	require.NoError(t, c.Validate())
	assert.Equal(t, "eu-west-1", c.Region)
	assert.Equal(t, "c5.xlarge", c.MasterInstanceType)
	assert.Equal(t, "c5.xlarge", c.ComputeInstanceType)
	assert.Equal(t, "centos7", c.BaseOS)
	assert.Equal(t, "slurm", c.Scheduler)
}

func TestEncodeSections(t *testing.T) {
	c := NewDefault()
	c.KeyName = "integ-key"
	out := string(c.Encode())

	for _, section := range []string{"[aws]", "[cluster default]", "[vpc default]", "[ebs default]", "[scaling default]"} {
		assert.Contains(t, out, section)
	}
	assert.Contains(t, out, "aws_region_name = "+DefaultRegion)
	assert.Contains(t, out, "key_name = integ-key")
	assert.Contains(t, out, "scaledown_idletime = 10")
	// Sections are separated by blank lines.
	assert.True(t, strings.Contains(out, "\n\n[cluster default]"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClusterConfig)
		wantErr string
	}{
		{
			name:   "default config passes",
			mutate: func(c *ClusterConfig) {},
		},
		{
			name:    "bad region",
			mutate:  func(c *ClusterConfig) { c.Region = "narnia" },
			wantErr: "aws_region_name",
		},
		{
			name:   "gov region accepted",
			mutate: func(c *ClusterConfig) { c.Region = "us-gov-west-1" },
		},
		{
			name:    "unknown base os",
			mutate:  func(c *ClusterConfig) { c.BaseOS = "windows2019" },
			wantErr: "base_os",
		},
		{
			name:    "unknown scheduler",
			mutate:  func(c *ClusterConfig) { c.Scheduler = "kubernetes" },
			wantErr: "scheduler",
		},
		{
			name: "awsbatch on centos rejected",
			mutate: func(c *ClusterConfig) {
				c.Scheduler = "awsbatch"
				c.BaseOS = "centos7"
			},
			wantErr: "awsbatch is not supported",
		},
		{
			name: "awsbatch on alinux accepted",
			mutate: func(c *ClusterConfig) {
				c.Scheduler = "awsbatch"
				c.BaseOS = "alinux2"
			},
		},
		{
			name:    "malformed instance type",
			mutate:  func(c *ClusterConfig) { c.ComputeInstanceType = "c5xlarge" },
			wantErr: "compute_instance_type",
		},
		{
			name:    "unknown cluster type",
			mutate:  func(c *ClusterConfig) { c.ClusterType = "dedicated" },
			wantErr: "cluster_type",
		},
		{
			name:    "unknown placement",
			mutate:  func(c *ClusterConfig) { c.Placement = "everywhere" },
			wantErr: "placement",
		},
		{
			name:    "negative initial queue size",
			mutate:  func(c *ClusterConfig) { c.InitialQueueSize = -1 },
			wantErr: "initial_queue_size",
		},
		{
			name: "initial exceeds max",
			mutate: func(c *ClusterConfig) {
				c.InitialQueueSize = 20
				c.MaxQueueSize = 10
			},
			wantErr: "exceeds max_queue_size",
		},
		{
			name:    "spot bid over 100",
			mutate:  func(c *ClusterConfig) { c.SpotBidPercentage = 150 },
			wantErr: "spot_bid_percentage",
		},
		{
			name:    "ssh_from without mask",
			mutate:  func(c *ClusterConfig) { c.SSHFrom = "10.0.0.0" },
			wantErr: "ssh_from",
		},
		{
			name:    "ssh_from tight mask accepted",
			mutate:  func(c *ClusterConfig) { c.SSHFrom = "10.0.0.0/24" },
		},
		{
			name:    "unknown volume type",
			mutate:  func(c *ClusterConfig) { c.VolumeType = "gp4" },
			wantErr: "volume_type",
		},
		{
			name:    "volume too small",
			mutate:  func(c *ClusterConfig) { c.VolumeSize = 8 },
			wantErr: "volume_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefault()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
